package scrape

import (
	"context"

	"github.com/sig-0/p2prates/storage/types"
)

type (
	nameDelegate  func() string
	fetchDelegate func(context.Context) ([]*types.ExchangeRate, error)
)

type mockFetcher struct {
	nameFn  nameDelegate
	fetchFn fetchDelegate
}

func (m *mockFetcher) Name() string {
	if m.nameFn != nil {
		return m.nameFn()
	}

	return ""
}

func (m *mockFetcher) Fetch(ctx context.Context) ([]*types.ExchangeRate, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}

	return nil, nil
}
