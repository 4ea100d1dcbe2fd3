package ingest

import (
	"context"

	"github.com/sig-0/p2prates/storage/types"
)

type scrapeDelegate func(context.Context) (*types.RateSample, error)

type mockScraper struct {
	scrapeFn scrapeDelegate
}

func (m *mockScraper) Scrape(ctx context.Context) (*types.RateSample, error) {
	if m.scrapeFn != nil {
		return m.scrapeFn(ctx)
	}

	return nil, nil
}
