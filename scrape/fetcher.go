package scrape

import (
	"context"

	"github.com/sig-0/p2prates/storage/types"
)

// Fetcher is a single upstream rate feed
type Fetcher interface {
	// Name returns the name of the upstream feed
	Name() string

	// Fetch fetches the current rates from the upstream feed
	Fetch(context.Context) ([]*types.ExchangeRate, error)
}
