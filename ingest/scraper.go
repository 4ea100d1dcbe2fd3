package ingest

import (
	"context"

	"github.com/sig-0/p2prates/storage/types"
)

// Scraper produces a single rate sample from the upstream feed
type Scraper interface {
	// Scrape runs one acquisition against the upstream source
	Scrape(context.Context) (*types.RateSample, error)
}

// ScraperFunc is a function adapter for Scraper
type ScraperFunc func(context.Context) (*types.RateSample, error)

func (f ScraperFunc) Scrape(ctx context.Context) (*types.RateSample, error) {
	return f(ctx)
}
