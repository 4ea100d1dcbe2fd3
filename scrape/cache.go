package scrape

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/sig-0/p2prates/ingest"
	"github.com/sig-0/p2prates/storage/types"
)

const cacheKey = "latest"

// Cached bounds the upstream scrape frequency. A successful sample
// is served from memory until its TTL expires. Failures are never cached
type Cached struct {
	scraper ingest.Scraper
	samples *expirable.LRU[string, *types.RateSample]
	group   singleflight.Group
}

// NewCached wraps the scraper with a TTL cache. A non-positive
// TTL disables caching, while still collapsing concurrent scrapes
func NewCached(scraper ingest.Scraper, ttl time.Duration) *Cached {
	c := &Cached{
		scraper: scraper,
	}

	if ttl > 0 {
		c.samples = expirable.NewLRU[string, *types.RateSample](1, nil, ttl)
	}

	return c
}

func (c *Cached) Scrape(ctx context.Context) (*types.RateSample, error) {
	if c.samples != nil {
		if sample, ok := c.samples.Get(cacheKey); ok {
			return sample, nil
		}
	}

	res, err, _ := c.group.Do(cacheKey, func() (any, error) {
		sample, err := c.scraper.Scrape(ctx)
		if err != nil || sample == nil {
			return sample, err
		}

		if c.samples != nil {
			c.samples.Add(cacheKey, sample)
		}

		return sample, nil
	})
	if err != nil {
		return nil, err
	}

	sample, _ := res.(*types.RateSample)

	return sample, nil
}

// Purge drops the cached sample
func (c *Cached) Purge() {
	if c.samples != nil {
		c.samples.Purge()
	}
}
