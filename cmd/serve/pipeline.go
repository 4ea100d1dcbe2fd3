package serve

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sig-0/p2prates/broadcast"
	"github.com/sig-0/p2prates/ingest"
	"github.com/sig-0/p2prates/pipeline"
	"github.com/sig-0/p2prates/provider/ves"
	"github.com/sig-0/p2prates/scrape"
	"github.com/sig-0/p2prates/server/config"
	"github.com/sig-0/p2prates/storage"
)

const fetchTimeout = time.Second * 30

// newScraper creates the cached upstream scraper. It outlives
// the pipelines, so a quick stop / start reuses the cached sample
func newScraper(cfg *config.Pipeline, logger *slog.Logger) *scrape.Cached {
	// Median Binance P2P USDT rate, with the official BCV USD rate as reference
	scraper := scrape.NewP2PScraper(
		ves.NewBinanceP2PFetcher(ves.DefaultBinanceP2PURL, fetchTimeout),
		scrape.WithReference(ves.NewBCVFetcher(ves.DefaultBCVURL, fetchTimeout)),
		scrape.WithLogger(logger),
	)

	return scrape.NewCached(scraper, cfg.CacheTTLDuration())
}

// newPipelineFactory returns a factory producing pipelines
// over the shared scraper and sample store. Every consumer
// receives the outcomes alongside the store
func newPipelineFactory(
	cfg *config.Pipeline,
	scraper ingest.Scraper,
	samples *storage.SampleStore,
	logger *slog.Logger,
	consumers ...ingest.Handler,
) pipeline.Factory {
	return func() (*pipeline.Manager, error) {
		poller, err := ingest.New(
			scraper,
			ingest.WithLogger(logger),
			ingest.WithInterval(cfg.IntervalDuration()),
			ingest.WithScrapeTimeout(cfg.ScrapeTimeoutDuration()),
		)
		if err != nil {
			return nil, fmt.Errorf("unable to create poller: %w", err)
		}

		b := broadcast.New(
			poller,
			broadcast.WithLogger(logger),
			broadcast.WithLatestSource(samples.Latest),
		)

		return pipeline.New(
			samples,
			b,
			pipeline.WithLogger(logger),
			pipeline.WithConsumers(consumers...),
		), nil
	}
}
