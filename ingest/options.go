package ingest

import (
	"log/slog"
	"time"
)

type Option func(p *Poller)

// WithLogger specifies the logger for the poller
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// WithInterval specifies the delay between the end of one
// scrape and the start of the next. Defaults to 60s
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithScrapeTimeout specifies the upper bound of a single scrape,
// after which it is treated as failed. Defaults to 120s
func WithScrapeTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.scrapeTimeout = d
	}
}
