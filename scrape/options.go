package scrape

import (
	"log/slog"
	"time"
)

type Option func(s *P2PScraper)

// WithLogger specifies the logger for the scraper
func WithLogger(l *slog.Logger) Option {
	return func(s *P2PScraper) {
		s.logger = l
	}
}

// WithReference specifies the official rate feed used as the base rate.
// Without it, the base rate falls back to the market mid
func WithReference(f Fetcher) Option {
	return func(s *P2PScraper) {
		s.reference = f
	}
}

// withNow overrides the capture clock
func withNow(now func() time.Time) Option {
	return func(s *P2PScraper) {
		s.now = now
	}
}
