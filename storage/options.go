package storage

import (
	"log/slog"
	"time"
)

type Option func(s *SampleStore)

// WithLogger specifies the logger for the sample store
func WithLogger(l *slog.Logger) Option {
	return func(s *SampleStore) {
		s.logger = l
	}
}

// WithTimeout specifies the per-operation backend timeout.
// Defaults to 10s
func WithTimeout(d time.Duration) Option {
	return func(s *SampleStore) {
		s.timeout = d
	}
}

// WithMaxLimit specifies the upper bound for history queries.
// Defaults to 500
func WithMaxLimit(limit int) Option {
	return func(s *SampleStore) {
		s.maxLimit = limit
	}
}
