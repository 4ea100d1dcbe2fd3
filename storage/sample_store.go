package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sig-0/p2prates/storage/types"
)

const (
	DefaultHistoryLimit = 100
	DefaultMaxLimit     = 500
)

// SampleStore is the best-effort facade over a Storage backend.
// None of its methods return errors: failures are logged and
// degrade to false / nil / empty, so a broken backend never
// stops the poll loop
type SampleStore struct {
	backend Storage
	logger  *slog.Logger

	// lastCapturedAt is the capture time of the last persisted sample
	lastCapturedAt time.Time

	timeout  time.Duration
	maxLimit int

	mu sync.Mutex
}

// NewSampleStore creates a new sample store over the given backend
func NewSampleStore(backend Storage, opts ...Option) *SampleStore {
	s := &SampleStore{
		backend:  backend,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout:  time.Second * 10,
		maxLimit: DefaultMaxLimit,
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	if s.maxLimit <= 0 {
		s.maxLimit = DefaultMaxLimit
	}

	return s
}

// Persist appends the sample to the backend.
// Returns false if the sample is invalid, was already
// persisted, or the write failed
func (s *SampleStore) Persist(ctx context.Context, sample *types.RateSample) bool {
	if sample == nil {
		s.logger.Warn("refusing to persist empty sample")

		return false
	}

	if err := sample.Validate(); err != nil {
		s.logger.Warn(
			"refusing to persist invalid sample",
			"source", sample.Source,
			"err", err,
		)

		return false
	}

	// Writes are serialized, so the duplicate check and the insert are atomic
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastCapturedAt.IsZero() && s.lastCapturedAt.Equal(sample.CapturedAt) {
		s.logger.Debug(
			"sample already persisted",
			"source", sample.Source,
			"captured_at", sample.CapturedAt,
		)

		return false
	}

	saveCtx, cancelFn := context.WithTimeout(ctx, s.timeout)
	defer cancelFn()

	// The backend assigns the creation time, keep the caller's copy immutable
	row := *sample

	if err := s.backend.SaveSample(saveCtx, &row); err != nil {
		s.logger.Error(
			"unable to persist sample",
			"source", sample.Source,
			"captured_at", sample.CapturedAt,
			"err", err,
		)

		return false
	}

	s.lastCapturedAt = sample.CapturedAt

	return true
}

// Latest returns the most recently persisted sample, or nil
func (s *SampleStore) Latest(ctx context.Context) *types.RateSample {
	queryCtx, cancelFn := context.WithTimeout(ctx, s.timeout)
	defer cancelFn()

	sample, err := s.backend.LatestSample(queryCtx)
	if err != nil {
		s.logger.Error(
			"unable to fetch latest sample",
			"err", err,
		)

		return nil
	}

	return sample
}

// History returns up to limit of the most recent samples, newest first.
// Non-positive limits fall back to the default, and the limit is
// clamped to the configured maximum
func (s *SampleStore) History(ctx context.Context, limit int) []*types.RateSample {
	limit = s.ClampLimit(limit)

	queryCtx, cancelFn := context.WithTimeout(ctx, s.timeout)
	defer cancelFn()

	samples, err := s.backend.ListSamples(queryCtx, int32(limit)) //nolint:gosec // clamped above
	if err != nil {
		s.logger.Error(
			"unable to fetch sample history",
			"limit", limit,
			"err", err,
		)

		return []*types.RateSample{}
	}

	if samples == nil {
		return []*types.RateSample{}
	}

	return samples
}

// ClampLimit normalizes a requested history limit
func (s *SampleStore) ClampLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	return limit
}
