package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sig-0/p2prates/storage/types"
)

// Storage is an append-only, in-memory sample log
type Storage struct {
	now  func() time.Time
	data []types.RateSample

	mu sync.RWMutex
}

func NewStorage() *Storage {
	return &Storage{
		now:  time.Now,
		data: make([]types.RateSample, 0, 1024),
	}
}

func (s *Storage) SaveSample(_ context.Context, r *types.RateSample) error {
	elem := *r
	elem.CapturedAt = elem.CapturedAt.UTC()

	s.mu.Lock()
	elem.CreatedAt = s.now().UTC()
	s.data = append(s.data, elem)
	s.mu.Unlock()

	r.CreatedAt = elem.CreatedAt

	return nil
}

func (s *Storage) LatestSample(_ context.Context) (*types.RateSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return nil, nil //nolint:nilnil // valid case
	}

	cp := s.data[len(s.data)-1]

	return &cp, nil
}

func (s *Storage) ListSamples(_ context.Context, limit int32) ([]*types.RateSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.data)
	if limit >= 0 && int(limit) < n {
		n = int(limit)
	}

	out := make([]*types.RateSample, 0, n)

	// Walk backwards, newest first
	for i := len(s.data) - 1; i >= 0 && len(out) < n; i-- {
		cp := s.data[i]
		out = append(out, &cp)
	}

	return out, nil
}

// Len returns the number of stored samples
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}
