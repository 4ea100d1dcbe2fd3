package mock

import (
	"context"

	"github.com/sig-0/p2prates/storage/types"
)

type (
	SaveSampleDelegate   func(context.Context, *types.RateSample) error
	LatestSampleDelegate func(context.Context) (*types.RateSample, error)
	ListSamplesDelegate  func(context.Context, int32) ([]*types.RateSample, error)
)

type Storage struct {
	SaveSampleFn   SaveSampleDelegate
	LatestSampleFn LatestSampleDelegate
	ListSamplesFn  ListSamplesDelegate
}

func (m *Storage) SaveSample(ctx context.Context, sample *types.RateSample) error {
	if m.SaveSampleFn != nil {
		return m.SaveSampleFn(ctx, sample)
	}

	return nil
}

func (m *Storage) LatestSample(ctx context.Context) (*types.RateSample, error) {
	if m.LatestSampleFn != nil {
		return m.LatestSampleFn(ctx)
	}

	return nil, nil //nolint:nilnil // mock default
}

func (m *Storage) ListSamples(ctx context.Context, limit int32) ([]*types.RateSample, error) {
	if m.ListSamplesFn != nil {
		return m.ListSamplesFn(ctx, limit)
	}

	return nil, nil
}
