package storage

import (
	"context"

	"github.com/sig-0/p2prates/storage/types"
)

// Storage is an abstraction over the rate sample backend
type Storage interface {
	// SaveSample appends the given sample, assigning its creation time
	SaveSample(context.Context, *types.RateSample) error

	// LatestSample fetches the most recently saved sample, if any
	LatestSample(context.Context) (*types.RateSample, error)

	// ListSamples lists up to limit of the most recent samples, newest first
	ListSamples(context.Context, int32) ([]*types.RateSample, error)
}
