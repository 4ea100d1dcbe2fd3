package ingest

import (
	"github.com/sig-0/p2prates/storage/types"
)

// Outcome is the result of a single poll tick.
// Exactly one of Sample and Err is set
type Outcome struct {
	Sample *types.RateSample
	Err    error
}

// Success returns true if the tick yielded a sample
func (o Outcome) Success() bool {
	return o.Err == nil && o.Sample != nil
}

// Handler consumes poll outcomes
type Handler func(Outcome)
