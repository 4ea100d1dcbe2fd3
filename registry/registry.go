package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sig-0/p2prates/pipeline"
)

var (
	errHandleMismatch = errors.New("pipeline registered on another handle")
	errInvalidFactory = errors.New("invalid pipeline factory")
	errNilPipeline    = errors.New("factory returned no pipeline")
)

// Registry keeps at most one live pipeline, along with the
// transport handle (ex. the listen address) it serves on.
// Registering never starts, and unregistering never stops a pipeline
type Registry struct {
	manager *pipeline.Manager
	handle  string

	mu sync.Mutex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{}
}

// Get returns the registered pipeline and its handle, if any
func (r *Registry) Get() (*pipeline.Manager, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.manager, r.handle
}

// Set registers the pipeline, replacing (without stopping) the current one
func (r *Registry) Set(m *pipeline.Manager, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.manager = m
	r.handle = handle
}

// Clear unregisters (without stopping) the current pipeline
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.manager = nil
	r.handle = ""
}

// IsRunning returns true if a pipeline is registered
func (r *Registry) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.manager != nil
}

// Acquire returns the registered pipeline, or creates and registers
// one using the factory. The factory runs under the registry lock,
// so concurrent callers never create two pipelines.
// The returned flag is true if the pipeline was created
func (r *Registry) Acquire(handle string, factory pipeline.Factory) (*pipeline.Manager, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.manager != nil {
		if r.handle != handle {
			return nil, false, fmt.Errorf("%w: %q", errHandleMismatch, r.handle)
		}

		return r.manager, false, nil
	}

	if factory == nil {
		return nil, false, errInvalidFactory
	}

	m, err := factory()
	if err != nil {
		return nil, false, fmt.Errorf("unable to create pipeline: %w", err)
	}

	if m == nil {
		return nil, false, errNilPipeline
	}

	r.manager = m
	r.handle = handle

	return m, true, nil
}

// Release unregisters and returns the pipeline registered on the handle.
// Returns nil if nothing is registered on it
func (r *Registry) Release(handle string) *pipeline.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.manager == nil || r.handle != handle {
		return nil
	}

	m := r.manager

	r.manager = nil
	r.handle = ""

	return m
}
