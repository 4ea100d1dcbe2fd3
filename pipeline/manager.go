package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/sig-0/p2prates/broadcast"
	"github.com/sig-0/p2prates/ingest"
	"github.com/sig-0/p2prates/storage"
	"github.com/sig-0/p2prates/storage/types"
)

// Factory creates a fresh, stopped pipeline
type Factory func() (*Manager, error)

// Manager wires a single poller to the sample store and the
// broadcaster, and owns the start / stop lifecycle of both.
// The broadcaster and the store are independent poller consumers
type Manager struct {
	store       *storage.SampleStore
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger

	consumers     []ingest.Handler
	subscriptions []func()

	running bool

	mu sync.Mutex
}

// New creates a new pipeline manager. The manager is created stopped
func New(
	store *storage.SampleStore,
	broadcaster *broadcast.Broadcaster,
	opts ...Option,
) *Manager {
	m := &Manager{
		store:       store,
		broadcaster: broadcaster,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Apply the options
	for _, opt := range opts {
		opt(m)
	}

	poller := broadcaster.Poller()

	m.subscriptions = append(m.subscriptions, poller.Subscribe(m.handleUpdate))

	for _, consumer := range m.consumers {
		m.subscriptions = append(m.subscriptions, poller.Subscribe(consumer))
	}

	return m
}

// Start starts the broadcaster, and with it the poller.
// Returns false if the pipeline is already running
func (m *Manager) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Info("pipeline already running")

		return false
	}

	m.broadcaster.Start()
	m.running = true

	m.logger.Info(
		"pipeline started",
		"interval", m.broadcaster.Poller().Interval(),
	)

	return true
}

// Stop stops the broadcaster and the poller.
// Returns false if the pipeline was not running
func (m *Manager) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		m.logger.Info("pipeline is not running")

		return false
	}

	m.broadcaster.Stop()
	m.running = false

	m.logger.Info("pipeline stopped")

	return true
}

// Close stops the pipeline and releases its poller subscriptions.
// A closed manager must not be restarted
func (m *Manager) Close() {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, unsubscribe := range m.subscriptions {
		unsubscribe()
	}

	m.subscriptions = nil
}

// IsRunning returns true if the poller timer is armed
// and the broadcaster accepts subscribers
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running &&
		m.broadcaster.Listening() &&
		m.broadcaster.Poller().Running()
}

// Broadcaster returns the live feed of the pipeline
func (m *Manager) Broadcaster() *broadcast.Broadcaster {
	return m.broadcaster
}

// Latest returns the most recently persisted sample, if any
func (m *Manager) Latest(ctx context.Context) *types.RateSample {
	return m.store.Latest(ctx)
}

// History returns up to limit persisted samples, newest first
func (m *Manager) History(ctx context.Context, limit int) []*types.RateSample {
	return m.store.History(ctx, limit)
}

// handleUpdate persists successful outcomes.
// Broadcasting is the broadcaster's own concern
func (m *Manager) handleUpdate(outcome ingest.Outcome) {
	if !outcome.Success() {
		return
	}

	if !m.store.Persist(context.Background(), outcome.Sample) {
		// The store logged the cause
		return
	}

	m.logger.Info(
		"sample persisted",
		"source", outcome.Sample.Source,
		"captured_at", outcome.Sample.CapturedAt,
		"sell_rate", outcome.Sample.SellRate,
		"buy_rate", outcome.Sample.BuyRate,
	)
}
