package pipeline

import (
	"log/slog"

	"github.com/sig-0/p2prates/ingest"
)

type Option func(m *Manager)

// WithLogger specifies the logger for the manager
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithConsumers specifies additional outcome consumers,
// subscribed to the same poller as the sample store
func WithConsumers(handlers ...ingest.Handler) Option {
	return func(m *Manager) {
		m.consumers = append(m.consumers, handlers...)
	}
}
