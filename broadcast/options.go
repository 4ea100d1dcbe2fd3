package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/sig-0/p2prates/storage/types"
)

type Option func(b *Broadcaster)

// LatestFn resolves the most recent stored sample
type LatestFn func(context.Context) *types.RateSample

// WithLogger specifies the logger for the broadcaster
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = l
	}
}

// WithLatestSource specifies the fallback for "latest" requests
// made before the first broadcast of the run
func WithLatestSource(fn LatestFn) Option {
	return func(b *Broadcaster) {
		b.latestFn = fn
	}
}

// WithPingInterval specifies the websocket keepalive interval.
// Defaults to 30s
func WithPingInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.pingInterval = d
	}
}

// WithSendQueue specifies the per-subscriber send buffer size.
// Defaults to 16
func WithSendQueue(size int) Option {
	return func(b *Broadcaster) {
		b.sendQueue = size
	}
}
