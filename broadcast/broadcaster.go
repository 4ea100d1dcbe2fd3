package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/sig-0/p2prates/ingest"
)

const (
	DefaultPingInterval = time.Second * 30
	DefaultSendQueue    = 16

	latestLookupTimeout = time.Second * 5
)

var ErrNotListening = errors.New("broadcaster is not listening")

// Subscriber is a single live feed consumer
type Subscriber interface {
	// Send hands the encoded payload to the subscriber.
	// It must not block on the subscriber's transport
	Send([]byte) error

	// Close releases the subscriber's transport
	Close() error
}

// Broadcaster pushes every successfully scraped sample to all
// attached subscribers. It owns the poller feeding it
type Broadcaster struct {
	poller   *ingest.Poller
	logger   *slog.Logger
	latestFn LatestFn

	upgrader websocket.Upgrader
	subs     map[xid.ID]Subscriber

	// last is the most recently broadcast payload
	last []byte

	pingInterval time.Duration
	sendQueue    int

	listening bool

	mu sync.RWMutex
}

// New creates a new broadcaster on top of the poller
func New(poller *ingest.Poller, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		poller:       poller,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs:         make(map[xid.ID]Subscriber),
		pingInterval: DefaultPingInterval,
		sendQueue:    DefaultSendQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the server CORS layer
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.pingInterval <= 0 {
		b.pingInterval = DefaultPingInterval
	}

	if b.sendQueue <= 0 {
		b.sendQueue = DefaultSendQueue
	}

	return b
}

// Start opens the broadcaster for subscribers and starts the poller.
// Returns false if it was already listening
func (b *Broadcaster) Start() bool {
	b.mu.Lock()

	if b.listening {
		b.mu.Unlock()
		b.logger.Info("broadcaster already listening")

		return false
	}

	b.listening = true
	b.last = nil
	b.mu.Unlock()

	b.poller.Start(b.publish)

	b.logger.Info("broadcaster started")

	return true
}

// Stop stops the poller and drops every subscriber.
// Returns false if it was not listening
func (b *Broadcaster) Stop() bool {
	b.mu.Lock()

	if !b.listening {
		b.mu.Unlock()

		return false
	}

	b.listening = false

	subs := b.subs
	b.subs = make(map[xid.ID]Subscriber)
	b.mu.Unlock()

	b.poller.Stop()

	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			b.logger.Debug("unable to close subscriber", "err", err)
		}
	}

	b.logger.Info(
		"broadcaster stopped",
		"dropped_subscribers", len(subs),
	)

	return true
}

// Listening returns true if subscribers are accepted
func (b *Broadcaster) Listening() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.listening
}

// Poller returns the poller feeding the broadcaster
func (b *Broadcaster) Poller() *ingest.Poller {
	return b.poller
}

// Connected returns the number of attached subscribers
func (b *Broadcaster) Connected() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Attach registers the subscriber. The returned detach func is
// idempotent, and closes the subscriber
func (b *Broadcaster) Attach(sub Subscriber) (func(), error) {
	id := xid.New()

	b.mu.Lock()

	if !b.listening {
		b.mu.Unlock()

		return nil, ErrNotListening
	}

	b.subs[id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug(
		"subscriber attached",
		"id", id.String(),
		"connected", count,
	)

	return func() {
		b.detach(id)
	}, nil
}

// Latest returns the encoded latest payload. The last broadcast
// is preferred, with the latest stored sample as the fallback
func (b *Broadcaster) Latest(ctx context.Context) []byte {
	b.mu.RLock()
	last := b.last
	b.mu.RUnlock()

	if last != nil {
		return last
	}

	if b.latestFn == nil {
		return nil
	}

	payload := NewPayload(b.latestFn(ctx))
	if payload == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("unable to encode latest payload", "err", err)

		return nil
	}

	return data
}

// publish fans out a poll outcome. Failures are only logged
func (b *Broadcaster) publish(outcome ingest.Outcome) {
	if !outcome.Success() {
		b.logger.Warn(
			"skipping broadcast of failed scrape",
			"err", outcome.Err,
		)

		return
	}

	data, err := json.Marshal(NewPayload(outcome.Sample))
	if err != nil {
		b.logger.Error("unable to encode payload", "err", err)

		return
	}

	b.mu.Lock()
	b.last = data

	targets := make(map[xid.ID]Subscriber, len(b.subs))
	for id, sub := range b.subs {
		targets[id] = sub
	}
	b.mu.Unlock()

	for id, sub := range targets {
		if err := sub.Send(data); err != nil {
			b.logger.Warn(
				"unable to deliver payload, dropping subscriber",
				"id", id.String(),
				"err", err,
			)

			b.detach(id)
		}
	}

	b.logger.Debug(
		"payload broadcast",
		"subscribers", len(targets),
	)
}

// detach drops and closes a single subscriber
func (b *Broadcaster) detach(id xid.ID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	count := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}

	if err := sub.Close(); err != nil {
		b.logger.Debug("unable to close subscriber", "err", err)
	}

	b.logger.Debug(
		"subscriber detached",
		"id", id.String(),
		"connected", count,
	)
}
