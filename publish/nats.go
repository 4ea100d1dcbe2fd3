package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sig-0/p2prates/broadcast"
	"github.com/sig-0/p2prates/ingest"
)

const (
	DefaultSubject = "rates.ves"

	clientName = "p2prates"
)

var errInvalidSubject = errors.New("invalid subject")

// Conn is the publishing side of a NATS connection
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher relays every successful sample to a NATS subject,
// as the same payload the live feed pushes
type NATSPublisher struct {
	conn    Conn
	logger  *slog.Logger
	subject string
}

type Option func(p *NATSPublisher)

// WithLogger specifies the logger for the publisher
func WithLogger(l *slog.Logger) Option {
	return func(p *NATSPublisher) {
		p.logger = l
	}
}

// NewNATSPublisher creates a new publisher on the subject
func NewNATSPublisher(conn Conn, subject string, opts ...Option) (*NATSPublisher, error) {
	if subject == "" {
		return nil, errInvalidSubject
	}

	p := &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Handle is the poller consumer. Failed outcomes and
// publish errors are dropped, after logging
func (p *NATSPublisher) Handle(outcome ingest.Outcome) {
	if !outcome.Success() {
		return
	}

	data, err := json.Marshal(broadcast.NewPayload(outcome.Sample))
	if err != nil {
		p.logger.Error("unable to encode payload", "err", err)

		return
	}

	if err = p.conn.Publish(p.subject, data); err != nil {
		p.logger.Warn(
			"unable to publish payload",
			"subject", p.subject,
			"err", err,
		)

		return
	}

	p.logger.Debug("payload published", "subject", p.subject)
}

// Connect dials the NATS server, reconnecting in the background
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name(clientName),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	return conn, nil
}
