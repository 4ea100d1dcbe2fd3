package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = time.Second * 10
	maxRequestSize = 512

	// RequestLatest asks for the latest payload right away
	RequestLatest = "get_latest"
)

var (
	errSubscriberClosed = errors.New("subscriber closed")
	errSendQueueFull    = errors.New("subscriber send queue full")
)

// Request is a message sent by a live feed client
type Request struct {
	Type string `json:"type"`
}

// ServeHTTP upgrades the request to a live feed websocket
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !b.Listening() {
		http.Error(w, ErrNotListening.Error(), http.StatusServiceUnavailable)

		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied
		b.logger.Debug("unable to upgrade connection", "err", err)

		return
	}

	sub := newWSSubscriber(conn, b.sendQueue, b.pingInterval, b.logger)

	detach, err := b.Attach(sub)
	if err != nil {
		_ = sub.Close()

		return
	}

	go sub.writeLoop(detach)
	go sub.readLoop(detach, b.Latest)
}

// wsSubscriber is a websocket live feed subscriber.
// Writes happen only in the write loop, fed by a buffered queue
type wsSubscriber struct {
	conn   *websocket.Conn
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	pingInterval time.Duration

	closeOnce sync.Once
}

func newWSSubscriber(
	conn *websocket.Conn,
	queue int,
	pingInterval time.Duration,
	logger *slog.Logger,
) *wsSubscriber {
	return &wsSubscriber{
		conn:         conn,
		logger:       logger,
		send:         make(chan []byte, queue),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
	}
}

// Send enqueues the payload, failing if the subscriber is too slow
func (s *wsSubscriber) Send(data []byte) error {
	select {
	case <-s.done:
		return errSubscriberClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

func (s *wsSubscriber) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.done)

		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)

		err = s.conn.Close()
	})

	return err
}

// writeLoop drains the send queue and keeps the connection alive
func (s *wsSubscriber) writeLoop(detach func()) {
	ticker := time.NewTicker(s.pingInterval)

	defer func() {
		ticker.Stop()
		detach()
	}()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("unable to write payload", "err", err)

				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(writeWait),
			); err != nil {
				s.logger.Debug("unable to write ping", "err", err)

				return
			}
		}
	}
}

// readLoop serves client requests until the connection drops.
// Pongs push the read deadline forward
func (s *wsSubscriber) readLoop(detach func(), latest func(context.Context) []byte) {
	defer detach()

	pongWait := s.pingInterval * 2

	s.conn.SetReadLimit(maxRequestSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				s.logger.Debug("live feed connection dropped", "err", err)
			}

			return
		}

		var req Request
		if err = json.Unmarshal(msg, &req); err != nil {
			s.logger.Debug("invalid live feed request", "err", err)

			continue
		}

		if req.Type != RequestLatest {
			continue
		}

		ctx, cancelFn := context.WithTimeout(context.Background(), latestLookupTimeout)
		data := latest(ctx)
		cancelFn()

		if data == nil {
			continue
		}

		if err = s.Send(data); err != nil {
			s.logger.Debug("unable to send latest payload", "err", err)

			return
		}
	}
}
