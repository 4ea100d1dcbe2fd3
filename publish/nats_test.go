package publish

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/p2prates/broadcast"
	"github.com/sig-0/p2prates/ingest"
	"github.com/sig-0/p2prates/storage/types"
)

type publishDelegate func(string, []byte) error

type mockConn struct {
	publishFn publishDelegate
}

func (m *mockConn) Publish(subject string, data []byte) error {
	if m.publishFn != nil {
		return m.publishFn(subject, data)
	}

	return nil
}

func TestNATSPublisher_New(t *testing.T) {
	t.Parallel()

	p, err := NewNATSPublisher(&mockConn{}, "")

	assert.Nil(t, p)
	assert.ErrorIs(t, err, errInvalidSubject)
}

func TestNATSPublisher_Handle(t *testing.T) {
	t.Parallel()

	t.Run("publishes the wire payload", func(t *testing.T) {
		t.Parallel()

		var (
			subject string
			data    []byte

			conn = &mockConn{
				publishFn: func(s string, d []byte) error {
					subject = s
					data = d

					return nil
				},
			}

			sample = &types.RateSample{
				CapturedAt: time.Date(2026, time.January, 13, 12, 0, 0, 0, time.UTC),
				Source:     "stub",
				SellRate:   decimal.RequireFromString("228.00"),
				BuyRate:    decimal.RequireFromString("228.50"),
			}
		)

		p, err := NewNATSPublisher(conn, DefaultSubject)
		require.NoError(t, err)

		p.Handle(ingest.Outcome{Sample: sample})

		assert.Equal(t, DefaultSubject, subject)

		var payload broadcast.Payload
		require.NoError(t, json.Unmarshal(data, &payload))

		assert.Equal(t, *broadcast.NewPayload(sample), payload)
	})

	t.Run("failed outcomes are skipped", func(t *testing.T) {
		t.Parallel()

		calls := 0

		p, err := NewNATSPublisher(&mockConn{
			publishFn: func(string, []byte) error {
				calls++

				return nil
			},
		}, DefaultSubject)
		require.NoError(t, err)

		p.Handle(ingest.Outcome{Err: errors.New("scrape failed")})

		assert.Zero(t, calls)
	})

	t.Run("publish errors are contained", func(t *testing.T) {
		t.Parallel()

		p, err := NewNATSPublisher(&mockConn{
			publishFn: func(string, []byte) error {
				return errors.New("nats down")
			},
		}, DefaultSubject)
		require.NoError(t, err)

		assert.NotPanics(t, func() {
			p.Handle(ingest.Outcome{Sample: &types.RateSample{Source: "stub"}})
		})
	})
}
