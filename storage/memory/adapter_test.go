package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/p2prates/storage/types"
)

func newSample(sell string, capturedAt time.Time) *types.RateSample {
	return &types.RateSample{
		CapturedAt:    capturedAt,
		Source:        "stub",
		BaseRate:      decimal.RequireFromString("228.25"),
		SecondaryRate: decimal.RequireFromString("228.25"),
		SellRate:      decimal.RequireFromString(sell),
		BuyRate:       decimal.RequireFromString("228.50"),
	}
}

func TestStorage_LatestSample(t *testing.T) {
	t.Parallel()

	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		sample, err := NewStorage().LatestSample(context.Background())

		require.NoError(t, err)
		assert.Nil(t, sample)
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		var (
			s        = NewStorage()
			expected = newSample("228.00", time.Now())
			fixedNow = time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
		)

		s.now = func() time.Time {
			return fixedNow
		}

		require.NoError(t, s.SaveSample(context.Background(), expected))

		latest, err := s.LatestSample(context.Background())
		require.NoError(t, err)
		require.NotNil(t, latest)

		assert.True(t, expected.Equal(latest))
		assert.Equal(t, fixedNow, latest.CreatedAt)
		assert.Equal(t, fixedNow, expected.CreatedAt)
	})

	t.Run("latest is the last inserted", func(t *testing.T) {
		t.Parallel()

		var (
			s   = NewStorage()
			now = time.Now()
		)

		// Capture times intentionally out of order
		require.NoError(t, s.SaveSample(context.Background(), newSample("1", now)))
		require.NoError(t, s.SaveSample(context.Background(), newSample("2", now.Add(-time.Hour))))

		latest, err := s.LatestSample(context.Background())
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(2).Equal(latest.SellRate))
	})
}

func TestStorage_ListSamples(t *testing.T) {
	t.Parallel()

	var (
		s   = NewStorage()
		now = time.Now()
	)

	for i, sell := range []string{"1", "2", "3"} {
		require.NoError(
			t,
			s.SaveSample(context.Background(), newSample(sell, now.Add(time.Duration(i)*time.Second))),
		)
	}

	t.Run("newest first", func(t *testing.T) {
		t.Parallel()

		samples, err := s.ListSamples(context.Background(), 2)
		require.NoError(t, err)
		require.Len(t, samples, 2)

		assert.True(t, decimal.NewFromInt(3).Equal(samples[0].SellRate))
		assert.True(t, decimal.NewFromInt(2).Equal(samples[1].SellRate))
	})

	t.Run("limit above size", func(t *testing.T) {
		t.Parallel()

		samples, err := s.ListSamples(context.Background(), 100)
		require.NoError(t, err)

		assert.Len(t, samples, 3)
	})

	t.Run("returned samples are copies", func(t *testing.T) {
		t.Parallel()

		samples, err := s.ListSamples(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, samples, 1)

		samples[0].Source = "mutated"

		latest, err := s.LatestSample(context.Background())
		require.NoError(t, err)

		assert.Equal(t, types.Source("stub"), latest.Source)
	})
}
