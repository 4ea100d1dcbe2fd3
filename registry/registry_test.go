package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/p2prates/broadcast"
	"github.com/sig-0/p2prates/ingest"
	"github.com/sig-0/p2prates/pipeline"
	"github.com/sig-0/p2prates/storage"
	"github.com/sig-0/p2prates/storage/memory"
	"github.com/sig-0/p2prates/storage/types"
)

const testHandle = "127.0.0.1:8080"

// newManager creates a stopped pipeline that never scrapes successfully
func newManager(t *testing.T) *pipeline.Manager {
	t.Helper()

	poller, err := ingest.New(
		ingest.ScraperFunc(func(context.Context) (*types.RateSample, error) {
			return nil, errors.New("offline")
		}),
		ingest.WithInterval(time.Hour),
	)
	require.NoError(t, err)

	return pipeline.New(
		storage.NewSampleStore(memory.NewStorage()),
		broadcast.New(poller),
	)
}

func TestRegistry_SetClear(t *testing.T) {
	t.Parallel()

	var (
		r     = New()
		first = newManager(t)
		other = newManager(t)
	)

	m, handle := r.Get()
	assert.Nil(t, m)
	assert.Empty(t, handle)
	assert.False(t, r.IsRunning())

	require.True(t, first.Start())
	t.Cleanup(func() {
		first.Stop()
	})

	r.Set(first, testHandle)

	m, handle = r.Get()
	assert.Same(t, first, m)
	assert.Equal(t, testHandle, handle)
	assert.True(t, r.IsRunning())

	// Replacing does not stop the previous pipeline
	r.Set(other, "other")

	m, _ = r.Get()
	assert.Same(t, other, m)
	assert.True(t, first.IsRunning())

	// Clearing does not stop either
	r.Set(first, testHandle)
	r.Clear()

	m, _ = r.Get()
	assert.Nil(t, m)
	assert.False(t, r.IsRunning())
	assert.True(t, first.IsRunning())
}

func TestRegistry_Acquire(t *testing.T) {
	t.Parallel()

	t.Run("singleton", func(t *testing.T) {
		t.Parallel()

		var (
			r       = New()
			created atomic.Int64
			factory = func() (*pipeline.Manager, error) {
				created.Add(1)

				return newManager(t), nil
			}
		)

		first, isNew, err := r.Acquire(testHandle, factory)
		require.NoError(t, err)
		assert.True(t, isNew)

		second, isNew, err := r.Acquire(testHandle, factory)
		require.NoError(t, err)
		assert.False(t, isNew)

		assert.Same(t, first, second)
		assert.Equal(t, int64(1), created.Load())
	})

	t.Run("concurrent callers share one pipeline", func(t *testing.T) {
		t.Parallel()

		var (
			r       = New()
			created atomic.Int64
			factory = func() (*pipeline.Manager, error) {
				created.Add(1)

				return newManager(t), nil
			}

			wg       sync.WaitGroup
			managers = make([]*pipeline.Manager, 16)
		)

		for i := range managers {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				m, _, err := r.Acquire(testHandle, factory)
				assert.NoError(t, err)

				managers[i] = m
			}(i)
		}

		wg.Wait()

		assert.Equal(t, int64(1), created.Load())

		for _, m := range managers {
			assert.Same(t, managers[0], m)
		}
	})

	t.Run("handle mismatch", func(t *testing.T) {
		t.Parallel()

		r := New()
		r.Set(newManager(t), testHandle)

		_, _, err := r.Acquire("other", nil)

		assert.ErrorIs(t, err, errHandleMismatch)
	})

	t.Run("factory errors", func(t *testing.T) {
		t.Parallel()

		r := New()

		_, _, err := r.Acquire(testHandle, nil)
		assert.ErrorIs(t, err, errInvalidFactory)

		factoryErr := errors.New("invalid config")

		_, _, err = r.Acquire(testHandle, func() (*pipeline.Manager, error) {
			return nil, factoryErr
		})
		assert.ErrorIs(t, err, factoryErr)

		_, _, err = r.Acquire(testHandle, func() (*pipeline.Manager, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, errNilPipeline)

		assert.False(t, r.IsRunning())
	})
}

func TestRegistry_Release(t *testing.T) {
	t.Parallel()

	var (
		r = New()
		m = newManager(t)
	)

	r.Set(m, testHandle)

	assert.Nil(t, r.Release("other"))
	assert.True(t, r.IsRunning())

	assert.Same(t, m, r.Release(testHandle))
	assert.False(t, r.IsRunning())
	assert.Nil(t, r.Release(testHandle))
}
