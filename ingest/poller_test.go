package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/p2prates/storage/types"
)

// newSample creates a dummy valid sample
func newSample(sell string) *types.RateSample {
	return &types.RateSample{
		CapturedAt:    time.Now(),
		Source:        "stub",
		BaseRate:      decimal.RequireFromString("36.50"),
		SecondaryRate: decimal.RequireFromString("228.25"),
		SellRate:      decimal.RequireFromString(sell),
		BuyRate:       decimal.RequireFromString("228.50"),
	}
}

// collector gathers outcomes delivered by the poller
type collector struct {
	outcomes []Outcome
	mu       sync.Mutex
}

func (c *collector) handle(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes = append(c.outcomes, o)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.outcomes)
}

func (c *collector) all() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)

	return out
}

func TestPoller_New(t *testing.T) {
	t.Parallel()

	t.Run("nil scraper", func(t *testing.T) {
		t.Parallel()

		p, err := New(nil)

		assert.Nil(t, p)
		assert.ErrorIs(t, err, errInvalidScraper)
	})

	t.Run("invalid interval", func(t *testing.T) {
		t.Parallel()

		p, err := New(&mockScraper{}, WithInterval(0))

		assert.Nil(t, p)
		assert.ErrorIs(t, err, errInvalidInterval)
	})

	t.Run("invalid scrape timeout", func(t *testing.T) {
		t.Parallel()

		p, err := New(&mockScraper{}, WithScrapeTimeout(-time.Second))

		assert.Nil(t, p)
		assert.ErrorIs(t, err, errInvalidTimeout)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		p, err := New(&mockScraper{})
		require.NoError(t, err)

		assert.Equal(t, DefaultInterval, p.Interval())
		assert.Equal(t, DefaultScrapeTimeout, p.scrapeTimeout)
		assert.NotNil(t, p.logger)
		assert.False(t, p.Running())
	})
}

func TestPoller_Start(t *testing.T) {
	t.Parallel()

	t.Run("first scrape is immediate", func(t *testing.T) {
		t.Parallel()

		var (
			c       = &collector{}
			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					return newSample("228.00"), nil
				},
			}
		)

		p, err := New(scraper, WithInterval(time.Hour))
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))
		t.Cleanup(func() {
			p.Stop()
		})

		require.Eventually(t, func() bool {
			return c.len() == 1
		}, time.Second, 5*time.Millisecond)

		outcome := c.all()[0]

		require.True(t, outcome.Success())
		assert.Equal(t, "228", outcome.Sample.SellRate.String())
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int64

		scraper := &mockScraper{
			scrapeFn: func(context.Context) (*types.RateSample, error) {
				calls.Add(1)

				return newSample("228.00"), nil
			},
		}

		p, err := New(scraper, WithInterval(time.Hour))
		require.NoError(t, err)

		assert.True(t, p.Start(func(Outcome) {}))
		assert.False(t, p.Start(func(Outcome) {}))
		assert.True(t, p.Running())

		require.True(t, p.Stop())
		p.Wait()

		assert.LessOrEqual(t, calls.Load(), int64(1))
	})

	t.Run("scrapes never overlap", func(t *testing.T) {
		t.Parallel()

		var (
			active  atomic.Int64
			maxSeen atomic.Int64
			c       = &collector{}

			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					current := active.Add(1)
					defer active.Add(-1)

					for {
						seen := maxSeen.Load()
						if current <= seen || maxSeen.CompareAndSwap(seen, current) {
							break
						}
					}

					time.Sleep(20 * time.Millisecond)

					return newSample("228.00"), nil
				},
			}
		)

		p, err := New(scraper, WithInterval(time.Millisecond))
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))

		require.Eventually(t, func() bool {
			return c.len() >= 4
		}, 2*time.Second, 5*time.Millisecond)

		p.Stop()
		p.Wait()

		assert.Equal(t, int64(1), maxSeen.Load())
	})

	t.Run("restart after stop", func(t *testing.T) {
		t.Parallel()

		var (
			c       = &collector{}
			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					return newSample("228.00"), nil
				},
			}
		)

		p, err := New(scraper, WithInterval(time.Hour))
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))
		require.Eventually(t, func() bool {
			return c.len() == 1
		}, time.Second, 5*time.Millisecond)

		require.True(t, p.Stop())
		p.Wait()

		require.True(t, p.Start(c.handle))
		require.Eventually(t, func() bool {
			return c.len() == 2
		}, time.Second, 5*time.Millisecond)

		p.Stop()
	})
}

func TestPoller_Stop(t *testing.T) {
	t.Parallel()

	t.Run("not running", func(t *testing.T) {
		t.Parallel()

		p, err := New(&mockScraper{})
		require.NoError(t, err)

		assert.False(t, p.Stop())
	})

	t.Run("in-flight outcome is dropped", func(t *testing.T) {
		t.Parallel()

		var (
			entered = make(chan struct{})
			release = make(chan struct{})
			c       = &collector{}

			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					close(entered)
					<-release

					return newSample("228.00"), nil
				},
			}
		)

		p, err := New(scraper, WithInterval(time.Millisecond))
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))

		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatal("scrape not started")
		}

		require.True(t, p.Stop())
		assert.False(t, p.Running())

		close(release)
		p.Wait()

		assert.Zero(t, c.len())
	})

	t.Run("no ticks after stop", func(t *testing.T) {
		t.Parallel()

		var (
			calls   atomic.Int64
			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					calls.Add(1)

					return newSample("228.00"), nil
				},
			}
		)

		p, err := New(scraper, WithInterval(5*time.Millisecond))
		require.NoError(t, err)

		require.True(t, p.Start(func(Outcome) {}))

		require.Eventually(t, func() bool {
			return calls.Load() >= 2
		}, time.Second, time.Millisecond)

		require.True(t, p.Stop())
		p.Wait()

		stoppedAt := calls.Load()

		time.Sleep(30 * time.Millisecond)

		assert.Equal(t, stoppedAt, calls.Load())
	})
}

func TestPoller_Failures(t *testing.T) {
	t.Parallel()

	t.Run("scrape error keeps polling", func(t *testing.T) {
		t.Parallel()

		var (
			scrapeErr = errors.New("upstream down")
			c         = &collector{}

			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					return nil, scrapeErr
				},
			}
		)

		p, err := New(scraper, WithInterval(time.Millisecond))
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))

		require.Eventually(t, func() bool {
			return c.len() >= 3
		}, time.Second, time.Millisecond)

		p.Stop()
		p.Wait()

		for _, outcome := range c.all() {
			assert.False(t, outcome.Success())
			assert.ErrorIs(t, outcome.Err, scrapeErr)
		}
	})

	t.Run("scrape panic is a failed outcome", func(t *testing.T) {
		t.Parallel()

		var (
			c       = &collector{}
			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					panic("parser exploded")
				},
			}
		)

		p, err := New(scraper, WithInterval(time.Millisecond))
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))

		require.Eventually(t, func() bool {
			return c.len() >= 2
		}, time.Second, time.Millisecond)

		p.Stop()
		p.Wait()

		outcome := c.all()[0]

		assert.False(t, outcome.Success())
		assert.ErrorContains(t, outcome.Err, "parser exploded")
	})

	t.Run("empty sample is a failed outcome", func(t *testing.T) {
		t.Parallel()

		c := &collector{}

		p, err := New(&mockScraper{}, WithInterval(time.Hour))
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))

		require.Eventually(t, func() bool {
			return c.len() == 1
		}, time.Second, time.Millisecond)

		p.Stop()

		assert.ErrorIs(t, c.all()[0].Err, errEmptySample)
	})

	t.Run("invalid sample is a failed outcome", func(t *testing.T) {
		t.Parallel()

		var (
			c = &collector{}

			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					sample := newSample("228.00")
					sample.Source = ""

					return sample, nil
				},
			}
		)

		p, err := New(scraper, WithInterval(time.Hour))
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))

		require.Eventually(t, func() bool {
			return c.len() == 1
		}, time.Second, time.Millisecond)

		p.Stop()

		outcome := c.all()[0]

		assert.False(t, outcome.Success())
		assert.ErrorIs(t, outcome.Err, errInvalidSample)
	})

	t.Run("scrape timeout", func(t *testing.T) {
		t.Parallel()

		var (
			release = make(chan struct{})
			c       = &collector{}

			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					<-release

					return newSample("228.00"), nil
				},
			}
		)

		t.Cleanup(func() {
			close(release)
		})

		p, err := New(
			scraper,
			WithInterval(time.Hour),
			WithScrapeTimeout(10*time.Millisecond),
		)
		require.NoError(t, err)

		require.True(t, p.Start(c.handle))

		require.Eventually(t, func() bool {
			return c.len() == 1
		}, time.Second, time.Millisecond)

		p.Stop()

		assert.ErrorIs(t, c.all()[0].Err, context.DeadlineExceeded)
	})

	t.Run("panicking handler is isolated", func(t *testing.T) {
		t.Parallel()

		var (
			c       = &collector{}
			scraper = &mockScraper{
				scrapeFn: func(context.Context) (*types.RateSample, error) {
					return newSample("228.00"), nil
				},
			}
		)

		p, err := New(scraper, WithInterval(time.Millisecond))
		require.NoError(t, err)

		p.Subscribe(c.handle)

		require.True(t, p.Start(func(Outcome) {
			panic("handler exploded")
		}))

		require.Eventually(t, func() bool {
			return c.len() >= 3
		}, time.Second, time.Millisecond)

		p.Stop()
		p.Wait()

		for _, outcome := range c.all() {
			assert.True(t, outcome.Success())
		}
	})
}

func TestPoller_Subscribe(t *testing.T) {
	t.Parallel()

	var (
		primary = &collector{}
		first   = &collector{}
		second  = &collector{}

		scraper = &mockScraper{
			scrapeFn: func(context.Context) (*types.RateSample, error) {
				return newSample("228.00"), nil
			},
		}
	)

	p, err := New(scraper, WithInterval(time.Hour))
	require.NoError(t, err)

	p.Subscribe(first.handle)
	unsubscribe := p.Subscribe(second.handle)

	unsubscribe()

	require.True(t, p.Start(primary.handle))

	require.Eventually(t, func() bool {
		return primary.len() == 1 && first.len() == 1
	}, time.Second, time.Millisecond)

	p.Stop()
	p.Wait()

	assert.Zero(t, second.len())
}

func TestPoller_RepeatedSamples(t *testing.T) {
	t.Parallel()

	var (
		c       = &collector{}
		scrapes atomic.Int64
		fresh   atomic.Bool

		cached = newSample("228.00")

		scraper = &mockScraper{
			scrapeFn: func(context.Context) (*types.RateSample, error) {
				scrapes.Add(1)

				if fresh.Load() {
					return newSample("228.10"), nil
				}

				// Served again, as a cache would
				return cached, nil
			},
		}
	)

	p, err := New(scraper, WithInterval(5*time.Millisecond))
	require.NoError(t, err)

	require.True(t, p.Start(c.handle))

	require.Eventually(t, func() bool {
		return scrapes.Load() >= 5
	}, time.Second, time.Millisecond)

	// Every tick after the first one carried the same capture
	require.Equal(t, 1, c.len())
	assert.Same(t, cached, c.all()[0].Sample)

	fresh.Store(true)

	require.Eventually(t, func() bool {
		return c.len() >= 2
	}, time.Second, time.Millisecond)

	p.Stop()
	p.Wait()

	assert.NotEqual(t, cached.CapturedAt, c.all()[1].Sample.CapturedAt)
}
