package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sig-0/p2prates/storage/types"
)

const (
	DefaultInterval      = time.Minute
	DefaultScrapeTimeout = time.Second * 120
)

var (
	errInvalidScraper  = errors.New("invalid scraper")
	errInvalidInterval = errors.New("invalid interval")
	errInvalidTimeout  = errors.New("invalid scrape timeout")
	errEmptySample     = errors.New("scrape yielded no sample")
	errInvalidSample   = errors.New("scrape yielded an invalid sample")
)

// subscription is a single registered outcome consumer
type subscription struct {
	handler Handler
	id      xid.ID
}

// Poller runs the scraper on a fixed delay and hands every outcome
// to its consumers. The next tick is armed only after the previous
// outcome was handled, so scrapes never overlap
type Poller struct {
	scraper Scraper
	logger  *slog.Logger

	timer   *time.Timer
	primary Handler
	subs    []subscription

	inFlight sync.WaitGroup

	interval      time.Duration
	scrapeTimeout time.Duration

	// epoch is bumped on every start / stop, so that
	// ticks belonging to a previous run drop their outcome
	epoch   uint64
	running bool

	// lastCapturedAt is the capture time of the last delivered sample.
	// A scraper serving a cached sample yields it again on later ticks
	lastCapturedAt time.Time

	mu sync.Mutex
}

// New creates a new Poller instance
func New(scraper Scraper, opts ...Option) (*Poller, error) {
	if scraper == nil {
		return nil, errInvalidScraper
	}

	p := &Poller{
		scraper:       scraper,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval:      DefaultInterval,
		scrapeTimeout: DefaultScrapeTimeout,
	}

	// Apply the options
	for _, opt := range opts {
		opt(p)
	}

	if p.interval <= 0 {
		return nil, errInvalidInterval
	}

	if p.scrapeTimeout <= 0 {
		return nil, errInvalidTimeout
	}

	return p, nil
}

// Start starts the poll loop, delivering every outcome to onUpdate
// (and any subscribers). The first scrape fires immediately.
// Returns false if the poller is already running
func (p *Poller) Start(onUpdate Handler) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Info("poller already running")

		return false
	}

	p.running = true
	p.epoch++
	p.primary = onUpdate

	epoch := p.epoch

	p.inFlight.Add(1)

	go p.tick(epoch)

	p.logger.Info(
		"poller started",
		"interval", p.interval,
		"scrape_timeout", p.scrapeTimeout,
	)

	return true
}

// Stop disarms the pending timer. A scrape that is in flight
// is not interrupted, but its outcome is dropped.
// Returns false if the poller was not running
func (p *Poller) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}

	p.running = false
	p.epoch++
	p.primary = nil

	if p.timer != nil {
		if p.timer.Stop() {
			// The tick will never run, release its slot
			p.inFlight.Done()
		}

		p.timer = nil
	}

	p.logger.Info("poller stopped")

	return true
}

// Wait blocks until no tick is in flight or armed.
// It only returns once the poller is stopped
func (p *Poller) Wait() {
	p.inFlight.Wait()
}

// Running returns true if the poll loop is armed
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.running
}

// Interval returns the configured poll delay
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Subscribe registers an additional outcome consumer, independent
// of the one passed to Start. Subscriptions survive restarts
func (p *Poller) Subscribe(h Handler) func() {
	id := xid.New()

	p.mu.Lock()
	p.subs = append(p.subs, subscription{
		handler: h,
		id:      id,
	})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.subs = slices.DeleteFunc(p.subs, func(s subscription) bool {
			return s.id == id
		})
	}
}

// tick runs a single scrape and re-arms the timer
func (p *Poller) tick(epoch uint64) {
	defer p.inFlight.Done()

	if !p.isCurrent(epoch) {
		return
	}

	outcome := p.scrape()

	p.mu.Lock()

	if !p.running || p.epoch != epoch {
		p.mu.Unlock()
		p.logger.Debug("dropping outcome of a stopped run")

		return
	}

	var handlers []Handler

	if p.isRepeat(outcome) {
		p.logger.Debug(
			"dropping already delivered sample",
			"captured_at", outcome.Sample.CapturedAt,
		)
	} else {
		if outcome.Success() {
			p.lastCapturedAt = outcome.Sample.CapturedAt
		}

		handlers = make([]Handler, 0, len(p.subs)+1)
		if p.primary != nil {
			handlers = append(handlers, p.primary)
		}

		for _, s := range p.subs {
			handlers = append(handlers, s.handler)
		}
	}

	p.mu.Unlock()

	for _, h := range handlers {
		p.dispatch(h, outcome)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.epoch != epoch {
		return
	}

	p.inFlight.Add(1)
	p.timer = time.AfterFunc(p.interval, func() {
		p.tick(epoch)
	})
}

// scrape runs the scraper, converting every failure mode
// (error, empty result, panic, timeout) into a failed outcome
func (p *Poller) scrape() Outcome {
	ctx, cancelFn := context.WithTimeout(context.Background(), p.scrapeTimeout)
	defer cancelFn()

	resCh := make(chan Outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- Outcome{Err: fmt.Errorf("scrape panicked: %v", r)}
			}
		}()

		sample, err := p.scraper.Scrape(ctx)

		resCh <- newOutcome(sample, err)
	}()

	var outcome Outcome

	select {
	case outcome = <-resCh:
	case <-ctx.Done():
		outcome = Outcome{Err: fmt.Errorf("scrape timed out after %s: %w", p.scrapeTimeout, ctx.Err())}
	}

	if !outcome.Success() {
		p.logger.Warn(
			"scrape failed",
			"err", outcome.Err,
		)

		return outcome
	}

	p.logger.Debug(
		"scrape completed",
		"source", outcome.Sample.Source,
		"sell_rate", outcome.Sample.SellRate,
		"buy_rate", outcome.Sample.BuyRate,
	)

	return outcome
}

// dispatch hands the outcome to a single consumer.
// A panicking consumer affects neither the others nor the loop
func (p *Poller) dispatch(h Handler, o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(
				"outcome handler panicked",
				"panic", r,
			)
		}
	}()

	h(o)
}

// isRepeat returns true if the outcome carries the last delivered sample.
// Must be called with the lock held
func (p *Poller) isRepeat(o Outcome) bool {
	return o.Success() &&
		!p.lastCapturedAt.IsZero() &&
		p.lastCapturedAt.Equal(o.Sample.CapturedAt)
}

func (p *Poller) isCurrent(epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.running && p.epoch == epoch
}

func newOutcome(sample *types.RateSample, err error) Outcome {
	if err != nil {
		return Outcome{Err: err}
	}

	if sample == nil {
		return Outcome{Err: errEmptySample}
	}

	if err := sample.Validate(); err != nil {
		return Outcome{Err: fmt.Errorf("%w: %w", errInvalidSample, err)}
	}

	return Outcome{Sample: sample}
}
