package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"exchange-rate-watcher/internal/config"
	"exchange-rate-watcher/internal/domain/model"
	"exchange-rate-watcher/internal/domain/ports"
	"exchange-rate-watcher/internal/metrics"
	"exchange-rate-watcher/pkg/logger"
)

var (
	ErrForcedFailure  = errors.New("forced failure")
	ErrAlreadyStarted = errors.New("poller already started")
	ErrStopped        = errors.New("poller stopped")
)

// bootstrapTick marks failures raised before the interval timer is armed.
const bootstrapTick int64 = -1

type State int32

const (
	StateIdle State = iota
	StateBootstrapping
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBootstrapping:
		return "bootstrapping"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Options struct {
	InitialStrategy model.StrategyIdentity
	Interval        time.Duration
	// ForcedFailureEvery treats every Nth tick, counted from 0, as a failed
	// fetch. Zero disables it.
	ForcedFailureEvery int
	// FetchTimeout bounds a single fetch. Zero leaves it to the transport.
	FetchTimeout      time.Duration
	BootstrapAttempts int
	BootstrapBackoff  time.Duration
}

func NewOptions(cfg config.PollerConfig) (Options, error) {
	strategy, err := cfg.Strategy()
	if err != nil {
		return Options{}, err
	}
	return Options{
		InitialStrategy:    strategy,
		Interval:           cfg.Interval,
		ForcedFailureEvery: cfg.ForcedFailureEvery,
		FetchTimeout:       cfg.FetchTimeout,
		BootstrapAttempts:  cfg.BootstrapAttempts,
		BootstrapBackoff:   cfg.BootstrapBackoff,
	}, nil
}

// Ticker is the subset of time.Ticker the poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t timeTicker) Stop()               { t.ticker.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{ticker: time.NewTicker(d)}
}

type Option func(*Poller)

// WithTicker replaces the interval timer. Tests use it to drive ticks by hand.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(p *Poller) {
		p.newTicker = newTicker
	}
}

// Poller keeps the latest snapshot of the rate feed up to date, falling back
// to the other wire format whenever a fetch fails.
//
// All loop state lives on the loop goroutine. Fetches run on a worker
// goroutine and at most one is outstanding; ticks that arrive meanwhile are
// dropped.
type Poller struct {
	source    ports.RateSource
	opts      Options
	log       *logger.Logger
	metrics   *metrics.Metrics
	newTicker func(time.Duration) Ticker

	snapshots  *stream[*model.Snapshot]
	strategies *stream[model.StrategyIdentity]
	failures   *stream[model.FetchFailure]

	state  atomic.Int32
	active atomic.Int32
	latest atomic.Pointer[model.Snapshot]

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ ports.RatesWatcher = (*Poller)(nil)

type fetchResult struct {
	strategy model.StrategyIdentity
	tick     int64
	snapshot *model.Snapshot
	err      error
	elapsed  time.Duration
}

func NewPoller(source ports.RateSource, opts Options, m *metrics.Metrics, log *logger.Logger, options ...Option) *Poller {
	if opts.BootstrapAttempts < 1 {
		opts.BootstrapAttempts = 1
	}

	p := &Poller{
		source:     source,
		opts:       opts,
		log:        log,
		metrics:    m,
		newTicker:  newTimeTicker,
		snapshots:  newStream[*model.Snapshot]("snapshot", log),
		strategies: newStream[model.StrategyIdentity]("strategy", log),
		failures:   newStream[model.FetchFailure]("failure", log),
		done:       make(chan struct{}),
	}
	p.active.Store(int32(opts.InitialStrategy))

	for _, option := range options {
		option(p)
	}
	return p
}

// Start performs the bootstrap fetch and arms the interval timer on a new
// goroutine. It returns immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state.Store(int32(StateBootstrapping))

	p.log.Info("Starting rate poller",
		"strategy", p.opts.InitialStrategy.String(),
		"interval", p.opts.Interval,
		"forced_failure_every", p.opts.ForcedFailureEvery,
	)

	go p.run(loopCtx)
	return nil
}

// Stop cancels the timer and any outstanding fetch and waits for the loop to
// exit. Results of a fetch that completes afterwards are discarded. Stop is
// idempotent. It must not be called from a subscriber callback, since those
// run on the loop goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.stopped = true
	started := p.started
	cancel := p.cancel
	p.mu.Unlock()

	if !started {
		p.state.Store(int32(StateStopped))
		close(p.done)
		p.release()
		return
	}

	cancel()
	<-p.done
}

// Done is closed once the poller has stopped.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) State() string {
	return State(p.state.Load()).String()
}

func (p *Poller) ActiveStrategy() model.StrategyIdentity {
	return model.StrategyIdentity(p.active.Load())
}

// Snapshot returns the most recently published snapshot.
func (p *Poller) Snapshot() (*model.Snapshot, bool) {
	snapshot := p.latest.Load()
	return snapshot, snapshot != nil
}

func (p *Poller) SubscribeSnapshots(fn func(*model.Snapshot)) ports.Subscription {
	return p.snapshots.subscribe(fn)
}

func (p *Poller) SubscribeStrategy(fn func(model.StrategyIdentity)) ports.Subscription {
	return p.strategies.subscribe(fn)
}

func (p *Poller) SubscribeFailures(fn func(model.FetchFailure)) ports.Subscription {
	return p.failures.subscribe(fn)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer p.release()

	current := p.bootstrap(ctx, p.opts.InitialStrategy)
	if ctx.Err() != nil {
		return
	}

	p.state.Store(int32(StatePolling))
	ticker := p.newTicker(p.opts.Interval)
	defer ticker.Stop()

	var (
		tick    int64
		pending <-chan fetchResult
	)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Stopping rate poller")
			return

		case <-ticker.C():
			index := tick
			tick++
			if pending != nil {
				p.log.Debug("Dropping tick, fetch still in flight", "tick", index)
				p.metrics.TickDropped()
				continue
			}
			pending = p.startFetch(ctx, current, index)

		case result := <-pending:
			pending = nil
			if ctx.Err() != nil {
				return
			}
			current = p.handleTick(ctx, current, result)
		}
	}
}

// bootstrap fetches once with the initial strategy, falling back and retrying
// until a fetch succeeds or the attempts run out. The timer is armed
// afterwards either way.
func (p *Poller) bootstrap(ctx context.Context, strategy model.StrategyIdentity) model.StrategyIdentity {
	p.state.Store(int32(StateBootstrapping))
	p.metrics.SetActiveStrategy(strategy)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.BootstrapBackoff
	b.MaxInterval = p.opts.Interval
	b.Reset()

	for attempt := 1; ; attempt++ {
		var result fetchResult
		select {
		case <-ctx.Done():
			return strategy
		case result = <-p.startFetch(ctx, strategy, bootstrapTick):
		}
		if ctx.Err() != nil {
			return strategy
		}

		if result.err == nil {
			p.metrics.ObserveFetch(strategy, metrics.OutcomeSuccess, result.elapsed)
			p.publishSnapshot(ctx, result.snapshot)
			return strategy
		}

		p.metrics.ObserveFetch(strategy, metrics.OutcomeFailure, result.elapsed)
		strategy = p.fail(ctx, strategy, bootstrapTick, false, result.err)

		if attempt >= p.opts.BootstrapAttempts {
			p.log.Warn("Bootstrap did not produce a snapshot, continuing with timer",
				"attempts", attempt,
				"strategy", strategy.String(),
			)
			return strategy
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return strategy
		}
		select {
		case <-ctx.Done():
			return strategy
		case <-time.After(delay):
		}
	}
}

func (p *Poller) startFetch(ctx context.Context, strategy model.StrategyIdentity, tick int64) <-chan fetchResult {
	results := make(chan fetchResult, 1)

	go func() {
		fetchCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.opts.FetchTimeout > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, p.opts.FetchTimeout)
		}
		defer cancel()

		start := time.Now()
		snapshot, err := p.source.Fetch(fetchCtx, strategy)
		if err == nil && snapshot == nil {
			err = fmt.Errorf("%w: source returned no snapshot", model.ErrFetchFailed)
		}

		results <- fetchResult{
			strategy: strategy,
			tick:     tick,
			snapshot: snapshot,
			err:      err,
			elapsed:  time.Since(start),
		}
	}()

	return results
}

func (p *Poller) handleTick(ctx context.Context, current model.StrategyIdentity, result fetchResult) model.StrategyIdentity {
	forced := p.opts.ForcedFailureEvery > 0 && result.tick%int64(p.opts.ForcedFailureEvery) == 0

	err := result.err
	if err == nil && forced {
		err = fmt.Errorf("%w: watchdog tick %d", ErrForcedFailure, result.tick)
	}

	if err != nil {
		outcome := metrics.OutcomeFailure
		if forced {
			outcome = metrics.OutcomeForced
		}
		p.metrics.ObserveFetch(current, outcome, result.elapsed)
		return p.fail(ctx, current, result.tick, forced, err)
	}

	p.metrics.ObserveFetch(current, metrics.OutcomeSuccess, result.elapsed)
	p.publishSnapshot(ctx, result.snapshot)
	return current
}

// fail notifies failure subscribers and applies exactly one fallback.
func (p *Poller) fail(ctx context.Context, current model.StrategyIdentity, tick int64, forced bool, err error) model.StrategyIdentity {
	next := current.Next()

	p.log.Warn("Rate fetch failed, switching strategy",
		"from", current.String(),
		"to", next.String(),
		"tick", tick,
		"forced", forced,
		"error", err,
	)

	if ctx.Err() != nil {
		return current
	}
	p.failures.publish(model.FetchFailure{
		Strategy: current,
		Tick:     tick,
		Forced:   forced,
		Err:      err,
		At:       time.Now().UTC(),
	})

	p.active.Store(int32(next))
	p.metrics.ObserveFallback(current, next)
	p.metrics.SetActiveStrategy(next)

	if ctx.Err() != nil {
		return next
	}
	p.strategies.publish(next)
	return next
}

func (p *Poller) publishSnapshot(ctx context.Context, snapshot *model.Snapshot) {
	if ctx.Err() != nil {
		return
	}
	p.latest.Store(snapshot)
	p.metrics.ObserveSnapshot(snapshot)
	p.log.Debug("Published snapshot",
		"records", snapshot.Len(),
		"source", snapshot.Source.String(),
	)
	p.snapshots.publish(snapshot)
}

func (p *Poller) release() {
	p.state.Store(int32(StateStopped))
	if err := p.source.Close(); err != nil {
		p.log.Error("Failed to release rate source", "error", err)
	}
}
