// Package scheduler is the cooperative frame loop everything in the batch
// runs on. One goroutine executes, per tick, the closures posted since the
// previous tick and then every registered ticker in order. Nothing else
// touches core state.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Ticker is one step run on every frame.
type Ticker interface {
	Tick(ctx context.Context, now time.Time)
}

// TickerFunc adapts a function to Ticker.
type TickerFunc func(ctx context.Context, now time.Time)

func (f TickerFunc) Tick(ctx context.Context, now time.Time) { f(ctx, now) }

// Loop runs tickers on a fixed interval.
type Loop struct {
	interval time.Duration
	log      *slog.Logger
	tickers  []Ticker

	mu     sync.Mutex
	posted []func()

	quit     chan struct{}
	stopOnce sync.Once
	started  bool
}

func New(interval time.Duration, log *slog.Logger) *Loop {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{interval: interval, log: log, quit: make(chan struct{})}
}

// Add registers t. Tickers run in registration order. Add must not be called
// once Run has started.
func (l *Loop) Add(t Ticker) {
	l.tickers = append(l.tickers, t)
}

// Post schedules fn on the loop goroutine at the start of the next tick. It
// is safe to call from any goroutine.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
}

// Run blocks running ticks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	if l.started {
		return errors.New("scheduler already started")
	}
	l.started = true
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return nil
		case now := <-t.C:
			l.Step(ctx, now)
		}
	}
}

// Stop ends Run. Safe to call more than once and from any goroutine.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Step runs a single tick on the calling goroutine. Closures posted while
// the tick runs are deferred to the next one.
func (l *Loop) Step(ctx context.Context, now time.Time) {
	l.mu.Lock()
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range posted {
		l.guard("posted", func() { fn() })
	}
	for _, tk := range l.tickers {
		l.guard("ticker", func() { tk.Tick(ctx, now) })
	}
}

func (l *Loop) guard(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Recovered panic in scheduler", "kind", kind, "panic", r)
		}
	}()
	fn()
}

// Every wraps t so that it runs at most once per period. The first call
// runs immediately.
func Every(period time.Duration, t Ticker) Ticker {
	return &every{period: period, t: t}
}

type every struct {
	period time.Duration
	last   time.Time
	t      Ticker
}

func (e *every) Tick(ctx context.Context, now time.Time) {
	if !e.last.IsZero() && now.Sub(e.last) < e.period {
		return
	}
	e.last = now
	e.t.Tick(ctx, now)
}
