package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Recorder fans events out to sinks on a background goroutine so the tick
// goroutine never waits on a database. Events are dropped when the buffer
// is full. A nil *Recorder discards everything.
type Recorder struct {
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	wg     sync.WaitGroup
}

func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{sinks: sinks, log: log, timeout: 5 * time.Second, ch: make(chan Event, 256)}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record queues e. OccurredAt defaults to now.
func (r *Recorder) Record(e Event) {
	if r == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- e:
	default:
		r.log.Warn("History buffer full, dropping event", "type", e.Type, "asset", e.AssetID)
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for e := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if err := s.Send(ctx, e); err != nil {
				r.log.Error("History sink send failed", "type", e.Type, "asset", e.AssetID, "error", err)
			}
			cancel()
		}
	}
}

// Close flushes queued events and stops the worker. It does not close sinks.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
