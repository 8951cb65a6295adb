// Package monitor polls the two render paths and declares a batch complete
// once neither has outstanding work.
package monitor

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/iconrender/internal/metrics"
)

// CompletionFile is written under the data root when a batch drains.
const CompletionFile = "generation_complete.txt"

// Depth reports queued vehicle jobs.
type Depth interface{ Depth() int }

// Pending reports item icons still awaiting their callback.
type Pending interface{ Pending() int }

type Options struct {
	DataRoot string
	// Interval between polls. Zero means one second.
	Interval time.Duration
	// Quit is called after the completion file when the batch asked for it.
	Quit func()
	// OnComplete, if set, observes every completed batch.
	OnComplete func(at time.Time)
}

// Monitor is driven by the tick goroutine.
type Monitor struct {
	vehicles Depth
	items    Pending
	opts     Options
	log      *slog.Logger

	active       bool
	quitWhenDone bool
	last         time.Time
	started      time.Time
}

func New(vehicles Depth, items Pending, opts Options, log *slog.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{vehicles: vehicles, items: items, opts: opts, log: log}
}

// Begin marks a batch active. The first poll happens one interval later so
// that the engine has a chance to pick work up.
func (m *Monitor) Begin(now time.Time, quitWhenDone bool) {
	m.active = true
	m.quitWhenDone = quitWhenDone
	m.last = now
	m.started = now
	metrics.SetBatchActive(true)
}

func (m *Monitor) Active() bool { return m.active }

// Outstanding is the number of vehicle jobs plus pending item icons.
func (m *Monitor) Outstanding() int { return m.vehicles.Depth() + m.items.Pending() }

// Tick polls at most once per interval and reports whether the batch
// completed on this call.
func (m *Monitor) Tick(now time.Time) bool {
	if !m.active || now.Sub(m.last) < m.opts.Interval {
		return false
	}
	m.last = now
	if n := m.Outstanding(); n > 0 {
		m.log.Debug("Batch in progress", "outstanding", n)
		return false
	}

	m.active = false
	metrics.SetBatchActive(false)
	metrics.IncBatchCompleted()
	m.log.Info("Icon generation complete", "elapsed", now.Sub(m.started).Round(time.Millisecond))

	path := filepath.Join(m.opts.DataRoot, CompletionFile)
	if err := os.WriteFile(path, []byte(now.Format(time.RFC3339Nano)), 0o600); err != nil {
		m.log.Warn("Failed to write completion file", "path", path, "error", err)
	}
	if m.opts.OnComplete != nil {
		m.opts.OnComplete(now)
	}
	if m.quitWhenDone && m.opts.Quit != nil {
		m.log.Info("QuitWhenDone is enabled, shutting down")
		m.opts.Quit()
	}
	return true
}
