// Package autostart starts a batch without operator input once the catalog
// has loaded and the configured delay has passed.
package autostart

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/iconrender/internal/batch"
	"github.com/loykin/iconrender/internal/config"
)

type State string

const (
	StateDisabled          State = "disabled"
	StateWaitingForCatalog State = "waiting_for_catalog"
	StateWaitingDelay      State = "waiting_delay"
	StateActive            State = "active"
	StateDone              State = "done"
)

// Loader reports whether the catalog is still loading.
type Loader interface{ Loading() bool }

// Runner enumerates one batch.
type Runner interface {
	Run(ctx context.Context, req batch.Request) (batch.Summary, error)
}

// Monitor tracks the batch once submitted.
type Monitor interface {
	Begin(now time.Time, quitWhenDone bool)
	Active() bool
}

// Sequence is a ticker; it must only be driven from the tick goroutine.
type Sequence struct {
	catalog Loader
	runner  Runner
	monitor Monitor
	log     *slog.Logger

	state   State
	policy  *config.AutoStartConfig
	readyAt time.Time
	summary batch.Summary
	err     error
}

// New arms the sequence when policy is enabled.
func New(policy *config.AutoStartConfig, cat Loader, runner Runner, mon Monitor, log *slog.Logger) *Sequence {
	if log == nil {
		log = slog.Default()
	}
	s := &Sequence{catalog: cat, runner: runner, monitor: mon, log: log, state: StateDisabled}
	if policy == nil || !policy.Enabled {
		log.Info("AutoStart is disabled or not configured")
		return s
	}
	log.Info("AutoStart is enabled, waiting for assets to load")
	s.arm(policy)
	return s
}

// Start arms the sequence with policy regardless of its Enabled flag. It is
// ignored while a batch is already in progress.
func (s *Sequence) Start(policy *config.AutoStartConfig) bool {
	switch s.state {
	case StateWaitingForCatalog, StateWaitingDelay, StateActive:
		return false
	}
	if policy == nil {
		policy = config.DefaultAutoStart()
	}
	s.arm(policy)
	return true
}

func (s *Sequence) arm(policy *config.AutoStartConfig) {
	s.policy = policy
	s.state = StateWaitingForCatalog
	s.readyAt = time.Time{}
	s.summary, s.err = batch.Summary{}, nil
}

func (s *Sequence) State() State { return s.state }

// Summary returns the last batch submission and its error, if any.
func (s *Sequence) Summary() (batch.Summary, error) { return s.summary, s.err }

func (s *Sequence) Tick(ctx context.Context, now time.Time) {
	switch s.state {
	case StateWaitingForCatalog:
		if s.catalog.Loading() {
			return
		}
		delay := time.Duration(s.policy.StartDelaySeconds * float64(time.Second))
		if delay < 0 {
			delay = 0
		}
		s.log.Info("Assets loaded, waiting before starting icon generation", "delay", delay)
		s.readyAt = now.Add(delay)
		s.state = StateWaitingDelay

	case StateWaitingDelay:
		if now.Before(s.readyAt) {
			return
		}
		s.log.Info("Starting automatic icon generation", "mode", s.policy.NormalizedMode())
		s.summary, s.err = s.runner.Run(ctx, batch.RequestFrom(s.policy))
		if s.err != nil {
			s.log.Error("Error during icon generation", "error", s.err)
		}
		// whatever was submitted before a failure still has to drain
		s.monitor.Begin(now, s.policy.QuitWhenDone)
		s.state = StateActive
		s.log.Info("Icon generation queued, monitoring progress")

	case StateActive:
		if !s.monitor.Active() {
			s.state = StateDone
		}
	}
}
