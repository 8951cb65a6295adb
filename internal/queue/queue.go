// Package queue is the vehicle render path: an unbounded FIFO drained at
// most one job per tick, each job contained on its own.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/history"
	"github.com/loykin/iconrender/internal/metrics"
	"github.com/loykin/iconrender/internal/render"
)

// Guard is the crash guard as seen by the queue.
type Guard interface {
	ShouldSkip(id uuid.UUID) bool
	MarkStart(id uuid.UUID, name string, category asset.Category)
	MarkComplete()
	AddToSkipList(id uuid.UUID, name string)
}

// Job is one vehicle icon to render. OutputPath has no extension.
type Job struct {
	Asset      asset.Record
	OutputPath string
	Width      int
	Height     int
	Angles     asset.Vec3
}

// Outcome is the terminal state of a job, or idle when nothing was queued.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what one Tick did.
type Result struct {
	Outcome  Outcome
	Job      Job
	Path     string
	Err      error
	Duration time.Duration
}

type Options struct {
	// HiddenObjects are child objects deactivated before capture.
	HiddenObjects []string
	Fitter        render.Fitter
	History       *history.Recorder
}

// Queue owns vehicle jobs from Enqueue until their single processing
// attempt. It is not safe for concurrent use; everything runs on the tick
// goroutine.
type Queue struct {
	engine render.Engine
	guard  Guard
	opts   Options
	log    *slog.Logger
	jobs   []Job
}

func New(engine render.Engine, guard Guard, opts Options, log *slog.Logger) *Queue {
	if opts.Fitter == nil {
		opts.Fitter = render.BoundsFitter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{engine: engine, guard: guard, opts: opts, log: log}
}

func (q *Queue) Enqueue(job Job) {
	q.jobs = append(q.jobs, job)
	metrics.SetQueueDepth(len(q.jobs))
}

// Depth is the number of jobs waiting.
func (q *Queue) Depth() int { return len(q.jobs) }

// Tick processes at most one job.
func (q *Queue) Tick(ctx context.Context) Result {
	if len(q.jobs) == 0 {
		return Result{Outcome: OutcomeIdle}
	}
	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	metrics.SetQueueDepth(len(q.jobs))

	res := q.process(ctx, job)
	q.report(res)
	return res
}

func (q *Queue) process(ctx context.Context, job Job) (res Result) {
	rec := job.Asset
	res.Job = job
	if q.guard.ShouldSkip(rec.ID) {
		q.log.Info("Skipping vehicle, in skip list", "id", rec.ID, "name", rec.Name)
		res.Outcome = OutcomeSkipped
		return res
	}

	start := time.Now()
	q.guard.MarkStart(rec.ID, rec.Name, rec.Category)
	defer func() {
		q.guard.MarkComplete()
		res.Duration = time.Since(start)
	}()

	var scene render.Scene
	err := render.Safely(func() error {
		s, err := q.engine.LoadScene(ctx, rec)
		if err != nil {
			return err
		}
		if s == nil {
			return render.ErrNoGeometry
		}
		scene = s
		return nil
	})
	if err != nil {
		q.log.Error("Failed to load model for vehicle", "id", rec.ID, "name", rec.Name, "error", err)
		q.guard.AddToSkipList(rec.ID, rec.Name)
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	defer func() {
		if derr := render.Safely(func() error { scene.Destroy(); return nil }); derr != nil {
			q.log.Error("Failed to destroy scene", "id", rec.ID, "error", derr)
		}
	}()

	q.log.Info("Capturing icon for vehicle", "id", rec.ID, "name", rec.Name)
	var path string
	err = render.Safely(func() error {
		var cerr error
		path, cerr = q.capture(ctx, scene, job)
		return cerr
	})
	if err != nil {
		q.log.Error("Failed to capture icon for vehicle", "id", rec.ID, "name", rec.Name, "error", err)
		var pe *render.PanicError
		if errors.As(err, &pe) {
			q.log.Error(string(pe.Stack))
		}
		q.guard.AddToSkipList(rec.ID, rec.Name)
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	res.Outcome, res.Path = OutcomeSucceeded, path
	return res
}

func (q *Queue) capture(ctx context.Context, s render.Scene, job Job) (string, error) {
	if err := s.ResetOrientation(); err != nil {
		return "", err
	}
	for _, name := range q.opts.HiddenObjects {
		if err := s.Hide(name); err != nil {
			return "", err
		}
	}
	if err := s.NeutralizeAuxiliary(); err != nil {
		return "", err
	}
	if p, ok := s.(render.Painter); ok && job.Asset.Paint != "" {
		if err := p.ApplyPaint(job.Asset.Paint); err != nil {
			return "", err
		}
	}
	if err := s.Rotate(job.Angles); err != nil {
		return "", err
	}
	frame := render.Frame{Width: job.Width, Height: job.Height}
	extent := q.opts.Fitter.Fit(job.Asset, frame)
	if err := s.PlaceCamera(extent); err != nil {
		return "", err
	}
	data, err := q.engine.Capture(ctx, s, frame, extent)
	if err != nil {
		return "", err
	}
	return render.WriteIcon(job.OutputPath, data)
}

func (q *Queue) report(res Result) {
	cat := string(asset.CategoryVehicle)
	metrics.IncRender(cat, string(res.Outcome))
	if res.Outcome != OutcomeSkipped {
		metrics.ObserveRenderDuration(cat, res.Duration.Seconds())
	}
	ev := history.Event{
		Type:       history.EventType(res.Outcome),
		AssetID:    res.Job.Asset.ID,
		Name:       res.Job.Asset.Name,
		Category:   cat,
		Publisher:  res.Job.Asset.Publisher,
		OutputPath: res.Path,
		Duration:   res.Duration,
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	q.opts.History.Record(ev)
}
