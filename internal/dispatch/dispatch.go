// Package dispatch submits item icons to the engine's own asynchronous
// capture facility and tracks them until the engine calls back.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/history"
	"github.com/loykin/iconrender/internal/metrics"
	"github.com/loykin/iconrender/internal/render"
)

// ErrEmptyCapture is reported when the engine completes without image data.
var ErrEmptyCapture = errors.New("capture returned no image data")

// Guard is the crash guard as seen by the dispatcher.
type Guard interface {
	ShouldSkip(id uuid.UUID) bool
	MarkStart(id uuid.UUID, name string, category asset.Category)
	MarkComplete()
	AddToSkipList(id uuid.UUID, name string)
}

// State is where a pending icon is between submission and callback.
type State string

const (
	// StateQueued: handed to the engine, capture not attempted yet.
	StateQueued State = "queued"
	// StateCaptured: the capture call returned; waiting for the callback.
	StateCaptured State = "captured"
)

// PendingItemIcon is an item render whose completion callback has not fired.
type PendingItemIcon struct {
	OutputPath  string       `json:"output_path"`
	State       State        `json:"state"`
	Asset       asset.Record `json:"asset"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

type Options struct {
	// ItemUnit is the pixel size of one inventory cell. Zero means 512.
	ItemUnit int
	History  *history.Recorder
}

// Dispatcher is used from the tick goroutine only; the engine must invoke
// completions there too.
type Dispatcher struct {
	engine  render.ItemEngine
	guard   Guard
	opts    Options
	log     *slog.Logger
	pending map[string]*PendingItemIcon
	byAsset map[uuid.UUID]string
}

// New installs the dispatcher's hooks on engine.
func New(engine render.ItemEngine, guard Guard, opts Options, log *slog.Logger) *Dispatcher {
	if opts.ItemUnit <= 0 {
		opts.ItemUnit = 512
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		engine:  engine,
		guard:   guard,
		opts:    opts,
		log:     log,
		pending: make(map[string]*PendingItemIcon),
		byAsset: make(map[uuid.UUID]string),
	}
	engine.SetHooks(d.Hooks())
	return d
}

// Frame is the icon size for an item: one unit per inventory cell.
func (d *Dispatcher) Frame(rec asset.Record) render.Frame {
	x, y := rec.Footprint()
	return render.Frame{Width: d.opts.ItemUnit * x, Height: d.opts.ItemUnit * y}
}

// Submit requests an icon for rec. It returns false when the asset is
// skip-listed or the engine rejected the request.
func (d *Dispatcher) Submit(ctx context.Context, rec asset.Record, outputPath string, angles asset.Vec3) bool {
	if d.guard.ShouldSkip(rec.ID) {
		d.log.Info("Skipping item, in skip list", "id", rec.ID, "name", rec.Name)
		d.finish(rec, "", time.Time{}, history.EventSkipped, nil)
		return false
	}

	now := time.Now()
	d.pending[outputPath] = &PendingItemIcon{OutputPath: outputPath, State: StateQueued, Asset: rec, SubmittedAt: now}
	d.byAsset[rec.ID] = outputPath
	metrics.SetPendingItems(len(d.pending))

	req := render.IconRequest{Asset: rec, Frame: d.Frame(rec), Angles: angles, OutputPath: outputPath}
	done := func(data []byte, err error) { d.complete(rec, outputPath, now, data, err) }

	err := render.Safely(func() error { return d.engine.RequestIcon(ctx, req, done) })
	if err != nil {
		// The request itself blew up: treat it as a faulted capture.
		_ = render.Invoke(d.Hooks(), rec, func() error { return err })
		d.remove(outputPath)
		d.finish(rec, outputPath, now, history.EventFailed, err)
		return false
	}
	return true
}

func (d *Dispatcher) complete(rec asset.Record, outputPath string, submitted time.Time, data []byte, err error) {
	if _, ok := d.pending[outputPath]; !ok {
		d.log.Warn("Completion for unknown item icon", "id", rec.ID, "path", outputPath)
		return
	}
	d.remove(outputPath)
	if err == nil && len(data) == 0 {
		// a suppressed fault leaves the engine with nothing to hand back
		err = ErrEmptyCapture
	}
	if err != nil {
		d.log.Error("Failed to capture icon for item", "id", rec.ID, "name", rec.Name, "error", err)
		d.finish(rec, outputPath, submitted, history.EventFailed, err)
		return
	}
	path, werr := render.WriteIcon(outputPath, data)
	if werr != nil {
		d.log.Error("Failed to write item icon", "id", rec.ID, "path", path, "error", werr)
		d.finish(rec, outputPath, submitted, history.EventFailed, werr)
		return
	}
	d.finish(rec, path, submitted, history.EventSucceeded, nil)
}

func (d *Dispatcher) remove(outputPath string) {
	if p, ok := d.pending[outputPath]; ok {
		if d.byAsset[p.Asset.ID] == outputPath {
			delete(d.byAsset, p.Asset.ID)
		}
		delete(d.pending, outputPath)
	}
	metrics.SetPendingItems(len(d.pending))
}

func (d *Dispatcher) finish(rec asset.Record, path string, submitted time.Time, typ history.EventType, err error) {
	cat := string(asset.CategoryItem)
	metrics.IncRender(cat, string(typ))
	ev := history.Event{
		Type:       typ,
		AssetID:    rec.ID,
		Name:       rec.Name,
		Category:   cat,
		Publisher:  rec.Publisher,
		OutputPath: path,
	}
	if !submitted.IsZero() {
		ev.Duration = time.Since(submitted)
		metrics.ObserveRenderDuration(cat, ev.Duration.Seconds())
	}
	if err != nil {
		ev.Error = err.Error()
	}
	d.opts.History.Record(ev)
}

// Pending is the number of submitted icons still waiting for a callback.
func (d *Dispatcher) Pending() int { return len(d.pending) }

// PendingIcons returns a snapshot ordered by submission.
func (d *Dispatcher) PendingIcons() []PendingItemIcon {
	out := make([]PendingItemIcon, 0, len(d.pending))
	for _, p := range d.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].OutputPath < out[j].OutputPath
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Hooks returns the interception points the engine calls around its
// synchronous capture step.
func (d *Dispatcher) Hooks() render.Hooks { return hooks{d} }

type hooks struct{ d *Dispatcher }

func (h hooks) Before(rec asset.Record) {
	h.d.guard.MarkStart(rec.ID, rec.Name, asset.CategoryItem)
}

func (h hooks) OnFault(rec asset.Record, err error) bool {
	h.d.log.Error("Exception while capturing icon for item", "id", rec.ID, "name", rec.Name, "error", err)
	h.d.guard.AddToSkipList(rec.ID, rec.Name)
	return true
}

func (h hooks) After(rec asset.Record) {
	h.d.guard.MarkComplete()
	if path, ok := h.d.byAsset[rec.ID]; ok {
		if p := h.d.pending[path]; p != nil {
			p.State = StateCaptured
		}
	}
}
