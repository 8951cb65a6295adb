// Package command binds the render contracts to an external render command.
// The command is started once per capture with the scene described in
// ICON_* environment variables and must write the PNG to stdout.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/env"
	"github.com/loykin/iconrender/internal/render"
)

// ExitNoGeometry is the exit status a render command uses to report that
// the asset has no model.
const ExitNoGeometry = 3

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Config configures the render command.
type Config struct {
	Command string
	WorkDir string
	Env     *env.Env
	Timeout time.Duration
	// Stderr receives the command's diagnostic output. Nil keeps only the
	// tail for error messages.
	Stderr io.Writer
	// ItemFitter frames item captures. Nil means render.BoundsFitter{}.
	ItemFitter render.Fitter
}

// Engine runs the render command. It implements render.Engine for vehicles
// and render.ItemEngine for items; item requests are drained one per Tick.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	hooks render.Hooks
	items []itemRequest
}

type itemRequest struct {
	ctx  context.Context
	req  render.IconRequest
	done render.Completion
}

func New(cfg Config, log *slog.Logger) (*Engine, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("render command is empty")
	}
	if cfg.Env == nil {
		cfg.Env = env.New()
	}
	if cfg.ItemFitter == nil {
		cfg.ItemFitter = render.BoundsFitter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, log: log}, nil
}

func (e *Engine) LoadScene(_ context.Context, rec asset.Record) (render.Scene, error) {
	return &scene{rec: rec}, nil
}

func (e *Engine) Capture(ctx context.Context, s render.Scene, frame render.Frame, extent render.Extent) ([]byte, error) {
	sc, ok := s.(*scene)
	if !ok {
		return nil, fmt.Errorf("scene %T was not created by this engine", s)
	}
	if sc.destroyed {
		return nil, errDestroyed
	}
	if sc.extent == nil {
		sc.extent = &extent
	}
	return e.run(ctx, sc.vars("vehicle", frame))
}

func (e *Engine) SetHooks(h render.Hooks) { e.hooks = h }

// RequestIcon queues an item capture. done is called from Tick.
func (e *Engine) RequestIcon(ctx context.Context, req render.IconRequest, done render.Completion) error {
	if done == nil {
		return errors.New("nil completion")
	}
	if req.Frame.Width <= 0 || req.Frame.Height <= 0 {
		return fmt.Errorf("invalid frame %dx%d", req.Frame.Width, req.Frame.Height)
	}
	e.items = append(e.items, itemRequest{ctx: ctx, req: req, done: done})
	return nil
}

// queued reports item requests not yet captured.
func (e *Engine) queued() int { return len(e.items) }

// Tick captures the oldest queued item. The capture runs between the
// installed hooks; done is invoked after they return.
func (e *Engine) Tick(_ context.Context, _ time.Time) {
	if e.queued() == 0 {
		return
	}
	it := e.items[0]
	e.items[0] = itemRequest{}
	e.items = e.items[1:]

	rec := it.req.Asset
	sc := &scene{rec: rec, reset: true}
	_ = sc.Rotate(it.req.Angles)
	ext := e.cfg.ItemFitter.Fit(rec, it.req.Frame)
	sc.extent = &ext

	var data []byte
	var capErr error
	_ = render.Invoke(e.hooks, rec, func() error {
		data, capErr = e.run(it.ctx, sc.vars("item", it.req.Frame))
		return capErr
	})
	it.done(data, capErr)
}

func (e *Engine) run(ctx context.Context, vars []string) ([]byte, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	cmd := buildCommand(ctx, e.cfg.Command)
	configureSysProcAttr(cmd)
	cmd.WaitDelay = time.Second
	if e.cfg.WorkDir != "" {
		cmd.Dir = e.cfg.WorkDir
	}
	cmd.Env = e.cfg.Env.Merge(vars)

	var stdout bytes.Buffer
	tail := &tailBuffer{max: 2048}
	cmd.Stdout = &stdout
	if e.cfg.Stderr != nil {
		cmd.Stderr = io.MultiWriter(e.cfg.Stderr, tail)
	} else {
		cmd.Stderr = tail
	}

	start := time.Now()
	err := cmd.Run()
	e.log.Debug("Render command finished", "duration", time.Since(start), "bytes", stdout.Len(), "error", err)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitNoGeometry {
			return nil, render.ErrNoGeometry
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("render command: %w", ctx.Err())
		}
		return nil, fmt.Errorf("render command: %w: %s", err, strings.TrimSpace(tail.String()))
	}
	out := stdout.Bytes()
	if !bytes.HasPrefix(out, pngSignature) {
		return nil, fmt.Errorf("render command produced %d bytes that are not a PNG", len(out))
	}
	return out, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	b   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.b = append(t.b, p...)
	if len(t.b) > t.max {
		t.b = t.b[len(t.b)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.b) }
