// Package app wires the renderer together: configuration, crash guard,
// both render paths, the batch enumerator and the tick loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/autostart"
	"github.com/loykin/iconrender/internal/batch"
	"github.com/loykin/iconrender/internal/catalog"
	"github.com/loykin/iconrender/internal/config"
	"github.com/loykin/iconrender/internal/crashguard"
	"github.com/loykin/iconrender/internal/dispatch"
	"github.com/loykin/iconrender/internal/env"
	"github.com/loykin/iconrender/internal/history"
	"github.com/loykin/iconrender/internal/history/factory"
	"github.com/loykin/iconrender/internal/logger"
	"github.com/loykin/iconrender/internal/metrics"
	"github.com/loykin/iconrender/internal/monitor"
	"github.com/loykin/iconrender/internal/queue"
	"github.com/loykin/iconrender/internal/render"
	"github.com/loykin/iconrender/internal/render/command"
	"github.com/loykin/iconrender/internal/scheduler"
	"github.com/loykin/iconrender/internal/server"
	"github.com/loykin/iconrender/internal/skiplist"
	"github.com/loykin/iconrender/pkg/client"
)

// LockFile guards the data root against a second instance.
const LockFile = "iconrender.lock"

// progressEvery is how often an active batch logs its outstanding work.
const progressEvery = 10 * time.Second

// ErrBusy is returned when a batch is requested while one is running.
var ErrBusy = errors.New("a batch is already in progress")

// Engine is a render binding that serves both paths and is ticked by the
// loop to drain item requests.
type Engine interface {
	render.Engine
	render.ItemEngine
	scheduler.Ticker
}

type Options struct {
	// Console receives log output. Nil means os.Stderr.
	Console io.Writer
	// Logger replaces the logger built from settings.
	Logger *slog.Logger
	// Catalog replaces the file catalog named in settings.
	Catalog catalog.Catalog
	// Engine replaces the render command.
	Engine Engine
	// Registerer receives the metrics collectors. Nil means the default registry.
	Registerer prometheus.Registerer
	// Quit is called when a batch asks to quit. Nil stops the loop.
	Quit func()
}

type App struct {
	settings config.Settings
	log      *slog.Logger
	closers  []io.Closer

	lock    *flock.Flock
	store   *config.Store
	skip    *skiplist.Store
	guard   *crashguard.Guard
	catalog catalog.Catalog
	engine  Engine
	queue   *queue.Queue
	items   *dispatch.Dispatcher
	batch   *batch.Enumerator
	monitor *monitor.Monitor
	auto    *autostart.Sequence
	loop    *scheduler.Loop
	history *history.Recorder
	servers []*http.Server
	reg     prometheus.Registerer

	status      atomic.Pointer[client.Status]
	completedAt *time.Time
	recovered   *crashguard.Marker
	closeOnce   sync.Once
}

// New builds every component. Nothing touches the output tree until Init.
func New(s config.Settings, opts Options) (*App, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	a := &App{settings: s, reg: opts.Registerer}

	a.log = opts.Logger
	if a.log == nil {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		var c io.Closer
		a.log, c = a.logConfig().New(console)
		a.closers = append(a.closers, c)
	}

	if err := os.MkdirAll(s.DataRoot, 0o750); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	a.lock = flock.New(filepath.Join(s.DataRoot, LockFile))

	a.store = config.Open(s.BatchConfigPath(), a.log)
	a.skip = skiplist.New(&a.store.Config().SkipGuids, a.store, a.log)
	a.guard = crashguard.New(s.DataRoot, a.skip, a.log)

	if s.History.Enabled {
		sink, err := factory.NewSinkFromDSN(a.historyDSN())
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		if c, ok := sink.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
		a.history = history.NewRecorder(a.log, sink)
	}

	a.catalog = opts.Catalog
	if a.catalog == nil {
		if s.Catalog.Path == "" {
			a.log.Warn("No catalog configured, batches will be empty")
			a.catalog = catalog.NewMemory()
		} else {
			a.catalog = catalog.NewFile(s.Catalog.Path, a.log)
		}
	}

	a.engine = opts.Engine
	if a.engine == nil {
		e, err := a.commandEngine()
		if err != nil {
			a.closeResources()
			return nil, err
		}
		a.engine = e
	}

	fitter := render.BoundsFitter{}
	a.queue = queue.New(a.engine, a.guard, queue.Options{
		HiddenObjects: s.Engine.HiddenObjects,
		Fitter:        fitter,
		History:       a.history,
	}, a.log)
	a.items = dispatch.New(a.engine, a.guard, dispatch.Options{
		ItemUnit: s.Output.ItemUnit,
		History:  a.history,
	}, a.log)
	a.batch = batch.New(a.catalog, a.queue, a.items, batch.Options{
		DataRoot:      s.DataRoot,
		VehicleWidth:  s.Output.VehicleWidth,
		VehicleHeight: s.Output.VehicleHeight,
		OverrideURL:   s.Output.OverrideURL,
	}, a.log)

	a.loop = scheduler.New(s.Scheduler.Tick, a.log)
	quit := opts.Quit
	if quit == nil {
		quit = a.loop.Stop
	}
	a.monitor = monitor.New(a.queue, a.items, monitor.Options{
		DataRoot: s.DataRoot,
		Interval: s.Scheduler.PollInterval,
		Quit:     quit,
		OnComplete: func(at time.Time) {
			a.completedAt = &at
		},
	}, a.log)
	a.auto = autostart.New(a.store.Config().AutoStart, a.catalog, a.batch, a.monitor, a.log)

	// Order matters: a batch submitted by auto-start is visible to the
	// render paths in the same tick, and the snapshot sees the result.
	a.loop.Add(a.auto)
	a.loop.Add(scheduler.TickerFunc(func(ctx context.Context, _ time.Time) { a.queue.Tick(ctx) }))
	a.loop.Add(a.engine)
	a.loop.Add(scheduler.TickerFunc(func(_ context.Context, now time.Time) { a.monitor.Tick(now) }))
	a.loop.Add(scheduler.Every(progressEvery, scheduler.TickerFunc(a.logProgress)))
	a.loop.Add(scheduler.TickerFunc(func(_ context.Context, now time.Time) { a.publish(now) }))
	a.publish(time.Now())
	return a, nil
}

func (a *App) logConfig() logger.Config {
	l := a.settings.Log
	return logger.Config{
		Level:  l.Level,
		Format: l.Format,
		Color:  l.Color,
		File: logger.FileConfig{
			Dir:        l.Dir,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}

// historyDSN resolves a relative sqlite path against the data root.
func (a *App) historyDSN() string {
	dsn := a.settings.History.DSN
	path := strings.TrimPrefix(dsn, "sqlite://")
	if path != dsn || !strings.Contains(dsn, "://") {
		if path != ":memory:" && !filepath.IsAbs(path) {
			return "sqlite://" + filepath.Join(a.settings.DataRoot, path)
		}
	}
	return dsn
}

func (a *App) commandEngine() (*command.Engine, error) {
	es := a.settings.Engine
	e := env.New()
	if es.UseOSEnv {
		e.FromOS()
	} else {
		e.Isolated()
	}
	for _, f := range es.EnvFiles {
		if err := e.LoadFile(f); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	e.SetPairs(es.Env)

	var stderr io.Writer
	errW, err := a.logConfig().StderrWriter("render")
	if err != nil {
		return nil, err
	}
	if errW != nil {
		a.closers = append(a.closers, errW)
		stderr = errW
	}
	return command.New(command.Config{
		Command: es.Command,
		WorkDir: es.WorkDir,
		Env:     e,
		Timeout: es.Timeout,
		Stderr:  stderr,
	}, a.log)
}

// Init takes the instance lock and runs crash recovery. It must be called
// once before Run or Step.
func (a *App) Init(ctx context.Context) error {
	ok, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another iconrender instance is using %s", a.settings.DataRoot)
	}

	reg := a.reg
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := metrics.Register(reg); err != nil {
		a.log.Warn("Metrics registration failed", "error", err)
	}
	metrics.SetSkipListSize(a.skip.Len())

	a.Recover()

	if f, ok := a.catalog.(*catalog.File); ok {
		f.LoadAsync(ctx)
	}
	a.publish(time.Now())
	return nil
}

// Recover consumes a leftover in-flight marker.
func (a *App) Recover() *crashguard.Marker {
	m := a.guard.CheckForCrashRecovery()
	if m != nil {
		a.recovered = m
		a.history.Record(history.Event{
			Type:     history.EventRecovered,
			AssetID:  m.ID,
			Name:     m.Name,
			Category: string(m.Category),
		})
	}
	return m
}

// Serve starts the HTTP listeners enabled in settings. Listener errors are
// logged.
func (a *App) Serve() {
	s := a.settings
	if s.Server.Enabled {
		srv := server.NewServer(s.Server.Listen, s.Server.BasePath, a, s.Metrics.Enabled && s.Metrics.Listen == s.Server.Listen)
		a.listen("api", srv)
	}
	if s.Metrics.Enabled && (!s.Server.Enabled || s.Metrics.Listen != s.Server.Listen) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		a.listen("metrics", &http.Server{
			Addr:              s.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		})
	}
}

func (a *App) listen(name string, srv *http.Server) {
	a.servers = append(a.servers, srv)
	a.log.Info("HTTP server listening", "server", name, "addr", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "server", name, "error", err)
		}
	}()
}

// Run drives the tick loop until ctx ends or a batch quits.
func (a *App) Run(ctx context.Context) error {
	err := a.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Step runs one tick on the calling goroutine.
func (a *App) Step(ctx context.Context, now time.Time) { a.loop.Step(ctx, now) }

// Stop ends Run.
func (a *App) Stop() { a.loop.Stop() }

// Start requests a batch on the next tick regardless of the auto-start
// Enabled flag. It does not wait for the loop.
func (a *App) Start(policy *config.AutoStartConfig) {
	a.loop.Post(func() {
		if !a.auto.Start(policy) {
			a.log.Warn("Batch already in progress, ignoring start request")
		}
	})
}

func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		a.loop.Stop()
		for _, srv := range a.servers {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := srv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
			cancel()
		}
		a.history.Close()
		if a.lock != nil && a.lock.Locked() {
			if err := a.lock.Unlock(); err != nil {
				a.log.Warn("Failed to release instance lock", "error", err)
			}
		}
		errs = append(errs, a.closeResources()...)
	})
	return errors.Join(errs...)
}

func (a *App) closeResources() []error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errs
}

func (a *App) Logger() *slog.Logger             { return a.log }
func (a *App) Settings() config.Settings        { return a.settings }
func (a *App) Guard() *crashguard.Guard         { return a.guard }
func (a *App) State() autostart.State           { return a.auto.State() }
func (a *App) Recovered() *crashguard.Marker    { return a.recovered }
func (a *App) Monitor() *monitor.Monitor        { return a.monitor }
func (a *App) SkipStore() *skiplist.Store       { return a.skip }
func (a *App) Enumerator() *batch.Enumerator    { return a.batch }
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.items }

func (a *App) logProgress(context.Context, time.Time) {
	if !a.monitor.Active() {
		return
	}
	a.log.Info("Batch in progress", "vehicles_queued", a.queue.Depth(), "items_pending", a.items.Pending(),
		"skipped", a.skip.Len())
}

// publish stores a status snapshot for readers on other goroutines.
func (a *App) publish(now time.Time) {
	st := client.Status{
		State:        string(a.auto.State()),
		BatchActive:  a.monitor.Active(),
		QueueDepth:   a.queue.Depth(),
		PendingItems: a.items.Pending(),
		SkipList:     a.skip.Len(),
		CompletedAt:  a.completedAt,
		UpdatedAt:    now,
	}
	for _, p := range a.items.PendingIcons() {
		st.PendingIcons = append(st.PendingIcons, client.PendingIcon{
			Asset:       toAsset(p.Asset.ID, p.Asset.Name, p.Asset.Category),
			OutputPath:  p.OutputPath,
			State:       string(p.State),
			SubmittedAt: p.SubmittedAt,
		})
	}
	if m, ok := a.guard.Current(); ok {
		in := toAsset(m.ID, m.Name, m.Category)
		st.InFlight = &in
	}
	if a.auto.State() != autostart.StateDisabled {
		sum, err := a.auto.Summary()
		st.LastBatch = &client.BatchSummary{
			Items:      sum.Items,
			Vehicles:   sum.Vehicles,
			Skipped:    sum.Skipped,
			Publishers: sum.Publishers,
		}
		if err != nil {
			st.LastError = err.Error()
		}
	}
	a.status.Store(&st)
}

func toAsset(id uuid.UUID, name string, cat asset.Category) client.Asset {
	return client.Asset{ID: id.String(), Name: name, Category: string(cat)}
}

// Status returns the snapshot published by the last tick.
func (a *App) Status() client.Status {
	if p := a.status.Load(); p != nil {
		return *p
	}
	return client.Status{}
}

// SkipList reads the skip list on the tick goroutine.
func (a *App) SkipList(ctx context.Context) ([]uuid.UUID, error) {
	out := make(chan []uuid.UUID, 1)
	a.loop.Post(func() { out <- a.skip.List() })
	select {
	case ids := <-out:
		return ids, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Skip adds id to the skip list on the tick goroutine.
func (a *App) Skip(ctx context.Context, id uuid.UUID, name string) (bool, error) {
	out := make(chan bool, 1)
	a.loop.Post(func() { out <- a.skip.Add(id, name) })
	select {
	case added := <-out:
		return added, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// StartBatch converts an API request into a forced auto-start run.
func (a *App) StartBatch(ctx context.Context, req client.BatchRequest) error {
	done := make(chan error, 1)
	policy := config.DefaultAutoStart()
	policy.Enabled = true
	policy.Mode = req.Mode
	policy.ModID = req.Publisher
	if req.GenerateItems != nil {
		policy.GenerateItems = *req.GenerateItems
	}
	if req.GenerateVehicles != nil {
		policy.GenerateVehicles = *req.GenerateVehicles
	}
	policy.ItemAngles = req.ItemAngles
	policy.VehicleAngles = req.VehicleAngles
	policy.QuitWhenDone = req.QuitWhenDone
	policy.StartDelaySeconds = 0
	a.loop.Post(func() {
		if !a.auto.Start(policy) {
			done <- ErrBusy
			return
		}
		done <- nil
	})
	return a.wait(ctx, done)
}

func (a *App) wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
