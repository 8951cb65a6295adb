package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/catalog"
	"github.com/loykin/iconrender/internal/config"
	"github.com/loykin/iconrender/internal/crashguard"
	"github.com/loykin/iconrender/internal/monitor"
	"github.com/loykin/iconrender/internal/render"
	"github.com/loykin/iconrender/pkg/client"
)

var png = []byte("\x89PNG\r\n\x1a\nfake")

type scene struct{ rec asset.Record }

func (scene) ResetOrientation() error         { return nil }
func (scene) Hide(string) error               { return nil }
func (scene) NeutralizeAuxiliary() error      { return nil }
func (scene) Rotate(asset.Vec3) error         { return nil }
func (scene) PlaceCamera(render.Extent) error { return nil }
func (scene) Destroy()                        {}

type itemReq struct {
	req  render.IconRequest
	done render.Completion
}

// engine crashes on every asset named in crash, the way a native fault
// inside the host would.
type engine struct {
	hooks  render.Hooks
	items  []itemReq
	crash  map[string]bool
	loaded map[string]int
}

func (e *engine) LoadScene(_ context.Context, rec asset.Record) (render.Scene, error) {
	e.loaded[rec.Name]++
	return scene{rec}, nil
}

func (e *engine) Capture(_ context.Context, s render.Scene, _ render.Frame, _ render.Extent) ([]byte, error) {
	if e.crash[s.(scene).rec.Name] {
		panic("access violation")
	}
	return png, nil
}

func (e *engine) SetHooks(h render.Hooks) { e.hooks = h }

func (e *engine) RequestIcon(_ context.Context, req render.IconRequest, done render.Completion) error {
	e.items = append(e.items, itemReq{req, done})
	return nil
}

func (e *engine) Tick(context.Context, time.Time) {
	if len(e.items) == 0 {
		return
	}
	it := e.items[0]
	e.items = e.items[1:]
	var data []byte
	_ = render.Invoke(e.hooks, it.req.Asset, func() error {
		if e.crash[it.req.Asset.Name] {
			panic("access violation")
		}
		data = png
		return nil
	})
	it.done(data, nil)
}

var (
	car     = asset.Record{ID: uuid.New(), Name: "Hatchback", Category: asset.CategoryVehicle}
	truck   = asset.Record{ID: uuid.New(), Name: "Flatbed", Category: asset.CategoryVehicle, Publisher: 42}
	broken  = asset.Record{ID: uuid.New(), Name: "Broken Jeep", Category: asset.CategoryVehicle}
	rifle   = asset.Record{ID: uuid.New(), Name: "Rifle", Category: asset.CategoryItem, SizeX: 4, SizeY: 2}
	glitchy = asset.Record{ID: uuid.New(), Name: "Glitchy Hat", Category: asset.CategoryItem, Publisher: 42}
)

type fixture struct {
	app    *App
	engine *engine
	root   string
	quits  atomic.Int32
}

func newFixture(t *testing.T, root string) *fixture {
	t.Helper()
	return newFixtureLog(t, root, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newFixtureLog(t *testing.T, root string, log *slog.Logger) *fixture {
	t.Helper()
	s := config.DefaultSettings()
	s.DataRoot = root
	s.Scheduler.PollInterval = 10 * time.Millisecond
	f := &fixture{engine: &engine{crash: map[string]bool{}, loaded: map[string]int{}}, root: root}
	a, err := New(s, Options{
		Logger:     log,
		Catalog:    catalog.NewMemory(car, truck, broken, rifle, glitchy),
		Engine:     f.engine,
		Registerer: prometheus.NewRegistry(),
		Quit:       func() { f.quits.Add(1) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	f.app = a
	return f
}

// drain steps the loop until the batch quits.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 200 && f.quits.Load() == 0; i++ {
		now = now.Add(20 * time.Millisecond)
		f.app.Step(ctx, now)
	}
	require.EqualValues(t, 1, f.quits.Load(), "batch did not complete")
}

func TestBatchEndToEnd(t *testing.T) {
	f := newFixture(t, t.TempDir())
	f.engine.crash["Broken Jeep"] = true
	f.engine.crash["Glitchy Hat"] = true
	require.NoError(t, f.app.Init(context.Background()))

	f.app.Start(&config.AutoStartConfig{Mode: "all", GenerateItems: true, GenerateVehicles: true, QuitWhenDone: true})
	f.drain(t)

	extras := filepath.Join(f.root, "Extras")
	for _, p := range []string{
		filepath.Join(extras, "Vehicles", "Official", car.Key()+".png"),
		filepath.Join(extras, "Vehicles", "Workshop", "42", truck.Key()+".png"),
		filepath.Join(extras, "Items", "Official", rifle.Key()+".png"),
		filepath.Join(extras, "Items", "Workshop", "42", "config.yaml"),
		filepath.Join(extras, "Vehicles", "Workshop", "42", "config.yaml"),
		filepath.Join(f.root, monitor.CompletionFile),
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	for _, p := range []string{
		filepath.Join(extras, "Vehicles", "Official", broken.Key()+".png"),
		filepath.Join(extras, "Items", "Workshop", "42", glitchy.Key()+".png"),
		filepath.Join(f.root, crashguard.MarkerFile),
	} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}

	skip := f.app.SkipStore()
	assert.True(t, skip.Contains(broken.ID))
	assert.True(t, skip.Contains(glitchy.ID))
	assert.Equal(t, 2, skip.Len())

	reloaded, err := config.Decode(filepath.Join(f.root, config.FileName))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{broken.ID, glitchy.ID}, reloaded.SkipGuids)

	st := f.app.Status()
	assert.False(t, st.BatchActive)
	assert.Zero(t, st.QueueDepth)
	assert.Zero(t, st.PendingItems)
	require.NotNil(t, st.LastBatch)
	assert.Equal(t, 3, st.LastBatch.Vehicles)
	assert.Equal(t, 2, st.LastBatch.Items)
	assert.NotNil(t, st.CompletedAt)
}

func TestSecondRunSkipsKnownCrashers(t *testing.T) {
	root := t.TempDir()
	f := newFixture(t, root)
	f.engine.crash["Broken Jeep"] = true
	require.NoError(t, f.app.Init(context.Background()))
	f.app.Start(&config.AutoStartConfig{Mode: "vehicles", QuitWhenDone: true})
	f.drain(t)
	require.NoError(t, f.app.Close())

	assert.Equal(t, 1, f.engine.loaded["Broken Jeep"])

	g := newFixture(t, root)
	require.NoError(t, g.app.Init(context.Background()))
	assert.True(t, g.app.SkipStore().Contains(broken.ID))
	g.app.Start(&config.AutoStartConfig{Mode: "vehicles", QuitWhenDone: true})
	g.drain(t)
	assert.Zero(t, g.engine.loaded["Broken Jeep"])
	assert.Equal(t, 1, g.engine.loaded["Hatchback"])
}

func TestInitRecoversFromCrash(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, crashguard.WriteMarker(filepath.Join(root, crashguard.MarkerFile),
		crashguard.Marker{ID: car.ID, Name: car.Name, Category: car.Category}))

	f := newFixture(t, root)
	require.NoError(t, f.app.Init(context.Background()))

	m := f.app.Recovered()
	require.NotNil(t, m)
	assert.Equal(t, car.ID, m.ID)
	assert.True(t, f.app.SkipStore().Contains(car.ID))
	_, err := os.Stat(filepath.Join(root, crashguard.MarkerFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSingleInstance(t *testing.T) {
	root := t.TempDir()
	f := newFixture(t, root)
	require.NoError(t, f.app.Init(context.Background()))

	g := newFixture(t, root)
	err := g.app.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another iconrender instance")
}

func TestAPIRequestsRunOnLoop(t *testing.T) {
	f := newFixture(t, t.TempDir())
	require.NoError(t, f.app.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()

	id := uuid.New()
	added, err := f.app.Skip(ctx, id, "Operator Pick")
	require.NoError(t, err)
	assert.True(t, added)
	ids, err := f.app.SkipList(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	require.NoError(t, f.app.StartBatch(ctx, client.BatchRequest{Mode: "items", QuitWhenDone: true}))
	require.Eventually(t, func() bool { return f.quits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestStartBatchDefaultsGenerateFlags(t *testing.T) {
	cases := []struct {
		name     string
		req      client.BatchRequest
		items    int
		vehicles int
	}{
		{"omitted", client.BatchRequest{Mode: "all", QuitWhenDone: true}, 2, 3},
		{"vehicles off", client.BatchRequest{Mode: "all", GenerateVehicles: client.Bool(false), QuitWhenDone: true}, 2, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, t.TempDir())
			require.NoError(t, f.app.Init(context.Background()))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- f.app.Run(ctx) }()

			require.NoError(t, f.app.StartBatch(ctx, tc.req))
			require.Eventually(t, func() bool { return f.quits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
			cancel()
			require.NoError(t, <-done)

			st := f.app.Status()
			require.NotNil(t, st.LastBatch)
			assert.Equal(t, tc.items, st.LastBatch.Items)
			assert.Equal(t, tc.vehicles, st.LastBatch.Vehicles)
		})
	}
}

func TestProgressIsLoggedWhileActive(t *testing.T) {
	var buf bytes.Buffer
	f := newFixtureLog(t, t.TempDir(), slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, f.app.Init(context.Background()))
	f.app.Start(&config.AutoStartConfig{Mode: "vehicles"})

	ctx := context.Background()
	t0 := time.Now()
	f.app.Step(ctx, t0)
	f.app.Step(ctx, t0.Add(20*time.Millisecond))
	assert.NotContains(t, buf.String(), "Batch in progress")

	f.app.Step(ctx, t0.Add(progressEvery+time.Second))
	assert.Contains(t, buf.String(), "Batch in progress")
	assert.Contains(t, buf.String(), "vehicles_queued=1")
}
