// Package iconrender is the embeddable face of the batch icon renderer.
package iconrender

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/iconrender/internal/app"
	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/catalog"
	"github.com/loykin/iconrender/internal/config"
	"github.com/loykin/iconrender/internal/metrics"
	iapi "github.com/loykin/iconrender/internal/server"
	"github.com/loykin/iconrender/pkg/client"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Settings = config.Settings

type AutoStart = config.AutoStartConfig

type Options = app.Options

type Engine = app.Engine

type Record = asset.Record

type Catalog = catalog.Catalog

type Status = client.Status

type BatchRequest = client.BatchRequest

// Renderer is a thin facade over internal/app.App.
type Renderer struct{ inner *app.App }

func New(s Settings, opts Options) (*Renderer, error) {
	a, err := app.New(s, opts)
	if err != nil {
		return nil, err
	}
	return &Renderer{inner: a}, nil
}

func (r *Renderer) Init(ctx context.Context) error { return r.inner.Init(ctx) }
func (r *Renderer) Serve()                         { r.inner.Serve() }
func (r *Renderer) Run(ctx context.Context) error  { return r.inner.Run(ctx) }
func (r *Renderer) Stop()                          { r.inner.Stop() }
func (r *Renderer) Close() error                   { return r.inner.Close() }
func (r *Renderer) Start(policy *AutoStart)        { r.inner.Start(policy) }
func (r *Renderer) Status() Status                 { return r.inner.Status() }
func (r *Renderer) SkipList(ctx context.Context) ([]uuid.UUID, error) {
	return r.inner.SkipList(ctx)
}
func (r *Renderer) Skip(ctx context.Context, id uuid.UUID, name string) (bool, error) {
	return r.inner.Skip(ctx, id, name)
}
func (r *Renderer) StartBatch(ctx context.Context, req BatchRequest) error {
	return r.inner.StartBatch(ctx, req)
}

// Handler exposes the status API for mounting in an existing mux.
func (r *Renderer) Handler(basePath string) http.Handler {
	return iapi.NewRouter(r.inner, basePath, false).Handler()
}

func DefaultSettings() Settings                     { return config.DefaultSettings() }
func LoadSettings(path string) (Settings, error)    { return config.LoadSettings(path) }
func NewMemoryCatalog(records ...Record) Catalog    { return catalog.NewMemory(records...) }
func NewFileCatalog(path string) Catalog            { return catalog.NewFile(path, nil) }
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// NewHTTPServer builds, without starting, a server exposing the API of r.
func NewHTTPServer(addr, basePath string, r *Renderer) *http.Server {
	return iapi.NewServer(addr, basePath, r.inner, false)
}
