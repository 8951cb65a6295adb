package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/loykin/iconrender/internal/asset"
)

// Filter narrows a catalog query. Zero values match everything.
type Filter struct {
	Category  asset.Category
	Publisher *uint64
}

// Match reports whether r passes the filter.
func (f Filter) Match(r asset.Record) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Publisher != nil && r.Publisher != *f.Publisher {
		return false
	}
	return true
}

// Catalog is the read-only directory of assets.
type Catalog interface {
	// Loading reports whether the catalog is still being populated.
	Loading() bool
	Query(ctx context.Context, f Filter) ([]asset.Record, error)
}

// Memory is an in-memory catalog, always loaded.
type Memory struct {
	records []asset.Record
}

func NewMemory(records ...asset.Record) *Memory {
	return &Memory{records: append([]asset.Record(nil), records...)}
}

func (m *Memory) Loading() bool { return false }

func (m *Memory) Query(_ context.Context, f Filter) ([]asset.Record, error) {
	return filter(m.records, f), nil
}

func filter(all []asset.Record, f Filter) []asset.Record {
	out := make([]asset.Record, 0, len(all))
	for _, r := range all {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// fileFormat is the on-disk layout of a catalog file.
type fileFormat struct {
	Assets []asset.Record `yaml:"assets"`
}

// File is a catalog read from a YAML document. Loading happens in the
// background; Loading reports true until it finishes.
type File struct {
	path    string
	log     *slog.Logger
	loading atomic.Bool
	records atomic.Pointer[[]asset.Record]
	err     atomic.Pointer[error]
}

func NewFile(path string, log *slog.Logger) *File {
	if log == nil {
		log = slog.Default()
	}
	f := &File{path: filepath.Clean(path), log: log}
	f.loading.Store(true)
	return f
}

// Load parses the file synchronously.
func (f *File) Load(ctx context.Context) error {
	defer f.loading.Store(false)
	records, err := ReadFile(f.path)
	if err != nil {
		f.err.Store(&err)
		return err
	}
	if err := ctx.Err(); err != nil {
		f.err.Store(&err)
		return err
	}
	f.records.Store(&records)
	f.log.Info("Catalog loaded", "path", f.path, "assets", len(records))
	return nil
}

// LoadAsync starts Load on its own goroutine.
func (f *File) LoadAsync(ctx context.Context) {
	go func() {
		if err := f.Load(ctx); err != nil {
			f.log.Error("Failed to load catalog", "path", f.path, "error", err)
		}
	}()
}

func (f *File) Loading() bool { return f.loading.Load() }

func (f *File) Query(_ context.Context, flt Filter) ([]asset.Record, error) {
	if f.Loading() {
		return nil, fmt.Errorf("catalog %s is still loading", f.path)
	}
	if errp := f.err.Load(); errp != nil {
		return nil, fmt.Errorf("catalog %s: %w", f.path, *errp)
	}
	p := f.records.Load()
	if p == nil {
		return nil, nil
	}
	return filter(*p, flt), nil
}

// ReadFile parses a YAML catalog file. Records are sorted by category then id
// so that batches are reproducible.
func ReadFile(path string) ([]asset.Record, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var doc fileFormat
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range doc.Assets {
		r := &doc.Assets[i]
		cat, err := asset.ParseCategory(string(r.Category))
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", r.ID, err)
		}
		r.Category = cat
	}
	sort.SliceStable(doc.Assets, func(i, j int) bool {
		a, b := doc.Assets[i], doc.Assets[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.ID.String() < b.ID.String()
	})
	return doc.Assets, nil
}
