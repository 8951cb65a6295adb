// Package crashguard keeps a one-slot write-ahead record of the asset being
// rendered so that a process crash can be attributed on the next start.
package crashguard

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/metrics"
	"github.com/loykin/iconrender/internal/skiplist"
)

// Guard drives the in-flight marker and feeds the skip list. It is used from
// the tick goroutine only.
type Guard struct {
	path    string
	skip    *skiplist.Store
	log     *slog.Logger
	current *Marker
}

// New returns a guard whose marker lives in dataRoot.
func New(dataRoot string, skip *skiplist.Store, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	if skip == nil {
		skip = skiplist.New(nil, nil, log)
	}
	return &Guard{path: filepath.Join(dataRoot, MarkerFile), skip: skip, log: log}
}

func (g *Guard) Path() string { return g.path }

// MarkStart records rec as in flight, replacing any previous marker.
func (g *Guard) MarkStart(id uuid.UUID, name string, category asset.Category) {
	m := Marker{ID: id, Name: name, Category: category}
	g.current = &m
	if err := WriteMarker(g.path, m); err != nil {
		g.log.Debug("Failed to write in-flight marker", "path", g.path, "error", err)
	}
}

// MarkComplete removes the marker. A missing marker is fine.
func (g *Guard) MarkComplete() {
	g.current = nil
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		g.log.Debug("Failed to remove in-flight marker", "path", g.path, "error", err)
	}
}

// Current returns the asset marked in flight by this process, if any.
func (g *Guard) Current() (Marker, bool) {
	if g.current == nil {
		return Marker{}, false
	}
	return *g.current, true
}

// CheckForCrashRecovery inspects a marker left by a previous run. A
// well-formed marker puts its asset on the skip list. The marker is deleted
// in every case. It returns the recovered marker, or nil.
func (g *Guard) CheckForCrashRecovery() *Marker {
	m, err := ReadMarker(g.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	defer func() {
		if rerr := os.Remove(g.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			g.log.Error("Failed to delete in-flight marker", "path", g.path, "error", rerr)
		}
	}()
	if err != nil {
		g.log.Error("Failed to read in-flight marker", "path", g.path, "error", err)
		return nil
	}
	g.log.Warn("Previous run crashed while rendering asset",
		"id", m.ID, "name", m.Name, "category", m.Category)
	g.skip.Add(m.ID, m.Name)
	metrics.IncCrashRecovery()
	return &m
}

func (g *Guard) ShouldSkip(id uuid.UUID) bool { return g.skip.Contains(id) }

func (g *Guard) AddToSkipList(id uuid.UUID, name string) { g.skip.Add(id, name) }

// Before, OnFault and After let engines drive the guard through
// render.Hooks.

func (g *Guard) Before(rec asset.Record) { g.MarkStart(rec.ID, rec.Name, rec.Category) }

func (g *Guard) OnFault(rec asset.Record, err error) bool {
	g.log.Error("Render call failed, skipping asset from now on",
		"id", rec.ID, "name", rec.Name, "category", rec.Category, "error", err)
	g.AddToSkipList(rec.ID, rec.Name)
	return true
}

func (g *Guard) After(asset.Record) { g.MarkComplete() }
