// Package batch walks the catalog and hands every asset to the vehicle
// queue or the item dispatcher, then writes one override manifest per
// workshop publisher.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/loykin/iconrender/internal/asset"
	"github.com/loykin/iconrender/internal/catalog"
	"github.com/loykin/iconrender/internal/config"
	"github.com/loykin/iconrender/internal/queue"
)

// ExtrasDir is the output directory under the data root.
const ExtrasDir = "Extras"

// VehicleQueue accepts vehicle jobs.
type VehicleQueue interface {
	Enqueue(job queue.Job)
}

// ItemDispatcher accepts item icon requests.
type ItemDispatcher interface {
	Submit(ctx context.Context, rec asset.Record, outputPath string, angles asset.Vec3) bool
}

// Request selects what a batch renders.
type Request struct {
	Mode             string
	Publisher        *uint64
	GenerateItems    bool
	GenerateVehicles bool
	ItemAngles       asset.Vec3
	VehicleAngles    asset.Vec3
}

// RequestFrom converts the persisted auto-start policy.
func RequestFrom(a *config.AutoStartConfig) Request {
	if a == nil {
		a = config.DefaultAutoStart()
	}
	return Request{
		Mode:             a.NormalizedMode(),
		Publisher:        a.ModID,
		GenerateItems:    a.GenerateItems,
		GenerateVehicles: a.GenerateVehicles,
		ItemAngles:       asset.Vec3From(a.ItemAngles),
		VehicleAngles:    asset.Vec3From(a.VehicleAngles),
	}
}

// Summary reports what Run submitted.
type Summary struct {
	Items    int `json:"items"`
	Vehicles int `json:"vehicles"`
	// Skipped counts items the dispatcher refused.
	Skipped    int      `json:"skipped"`
	Publishers []uint64 `json:"publishers"`
	Manifests  []string `json:"manifests"`
}

// Empty reports whether nothing was handed to a render path.
func (s Summary) Empty() bool { return s.Items == 0 && s.Vehicles == 0 }

type Options struct {
	DataRoot      string
	VehicleWidth  int
	VehicleHeight int
	// OverrideURL is the manifest repository template.
	OverrideURL string
}

type Enumerator struct {
	catalog  catalog.Catalog
	vehicles VehicleQueue
	items    ItemDispatcher
	opts     Options
	log      *slog.Logger
}

func New(cat catalog.Catalog, vehicles VehicleQueue, items ItemDispatcher, opts Options, log *slog.Logger) *Enumerator {
	if opts.VehicleWidth <= 0 {
		opts.VehicleWidth = 1024
	}
	if opts.VehicleHeight <= 0 {
		opts.VehicleHeight = 1024
	}
	if opts.OverrideURL == "" {
		opts.OverrideURL = config.DefaultOverrideURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enumerator{catalog: cat, vehicles: vehicles, items: items, opts: opts, log: log}
}

// Root is the output directory for one category.
func (e *Enumerator) Root(cat asset.Category) string {
	return filepath.Join(e.opts.DataRoot, ExtrasDir, cat.Dir())
}

// OutputPath is where the icon for rec goes, without extension.
func (e *Enumerator) OutputPath(rec asset.Record) string {
	root := e.Root(rec.Category)
	if rec.IsWorkshop() {
		return filepath.Join(root, "Workshop", strconv.FormatUint(rec.Publisher, 10), rec.Key())
	}
	return filepath.Join(root, "Official", rec.Key())
}

// Run submits every asset req selects. It must be called on the tick
// goroutine.
func (e *Enumerator) Run(ctx context.Context, req Request) (Summary, error) {
	var sum Summary
	for _, cat := range []asset.Category{asset.CategoryItem, asset.CategoryVehicle} {
		if err := os.MkdirAll(e.Root(cat), 0o750); err != nil {
			return sum, fmt.Errorf("create output directory: %w", err)
		}
	}

	items, vehicles := false, false
	var publisher *uint64
	switch mode := strings.ToLower(strings.TrimSpace(req.Mode)); mode {
	case config.ModeItems:
		e.log.Info("Generating all item icons")
		items = true
	case config.ModeVehicles:
		e.log.Info("Generating all vehicle icons")
		vehicles = true
	case config.ModeMod:
		if req.Publisher == nil {
			e.log.Warn("Mode is 'mod' but no publisher id was given")
			return sum, nil
		}
		publisher = req.Publisher
		e.log.Info("Generating icons for mod", "publisher", *publisher)
		items, vehicles = req.GenerateItems, req.GenerateVehicles
	default:
		if mode != config.ModeAll {
			e.log.Warn("Unknown batch mode, using all", "mode", req.Mode)
		}
		e.log.Info("Generating all icons")
		items, vehicles = req.GenerateItems, req.GenerateVehicles
	}

	seen := map[uint64]struct{}{}
	if items {
		if err := e.enumerate(ctx, asset.CategoryItem, publisher, &sum, seen, func(rec asset.Record, out string) {
			if e.items.Submit(ctx, rec, out, req.ItemAngles) {
				sum.Items++
			} else {
				sum.Skipped++
			}
		}); err != nil {
			return sum, err
		}
	}
	if vehicles {
		if err := e.enumerate(ctx, asset.CategoryVehicle, publisher, &sum, seen, func(rec asset.Record, out string) {
			e.vehicles.Enqueue(queue.Job{
				Asset:      rec,
				OutputPath: out,
				Width:      e.opts.VehicleWidth,
				Height:     e.opts.VehicleHeight,
				Angles:     req.VehicleAngles,
			})
			sum.Vehicles++
		}); err != nil {
			return sum, err
		}
	}

	for p := range seen {
		sum.Publishers = append(sum.Publishers, p)
	}
	sort.Slice(sum.Publishers, func(i, j int) bool { return sum.Publishers[i] < sum.Publishers[j] })
	sort.Strings(sum.Manifests)
	e.log.Info("Icon generation queued", "items", sum.Items, "vehicles", sum.Vehicles,
		"skipped", sum.Skipped, "publishers", len(sum.Publishers))
	return sum, nil
}

func (e *Enumerator) enumerate(ctx context.Context, cat asset.Category, publisher *uint64, sum *Summary,
	seen map[uint64]struct{}, submit func(asset.Record, string)) error {
	records, err := e.catalog.Query(ctx, catalog.Filter{Category: cat, Publisher: publisher})
	if err != nil {
		return fmt.Errorf("query %s catalog: %w", cat, err)
	}

	pubs := map[uint64]struct{}{}
	for _, rec := range records {
		if rec.IsWorkshop() {
			pubs[rec.Publisher] = struct{}{}
			seen[rec.Publisher] = struct{}{}
		}
		submit(rec, e.OutputPath(rec))
	}

	for p := range pubs {
		dir := filepath.Join(e.Root(cat), "Workshop", strconv.FormatUint(p, 10))
		path, err := WriteManifest(dir, p, cat, e.opts.OverrideURL)
		if err != nil {
			// manifests are a side artifact; rendering continues
			e.log.Error("Failed to write override manifest", "path", path, "error", err)
			continue
		}
		e.log.Info("Wrote override manifest", "path", path, "publisher", p)
		sum.Manifests = append(sum.Manifests, path)
	}
	return nil
}
