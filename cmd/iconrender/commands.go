package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/loykin/iconrender/internal/app"
	"github.com/loykin/iconrender/internal/config"
	"github.com/loykin/iconrender/internal/crashguard"
	"github.com/loykin/iconrender/internal/logger"
	"github.com/loykin/iconrender/internal/skiplist"
	"github.com/loykin/iconrender/pkg/client"
)

// command holds what every subcommand needs; out is where results go.
type command struct {
	global *GlobalFlags
	out    io.Writer
}

func (c command) settings() (config.Settings, error) {
	return config.LoadSettings(c.global.ConfigPath)
}

// Run starts the loop with the auto-start policy from config.json.
func (c command) Run(ctx context.Context, f RunFlags) error {
	s, err := c.settings()
	if err != nil {
		return err
	}
	if f.Daemonize {
		return daemonize(f.PidFile, f.LogFile)
	}
	if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
		defer func() { _ = removePidFile(f.PidFile) }()
	}
	return c.runApp(ctx, s, nil)
}

// Render runs one batch and returns when it has drained.
func (c command) Render(ctx context.Context, f RenderFlags) error {
	policy, err := renderPolicy(f)
	if err != nil {
		return err
	}
	if f.APIUrl != "" {
		api := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
		req := client.BatchRequest{
			Mode:             policy.Mode,
			Publisher:        policy.ModID,
			GenerateItems:    client.Bool(policy.GenerateItems),
			GenerateVehicles: client.Bool(policy.GenerateVehicles),
			ItemAngles:       policy.ItemAngles,
			VehicleAngles:    policy.VehicleAngles,
		}
		if err := api.StartBatch(ctx, req); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(c.out, "Batch started")
		return nil
	}
	s, err := c.settings()
	if err != nil {
		return err
	}
	return c.runApp(ctx, s, policy)
}

func renderPolicy(f RenderFlags) (*config.AutoStartConfig, error) {
	p := &config.AutoStartConfig{
		Enabled:           true,
		Mode:              f.Mode,
		GenerateItems:     f.Items,
		GenerateVehicles:  f.Vehicles,
		ItemAngles:        f.ItemAngles,
		VehicleAngles:     f.VehicleAngles,
		QuitWhenDone:      true,
		StartDelaySeconds: f.Delay.Seconds(),
	}
	if f.Publisher != 0 {
		pub := f.Publisher
		p.ModID = &pub
	}
	if p.NormalizedMode() == config.ModeMod && p.ModID == nil {
		return nil, errors.New("--mode mod requires --publisher")
	}
	for name, v := range map[string][]float64{"item-angles": f.ItemAngles, "vehicle-angles": f.VehicleAngles} {
		if len(v) != 0 && len(v) != 3 {
			return nil, fmt.Errorf("--%s takes three values, got %d", name, len(v))
		}
	}
	return p, nil
}

func (c command) runApp(ctx context.Context, s config.Settings, policy *config.AutoStartConfig) error {
	a, err := app.New(s, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.Init(ctx); err != nil {
		return err
	}
	a.Serve()
	if policy != nil {
		a.Start(policy)
	}
	a.Logger().Info("Renderer running", "data_root", s.DataRoot, "state", a.State())
	if err := a.Run(ctx); err != nil {
		return err
	}
	a.Logger().Info("Renderer stopped")
	return nil
}

// Recover consumes a leftover in-flight marker without rendering anything.
func (c command) Recover() error {
	s, err := c.settings()
	if err != nil {
		return err
	}
	return c.withLocalSkipList(s, func(log *slog.Logger, skip *skiplist.Store) error {
		m := crashguard.New(s.DataRoot, skip, log).CheckForCrashRecovery()
		if m == nil {
			_, _ = fmt.Fprintln(c.out, "No crash to recover from")
			return nil
		}
		_, _ = fmt.Fprintf(c.out, "Added %s (%s, %s) to the skip list\n", m.ID, m.Name, m.Category)
		return nil
	})
}

// Status prints the snapshot of a running instance.
func (c command) Status(ctx context.Context, f StatusFlags) error {
	api := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
	for {
		st, err := api.Status(ctx)
		if err != nil {
			return err
		}
		printJSON(c.out, st)
		if !f.Watch {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.Interval):
		}
	}
}

func (c command) SkipList(ctx context.Context, f SkipFlags) error {
	if f.APIUrl != "" {
		ids, err := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout}).SkipList(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			_, _ = fmt.Fprintln(c.out, id)
		}
		return nil
	}
	s, err := c.settings()
	if err != nil {
		return err
	}
	return c.withLocalSkipList(s, func(_ *slog.Logger, skip *skiplist.Store) error {
		for _, id := range skip.List() {
			_, _ = fmt.Fprintln(c.out, id)
		}
		return nil
	})
}

func (c command) SkipAdd(ctx context.Context, raw string, f SkipFlags) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid asset id %q: %w", raw, err)
	}
	if f.APIUrl != "" {
		added, err := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout}).Skip(ctx, id.String(), f.Name)
		if err != nil {
			return err
		}
		c.reportAdd(id, added)
		return nil
	}
	s, err := c.settings()
	if err != nil {
		return err
	}
	return c.withLocalSkipList(s, func(_ *slog.Logger, skip *skiplist.Store) error {
		added, err := skip.Insert(id, f.Name)
		if err != nil {
			return fmt.Errorf("save %s: %w", s.BatchConfigPath(), err)
		}
		c.reportAdd(id, added)
		return nil
	})
}

func (c command) reportAdd(id uuid.UUID, added bool) {
	if added {
		_, _ = fmt.Fprintf(c.out, "Added %s\n", id)
		return
	}
	_, _ = fmt.Fprintf(c.out, "%s is already in the skip list\n", id)
}

func (c command) SkipRemove(raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid asset id %q: %w", raw, err)
	}
	s, err := c.settings()
	if err != nil {
		return err
	}
	return c.withLocalSkipList(s, func(_ *slog.Logger, skip *skiplist.Store) error {
		removed, err := skip.Remove(id)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%s is not in the skip list", id)
		}
		_, _ = fmt.Fprintf(c.out, "Removed %s\n", id)
		return nil
	})
}

// withLocalSkipList opens config.json under the instance lock so that
// offline edits never race a running renderer.
func (c command) withLocalSkipList(s config.Settings, fn func(*slog.Logger, *skiplist.Store) error) error {
	log, closer := logger.Config{Level: s.Log.Level, Format: s.Log.Format, Color: s.Log.Color}.New(os.Stderr)
	defer func() { _ = closer.Close() }()

	if err := os.MkdirAll(s.DataRoot, 0o750); err != nil {
		return fmt.Errorf("create data root: %w", err)
	}
	lock := flock.New(filepath.Join(s.DataRoot, app.LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("a renderer is running on this data root; use --api-url")
	}
	defer func() { _ = lock.Unlock() }()

	store := config.Open(s.BatchConfigPath(), log)
	return fn(log, skiplist.New(&store.Config().SkipGuids, store, log))
}
