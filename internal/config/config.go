package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// FileName is the batch config file name under the data root.
const FileName = "config.json"

// ErrMalformed is reported when config.json exists but cannot be decoded.
var ErrMalformed = errors.New("malformed batch config")

// Render modes accepted by AutoStartConfig.Mode.
const (
	ModeAll      = "all"
	ModeItems    = "items"
	ModeVehicles = "vehicles"
	ModeMod      = "mod"
)

// BatchConfig is the persisted, human-editable state of the icon batch.
// Field names match the keys operators already have in their config.json.
type BatchConfig struct {
	// SkipGuids lists assets that crashed the renderer. It only grows at runtime.
	SkipGuids []uuid.UUID      `json:"SkipGuids" mapstructure:"SkipGuids"`
	AutoStart *AutoStartConfig `json:"AutoStart" mapstructure:"AutoStart"`
}

// AutoStartConfig controls unattended generation on startup.
type AutoStartConfig struct {
	Enabled           bool      `json:"Enabled" mapstructure:"Enabled"`
	Mode              string    `json:"Mode" mapstructure:"Mode"`
	ModID             *uint64   `json:"ModId" mapstructure:"ModId"`
	GenerateItems     bool      `json:"GenerateItems" mapstructure:"GenerateItems"`
	GenerateVehicles  bool      `json:"GenerateVehicles" mapstructure:"GenerateVehicles"`
	ItemAngles        []float64 `json:"ItemAngles" mapstructure:"ItemAngles"`
	VehicleAngles     []float64 `json:"VehicleAngles" mapstructure:"VehicleAngles"`
	QuitWhenDone      bool      `json:"QuitWhenDone" mapstructure:"QuitWhenDone"`
	StartDelaySeconds float64   `json:"StartDelaySeconds" mapstructure:"StartDelaySeconds"`
}

// DefaultAutoStart returns the auto-start policy written into a fresh config.
func DefaultAutoStart() *AutoStartConfig {
	return &AutoStartConfig{
		Enabled:           false,
		Mode:              ModeAll,
		GenerateItems:     true,
		GenerateVehicles:  true,
		StartDelaySeconds: 5,
	}
}

// Default returns a config with an empty skip list and auto-start disabled.
func Default() *BatchConfig {
	return &BatchConfig{
		SkipGuids: []uuid.UUID{},
		AutoStart: DefaultAutoStart(),
	}
}

// NormalizedMode lower-cases Mode; unknown or empty values fall back to "all".
func (a *AutoStartConfig) NormalizedMode() string {
	m := strings.ToLower(strings.TrimSpace(a.Mode))
	switch m {
	case ModeItems, ModeVehicles, ModeMod:
		return m
	default:
		return ModeAll
	}
}

// Decode reads a batch config file using viper. Keys are matched case-insensitively.
func Decode(path string) (*BatchConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var perr viper.ConfigParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil, err
	}
	cfg := Default()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if cfg.SkipGuids == nil {
		cfg.SkipGuids = []uuid.UUID{}
	}
	return cfg, nil
}

// Store owns the in-memory BatchConfig and its file.
type Store struct {
	path string
	cfg  *BatchConfig
	log  *slog.Logger
}

// Open loads path, creating it with defaults when absent. A malformed or
// unreadable file yields the default config (auto-start disabled); the file is
// left untouched until the next Save.
func Open(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{path: filepath.Clean(path), log: log}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		s.cfg = Default()
		if err := s.Save(); err != nil {
			log.Error("Failed to write default config", "path", s.path, "error", err)
		} else {
			log.Info("Created default config", "path", s.path)
		}
		return s
	}

	cfg, err := Decode(s.path)
	if err != nil {
		log.Warn("Using default config", "path", s.path, "error", err)
		cfg = Default()
	}
	s.cfg = cfg
	return s
}

// NewStore wraps an already loaded config. Used by tests and embedders.
func NewStore(path string, cfg *BatchConfig, log *slog.Logger) *Store {
	if cfg == nil {
		cfg = Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: filepath.Clean(path), cfg: cfg, log: log}
}

func (s *Store) Path() string { return s.path }

// Config returns the live config. Callers on the tick goroutine may mutate it
// and must call Save afterwards.
func (s *Store) Config() *BatchConfig { return s.cfg }

// Save writes the config as indented JSON.
func (s *Store) Save() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	return WriteFileAtomic(s.path, data)
}

// WriteFileAtomic writes data through a temp file and rename so that readers
// never observe a truncated file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".iconrender-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
