package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Settings is the operator-facing TOML file (iconrender.toml). It describes
// where things live and which integrations run; batch state lives in config.json.
type Settings struct {
	DataRoot  string            `toml:"data_root" mapstructure:"data_root"`
	Log       LogSettings       `toml:"log" mapstructure:"log"`
	Scheduler SchedulerSettings `toml:"scheduler" mapstructure:"scheduler"`
	Engine    EngineSettings    `toml:"engine" mapstructure:"engine"`
	Output    OutputSettings    `toml:"output" mapstructure:"output"`
	Catalog   CatalogSettings   `toml:"catalog" mapstructure:"catalog"`
	Metrics   MetricsSettings   `toml:"metrics" mapstructure:"metrics"`
	Server    ServerSettings    `toml:"server" mapstructure:"server"`
	History   HistorySettings   `toml:"history" mapstructure:"history"`
}

type LogSettings struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"` // text | json
	Color      bool   `toml:"color" mapstructure:"color"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type SchedulerSettings struct {
	// Tick is the cooperative frame interval.
	Tick time.Duration `toml:"tick" mapstructure:"tick"`
	// PollInterval is how often the completion monitor checks outstanding work.
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
}

type EngineSettings struct {
	Command       string        `toml:"command" mapstructure:"command"`
	WorkDir       string        `toml:"workdir" mapstructure:"workdir"`
	Env           []string      `toml:"env" mapstructure:"env"`
	EnvFiles      []string      `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv      bool          `toml:"use_os_env" mapstructure:"use_os_env"`
	Timeout       time.Duration `toml:"timeout" mapstructure:"timeout"`
	HiddenObjects []string      `toml:"hidden_objects" mapstructure:"hidden_objects"`
}

type OutputSettings struct {
	VehicleWidth  int    `toml:"vehicle_width" mapstructure:"vehicle_width"`
	VehicleHeight int    `toml:"vehicle_height" mapstructure:"vehicle_height"`
	ItemUnit      int    `toml:"item_unit" mapstructure:"item_unit"`
	OverrideURL   string `toml:"override_url" mapstructure:"override_url"`
}

type CatalogSettings struct {
	Path string `toml:"path" mapstructure:"path"`
}

type MetricsSettings struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type ServerSettings struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type HistorySettings struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// DefaultOverrideURL points at the community icon mirror.
const DefaultOverrideURL = "https://cdn.jsdelivr.net/gh/SilKsPlugins/UnturnedIcons@images/modded/{publisher}/{category}/{key}.png"

// DefaultSettings returns settings that work without a settings file.
func DefaultSettings() Settings {
	return Settings{
		DataRoot: "data",
		Log: LogSettings{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
		Scheduler: SchedulerSettings{
			Tick:         20 * time.Millisecond,
			PollInterval: time.Second,
		},
		Engine: EngineSettings{
			Timeout:       2 * time.Minute,
			HiddenObjects: []string{"DepthMask"},
		},
		Output: OutputSettings{
			VehicleWidth:  1024,
			VehicleHeight: 1024,
			ItemUnit:      512,
			OverrideURL:   DefaultOverrideURL,
		},
		Metrics: MetricsSettings{Listen: ":9102"},
		Server:  ServerSettings{Listen: "127.0.0.1:8087", BasePath: "/api"},
		History: HistorySettings{DSN: "sqlite://history.db"},
	}
}

// LoadSettings reads a TOML settings file on top of DefaultSettings. An empty
// path returns the defaults. Relative paths inside the file are resolved
// against the file's directory.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode settings %s: %w", path, err)
	}
	base := filepath.Dir(path)
	s.DataRoot = resolve(base, s.DataRoot)
	s.Catalog.Path = resolve(base, s.Catalog.Path)
	s.Log.Dir = resolve(base, s.Log.Dir)
	for i, f := range s.Engine.EnvFiles {
		s.Engine.EnvFiles[i] = resolve(base, f)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks values that would otherwise fail deep inside the loop.
func (s Settings) Validate() error {
	if s.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}
	if s.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be > 0")
	}
	if s.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be > 0")
	}
	if s.Output.VehicleWidth <= 0 || s.Output.VehicleHeight <= 0 {
		return fmt.Errorf("output vehicle size must be positive")
	}
	if s.Output.ItemUnit <= 0 {
		return fmt.Errorf("output.item_unit must be positive")
	}
	return nil
}

// BatchConfigPath is the location of config.json under the data root.
func (s Settings) BatchConfigPath() string { return filepath.Join(s.DataRoot, FileName) }

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
