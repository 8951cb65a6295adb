package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days

	// FileName is the application log written under FileConfig.Dir.
	FileName = "iconrender.log"
)

// Config describes the application logger.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	Color  bool   // ANSI level colours on the console (text format only)
	File   FileConfig
}

// FileConfig describes rotated log files. Rotation parameters follow
// lumberjack semantics.
type FileConfig struct {
	Dir        string // base directory for logs
	StderrPath string // explicit stderr path for a child process, overrides Dir
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // Gzip rotated files
}

// ParseLevel maps a config string to a slog level. Unknown values are Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the application logger writing to console and, when File.Dir is
// set, to a rotated FileName in that directory. The returned closer releases
// the file.
func (c Config) New(console io.Writer) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	var handlers []slog.Handler
	if console != nil {
		switch {
		case strings.EqualFold(c.Format, "json"):
			handlers = append(handlers, slog.NewJSONHandler(console, opts))
		case c.Color:
			handlers = append(handlers, NewColorTextHandler(console, opts, true))
		default:
			handlers = append(handlers, slog.NewTextHandler(console, opts))
		}
	}
	var closer io.Closer = nopCloser{}
	if c.File.Dir != "" {
		f := c.File.rotator(filepath.Join(c.File.Dir, FileName))
		closer = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}
	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, opts)), closer
	case 1:
		return slog.New(handlers[0]), closer
	default:
		return slog.New(fanout(handlers)), closer
	}
}

// StderrWriter returns a rotating writer for the stderr of the child
// process name, or nil when neither Dir nor StderrPath is set.
func (c Config) StderrWriter(name string) (io.WriteCloser, error) {
	if name == "" {
		return nil, errors.New("process name required")
	}
	path := c.File.StderrPath
	if path == "" && c.File.Dir != "" {
		path = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	if path == "" {
		return nil, nil
	}
	return c.File.rotator(path), nil
}

func (f FileConfig) rotator(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
