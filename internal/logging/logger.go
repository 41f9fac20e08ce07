package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tmbatch/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives human-facing output. Defaults to stdout.
	Console io.Writer
	// FilePath, when set, receives a JSON copy of every record at info or
	// above, even when Level is quieter.
	FilePath    string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	addSource := opts.Development || level <= slog.LevelDebug

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	var primary slog.Handler
	switch format {
	case "json":
		primary = newRecordHandler(console, levelVar, addSource)
	case "console":
		primary = newPrettyHandler(console, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	path := strings.TrimSpace(opts.FilePath)
	if path == "" {
		return slog.New(primary), nil
	}
	file, err := openLogFile(path)
	if err != nil {
		return nil, err
	}
	return slog.New(TeeHandler(primary, newRecordHandler(file, min(level, slog.LevelInfo), addSource))), nil
}

// NewFromConfig creates a logger using application config defaults. The log
// file lives at <log_dir>/tmbatch.log.
func NewFromConfig(cfg *config.Config, console io.Writer) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Console: console})
	}
	opts := Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: console,
	}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.FilePath = filepath.Join(dir, "tmbatch.log")
	}
	return New(opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

func openLogFile(path string) (io.Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
