// Package logging configures runtime JSONL logging output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrick/logrotate/rotator"
)

const (
	rotateThresholdKB = 4 * 1024
	maxRolls          = 3
)

// Options selects level and extra sinks for New.
type Options struct {
	Level  string
	Stderr bool
}

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	Level  *slog.LevelVar
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// SetLevel changes the level of a running logger, e.g. after a config reload.
func (r Runtime) SetLevel(raw string) {
	if r.Level == nil {
		return
	}
	r.Level.Set(ParseLevel(raw))
}

// New builds a JSONL logger rooted at the resolved state path. The file is
// rotated once it grows past a few megabytes.
func New(opts Options) (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	r, err := rotator.New(path, rotateThresholdKB, true, maxRolls)
	if err != nil {
		return Runtime{}, err
	}

	var w io.Writer = r
	if opts.Stderr {
		w = io.MultiWriter(r, os.Stderr)
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(h)
	return Runtime{Logger: logger, Path: path, Level: level, closer: r}, nil
}

// ParseLevel maps debug/info/warn/error to slog levels; anything else is info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "audiomon", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "audiomon", "log.jsonl"), nil
}
