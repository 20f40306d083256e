package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/audiomon/internal/config"
	"github.com/rbright/audiomon/internal/coordinator"
)

var (
	// ErrReadOnly is returned by backends that can observe but not change defaults.
	ErrReadOnly = errors.New("audio backend cannot change the default device")
	// ErrUnavailable is returned when a backend was not compiled into this binary.
	ErrUnavailable = errors.New("audio backend unavailable in this build")
)

// Backend is a coordinator backend that can describe itself.
type Backend interface {
	coordinator.Backend
	Name() string
}

// Open constructs the backend named by cfg.Backend.
func Open(cfg config.Audio, appName string, logger *slog.Logger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", config.BackendPulse:
		return NewPulse(cfg.Server, appName, logger), nil
	case config.BackendMiniaudio:
		m, err := NewMiniaudio(logger)
		if err != nil {
			return nil, fmt.Errorf("open miniaudio backend: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}
