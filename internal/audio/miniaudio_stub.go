//go:build !cgo || noaudio

package audio

import (
	"context"
	"log/slog"

	"github.com/rbright/audiomon/internal/coordinator"
	"github.com/rbright/audiomon/internal/device"
)

// Miniaudio is unavailable in builds without cgo.
type Miniaudio struct{}

func NewMiniaudio(*slog.Logger) (*Miniaudio, error) {
	return nil, ErrUnavailable
}

func (m *Miniaudio) Name() string { return "miniaudio" }

func (m *Miniaudio) Enumerate(context.Context) ([]device.AudioDevice, error) {
	return nil, ErrUnavailable
}

func (m *Miniaudio) CurrentDefault(context.Context, device.Class) (string, bool, error) {
	return "", false, ErrUnavailable
}

func (m *Miniaudio) SetDefault(context.Context, device.Class, string) error {
	return ErrUnavailable
}

func (m *Miniaudio) Subscribe(context.Context, func(coordinator.Change)) (coordinator.Subscription, error) {
	return nil, ErrUnavailable
}
