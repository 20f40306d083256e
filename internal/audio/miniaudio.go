//go:build cgo && !noaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/rbright/audiomon/internal/coordinator"
	"github.com/rbright/audiomon/internal/device"
)

// Miniaudio enumerates devices through miniaudio. It cannot change system
// defaults and has no change notifications, so it relies on the poll trigger.
type Miniaudio struct {
	logger *slog.Logger

	// miniaudio context init is not safe to run concurrently on every platform.
	mu sync.Mutex
}

func NewMiniaudio(logger *slog.Logger) (*Miniaudio, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Miniaudio{logger: logger}, nil
}

func (m *Miniaudio) Name() string { return "miniaudio" }

func (m *Miniaudio) Enumerate(ctx context.Context) ([]device.AudioDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init miniaudio context: %w", err)
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	playback, err := m.list(malgoCtx, malgo.Playback, device.ClassOutput)
	if err != nil {
		return nil, fmt.Errorf("list playback devices: %w", err)
	}
	capture, err := m.list(malgoCtx, malgo.Capture, device.ClassInput)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	return append(playback, capture...), nil
}

func (m *Miniaudio) list(malgoCtx *malgo.AllocatedContext, typ malgo.DeviceType, class device.Class) ([]device.AudioDevice, error) {
	infos, err := malgoCtx.Devices(typ)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(infos))
	devices := make([]device.AudioDevice, 0, len(infos))
	for _, info := range infos {
		full, err := malgoCtx.DeviceInfo(typ, info.ID, malgo.Shared)
		if err != nil {
			m.logger.Debug("read miniaudio device info failed", "device", info.Name(), "error", err.Error())
			full = info
		}
		id := full.ID.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		devices = append(devices, device.AudioDevice{
			ID:      id,
			Name:    full.Name(),
			Class:   class,
			Default: full.IsDefault == 1,
		})
	}
	return devices, nil
}

// CurrentDefault reports the device miniaudio flags as the default for class.
func (m *Miniaudio) CurrentDefault(ctx context.Context, class device.Class) (string, bool, error) {
	devices, err := m.Enumerate(ctx)
	if err != nil {
		return "", false, err
	}
	for _, d := range devices {
		if d.Default && d.Class.Includes(class) {
			return d.ID, true, nil
		}
	}
	return "", false, nil
}

func (m *Miniaudio) SetDefault(context.Context, device.Class, string) error {
	return ErrReadOnly
}

func (m *Miniaudio) Subscribe(context.Context, func(coordinator.Change)) (coordinator.Subscription, error) {
	return coordinator.NopSubscription{}, nil
}
