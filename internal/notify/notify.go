// Package notify surfaces device and switch events as desktop notifications.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/audiomon/internal/config"
	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/priority"
)

const dispatchTimeout = 2 * time.Second

type sender interface {
	Send(context.Context, message) error
}

// Notifier implements the coordinator reporter on top of a notification backend.
type Notifier struct {
	logger   *slog.Logger
	messages messages

	mu     sync.Mutex
	cfg    config.NotificationConfig
	sender sender
}

// New creates a notifier for cfg. A "none" backend only logs.
func New(cfg config.NotificationConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	n := &Notifier{logger: logger, messages: messagesFromEnv()}
	n.Configure(cfg)
	return n
}

// Configure swaps notification settings, e.g. after a config reload.
func (n *Notifier) Configure(cfg config.NotificationConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sender != nil && cfg == n.cfg {
		return
	}
	n.cfg = cfg
	n.sender = newSender(cfg)
}

func newSender(cfg config.NotificationConfig) sender {
	switch cfg.Backend {
	case config.NotifyDesktop:
		return newDesktopSender(cfg.AppName, cfg.TimeoutMS)
	case config.NotifyBeeep:
		return newBeeepSender(cfg.AppName)
	default:
		return nopSender{}
	}
}

// DeviceConnected reports a newly visible device.
func (n *Notifier) DeviceConnected(ctx context.Context, d device.AudioDevice) {
	n.dispatch(ctx, func(cfg config.NotificationConfig) bool { return cfg.ShowDeviceAvailability }, n.messages.deviceConnected(d))
}

// DeviceDisconnected reports a device that vanished.
func (n *Notifier) DeviceDisconnected(ctx context.Context, d device.AudioDevice) {
	n.dispatch(ctx, func(cfg config.NotificationConfig) bool { return cfg.ShowDeviceAvailability }, n.messages.deviceDisconnected(d))
}

// Switched reports an applied switch.
func (n *Notifier) Switched(ctx context.Context, d priority.Decision) {
	n.dispatch(ctx, func(cfg config.NotificationConfig) bool { return cfg.ShowSwitchingActions }, n.messages.switchedTo(d))
}

// SwitchFailed reports a switch the backend rejected.
func (n *Notifier) SwitchFailed(ctx context.Context, d priority.Decision, err error) {
	n.dispatch(ctx, func(cfg config.NotificationConfig) bool { return cfg.ShowSwitchingActions }, n.messages.switchFailedTo(d, err))
}

// BackendFailed reports a backend outage. It is always shown.
func (n *Notifier) BackendFailed(ctx context.Context, err error) {
	n.dispatch(ctx, func(config.NotificationConfig) bool { return true }, n.messages.backendUnavailable(err))
}

// ConfigRejected reports a config reload that failed validation. It is always shown.
func (n *Notifier) ConfigRejected(ctx context.Context, err error) {
	n.dispatch(ctx, func(config.NotificationConfig) bool { return true }, n.messages.configRejected(err))
}

// dispatch sends msg with a bounded timeout when enabled allows it. Failures
// are logged and never reach the caller.
func (n *Notifier) dispatch(ctx context.Context, enabled func(config.NotificationConfig) bool, msg message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !enabled(n.cfg) {
		return
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if err := n.sender.Send(runCtx, msg); err != nil {
		n.logger.Warn("notification dispatch failed", "backend", n.cfg.Backend, "title", msg.title, "error", err.Error())
		return
	}
	n.logger.Debug("notification sent", "backend", n.cfg.Backend, "title", msg.title, "body", msg.body)
}

type nopSender struct{}

func (nopSender) Send(context.Context, message) error { return nil }
