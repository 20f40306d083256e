// Package config resolves, parses, validates, and defaults audiomon configuration.
package config

import (
	"fmt"
	"time"

	"github.com/rbright/audiomon/internal/device"
)

const (
	BackendPulse     = "pulse"
	BackendMiniaudio = "miniaudio"

	NotifyDesktop = "desktop"
	NotifyBeeep   = "beeep"
	NotifyNone    = "none"
)

// Config is the fully materialized runtime configuration used by audiomon.
type Config struct {
	General       GeneralConfig
	Audio         Audio
	Notifications NotificationConfig
	Metrics       MetricsConfig
	Rules         device.RuleSet
}

// GeneralConfig controls evaluation cadence and logging.
type GeneralConfig struct {
	PollInterval        time.Duration
	LogLevel            string
	RespectManualSwitch bool
}

// Audio selects the backend adapter.
type Audio struct {
	Backend string
	Server  string
}

// NotificationConfig controls which events are surfaced to the desktop.
type NotificationConfig struct {
	Backend                string
	AppName                string
	TimeoutMS              int
	ShowDeviceAvailability bool
	ShowSwitchingActions   bool
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Listen string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s", w.Line, w.Message)
	}
	return w.Message
}

// Error is a configuration failure tied to a file. A rejected reload keeps the
// previous configuration active.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s config %q: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
