package coordinator

import (
	"context"

	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/priority"
)

// Reporter receives user-facing events. Implementations decide what to surface.
type Reporter interface {
	DeviceConnected(context.Context, device.AudioDevice)
	DeviceDisconnected(context.Context, device.AudioDevice)
	Switched(context.Context, priority.Decision)
	SwitchFailed(context.Context, priority.Decision, error)
	BackendFailed(context.Context, error)
}

// Metrics is the counter surface of the coordinator.
type Metrics interface {
	Trigger(kind string)
	Coalesced(kind string)
	Evaluation(class, outcome string)
	Switch(class, result string)
	StaleDecision(class string)
	BackendError(op string)
	Generation(g uint64)
}

// noopReporter keeps cycles running when nothing is wired.
type noopReporter struct{}

func (noopReporter) DeviceConnected(context.Context, device.AudioDevice)    {}
func (noopReporter) DeviceDisconnected(context.Context, device.AudioDevice) {}
func (noopReporter) Switched(context.Context, priority.Decision)            {}
func (noopReporter) SwitchFailed(context.Context, priority.Decision, error) {}
func (noopReporter) BackendFailed(context.Context, error)                   {}

type noopMetrics struct{}

func (noopMetrics) Trigger(string)            {}
func (noopMetrics) Coalesced(string)          {}
func (noopMetrics) Evaluation(string, string) {}
func (noopMetrics) Switch(string, string)     {}
func (noopMetrics) StaleDecision(string)      {}
func (noopMetrics) BackendError(string)       {}
func (noopMetrics) Generation(uint64)         {}
