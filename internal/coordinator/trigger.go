package coordinator

// TriggerKind names what caused an evaluation cycle.
type TriggerKind string

const (
	TriggerDeviceList     TriggerKind = "device_list"
	TriggerDefaultChanged TriggerKind = "default_changed"
	TriggerConfigReload   TriggerKind = "config_reload"
	TriggerPoll           TriggerKind = "poll"
	TriggerStartup        TriggerKind = "startup"
	TriggerManual         TriggerKind = "manual"
)

// Trigger is one queued evaluation request.
type Trigger struct {
	Kind       TriggerKind
	Generation uint64
}

// reconciles reports whether the cycle re-reads the backend default before deciding.
// Device list and config changes cannot move the default on their own.
func (k TriggerKind) reconciles() bool {
	switch k {
	case TriggerDefaultChanged, TriggerPoll, TriggerStartup, TriggerManual:
		return true
	default:
		return false
	}
}
