package coordinator

import (
	"github.com/rbright/audiomon/internal/device"
	"github.com/rbright/audiomon/internal/fsm"
)

// ClassStatus is the published view of one class.
type ClassStatus struct {
	Class        device.Class
	DeviceID     string
	DeviceName   string
	Generation   uint64
	Sequence     uint64
	State        fsm.State
	LastDecision string
	Held         string
}

// Status is a point-in-time view for the control surface.
type Status struct {
	Generation   uint64
	PollInterval string
	Output       ClassStatus
	Input        ClassStatus
	Devices      []device.AudioDevice
}

// Status returns the current beliefs and the state of the newest cycle per class.
func (c *Coordinator) Status() Status {
	snap := c.state.Snapshot()
	latest := c.latest()

	c.viewMu.Lock()
	devices := append([]device.AudioDevice(nil), c.devices...)
	build := func(class device.Class) ClassStatus {
		v := c.view(class)
		st := snap.For(class)
		cs := ClassStatus{
			Class:      class,
			DeviceID:   st.DeviceID,
			Generation: st.Generation,
			Sequence:   st.Sequence,
			State:      v.state,
			Held:       v.hold,
		}
		if v.last.Kind != "" {
			cs.LastDecision = v.last.String()
		}
		if d, ok := device.FindID(devices, st.DeviceID); ok {
			cs.DeviceName = d.Name
		}
		return cs
	}
	status := Status{
		Generation:   latest,
		PollInterval: c.PollInterval().String(),
		Output:       build(device.ClassOutput),
		Input:        build(device.ClassInput),
		Devices:      devices,
	}
	c.viewMu.Unlock()

	return status
}

// For returns the status of class.
func (s Status) For(class device.Class) ClassStatus {
	if class == device.ClassInput {
		return s.Input
	}
	return s.Output
}
