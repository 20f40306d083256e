package app

import (
	"fmt"
	"strings"

	"github.com/rbright/audiomon/internal/coordinator"
	"github.com/rbright/audiomon/internal/device"
)

// statusView is the wire form of the daemon status.
type statusView struct {
	Instance     string       `json:"instance"`
	Backend      string       `json:"backend"`
	Uptime       string       `json:"uptime"`
	Generation   uint64       `json:"generation"`
	PollInterval string       `json:"poll_interval"`
	Classes      []classView  `json:"classes"`
	Devices      []deviceView `json:"devices"`
}

type classView struct {
	Class        string `json:"class"`
	DeviceID     string `json:"device_id,omitempty"`
	DeviceName   string `json:"device_name,omitempty"`
	Generation   uint64 `json:"generation"`
	Sequence     uint64 `json:"sequence"`
	State        string `json:"state"`
	LastDecision string `json:"last_decision,omitempty"`
	Held         string `json:"held,omitempty"`
}

type deviceView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Class   string `json:"class"`
	Default bool   `json:"default,omitempty"`
}

func newStatusView(s coordinator.Status) statusView {
	view := statusView{
		Generation:   s.Generation,
		PollInterval: s.PollInterval,
		Devices:      make([]deviceView, 0, len(s.Devices)),
	}
	for _, class := range device.Classes {
		cs := s.For(class)
		view.Classes = append(view.Classes, classView{
			Class:        cs.Class.String(),
			DeviceID:     cs.DeviceID,
			DeviceName:   cs.DeviceName,
			Generation:   cs.Generation,
			Sequence:     cs.Sequence,
			State:        string(cs.State),
			LastDecision: cs.LastDecision,
			Held:         cs.Held,
		})
	}
	for _, d := range s.Devices {
		view.Devices = append(view.Devices, deviceView{ID: d.ID, Name: d.Name, Class: d.Class.String(), Default: d.Default})
	}
	return view
}

// Format renders the status for the terminal.
func (v statusView) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "running (backend %s, up %s, instance %s)\n", v.Backend, v.Uptime, v.Instance)
	fmt.Fprintf(&b, "generation %d, poll interval %s, %d devices\n", v.Generation, v.PollInterval, len(v.Devices))
	for _, c := range v.Classes {
		selected := "(none)"
		if c.DeviceID != "" {
			name := c.DeviceName
			if name == "" {
				name = c.DeviceID
			}
			selected = fmt.Sprintf("%q [gen %d seq %d]", name, c.Generation, c.Sequence)
		}
		fmt.Fprintf(&b, "%s: %s, %s\n", c.Class, selected, c.State)
		if c.LastDecision != "" {
			fmt.Fprintf(&b, "  last: %s\n", c.LastDecision)
		}
		if c.Held != "" {
			fmt.Fprintf(&b, "  held: %s\n", c.Held)
		}
	}
	return b.String()
}

// resultView is the wire form of one evaluation or switch.
type resultView struct {
	Class      string `json:"class"`
	Generation uint64 `json:"generation"`
	Decision   string `json:"decision,omitempty"`
	Applied    bool   `json:"applied,omitempty"`
	Stale      bool   `json:"stale,omitempty"`
	Held       bool   `json:"held,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newResultView(res coordinator.Result) resultView {
	view := resultView{
		Class:      res.Class.String(),
		Generation: res.Generation,
		Applied:    res.Applied,
		Stale:      res.Stale,
		Held:       res.Held,
	}
	if res.Decision.Kind != "" {
		view.Decision = res.Decision.String()
	}
	if res.Err != nil {
		view.Error = res.Err.Error()
	}
	return view
}

// Format renders one result line.
func (v resultView) Format() string {
	line := fmt.Sprintf("%s [gen %d]:", v.Class, v.Generation)
	if v.Decision != "" {
		line += " " + v.Decision
	}
	switch {
	case v.Error != "" && !v.Stale:
		line += " (failed: " + v.Error + ")"
	case v.Stale:
		line += " (superseded)"
	case v.Held:
		line += " (held by manual switch)"
	case v.Applied:
		line += " (applied)"
	}
	return line
}
