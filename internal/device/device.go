// Package device defines audio device snapshots and the priority rules matched against them.
package device

import (
	"fmt"
	"strings"
)

// Class classifies a device as an input, an output, or both.
type Class uint8

const (
	ClassInput Class = 1 << iota
	ClassOutput

	ClassInputOutput = ClassInput | ClassOutput
)

// Classes lists the selectable classes in evaluation order.
var Classes = []Class{ClassOutput, ClassInput}

// Includes reports whether c covers every bit of target.
func (c Class) Includes(target Class) bool {
	return target != 0 && c&target == target
}

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassOutput:
		return "output"
	case ClassInputOutput:
		return "input/output"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// ParseClass resolves a selectable class name.
func ParseClass(raw string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "input", "in", "source":
		return ClassInput, nil
	case "output", "out", "sink":
		return ClassOutput, nil
	default:
		return 0, fmt.Errorf("unknown device class %q (want input or output)", raw)
	}
}

// AudioDevice is one enumerated device. Values are snapshots and are never mutated.
type AudioDevice struct {
	ID      string
	Name    string
	Class   Class
	Default bool
}

func (d AudioDevice) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Class)
}

// Find returns the first device whose id or name equals key.
func Find(devices []AudioDevice, key string) (AudioDevice, bool) {
	for _, d := range devices {
		if d.ID == key || d.Name == key {
			return d, true
		}
	}
	return AudioDevice{}, false
}

// FindID returns the device with the given id.
func FindID(devices []AudioDevice, id string) (AudioDevice, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return AudioDevice{}, false
}
