// Package selection records which device the coordinator believes is the default per class.
package selection

import (
	"sync"

	"github.com/rbright/audiomon/internal/device"
)

// ClassState is the belief for one class.
type ClassState struct {
	DeviceID   string
	Generation uint64
	Sequence   uint64
}

// Snapshot is a read-only copy of every class state.
type Snapshot struct {
	Output ClassState
	Input  ClassState
}

// For returns the state of class.
func (s Snapshot) For(class device.Class) ClassState {
	if class == device.ClassInput {
		return s.Input
	}
	return s.Output
}

// State is safe for concurrent use.
type State struct {
	mu      sync.Mutex
	classes map[device.Class]*ClassState
}

func New() *State {
	return &State{classes: map[device.Class]*ClassState{
		device.ClassOutput: {},
		device.ClassInput:  {},
	}}
}

func (s *State) entry(class device.Class) *ClassState {
	st, ok := s.classes[class]
	if !ok {
		st = &ClassState{}
		s.classes[class] = st
	}
	return st
}

// Record stores id as the current device for class when generation is not older
// than the last recorded one. It reports whether the record was accepted.
func (s *State) Record(class device.Class, id string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.entry(class)
	if generation < st.Generation {
		return false
	}
	st.DeviceID = id
	st.Generation = generation
	st.Sequence++
	return true
}

// Current returns the believed default device id for class.
func (s *State) Current(class device.Class) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.entry(class)
	return st.DeviceID, st.DeviceID != ""
}

// Generation returns the last accepted generation for class.
func (s *State) Generation(class device.Class) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry(class).Generation
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Output: *s.entry(device.ClassOutput),
		Input:  *s.entry(device.ClassInput),
	}
}
