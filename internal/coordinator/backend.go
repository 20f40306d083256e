package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/audiomon/internal/device"
)

// Backend is the audio system the coordinator observes and drives.
type Backend interface {
	// Enumerate returns every currently available device in a stable order.
	Enumerate(ctx context.Context) ([]device.AudioDevice, error)
	// CurrentDefault returns the id of the system default for class, if one is set.
	CurrentDefault(ctx context.Context, class device.Class) (string, bool, error)
	SetDefault(ctx context.Context, class device.Class, id string) error
	// Subscribe delivers change notifications until the subscription is closed.
	// The callback may run on any goroutine and must not block.
	Subscribe(ctx context.Context, onChange func(Change)) (Subscription, error)
}

// Change is a backend notification.
type Change int

const (
	ChangeDeviceList Change = iota + 1
	ChangeDefault
)

func (c Change) String() string {
	switch c {
	case ChangeDeviceList:
		return "device_list"
	case ChangeDefault:
		return "default"
	default:
		return fmt.Sprintf("change(%d)", int(c))
	}
}

type Subscription interface {
	Close() error
}

// NopSubscription is returned by backends that cannot push changes.
type NopSubscription struct{}

func (NopSubscription) Close() error { return nil }

// Op names the backend operation that failed.
type Op string

const (
	OpEnumerate      Op = "enumerate"
	OpCurrentDefault Op = "current_default"
	OpSetDefault     Op = "set_default"
	OpSubscribe      Op = "subscribe"
)

var (
	// ErrStaleDecision marks a decision superseded by a newer generation.
	ErrStaleDecision = errors.New("stale decision")
	// ErrSubscribe wraps a failure to subscribe to backend changes at startup.
	ErrSubscribe = errors.New("subscribe to audio backend changes")
	// ErrDeviceNotFound is returned by SwitchTo when no device matches.
	ErrDeviceNotFound = errors.New("device not found")
)

// BackendError is a recoverable backend failure.
type BackendError struct {
	Op       Op
	Class    device.Class
	DeviceID string
	Err      error
}

func (e *BackendError) Error() string {
	switch {
	case e.DeviceID != "":
		return fmt.Sprintf("audio backend %s %s %q: %v", e.Op, e.Class, e.DeviceID, e.Err)
	case e.Class != 0:
		return fmt.Sprintf("audio backend %s %s: %v", e.Op, e.Class, e.Err)
	default:
		return fmt.Sprintf("audio backend %s: %v", e.Op, e.Err)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

// key identifies a distinct failure for report deduplication.
func (e *BackendError) key() string {
	return fmt.Sprintf("%s|%d|%s|%v", e.Op, e.Class, e.DeviceID, e.Err)
}
