package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateApplying   State = "applying"
)

const (
	EventTrigger Event = "trigger"
	EventSwitch  Event = "switch"
	EventSettle  Event = "settle"
	EventApplied Event = "applied"
	EventFail    Event = "fail"
)

// Transition drives one evaluation cycle of a device class.
// A failure always returns the class to idle; the next trigger retries.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventTrigger:
			return StateEvaluating, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateEvaluating:
		switch event {
		case EventSwitch:
			return StateApplying, nil
		case EventSettle, EventFail:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateApplying:
		switch event {
		case EventApplied, EventFail:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
