package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionSwitchPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventTrigger)
	require.NoError(t, err)
	require.Equal(t, StateEvaluating, next)

	next, err = Transition(next, EventSwitch)
	require.NoError(t, err)
	require.Equal(t, StateApplying, next)

	next, err = Transition(next, EventApplied)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionSettlePath(t *testing.T) {
	next, err := Transition(StateIdle, EventTrigger)
	require.NoError(t, err)

	next, err = Transition(next, EventSettle)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionFailReturnsToIdle(t *testing.T) {
	for _, state := range []State{StateEvaluating, StateApplying} {
		next, err := Transition(state, EventFail)
		require.NoError(t, err)
		require.Equal(t, StateIdle, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{name: "idle switch invalid", state: StateIdle, event: EventSwitch},
		{name: "idle settle invalid", state: StateIdle, event: EventSettle},
		{name: "idle applied invalid", state: StateIdle, event: EventApplied},
		{name: "idle fail invalid", state: StateIdle, event: EventFail},
		{name: "evaluating trigger invalid", state: StateEvaluating, event: EventTrigger},
		{name: "evaluating applied invalid", state: StateEvaluating, event: EventApplied},
		{name: "applying trigger invalid", state: StateApplying, event: EventTrigger},
		{name: "applying switch invalid", state: StateApplying, event: EventSwitch},
		{name: "applying settle invalid", state: StateApplying, event: EventSettle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.state, next)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid transition")
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventTrigger)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}
