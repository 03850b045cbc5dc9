package session

import (
	"fmt"

	"github.com/qmuntal/stateless"
)

type trigger string

const (
	triggerLoginStarted      trigger = "login_started"
	triggerCallbackSucceeded trigger = "callback_succeeded"
)

// newLifecycle returns a state machine positioned at from.
//
//	none ──login_started──▶ pending ──callback_succeeded──▶ authenticated
//	none ──callback_succeeded──────────────────────────────▶ authenticated
//
// authenticated accepts callback_succeeded as a reentry so a later login on
// the same ID replaces the token. Nothing leads back to pending.
func newLifecycle(from State) *stateless.StateMachine {
	sm := stateless.NewStateMachine(from)

	sm.Configure(StateNone).
		Permit(triggerLoginStarted, StatePending).
		Permit(triggerCallbackSucceeded, StateAuthenticated)

	sm.Configure(StatePending).
		Permit(triggerCallbackSucceeded, StateAuthenticated)

	sm.Configure(StateAuthenticated).
		PermitReentry(triggerCallbackSucceeded)

	return sm
}

// transition fires t from state from and returns the resulting state.
func transition(from State, t trigger) (State, error) {
	sm := newLifecycle(from)
	if err := sm.Fire(t); err != nil {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, from)
	}

	next, ok := sm.MustState().(State)
	if !ok {
		return from, fmt.Errorf("%w: unexpected state %v", ErrInvalidTransition, sm.MustState())
	}
	return next, nil
}
