// Package sim defines the Simulation Step contract shared by the server and
// the client, plus the helpers both roles use to run it.
package sim

import (
	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
)

// Step advances one entity's payload by one tick. Implementations must be
// deterministic, total and free of side effects: the same (state, input)
// always yields the same result on every machine.
type Step func(state netcomponents.Body, input netcomponents.Controls) netcomponents.Body

// Apply runs step for one input and returns the entity state for the tick
// after state. The input value is not modified and state is never mutated.
func Apply(step Step, state messages.EntityState, input messages.InputCommand) messages.EntityState {
	return messages.EntityState{
		EntityID: state.EntityID,
		Tick:     state.Tick + 1,
		Payload:  step(state.Payload, input.Payload),
	}
}

// ApplyAt is Apply with an explicit result tick, used by the server where the
// tick comes from its own clock.
func ApplyAt(step Step, state messages.EntityState, input netcomponents.Controls, at uint32) messages.EntityState {
	return messages.EntityState{
		EntityID: state.EntityID,
		Tick:     at,
		Payload:  step(state.Payload, input),
	}
}

// Replay re-derives a state from an immutable baseline by applying inputs in
// order. It is the rollback primitive: nothing is undone, the speculative
// state is simply recomputed.
func Replay(step Step, baseline messages.EntityState, inputs []messages.InputCommand) messages.EntityState {
	state := baseline
	for _, in := range inputs {
		state = Apply(step, state, in)
	}
	return state
}

// Trace is Replay that keeps every intermediate state.
func Trace(step Step, baseline messages.EntityState, inputs []messages.InputCommand) []messages.EntityState {
	out := make([]messages.EntityState, 0, len(inputs))
	state := baseline
	for _, in := range inputs {
		state = Apply(step, state, in)
		out = append(out, state)
	}
	return out
}
