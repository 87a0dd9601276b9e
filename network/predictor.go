package network

import (
	"github.com/automoto/netcode/shared/inputbuffer"
	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/sim"
	"github.com/automoto/netcode/shared/tick"
)

// predictionRecord stores an input alongside the state predicted after
// applying it.
type predictionRecord struct {
	Input     messages.InputCommand
	Predicted messages.EntityState
}

// Predictor runs the simulation step for the local entity ahead of the
// server. Every predicted state and its input are kept until acknowledged.
// It is owned by the client loop and is not safe for concurrent use.
type Predictor struct {
	step    sim.Step
	entity  netcomponents.EntityID
	inputs  *inputbuffer.Buffer
	history []predictionRecord // indexed by sequence % len
	state   messages.EntityState
	acked   uint32
}

// NewPredictor creates a predictor for entity. A resumed session continues
// numbering after lastSequence and treats acked as the newest input already
// folded into the seeded state; the server may still hold the inputs in
// between. Both are zero for a fresh session.
func NewPredictor(step sim.Step, entity netcomponents.EntityID, capacity int, lastSequence, acked uint32) *Predictor {
	if capacity < 1 {
		capacity = 1
	}
	if acked > lastSequence {
		acked = lastSequence
	}
	return &Predictor{
		step:    step,
		entity:  entity,
		inputs:  inputbuffer.NewAt(entity, capacity, lastSequence),
		history: make([]predictionRecord, capacity),
		state:   messages.EntityState{EntityID: entity},
		acked:   acked,
	}
}

// Seed replaces the predicted state, used once the server reports where the
// entity spawned.
func (p *Predictor) Seed(state messages.EntityState) {
	state.EntityID = p.entity
	p.state = state
}

// Entity returns the predicted entity's id.
func (p *Predictor) Entity() netcomponents.EntityID {
	return p.entity
}

// Predict turns controls sampled at tick t into the next input command and
// applies it to the latest predicted state immediately. It never waits on
// the network. The only failure is a full input buffer, which means the
// server has stopped acknowledging.
func (p *Predictor) Predict(t tick.Tick, controls netcomponents.Controls) (messages.InputCommand, messages.EntityState, error) {
	cmd := messages.InputCommand{
		EntityID: p.entity,
		Sequence: p.inputs.Last() + 1,
		Tick:     uint32(t),
		Payload:  controls,
	}
	if err := p.inputs.Push(cmd); err != nil {
		return messages.InputCommand{}, p.state, err
	}
	p.state = sim.ApplyAt(p.step, p.state, controls, cmd.Tick)
	p.store(cmd, p.state)
	return cmd, p.state, nil
}

// Predicted returns the state currently shown for the local entity.
func (p *Predictor) Predicted() messages.EntityState {
	return p.state
}

// Pending returns how many inputs await acknowledgment.
func (p *Predictor) Pending() int {
	return p.inputs.Len()
}

// Acked returns the highest acknowledged sequence.
func (p *Predictor) Acked() uint32 {
	return p.acked
}

// LastSequence returns the sequence of the newest input.
func (p *Predictor) LastSequence() uint32 {
	return p.inputs.Last()
}

// Unacked returns up to limit of the oldest unacknowledged inputs, for
// redundant resending. A limit below one returns all of them.
func (p *Predictor) Unacked(limit int) []messages.InputCommand {
	cmds := p.inputs.DrainUnacked(p.acked)
	if limit > 0 && len(cmds) > limit {
		cmds = cmds[:limit]
	}
	return cmds
}

// PredictionAt returns the state that was predicted after input seq, if it
// is still retained.
func (p *Predictor) PredictionAt(seq uint32) (messages.EntityState, bool) {
	rec := p.history[seq%uint32(len(p.history))]
	if seq == 0 || rec.Input.Sequence != seq {
		return messages.EntityState{}, false
	}
	return rec.Predicted, true
}

func (p *Predictor) store(cmd messages.InputCommand, state messages.EntityState) {
	p.history[cmd.Sequence%uint32(len(p.history))] = predictionRecord{Input: cmd, Predicted: state}
}

// rebase discards everything up to ack and re-derives the predicted state
// from baseline by replaying the inputs the server has not seen yet.
func (p *Predictor) rebase(baseline messages.EntityState, ack uint32) (messages.EntityState, int) {
	p.inputs.Acknowledge(ack)
	if ack > p.acked {
		p.acked = ack
	}

	pending := p.inputs.DrainUnacked(p.acked)
	trace := sim.Trace(p.step, baseline, pending)
	state := baseline
	for i, in := range pending {
		// keep the input's own tick so the replayed history lines up with
		// what Predict produced
		trace[i].Tick = in.Tick
		p.store(in, trace[i])
		state = trace[i]
	}
	state.EntityID = p.entity
	p.state = state
	return state, len(pending)
}
