package network

import (
	"testing"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/sim"
	"github.com/automoto/netcode/shared/tick"
)

func snapshotFor(at uint32, body netcomponents.Body, ack uint32) messages.Snapshot {
	return messages.Snapshot{
		Tick:     at,
		Entities: []messages.EntityState{{EntityID: localEntity, Payload: body}},
		Acks:     []messages.Ack{{ClientID: localClient, LastSequence: ack}},
	}
}

func TestReconcileReplaysUnackedFromBaseline(t *testing.T) {
	p := newTestPredictor(16)
	inputs := []netcomponents.Controls{right(), right(), down(), right(), down()}
	var sent []messages.InputCommand
	for i, c := range inputs {
		cmd, _ := mustPredict(t, p, tick.Tick(11+i), c)
		sent = append(sent, cmd)
	}

	// the server disagrees about where input 2 left us
	baseline := netcomponents.Body{X: 90, Y: 100}
	r := NewReconciler(p, localClient)
	c, ok := r.Apply(snapshotFor(20, baseline, 2))
	if !ok {
		t.Fatalf("snapshot not applied")
	}
	if c.Acked != 2 || c.Replayed != 3 || c.Tick != 20 {
		t.Fatalf("correction = %+v", c)
	}
	if !c.Measured || c.Error != 12 {
		t.Fatalf("error = %v (measured %v), want 12", c.Error, c.Measured)
	}

	want := sim.Replay(slide, messages.EntityState{Payload: baseline}, sent[2:])
	if got := p.Predicted(); got.Payload != want.Payload {
		t.Fatalf("corrected = %+v, want %+v", got.Payload, want.Payload)
	}
	if got := p.Predicted().Tick; got != sent[4].Tick {
		t.Fatalf("corrected tick = %d, want %d", got, sent[4].Tick)
	}
	if p.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", p.Pending())
	}
}

func TestReconcileMatchesFreshPrediction(t *testing.T) {
	controls := []netcomponents.Controls{right(), down(), down(), right(), right(), down()}
	const acked = 2
	baseline := netcomponents.Body{X: 40, Y: -3}

	predicted := newTestPredictor(16)
	for i, c := range controls {
		mustPredict(t, predicted, tick.Tick(11+i), c)
	}
	NewReconciler(predicted, localClient).Apply(snapshotFor(13, baseline, acked))

	// the same remaining inputs applied directly with no earlier guess
	fresh := NewPredictor(slide, localEntity, 16, acked, acked)
	fresh.Seed(messages.EntityState{Tick: 13, Payload: baseline})
	for i, c := range controls[acked:] {
		mustPredict(t, fresh, tick.Tick(11+acked+i), c)
	}

	if predicted.Predicted() != fresh.Predicted() {
		t.Fatalf("reconciled %+v != fresh %+v", predicted.Predicted(), fresh.Predicted())
	}
}

func TestReconcileIgnoresOlderSnapshots(t *testing.T) {
	p := newTestPredictor(16)
	for i := 0; i < 6; i++ {
		mustPredict(t, p, tick.Tick(11+i), right())
	}
	r := NewReconciler(p, localClient)

	if _, ok := r.Apply(snapshotFor(20, netcomponents.Body{X: 104, Y: 100}, 4)); !ok {
		t.Fatalf("tick 20 not applied")
	}
	after20 := p.Predicted()

	if _, ok := r.Apply(snapshotFor(15, netcomponents.Body{X: 0, Y: 0}, 2)); ok {
		t.Fatalf("tick 15 applied after tick 20")
	}
	if _, ok := r.Apply(snapshotFor(20, netcomponents.Body{X: 0, Y: 0}, 4)); ok {
		t.Fatalf("duplicate tick 20 applied twice")
	}
	if p.Predicted() != after20 || p.Acked() != 4 || r.LastTick() != 20 {
		t.Fatalf("state reverted: %+v acked=%d last=%d", p.Predicted(), p.Acked(), r.LastTick())
	}
}

func TestReconcileIgnoresOlderAck(t *testing.T) {
	p := newTestPredictor(16)
	for i := 0; i < 4; i++ {
		mustPredict(t, p, tick.Tick(11+i), right())
	}
	r := NewReconciler(p, localClient)
	r.Apply(snapshotFor(20, netcomponents.Body{X: 103, Y: 100}, 3))

	if _, ok := r.Apply(snapshotFor(21, netcomponents.Body{X: 0}, 1)); ok {
		t.Fatalf("newer tick with older ack applied")
	}
	if p.Acked() != 3 || p.Pending() != 1 {
		t.Fatalf("acked=%d pending=%d", p.Acked(), p.Pending())
	}
}

func TestReconcileSkipsSnapshotsWithoutLocalEntity(t *testing.T) {
	p := newTestPredictor(16)
	mustPredict(t, p, 11, right())
	r := NewReconciler(p, localClient)

	snap := snapshotFor(12, netcomponents.Body{}, 1)
	snap.Entities[0].EntityID = localEntity + 1
	if _, ok := r.Apply(snap); ok {
		t.Fatalf("applied snapshot without local entity")
	}
	if p.Pending() != 1 {
		t.Fatalf("input acknowledged without a baseline")
	}
}

func TestReconcileWithMatchingPredictionHasNoError(t *testing.T) {
	p := newTestPredictor(16)
	mustPredict(t, p, 11, right())
	mustPredict(t, p, 12, right())

	c, ok := NewReconciler(p, localClient).Apply(snapshotFor(12, netcomponents.Body{X: 102, Y: 100, VX: 1}, 2))
	if !ok || !c.Measured || c.Error != 0 || c.Replayed != 0 {
		t.Fatalf("correction = %+v, %v", c, ok)
	}
	if p.Pending() != 0 || p.Predicted().Payload.X != 102 {
		t.Fatalf("after full ack: pending=%d state=%+v", p.Pending(), p.Predicted())
	}
}

func TestReconcileAfterResumeAppliesAcksForServerBufferedInputs(t *testing.T) {
	// resumed with inputs 3..5 still queued on the server
	p := NewPredictor(slide, localEntity, 16, 5, 2)
	p.Seed(messages.EntityState{Tick: 10, Payload: netcomponents.Body{X: 2}})
	r := NewReconciler(p, localClient)
	mustPredict(t, p, 11, right()) // sequence 6

	for i, ack := range []uint32{3, 4, 5} {
		c, ok := r.Apply(snapshotFor(uint32(11+i), netcomponents.Body{X: float64(ack)}, ack))
		if !ok {
			t.Fatalf("snapshot acking %d after resume was ignored", ack)
		}
		if c.Replayed != 1 {
			t.Fatalf("ack %d replayed %d inputs, want 1", ack, c.Replayed)
		}
	}
	if got := p.Predicted().Payload.X; got != 6 {
		t.Fatalf("predicted x = %v, want 6", got)
	}
	if c, ok := r.Apply(snapshotFor(14, netcomponents.Body{X: 6}, 6)); !ok || c.Replayed != 0 {
		t.Fatalf("ack of the first post-resume input = %+v, %v", c, ok)
	}
}
