package network

import (
	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
)

// Correction describes one reconciliation.
type Correction struct {
	Tick     uint32  // snapshot tick the baseline came from
	Acked    uint32  // last input sequence the server simulated
	Replayed int     // inputs re-applied on top of the baseline
	Error    float64 // distance between the earlier prediction and the baseline
	Measured bool    // false when the earlier prediction was no longer retained
}

// Reconciler rewinds the local prediction to authoritative snapshots.
// Snapshots are applied strictly in tick order; anything not newer than the
// last applied snapshot is ignored.
type Reconciler struct {
	predictor *Predictor
	client    netcomponents.ClientID
	lastTick  uint32
	applied   bool
}

func NewReconciler(predictor *Predictor, client netcomponents.ClientID) *Reconciler {
	return &Reconciler{predictor: predictor, client: client}
}

// LastTick returns the tick of the newest applied snapshot.
func (r *Reconciler) LastTick() uint32 {
	return r.lastTick
}

// Apply reconciles against snap. It reports false when the snapshot was
// stale, did not carry the local entity, or carried an older acknowledgment.
func (r *Reconciler) Apply(snap messages.Snapshot) (Correction, bool) {
	if r.applied && snap.Tick <= r.lastTick {
		return Correction{}, false
	}
	baseline, ok := snap.Entity(r.predictor.Entity())
	if !ok {
		return Correction{}, false
	}
	ack, ok := snap.AckFor(r.client)
	if !ok || ack < r.predictor.Acked() {
		return Correction{}, false
	}
	baseline.Tick = snap.Tick

	c := Correction{Tick: snap.Tick, Acked: ack}
	if earlier, ok := r.predictor.PredictionAt(ack); ok {
		c.Error = netcomponents.Distance(earlier.Payload, baseline.Payload)
		c.Measured = true
	}
	_, c.Replayed = r.predictor.rebase(baseline, ack)

	r.lastTick = snap.Tick
	r.applied = true
	return c, true
}
