package network

import (
	"math"
	"testing"

	"github.com/tanema/gween/ease"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
)

const remote netcomponents.EntityID = 9

func sample(at uint32, x, y float64) messages.EntityState {
	return messages.EntityState{EntityID: remote, Tick: at, Payload: netcomponents.Body{X: x, Y: y}}
}

func newTestInterpolator(delay float64) *Interpolator {
	return NewInterpolator(InterpolatorConfig{Delay: delay, Capacity: 8})
}

func TestInterpolatorMidpoint(t *testing.T) {
	in := newTestInterpolator(0)
	in.Push(sample(10, 0, 100))
	in.Push(sample(20, 50, 200))

	got, ok := in.State(remote, 15)
	if !ok {
		t.Fatalf("no state")
	}
	if got.Payload.X != 25 || got.Payload.Y != 150 || got.Tick != 15 {
		t.Fatalf("midpoint = %+v", got)
	}
}

func TestInterpolatorAppliesDelay(t *testing.T) {
	in := newTestInterpolator(6)
	in.Push(sample(10, 0, 0))
	in.Push(sample(20, 10, 0))

	got, _ := in.State(remote, 21)
	if got.Payload.X != 5 {
		t.Fatalf("render 21 with delay 6 = %+v, want x=5", got.Payload)
	}
}

func TestInterpolatorSingleSampleIsReturnedAsIs(t *testing.T) {
	in := newTestInterpolator(0)
	in.Push(sample(10, 3, 4))
	for _, at := range []float64{0, 10, 50} {
		if got, ok := in.State(remote, at); !ok || got != sample(10, 3, 4) {
			t.Fatalf("State(%v) = %+v,%v", at, got, ok)
		}
	}
	if _, ok := in.State(remote+1, 10); ok {
		t.Fatalf("unknown entity returned a state")
	}
}

func TestInterpolatorClampsOutsideBufferedRange(t *testing.T) {
	in := newTestInterpolator(0)
	in.Push(sample(10, 0, 0))
	in.Push(sample(20, 10, 0))
	in.Push(sample(30, 20, 0))

	if got, _ := in.State(remote, 2); got.Payload.X != 0 || got.Tick != 10 {
		t.Fatalf("before oldest = %+v", got)
	}
	if got, _ := in.State(remote, 45); got.Payload.X != 20 || got.Tick != 30 {
		t.Fatalf("after newest = %+v", got)
	}
	if got, _ := in.State(remote, 25); got.Payload.X != 15 {
		t.Fatalf("second bracket = %+v", got)
	}
}

func TestInterpolatorBoundedExtrapolation(t *testing.T) {
	in := NewInterpolator(InterpolatorConfig{Capacity: 4, MaxExtrapolation: 5})
	in.Push(sample(10, 0, 0))
	in.Push(sample(20, 10, 0))

	if got, _ := in.State(remote, 23); math.Abs(got.Payload.X-13) > 1e-9 || got.Tick != 23 {
		t.Fatalf("extrapolated = %+v, want x=13", got)
	}
	if got, _ := in.State(remote, 100); math.Abs(got.Payload.X-15) > 1e-9 {
		t.Fatalf("extrapolation not bounded: %+v", got)
	}
}

func TestInterpolatorIgnoresOutOfOrderSnapshots(t *testing.T) {
	in := newTestInterpolator(0)
	snap := func(at uint32, x float64) messages.Snapshot {
		return messages.Snapshot{Tick: at, Entities: []messages.EntityState{
			{EntityID: localEntity, Payload: netcomponents.Body{X: -1}},
			{EntityID: remote, Payload: netcomponents.Body{X: x}},
		}}
	}

	if !in.Observe(snap(20, 200), localEntity) {
		t.Fatalf("tick 20 rejected")
	}
	if in.Observe(snap(15, 150), localEntity) {
		t.Fatalf("tick 15 accepted after tick 20")
	}
	if in.Len(remote) != 1 {
		t.Fatalf("buffered %d samples, want 1", in.Len(remote))
	}
	if got, _ := in.State(remote, 100); got.Payload.X != 200 || got.Tick != 20 {
		t.Fatalf("state reverted to %+v", got)
	}
	if in.Len(localEntity) != 0 {
		t.Fatalf("local entity was buffered")
	}

	// a single late sample for one entity is also ignored
	if in.Push(sample(18, 0, 0)) {
		t.Fatalf("late sample accepted")
	}
}

func TestInterpolatorEvictsOldestAndForgetsMissing(t *testing.T) {
	in := NewInterpolator(InterpolatorConfig{Capacity: 3})
	for at := uint32(1); at <= 5; at++ {
		in.Observe(messages.Snapshot{Tick: at, Entities: []messages.EntityState{
			{EntityID: remote, Payload: netcomponents.Body{X: float64(at)}},
			{EntityID: remote + 1},
		}}, localEntity)
	}
	if in.Len(remote) != 3 {
		t.Fatalf("len = %d, want capacity 3", in.Len(remote))
	}
	if got, _ := in.State(remote, 0); got.Tick != 3 {
		t.Fatalf("oldest retained tick = %d, want 3", got.Tick)
	}

	in.Observe(messages.Snapshot{Tick: 6, Entities: []messages.EntityState{{EntityID: remote}}}, localEntity)
	ids := in.Entities()
	if len(ids) != 1 || ids[0] != remote {
		t.Fatalf("entities = %v, want only %d", ids, remote)
	}
	in.Forget(remote)
	if len(in.Entities()) != 0 {
		t.Fatalf("forget left %v", in.Entities())
	}
}

func TestInterpolatorEasing(t *testing.T) {
	fn, err := Easing("in-out-quad")
	if err != nil {
		t.Fatalf("easing: %v", err)
	}
	in := NewInterpolator(InterpolatorConfig{Capacity: 4, Ease: fn})
	in.Push(sample(0, 0, 0))
	in.Push(sample(10, 100, 0))

	if got, _ := in.State(remote, 5); math.Abs(got.Payload.X-50) > 1e-3 {
		t.Fatalf("eased midpoint = %v, want 50", got.Payload.X)
	}
	if got, _ := in.State(remote, 2); got.Payload.X >= 20 {
		t.Fatalf("ease-in should lag linear early on, got %v", got.Payload.X)
	}

	if _, err := Easing("wobble"); err == nil {
		t.Fatalf("expected unknown easing error")
	}
	if fn, _ := Easing(""); fn(0.5, 0, 1, 1) != ease.Linear(0.5, 0, 1, 1) {
		t.Fatalf("empty name is not linear")
	}
}
