package network

import (
	"testing"

	"github.com/automoto/netcode/shared/messages"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/tick"
)

const (
	localClient netcomponents.ClientID = 3
	localEntity netcomponents.EntityID = 7
)

// slide moves one unit per axis step and remembers the last velocity.
func slide(b netcomponents.Body, c netcomponents.Controls) netcomponents.Body {
	b.VX, b.VY = float64(c.MoveX), float64(c.MoveY)
	b.X += b.VX
	b.Y += b.VY
	return b
}

func right() netcomponents.Controls { return netcomponents.Controls{MoveX: 1} }

func down() netcomponents.Controls { return netcomponents.Controls{MoveY: 1} }

func newTestPredictor(capacity int) *Predictor {
	p := NewPredictor(slide, localEntity, capacity, 0, 0)
	p.Seed(messages.EntityState{Tick: 10, Payload: netcomponents.Body{X: 100, Y: 100}})
	return p
}

func mustPredict(t *testing.T, p *Predictor, at tick.Tick, c netcomponents.Controls) (messages.InputCommand, messages.EntityState) {
	t.Helper()
	cmd, state, err := p.Predict(at, c)
	if err != nil {
		t.Fatalf("predict at %d: %v", at, err)
	}
	return cmd, state
}

func TestPredictAppliesImmediately(t *testing.T) {
	p := newTestPredictor(16)

	cmd, state := mustPredict(t, p, 11, right())
	if cmd.Sequence != 1 || cmd.Tick != 11 || cmd.EntityID != localEntity {
		t.Fatalf("command = %+v", cmd)
	}
	if state.Payload.X != 101 || state.Tick != 11 || state.EntityID != localEntity {
		t.Fatalf("predicted = %+v", state)
	}

	mustPredict(t, p, 12, down())
	if got := p.Predicted().Payload; got.X != 101 || got.Y != 101 {
		t.Fatalf("after two inputs = %+v", got)
	}
	if p.Pending() != 2 || p.LastSequence() != 2 {
		t.Fatalf("pending=%d last=%d", p.Pending(), p.LastSequence())
	}
}

func TestPredictorKeepsEveryPredictionUntilAcked(t *testing.T) {
	p := newTestPredictor(16)
	for i := 0; i < 4; i++ {
		mustPredict(t, p, tick.Tick(11+i), right())
	}
	for seq := uint32(1); seq <= 4; seq++ {
		st, ok := p.PredictionAt(seq)
		if !ok || st.Payload.X != 100+float64(seq) {
			t.Fatalf("PredictionAt(%d) = %+v,%v", seq, st, ok)
		}
	}
	if _, ok := p.PredictionAt(5); ok {
		t.Fatalf("PredictionAt(5) should be empty")
	}
}

func TestUnackedHonoursLimit(t *testing.T) {
	p := newTestPredictor(16)
	for i := 0; i < 5; i++ {
		mustPredict(t, p, tick.Tick(11+i), right())
	}
	all := p.Unacked(0)
	if len(all) != 5 || all[0].Sequence != 1 {
		t.Fatalf("Unacked(0) = %d commands", len(all))
	}
	some := p.Unacked(2)
	if len(some) != 2 || some[0].Sequence != 1 || some[1].Sequence != 2 {
		t.Fatalf("Unacked(2) = %+v", some)
	}
}

func TestPredictFailsWhenServerStopsAcking(t *testing.T) {
	p := newTestPredictor(2)
	mustPredict(t, p, 11, right())
	mustPredict(t, p, 12, right())

	before := p.Predicted()
	if _, state, err := p.Predict(13, right()); err == nil || state != before {
		t.Fatalf("full buffer: err=%v state=%+v", err, state)
	}
}

func TestResumedPredictorContinuesNumbering(t *testing.T) {
	p := NewPredictor(slide, localEntity, 8, 41, 38)
	cmd, _ := mustPredict(t, p, 1, right())
	if cmd.Sequence != 42 || p.Acked() != 38 {
		t.Fatalf("seq=%d acked=%d", cmd.Sequence, p.Acked())
	}
}
