package sim

import (
	"fmt"

	"github.com/automoto/netcode/shared/messages"
)

// Divergence describes the first point where two replays of the same input
// log disagree.
type Divergence struct {
	Index    int
	Sequence uint32
	First    messages.EntityState
	Second   messages.EntityState
}

func (d *Divergence) Error() string {
	return fmt.Sprintf("sim: replay diverged at input %d (sequence %d): %+v != %+v",
		d.Index, d.Sequence, d.First.Payload, d.Second.Payload)
}

// CheckDeterminism replays inputs twice from the same baseline and returns a
// *Divergence if any intermediate state differs.
func CheckDeterminism(step Step, baseline messages.EntityState, inputs []messages.InputCommand) error {
	first := Trace(step, baseline, inputs)
	second := Trace(step, baseline, inputs)
	for i := range first {
		if first[i] != second[i] {
			return &Divergence{Index: i, Sequence: inputs[i].Sequence, First: first[i], Second: second[i]}
		}
	}
	return nil
}
