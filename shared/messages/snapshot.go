package messages

import (
	"github.com/automoto/netcode/shared/netcomponents"
)

// EntityState is the simulated state of one entity at one tick.
type EntityState struct {
	EntityID netcomponents.EntityID `codec:"entity_id"`
	Tick     uint32                 `codec:"-"`
	Payload  netcomponents.Body     `codec:"payload"`
}

// Ack reports the last input sequence the server simulated for a client.
type Ack struct {
	ClientID     netcomponents.ClientID `codec:"client_id"`
	LastSequence uint32                 `codec:"last_sequence"`
}

// Snapshot is the authoritative state of every live entity at one tick.
type Snapshot struct {
	Tick     uint32        `codec:"tick"`
	Entities []EntityState `codec:"entities"`
	Acks     []Ack         `codec:"acks"`
}

// Entity returns the state for id, if present.
func (s *Snapshot) Entity(id netcomponents.EntityID) (EntityState, bool) {
	for _, e := range s.Entities {
		if e.EntityID == id {
			return e, true
		}
	}
	return EntityState{}, false
}

// AckFor returns the acknowledged sequence for a client, if present.
func (s *Snapshot) AckFor(id netcomponents.ClientID) (uint32, bool) {
	for _, a := range s.Acks {
		if a.ClientID == id {
			return a.LastSequence, true
		}
	}
	return 0, false
}

// Stamp sets every entity's tick to the snapshot tick. The wire format only
// carries the tick once.
func (s *Snapshot) Stamp() {
	for i := range s.Entities {
		s.Entities[i].Tick = s.Tick
	}
}
