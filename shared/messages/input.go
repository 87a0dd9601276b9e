package messages

import (
	"github.com/automoto/netcode/shared/netcomponents"
)

// InputCommand is one tick of player input. Sequence is assigned by the
// owning client and increases by exactly one per command.
type InputCommand struct {
	EntityID netcomponents.EntityID `codec:"entity_id"`
	Sequence uint32                 `codec:"sequence_number"`
	Tick     uint32                 `codec:"tick"`
	Payload  netcomponents.Controls `codec:"payload"`
}

// InputBatch carries every input the client still considers unacknowledged,
// so a lost datagram is covered by the next one.
type InputBatch struct {
	Commands []InputCommand `codec:"commands"`
}

// Leave is sent by a client that is quitting on purpose.
type Leave struct {
	ClientID netcomponents.ClientID `codec:"client_id"`
}
