package protocol

import (
	"fmt"

	"github.com/automoto/netcode/shared/messages"
)

// Kind tags the message carried by an Envelope.
type Kind uint8

// Kind 0 is reserved so a zeroed envelope never decodes as a real message.
const (
	KindInputBatch Kind = iota + 1
	KindSnapshot
	KindJoinRequest
	KindJoinAccepted
	KindJoinRejected
	KindLeave
	KindPing
	KindPong
)

var kindNames = map[Kind]string{
	KindInputBatch:   "input_batch",
	KindSnapshot:     "snapshot",
	KindJoinRequest:  "join_request",
	KindJoinAccepted: "join_accepted",
	KindJoinRejected: "join_rejected",
	KindLeave:        "leave",
	KindPing:         "ping",
	KindPong:         "pong",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k names a registered message.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// KindOf returns the registered kind for a message value. Both server and
// client use it so an Envelope never carries a mismatched tag.
func KindOf(msg any) (Kind, error) {
	switch msg.(type) {
	case messages.InputBatch, *messages.InputBatch:
		return KindInputBatch, nil
	case messages.Snapshot, *messages.Snapshot:
		return KindSnapshot, nil
	case messages.JoinRequest, *messages.JoinRequest:
		return KindJoinRequest, nil
	case messages.JoinAccepted, *messages.JoinAccepted:
		return KindJoinAccepted, nil
	case messages.JoinRejected, *messages.JoinRejected:
		return KindJoinRejected, nil
	case messages.Leave, *messages.Leave:
		return KindLeave, nil
	case messages.Ping, *messages.Ping:
		return KindPing, nil
	case messages.Pong, *messages.Pong:
		return KindPong, nil
	}
	return 0, fmt.Errorf("protocol: unregistered message type %T", msg)
}
