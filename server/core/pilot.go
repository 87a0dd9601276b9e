package core

import (
	"github.com/yohamta/donburi"

	"github.com/automoto/netcode/shared/inputbuffer"
	"github.com/automoto/netcode/shared/netcomponents"
)

// PilotStatus is the per-client lifecycle on the server.
type PilotStatus uint8

const (
	// StatusConnected: joined, no input received yet.
	StatusConnected PilotStatus = iota
	// StatusSimulating: inputs are arriving.
	StatusSimulating
	// StatusDisconnected: left or timed out. The entity is gone.
	StatusDisconnected
)

func (s PilotStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusSimulating:
		return "simulating"
	case StatusDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// PilotData is the server-only bookkeeping for a client-owned entity. It is
// never sent over the wire.
type PilotData struct {
	Client netcomponents.ClientID
	Name   string
	Token  string // reconnect token

	Buffer        *inputbuffer.Buffer
	LastProcessed uint32                 // highest sequence simulated
	LastInput     netcomponents.Controls // repeated when no input is buffered
	LastHeard     uint32                 // tick of the last accepted new input
	Status        PilotStatus
}

var Pilot = donburi.NewComponentType[PilotData]()
