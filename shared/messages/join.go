package messages

import "github.com/automoto/netcode/shared/netcomponents"

// JoinRequest is sent by a client after connecting to request joining the game.
// A non-empty ReconnectToken resumes an entity that has not yet timed out.
type JoinRequest struct {
	Version        string `codec:"version"`
	PlayerName     string `codec:"player_name"`
	ReconnectToken string `codec:"reconnect_token"`
}

// JoinAccepted is sent by the server when a client's join request is accepted.
type JoinAccepted struct {
	ClientID       netcomponents.ClientID `codec:"client_id"`
	EntityID       netcomponents.EntityID `codec:"entity_id"`
	ReconnectToken string                 `codec:"reconnect_token"`
	ServerName     string                 `codec:"server_name"`
	TickRate       int                    `codec:"tick_rate"`
	ServerTick     uint32                 `codec:"server_tick"`
	LastSequence   uint32                 `codec:"last_sequence"` // numbering cursor
	Acked          uint32                 `codec:"acked"`         // last sequence simulated, Spawn includes it
	Spawn          netcomponents.Body     `codec:"spawn"`
}

// JoinRejected is sent by the server when a client's join request is rejected.
type JoinRejected struct {
	Reason string `codec:"reason"`
}

// Ping carries the client send time for round trip measurement.
type Ping struct {
	ClientTime int64 `codec:"client_time"`
}

// Pong echoes a Ping along with the server's current tick.
type Pong struct {
	ClientTime int64  `codec:"client_time"`
	ServerTick uint32 `codec:"server_tick"`
}
