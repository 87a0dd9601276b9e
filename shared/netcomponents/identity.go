package netcomponents

import "github.com/yohamta/donburi"

// EntityID identifies a simulated entity across server and clients.
type EntityID uint32

// ClientID identifies a connected client. Each client owns one entity.
type ClientID uint32

type IdentityData struct {
	Entity EntityID
	Client ClientID
}

var Identity = donburi.NewComponentType[IdentityData]()
