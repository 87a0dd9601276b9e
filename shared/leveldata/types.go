// Package leveldata provides TMX arena parsing shared between client and server.
// It has no dependencies on donburi or resolv, pure data only.
package leveldata

// Arena holds all collision-relevant data parsed from a TMX arena file.
type Arena struct {
	Name        string
	Walls       []SolidRect
	SpawnPoints []SpawnPoint
	MapWidth    int
	MapHeight   int
}

// SolidRect represents a solid wall.
type SolidRect struct {
	X, Y, W, H float64
}

// SpawnPoint represents a player spawn location.
type SpawnPoint struct {
	X, Y  float64
	Index int
}

// Open returns a wall-less arena of the given size with a single spawn in
// its centre.
func Open(width, height int) *Arena {
	return &Arena{
		Name:        "open",
		MapWidth:    width,
		MapHeight:   height,
		SpawnPoints: []SpawnPoint{{X: float64(width) / 2, Y: float64(height) / 2}},
	}
}

// Spawn picks a spawn point for the n-th joining player, cycling through the
// arena's spawns.
func (a *Arena) Spawn(n int) SpawnPoint {
	if len(a.SpawnPoints) == 0 {
		return SpawnPoint{X: float64(a.MapWidth) / 2, Y: float64(a.MapHeight) / 2}
	}
	if n < 0 {
		n = -n
	}
	return a.SpawnPoints[n%len(a.SpawnPoints)]
}
