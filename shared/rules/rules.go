// Package rules is the reference Simulation Step: top-down arena movement
// with wall collision. Server and client must build it from the same arena
// and Config so their steps agree bit for bit.
package rules

import (
	"math"

	"github.com/solarlune/resolv"

	"github.com/automoto/netcode/shared/leveldata"
	"github.com/automoto/netcode/shared/netcomponents"
	"github.com/automoto/netcode/shared/sim"
)

const (
	tagWall  = "wall"
	tagPilot = "pilot"

	cellSize = 16
)

// Config tunes movement.
type Config struct {
	Speed      float64 // units per tick
	BoostScale float64 // speed multiplier while Boost is held
	Size       float64 // pilot square edge
}

// DefaultConfig matches the stock server and bot settings.
func DefaultConfig() Config {
	return Config{Speed: 5, BoostScale: 2, Size: 20}
}

// Rules owns a resolv space holding the static walls plus one probe object
// used to test moves. It is not safe for concurrent use; each simulation loop
// builds its own.
type Rules struct {
	cfg    Config
	width  float64
	height float64
	space  *resolv.Space
	probe  *resolv.Object
	spawns []leveldata.SpawnPoint
}

// New builds the rules for an arena.
func New(arena *leveldata.Arena, cfg Config) *Rules {
	if cfg.Speed <= 0 {
		cfg.Speed = DefaultConfig().Speed
	}
	if cfg.BoostScale < 1 {
		cfg.BoostScale = 1
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}

	w, h := arena.MapWidth, arena.MapHeight
	space := resolv.NewSpace(w, h, cellSize, cellSize)
	for _, r := range arena.Walls {
		obj := resolv.NewObject(r.X, r.Y, r.W, r.H, tagWall)
		obj.SetShape(resolv.NewRectangle(0, 0, r.W, r.H))
		space.Add(obj)
	}

	probe := resolv.NewObject(0, 0, cfg.Size, cfg.Size, tagPilot)
	probe.SetShape(resolv.NewRectangle(0, 0, cfg.Size, cfg.Size))
	space.Add(probe)

	return &Rules{
		cfg:    cfg,
		width:  float64(w),
		height: float64(h),
		space:  space,
		probe:  probe,
		spawns: arena.SpawnPoints,
	}
}

// Step advances one pilot by one tick. Pilots only collide with walls, never
// with each other, so each entity's step depends on its own state alone.
func (r *Rules) Step(b netcomponents.Body, c netcomponents.Controls) netcomponents.Body {
	speed := r.cfg.Speed
	if c.Boost {
		speed *= r.cfg.BoostScale
	}
	b.VX = float64(clampAxis(c.MoveX)) * speed
	b.VY = float64(clampAxis(c.MoveY)) * speed
	if b.VX != 0 || b.VY != 0 {
		b.Angle = math.Atan2(b.VY, b.VX)
	}

	r.probe.X, r.probe.Y = b.X, b.Y
	r.probe.Update()

	dx := r.sweep(b.VX, 0)
	if dx != b.VX {
		b.VX = 0
	}
	r.probe.X += dx
	r.probe.Update()

	dy := r.sweep(0, b.VY)
	if dy != b.VY {
		b.VY = 0
	}
	r.probe.Y += dy
	r.probe.Update()

	b.X = clamp(r.probe.X, 0, r.width-r.cfg.Size)
	b.Y = clamp(r.probe.Y, 0, r.height-r.cfg.Size)
	return b
}

// sweep returns how far the probe may travel along one axis before touching a
// wall.
func (r *Rules) sweep(dx, dy float64) float64 {
	want := dx + dy
	if want == 0 {
		return 0
	}
	check := r.probe.Check(dx, dy, tagWall)
	if check == nil {
		return want
	}
	allowed := want
	for _, wall := range check.ObjectsByTags(tagWall) {
		if !r.overlapsAfter(wall, dx, dy) {
			continue
		}
		contact := check.ContactWithObject(wall)
		d := contact.X()
		if dy != 0 {
			d = contact.Y()
		}
		if math.Abs(d) < math.Abs(allowed) {
			allowed = d
		}
	}
	if (want > 0 && allowed < 0) || (want < 0 && allowed > 0) {
		// already touching or overlapping
		return 0
	}
	return allowed
}

// overlapsAfter refines resolv's cell broadphase to an exact box test.
func (r *Rules) overlapsAfter(wall *resolv.Object, dx, dy float64) bool {
	x, y := r.probe.X+dx, r.probe.Y+dy
	s := r.cfg.Size
	return x < wall.X+wall.W && x+s > wall.X && y < wall.Y+wall.H && y+s > wall.Y
}

// Spawn returns the starting body for the n-th player.
func (r *Rules) Spawn(n int) netcomponents.Body {
	if len(r.spawns) == 0 {
		return netcomponents.Body{
			X: clamp(r.width/2, 0, r.width-r.cfg.Size),
			Y: clamp(r.height/2, 0, r.height-r.cfg.Size),
		}
	}
	if n < 0 {
		n = -n
	}
	sp := r.spawns[n%len(r.spawns)]
	return netcomponents.Body{
		X: clamp(sp.X, 0, r.width-r.cfg.Size),
		Y: clamp(sp.Y, 0, r.height-r.cfg.Size),
	}
}

// StepFunc returns Step as a sim.Step value.
func (r *Rules) StepFunc() sim.Step {
	return r.Step
}

// Config returns the active tuning.
func (r *Rules) Config() Config {
	return r.cfg
}

func clampAxis(v int8) int8 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
