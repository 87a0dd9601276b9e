package netcomponents

import (
	"math"

	"github.com/yohamta/donburi"
)

// Body is the simulated payload of one entity: where it is, how it moves and
// which way it faces.
type Body struct {
	X, Y   float64
	VX, VY float64
	Angle  float64 // radians
}

var BodyComponent = donburi.NewComponentType[Body]()

// LerpBody blends every payload field between two bodies. Angle follows the
// shortest arc.
func LerpBody(from, to Body, t float64) Body {
	return Body{
		X:     from.X + (to.X-from.X)*t,
		Y:     from.Y + (to.Y-from.Y)*t,
		VX:    from.VX + (to.VX-from.VX)*t,
		VY:    from.VY + (to.VY-from.VY)*t,
		Angle: lerpAngle(from.Angle, to.Angle, t),
	}
}

// Distance returns the positional error between two bodies.
func Distance(a, b Body) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func lerpAngle(from, to, t float64) float64 {
	delta := math.Mod(to-from, 2*math.Pi)
	if delta > math.Pi {
		delta -= 2 * math.Pi
	} else if delta < -math.Pi {
		delta += 2 * math.Pi
	}
	return from + delta*t
}
