package netcomponents

// Controls is the input payload captured once per client tick.
type Controls struct {
	MoveX int8 // -1 left, 0 none, 1 right
	MoveY int8 // -1 up, 0 none, 1 down
	Boost bool
}

// Idle reports whether the controls request no movement.
func (c Controls) Idle() bool {
	return c.MoveX == 0 && c.MoveY == 0
}
