package model

import "fmt"

// Axis is the horizontal direction a gate's plane extends along.
type Axis uint8

const (
	AxisX Axis = iota + 1
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisZ:
		return "Z"
	default:
		return ""
	}
}

func ParseAxis(s string) (Axis, error) {
	switch s {
	case "X", "x":
		return AxisX, nil
	case "Z", "z":
		return AxisZ, nil
	default:
		return 0, fmt.Errorf("unknown axis: %q", s)
	}
}

// Step is the unit vector along the axis.
func (a Axis) Step() Vec3i {
	switch a {
	case AxisX:
		return Vec3i{X: 1}
	case AxisZ:
		return Vec3i{Z: 1}
	default:
		return Vec3i{}
	}
}

// Rotated returns the perpendicular horizontal axis.
func (a Axis) Rotated() Axis {
	switch a {
	case AxisX:
		return AxisZ
	case AxisZ:
		return AxisX
	default:
		return a
	}
}

type GateState uint8

const (
	StateUnvalidated GateState = iota
	StateActive
	StateExhausted
	StateStabilized
)

func (s GateState) String() string {
	switch s {
	case StateUnvalidated:
		return "UNVALIDATED"
	case StateActive:
		return "ACTIVE"
	case StateExhausted:
		return "EXHAUSTED"
	case StateStabilized:
		return "STABILIZED"
	default:
		return fmt.Sprintf("GateState(%d)", uint8(s))
	}
}

func ParseGateState(s string) (GateState, error) {
	switch s {
	case "UNVALIDATED":
		return StateUnvalidated, nil
	case "ACTIVE":
		return StateActive, nil
	case "EXHAUSTED":
		return StateExhausted, nil
	case "STABILIZED":
		return StateStabilized, nil
	default:
		return 0, fmt.Errorf("unknown gate state: %q", s)
	}
}

// CanTransitionTo reports whether the lifecycle allows s -> next.
// Stabilized is terminal; Exhausted is reachable only from Active.
func (s GateState) CanTransitionTo(next GateState) bool {
	switch s {
	case StateUnvalidated:
		return next == StateActive
	case StateActive:
		return next == StateExhausted || next == StateStabilized
	case StateExhausted:
		return next == StateStabilized
	case StateStabilized:
		return false
	default:
		return false
	}
}

// AllowsTransit reports whether travelers charge and transit through a gate in this state.
func (s GateState) AllowsTransit() bool {
	switch s {
	case StateActive, StateStabilized:
		return true
	case StateUnvalidated, StateExhausted:
		return false
	default:
		return false
	}
}

type Gate struct {
	ID      string
	WorldID string
	Anchor  Vec3i
	Axis    Axis
	Width   int
	Height  int
	State   GateState

	// Empty when unlinked. A link may briefly point at a removed gate
	// until Registry.RepairLinks clears it.
	LinkedGateID string

	IgnitedTick    uint64
	StabilizedTick uint64
}

// Contains reports whether pos is one of the gate's interior cells.
func (g Gate) Contains(pos Vec3i) bool {
	if pos.Y < g.Anchor.Y || pos.Y >= g.Anchor.Y+g.Height {
		return false
	}
	switch g.Axis {
	case AxisX:
		return pos.Z == g.Anchor.Z && pos.X >= g.Anchor.X && pos.X < g.Anchor.X+g.Width
	case AxisZ:
		return pos.X == g.Anchor.X && pos.Z >= g.Anchor.Z && pos.Z < g.Anchor.Z+g.Width
	default:
		return false
	}
}

// Cells lists interior cells bottom-up, along the axis.
func (g Gate) Cells() []Vec3i {
	if g.Width <= 0 || g.Height <= 0 {
		return nil
	}
	step := g.Axis.Step()
	out := make([]Vec3i, 0, g.Width*g.Height)
	for dy := 0; dy < g.Height; dy++ {
		for i := 0; i < g.Width; i++ {
			out = append(out, Vec3i{
				X: g.Anchor.X + step.X*i,
				Y: g.Anchor.Y + dy,
				Z: g.Anchor.Z + step.Z*i,
			})
		}
	}
	return out
}

// Center is the bottom-middle interior cell, used as the nominal arrival spot.
func (g Gate) Center() Vec3i {
	step := g.Axis.Step()
	half := (g.Width - 1) / 2
	return Vec3i{X: g.Anchor.X + step.X*half, Y: g.Anchor.Y, Z: g.Anchor.Z + step.Z*half}
}
