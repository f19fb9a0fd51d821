// Package frame decides whether a gate cell is still held up by its surroundings.
package frame

import modelpkg "voxelgate.ai/internal/sim/transit/model"

// View is the slice of world state the adjacency check needs.
type View interface {
	IsFrameMaterial(pos modelpkg.Vec3i) bool
	// GateAxisAt returns the axis of the gate cell at pos, if pos holds one.
	GateAxisAt(pos modelpkg.Vec3i) (modelpkg.Axis, bool)
}

// Neighbors returns the four in-plane neighbors of cell: both sides along
// axis, then above and below.
func Neighbors(cell modelpkg.Vec3i, axis modelpkg.Axis) [4]modelpkg.Vec3i {
	step := axis.Step()
	return [4]modelpkg.Vec3i{
		{X: cell.X - step.X, Y: cell.Y, Z: cell.Z - step.Z},
		{X: cell.X + step.X, Y: cell.Y, Z: cell.Z + step.Z},
		{X: cell.X, Y: cell.Y + 1, Z: cell.Z},
		{X: cell.X, Y: cell.Y - 1, Z: cell.Z},
	}
}

// IsSupported reports whether at least one in-plane neighbor is frame
// material or a gate cell sharing axis.
func IsSupported(v View, cell modelpkg.Vec3i, axis modelpkg.Axis) bool {
	if v == nil {
		return false
	}
	for _, n := range Neighbors(cell, axis) {
		if v.IsFrameMaterial(n) {
			return true
		}
		if a, ok := v.GateAxisAt(n); ok && a == axis {
			return true
		}
	}
	return false
}

// Affected lists the gate cells around a changed position whose support
// must be rechecked right away. Order is stable.
func Affected(v View, changed modelpkg.Vec3i) []modelpkg.Vec3i {
	if v == nil {
		return nil
	}
	around := [6]modelpkg.Vec3i{
		{X: changed.X - 1, Y: changed.Y, Z: changed.Z},
		{X: changed.X + 1, Y: changed.Y, Z: changed.Z},
		{X: changed.X, Y: changed.Y - 1, Z: changed.Z},
		{X: changed.X, Y: changed.Y + 1, Z: changed.Z},
		{X: changed.X, Y: changed.Y, Z: changed.Z - 1},
		{X: changed.X, Y: changed.Y, Z: changed.Z + 1},
	}
	var out []modelpkg.Vec3i
	for _, p := range around {
		if _, ok := v.GateAxisAt(p); ok {
			out = append(out, p)
		}
	}
	return out
}
