// Package landing finds a safe spot to put a traveler on the far side of a gate.
package landing

import modelpkg "voxelgate.ai/internal/sim/transit/model"

const (
	DefaultDropSteps    = 15
	DefaultSearchRadius = 2
)

type Terrain interface {
	// IsSolid reports whether pos can carry a traveler standing on it.
	IsSolid(pos modelpkg.Vec3i) bool
	// IsPassable reports whether a traveler's body may occupy pos.
	IsPassable(pos modelpkg.Vec3i) bool
}

type Params struct {
	DropSteps    int
	SearchRadius int
}

func (p Params) normalized() Params {
	if p.DropSteps <= 0 {
		p.DropSteps = DefaultDropSteps
	}
	if p.SearchRadius < 0 {
		p.SearchRadius = 0
	}
	return p
}

// Find searches down from nominal for solid support with room for height
// cells above it, then repeats the search on rings of columns around nominal.
// Every loop is bounded by p.
func Find(t Terrain, nominal modelpkg.Vec3i, height int, p Params) (modelpkg.Vec3i, bool) {
	if t == nil {
		return modelpkg.Vec3i{}, false
	}
	p = p.normalized()
	if height <= 0 {
		height = 1
	}
	if pos, ok := dropSearch(t, nominal, height, p.DropSteps); ok {
		return pos, true
	}
	for r := 1; r <= p.SearchRadius; r++ {
		for _, off := range ring(r) {
			start := modelpkg.Vec3i{X: nominal.X + off.X, Y: nominal.Y, Z: nominal.Z + off.Z}
			if pos, ok := dropSearch(t, start, height, p.DropSteps); ok {
				return pos, true
			}
		}
	}
	return modelpkg.Vec3i{}, false
}

func dropSearch(t Terrain, start modelpkg.Vec3i, height, steps int) (modelpkg.Vec3i, bool) {
	for i := 0; i <= steps; i++ {
		pos := modelpkg.Vec3i{X: start.X, Y: start.Y - i, Z: start.Z}
		if Fits(t, pos, height) {
			return pos, true
		}
	}
	return modelpkg.Vec3i{}, false
}

// Fits reports whether a traveler of height can stand at pos.
func Fits(t Terrain, pos modelpkg.Vec3i, height int) bool {
	if !t.IsSolid(modelpkg.Vec3i{X: pos.X, Y: pos.Y - 1, Z: pos.Z}) {
		return false
	}
	for dy := 0; dy < height; dy++ {
		if !t.IsPassable(modelpkg.Vec3i{X: pos.X, Y: pos.Y + dy, Z: pos.Z}) {
			return false
		}
	}
	return true
}

// ring lists the columns at Chebyshev distance r, in a fixed order.
func ring(r int) []modelpkg.Vec3i {
	out := make([]modelpkg.Vec3i, 0, 8*r)
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			if abs(dx) != r && abs(dz) != r {
				continue
			}
			out = append(out, modelpkg.Vec3i{X: dx, Z: dz})
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
