package world

import (
	"sort"

	modelpkg "voxelgate.ai/internal/sim/transit/model"
)

func (w *World) AddTraveler(t *modelpkg.Traveler) {
	if t == nil || t.ID == "" {
		return
	}
	t.WorldID = w.cfg.ID
	if t.Height <= 0 {
		t.Height = 2
	}
	w.travelers[t.ID] = t
}

func (w *World) RemoveTraveler(id string) (*modelpkg.Traveler, bool) {
	t := w.travelers[id]
	if t == nil {
		return nil, false
	}
	delete(w.travelers, id)
	return t, true
}

func (w *World) Traveler(id string) (*modelpkg.Traveler, bool) {
	t := w.travelers[id]
	return t, t != nil
}

func (w *World) HasTraveler(id string) bool { return w.travelers[id] != nil }

// Travelers returns the world's travelers ordered by id.
func (w *World) Travelers() []*modelpkg.Traveler {
	out := make([]*modelpkg.Traveler, 0, len(w.travelers))
	for _, t := range w.travelers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GateCellsTouching lists the gate cells inside t's column, bottom-up.
func (w *World) GateCellsTouching(t *modelpkg.Traveler) []Vec3i {
	h := t.Height
	if h <= 0 {
		h = 1
	}
	var out []Vec3i
	for dy := 0; dy < h; dy++ {
		p := Vec3i{X: t.Pos.X, Y: t.Pos.Y + dy, Z: t.Pos.Z}
		if w.Block(p).Kind == BlockGate {
			out = append(out, p)
		}
	}
	return out
}
