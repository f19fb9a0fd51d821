package gate

import (
	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/mathx"
	"voxelgate.ai/internal/sim/transit"
	"voxelgate.ai/internal/sim/transit/landing"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/world"
)

// Arrival gates carved on the far side of an unlinked gate.
const (
	arrivalGateWidth  = 2
	arrivalGateHeight = 3
)

type TransitResult struct {
	FromWorld   string
	ToWorld     string
	SourceGate  string
	ArrivalGate string
	Landing     modelpkg.Vec3i
}

// attemptTransit moves t from w through g. On error nothing has moved; the
// caller resets the tracker entry.
func (b *Behavior) attemptTransit(w *world.World, t *modelpkg.Traveler, g modelpkg.Gate, tick uint64) (TransitResult, error) {
	if !t.CanTransit() {
		return TransitResult{}, transit.ErrNotEligible
	}
	destID, ok := b.worlds.Destination(w.ID())
	if !ok {
		return TransitResult{}, transit.ErrNoRoute
	}
	dest, ok := b.worlds.World(destID)
	if !ok {
		return TransitResult{}, transit.Errorf(transit.ErrWorldNotFound.Code, destID)
	}

	peer, linked := b.linkedPeer(g, destID)
	nominal := MapPosition(t.Pos, w.Config(), dest.Config())
	if linked {
		nominal = peer.Center()
	}
	pos, ok := landing.Find(dest, nominal, t.Height, b.params.Landing)
	if !ok && !linked && nominal.Y != dest.Config().FloorY {
		// Worlds differ in ground level; retry once from the destination floor.
		pos, ok = landing.Find(dest, modelpkg.Vec3i{X: nominal.X, Y: dest.Config().FloorY, Z: nominal.Z}, t.Height, b.params.Landing)
	}
	if !ok {
		return TransitResult{}, transit.ErrDestinationUnresolved
	}

	res := TransitResult{FromWorld: w.ID(), ToWorld: destID, SourceGate: g.ID, Landing: pos}
	if linked {
		res.ArrivalGate = peer.ID
	}

	w.RemoveTraveler(t.ID)
	t.Pos = pos
	t.Yaw = 0
	dest.AddTraveler(t)

	if b.ledger.RecordArrival(destID) {
		b.logf("[gate] first arrival into %s; stabilization required before new ignitions", destID)
	}

	if !linked {
		if ag, ok := b.arrivalGate(dest, pos, g.Axis, tick); ok {
			res.ArrivalGate = ag.ID
		}
	}

	switch g.State {
	case modelpkg.StateActive:
		if _, err := b.reg.Transition(g.ID, modelpkg.StateExhausted, tick); err != nil {
			b.logf("[gate] exhaust %s: %v", g.ID, err)
		}
	case modelpkg.StateStabilized:
	case modelpkg.StateUnvalidated, modelpkg.StateExhausted:
		// contact() only attempts transit from Active or Stabilized gates.
	}

	b.trk.Transited(t.ID, destID, pos, tick)

	b.logf("[gate] %s transited %s -> %s via %s, landed at %v", t.ID, res.FromWorld, destID, g.ID, pos)
	b.audit(transit.AuditEntry{
		Tick:       tick,
		WorldID:    res.FromWorld,
		Action:     transit.AuditTransit,
		GateID:     g.ID,
		LinkedGate: res.ArrivalGate,
		TravelerID: t.ID,
		ToWorldID:  destID,
		Pos:        pos.ToArray(),
	})
	if b.hooks.Transited != nil {
		b.hooks.Transited(Event{
			Kind:       protocol.NoticeTransit,
			Tick:       tick,
			WorldID:    res.FromWorld,
			GateID:     g.ID,
			TravelerID: t.ID,
			ToWorldID:  destID,
			Pos:        pos,
		})
	}
	return res, nil
}

// linkedPeer returns g's peer when it exists in the destination world.
// A dangling link is treated as no link.
func (b *Behavior) linkedPeer(g modelpkg.Gate, destID string) (modelpkg.Gate, bool) {
	peer, ok, err := b.reg.Peer(g.ID)
	if err != nil {
		b.logf("[gate] %v (treated as unlinked)", err)
		return modelpkg.Gate{}, false
	}
	if !ok || peer.WorldID != destID {
		return modelpkg.Gate{}, false
	}
	return peer, true
}

// MapPosition scales X/Z by the worlds' coordinate scales and keeps the
// height above floor level.
func MapPosition(p modelpkg.Vec3i, from, to world.Config) modelpkg.Vec3i {
	return modelpkg.Vec3i{
		X: mathx.ScaleCoord(p.X, from.CoordScale, to.CoordScale),
		Y: p.Y - from.FloorY + to.FloorY,
		Z: mathx.ScaleCoord(p.Z, from.CoordScale, to.CoordScale),
	}
}

// arrivalGate returns the gate a traveler arrived into, carving a small one
// at pos when none is near. A carved gate starts Exhausted: the way back opens
// only once it is stabilized.
func (b *Behavior) arrivalGate(w *world.World, pos modelpkg.Vec3i, axis modelpkg.Axis, tick uint64) (modelpkg.Gate, bool) {
	if g, ok := b.reg.Nearest(w.ID(), pos, b.params.ArrivalSearchRadius); ok {
		return g, true
	}
	candidate := modelpkg.Gate{
		WorldID: w.ID(),
		Anchor:  pos,
		Axis:    axis,
		Width:   arrivalGateWidth,
		Height:  arrivalGateHeight,
	}
	for _, c := range frameRing(candidate, true) {
		if !w.InBounds(c) {
			return modelpkg.Gate{}, false
		}
	}
	for _, c := range frameRing(candidate, true) {
		w.SetBlock(c, world.Frame)
	}
	// Clear first so a partially carved interior never holds terrain.
	for _, c := range candidate.Cells() {
		w.SetBlock(c, world.Air)
	}
	for _, c := range candidate.Cells() {
		w.SetBlock(c, world.GateBlock(axis))
	}
	g, err := b.reg.Ignite(candidate, tick)
	if err != nil {
		b.logf("[gate] arrival gate in %s at %v: %v", w.ID(), pos, err)
		return modelpkg.Gate{}, false
	}
	if g, err = b.reg.Transition(g.ID, modelpkg.StateExhausted, tick); err != nil {
		b.logf("[gate] exhaust arrival gate %s: %v", g.ID, err)
	}
	b.logf("[gate] carved arrival gate %s in %s at %v", g.ID, w.ID(), pos)
	b.audit(transit.AuditEntry{
		Tick:    tick,
		WorldID: w.ID(),
		Action:  transit.AuditArrivalGate,
		GateID:  g.ID,
		Pos:     pos.ToArray(),
	})
	return g, true
}

// frameRing lists the cells around a gate's interior: the row below, the row
// above and a column on each side. Corners are included only when asked.
func frameRing(g modelpkg.Gate, corners bool) []modelpkg.Vec3i {
	step := g.Axis.Step()
	at := func(i, dy int) modelpkg.Vec3i {
		return modelpkg.Vec3i{
			X: g.Anchor.X + step.X*i,
			Y: g.Anchor.Y + dy,
			Z: g.Anchor.Z + step.Z*i,
		}
	}
	lo, hi := 0, g.Width-1
	if corners {
		lo, hi = -1, g.Width
	}
	out := make([]modelpkg.Vec3i, 0, 2*(g.Width+2)+2*g.Height)
	for i := lo; i <= hi; i++ {
		out = append(out, at(i, -1), at(i, g.Height))
	}
	for dy := 0; dy < g.Height; dy++ {
		out = append(out, at(-1, dy), at(g.Width, dy))
	}
	return out
}
