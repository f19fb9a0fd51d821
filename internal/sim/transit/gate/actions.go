package gate

import (
	"fmt"

	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/transit"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/world"
)

// Interior extent limits for ignition.
const (
	MinWidth  = 1
	MaxWidth  = 21
	MinHeight = 2
	MaxHeight = 21
)

type IgniteRequest struct {
	WorldID string
	// Anchor is the lowest interior cell; the interior extends along Axis and up.
	Anchor modelpkg.Vec3i
	Axis   modelpkg.Axis
	Width  int
	Height int
}

// Ignite validates a framed candidate volume, fills it with gate cells and
// registers the gate as Active.
func (b *Behavior) Ignite(req IgniteRequest, tick uint64) (modelpkg.Gate, error) {
	if req.Axis != modelpkg.AxisX && req.Axis != modelpkg.AxisZ {
		return modelpkg.Gate{}, transit.Errorf(transit.ErrBadRequest.Code, "axis must be X or Z")
	}
	if req.Width < MinWidth || req.Width > MaxWidth || req.Height < MinHeight || req.Height > MaxHeight {
		return modelpkg.Gate{}, transit.Errorf(transit.ErrBadRequest.Code,
			fmt.Sprintf("gate interior must be %d..%d wide and %d..%d tall", MinWidth, MaxWidth, MinHeight, MaxHeight))
	}
	w, ok := b.worlds.World(req.WorldID)
	if !ok {
		return modelpkg.Gate{}, transit.Errorf(transit.ErrWorldNotFound.Code, req.WorldID)
	}
	destID, ok := b.worlds.Destination(w.ID())
	if !ok {
		return modelpkg.Gate{}, transit.ErrNoRoute
	}
	// A governed world reached by a one-way trip accepts no new gates until stabilized.
	if b.ledger.IgnitionBlocked(w.ID()) {
		return modelpkg.Gate{}, transit.ErrDestinationLocked
	}

	candidate := modelpkg.Gate{
		WorldID: w.ID(),
		Anchor:  req.Anchor,
		Axis:    req.Axis,
		Width:   req.Width,
		Height:  req.Height,
	}
	if err := validateFrame(w, candidate); err != nil {
		return modelpkg.Gate{}, err
	}

	g, err := b.reg.Ignite(candidate, tick)
	if err != nil {
		return modelpkg.Gate{}, err
	}
	for _, c := range g.Cells() {
		w.SetBlock(c, world.GateBlock(g.Axis))
	}

	b.logf("[gate] ignited %s in %s at %v axis=%s %dx%d", g.ID, g.WorldID, g.Anchor, g.Axis, g.Width, g.Height)
	b.audit(transit.AuditEntry{
		Tick:      tick,
		WorldID:   g.WorldID,
		Action:    transit.AuditIgnite,
		GateID:    g.ID,
		ToWorldID: destID,
		Pos:       g.Anchor.ToArray(),
	})
	b.broadcast(Event{Kind: protocol.NoticeIgnited, Tick: tick, WorldID: g.WorldID, GateID: g.ID, ToWorldID: destID, Pos: g.Anchor})
	return g, nil
}

// validateFrame requires a clear interior inside a complete frame ring.
func validateFrame(w *world.World, g modelpkg.Gate) error {
	for _, c := range g.Cells() {
		if !w.InBounds(c) || w.Block(c).Kind != world.BlockAir {
			return transit.Errorf(transit.ErrFrameInvalid.Code, fmt.Sprintf("interior cell %v is not clear", c))
		}
	}
	for _, c := range frameRing(g, false) {
		if !w.IsFrameMaterial(c) {
			return transit.Errorf(transit.ErrFrameInvalid.Code, fmt.Sprintf("frame missing at %v", c))
		}
	}
	return nil
}

type StabilizeRequest struct {
	WorldID string
	// ActorID is the traveler performing the action. Empty means an operator
	// action that needs no stabilizer item.
	ActorID string
	Near    modelpkg.Vec3i
}

type StabilizeResult struct {
	GateID       string
	LinkedGateID string
}

// Stabilize makes the gate nearest to req.Near permanent and links it with
// its counterpart in the destination world, if one exists. Failures change nothing.
func (b *Behavior) Stabilize(req StabilizeRequest, tick uint64) (StabilizeResult, error) {
	w, ok := b.worlds.World(req.WorldID)
	if !ok {
		return StabilizeResult{}, transit.Errorf(transit.ErrWorldNotFound.Code, req.WorldID)
	}
	var actor *modelpkg.Traveler
	if req.ActorID != "" {
		actor, ok = w.Traveler(req.ActorID)
		if !ok {
			return StabilizeResult{}, transit.ErrTravelerNotFound
		}
	}

	g, ok := b.reg.Nearest(w.ID(), req.Near, b.params.StabilizeRadius)
	if !ok {
		return StabilizeResult{}, transit.ErrNoGateFound
	}
	switch g.State {
	case modelpkg.StateStabilized:
		return StabilizeResult{}, transit.ErrAlreadyStabilized
	case modelpkg.StateUnvalidated:
		return StabilizeResult{}, transit.ErrNotStabilizable
	case modelpkg.StateActive, modelpkg.StateExhausted:
	default:
		return StabilizeResult{}, transit.ErrNotStabilizable
	}
	item := b.params.StabilizerItem
	if actor != nil && item != "" && actor.Inventory[item] < 1 {
		return StabilizeResult{}, transit.ErrNoResource
	}

	g, err := b.reg.Transition(g.ID, modelpkg.StateStabilized, tick)
	if err != nil {
		return StabilizeResult{}, err
	}
	res := StabilizeResult{GateID: g.ID}

	destID, hasRoute := b.worlds.Destination(w.ID())
	if hasRoute {
		if peer, ok := b.findPeer(w, g, destID); ok {
			if err := b.reg.Link(g.ID, peer.ID); err != nil {
				b.logf("[gate] link %s <-> %s: %v", g.ID, peer.ID, err)
			} else {
				res.LinkedGateID = peer.ID
				switch peer.State {
				case modelpkg.StateActive, modelpkg.StateExhausted:
					if _, err := b.reg.Transition(peer.ID, modelpkg.StateStabilized, tick); err != nil {
						b.logf("[gate] stabilize peer %s: %v", peer.ID, err)
					}
				case modelpkg.StateStabilized, modelpkg.StateUnvalidated:
				}
			}
		}
		b.ledger.MarkStabilized(destID)
	}
	b.ledger.MarkStabilized(w.ID())

	if actor != nil && item != "" {
		actor.Inventory[item]--
		if actor.Inventory[item] <= 0 {
			delete(actor.Inventory, item)
		}
	}

	b.logf("[gate] stabilized %s in %s (linked=%q) by %q", g.ID, g.WorldID, res.LinkedGateID, req.ActorID)
	b.audit(transit.AuditEntry{
		Tick:       tick,
		WorldID:    g.WorldID,
		Action:     transit.AuditStabilize,
		GateID:     g.ID,
		LinkedGate: res.LinkedGateID,
		TravelerID: req.ActorID,
		ToWorldID:  destID,
		Pos:        g.Anchor.ToArray(),
	})
	b.broadcast(Event{
		Kind:       protocol.NoticeStabilized,
		Tick:       tick,
		WorldID:    g.WorldID,
		GateID:     g.ID,
		TravelerID: req.ActorID,
		ToWorldID:  destID,
		Pos:        g.Anchor,
		Message:    "a gate has been stabilized",
	})
	return res, nil
}

// findPeer prefers an existing link, then the gate nearest to g's mapped
// center in the destination world.
func (b *Behavior) findPeer(w *world.World, g modelpkg.Gate, destID string) (modelpkg.Gate, bool) {
	if peer, ok := b.linkedPeer(g, destID); ok {
		return peer, true
	}
	dest, ok := b.worlds.World(destID)
	if !ok {
		return modelpkg.Gate{}, false
	}
	mapped := MapPosition(g.Center(), w.Config(), dest.Config())
	return b.reg.Nearest(destID, mapped, b.params.PeerSearchRadius)
}
