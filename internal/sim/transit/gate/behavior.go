// Package gate is the per-tick behavior of gate cells: frame checks, traveler
// contact, transit attempts and the externally triggered ignite/stabilize actions.
package gate

import (
	"log"

	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/transit"
	"voxelgate.ai/internal/sim/transit/frame"
	"voxelgate.ai/internal/sim/transit/landing"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/transit/registry"
	"voxelgate.ai/internal/sim/transit/stabilization"
	"voxelgate.ai/internal/sim/transit/tracker"
	"voxelgate.ai/internal/sim/tuning"
	"voxelgate.ai/internal/sim/world"
)

const (
	saltFrameCheck uint64 = 0x6672616d65
	saltSweep      uint64 = 0x7377656570
)

// Worlds resolves the simulated worlds and their routes.
type Worlds interface {
	World(id string) (*world.World, bool)
	// Destination is the single destination world of a source world.
	Destination(fromWorld string) (string, bool)
	TravelerExists(travelerID string) bool
}

type Params struct {
	Landing landing.Params

	ArrivalSearchRadius int
	StabilizeRadius     int
	PeerSearchRadius    int

	FrameCheckPermille int
	SweepPermille      int

	StabilizerItem string
}

func ParamsFromTuning(t tuning.Transit) Params {
	return Params{
		Landing: landing.Params{
			DropSteps:    t.LandingDropSteps,
			SearchRadius: t.LandingSearchRadius,
		},
		ArrivalSearchRadius: t.ArrivalSearchRadius,
		StabilizeRadius:     t.StabilizeRadius,
		PeerSearchRadius:    t.PeerSearchRadius,
		FrameCheckPermille:  t.FrameCheckPermille,
		SweepPermille:       t.SweepPermille,
		StabilizerItem:      t.StabilizerItem,
	}
}

// Event is what the behavior reports to feedback collaborators.
type Event struct {
	Kind       string
	Tick       uint64
	WorldID    string
	GateID     string
	TravelerID string
	ToWorldID  string
	Pos        modelpkg.Vec3i
	Message    string
}

// Hooks are optional; nil funcs are skipped.
type Hooks struct {
	// Arming fires on a traveler's 0 -> 1 counter transition.
	Arming func(ev Event)
	// Transited fires after a successful transit.
	Transited func(ev Event)
	// Broadcast carries world-wide notices (stabilized, ignited, frame and gate loss).
	Broadcast func(ev Event)
	Audit     func(e transit.AuditEntry)
}

type Behavior struct {
	reg    *registry.Registry
	trk    *tracker.Tracker
	ledger *stabilization.Ledger
	worlds Worlds

	params Params
	hooks  Hooks
	logger *log.Logger
}

func New(reg *registry.Registry, trk *tracker.Tracker, ledger *stabilization.Ledger, worlds Worlds, p Params, logger *log.Logger) *Behavior {
	return &Behavior{
		reg:    reg,
		trk:    trk,
		ledger: ledger,
		worlds: worlds,
		params: p,
		logger: logger,
	}
}

func (b *Behavior) SetHooks(h Hooks) { b.hooks = h }

func (b *Behavior) Params() Params { return b.params }

func (b *Behavior) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

func (b *Behavior) audit(e transit.AuditEntry) {
	if b.hooks.Audit != nil {
		b.hooks.Audit(e)
	}
}

func (b *Behavior) broadcast(ev Event) {
	if b.hooks.Broadcast != nil {
		b.hooks.Broadcast(ev)
	}
}

// TickWorld advances one world by one tick: sampled frame checks, traveler
// contact and the sampled tracker sweep.
func (b *Behavior) TickWorld(w *world.World, tick uint64) {
	if w == nil {
		return
	}
	b.sampleFrames(w, tick)

	for _, t := range w.Travelers() {
		b.contact(w, t, tick)
	}

	if w.Roll(tick, saltSweep, modelpkg.Vec3i{}, b.params.SweepPermille) {
		b.sweep(tick)
	}
}

func (b *Behavior) sampleFrames(w *world.World, tick uint64) {
	if b.params.FrameCheckPermille <= 0 {
		return
	}
	for _, g := range b.reg.InWorld(w.ID()) {
		for _, c := range g.Cells() {
			if !w.Roll(tick, saltFrameCheck, c, b.params.FrameCheckPermille) {
				continue
			}
			b.checkCell(w, c, tick)
		}
	}
}

// NeighborChanged rechecks the gate cells around pos right away. It is wired
// as the world's change listener.
func (b *Behavior) NeighborChanged(w *world.World, pos modelpkg.Vec3i, from, to world.Block, tick uint64) {
	if from.Kind == world.BlockGate && to.Kind != world.BlockGate {
		b.cellLost(w, pos, tick)
	}
	for _, c := range frame.Affected(w, pos) {
		b.checkCell(w, c, tick)
	}
}

// checkCell reverts an unsupported gate cell to air. The revert itself
// re-enters NeighborChanged, so a break cascades through dependent cells.
func (b *Behavior) checkCell(w *world.World, cell modelpkg.Vec3i, tick uint64) {
	axis, ok := w.GateAxisAt(cell)
	if !ok {
		return
	}
	if frame.IsSupported(w, cell, axis) {
		return
	}
	gateID := ""
	if g, ok := b.reg.GateAt(w.ID(), cell); ok {
		gateID = g.ID
	}
	b.logf("[gate] %s: %s at %v in %s", transit.ErrFrameInvalid.Code, gateID, cell, w.ID())
	b.audit(transit.AuditEntry{
		Tick:    tick,
		WorldID: w.ID(),
		Action:  transit.AuditFrameDestroyed,
		GateID:  gateID,
		Pos:     cell.ToArray(),
		Reason:  transit.ErrFrameInvalid.Code,
	})
	b.broadcast(Event{Kind: protocol.NoticeFrameDestroyed, Tick: tick, WorldID: w.ID(), GateID: gateID, Pos: cell})
	w.SetBlock(cell, world.Air)
	b.sweep(tick)
}

// cellLost removes a gate from the registry once none of its cells remain.
func (b *Behavior) cellLost(w *world.World, pos modelpkg.Vec3i, tick uint64) {
	g, ok := b.reg.GateAt(w.ID(), pos)
	if !ok {
		return
	}
	for _, c := range g.Cells() {
		if _, ok := w.GateAxisAt(c); ok {
			return
		}
	}
	b.reg.Remove(g.ID)
	b.logf("[gate] %s collapsed in %s (linked=%q)", g.ID, g.WorldID, g.LinkedGateID)
	b.audit(transit.AuditEntry{
		Tick:       tick,
		WorldID:    g.WorldID,
		Action:     transit.AuditGateCollapsed,
		GateID:     g.ID,
		LinkedGate: g.LinkedGateID,
		Pos:        g.Anchor.ToArray(),
	})
	b.broadcast(Event{Kind: protocol.NoticeGateCollapsed, Tick: tick, WorldID: g.WorldID, GateID: g.ID, Pos: g.Anchor})
}

func (b *Behavior) sweep(tick uint64) int {
	exists := func(string) bool { return true }
	if b.worlds != nil {
		exists = b.worlds.TravelerExists
	}
	return b.trk.Sweep(tick, exists)
}

// contact feeds one traveler's gate contact into the tracker.
func (b *Behavior) contact(w *world.World, t *modelpkg.Traveler, tick uint64) {
	cells := w.GateCellsTouching(t)
	if len(cells) == 0 {
		return
	}
	cell := cells[0]
	g, ok := b.reg.GateAt(w.ID(), cell)
	if !ok {
		return
	}
	c := tracker.Contact{
		TravelerID:   t.ID,
		WorldID:      w.ID(),
		Pos:          t.Pos,
		Tick:         tick,
		Unrestricted: t.Unrestricted,
	}
	// Riders and carriers never transit, so they never charge either.
	if !g.State.AllowsTransit() || !t.CanTransit() {
		b.trk.Touch(c)
		return
	}
	res := b.trk.Contact(c)
	if res.Armed && b.hooks.Arming != nil {
		b.hooks.Arming(Event{Kind: protocol.NoticeArming, Tick: tick, WorldID: w.ID(), GateID: g.ID, TravelerID: t.ID, Pos: t.Pos})
	}
	switch res.Decision {
	case tracker.DecisionEligible:
		if _, err := b.attemptTransit(w, t, g, tick); err != nil {
			b.trk.Fail(t.ID)
			b.logf("[gate] transit %s via %s failed: %v", t.ID, g.ID, err)
			b.audit(transit.AuditEntry{
				Tick:       tick,
				WorldID:    w.ID(),
				Action:     transit.AuditTransitFailed,
				GateID:     g.ID,
				TravelerID: t.ID,
				Pos:        t.Pos.ToArray(),
				Reason:     transit.CodeOf(err),
			})
		}
	case tracker.DecisionNone, tracker.DecisionCharging, tracker.DecisionSettled, tracker.DecisionSuppressed:
	}
}

// RepairLinks runs the registry consistency pass and records what it cleared.
func (b *Behavior) RepairLinks(tick uint64) []registry.Orphan {
	orphans := b.reg.RepairLinks()
	for _, o := range orphans {
		g, _ := b.reg.Get(o.GateID)
		b.logf("[gate] %s: %s -> %s (%s) cleared", transit.ErrOrphanedLink.Code, o.GateID, o.LinkedGateID, o.Reason)
		b.audit(transit.AuditEntry{
			Tick:       tick,
			WorldID:    g.WorldID,
			Action:     transit.AuditLinkRepaired,
			GateID:     o.GateID,
			LinkedGate: o.LinkedGateID,
			Pos:        g.Anchor.ToArray(),
			Reason:     o.Reason,
		})
	}
	return orphans
}
