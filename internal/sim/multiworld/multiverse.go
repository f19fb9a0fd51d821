package multiworld

import (
	"fmt"
	"log"
	"sort"

	"github.com/oklog/ulid/v2"

	"voxelgate.ai/internal/persistence/snapshot"
	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/transit"
	"voxelgate.ai/internal/sim/transit/gate"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/transit/registry"
	"voxelgate.ai/internal/sim/transit/stabilization"
	"voxelgate.ai/internal/sim/transit/tracker"
	"voxelgate.ai/internal/sim/tuning"
	"voxelgate.ai/internal/sim/world"
)

type AuditLogger interface {
	WriteAudit(e transit.AuditEntry) error
}

// Multiverse owns every world and all transit state. Outside of Run, its
// methods must be called from a single goroutine; Run serializes requests
// onto the tick loop.
type Multiverse struct {
	cfg    Config
	tune   tuning.Tuning
	logger *log.Logger

	worlds map[string]*world.World
	order  []string

	reg      *registry.Registry
	trk      *tracker.Tracker
	ledger   *stabilization.Ledger
	behavior *gate.Behavior

	tick uint64

	inbox chan request
	stop  chan struct{}

	noticeSink   func(protocol.NoticeMsg)
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1
}

func New(cfg Config, tune tuning.Tuning, seed int64, logger *log.Logger) (*Multiverse, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := tune.Validate(); err != nil {
		return nil, err
	}
	m := &Multiverse{
		cfg:    cfg,
		tune:   tune,
		logger: logger,
		worlds: map[string]*world.World{},
		reg:    registry.New(),
		trk: tracker.New(tracker.Params{
			ChargeTicks:     tune.Transit.ChargeTicks,
			ReentryDistance: tune.Transit.ReentryDistance,
			ReentryTickGap:  uint64(tune.Transit.ReentryTickGap),
		}),
		ledger: stabilization.NewLedger(cfg.GovernedWorlds()),
		inbox:  make(chan request, 256),
		stop:   make(chan struct{}),
	}
	m.behavior = gate.New(m.reg, m.trk, m.ledger, m, gate.ParamsFromTuning(tune.Transit), logger)
	m.behavior.SetHooks(gate.Hooks{
		Arming:    m.emitNotice,
		Transited: m.emitNotice,
		Broadcast: m.emitNotice,
		Audit:     m.writeAudit,
	})

	for _, spec := range cfg.Worlds {
		w, err := world.New(world.Config{
			ID:         spec.ID,
			Type:       spec.Type,
			Seed:       seed + spec.SeedOffset,
			FloorY:     spec.FloorY,
			BoundaryR:  spec.BoundaryR,
			CoordScale: spec.CoordScale,
			Spawn:      modelpkg.Vec3i{X: spec.Spawn.X, Y: spec.Spawn.Y, Z: spec.Spawn.Z},
		})
		if err != nil {
			return nil, fmt.Errorf("world %s: %w", spec.ID, err)
		}
		w.SetChangeListener(m.onBlockChange)
		m.worlds[spec.ID] = w
		m.order = append(m.order, spec.ID)
	}
	sort.Strings(m.order)
	return m, nil
}

func (m *Multiverse) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

func (m *Multiverse) onBlockChange(w *world.World, pos world.Vec3i, from, to world.Block) {
	m.behavior.NeighborChanged(w, pos, from, to, m.tick)
}

func (m *Multiverse) SetNoticeSink(fn func(protocol.NoticeMsg))             { m.noticeSink = fn }
func (m *Multiverse) SetAuditLogger(l AuditLogger)                          { m.auditLogger = l }
func (m *Multiverse) SetSnapshotSink(ch chan<- snapshot.SnapshotV1)         { m.snapshotSink = ch }
func (m *Multiverse) Config() Config                                        { return m.cfg }
func (m *Multiverse) Tuning() tuning.Tuning                                 { return m.tune }
func (m *Multiverse) CurrentTick() uint64                                   { return m.tick }
func (m *Multiverse) StabilizationFlags(worldID string) stabilization.Flags { return m.ledger.Flags(worldID) }

// gate.Worlds

func (m *Multiverse) World(id string) (*world.World, bool) {
	w, ok := m.worlds[id]
	return w, ok
}

func (m *Multiverse) Destination(fromWorld string) (string, bool) {
	return m.cfg.Destination(fromWorld)
}

func (m *Multiverse) TravelerExists(id string) bool {
	_, ok := m.findTraveler(id)
	return ok
}

func (m *Multiverse) findTraveler(id string) (*modelpkg.Traveler, bool) {
	for _, wid := range m.order {
		if t, ok := m.worlds[wid].Traveler(id); ok {
			return t, true
		}
	}
	return nil, false
}

func (m *Multiverse) WorldIDs() []string {
	return append([]string(nil), m.order...)
}

func (m *Multiverse) Gates() []modelpkg.Gate { return m.reg.All() }

func (m *Multiverse) Gate(id string) (modelpkg.Gate, bool) { return m.reg.Get(id) }

func (m *Multiverse) TrackerEntry(travelerID string) (tracker.Entry, bool) {
	return m.trk.Entry(travelerID)
}

// StepOnce advances every world by one tick. It is the unit the Run loop
// repeats and what tests drive directly.
func (m *Multiverse) StepOnce() {
	m.tick++
	for _, id := range m.order {
		m.behavior.TickWorld(m.worlds[id], m.tick)
	}
	if every := m.tune.Transit.LinkRepairEveryTicks; every > 0 && m.tick%uint64(every) == 0 {
		m.behavior.RepairLinks(m.tick)
	}
	if every := m.tune.SnapshotEveryTicks; every > 0 && m.tick%uint64(every) == 0 {
		m.emitSnapshot()
	}
}

func (m *Multiverse) emitSnapshot() bool {
	if m.snapshotSink == nil {
		return false
	}
	snap := m.ExportSnapshot()
	select {
	case m.snapshotSink <- snap:
		return true
	default:
		m.logf("[multiverse] snapshot sink full; skipped tick %d", m.tick)
		return false
	}
}

func (m *Multiverse) emitNotice(ev gate.Event) {
	if m.noticeSink == nil {
		return
	}
	m.noticeSink(protocol.NoticeMsg{
		Type:            protocol.TypeNotice,
		ProtocolVersion: protocol.Version,
		EventID:         ulid.Make().String(),
		Tick:            ev.Tick,
		Kind:            ev.Kind,
		WorldID:         ev.WorldID,
		GateID:          ev.GateID,
		TravelerID:      ev.TravelerID,
		ToWorldID:       ev.ToWorldID,
		Pos:             ev.Pos.ToArray(),
		Message:         ev.Message,
	})
}

func (m *Multiverse) writeAudit(e transit.AuditEntry) {
	if m.auditLogger == nil {
		return
	}
	if e.EventID == "" {
		e.EventID = ulid.Make().String()
	}
	if err := m.auditLogger.WriteAudit(e); err != nil {
		m.logf("[multiverse] audit write: %v", err)
	}
}

// AddTraveler places a traveler in a world. Traveler ids are unique across worlds.
func (m *Multiverse) AddTraveler(worldID string, t *modelpkg.Traveler) error {
	w, ok := m.worlds[worldID]
	if !ok {
		return transit.Errorf(transit.ErrWorldNotFound.Code, worldID)
	}
	if t == nil || t.ID == "" {
		return transit.Errorf(transit.ErrBadRequest.Code, "traveler id must not be empty")
	}
	if m.TravelerExists(t.ID) {
		return transit.Errorf(transit.ErrBadRequest.Code, "duplicate traveler "+t.ID)
	}
	if t.Inventory == nil {
		t.Inventory = map[string]int{}
	}
	w.AddTraveler(t)
	return nil
}

func (m *Multiverse) RemoveTraveler(id string) bool {
	for _, wid := range m.order {
		if _, ok := m.worlds[wid].RemoveTraveler(id); ok {
			return true
		}
	}
	return false
}

func (m *Multiverse) SetBlock(worldID string, pos modelpkg.Vec3i, b world.Block) error {
	w, ok := m.worlds[worldID]
	if !ok {
		return transit.Errorf(transit.ErrWorldNotFound.Code, worldID)
	}
	w.SetBlock(pos, b)
	return nil
}

// SetBlocks applies a batch of writes to one world and returns how many cells
// changed. Gate cells cannot be placed directly; the batch is rejected whole.
func (m *Multiverse) SetBlocks(worldID string, recs []world.BlockRecord) (int, error) {
	w, ok := m.worlds[worldID]
	if !ok {
		return 0, transit.Errorf(transit.ErrWorldNotFound.Code, worldID)
	}
	for _, r := range recs {
		if r.Block.Kind == world.BlockGate {
			return 0, transit.Errorf(transit.ErrBadRequest.Code, "gate cells are created by ignition only")
		}
	}
	changed := 0
	for _, r := range recs {
		if w.SetBlock(r.Pos, r.Block) {
			changed++
		}
	}
	return changed, nil
}

// MoveTraveler repositions a traveler inside its current world.
func (m *Multiverse) MoveTraveler(id string, pos modelpkg.Vec3i) (string, error) {
	t, ok := m.findTraveler(id)
	if !ok {
		return "", transit.Errorf(transit.ErrTravelerNotFound.Code, id)
	}
	if w := m.worlds[t.WorldID]; w != nil && !w.InBounds(pos) {
		return "", transit.Errorf(transit.ErrBadRequest.Code, fmt.Sprintf("position %v outside %s", pos, t.WorldID))
	}
	t.Pos = pos
	return t.WorldID, nil
}

func (m *Multiverse) Ignite(req gate.IgniteRequest) (modelpkg.Gate, error) {
	return m.behavior.Ignite(req, m.tick)
}

func (m *Multiverse) Stabilize(req gate.StabilizeRequest) (gate.StabilizeResult, error) {
	return m.behavior.Stabilize(req, m.tick)
}

func (m *Multiverse) RepairLinks() []registry.Orphan {
	return m.behavior.RepairLinks(m.tick)
}

// State is the read-only view served to admin tooling.
func (m *Multiverse) State() protocol.StateResp {
	resp := protocol.StateResp{Tick: m.tick}
	for _, g := range m.reg.All() {
		resp.Gates = append(resp.Gates, GateRef(g))
	}
	for _, wf := range m.cfg.Manifest() {
		f := m.ledger.Flags(wf.WorldID)
		wf.HasArrived = f.HasArrived
		wf.IsStabilized = f.IsStabilized
		resp.Worlds = append(resp.Worlds, wf)
	}
	for _, wid := range m.order {
		for _, t := range m.worlds[wid].Travelers() {
			ref := protocol.TravelerRef{TravelerID: t.ID, WorldID: wid, Pos: t.Pos.ToArray()}
			if e, ok := m.trk.Entry(t.ID); ok {
				ref.Counter = e.Counter
				ref.ArrivalLock = e.ArrivalWorldLock
			}
			resp.Travelers = append(resp.Travelers, ref)
		}
	}
	return resp
}

func GateRef(g modelpkg.Gate) protocol.GateRef {
	return protocol.GateRef{
		GateID:       g.ID,
		WorldID:      g.WorldID,
		Anchor:       g.Anchor.ToArray(),
		Axis:         g.Axis.String(),
		Width:        g.Width,
		Height:       g.Height,
		State:        g.State.String(),
		LinkedGateID: g.LinkedGateID,
	}
}
