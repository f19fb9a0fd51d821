package multiworld

import (
	"fmt"

	"voxelgate.ai/internal/persistence/snapshot"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/transit/stabilization"
	"voxelgate.ai/internal/sim/transit/tracker"
	"voxelgate.ai/internal/sim/world"
)

func (m *Multiverse) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:        snapshot.Version,
			DefaultWorldID: m.cfg.DefaultWorldID,
			Tick:           m.tick,
		},
		TickRate: m.tune.TickRateHz,
		NextGate: m.reg.NextGate(),
	}
	for _, g := range m.reg.All() {
		snap.Gates = append(snap.Gates, GateV1(g))
	}
	for _, f := range m.ledger.Records() {
		snap.WorldFlags = append(snap.WorldFlags, snapshot.WorldFlagsV1{
			WorldID:      f.WorldID,
			HasArrived:   f.HasArrived,
			IsStabilized: f.IsStabilized,
		})
	}
	for _, r := range m.trk.Records() {
		snap.Trackers = append(snap.Trackers, snapshot.TrackerEntryV1{
			TravelerID:       r.TravelerID,
			Counter:          r.Counter,
			LastContactPos:   r.LastContactPos.ToArray(),
			LastContactTick:  r.LastContactTick,
			HasContact:       r.HasContact,
			ArrivalWorldLock: r.ArrivalWorldLock,
		})
	}
	for _, id := range m.order {
		w := m.worlds[id]
		wv := snapshot.WorldV1{ID: id, Seed: w.Config().Seed}
		for _, rec := range w.BlockRecords() {
			b := snapshot.BlockV1{Pos: rec.Pos.ToArray(), Kind: rec.Block.Kind.String()}
			if rec.Block.Kind == world.BlockGate {
				b.Axis = rec.Block.Axis.String()
			}
			wv.Blocks = append(wv.Blocks, b)
		}
		for _, t := range w.Travelers() {
			wv.Travelers = append(wv.Travelers, travelerV1(t))
		}
		snap.Worlds = append(snap.Worlds, wv)
	}
	return snap
}

// GateV1 converts a gate into its persisted record.
func GateV1(g modelpkg.Gate) snapshot.GateV1 {
	return snapshot.GateV1{
		ID:             g.ID,
		WorldID:        g.WorldID,
		Anchor:         g.Anchor.ToArray(),
		Axis:           g.Axis.String(),
		Width:          g.Width,
		Height:         g.Height,
		State:          g.State.String(),
		LinkedGateID:   g.LinkedGateID,
		IgnitedTick:    g.IgnitedTick,
		StabilizedTick: g.StabilizedTick,
	}
}

// GateFromV1 parses a persisted registry record.
func GateFromV1(r snapshot.GateV1) (modelpkg.Gate, error) {
	axis, err := modelpkg.ParseAxis(r.Axis)
	if err != nil {
		return modelpkg.Gate{}, fmt.Errorf("gate %s: %w", r.ID, err)
	}
	state, err := modelpkg.ParseGateState(r.State)
	if err != nil {
		return modelpkg.Gate{}, fmt.Errorf("gate %s: %w", r.ID, err)
	}
	return modelpkg.Gate{
		ID:             r.ID,
		WorldID:        r.WorldID,
		Anchor:         modelpkg.Vec3FromArray(r.Anchor),
		Axis:           axis,
		Width:          r.Width,
		Height:         r.Height,
		State:          state,
		LinkedGateID:   r.LinkedGateID,
		IgnitedTick:    r.IgnitedTick,
		StabilizedTick: r.StabilizedTick,
	}, nil
}

func travelerV1(t *modelpkg.Traveler) snapshot.TravelerV1 {
	inv := make(map[string]int, len(t.Inventory))
	for k, v := range t.Inventory {
		inv[k] = v
	}
	return snapshot.TravelerV1{
		ID:           t.ID,
		Pos:          t.Pos.ToArray(),
		Yaw:          t.Yaw,
		Height:       t.Height,
		Unrestricted: t.Unrestricted,
		VehicleID:    t.VehicleID,
		Passengers:   append([]string(nil), t.Passengers...),
		Inventory:    inv,
	}
}

// ImportSnapshot restores the multiverse from a snapshot taken with the same
// worlds.yaml. Gates of unknown worlds are dropped; dangling links are
// repaired before the first tick.
func (m *Multiverse) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}

	gates := make([]modelpkg.Gate, 0, len(snap.Gates))
	for _, r := range snap.Gates {
		g, err := GateFromV1(r)
		if err != nil {
			return err
		}
		if _, ok := m.worlds[g.WorldID]; !ok {
			m.logf("[multiverse] snapshot gate %s in unknown world %s dropped", g.ID, g.WorldID)
			continue
		}
		gates = append(gates, g)
	}

	type worldState struct {
		blocks    []world.BlockRecord
		travelers []*modelpkg.Traveler
	}
	states := map[string]worldState{}
	for _, wv := range snap.Worlds {
		if _, ok := m.worlds[wv.ID]; !ok {
			m.logf("[multiverse] snapshot world %s not configured; skipped", wv.ID)
			continue
		}
		var st worldState
		for _, b := range wv.Blocks {
			kind, err := world.ParseBlockKind(b.Kind)
			if err != nil {
				return fmt.Errorf("world %s: %w", wv.ID, err)
			}
			blk := world.Block{Kind: kind}
			if kind == world.BlockGate {
				axis, err := modelpkg.ParseAxis(b.Axis)
				if err != nil {
					return fmt.Errorf("world %s: %w", wv.ID, err)
				}
				blk.Axis = axis
			}
			st.blocks = append(st.blocks, world.BlockRecord{Pos: modelpkg.Vec3FromArray(b.Pos), Block: blk})
		}
		for _, tv := range wv.Travelers {
			inv := map[string]int{}
			for k, v := range tv.Inventory {
				inv[k] = v
			}
			st.travelers = append(st.travelers, &modelpkg.Traveler{
				ID:           tv.ID,
				Pos:          modelpkg.Vec3FromArray(tv.Pos),
				Yaw:          tv.Yaw,
				Height:       tv.Height,
				Unrestricted: tv.Unrestricted,
				VehicleID:    tv.VehicleID,
				Passengers:   append([]string(nil), tv.Passengers...),
				Inventory:    inv,
			})
		}
		states[wv.ID] = st
	}

	if err := m.reg.Restore(gates, snap.NextGate); err != nil {
		return err
	}
	for id, st := range states {
		w := m.worlds[id]
		w.RestoreBlocks(st.blocks)
		for _, t := range w.Travelers() {
			w.RemoveTraveler(t.ID)
		}
		for _, t := range st.travelers {
			w.AddTraveler(t)
		}
	}

	flags := make([]stabilization.WorldFlags, 0, len(snap.WorldFlags))
	for _, f := range snap.WorldFlags {
		flags = append(flags, stabilization.WorldFlags{
			WorldID: f.WorldID,
			Flags:   stabilization.Flags{HasArrived: f.HasArrived, IsStabilized: f.IsStabilized},
		})
	}
	m.ledger.Restore(flags)

	recs := make([]tracker.Record, 0, len(snap.Trackers))
	for _, e := range snap.Trackers {
		recs = append(recs, tracker.Record{
			TravelerID: e.TravelerID,
			Entry: tracker.Entry{
				Counter:          e.Counter,
				LastContactPos:   modelpkg.Vec3FromArray(e.LastContactPos),
				LastContactTick:  e.LastContactTick,
				HasContact:       e.HasContact,
				ArrivalWorldLock: e.ArrivalWorldLock,
			},
		})
	}
	m.trk.Restore(recs)

	m.tick = snap.Header.Tick
	m.behavior.RepairLinks(m.tick)
	return nil
}
