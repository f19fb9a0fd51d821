package gate

import (
	"errors"
	"testing"

	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/transit"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/world"
)

func addActor(t *testing.T, f *fixture, worldID string, pos modelpkg.Vec3i, anchors int) *modelpkg.Traveler {
	t.Helper()
	a := &modelpkg.Traveler{ID: "actor", Pos: pos, Inventory: map[string]int{}}
	if anchors > 0 {
		a.Inventory["RIFT_ANCHOR"] = anchors
	}
	f.world(t, worldID).AddTraveler(a)
	return a
}

func TestStabilize_NoGateFound_KeepsItem(t *testing.T) {
	f := newFixture(t)
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	a := addActor(t, f, "OVERWORLD", modelpkg.Vec3i{X: 30, Y: 64, Z: 30}, 1)

	_, err := f.b.Stabilize(StabilizeRequest{WorldID: "OVERWORLD", ActorID: "actor", Near: a.Pos}, 0)
	if !errors.Is(err, transit.ErrNoGateFound) {
		t.Fatalf("got %v want %v", err, transit.ErrNoGateFound)
	}
	if a.Inventory["RIFT_ANCHOR"] != 1 {
		t.Fatalf("item consumed on failure: %v", a.Inventory)
	}
	if n := len(f.eventsOf(protocol.NoticeStabilized)); n != 0 {
		t.Fatalf("unexpected stabilized notices: %d", n)
	}
}

func TestStabilize_MissingItem(t *testing.T) {
	f := newFixture(t)
	g := igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	addActor(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 64, Z: 1}, 0)

	_, err := f.b.Stabilize(StabilizeRequest{WorldID: "OVERWORLD", ActorID: "actor", Near: modelpkg.Vec3i{X: 0, Y: 65, Z: 1}}, 0)
	if !errors.Is(err, transit.ErrNoResource) {
		t.Fatalf("got %v want %v", err, transit.ErrNoResource)
	}
	got, _ := f.reg.Get(g.ID)
	if got.State != modelpkg.StateActive {
		t.Fatalf("gate state changed on failure: %s", got.State)
	}
}

func TestStabilize_UnknownActor(t *testing.T) {
	f := newFixture(t)
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	_, err := f.b.Stabilize(StabilizeRequest{WorldID: "OVERWORLD", ActorID: "ghost", Near: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}}, 0)
	if !errors.Is(err, transit.ErrTravelerNotFound) {
		t.Fatalf("got %v want %v", err, transit.ErrTravelerNotFound)
	}
}

func TestStabilize_SuccessThenIdempotentFailure(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	rift := f.world(t, "RIFT")
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	ow.AddTraveler(&modelpkg.Traveler{ID: "t1", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}})
	for i := 0; i < testChargeTicks; i++ {
		f.step()
	}
	if !rift.HasTraveler("t1") {
		t.Fatalf("traveler did not transit")
	}

	a := addActor(t, f, "RIFT", modelpkg.Vec3i{X: 1, Y: 32, Z: 1}, 2)
	res, err := f.b.Stabilize(StabilizeRequest{WorldID: "RIFT", ActorID: "actor", Near: a.Pos}, f.tick)
	if err != nil {
		t.Fatalf("stabilize: %v", err)
	}
	if res.GateID != "G2" || res.LinkedGateID != "G1" {
		t.Fatalf("stabilize result: %+v", res)
	}
	for _, id := range []string{"G1", "G2"} {
		g, _ := f.reg.Get(id)
		if g.State != modelpkg.StateStabilized {
			t.Fatalf("%s state: got %s want STABILIZED", id, g.State)
		}
	}
	g1, _ := f.reg.Get("G1")
	g2, _ := f.reg.Get("G2")
	if g1.LinkedGateID != "G2" || g2.LinkedGateID != "G1" {
		t.Fatalf("links: G1->%q G2->%q", g1.LinkedGateID, g2.LinkedGateID)
	}
	if flags := f.ledger.Flags("RIFT"); !flags.HasArrived || !flags.IsStabilized {
		t.Fatalf("RIFT flags after stabilize: %+v", flags)
	}
	if a.Inventory["RIFT_ANCHOR"] != 1 {
		t.Fatalf("item should be consumed once: %v", a.Inventory)
	}
	if n := len(f.eventsOf(protocol.NoticeStabilized)); n != 1 {
		t.Fatalf("stabilized notices: got %d want 1", n)
	}

	before := f.ledger.Flags("RIFT")
	audits := len(f.audits)
	_, err = f.b.Stabilize(StabilizeRequest{WorldID: "RIFT", ActorID: "actor", Near: a.Pos}, f.tick)
	if !errors.Is(err, transit.ErrAlreadyStabilized) {
		t.Fatalf("second stabilize: got %v want %v", err, transit.ErrAlreadyStabilized)
	}
	if a.Inventory["RIFT_ANCHOR"] != 1 || f.ledger.Flags("RIFT") != before || len(f.audits) != audits {
		t.Fatalf("failed stabilize had side effects")
	}
}

func TestStabilizedGate_RoundTrips(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	rift := f.world(t, "RIFT")
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	tr := &modelpkg.Traveler{ID: "t1", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}, Unrestricted: true}
	ow.AddTraveler(tr)
	f.step()
	if !rift.HasTraveler("t1") {
		t.Fatalf("traveler did not transit")
	}
	if _, err := f.b.Stabilize(StabilizeRequest{WorldID: "RIFT", Near: tr.Pos}, f.tick); err != nil {
		t.Fatalf("stabilize: %v", err)
	}

	// Leave, wait out the re-entry gap and come back: the linked gate leads
	// home next to G1 and stays usable.
	landed := tr.Pos
	tr.Pos = modelpkg.Vec3i{X: landed.X, Y: landed.Y, Z: landed.Z + 3}
	for i := 0; i < 25; i++ {
		f.step()
	}
	tr.Pos = landed
	f.step()
	if !ow.HasTraveler("t1") {
		t.Fatalf("traveler should return through the stabilized link")
	}
	g1, _ := f.reg.Get("G1")
	if modelpkg.DistSq(tr.Pos, g1.Center()) > 9 {
		t.Fatalf("return landing %v too far from linked gate %v", tr.Pos, g1.Center())
	}
	g2, _ := f.reg.Get("G2")
	if g2.State != modelpkg.StateStabilized {
		t.Fatalf("stabilized gate must not exhaust, got %s", g2.State)
	}
}

func TestFrameBreak_DestroysCellImmediately(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	cell := modelpkg.Vec3i{X: 10, Y: 70, Z: 10}
	support := modelpkg.Vec3i{X: 10, Y: 69, Z: 10}
	ow.RestoreBlocks([]world.BlockRecord{
		{Pos: support, Block: world.Frame},
		{Pos: cell, Block: world.GateBlock(modelpkg.AxisX)},
	})

	ow.SetBlock(support, world.Air)
	if ow.Block(cell).Kind != world.BlockAir {
		t.Fatalf("unsupported cell should be reverted in the same change, got %s", ow.Block(cell).Kind)
	}
	if n := len(f.eventsOf(protocol.NoticeFrameDestroyed)); n != 1 {
		t.Fatalf("frame destroyed notices: got %d want 1", n)
	}
}

func TestFrameBreak_SampledCheckCollapsesGate(t *testing.T) {
	f := newFixture(t)
	f.b.params.FrameCheckPermille = 1000
	ow := f.world(t, "OVERWORLD")
	cell := modelpkg.Vec3i{X: 10, Y: 70, Z: 10}
	g := modelpkg.Gate{ID: "G7", WorldID: "OVERWORLD", Anchor: cell, Axis: modelpkg.AxisX, Width: 1, Height: 1, State: modelpkg.StateActive, LinkedGateID: "G8"}
	peer := modelpkg.Gate{ID: "G8", WorldID: "RIFT", Anchor: cell, Axis: modelpkg.AxisX, Width: 1, Height: 1, State: modelpkg.StateActive, LinkedGateID: "G7"}
	if err := f.reg.Restore([]modelpkg.Gate{g, peer}, 9); err != nil {
		t.Fatalf("restore: %v", err)
	}
	ow.RestoreBlocks([]world.BlockRecord{{Pos: cell, Block: world.GateBlock(modelpkg.AxisX)}})

	f.step()
	if ow.Block(cell).Kind != world.BlockAir {
		t.Fatalf("sampled check should revert the cell")
	}
	if _, ok := f.reg.Get("G7"); ok {
		t.Fatalf("gate without cells should be removed")
	}
	if n := len(f.eventsOf(protocol.NoticeGateCollapsed)); n != 1 {
		t.Fatalf("collapse notices: got %d want 1", n)
	}

	orphans := f.b.RepairLinks(f.tick)
	if len(orphans) != 1 || orphans[0].GateID != "G8" || orphans[0].Reason != "missing" {
		t.Fatalf("orphans: %+v", orphans)
	}
	p, _ := f.reg.Get("G8")
	if p.LinkedGateID != "" {
		t.Fatalf("dangling link should be cleared, got %q", p.LinkedGateID)
	}
}

func TestFrameBreak_ForcesSweep(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	ow.AddTraveler(&modelpkg.Traveler{ID: "gone", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}})
	f.step()
	f.step()
	if f.trk.Counter("gone") != 2 {
		t.Fatalf("counter: got %d want 2", f.trk.Counter("gone"))
	}
	ow.RemoveTraveler("gone")

	cell := modelpkg.Vec3i{X: 10, Y: 70, Z: 10}
	support := modelpkg.Vec3i{X: 10, Y: 69, Z: 10}
	ow.SetBlock(support, world.Frame)
	ow.SetBlock(cell, world.GateBlock(modelpkg.AxisZ))
	ow.SetBlock(support, world.Air)

	if _, ok := f.trk.Entry("gone"); ok {
		t.Fatalf("forced sweep should drop entries of vanished travelers")
	}
}
