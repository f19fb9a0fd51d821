package registry

import (
	"errors"
	"testing"

	"voxelgate.ai/internal/sim/transit"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
)

func igniteAt(t *testing.T, r *Registry, world string, anchor modelpkg.Vec3i) modelpkg.Gate {
	t.Helper()
	g, err := r.Ignite(modelpkg.Gate{WorldID: world, Anchor: anchor, Axis: modelpkg.AxisX, Width: 2, Height: 3}, 1)
	if err != nil {
		t.Fatalf("ignite: %v", err)
	}
	return g
}

func TestIgnite_AssignsIncreasingIDs(t *testing.T) {
	r := New()
	a := igniteAt(t, r, "OVERWORLD", modelpkg.Vec3i{})
	b := igniteAt(t, r, "OVERWORLD", modelpkg.Vec3i{X: 20})
	if a.ID != "G1" || b.ID != "G2" {
		t.Fatalf("unexpected ids %s %s", a.ID, b.ID)
	}
	if a.State != modelpkg.StateActive {
		t.Fatalf("ignited gate must be active, got %s", a.State)
	}
	r.Remove(b.ID)
	c := igniteAt(t, r, "OVERWORLD", modelpkg.Vec3i{X: 40})
	if c.ID != "G3" {
		t.Fatalf("ids must never be reused, got %s", c.ID)
	}
}

func TestIgnite_RejectsBadExtent(t *testing.T) {
	r := New()
	_, err := r.Ignite(modelpkg.Gate{WorldID: "W", Axis: modelpkg.AxisX, Width: 0, Height: 3}, 1)
	if !errors.Is(err, transit.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestTransition_Lifecycle(t *testing.T) {
	r := New()
	g := igniteAt(t, r, "W", modelpkg.Vec3i{})
	if _, err := r.Transition(g.ID, modelpkg.StateExhausted, 5); err != nil {
		t.Fatalf("active -> exhausted: %v", err)
	}
	if _, err := r.Transition(g.ID, modelpkg.StateActive, 6); !errors.Is(err, transit.ErrInvalidTransition) {
		t.Fatalf("exhausted -> active must fail, got %v", err)
	}
	got, err := r.Transition(g.ID, modelpkg.StateStabilized, 7)
	if err != nil {
		t.Fatalf("exhausted -> stabilized: %v", err)
	}
	if got.StabilizedTick != 7 {
		t.Fatalf("expected stabilized tick 7, got %d", got.StabilizedTick)
	}
	if _, err := r.Transition(g.ID, modelpkg.StateExhausted, 8); !errors.Is(err, transit.ErrInvalidTransition) {
		t.Fatalf("stabilized must be terminal, got %v", err)
	}
	if _, err := r.Transition("G99", modelpkg.StateStabilized, 8); !errors.Is(err, transit.ErrGateNotFound) {
		t.Fatalf("expected gate not found, got %v", err)
	}
}

func TestNearest(t *testing.T) {
	r := New()
	igniteAt(t, r, "W", modelpkg.Vec3i{X: 0, Y: 0, Z: 0})
	far := igniteAt(t, r, "W", modelpkg.Vec3i{X: 30, Y: 0, Z: 0})
	igniteAt(t, r, "OTHER", modelpkg.Vec3i{X: 29, Y: 0, Z: 0})

	g, ok := r.Nearest("W", modelpkg.Vec3i{X: 28, Y: 1, Z: 1}, 4)
	if !ok || g.ID != far.ID {
		t.Fatalf("expected %s, got %+v ok=%v", far.ID, g, ok)
	}
	if _, ok := r.Nearest("W", modelpkg.Vec3i{X: 15, Y: 0, Z: 0}, 4); ok {
		t.Fatalf("expected no gate within radius")
	}
	if got, ok := r.GateAt("W", modelpkg.Vec3i{X: 31, Y: 2, Z: 0}); !ok || got.ID != far.ID {
		t.Fatalf("GateAt should find interior cell")
	}
}

func TestLinkAndRepair(t *testing.T) {
	r := New()
	a := igniteAt(t, r, "OVERWORLD", modelpkg.Vec3i{})
	b := igniteAt(t, r, "RIFT", modelpkg.Vec3i{})
	if err := r.Link(a.ID, b.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	p, ok, err := r.Peer(a.ID)
	if err != nil || !ok || p.ID != b.ID {
		t.Fatalf("peer of %s: %+v ok=%v err=%v", a.ID, p, ok, err)
	}

	r.Remove(b.ID)
	if _, ok, err := r.Peer(a.ID); ok || !errors.Is(err, transit.ErrOrphanedLink) {
		t.Fatalf("expected orphaned link, got ok=%v err=%v", ok, err)
	}
	orphans := r.RepairLinks()
	if len(orphans) != 1 || orphans[0].GateID != a.ID || orphans[0].Reason != "missing" {
		t.Fatalf("unexpected orphans: %+v", orphans)
	}
	got, _ := r.Get(a.ID)
	if got.LinkedGateID != "" {
		t.Fatalf("expected link cleared, got %q", got.LinkedGateID)
	}
	if len(r.RepairLinks()) != 0 {
		t.Fatalf("repair must be idempotent")
	}
}

func TestLink_RelinkDropsOldPeer(t *testing.T) {
	r := New()
	a := igniteAt(t, r, "OVERWORLD", modelpkg.Vec3i{})
	b := igniteAt(t, r, "RIFT", modelpkg.Vec3i{})
	c := igniteAt(t, r, "RIFT", modelpkg.Vec3i{X: 50})
	_ = r.Link(a.ID, b.ID)
	_ = r.Link(a.ID, c.ID)
	gb, _ := r.Get(b.ID)
	if gb.LinkedGateID != "" {
		t.Fatalf("old peer must be unlinked, got %q", gb.LinkedGateID)
	}
	if len(r.RepairLinks()) != 0 {
		t.Fatalf("links should already be mutual")
	}
}

func TestRestore_RaisesCounter(t *testing.T) {
	r := New()
	err := r.Restore([]modelpkg.Gate{
		{ID: "G7", WorldID: "W", Axis: modelpkg.AxisX, Width: 2, Height: 3, State: modelpkg.StateStabilized},
	}, 3)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.NextGate() != 8 {
		t.Fatalf("expected next gate 8, got %d", r.NextGate())
	}
	if err := r.Restore([]modelpkg.Gate{{ID: "bad"}}, 1); err == nil {
		t.Fatalf("expected bad id error")
	}
}
