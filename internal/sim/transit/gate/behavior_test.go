package gate

import (
	"errors"
	"sort"
	"testing"

	"voxelgate.ai/internal/protocol"
	"voxelgate.ai/internal/sim/transit"
	"voxelgate.ai/internal/sim/transit/landing"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
	"voxelgate.ai/internal/sim/transit/registry"
	"voxelgate.ai/internal/sim/transit/stabilization"
	"voxelgate.ai/internal/sim/transit/tracker"
	"voxelgate.ai/internal/sim/world"
)

type testWorlds struct {
	worlds map[string]*world.World
	routes map[string]string
}

func (tw *testWorlds) World(id string) (*world.World, bool) {
	w, ok := tw.worlds[id]
	return w, ok
}

func (tw *testWorlds) Destination(from string) (string, bool) {
	to, ok := tw.routes[from]
	return to, ok
}

func (tw *testWorlds) TravelerExists(id string) bool {
	for _, w := range tw.worlds {
		if w.HasTraveler(id) {
			return true
		}
	}
	return false
}

type fixture struct {
	tick   uint64
	worlds *testWorlds
	reg    *registry.Registry
	trk    *tracker.Tracker
	ledger *stabilization.Ledger
	b      *Behavior
	events []Event
	audits []transit.AuditEntry
}

const testChargeTicks = 6

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		worlds: &testWorlds{worlds: map[string]*world.World{}, routes: map[string]string{
			"OVERWORLD": "RIFT",
			"RIFT":      "OVERWORLD",
		}},
		reg:    registry.New(),
		trk:    tracker.New(tracker.Params{ChargeTicks: testChargeTicks, ReentryDistance: 5, ReentryTickGap: 20}),
		ledger: stabilization.NewLedger([]string{"RIFT"}),
	}
	f.b = New(f.reg, f.trk, f.ledger, f.worlds, Params{
		Landing:             landing.Params{DropSteps: 15, SearchRadius: 2},
		ArrivalSearchRadius: 6,
		StabilizeRadius:     4,
		PeerSearchRadius:    16,
		StabilizerItem:      "RIFT_ANCHOR",
	}, nil)
	f.b.SetHooks(Hooks{
		Arming:    func(ev Event) { f.events = append(f.events, ev) },
		Transited: func(ev Event) { f.events = append(f.events, ev) },
		Broadcast: func(ev Event) { f.events = append(f.events, ev) },
		Audit:     func(e transit.AuditEntry) { f.audits = append(f.audits, e) },
	})
	f.addWorld(t, world.Config{ID: "OVERWORLD", Seed: 1, FloorY: 64, CoordScale: 1})
	f.addWorld(t, world.Config{ID: "RIFT", Seed: 2, FloorY: 32, CoordScale: 8})
	return f
}

func (f *fixture) addWorld(t *testing.T, cfg world.Config) *world.World {
	t.Helper()
	w, err := world.New(cfg)
	if err != nil {
		t.Fatalf("world.New(%s): %v", cfg.ID, err)
	}
	w.SetChangeListener(func(w *world.World, pos world.Vec3i, from, to world.Block) {
		f.b.NeighborChanged(w, pos, from, to, f.tick)
	})
	f.worlds.worlds[cfg.ID] = w
	return w
}

func (f *fixture) world(t *testing.T, id string) *world.World {
	t.Helper()
	w, ok := f.worlds.World(id)
	if !ok {
		t.Fatalf("missing world %s", id)
	}
	return w
}

// step advances every world by one tick in id order.
func (f *fixture) step() {
	f.tick++
	ids := make([]string, 0, len(f.worlds.worlds))
	for id := range f.worlds.worlds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		f.b.TickWorld(f.worlds.worlds[id], f.tick)
	}
}

func (f *fixture) eventsOf(kind string) []Event {
	var out []Event
	for _, ev := range f.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// buildFrame surrounds a width x height interior with frame blocks, corners included.
func buildFrame(w *world.World, anchor modelpkg.Vec3i, axis modelpkg.Axis, width, height int) {
	g := modelpkg.Gate{Anchor: anchor, Axis: axis, Width: width, Height: height}
	for _, c := range frameRing(g, true) {
		w.SetBlock(c, world.Frame)
	}
}

func igniteAt(t *testing.T, f *fixture, worldID string, anchor modelpkg.Vec3i) modelpkg.Gate {
	t.Helper()
	w := f.world(t, worldID)
	buildFrame(w, anchor, modelpkg.AxisX, 2, 3)
	g, err := f.b.Ignite(IgniteRequest{WorldID: worldID, Anchor: anchor, Axis: modelpkg.AxisX, Width: 2, Height: 3}, f.tick)
	if err != nil {
		t.Fatalf("ignite: %v", err)
	}
	return g
}

func TestIgniteChargeTransit_Scenario(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	rift := f.world(t, "RIFT")

	g := igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	if g.ID != "G1" || g.State != modelpkg.StateActive {
		t.Fatalf("ignite: got %s %s", g.ID, g.State)
	}
	for _, c := range g.Cells() {
		if ax, ok := ow.GateAxisAt(c); !ok || ax != modelpkg.AxisX {
			t.Fatalf("cell %v is not a gate cell", c)
		}
	}

	tr := &modelpkg.Traveler{ID: "t1", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}, Yaw: 90}
	ow.AddTraveler(tr)

	for i := 1; i < testChargeTicks; i++ {
		f.step()
		if got := f.trk.Counter("t1"); got != i {
			t.Fatalf("tick %d: counter=%d want %d", i, got, i)
		}
		if !ow.HasTraveler("t1") {
			t.Fatalf("tick %d: traveler left before the threshold", i)
		}
	}
	if n := len(f.eventsOf(protocol.NoticeArming)); n != 1 {
		t.Fatalf("arming events: got %d want 1", n)
	}

	f.step()
	if ow.HasTraveler("t1") || !rift.HasTraveler("t1") {
		t.Fatalf("traveler should be in RIFT after the threshold tick")
	}
	if tr.Yaw != 0 || tr.WorldID != "RIFT" {
		t.Fatalf("traveler after transit: yaw=%d world=%s", tr.Yaw, tr.WorldID)
	}
	if tr.Pos != (modelpkg.Vec3i{X: 0, Y: 32, Z: 0}) {
		t.Fatalf("landing: got %v", tr.Pos)
	}
	src, _ := f.reg.Get("G1")
	if src.State != modelpkg.StateExhausted {
		t.Fatalf("source gate state: got %s want EXHAUSTED", src.State)
	}
	flags := f.ledger.Flags("RIFT")
	if !flags.HasArrived || flags.IsStabilized {
		t.Fatalf("RIFT flags: %+v", flags)
	}
	if f.trk.Counter("t1") != -1 {
		t.Fatalf("counter after transit: got %d want -1", f.trk.Counter("t1"))
	}
	arrival, ok := f.reg.GateAt("RIFT", tr.Pos)
	if !ok || arrival.State != modelpkg.StateExhausted {
		t.Fatalf("expected an exhausted arrival gate under the traveler, got %+v ok=%v", arrival, ok)
	}
	if n := len(f.eventsOf(protocol.NoticeTransit)); n != 1 {
		t.Fatalf("transit events: got %d want 1", n)
	}
}

func TestArrivalPinning_NoRetransit(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	rift := f.world(t, "RIFT")
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	tr := &modelpkg.Traveler{ID: "t1", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}}
	ow.AddTraveler(tr)

	for i := 0; i < testChargeTicks; i++ {
		f.step()
	}
	if !rift.HasTraveler("t1") {
		t.Fatalf("traveler did not transit")
	}

	// The carved arrival gate is exhausted: standing in it does not charge.
	for i := 0; i < 2*testChargeTicks; i++ {
		f.step()
		if got := f.trk.Counter("t1"); got != -1 {
			t.Fatalf("tick %d: counter=%d want -1 on an exhausted gate", f.tick, got)
		}
	}

	if _, err := f.b.Stabilize(StabilizeRequest{WorldID: "RIFT", Near: tr.Pos}, f.tick); err != nil {
		t.Fatalf("stabilize: %v", err)
	}
	// Standing in the now stabilized arrival gate well past the charge threshold.
	for i := 0; i < 3*testChargeTicks; i++ {
		f.step()
		if !rift.HasTraveler("t1") {
			t.Fatalf("tick %d: traveler transited again from the arrival gate", f.tick)
		}
		if got := f.trk.Counter("t1"); got != 1 {
			t.Fatalf("tick %d: counter=%d want pinned at 1", f.tick, got)
		}
	}
	if n := len(f.eventsOf(protocol.NoticeTransit)); n != 1 {
		t.Fatalf("transit events: got %d want 1", n)
	}
}

func TestArrivalGate_ReturnOnlyAfterStabilize(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	rift := f.world(t, "RIFT")
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	tr := &modelpkg.Traveler{ID: "t1", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}}
	ow.AddTraveler(tr)
	for i := 0; i < testChargeTicks; i++ {
		f.step()
	}
	if !rift.HasTraveler("t1") {
		t.Fatalf("traveler did not transit")
	}
	landed := tr.Pos

	// Step out of the gate for longer than the re-entry gap, then walk back in.
	tr.Pos = modelpkg.Vec3i{X: landed.X, Y: landed.Y, Z: landed.Z + 2}
	for i := 0; i < 21; i++ {
		f.step()
	}
	tr.Pos = landed
	for i := 0; i < 2*testChargeTicks; i++ {
		f.step()
	}
	if !rift.HasTraveler("t1") {
		t.Fatalf("traveler returned before RIFT was stabilized")
	}
	if flags := f.ledger.Flags("RIFT"); !flags.HasArrived || flags.IsStabilized {
		t.Fatalf("RIFT flags: %+v", flags)
	}

	res, err := f.b.Stabilize(StabilizeRequest{WorldID: "RIFT", Near: landed}, f.tick)
	if err != nil {
		t.Fatalf("stabilize: %v", err)
	}
	if res.LinkedGateID != "G1" {
		t.Fatalf("arrival gate should link back to G1, got %+v", res)
	}
	for i := 0; i < testChargeTicks; i++ {
		f.step()
	}
	if !ow.HasTraveler("t1") {
		t.Fatalf("traveler should return through the stabilized gate")
	}
	if n := len(f.eventsOf(protocol.NoticeTransit)); n != 2 {
		t.Fatalf("transit events: got %d want 2", n)
	}
}

func TestUnrestrictedTraveler_TransitsAfterOneTick(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	rift := f.world(t, "RIFT")
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	ow.AddTraveler(&modelpkg.Traveler{ID: "op", Pos: modelpkg.Vec3i{X: 1, Y: 65, Z: 0}, Unrestricted: true})

	f.step()
	if !rift.HasTraveler("op") {
		t.Fatalf("unrestricted traveler should transit after a single tick")
	}
}

func TestRiderAndCarrier_DoNotCharge(t *testing.T) {
	cases := []struct {
		name string
		tr   *modelpkg.Traveler
	}{
		{"rider", &modelpkg.Traveler{ID: "rider", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}, VehicleID: "cart-1"}},
		{"carrier", &modelpkg.Traveler{ID: "cart-1", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}, Passengers: []string{"rider"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ow := f.world(t, "OVERWORLD")
			igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
			audits := len(f.audits)
			ow.AddTraveler(tc.tr)

			for i := 0; i < 3*testChargeTicks; i++ {
				f.step()
			}
			if !ow.HasTraveler(tc.tr.ID) {
				t.Fatalf("%s must not transit", tc.tr.ID)
			}
			if got := f.trk.Counter(tc.tr.ID); got != 0 {
				t.Fatalf("counter: got %d want 0", got)
			}
			if n := len(f.eventsOf(protocol.NoticeArming)); n != 0 {
				t.Fatalf("arming events: got %d want 0", n)
			}
			if len(f.audits) != audits {
				t.Fatalf("unexpected audits: %+v", f.audits[audits:])
			}
			g, _ := f.reg.Get("G1")
			if g.State != modelpkg.StateActive {
				t.Fatalf("gate should stay ACTIVE, got %s", g.State)
			}
		})
	}
}

func TestDestinationUnresolved_TravelerStays(t *testing.T) {
	f := newFixture(t)
	f.addWorld(t, world.Config{ID: "VOID", Seed: 3, FloorY: 64, BoundaryR: 4, CoordScale: 1})
	f.worlds.routes["OVERWORLD"] = "VOID"
	ow := f.world(t, "OVERWORLD")
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 100, Y: 65, Z: 100})
	ow.AddTraveler(&modelpkg.Traveler{ID: "t1", Pos: modelpkg.Vec3i{X: 100, Y: 65, Z: 100}})

	for i := 0; i < testChargeTicks; i++ {
		f.step()
	}
	if !ow.HasTraveler("t1") {
		t.Fatalf("traveler must stay when no landing exists")
	}
	if f.trk.Counter("t1") != 0 {
		t.Fatalf("counter should revert to neutral, got %d", f.trk.Counter("t1"))
	}
	last := f.audits[len(f.audits)-1]
	if last.Action != transit.AuditTransitFailed || last.Reason != protocol.ErrDestinationUnresolved {
		t.Fatalf("last audit: %+v", last)
	}
	// Natural retry: charging starts again on the next contact.
	f.step()
	if f.trk.Counter("t1") != 1 {
		t.Fatalf("counter after retry tick: got %d want 1", f.trk.Counter("t1"))
	}
}

func TestExhaustedGate_DoesNotCharge(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	g := igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	if _, err := f.reg.Transition(g.ID, modelpkg.StateExhausted, f.tick); err != nil {
		t.Fatalf("exhaust: %v", err)
	}
	ow.AddTraveler(&modelpkg.Traveler{ID: "t1", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}, Unrestricted: true})
	for i := 0; i < testChargeTicks; i++ {
		f.step()
	}
	if !ow.HasTraveler("t1") || f.trk.Counter("t1") != 0 {
		t.Fatalf("exhausted gate must not charge or transit (counter=%d)", f.trk.Counter("t1"))
	}
}

func TestIgnite_Errors(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")

	cases := []struct {
		name string
		req  IgniteRequest
		want error
	}{
		{"bad axis", IgniteRequest{WorldID: "OVERWORLD", Width: 2, Height: 3}, transit.ErrBadRequest},
		{"too short", IgniteRequest{WorldID: "OVERWORLD", Axis: modelpkg.AxisX, Width: 2, Height: 1}, transit.ErrBadRequest},
		{"too wide", IgniteRequest{WorldID: "OVERWORLD", Axis: modelpkg.AxisX, Width: 22, Height: 3}, transit.ErrBadRequest},
		{"unknown world", IgniteRequest{WorldID: "NOPE", Axis: modelpkg.AxisX, Width: 2, Height: 3}, transit.ErrWorldNotFound},
		{"no frame", IgniteRequest{WorldID: "OVERWORLD", Anchor: modelpkg.Vec3i{X: 50, Y: 65}, Axis: modelpkg.AxisX, Width: 2, Height: 3}, transit.ErrFrameInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.b.Ignite(tc.req, 0); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}

	// Interior blocked.
	anchor := modelpkg.Vec3i{X: 20, Y: 65, Z: 0}
	buildFrame(ow, anchor, modelpkg.AxisZ, 2, 3)
	ow.SetBlock(modelpkg.Vec3i{X: 20, Y: 66, Z: 1}, world.Solid)
	if _, err := f.b.Ignite(IgniteRequest{WorldID: "OVERWORLD", Anchor: anchor, Axis: modelpkg.AxisZ, Width: 2, Height: 3}, 0); !errors.Is(err, transit.ErrFrameInvalid) {
		t.Fatalf("blocked interior: got %v", err)
	}

	delete(f.worlds.routes, "OVERWORLD")
	if _, err := f.b.Ignite(IgniteRequest{WorldID: "OVERWORLD", Anchor: anchor, Axis: modelpkg.AxisZ, Width: 2, Height: 3}, 0); !errors.Is(err, transit.ErrNoRoute) {
		t.Fatalf("no route: got %v", err)
	}
	if f.reg.Len() != 0 {
		t.Fatalf("failed ignitions must not register gates, got %d", f.reg.Len())
	}
}

func TestIgnite_CornersOptional(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	g := modelpkg.Gate{Anchor: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}, Axis: modelpkg.AxisX, Width: 1, Height: 2}
	for _, c := range frameRing(g, false) {
		ow.SetBlock(c, world.Frame)
	}
	if _, err := f.b.Ignite(IgniteRequest{WorldID: "OVERWORLD", Anchor: g.Anchor, Axis: g.Axis, Width: 1, Height: 2}, 0); err != nil {
		t.Fatalf("ignite without corners: %v", err)
	}
}

func TestIgnite_BlockedUntilStabilized(t *testing.T) {
	f := newFixture(t)
	ow := f.world(t, "OVERWORLD")
	rift := f.world(t, "RIFT")
	igniteAt(t, f, "OVERWORLD", modelpkg.Vec3i{X: 0, Y: 65, Z: 0})
	tr := &modelpkg.Traveler{ID: "t1", Pos: modelpkg.Vec3i{X: 0, Y: 65, Z: 0}}
	ow.AddTraveler(tr)
	for i := 0; i < testChargeTicks; i++ {
		f.step()
	}
	if !rift.HasTraveler("t1") {
		t.Fatalf("traveler did not transit")
	}

	riftAnchor := modelpkg.Vec3i{X: 40, Y: 33, Z: 0}
	buildFrame(rift, riftAnchor, modelpkg.AxisX, 2, 3)
	req := IgniteRequest{WorldID: "RIFT", Anchor: riftAnchor, Axis: modelpkg.AxisX, Width: 2, Height: 3}
	gates := f.reg.Len()
	if _, err := f.b.Ignite(req, f.tick); !errors.Is(err, transit.ErrDestinationLocked) {
		t.Fatalf("ignite in unstabilized RIFT: got %v", err)
	}
	if f.reg.Len() != gates {
		t.Fatalf("locked ignition registered a gate")
	}

	// The lock belongs to RIFT; the ungoverned source world still ignites.
	owAnchor := modelpkg.Vec3i{X: 40, Y: 65, Z: 0}
	buildFrame(ow, owAnchor, modelpkg.AxisX, 2, 3)
	if _, err := f.b.Ignite(IgniteRequest{WorldID: "OVERWORLD", Anchor: owAnchor, Axis: modelpkg.AxisX, Width: 2, Height: 3}, f.tick); err != nil {
		t.Fatalf("ignite in OVERWORLD: %v", err)
	}

	if _, err := f.b.Stabilize(StabilizeRequest{WorldID: "RIFT", Near: tr.Pos}, f.tick); err != nil {
		t.Fatalf("stabilize: %v", err)
	}
	g, err := f.b.Ignite(req, f.tick)
	if err != nil {
		t.Fatalf("ignite after stabilization: %v", err)
	}
	if g.WorldID != "RIFT" || g.State != modelpkg.StateActive {
		t.Fatalf("ignited gate: %+v", g)
	}
}
