// Package registry is the authoritative collection of transit gates.
package registry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"voxelgate.ai/internal/sim/transit"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
)

// Registry is the single writer of gate lifecycle state. It is owned by one
// simulation loop and is not safe for concurrent use.
type Registry struct {
	gates    map[string]*modelpkg.Gate
	nextGate uint64
}

func New() *Registry {
	return &Registry{gates: map[string]*modelpkg.Gate{}, nextGate: 1}
}

func (r *Registry) Len() int { return len(r.gates) }

// NextGate is the counter used for the next id; persisted so ids are never reused.
func (r *Registry) NextGate() uint64 { return r.nextGate }

func (r *Registry) newGateID() string {
	n := r.nextGate
	r.nextGate++
	return "G" + strconv.FormatUint(n, 10)
}

// Ignite registers a new gate and moves it Unvalidated -> Active.
func (r *Registry) Ignite(g modelpkg.Gate, nowTick uint64) (modelpkg.Gate, error) {
	if strings.TrimSpace(g.WorldID) == "" {
		return modelpkg.Gate{}, transit.Errorf(transit.ErrBadRequest.Code, "gate world must not be empty")
	}
	if g.Width <= 0 || g.Height <= 0 {
		return modelpkg.Gate{}, transit.Errorf(transit.ErrBadRequest.Code, "gate extent must be positive")
	}
	g.State = modelpkg.StateUnvalidated
	if !g.State.CanTransitionTo(modelpkg.StateActive) {
		return modelpkg.Gate{}, transit.ErrInvalidTransition
	}
	g.ID = r.newGateID()
	g.State = modelpkg.StateActive
	g.LinkedGateID = ""
	g.IgnitedTick = nowTick
	g.StabilizedTick = 0
	cp := g
	r.gates[g.ID] = &cp
	return g, nil
}

func (r *Registry) Get(id string) (modelpkg.Gate, bool) {
	g := r.gates[id]
	if g == nil {
		return modelpkg.Gate{}, false
	}
	return *g, true
}

// GateAt returns the gate whose interior contains pos.
func (r *Registry) GateAt(worldID string, pos modelpkg.Vec3i) (modelpkg.Gate, bool) {
	for _, id := range r.sortedIDs() {
		g := r.gates[id]
		if g.WorldID == worldID && g.Contains(pos) {
			return *g, true
		}
	}
	return modelpkg.Gate{}, false
}

// Nearest returns the gate with an interior cell closest to pos, within radius.
// Ties go to the lower id.
func (r *Registry) Nearest(worldID string, pos modelpkg.Vec3i, radius int) (modelpkg.Gate, bool) {
	if radius < 0 {
		return modelpkg.Gate{}, false
	}
	limit := radius * radius
	best := ""
	bestD := 0
	for _, id := range r.sortedIDs() {
		g := r.gates[id]
		if g.WorldID != worldID {
			continue
		}
		d, ok := nearestCellDistSq(g, pos, limit)
		if !ok {
			continue
		}
		if best == "" || d < bestD {
			best, bestD = id, d
		}
	}
	if best == "" {
		return modelpkg.Gate{}, false
	}
	return *r.gates[best], true
}

func nearestCellDistSq(g *modelpkg.Gate, pos modelpkg.Vec3i, limit int) (int, bool) {
	found := false
	best := 0
	for _, c := range g.Cells() {
		d := modelpkg.DistSq(c, pos)
		if d > limit {
			continue
		}
		if !found || d < best {
			found, best = true, d
		}
	}
	return best, found
}

// Transition applies a lifecycle change, rejecting anything the state machine forbids.
func (r *Registry) Transition(id string, next modelpkg.GateState, nowTick uint64) (modelpkg.Gate, error) {
	g := r.gates[id]
	if g == nil {
		return modelpkg.Gate{}, transit.ErrGateNotFound
	}
	if !g.State.CanTransitionTo(next) {
		return *g, transit.Errorf(transit.ErrInvalidTransition.Code, fmt.Sprintf("%s: %s -> %s", id, g.State, next))
	}
	g.State = next
	switch next {
	case modelpkg.StateStabilized:
		g.StabilizedTick = nowTick
	case modelpkg.StateUnvalidated, modelpkg.StateActive, modelpkg.StateExhausted:
	}
	return *g, nil
}

// Link pairs two gates in both directions.
func (r *Registry) Link(a, b string) error {
	if a == b {
		return transit.Errorf(transit.ErrBadRequest.Code, "gate cannot link to itself")
	}
	ga, gb := r.gates[a], r.gates[b]
	if ga == nil || gb == nil {
		return transit.ErrGateNotFound
	}
	if ga.LinkedGateID != "" && ga.LinkedGateID != b {
		r.unlinkFrom(ga.LinkedGateID, a)
	}
	if gb.LinkedGateID != "" && gb.LinkedGateID != a {
		r.unlinkFrom(gb.LinkedGateID, b)
	}
	ga.LinkedGateID = b
	gb.LinkedGateID = a
	return nil
}

func (r *Registry) unlinkFrom(id, peer string) {
	if g := r.gates[id]; g != nil && g.LinkedGateID == peer {
		g.LinkedGateID = ""
	}
}

// Peer resolves a gate's link. A dangling link yields ErrOrphanedLink and is
// treated by callers as "no link".
func (r *Registry) Peer(id string) (modelpkg.Gate, bool, error) {
	g := r.gates[id]
	if g == nil {
		return modelpkg.Gate{}, false, transit.ErrGateNotFound
	}
	if g.LinkedGateID == "" {
		return modelpkg.Gate{}, false, nil
	}
	p := r.gates[g.LinkedGateID]
	if p == nil {
		return modelpkg.Gate{}, false, transit.Errorf(transit.ErrOrphanedLink.Code, id+" -> "+g.LinkedGateID)
	}
	return *p, true, nil
}

// Remove drops a gate. Its peer keeps the now-dangling reference until RepairLinks runs.
func (r *Registry) Remove(id string) (modelpkg.Gate, bool) {
	g := r.gates[id]
	if g == nil {
		return modelpkg.Gate{}, false
	}
	delete(r.gates, id)
	return *g, true
}

type Orphan struct {
	GateID       string
	LinkedGateID string
	Reason       string
}

// RepairLinks clears references to missing gates and one-sided links.
func (r *Registry) RepairLinks() []Orphan {
	var out []Orphan
	for _, id := range r.sortedIDs() {
		g := r.gates[id]
		if g.LinkedGateID == "" {
			continue
		}
		p := r.gates[g.LinkedGateID]
		switch {
		case p == nil:
			out = append(out, Orphan{GateID: id, LinkedGateID: g.LinkedGateID, Reason: "missing"})
			g.LinkedGateID = ""
		case p.LinkedGateID != id:
			out = append(out, Orphan{GateID: id, LinkedGateID: g.LinkedGateID, Reason: "one_sided"})
			g.LinkedGateID = ""
		}
	}
	return out
}

// InWorld lists a world's gates ordered by id.
func (r *Registry) InWorld(worldID string) []modelpkg.Gate {
	var out []modelpkg.Gate
	for _, id := range r.sortedIDs() {
		if g := r.gates[id]; g.WorldID == worldID {
			out = append(out, *g)
		}
	}
	return out
}

func (r *Registry) All() []modelpkg.Gate {
	out := make([]modelpkg.Gate, 0, len(r.gates))
	for _, id := range r.sortedIDs() {
		out = append(out, *r.gates[id])
	}
	return out
}

// Restore replaces the registry contents with persisted gates. next is raised
// past every restored id so ids are never handed out twice.
func (r *Registry) Restore(gates []modelpkg.Gate, next uint64) error {
	m := make(map[string]*modelpkg.Gate, len(gates))
	maxN := uint64(0)
	for _, g := range gates {
		n, ok := GateNumber(g.ID)
		if !ok {
			return fmt.Errorf("bad gate id %q", g.ID)
		}
		if _, dup := m[g.ID]; dup {
			return fmt.Errorf("duplicate gate id %q", g.ID)
		}
		if n > maxN {
			maxN = n
		}
		cp := g
		m[g.ID] = &cp
	}
	if next <= maxN {
		next = maxN + 1
	}
	if next == 0 {
		next = 1
	}
	r.gates = m
	r.nextGate = next
	return nil
}

// GateNumber parses the numeric part of "G<n>".
func GateNumber(id string) (uint64, bool) {
	if len(id) < 2 || id[0] != 'G' {
		return 0, false
	}
	n, err := strconv.ParseUint(id[1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.gates))
	for id := range r.gates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := GateNumber(ids[i])
		b, _ := GateNumber(ids[j])
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}
