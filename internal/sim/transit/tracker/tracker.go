// Package tracker holds per-traveler transit progress and the heuristics that
// infer when a traveler has left and re-entered a gate.
package tracker

import (
	"sort"

	modelpkg "voxelgate.ai/internal/sim/transit/model"
)

const (
	// DefaultChargeTicks is how long an ordinary traveler must stay in contact.
	DefaultChargeTicks = 80
	// DefaultReentryDistance is roughly the spacing between two distinct gates.
	DefaultReentryDistance = 5
	// DefaultReentryTickGap is about one second at 20Hz.
	DefaultReentryTickGap = 20
)

type Params struct {
	ChargeTicks     int
	ReentryDistance int
	ReentryTickGap  uint64
}

func DefaultParams() Params {
	return Params{
		ChargeTicks:     DefaultChargeTicks,
		ReentryDistance: DefaultReentryDistance,
		ReentryTickGap:  DefaultReentryTickGap,
	}
}

func (p Params) normalized() Params {
	d := DefaultParams()
	if p.ChargeTicks <= 0 {
		p.ChargeTicks = d.ChargeTicks
	}
	if p.ReentryDistance <= 0 {
		p.ReentryDistance = d.ReentryDistance
	}
	if p.ReentryTickGap == 0 {
		p.ReentryTickGap = d.ReentryTickGap
	}
	return p
}

// Entry is the per-traveler transit progress.
//
// Counter is -1 right after a transit, 0 when neutral and 1.. while charging.
type Entry struct {
	Counter          int
	LastContactPos   modelpkg.Vec3i
	LastContactTick  uint64
	HasContact       bool
	ArrivalWorldLock string
}

type Contact struct {
	TravelerID   string
	WorldID      string
	Pos          modelpkg.Vec3i
	Tick         uint64
	Unrestricted bool
}

type Decision uint8

const (
	// DecisionNone: the traveler was already advanced this tick.
	DecisionNone Decision = iota
	DecisionCharging
	// DecisionSettled: first contact after a transit (-1 -> 1).
	DecisionSettled
	// DecisionSuppressed: counter pinned at 1 by the arrival lock.
	DecisionSuppressed
	DecisionEligible
)

func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "NONE"
	case DecisionCharging:
		return "CHARGING"
	case DecisionSettled:
		return "SETTLED"
	case DecisionSuppressed:
		return "SUPPRESSED"
	case DecisionEligible:
		return "ELIGIBLE"
	default:
		return "UNKNOWN"
	}
}

type Reentry uint8

const (
	ReentryNone Reentry = iota
	ReentryMovedAway
	ReentryGapElapsed
	ReentryRapidFallback
)

type Result struct {
	Decision Decision
	Counter  int
	// Armed is set on the 0 -> 1 transition.
	Armed   bool
	Reentry Reentry
}

// Tracker is owned by a single simulation loop; it is not safe for concurrent use.
type Tracker struct {
	params  Params
	entries map[string]*Entry
}

func New(p Params) *Tracker {
	return &Tracker{params: p.normalized(), entries: map[string]*Entry{}}
}

func (t *Tracker) Params() Params { return t.params }

func (t *Tracker) Len() int { return len(t.entries) }

func (t *Tracker) Entry(travelerID string) (Entry, bool) {
	e := t.entries[travelerID]
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Counter returns 0 for travelers without an entry.
func (t *Tracker) Counter(travelerID string) int {
	if e := t.entries[travelerID]; e != nil {
		return e.Counter
	}
	return 0
}

// Contact advances the traveler by one tick of contact with a transit-capable gate cell.
func (t *Tracker) Contact(c Contact) Result {
	e := t.entries[c.TravelerID]
	if e == nil {
		e = &Entry{}
		t.entries[c.TravelerID] = e
	}
	if e.HasContact && e.LastContactTick == c.Tick {
		return Result{Decision: DecisionNone, Counter: e.Counter}
	}
	re := t.detectReentry(e, c)
	e.HasContact = true
	e.LastContactPos = c.Pos
	e.LastContactTick = c.Tick

	if e.Counter < 0 {
		e.Counter = 1
		return Result{Decision: DecisionSettled, Counter: 1, Reentry: re}
	}
	if e.ArrivalWorldLock != "" && e.ArrivalWorldLock == c.WorldID {
		e.Counter = 1
		return Result{Decision: DecisionSuppressed, Counter: 1, Reentry: re}
	}

	e.Counter++
	res := Result{Decision: DecisionCharging, Counter: e.Counter, Armed: e.Counter == 1, Reentry: re}
	if t.eligible(e.Counter, c.Unrestricted) {
		res.Decision = DecisionEligible
	}
	return res
}

// Touch records contact with a gate cell that cannot be transited
// (e.g. an exhausted gate). Re-entry detection still applies; the counter does not charge.
func (t *Tracker) Touch(c Contact) Reentry {
	e := t.entries[c.TravelerID]
	if e == nil {
		e = &Entry{}
		t.entries[c.TravelerID] = e
	}
	if e.HasContact && e.LastContactTick == c.Tick {
		return ReentryNone
	}
	re := t.detectReentry(e, c)
	e.HasContact = true
	e.LastContactPos = c.Pos
	e.LastContactTick = c.Tick
	return re
}

// Transited records a successful transit. The landing spot becomes the last
// contact so the first contact on the arrival side is not mistaken for a re-entry.
func (t *Tracker) Transited(travelerID, destWorld string, landing modelpkg.Vec3i, tick uint64) {
	e := t.entries[travelerID]
	if e == nil {
		e = &Entry{}
		t.entries[travelerID] = e
	}
	e.Counter = -1
	e.ArrivalWorldLock = destWorld
	e.HasContact = true
	e.LastContactPos = landing
	e.LastContactTick = tick
}

// Fail clears a traveler back to neutral after a failed attempt.
func (t *Tracker) Fail(travelerID string) { delete(t.entries, travelerID) }

// Forget drops a traveler's entry, e.g. when it leaves the simulation.
func (t *Tracker) Forget(travelerID string) { delete(t.entries, travelerID) }

// Sweep removes entries for travelers that no longer exist, and entries whose
// last contact is older than the re-entry gap (their next contact would reset
// them anyway). Returns the number removed.
func (t *Tracker) Sweep(tick uint64, exists func(travelerID string) bool) int {
	removed := 0
	for id, e := range t.entries {
		if exists != nil && !exists(id) {
			delete(t.entries, id)
			removed++
			continue
		}
		if !e.HasContact || contactGapElapsed(e.LastContactTick, tick, t.params.ReentryTickGap) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) eligible(counter int, unrestricted bool) bool {
	if unrestricted {
		return counter >= 1
	}
	return counter >= t.params.ChargeTicks
}

// detectReentry applies the exit heuristics in order. The rapid re-entry
// fallback only fires when both the distance and the gap checks miss.
func (t *Tracker) detectReentry(e *Entry, c Contact) Reentry {
	switch {
	case e.HasContact && movedToOtherGate(e.LastContactPos, c.Pos, t.params.ReentryDistance):
		resetEpisode(e)
		return ReentryMovedAway
	case e.HasContact && contactGapElapsed(e.LastContactTick, c.Tick, t.params.ReentryTickGap):
		resetEpisode(e)
		return ReentryGapElapsed
	case e.Counter == 0 && e.ArrivalWorldLock != "" && e.ArrivalWorldLock == c.WorldID:
		e.ArrivalWorldLock = ""
		return ReentryRapidFallback
	}
	return ReentryNone
}

func resetEpisode(e *Entry) {
	e.Counter = 0
	e.ArrivalWorldLock = ""
}

func movedToOtherGate(last, cur modelpkg.Vec3i, distance int) bool {
	return modelpkg.DistSq(last, cur) > distance*distance
}

func contactGapElapsed(lastTick, nowTick, gap uint64) bool {
	return nowTick > lastTick && nowTick-lastTick > gap
}

// Record is the persisted form of an entry.
type Record struct {
	TravelerID string
	Entry
}

func (t *Tracker) Records() []Record {
	out := make([]Record, 0, len(t.entries))
	for id, e := range t.entries {
		out = append(out, Record{TravelerID: id, Entry: *e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TravelerID < out[j].TravelerID })
	return out
}

func (t *Tracker) Restore(recs []Record) {
	t.entries = make(map[string]*Entry, len(recs))
	for _, r := range recs {
		if r.TravelerID == "" {
			continue
		}
		e := r.Entry
		t.entries[r.TravelerID] = &e
	}
}
