// Package stabilization keeps the per-world arrival/stabilization flags that
// gate ignition into a destination world.
package stabilization

import "sort"

type Flags struct {
	HasArrived   bool
	IsStabilized bool
}

// Ledger is the single writer of world-level stabilization flags.
// Only governed worlds are tracked; ungoverned worlds never block ignition.
type Ledger struct {
	governed map[string]bool
	flags    map[string]Flags
}

func NewLedger(governed []string) *Ledger {
	l := &Ledger{governed: map[string]bool{}, flags: map[string]Flags{}}
	for _, id := range governed {
		if id == "" {
			continue
		}
		l.governed[id] = true
		l.flags[id] = Flags{}
	}
	return l
}

func (l *Ledger) Governed(worldID string) bool { return l.governed[worldID] }

func (l *Ledger) Flags(worldID string) Flags { return l.flags[worldID] }

// RecordArrival marks the world as arrived-into. It reports true only for the
// first arrival ever, which also invalidates any earlier stabilization.
func (l *Ledger) RecordArrival(worldID string) bool {
	if !l.governed[worldID] {
		return false
	}
	f := l.flags[worldID]
	if f.HasArrived {
		return false
	}
	f.HasArrived = true
	f.IsStabilized = false
	l.flags[worldID] = f
	return true
}

// MarkStabilized sets IsStabilized for a governed world. Reports whether the flag changed.
func (l *Ledger) MarkStabilized(worldID string) bool {
	if !l.governed[worldID] {
		return false
	}
	f := l.flags[worldID]
	if f.IsStabilized {
		return false
	}
	f.IsStabilized = true
	l.flags[worldID] = f
	return true
}

// IgnitionBlocked is true after a first one-way arrival until someone stabilizes.
func (l *Ledger) IgnitionBlocked(worldID string) bool {
	if !l.governed[worldID] {
		return false
	}
	f := l.flags[worldID]
	return f.HasArrived && !f.IsStabilized
}

type WorldFlags struct {
	WorldID string
	Flags
}

func (l *Ledger) Records() []WorldFlags {
	out := make([]WorldFlags, 0, len(l.flags))
	for id, f := range l.flags {
		out = append(out, WorldFlags{WorldID: id, Flags: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out
}

// Restore loads persisted flags. Records for worlds that are no longer governed are dropped;
// HasArrived is never cleared by a restore.
func (l *Ledger) Restore(recs []WorldFlags) {
	for _, r := range recs {
		if !l.governed[r.WorldID] {
			continue
		}
		cur := l.flags[r.WorldID]
		cur.HasArrived = cur.HasArrived || r.HasArrived
		cur.IsStabilized = r.IsStabilized
		l.flags[r.WorldID] = cur
	}
}
