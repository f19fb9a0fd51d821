package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "voxelgate.ai/internal/persistence/log"
	"voxelgate.ai/internal/persistence/snapshot"
	"voxelgate.ai/internal/sim/transit"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "ignite":
			igniteCmd(os.Args[2:])
			return
		case "stabilize":
			stabilizeCmd(os.Args[2:])
			return
		case "blocks":
			blocksCmd(os.Args[2:])
			return
		case "frame":
			frameCmd(os.Args[2:])
			return
		case "spawn":
			spawnCmd(os.Args[2:])
			return
		case "move":
			moveCmd(os.Args[2:])
			return
		case "watch":
			watchCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	for _, sub := range []string{"snapshots", "audit", "notices"} {
		entries, err := os.ReadDir(filepath.Join(*dataDir, sub))
		if err != nil {
			continue
		}
		for _, e := range entries {
			fmt.Println(filepath.Join(sub, e.Name()))
		}
	}
}

// auditFilter selects audit entries; zero fields match everything.
type auditFilter struct {
	GateID     string
	TravelerID string
	Action     string
	SinceTick  uint64
	ToTick     uint64
}

func (f auditFilter) match(e transit.AuditEntry) bool {
	if f.GateID != "" && e.GateID != f.GateID && e.LinkedGate != f.GateID {
		return false
	}
	if f.TravelerID != "" && e.TravelerID != f.TravelerID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if e.Tick < f.SinceTick {
		return false
	}
	return f.ToTick == 0 || e.Tick <= f.ToTick
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gateID := fs.String("gate", "", "gate id filter (matches gate_id or linked_gate_id)")
	travelerID := fs.String("traveler", "", "traveler id filter")
	action := fs.String("action", "", "action filter (IGNITE, TRANSIT, STABILIZE, ...)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	limit := fs.Int("limit", 0, "stop after this many entries (0 = all)")
	_ = fs.Parse(args)

	files, err := persistlog.AuditFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no audit files under", filepath.Join(*dataDir, "audit"))
		os.Exit(2)
	}
	f := auditFilter{
		GateID:     strings.TrimSpace(*gateID),
		TravelerID: strings.TrimSpace(*travelerID),
		Action:     strings.ToUpper(strings.TrimSpace(*action)),
		SinceTick:  *sinceTick,
		ToTick:     *toTick,
	}
	n := 0
	for _, path := range files {
		done := false
		err := persistlog.ReadAudit(path, func(e transit.AuditEntry) bool {
			if !f.match(e) {
				return true
			}
			printJSON(e)
			n++
			if *limit > 0 && n >= *limit {
				done = true
				return false
			}
			return true
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read audit:", err)
			os.Exit(1)
		}
		if done {
			break
		}
	}
}

type snapshotSummary struct {
	Tick       uint64         `json:"tick"`
	NextGate   uint64         `json:"next_gate"`
	Gates      map[string]int `json:"gates_by_state"`
	Linked     int            `json:"linked_gates"`
	Worlds     []worldSummary `json:"worlds"`
	Trackers   int            `json:"tracker_entries"`
	Stabilized []string       `json:"stabilized_worlds"`
}

type worldSummary struct {
	ID        string `json:"id"`
	Blocks    int    `json:"blocks"`
	Travelers int    `json:"travelers"`
	Gates     int    `json:"gates"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Tick:       snap.Header.Tick,
		NextGate:   snap.NextGate,
		Gates:      map[string]int{},
		Trackers:   len(snap.Trackers),
		Stabilized: []string{},
	}
	perWorld := map[string]int{}
	for _, g := range snap.Gates {
		s.Gates[g.State]++
		perWorld[g.WorldID]++
		if g.LinkedGateID != "" {
			s.Linked++
		}
	}
	for _, w := range snap.Worlds {
		s.Worlds = append(s.Worlds, worldSummary{ID: w.ID, Blocks: len(w.Blocks), Travelers: len(w.Travelers), Gates: perWorld[w.ID]})
	}
	for _, f := range snap.WorldFlags {
		if f.IsStabilized {
			s.Stabilized = append(s.Stabilized, f.WorldID)
		}
	}
	sort.Slice(s.Worlds, func(i, j int) bool { return s.Worlds[i].ID < s.Worlds[j].ID })
	sort.Strings(s.Stabilized)
	return s
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	gates := fs.Bool("gates", false, "print every gate record")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = snapshot.Latest(*dataDir)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
	if *gates {
		for _, g := range snap.Gates {
			printJSON(g)
		}
	}
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
