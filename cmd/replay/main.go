package main

import (
	"flag"
	"fmt"
	"os"

	"voxelgate.ai/internal/persistence/snapshot"
	"voxelgate.ai/internal/sim/multiworld"
	"voxelgate.ai/internal/sim/tuning"
)

// replay loads a snapshot into two independent multiverses, steps both and
// checks that their state digests agree every tick. With -expect it also
// compares the gate registry against a later snapshot once its tick is reached.
func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		worldsPath = flag.String("worlds", "./configs/worlds.yaml", "multiverse config path")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		seed       = flag.Int64("seed", 1337, "multiverse seed the server ran with")
		ticks      = flag.Uint64("ticks", 200, "ticks to step")
		expectPath = flag.String("expect", "", "later snapshot whose gates must match (optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d tick=%d gates=%d worlds=%d trackers=%d\n",
		snap.Header.Version, snap.Header.Tick, len(snap.Gates), len(snap.Worlds), len(snap.Trackers))

	cfg, err := multiworld.Load(*worldsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load worlds config:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	var expect *snapshot.SnapshotV1
	if *expectPath != "" {
		e, err := snapshot.ReadSnapshot(*expectPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read expect snapshot:", err)
			os.Exit(1)
		}
		if e.Header.Tick < snap.Header.Tick {
			fmt.Fprintf(os.Stderr, "expect snapshot tick %d precedes start tick %d\n", e.Header.Tick, snap.Header.Tick)
			os.Exit(2)
		}
		expect = &e
	}

	res, err := verify(cfg, tune, *seed, snap, *ticks, expect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d) final_digest=%s\n", res.Checked, snap.Header.Tick, res.FinalDigest)
	if expect != nil {
		fmt.Printf("gates match snapshot tick=%d\n", expect.Header.Tick)
	}
}

type verifyResult struct {
	Checked     uint64
	FinalDigest string
}

func verify(cfg multiworld.Config, tune tuning.Tuning, seed int64, snap snapshot.SnapshotV1, ticks uint64, expect *snapshot.SnapshotV1) (verifyResult, error) {
	var res verifyResult
	a, err := load(cfg, tune, seed, snap)
	if err != nil {
		return res, err
	}
	b, err := load(cfg, tune, seed, snap)
	if err != nil {
		return res, err
	}
	if expect != nil && expect.Header.Tick-snap.Header.Tick > ticks {
		ticks = expect.Header.Tick - snap.Header.Tick
	}

	for i := uint64(0); i < ticks; i++ {
		if expect != nil && a.CurrentTick() == expect.Header.Tick {
			if err := compareGates(a.ExportSnapshot().Gates, expect.Gates); err != nil {
				return res, fmt.Errorf("tick %d: %w", a.CurrentTick(), err)
			}
			expect = nil
		}
		a.StepOnce()
		b.StepOnce()
		res.Checked++
		if da, db := a.Digest(), b.Digest(); da != db {
			return res, fmt.Errorf("digest mismatch at tick %d: %s != %s", a.CurrentTick(), da, db)
		}
	}
	if expect != nil {
		if err := compareGates(a.ExportSnapshot().Gates, expect.Gates); err != nil {
			return res, fmt.Errorf("tick %d: %w", a.CurrentTick(), err)
		}
	}
	res.FinalDigest = a.Digest()
	return res, nil
}

func load(cfg multiworld.Config, tune tuning.Tuning, seed int64, snap snapshot.SnapshotV1) (*multiworld.Multiverse, error) {
	m, err := multiworld.New(cfg, tune, seed, nil)
	if err != nil {
		return nil, err
	}
	if err := m.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return m, nil
}

func compareGates(got, want []snapshot.GateV1) error {
	if len(got) != len(want) {
		return fmt.Errorf("gate count: got %d want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("gate %s: got %+v want %+v", want[i].ID, got[i], want[i])
		}
	}
	return nil
}
