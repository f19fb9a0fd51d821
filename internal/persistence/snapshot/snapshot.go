package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version        int    `json:"version"`
	DefaultWorldID string `json:"default_world_id"`
	Tick           uint64 `json:"tick"`
}

// SnapshotV1 is the whole multiverse at a save point: gate registry, world
// flags, tracker entries and the sparse world state.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate int `json:"tick_rate_hz"`

	NextGate   uint64           `json:"next_gate"`
	Gates      []GateV1         `json:"gates"`
	WorldFlags []WorldFlagsV1   `json:"world_flags"`
	Trackers   []TrackerEntryV1 `json:"trackers,omitempty"`
	Worlds     []WorldV1        `json:"worlds"`
}

// GateV1 is the persisted registry record.
type GateV1 struct {
	ID             string `json:"id"`
	WorldID        string `json:"world_id"`
	Anchor         [3]int `json:"anchor"`
	Axis           string `json:"axis"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	State          string `json:"state"`
	LinkedGateID   string `json:"linked_gate_id,omitempty"`
	IgnitedTick    uint64 `json:"ignited_tick"`
	StabilizedTick uint64 `json:"stabilized_tick,omitempty"`
}

type WorldFlagsV1 struct {
	WorldID      string `json:"world_id"`
	HasArrived   bool   `json:"has_arrived"`
	IsStabilized bool   `json:"is_stabilized"`
}

type TrackerEntryV1 struct {
	TravelerID       string `json:"traveler_id"`
	Counter          int    `json:"counter"`
	LastContactPos   [3]int `json:"last_contact_pos"`
	LastContactTick  uint64 `json:"last_contact_tick"`
	HasContact       bool   `json:"has_contact"`
	ArrivalWorldLock string `json:"arrival_world_lock,omitempty"`
}

type WorldV1 struct {
	ID        string       `json:"id"`
	Seed      int64        `json:"seed"`
	Blocks    []BlockV1    `json:"blocks,omitempty"`
	Travelers []TravelerV1 `json:"travelers,omitempty"`
}

// BlockV1 is a cell that differs from the base terrain.
type BlockV1 struct {
	Pos  [3]int `json:"pos"`
	Kind string `json:"kind"`
	Axis string `json:"axis,omitempty"`
}

type TravelerV1 struct {
	ID           string         `json:"id"`
	Pos          [3]int         `json:"pos"`
	Yaw          int            `json:"yaw"`
	Height       int            `json:"height"`
	Unrestricted bool           `json:"unrestricted,omitempty"`
	VehicleID    string         `json:"vehicle_id,omitempty"`
	Passengers   []string       `json:"passengers,omitempty"`
	Inventory    map[string]int `json:"inventory,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for humans and tools; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func Path(dataDir string, tick uint64) string {
	return filepath.Join(dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

// Latest returns the highest-tick snapshot under dataDir, or "" when there is none.
func Latest(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
