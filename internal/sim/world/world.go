// Package world is a sparse voxel world: blocks, travelers and a deterministic
// sampling source. It knows nothing about gate lifecycle; block changes are
// reported to a listener so the gate layer can react in the same tick.
package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"voxelgate.ai/internal/sim/mathx"
	modelpkg "voxelgate.ai/internal/sim/transit/model"
)

type Vec3i = modelpkg.Vec3i

type Config struct {
	ID   string
	Type string
	Seed int64

	// Cells below FloorY read as solid ground unless overridden.
	FloorY int
	// BoundaryR bounds X/Z; zero means unbounded.
	BoundaryR int
	// CoordScale relates positions between worlds (8 means one cell here spans eight cells in a scale-1 world).
	CoordScale int
	Spawn      Vec3i
}

// ChangeListener is called synchronously after a block actually changes.
type ChangeListener func(w *World, pos Vec3i, from, to Block)

type World struct {
	cfg Config

	blocks    map[Vec3i]Block
	travelers map[string]*modelpkg.Traveler

	onChange ChangeListener
	// Guards against unbounded listener recursion when a change cascades.
	changeDepth int
}

const maxChangeDepth = 64

func New(cfg Config) (*World, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, fmt.Errorf("world id must not be empty")
	}
	if cfg.CoordScale <= 0 {
		cfg.CoordScale = 1
	}
	if cfg.Type == "" {
		cfg.Type = cfg.ID
	}
	return &World{
		cfg:       cfg,
		blocks:    map[Vec3i]Block{},
		travelers: map[string]*modelpkg.Traveler{},
	}, nil
}

func (w *World) ID() string     { return w.cfg.ID }
func (w *World) Config() Config { return w.cfg }

func (w *World) SetChangeListener(fn ChangeListener) { w.onChange = fn }

func (w *World) InBounds(pos Vec3i) bool {
	r := w.cfg.BoundaryR
	if r <= 0 {
		return true
	}
	return pos.X >= -r && pos.X <= r && pos.Z >= -r && pos.Z <= r
}

func (w *World) baseBlock(pos Vec3i) Block {
	if pos.Y < w.cfg.FloorY {
		return Block{Kind: BlockSolid}
	}
	return Block{Kind: BlockAir}
}

func (w *World) Block(pos Vec3i) Block {
	if !w.InBounds(pos) {
		return Block{Kind: BlockSolid}
	}
	if b, ok := w.blocks[pos]; ok {
		return b
	}
	return w.baseBlock(pos)
}

// SetBlock writes a block and notifies the change listener. Out-of-bounds writes are ignored.
func (w *World) SetBlock(pos Vec3i, b Block) bool {
	if !w.InBounds(pos) {
		return false
	}
	from := w.Block(pos)
	if from == b {
		return false
	}
	if b == w.baseBlock(pos) {
		delete(w.blocks, pos)
	} else {
		w.blocks[pos] = b
	}
	if w.onChange != nil && w.changeDepth < maxChangeDepth {
		w.changeDepth++
		w.onChange(w, pos, from, b)
		w.changeDepth--
	}
	return true
}

// frame.View and landing.Terrain.

func (w *World) IsFrameMaterial(pos Vec3i) bool { return w.Block(pos).Kind == BlockFrame }

func (w *World) GateAxisAt(pos Vec3i) (modelpkg.Axis, bool) {
	b := w.Block(pos)
	if b.Kind != BlockGate {
		return 0, false
	}
	return b.Axis, true
}

func (w *World) IsSolid(pos Vec3i) bool {
	switch w.Block(pos).Kind {
	case BlockSolid, BlockFrame:
		return true
	case BlockAir, BlockGate:
		return false
	default:
		return false
	}
}

func (w *World) IsPassable(pos Vec3i) bool {
	switch w.Block(pos).Kind {
	case BlockAir, BlockGate:
		return true
	case BlockSolid, BlockFrame:
		return false
	default:
		return false
	}
}

// Roll is a deterministic per-tick permille sample for a cell.
func (w *World) Roll(tick uint64, salt uint64, pos Vec3i, permille int) bool {
	return mathx.Chance(mathx.HashTick(w.cfg.Seed, tick, salt, pos.X, pos.Y, pos.Z), permille)
}

// Digest hashes blocks and travelers in a stable order.
func (w *World) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
		h.Write(tmp[:])
	}
	for _, rec := range w.BlockRecords() {
		writeInt(rec.Pos.X)
		writeInt(rec.Pos.Y)
		writeInt(rec.Pos.Z)
		h.Write([]byte{byte(rec.Block.Kind), byte(rec.Block.Axis)})
	}
	for _, t := range w.Travelers() {
		h.Write([]byte(t.ID))
		writeInt(t.Pos.X)
		writeInt(t.Pos.Y)
		writeInt(t.Pos.Z)
		writeInt(t.Yaw)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type BlockRecord struct {
	Pos   Vec3i
	Block Block
}

// BlockRecords lists the cells that differ from the base terrain, sorted by position.
func (w *World) BlockRecords() []BlockRecord {
	out := make([]BlockRecord, 0, len(w.blocks))
	for p, b := range w.blocks {
		out = append(out, BlockRecord{Pos: p, Block: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Less(out[j].Pos) })
	return out
}

// RestoreBlocks loads persisted cells without notifying the change listener.
func (w *World) RestoreBlocks(recs []BlockRecord) {
	w.blocks = make(map[Vec3i]Block, len(recs))
	for _, r := range recs {
		if !w.InBounds(r.Pos) || r.Block == w.baseBlock(r.Pos) {
			continue
		}
		w.blocks[r.Pos] = r.Block
	}
}
