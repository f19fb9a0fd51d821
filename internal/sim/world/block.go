package world

import (
	"fmt"

	modelpkg "voxelgate.ai/internal/sim/transit/model"
)

type BlockKind uint8

const (
	BlockAir BlockKind = iota
	BlockSolid
	BlockFrame
	BlockGate
)

func (k BlockKind) String() string {
	switch k {
	case BlockAir:
		return "AIR"
	case BlockSolid:
		return "SOLID"
	case BlockFrame:
		return "FRAME"
	case BlockGate:
		return "GATE"
	default:
		return fmt.Sprintf("BlockKind(%d)", uint8(k))
	}
}

func ParseBlockKind(s string) (BlockKind, error) {
	switch s {
	case "AIR":
		return BlockAir, nil
	case "SOLID":
		return BlockSolid, nil
	case "FRAME":
		return BlockFrame, nil
	case "GATE":
		return BlockGate, nil
	default:
		return 0, fmt.Errorf("unknown block kind: %q", s)
	}
}

// Block is a cell's contents. Axis is set only for gate cells.
type Block struct {
	Kind BlockKind
	Axis modelpkg.Axis
}

var (
	Air   = Block{Kind: BlockAir}
	Solid = Block{Kind: BlockSolid}
	Frame = Block{Kind: BlockFrame}
)

func GateBlock(axis modelpkg.Axis) Block { return Block{Kind: BlockGate, Axis: axis} }
