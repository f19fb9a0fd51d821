package multiworld

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Digest hashes the whole multiverse state in a stable order. Two
// multiverses that load the same snapshot and step the same ticks must agree.
func (m *Multiverse) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, m.tick)
	for _, wid := range m.order {
		h.Write([]byte(wid))
		h.Write([]byte(m.worlds[wid].Digest()))
	}
	m.digestGates(h, &tmp)
	m.digestTracker(h, &tmp)
	for _, f := range m.ledger.Records() {
		h.Write([]byte(f.WorldID))
		h.Write([]byte{boolByte(f.HasArrived), boolByte(f.IsStabilized)})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (m *Multiverse) digestGates(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, m.reg.NextGate())
	for _, g := range m.reg.All() {
		h.Write([]byte(g.ID))
		h.Write([]byte(g.WorldID))
		digestWriteI64(h, tmp, int64(g.Anchor.X))
		digestWriteI64(h, tmp, int64(g.Anchor.Y))
		digestWriteI64(h, tmp, int64(g.Anchor.Z))
		h.Write([]byte{byte(g.Axis), byte(g.State)})
		digestWriteI64(h, tmp, int64(g.Width))
		digestWriteI64(h, tmp, int64(g.Height))
		h.Write([]byte(g.LinkedGateID))
	}
}

func (m *Multiverse) digestTracker(h hash.Hash, tmp *[8]byte) {
	for _, r := range m.trk.Records() {
		h.Write([]byte(r.TravelerID))
		digestWriteI64(h, tmp, int64(r.Counter))
		digestWriteI64(h, tmp, int64(r.LastContactPos.X))
		digestWriteI64(h, tmp, int64(r.LastContactPos.Y))
		digestWriteI64(h, tmp, int64(r.LastContactPos.Z))
		digestWriteU64(h, tmp, r.LastContactTick)
		h.Write([]byte{boolByte(r.HasContact)})
		h.Write([]byte(r.ArrivalWorldLock))
	}
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
