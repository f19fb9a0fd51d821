package mathx

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// HashTick mixes a tick and a salt into Hash3, for per-tick random sampling
// that stays deterministic under replay.
func HashTick(seed int64, tick uint64, salt uint64, x, y, z int) uint64 {
	return mix64(Hash3(seed, x, y, z) ^ mix64(tick) ^ (salt * 0x94d049bb133111eb))
}

// Chance reports whether a permille roll succeeds for h.
func Chance(h uint64, permille int) bool {
	if permille <= 0 {
		return false
	}
	if permille >= 1000 {
		return true
	}
	return int(h%1000) < permille
}

// ScaleCoord maps a coordinate between worlds whose scales are fromScale and toScale.
func ScaleCoord(v, fromScale, toScale int) int {
	if fromScale <= 0 || toScale <= 0 || fromScale == toScale {
		return v
	}
	return FloorDiv(v*fromScale, toScale)
}
