package model

type Traveler struct {
	ID      string
	WorldID string
	Pos     Vec3i
	Yaw     int
	Height  int

	// Unrestricted travelers transit after a single tick of contact.
	Unrestricted bool

	VehicleID  string
	Passengers []string

	Inventory map[string]int
}

// Occupies reports whether pos is inside the traveler's column.
func (t *Traveler) Occupies(pos Vec3i) bool {
	h := t.Height
	if h <= 0 {
		h = 1
	}
	return pos.X == t.Pos.X && pos.Z == t.Pos.Z && pos.Y >= t.Pos.Y && pos.Y < t.Pos.Y+h
}

// CanTransit excludes riders and anything carrying riders.
func (t *Traveler) CanTransit() bool {
	return t.VehicleID == "" && len(t.Passengers) == 0
}
