package protocol

// HELLO (observer -> server). Worlds filters notices; empty means all worlds.
type HelloMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ObserverName    string   `json:"observer_name,omitempty"`
	Worlds          []string `json:"worlds,omitempty"`
}

// NOTICE (server -> observer)
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EventID         string `json:"event_id"`
	Tick            uint64 `json:"tick"`
	Kind            string `json:"kind"`
	WorldID         string `json:"world_id"`
	GateID          string `json:"gate_id,omitempty"`
	TravelerID      string `json:"traveler_id,omitempty"`
	ToWorldID       string `json:"to_world_id,omitempty"`
	Pos             [3]int `json:"pos"`
	Message         string `json:"message,omitempty"`
}

// Notice kinds.
const (
	NoticeArming         = "ARMING"
	NoticeTransit        = "TRANSIT"
	NoticeStabilized     = "STABILIZED"
	NoticeIgnited        = "IGNITED"
	NoticeFrameDestroyed = "FRAME_DESTROYED"
	NoticeGateCollapsed  = "GATE_COLLAPSED"
)

// ERROR (server -> client), also used as the admin HTTP error body.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type IgniteReq struct {
	WorldID string `json:"world_id"`
	Anchor  [3]int `json:"anchor"`
	Axis    string `json:"axis"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type IgniteResp struct {
	GateID string `json:"gate_id"`
	Tick   uint64 `json:"tick"`
}

type StabilizeReq struct {
	WorldID string `json:"world_id"`
	ActorID string `json:"actor_id"`
	Near    [3]int `json:"near"`
}

type StabilizeResp struct {
	GateID       string `json:"gate_id"`
	LinkedGateID string `json:"linked_gate_id,omitempty"`
	Tick         uint64 `json:"tick"`
}

type GateRef struct {
	GateID       string `json:"gate_id"`
	WorldID      string `json:"world_id"`
	Anchor       [3]int `json:"anchor"`
	Axis         string `json:"axis"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	State        string `json:"state"`
	LinkedGateID string `json:"linked_gate_id,omitempty"`
}

type WorldFlagsRef struct {
	WorldID      string `json:"world_id"`
	Governed     bool   `json:"governed"`
	HasArrived   bool   `json:"has_arrived"`
	IsStabilized bool   `json:"is_stabilized"`
}

type TravelerRef struct {
	TravelerID  string `json:"traveler_id"`
	WorldID     string `json:"world_id"`
	Pos         [3]int `json:"pos"`
	Counter     int    `json:"counter"`
	ArrivalLock string `json:"arrival_lock,omitempty"`
}

type StateResp struct {
	Tick      uint64          `json:"tick"`
	Gates     []GateRef       `json:"gates"`
	Worlds    []WorldFlagsRef `json:"worlds"`
	Travelers []TravelerRef   `json:"travelers"`
}

// BlockPlacement writes one cell. Gate cells are only created by ignition.
type BlockPlacement struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

type SetBlocksReq struct {
	WorldID string           `json:"world_id"`
	Blocks  []BlockPlacement `json:"blocks"`
}

type SetBlocksResp struct {
	Changed int    `json:"changed"`
	Tick    uint64 `json:"tick"`
}

type SpawnTravelerReq struct {
	WorldID      string         `json:"world_id"`
	TravelerID   string         `json:"traveler_id"`
	Pos          [3]int         `json:"pos"`
	Height       int            `json:"height,omitempty"`
	Unrestricted bool           `json:"unrestricted,omitempty"`
	VehicleID    string         `json:"vehicle_id,omitempty"`
	Passengers   []string       `json:"passengers,omitempty"`
	Inventory    map[string]int `json:"inventory,omitempty"`
}

// MoveTravelerReq teleports a traveler within its current world.
type MoveTravelerReq struct {
	TravelerID string `json:"traveler_id"`
	Pos        [3]int `json:"pos"`
}

type TravelerResp struct {
	TravelerID string `json:"traveler_id"`
	WorldID    string `json:"world_id"`
	Pos        [3]int `json:"pos"`
	Tick       uint64 `json:"tick"`
}
