package observerproto

// Version is the observer bootstrap version (separate from the notice stream protocol).
const Version = "0.1"

// HTTP response for GET /admin/v1/observer/bootstrap. Observers fetch it once,
// then open the notice stream with a HELLO naming the worlds they want.
type BootstrapResponse struct {
	ProtocolVersion       string          `json:"protocol_version"`
	NoticeProtocolVersion string          `json:"notice_protocol_version"`
	DefaultWorldID        string          `json:"default_world_id"`
	Tick                  uint64          `json:"tick"`
	TickRateHz            int             `json:"tick_rate_hz"`
	Transit               TransitParams   `json:"transit"`
	Worlds                []WorldManifest `json:"worlds"`
}

type TransitParams struct {
	ChargeTicks     int    `json:"charge_ticks"`
	ReentryDistance int    `json:"reentry_distance"`
	ReentryTickGap  int    `json:"reentry_tick_gap"`
	StabilizerItem  string `json:"stabilizer_item"`
}

type WorldManifest struct {
	WorldID       string `json:"world_id"`
	Type          string `json:"type"`
	FloorY        int    `json:"floor_y"`
	BoundaryR     int    `json:"boundary_r"`
	CoordScale    int    `json:"coord_scale"`
	Governed      bool   `json:"governed"`
	DestinationID string `json:"destination_id,omitempty"`
	HasArrived    bool   `json:"has_arrived"`
	IsStabilized  bool   `json:"is_stabilized"`
	Gates         int    `json:"gates"`
}
