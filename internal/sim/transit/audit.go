package transit

// Audit actions.
const (
	AuditIgnite         = "IGNITE"
	AuditTransit        = "TRANSIT"
	AuditTransitFailed  = "TRANSIT_FAILED"
	AuditFrameDestroyed = "FRAME_DESTROYED"
	AuditGateCollapsed  = "GATE_COLLAPSED"
	AuditStabilize      = "STABILIZE"
	AuditLinkRepaired   = "LINK_REPAIRED"
	AuditArrivalGate    = "ARRIVAL_GATE"
)

// AuditEntry is one line of the gate audit trail.
type AuditEntry struct {
	EventID    string `json:"event_id,omitempty"`
	Tick       uint64 `json:"tick"`
	WorldID    string `json:"world_id"`
	Action     string `json:"action"`
	GateID     string `json:"gate_id,omitempty"`
	LinkedGate string `json:"linked_gate_id,omitempty"`
	TravelerID string `json:"traveler_id,omitempty"`
	ToWorldID  string `json:"to_world_id,omitempty"`
	Pos        [3]int `json:"pos"`
	Reason     string `json:"reason,omitempty"`
}
