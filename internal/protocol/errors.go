package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldNotFound = "E_WORLD_NOT_FOUND"
	ErrWorldBusy     = "E_WORLD_BUSY"

	// Gate frame and transit.
	ErrFrameInvalid           = "E_FRAME_INVALID"
	ErrDestinationUnresolved  = "E_DESTINATION_UNRESOLVED"
	ErrDestinationLocked      = "E_DESTINATION_LOCKED"
	ErrNoRoute                = "E_NO_ROUTE"
	ErrNotEligible            = "E_NOT_ELIGIBLE"
	ErrOrphanedLink           = "E_ORPHANED_LINK"
	ErrTravelerNotFound       = "E_TRAVELER_NOT_FOUND"
	ErrGateNotFound           = "E_GATE_NOT_FOUND"
	ErrInvalidStateTransition = "E_INVALID_STATE_TRANSITION"

	// Stabilization.
	ErrNoGateFound       = "E_NO_GATE_FOUND"
	ErrAlreadyStabilized = "E_ALREADY_STABILIZED"
	ErrNotStabilizable   = "E_NOT_STABILIZABLE"
	ErrNoResource        = "E_NO_RESOURCE"

	// Generic.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:        {},
	ErrWorldNotFound:          {},
	ErrWorldBusy:              {},
	ErrFrameInvalid:           {},
	ErrDestinationUnresolved:  {},
	ErrDestinationLocked:      {},
	ErrNoRoute:                {},
	ErrNotEligible:            {},
	ErrOrphanedLink:           {},
	ErrTravelerNotFound:       {},
	ErrGateNotFound:           {},
	ErrInvalidStateTransition: {},
	ErrNoGateFound:            {},
	ErrAlreadyStabilized:      {},
	ErrNotStabilizable:        {},
	ErrNoResource:             {},
	ErrBadRequest:             {},
	ErrInternal:               {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
