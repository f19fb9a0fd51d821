package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrWorldNotFound,
		ErrWorldBusy,
		ErrFrameInvalid,
		ErrDestinationUnresolved,
		ErrDestinationLocked,
		ErrNoRoute,
		ErrNotEligible,
		ErrOrphanedLink,
		ErrTravelerNotFound,
		ErrGateNotFound,
		ErrInvalidStateTransition,
		ErrNoGateFound,
		ErrAlreadyStabilized,
		ErrNotStabilizable,
		ErrNoResource,
		ErrBadRequest,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}
