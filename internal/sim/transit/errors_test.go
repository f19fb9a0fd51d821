package transit

import (
	"errors"
	"fmt"
	"testing"

	"voxelgate.ai/internal/protocol"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("stabilize G3: %w", Errorf(protocol.ErrNoGateFound, "radius 4"))
	if !errors.Is(err, ErrNoGateFound) {
		t.Fatalf("expected wrapped coded error to match sentinel")
	}
	if errors.Is(err, ErrAlreadyStabilized) {
		t.Fatalf("different code must not match")
	}
	if got := CodeOf(err); got != protocol.ErrNoGateFound {
		t.Fatalf("unexpected code %q", got)
	}
	if got := CodeOf(errors.New("disk full")); got != protocol.ErrInternal {
		t.Fatalf("uncoded error should map to internal, got %q", got)
	}
	if CodeOf(nil) != "" {
		t.Fatalf("nil error should have empty code")
	}
}

func TestSentinels_UseKnownCodes(t *testing.T) {
	for _, e := range []*Error{
		ErrFrameInvalid, ErrDestinationUnresolved, ErrDestinationLocked, ErrNoRoute,
		ErrNotEligible, ErrOrphanedLink, ErrTravelerNotFound, ErrGateNotFound,
		ErrInvalidTransition, ErrWorldNotFound, ErrNoGateFound, ErrAlreadyStabilized,
		ErrNotStabilizable, ErrNoResource, ErrBadRequest,
	} {
		if !protocol.IsKnownCode(e.Code) {
			t.Fatalf("sentinel uses unknown code %q", e.Code)
		}
	}
}
