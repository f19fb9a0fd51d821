package transit

import (
	"errors"

	"voxelgate.ai/internal/protocol"
)

// Error is a coded, recoverable transit failure. Codes are shared with the
// admin/observer protocol so callers can surface them unchanged.
type Error struct {
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + ": " + e.Msg
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func Errorf(code, msg string) *Error { return &Error{Code: code, Msg: msg} }

// CodeOf returns the code of a coded error, or protocol.ErrInternal.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return protocol.ErrInternal
}

var (
	ErrFrameInvalid          = &Error{Code: protocol.ErrFrameInvalid, Msg: "gate frame is not intact"}
	ErrDestinationUnresolved = &Error{Code: protocol.ErrDestinationUnresolved, Msg: "no safe landing position"}
	ErrDestinationLocked     = &Error{Code: protocol.ErrDestinationLocked, Msg: "world awaits stabilization after its first arrival"}
	ErrNoRoute               = &Error{Code: protocol.ErrNoRoute, Msg: "world has no transit route"}
	ErrNotEligible           = &Error{Code: protocol.ErrNotEligible, Msg: "traveler cannot transit"}
	ErrOrphanedLink          = &Error{Code: protocol.ErrOrphanedLink, Msg: "linked gate no longer exists"}
	ErrTravelerNotFound      = &Error{Code: protocol.ErrTravelerNotFound, Msg: "traveler not found"}
	ErrGateNotFound          = &Error{Code: protocol.ErrGateNotFound, Msg: "gate not found"}
	ErrInvalidTransition     = &Error{Code: protocol.ErrInvalidStateTransition, Msg: "gate state transition not allowed"}
	ErrWorldNotFound         = &Error{Code: protocol.ErrWorldNotFound, Msg: "world not found"}

	ErrNoGateFound       = &Error{Code: protocol.ErrNoGateFound, Msg: "no gate here"}
	ErrAlreadyStabilized = &Error{Code: protocol.ErrAlreadyStabilized, Msg: "gate is already stabilized"}
	ErrNotStabilizable   = &Error{Code: protocol.ErrNotStabilizable, Msg: "gate cannot be stabilized in its current state"}
	ErrNoResource        = &Error{Code: protocol.ErrNoResource, Msg: "missing stabilizer"}

	ErrBadRequest = &Error{Code: protocol.ErrBadRequest, Msg: "bad request"}
)
