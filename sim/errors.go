package sim

import "errors"

// Recoverable dispatch outcomes. The engine converts these into a Rejected
// request outcome; they never surface from a control operation.
var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNoEligibleServer = errors.New("no eligible server")
)

// Control and construction errors, returned to the caller with state unchanged.
var (
	ErrInvalidAlgorithm     = errors.New("invalid algorithm selector")
	ErrInvalidPattern       = errors.New("invalid traffic pattern")
	ErrInvalidUserType      = errors.New("invalid user type")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidTransition    = errors.New("invalid state transition")
)

// Rejection reasons recorded on requests and in decision traces.
const (
	ReasonCapacityExceeded = "capacity_exceeded"
	ReasonNoEligibleServer = "no_eligible_server"
)

// RejectionReason maps a dispatch error onto its recorded reason string.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return ReasonCapacityExceeded
	case errors.Is(err, ErrNoEligibleServer):
		return ReasonNoEligibleServer
	default:
		return err.Error()
	}
}
