// Defines the Request struct that models one simulated user session.
// Tracks arrival, dispatch and completion ticks, the assigned server and the outcome.

package sim

import (
	"fmt"
)

// UserType classifies the traffic source of a request.
type UserType string

const (
	UserLight    UserType = "light"
	UserStandard UserType = "standard"
	UserHeavy    UserType = "heavy"
	UserBurst    UserType = "burst"
	UserNaughty  UserType = "naughty"
)

var userTypeOrder = []UserType{UserLight, UserStandard, UserHeavy, UserBurst, UserNaughty}

// UserTypes returns all user types in canonical order.
func UserTypes() []UserType {
	out := make([]UserType, len(userTypeOrder))
	copy(out, userTypeOrder)
	return out
}

// ParseUserType resolves a user type name.
func ParseUserType(name string) (UserType, error) {
	for _, t := range userTypeOrder {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown user type %q: %w", name, ErrInvalidUserType)
}

// RequestState represents the lifecycle state of a request.
type RequestState string

const (
	StatePending    RequestState = "pending"
	StateInProgress RequestState = "in_progress"
	StateCompleted  RequestState = "completed"
	StateFailed     RequestState = "failed"
	StateRejected   RequestState = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s RequestState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateRejected
}

// Request models a single request's lifecycle in the simulation:
// pending -> in_progress -> completed | failed, or pending -> rejected.
type Request struct {
	ID          int64
	UserType    UserType
	ArrivalTick int64
	Demand      Demand

	// Naughty traffic only. Target pins dispatch to one server regardless of algorithm.
	AttackID        int64
	AttackKind      string
	AttackIntensity float64
	Target          string

	State          RequestState
	ServerID       string // empty until dispatched
	Algorithm      string // algorithm active when the request was dispatched
	Reason         string // routing or rejection reason
	DispatchTick   int64
	ServiceTicks   int64 // total ticks of service, fixed at dispatch
	Remaining      int64
	CompletionTick int64
}

// Pinned reports whether the request bypasses the dispatch algorithm.
func (r *Request) Pinned() bool { return r.Target != "" }

// ResponseTicks is the time from arrival to completion; zero until terminal.
func (r *Request) ResponseTicks() int64 {
	if r.CompletionTick == 0 {
		return 0
	}
	return r.CompletionTick - r.ArrivalTick
}

// This method returns a human-readable string representation of a Request.
func (r Request) String() string {
	return fmt.Sprintf("Request: (ID: %d, Type: %s, State: %s, Server: %s, ArrivalTick: %d)",
		r.ID, r.UserType, r.State, r.ServerID, r.ArrivalTick)
}
