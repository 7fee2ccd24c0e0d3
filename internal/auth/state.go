// ABOUTME: Tagged three-state authentication state for UI gating
// ABOUTME: Unknown is a first-class loading state, not a nullable boolean

package auth

// State is the resolved authentication state of the current session.
// Transitions are one-directional per check cycle: a guard never returns
// to StateUnknown once resolved; a fresh guard restarts the cycle.
type State int

const (
	// StateUnknown means resolution is still pending: render neither the
	// protected surface nor the login surface.
	StateUnknown State = iota
	// StateUnauthorized means no valid token exists: render the login surface.
	StateUnauthorized
	// StateAuthorized means the token verified: render the protected surface.
	StateAuthorized
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateUnauthorized:
		return "unauthorized"
	case StateAuthorized:
		return "authorized"
	default:
		return "invalid"
	}
}
