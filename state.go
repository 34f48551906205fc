package mdsession

import (
	"sync/atomic"
)

// SessionState represents a Session's position in the bring-up state
// machine (spec §3 "Session" lifecycle).
//
// State Machine:
//
//	NotInitialized -> TransportInitialized -> ReactorInitialized ->
//	LoginStreamOpenPending -> LoginStreamOpenOk -> Operational
//
// Alternative terminal paths out of LoginStreamOpenPending:
//
//	LoginStreamOpenPending -> LoginStreamRejected
//	LoginStreamOpenPending -> LoginTimedOut
//
// All transitions are forward-only until a terminal state is reached.
// Uninitialize always returns the state to NotInitialized, regardless of
// which state it was called from (P3: idempotent).
type SessionState uint32

const (
	// StateNotInitialized is both the initial state and the only state
	// reachable after a successful Uninitialize.
	StateNotInitialized SessionState = iota
	// StateTransportInitialized follows a successful transport-library init.
	StateTransportInitialized
	// StateReactorInitialized follows successful reactor creation.
	StateReactorInitialized
	// StateLoginStreamOpenPending is entered once the login request has
	// been submitted to the channel and the login watchdog timer has been
	// scheduled.
	StateLoginStreamOpenPending
	// StateLoginStreamOpenOk is entered once the login handler reports an
	// accepted login response.
	StateLoginStreamOpenOk
	// StateOperational is entered by Initialize directly after
	// StateLoginStreamOpenOk; bring-up does not wait for directory or
	// dictionary refreshes before entering it. This is the steady state
	// the dispatch loop runs in.
	StateOperational
	// StateLoginStreamRejected is a terminal failure state: the login
	// handler reported a rejected login response.
	StateLoginStreamRejected
	// StateLoginTimedOut is a terminal failure state: the login watchdog
	// fired before an open-ok or rejection was observed.
	StateLoginTimedOut
)

// String returns a human-readable representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateNotInitialized:
		return "NotInitialized"
	case StateTransportInitialized:
		return "TransportInitialized"
	case StateReactorInitialized:
		return "ReactorInitialized"
	case StateLoginStreamOpenPending:
		return "LoginStreamOpenPending"
	case StateLoginStreamOpenOk:
		return "LoginStreamOpenOk"
	case StateOperational:
		return "Operational"
	case StateLoginStreamRejected:
		return "LoginStreamRejected"
	case StateLoginTimedOut:
		return "LoginTimedOut"
	default:
		return "Unknown"
	}
}

// terminalLoginFailure reports whether s is one of the two terminal
// failure states reachable from StateLoginStreamOpenPending.
func (s SessionState) terminalLoginFailure() bool {
	return s == StateLoginStreamRejected || s == StateLoginTimedOut
}

// sessionState is an atomic, CAS-friendly holder for SessionState.
//
// Grounded on eventloop's FastState: a bare atomic word with Load/Store,
// generalized with an advance helper that enforces P2 (state
// monotonicity) by only ever allowing a move to a numerically later
// state, or a reset to StateNotInitialized (uninitialize's terminal
// path), panicking on any other attempted transition since that would
// indicate a bring-up bug rather than a runtime race to recover from.
type sessionState struct {
	v atomic.Uint32
}

func newSessionState() *sessionState {
	s := &sessionState{}
	s.v.Store(uint32(StateNotInitialized))
	return s
}

// Load returns the current state.
func (s *sessionState) Load() SessionState {
	return SessionState(s.v.Load())
}

// set stores to without a from-check or ordering check; used by
// onLoginEvent, which moves LoginStreamOpenPending to LoginStreamOpenOk or
// LoginStreamRejected from inside a reactor callback. Uninitialize uses
// reset instead.
func (s *sessionState) set(to SessionState) {
	s.v.Store(uint32(to))
}

// advance moves the state forward from `from` to `to`, and panics if the
// current value is not `from` -- bring-up is always single-threaded under
// the user lock, so any mismatch is a logic bug, not a race to swallow.
func (s *sessionState) advance(from, to SessionState) {
	if to <= from {
		panic("mdsession: non-forward state transition to " + to.String() + " from " + from.String())
	}
	if !s.v.CompareAndSwap(uint32(from), uint32(to)) {
		panic("mdsession: invalid state transition to " + to.String() + " from " + s.Load().String())
	}
}

// reset unconditionally returns the state to StateNotInitialized. Used by
// Uninitialize, which must be safe to call from any state (including one
// left behind by a bring-up failure).
func (s *sessionState) reset() {
	s.v.Store(uint32(StateNotInitialized))
}
