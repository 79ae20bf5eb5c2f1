package domain

import "errors"

// Venue and order path.
var (
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrOrderRejected     = errors.New("order rejected")
	ErrSigningFailed     = errors.New("signing failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrOrdersDisabled    = errors.New("order placement disabled in monitor mode")
	ErrDuplicateInFlight = errors.New("identical order already in flight")
	ErrWSDisconnect      = errors.New("websocket disconnected")
)

// Session lifecycle.
var (
	ErrSessionActive  = errors.New("session already active")
	ErrNoSession      = errors.New("no active session")
	ErrInvalidRound   = errors.New("invalid round boundaries")
	ErrInvalidPrice   = errors.New("price outside (0,1)")
	ErrBelowMinShares = errors.New("stake below venue minimum share count")
	ErrStrandedLeg    = errors.New("round ended with unhedged first leg")
	// ErrInvariant marks a state the engine should never reach, such as a
	// second leg fill with no first leg recorded.
	ErrInvariant = errors.New("session invariant violated")
)

// Shared state.
var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)
