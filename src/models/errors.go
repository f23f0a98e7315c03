package models

import "errors"

// -----------------------------------------------------------------------------
// Reason Codes
// -----------------------------------------------------------------------------

// Machine-readable reason codes surfaced to callers. Stable: clients switch
// on these strings.
const (
	ReasonTransientUpstream = "TRANSIENT_UPSTREAM"
	ReasonTerminalRejection = "TERMINAL_REJECTION"
	ReasonCircuitOpen       = "CIRCUIT_OPEN"
	ReasonKillSwitchActive  = "KILL_SWITCH_ACTIVE"
	ReasonIdempotentReplay  = "IDEMPOTENT_REPLAY"
	ReasonResyncRequired    = "RESYNC_REQUIRED"
	ReasonValidationFailed  = "VALIDATION_FAILED"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrTransientUpstream marks retriable failures (timeouts, 5xx-equivalents).
	ErrTransientUpstream = errors.New("transient upstream failure")

	// ErrTerminalRejection marks validation or broker business-rule rejections.
	// Never retried.
	ErrTerminalRejection = errors.New("terminal rejection")

	// ErrCircuitOpen is returned without attempting the protected call.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrKillSwitchActive is returned without attempting any brokerage call.
	ErrKillSwitchActive = errors.New("kill switch active")

	// ErrResyncRequired signals a fan-out cursor older than the replay buffer.
	ErrResyncRequired = errors.New("resync required")

	// ErrAuthFailed marks a terminal session/token failure requiring full re-auth.
	ErrAuthFailed = errors.New("authentication failed")
)

// -----------------------------------------------------------------------------

// ReasonFor maps an error to its stable reason code.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, ErrKillSwitchActive):
		return ReasonKillSwitchActive
	case errors.Is(err, ErrResyncRequired):
		return ReasonResyncRequired
	case errors.Is(err, ErrTerminalRejection):
		return ReasonTerminalRejection
	case errors.Is(err, ErrTransientUpstream), errors.Is(err, ErrAuthFailed):
		return ReasonTransientUpstream
	default:
		return ReasonTerminalRejection
	}
}
