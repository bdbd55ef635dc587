package reshare

import "errors"

var (
	// ErrNotAuthorized means the proposal lacks old-threshold
	// endorsement. Fatal; rejected before any state change.
	ErrNotAuthorized = errors.New("reshare: proposal not authorized")
	// ErrNotParticipant is returned when the local party appears in
	// neither the old nor the new participant set.
	ErrNotParticipant = errors.New("reshare: not a session participant")
	// ErrInsufficientSubShares means the local participant could not
	// gather old-threshold valid sub-shares. Fatal for this
	// participant only; others may still complete the session.
	ErrInsufficientSubShares = errors.New("reshare: insufficient valid sub-shares")
	// ErrReconstructionFailed marks malformed interpolation input.
	// Same severity as ErrInsufficientSubShares.
	ErrReconstructionFailed = errors.New("reshare: share reconstruction failed")
	// ErrStaleShare means the local share belongs to a superseded
	// epoch and must not be reshared.
	ErrStaleShare = errors.New("reshare: share from superseded epoch")
	// ErrTimeout means a quorum was not observed before the deadline.
	// Liveness failure only; safe to retry.
	ErrTimeout = errors.New("reshare: session timed out before quorum")
)

// Terminal abort reasons recorded on the session ledger. A
// verification failure is the strongest signal: at least one
// reconstructed share is wrong and no partial commit is ever allowed.
const (
	AbortVerificationFailed = "verification-failed"
	AbortNotAuthorized      = "not-authorized"
)
