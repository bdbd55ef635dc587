package dkd

import "errors"

var (
	// ErrNotParticipant is returned when the local party is not in the
	// session's participant set.
	ErrNotParticipant = errors.New("dkd: not a session participant")
	// ErrCommitmentMismatch marks a reveal that does not hash to its
	// recorded commitment. Byzantine signal, never retried.
	ErrCommitmentMismatch = errors.New("dkd: reveal does not match commitment")
	// ErrInvalidPoint marks reveal bytes that do not decode to a group
	// element. Treated exactly like a commitment mismatch.
	ErrInvalidPoint = errors.New("dkd: invalid group element")
	// ErrInsufficientParticipants is fatal for the session: after
	// excluding faulty participants the remaining set cannot reach the
	// threshold. A fresh session may be tried once more peers are up.
	ErrInsufficientParticipants = errors.New("dkd: insufficient participants for threshold")
	// ErrTimeout means quorum was not observed before the session
	// deadline. Liveness failure only; safe to retry.
	ErrTimeout = errors.New("dkd: session timed out before quorum")
	// ErrAborted is returned when the session carries an abort fact.
	ErrAborted = errors.New("dkd: session aborted")
)
