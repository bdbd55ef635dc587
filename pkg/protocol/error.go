// Package protocol holds the pieces shared by the coordination
// protocol engines: attributable errors and phase naming.
package protocol

import (
	"fmt"
	"strings"

	"github.com/hxrts/aura-sub005/pkg/party"
)

// Error is a protocol failure attributable to specific participants.
// Culprits is empty for liveness failures such as timeouts.
type Error struct {
	Phase    string
	Culprits party.IDSlice
	Err      error
}

func (e *Error) Error() string {
	if len(e.Culprits) == 0 {
		return fmt.Sprintf("protocol: phase %s: %v", e.Phase, e.Err)
	}
	ids := make([]string, len(e.Culprits))
	for i, id := range e.Culprits {
		ids[i] = string(id)
	}
	return fmt.Sprintf("protocol: phase %s: culprits [%s]: %v", e.Phase, strings.Join(ids, " "), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fault wraps err with phase and culprit attribution.
func Fault(phase string, err error, culprits ...party.ID) *Error {
	return &Error{Phase: phase, Culprits: party.NewIDSlice(culprits), Err: err}
}
