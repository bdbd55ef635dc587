// Package epoch tracks the account's session epoch, the revocation
// fence for threshold key material.
//
// The epoch only moves forward, and only a committed resharing moves
// it. Any key share, presence ticket, or capability proof referencing an
// epoch strictly below the current one is void everywhere the fence is
// checked.
package epoch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hxrts/aura-sub005/pkg/ledger"
)

// ErrStale is returned when material references a superseded epoch.
var ErrStale = errors.New("epoch: stale epoch")

// Initial is the epoch of a freshly bootstrapped account.
const Initial uint64 = 1

// Clock is the local view of the account epoch.
type Clock struct {
	mu      sync.RWMutex
	current uint64
}

// NewClock returns a clock at the given epoch.
func NewClock(current uint64) *Clock {
	if current == 0 {
		current = Initial
	}
	return &Clock{current: current}
}

// Current returns the current epoch.
func (c *Clock) Current() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Bump advances the epoch and returns the new value. Called only on
// resharing commit.
func (c *Clock) Bump() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// Observe raises the clock to at least e. Used when a replica learns of
// a committed resharing it did not participate in.
func (c *Clock) Observe(e uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e > c.current {
		c.current = e
	}
}

// Check rejects material issued under a superseded epoch.
func (c *Clock) Check(e uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e < c.current {
		return fmt.Errorf("%w: have %d, current %d", ErrStale, e, c.current)
	}
	return nil
}

// NewSessionID allocates a fresh random session identifier.
func NewSessionID() ledger.SessionID {
	return ledger.SessionID(uuid.NewString())
}
