package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrSessionNotFound is returned when a session ID has no local state.
// Non-fatal: the initiating fact may simply not have replicated yet.
var ErrSessionNotFound = errors.New("ledger: session not found")

// ErrKindMismatch is returned when a session ID is read with the wrong kind.
var ErrKindMismatch = errors.New("ledger: session kind mismatch")

type session struct {
	kind      Kind
	dkd       *DKDState
	resharing *ResharingState
}

// Store is one replica of the shared session ledger. All mutation goes
// through monotone merges; there is no read-modify-write on recorded
// facts. Watchers are notified after every merge that changed state, so
// replication between stores reaches a quiescent fixed point.
type Store struct {
	mu        sync.RWMutex
	sessions  map[SessionID]*session
	watchers  map[int]chan struct{}
	nextWatch int
}

// NewStore returns an empty replica.
func NewStore() *Store {
	return &Store{
		sessions: make(map[SessionID]*session),
		watchers: make(map[int]chan struct{}),
	}
}

// RecordDKD merges a DKD delta into the session, creating it if absent.
func (s *Store) RecordDKD(id SessionID, delta *DKDState) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{kind: KindDKD, dkd: NewDKDState("", nil, 0, 0, 0)}
		s.sessions[id] = sess
	}
	if sess.kind != KindDKD {
		s.mu.Unlock()
		return ErrKindMismatch
	}
	changed := sess.dkd.Merge(delta)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return nil
}

// RecordResharing merges a resharing delta into the session.
func (s *Store) RecordResharing(id SessionID, delta *ResharingState) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{kind: KindResharing, resharing: NewResharingState(nil, nil, nil, 0, 0, "", nil, 0, 0)}
		s.sessions[id] = sess
	}
	if sess.kind != KindResharing {
		s.mu.Unlock()
		return ErrKindMismatch
	}
	changed := sess.resharing.Merge(delta)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return nil
}

// ReadDKD returns an immutable snapshot of a DKD session.
func (s *Store) ReadDKD(id SessionID) (*DKDState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.kind != KindDKD {
		return nil, ErrKindMismatch
	}
	return sess.dkd.Copy(), nil
}

// ReadResharing returns an immutable snapshot of a resharing session.
func (s *Store) ReadResharing(id SessionID) (*ResharingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.kind != KindResharing {
		return nil, ErrKindMismatch
	}
	return sess.resharing.Copy(), nil
}

// DKDSessionsForContext returns the IDs of DKD sessions initiated for a
// context, in ascending ID order. Concurrent initiations for the same
// context collapse deterministically to the smallest session ID; every
// correct participant contributes only to the first entry.
func (s *Store) DKDSessionsForContext(dkdContext string) []SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SessionID
	for id, sess := range s.sessions {
		if sess.kind == KindDKD && sess.dkd.Context == dkdContext {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SessionIDs lists all locally known sessions in ascending ID order.
func (s *Store) SessionIDs() []SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GC drops sessions whose deadline passed without completion. Stale
// sessions hold no secrets, so dropping them is purely reclamation.
func (s *Store) GC(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, sess := range s.sessions {
		var deadline int64
		var done bool
		switch sess.kind {
		case KindDKD:
			deadline, done = sess.dkd.Deadline, sess.dkd.Completed || sess.dkd.Aborted
		case KindResharing:
			deadline, done = sess.resharing.Deadline, sess.resharing.Committed || sess.resharing.Aborted
		}
		if !done && deadline != 0 && now > deadline {
			delete(s.sessions, id)
			dropped++
		}
	}
	return dropped
}

// Watch returns a channel that receives a signal after ledger changes.
// The channel is closed when ctx is cancelled. Signals are coalesced:
// a receive means "state may have changed", not "exactly one change".
func (s *Store) Watch(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	key := s.nextWatch
	s.nextWatch++
	s.watchers[key] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, key)
		s.mu.Unlock()
		close(ch)
	}()
	return ch
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Await blocks until pred observes a satisfying snapshot of the ledger
// or ctx expires. pred runs against the store after every change
// notification; it must be pure.
func (s *Store) Await(ctx context.Context, pred func() bool) error {
	watch := s.Watch(ctx)
	for {
		if pred() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-watch:
			if !ok {
				return ctx.Err()
			}
		}
	}
}
