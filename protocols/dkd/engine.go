package dkd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hxrts/aura-sub005/pkg/epoch"
	"github.com/hxrts/aura-sub005/pkg/keyshare"
	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/party"
	"github.com/hxrts/aura-sub005/pkg/protocol"
)

// DefaultSessionTTL bounds how long a session may wait for quorum
// before it is abandoned.
const DefaultSessionTTL = 2 * time.Minute

// Config assembles an Engine's collaborators.
type Config struct {
	SelfID       party.ID
	Participants party.IDSlice
	Shares       keyshare.Store
	Ledger       *ledger.Store
	SessionTTL   time.Duration
	Logger       *zap.Logger
}

// Engine runs the commit/reveal/aggregate state machine for one
// participant. All coordination happens through the ledger; the engine
// never talks to peers directly.
type Engine struct {
	self         party.ID
	participants party.IDSlice
	shares       keyshare.Store
	ledger       *ledger.Store
	ttl          time.Duration
	log          *zap.Logger
}

// NewEngine validates the configuration and returns an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.SelfID == "" {
		return nil, errors.New("dkd: missing self ID")
	}
	if cfg.Shares == nil || cfg.Ledger == nil {
		return nil, errors.New("dkd: missing share store or ledger")
	}
	if len(cfg.Participants) > 0 && !cfg.Participants.Contains(cfg.SelfID) {
		return nil, fmt.Errorf("dkd: %w: %s", ErrNotParticipant, cfg.SelfID)
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		self:         cfg.SelfID,
		participants: cfg.Participants.Copy(),
		shares:       cfg.Shares,
		ledger:       cfg.Ledger,
		ttl:          ttl,
		log:          log.With(zap.String("party", string(cfg.SelfID))),
	}, nil
}

// Initiate records the initiating fact for a new DKD session. The
// session ID is random; concurrent initiations for the same context
// collapse onto the lexicographically smallest ID when participants
// pick the canonical session.
func (e *Engine) Initiate(dkdContext string) (ledger.SessionID, error) {
	share, err := e.shares.Load()
	if err != nil {
		return "", err
	}
	if dkdContext == "" {
		return "", errors.New("dkd: empty context")
	}
	if share.Threshold > len(e.participants) {
		return "", fmt.Errorf("%w: threshold %d over %d participants",
			ErrInsufficientParticipants, share.Threshold, len(e.participants))
	}
	id := epoch.NewSessionID()
	now := time.Now()
	state := ledger.NewDKDState(dkdContext, e.participants, share.Threshold,
		now.Unix(), now.Add(e.ttl).Unix())
	if err := e.ledger.RecordDKD(id, state); err != nil {
		return "", err
	}
	e.log.Info("dkd session initiated",
		zap.String("session", string(id)),
		zap.String("context", dkdContext),
		zap.Int("threshold", share.Threshold))
	return id, nil
}

// DeriveContextIdentity resolves the canonical session for a context,
// initiating one if none exists, then participates until the identity
// is derived. Blocking until quorum; deterministic for a fixed
// share-set and context.
func (e *Engine) DeriveContextIdentity(ctx context.Context, dkdContext string) (*Identity, error) {
	sessions := e.ledger.DKDSessionsForContext(dkdContext)
	var id ledger.SessionID
	if len(sessions) == 0 {
		var err error
		id, err = e.Initiate(dkdContext)
		if err != nil {
			return nil, err
		}
		// Another initiation may have replicated in the meantime; the
		// smallest session ID wins on every replica.
		sessions = e.ledger.DKDSessionsForContext(dkdContext)
		if len(sessions) > 0 {
			id = sessions[0]
		}
	} else {
		id = sessions[0]
	}
	return e.Participate(ctx, id)
}

// Participate drives the local participant through a session until it
// completes, aborts, or times out.
func (e *Engine) Participate(ctx context.Context, id ledger.SessionID) (*Identity, error) {
	share, err := e.shares.Load()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.ttl)
	defer cancel()
	watch := e.ledger.Watch(ctx)

	var contrib *Contribution
	defer func() {
		if contrib != nil {
			contrib.Zeroize()
		}
	}()

	for {
		snapshot, err := e.ledger.ReadDKD(id)
		switch {
		case err == nil:
			done, identity, stepErr := e.step(id, snapshot, share, &contrib)
			if stepErr != nil {
				return nil, stepErr
			}
			if done {
				return identity, nil
			}
		case errors.Is(err, ledger.ErrSessionNotFound):
			// The initiating fact has not replicated yet; keep waiting.
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			phase := "initiated"
			if snapshot, err := e.ledger.ReadDKD(id); err == nil {
				phase = PhaseOf(snapshot).String()
			}
			return nil, protocol.Fault(phase, ErrTimeout)
		case <-watch:
		}
	}
}

// step inspects a snapshot and records whatever the local participant
// owes the session. It returns the derived identity once the session
// holds an aggregation fact.
func (e *Engine) step(id ledger.SessionID, s *ledger.DKDState, share *keyshare.KeyShare, contrib **Contribution) (bool, *Identity, error) {
	if s.Aborted {
		return false, nil, protocol.Fault(PhaseOf(s).String(), ErrAborted, faultedIDs(s.Faults)...)
	}
	if !s.Participants.Contains(e.self) {
		return false, nil, protocol.Fault(PhaseOf(s).String(), ErrNotParticipant, e.self)
	}

	if *contrib == nil {
		c, err := Contribute(share.Secret, s.Context)
		if err != nil {
			return false, nil, err
		}
		*contrib = c
	}
	c := *contrib

	delta := ledger.NewDKDState("", nil, 0, 0, 0)
	dirty := false

	if _, ok := s.Commitments[e.self]; !ok {
		delta.Commitments[e.self] = c.Commitment[:]
		dirty = true
		e.log.Debug("recording commitment", zap.String("session", string(id)))
	}
	if !s.CommitmentQuorum && len(s.Commitments) >= s.Threshold {
		delta.CommitmentQuorum = true
		dirty = true
	}

	if s.CommitmentQuorum {
		if _, ok := s.Reveals[e.self]; !ok {
			delta.Reveals[e.self] = c.Point.Bytes()
			dirty = true
			e.log.Debug("recording reveal", zap.String("session", string(id)))
		}
	}

	verified, faults := VerifyReveals(s)
	for pid, reason := range faults {
		if _, known := s.Faults[pid]; !known {
			delta.Faults[pid] = reason
			dirty = true
			e.log.Warn("byzantine reveal excluded",
				zap.String("session", string(id)),
				zap.String("culprit", string(pid)),
				zap.String("reason", reason))
		}
	}
	if s.CommitmentQuorum && !s.RevealQuorum && len(verified) >= s.Threshold {
		delta.RevealQuorum = true
		dirty = true
	}

	// With faulty participants excluded, the remaining set must still
	// be able to reach the threshold.
	if honest := honestCount(s, faults); honest < s.Threshold && len(verified) < s.Threshold {
		delta.Aborted = true
		if err := e.ledger.RecordDKD(id, delta); err != nil {
			e.log.Error("recording abort fact failed",
				zap.String("session", string(id)),
				zap.Error(err))
		}
		merged := mergedFaults(s.Faults, faults)
		cause := error(ErrInsufficientParticipants)
		for _, reason := range merged {
			if reason == reasonRevealMismatch {
				cause = errors.Join(ErrInsufficientParticipants, ErrCommitmentMismatch)
				break
			}
		}
		return false, nil, protocol.Fault(PhaseOf(s).String(), cause, faultedIDs(merged)...)
	}

	if len(s.Aggregated) > 0 {
		if dirty {
			if err := e.ledger.RecordDKD(id, delta); err != nil {
				return false, nil, err
			}
		}
		seed, err := SeedFromAggregated(s.Aggregated, s.Context)
		if err != nil {
			return false, nil, protocol.Fault(PhaseOf(s).String(), err)
		}
		return true, ExpandIdentity(seed, s.Context), nil
	}

	if s.CommitmentQuorum && len(verified) >= s.Threshold {
		result, err := Aggregate(s)
		if err != nil {
			return false, nil, err
		}
		delta.RevealQuorum = true
		delta.Aggregated = result.Aggregated
		delta.SeedFingerprint = result.Fingerprint[:]
		delta.Completed = true
		if err := e.ledger.RecordDKD(id, delta); err != nil {
			return false, nil, err
		}
		e.log.Info("dkd session completed",
			zap.String("session", string(id)),
			zap.Strings("selected", idStrings(result.Selected)))
		// Use the merged fact so every replica expands the same seed.
		merged, err := e.ledger.ReadDKD(id)
		if err != nil {
			return false, nil, err
		}
		seed, err := SeedFromAggregated(merged.Aggregated, merged.Context)
		if err != nil {
			return false, nil, protocol.Fault(PhaseOf(merged).String(), err)
		}
		return true, ExpandIdentity(seed, merged.Context), nil
	}

	if dirty {
		if err := e.ledger.RecordDKD(id, delta); err != nil {
			return false, nil, err
		}
	}
	return false, nil, nil
}

func honestCount(s *ledger.DKDState, pending map[party.ID]string) int {
	faulty := make(map[party.ID]struct{}, len(s.Faults)+len(pending))
	for id := range s.Faults {
		faulty[id] = struct{}{}
	}
	for id := range pending {
		faulty[id] = struct{}{}
	}
	count := 0
	for _, id := range s.Participants {
		if _, bad := faulty[id]; !bad {
			count++
		}
	}
	return count
}

func mergedFaults(a, b map[party.ID]string) map[party.ID]string {
	out := make(map[party.ID]string, len(a)+len(b))
	for id, reason := range a {
		out[id] = reason
	}
	for id, reason := range b {
		if _, ok := out[id]; !ok {
			out[id] = reason
		}
	}
	return out
}

func faultedIDs(faults map[party.ID]string) []party.ID {
	out := make([]party.ID, 0, len(faults))
	for id := range faults {
		out = append(out, id)
	}
	return out
}

func idStrings(ids party.IDSlice) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
