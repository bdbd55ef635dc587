package reshare

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hxrts/aura-sub005/pkg/epoch"
	"github.com/hxrts/aura-sub005/pkg/keyshare"
	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/party"
	"github.com/hxrts/aura-sub005/pkg/protocol"
	"github.com/hxrts/aura-sub005/pkg/sealed"
	"github.com/hxrts/aura-sub005/pkg/sigchain"
)

// DefaultSessionTTL bounds how long a resharing session may wait for
// its quorums.
const DefaultSessionTTL = 5 * time.Minute

// Outcome is the terminal result of participating in a resharing
// session: committed with the new epoch, or aborted with a reason and
// the flagged participants.
type Outcome struct {
	Committed   bool
	NewEpoch    uint64
	NewShare    *keyshare.KeyShare
	AbortReason string
	Faults      map[party.ID]string
}

// Config assembles a resharing engine's collaborators.
type Config struct {
	SelfID party.ID

	// Shares holds the local current share. Empty for a device that
	// only joins through this resharing.
	Shares keyshare.Store

	Ledger *ledger.Store
	Clock  *epoch.Clock

	// SealKey is the local long-term box keypair sub-shares are sealed
	// to.
	SealKey *sealed.KeyPair

	// PeerKeys maps each participant to its long-term sealing key.
	PeerKeys map[party.ID][sealed.KeySize]byte

	// DeviceKeys maps each participant to its endorsement
	// verification key.
	DeviceKeys map[party.ID]ed25519.PublicKey

	SessionTTL time.Duration
	Logger     *zap.Logger
}

// Engine runs the propose/distribute/reconstruct/verify/commit state
// machine for one participant.
type Engine struct {
	self       party.ID
	shares     keyshare.Store
	ledger     *ledger.Store
	clock      *epoch.Clock
	sealKey    *sealed.KeyPair
	peerKeys   map[party.ID][sealed.KeySize]byte
	deviceKeys map[party.ID]ed25519.PublicKey
	ttl        time.Duration
	log        *zap.Logger
}

// NewEngine validates the configuration and returns an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.SelfID == "" {
		return nil, errors.New("reshare: missing self ID")
	}
	if cfg.Shares == nil || cfg.Ledger == nil || cfg.Clock == nil {
		return nil, errors.New("reshare: missing share store, ledger, or epoch clock")
	}
	if cfg.SealKey == nil {
		return nil, errors.New("reshare: missing sealing keypair")
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
		self:       cfg.SelfID,
		shares:     cfg.Shares,
		ledger:     cfg.Ledger,
		clock:      cfg.Clock,
		sealKey:    cfg.SealKey,
		peerKeys:   cfg.PeerKeys,
		deviceKeys: cfg.DeviceKeys,
		ttl:        ttl,
		log:        log.With(zap.String("party", string(cfg.SelfID))),
	}, nil
}

// Initiate authorizes a signed proposal and records the initiating
// fact. The proposal is rejected before any state change if it lacks
// old-threshold endorsement.
func (e *Engine) Initiate(sp *SignedProposal) (ledger.SessionID, error) {
	if err := sigchain.Authorize(&sp.Proposal, sp.Endorsements, e.deviceKeys); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}
	raw, err := sp.Encode()
	if err != nil {
		return "", err
	}
	id := ledger.SessionID(sp.Proposal.Session)
	now := time.Now()
	state := ledger.NewResharingState(raw,
		sp.Proposal.OldParticipants, sp.Proposal.NewParticipants,
		sp.Proposal.OldThreshold, sp.Proposal.NewThreshold,
		sp.Proposal.Reason, sp.Proposal.GroupPublicKey,
		now.Unix(), now.Add(e.ttl).Unix())
	// The successor epoch is pinned by the initiator so that every
	// replica commits against the same value regardless of how far
	// its own clock has advanced.
	state.NewEpoch = e.clock.Current() + 1
	if err := e.ledger.RecordResharing(id, state); err != nil {
		return "", err
	}
	e.log.Info("resharing initiated",
		zap.String("session", string(id)),
		zap.String("reason", sp.Proposal.Reason),
		zap.Int("old_threshold", sp.Proposal.OldThreshold),
		zap.Int("new_threshold", sp.Proposal.NewThreshold))
	return id, nil
}

// run carries a participant's mutable session-local state between
// steps.
type run struct {
	groupKey *curve.Point
	secret   *curve.Scalar
	cosigner *sigchain.Cosigner
	checked  bool
}

// Participate drives the local participant through a session until it
// commits, aborts, or times out.
func (e *Engine) Participate(ctx context.Context, id ledger.SessionID) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.ttl)
	defer cancel()
	watch := e.ledger.Watch(ctx)

	r := &run{}
	defer func() {
		if r.cosigner != nil {
			r.cosigner.Zeroize()
		}
	}()

	for {
		snapshot, err := e.ledger.ReadResharing(id)
		switch {
		case err == nil:
			done, outcome, stepErr := e.step(id, snapshot, r)
			if stepErr != nil {
				return nil, stepErr
			}
			if done {
				return outcome, nil
			}
		case errors.Is(err, ledger.ErrSessionNotFound):
			// Initiating fact not replicated yet.
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			phase := "initiated"
			if snapshot, err := e.ledger.ReadResharing(id); err == nil {
				phase = PhaseOf(snapshot).String()
			}
			return nil, protocol.Fault(phase, ErrTimeout)
		case <-watch:
		}
	}
}

func (e *Engine) step(id ledger.SessionID, s *ledger.ResharingState, r *run) (bool, *Outcome, error) {
	if s.Aborted {
		return true, &Outcome{AbortReason: s.AbortReason, Faults: s.Faults}, nil
	}

	isOld := s.OldParticipants.Contains(e.self)
	isNew := s.NewParticipants.Contains(e.self)
	if !isOld && !isNew {
		return false, nil, protocol.Fault(PhaseOf(s).String(), ErrNotParticipant, e.self)
	}

	// Every participant re-verifies the authorization gate once; the
	// initiator is not trusted.
	if !r.checked {
		sp, err := DecodeSignedProposal(s.ProposalBytes)
		if err != nil {
			return false, nil, err
		}
		if err := sigchain.Authorize(&sp.Proposal, sp.Endorsements, e.deviceKeys); err != nil {
			delta := e.delta()
			delta.Aborted = true
			delta.AbortReason = AbortNotAuthorized
			if recordErr := e.ledger.RecordResharing(id, delta); recordErr != nil {
				e.log.Error("recording abort fact failed",
					zap.String("session", string(id)), zap.Error(recordErr))
			}
			return false, nil, fmt.Errorf("%w: %v", ErrNotAuthorized, err)
		}
		groupKey, err := curve.PointFromBytes(s.GroupPublicKey)
		if err != nil {
			return false, nil, fmt.Errorf("reshare: group key: %w", err)
		}
		r.groupKey = groupKey
		r.checked = true
	}

	if s.Committed {
		return e.commit(id, s, r)
	}

	if isOld && !s.Distributed[e.self] {
		if err := e.distribute(id, s); err != nil {
			return false, nil, err
		}
		return false, nil, nil
	}

	if isNew && r.secret == nil {
		done, err := e.reconstruct(id, s, r)
		if err != nil {
			return false, nil, err
		}
		if !done {
			return false, nil, nil
		}
	}

	if len(s.SignerSet) == 0 {
		if proposed, ok := ProposeSignerSet(s); ok {
			delta := e.delta()
			delta.SignerSet = proposed
			if err := e.ledger.RecordResharing(id, delta); err != nil {
				return false, nil, err
			}
		}
		return false, nil, nil
	}

	// The round below is keyed by the pinned set's digest. If a
	// concurrent proposal later wins the write-once merge, the digest
	// changes and every cosigner runs the round again under the new
	// key; entries for the superseded set are never combined.
	digest := SignerSetDigest(s.SignerSet)
	setKey := string(digest[:])

	if isNew && r.cosigner != nil && s.SignerSet.Contains(e.self) {
		key := ledger.VerificationKey{Set: setKey, Signer: e.self}
		if _, ok := s.NonceCommitments[key]; !ok {
			return false, nil, e.commitNonce(id, s, key, r)
		}
		if _, ok := s.VerificationShares[key]; !ok {
			return false, nil, e.respond(id, s, r, setKey)
		}
	}

	return false, nil, e.tryFinalize(id, s, r, setKey)
}

func (e *Engine) delta() *ledger.ResharingState {
	return ledger.NewResharingState(nil, nil, nil, 0, 0, "", nil, 0, 0)
}

// distribute splits the local current share for the new configuration
// and records the sealed sub-shares.
func (e *Engine) distribute(id ledger.SessionID, s *ledger.ResharingState) error {
	share, err := e.shares.Load()
	if err != nil {
		return err
	}
	if err := e.clock.Check(share.Epoch); err != nil {
		return fmt.Errorf("%w: epoch %d", ErrStaleShare, share.Epoch)
	}
	ciphertexts, err := DistributeShare(share.Secret, s.NewParticipants, s.NewThreshold, e.peerKeys, rand.Reader)
	if err != nil {
		return err
	}
	delta := e.delta()
	for to, ct := range ciphertexts {
		delta.SubShares[ledger.SubShareKey{From: e.self, To: to}] = ct
	}
	delta.Distributed[e.self] = true
	if err := e.ledger.RecordResharing(id, delta); err != nil {
		return err
	}
	e.log.Info("sub-shares distributed",
		zap.String("session", string(id)),
		zap.Int("recipients", len(ciphertexts)))
	return nil
}

// reconstruct recovers the local new share once the canonical
// distributor set is complete, then publishes readiness and the public
// share image.
func (e *Engine) reconstruct(id ledger.SessionID, s *ledger.ResharingState, r *run) (bool, error) {
	if _, ok := DistributorSet(s); !ok {
		return false, nil
	}
	secret, err := Reconstruct(s, e.self, e.sealKey)
	if err != nil {
		if errors.Is(err, ErrInsufficientSubShares) || errors.Is(err, ErrReconstructionFailed) {
			return false, protocol.Fault(PhaseOf(s).String(), err)
		}
		return false, err
	}
	r.secret = secret
	r.cosigner = sigchain.NewCosigner(s.NewParticipants.Index(e.self), secret)

	delta := e.delta()
	delta.ShareReady[e.self] = true
	delta.PublicShares[e.self] = r.cosigner.PublicShare().Bytes()
	if err := e.ledger.RecordResharing(id, delta); err != nil {
		return false, err
	}
	e.log.Info("share reconstructed", zap.String("session", string(id)))
	return true, nil
}

// commitNonce publishes the local nonce commitment for the pinned
// signer set.
func (e *Engine) commitNonce(id ledger.SessionID, s *ledger.ResharingState, key ledger.VerificationKey, r *run) error {
	msg := VerificationMessage(id, s.GroupPublicKey, s.SignerSet)
	commitment, err := r.cosigner.NonceCommitment(msg)
	if err != nil {
		return err
	}
	delta := e.delta()
	delta.NonceCommitments[key] = commitment.Bytes()
	return e.ledger.RecordResharing(id, delta)
}

// respond publishes the local partial signature once every pinned
// cosigner's nonce commitment for the current set is on the ledger.
func (e *Engine) respond(id ledger.SessionID, s *ledger.ResharingState, r *run, setKey string) error {
	commitments, complete, bad := signerCommitments(s, setKey)
	if bad != nil {
		return e.abortVerification(id, bad.id, "unparseable nonce commitment")
	}
	if !complete {
		return nil
	}
	msg := VerificationMessage(id, s.GroupPublicKey, s.SignerSet)
	partial, err := r.cosigner.PartialSign(msg, r.groupKey, commitments)
	if err != nil {
		return err
	}
	delta := e.delta()
	delta.VerificationShares[ledger.VerificationKey{Set: setKey, Signer: e.self}] = partial.Bytes()
	return e.ledger.RecordResharing(id, delta)
}

// tryFinalize combines the verification round once every pinned
// cosigner has responded under the current set, and records either the
// commit or the abort.
func (e *Engine) tryFinalize(id ledger.SessionID, s *ledger.ResharingState, r *run, setKey string) error {
	for _, signer := range s.SignerSet {
		if _, ok := s.VerificationShares[ledger.VerificationKey{Set: setKey, Signer: signer}]; !ok {
			return nil
		}
	}

	commitments, complete, bad := signerCommitments(s, setKey)
	if bad != nil {
		return e.abortVerification(id, bad.id, "unparseable nonce commitment")
	}
	if !complete {
		return nil
	}
	msg := VerificationMessage(id, s.GroupPublicKey, s.SignerSet)
	partials := make(map[int]*curve.Scalar, len(s.SignerSet))
	for _, signer := range s.SignerSet {
		raw := s.VerificationShares[ledger.VerificationKey{Set: setKey, Signer: signer}]
		scalar, err := curve.ScalarFromBytes(raw)
		if err != nil {
			return e.abortVerification(id, signer, "unparseable verification share")
		}
		partials[s.NewParticipants.Index(signer)] = scalar
	}

	sig, err := sigchain.Combine(msg, r.groupKey, commitments, partials)
	if err != nil {
		return e.abortCombineFailure(id, s, r, msg, commitments, partials)
	}

	delta := e.delta()
	delta.TestSignature = sig.Bytes()
	delta.Committed = true
	if err := e.ledger.RecordResharing(id, delta); err != nil {
		return err
	}
	e.log.Info("resharing verified and committed",
		zap.String("session", string(id)),
		zap.Uint64("new_epoch", s.NewEpoch))
	return nil
}

// abortCombineFailure attributes a failed test signature: cosigners
// whose response does not match their own commitment and public share
// are flagged directly; if every response is self-consistent, the
// corruption is in a reconstructed share, isolated by subset search
// over the published share images.
func (e *Engine) abortCombineFailure(id ledger.SessionID, s *ledger.ResharingState, r *run,
	msg []byte, commitments map[int]*curve.Point, partials map[int]*curve.Scalar) error {
	faults := make(map[party.ID]string)
	for _, signer := range s.SignerSet {
		index := s.NewParticipants.Index(signer)
		publicShare, err := curve.PointFromBytes(s.PublicShares[signer])
		if err != nil {
			faults[signer] = "unparseable public share"
			continue
		}
		if !sigchain.VerifyPartial(index, partials[index], publicShare, msg, r.groupKey, commitments) {
			faults[signer] = "verification share does not match commitment"
		}
	}

	if len(faults) == 0 {
		// Responses are consistent with the published shares, so at
		// least one reconstructed share itself is wrong.
		images := make(map[int]*curve.Point, len(s.PublicShares))
		byIndex := make(map[int]party.ID, len(s.PublicShares))
		for pid, raw := range s.PublicShares {
			point, err := curve.PointFromBytes(raw)
			if err != nil {
				faults[pid] = "unparseable public share"
				continue
			}
			index := s.NewParticipants.Index(pid)
			images[index] = point
			byIndex[index] = pid
		}
		suspects := SuspectShares(r.groupKey, images, s.NewThreshold)
		for _, index := range suspects {
			faults[byIndex[index]] = "reconstructed share fails verification"
		}
		if len(suspects) > 0 {
			// Every new share is interpolated from the canonical
			// distributor set's sub-shares, so a wrong share implicates
			// the distributors alongside its holder.
			if distributors, ok := DistributorSet(s); ok {
				for _, pid := range distributors {
					if _, dup := faults[pid]; !dup {
						faults[pid] = "distributed sub-shares for a faulty reconstructed share"
					}
				}
			}
		}
	}

	delta := e.delta()
	delta.Aborted = true
	delta.AbortReason = AbortVerificationFailed
	for pid, reason := range faults {
		delta.Faults[pid] = reason
	}
	if err := e.ledger.RecordResharing(id, delta); err != nil {
		return err
	}
	e.log.Warn("resharing aborted",
		zap.String("session", string(id)),
		zap.Int("flagged", len(faults)))
	return nil
}

func (e *Engine) abortVerification(id ledger.SessionID, culprit party.ID, reason string) error {
	delta := e.delta()
	delta.Aborted = true
	delta.AbortReason = AbortVerificationFailed
	delta.Faults[culprit] = reason
	return e.ledger.RecordResharing(id, delta)
}

// commit applies the session's terminal state locally: new
// participants store their new share under the new epoch, retiring
// participants zeroize, and every participant advances its epoch
// clock.
func (e *Engine) commit(id ledger.SessionID, s *ledger.ResharingState, r *run) (bool, *Outcome, error) {
	isNew := s.NewParticipants.Contains(e.self)
	outcome := &Outcome{Committed: true, NewEpoch: s.NewEpoch, Faults: s.Faults}

	if isNew {
		if r.secret == nil {
			// Reconstruction is still pending for this participant;
			// the sub-shares stay on the ledger until it catches up.
			done, err := e.reconstruct(id, s, r)
			if err != nil || !done {
				return false, nil, err
			}
		}
		newShare := &keyshare.KeyShare{
			ID:             e.self,
			Index:          s.NewParticipants.Index(e.self),
			Threshold:      s.NewThreshold,
			Total:          len(s.NewParticipants),
			Epoch:          s.NewEpoch,
			GroupPublicKey: r.groupKey,
			Secret:         curve.NewScalar().Set(r.secret),
		}
		if err := e.shares.Store(newShare); err != nil {
			return false, nil, err
		}
		outcome.NewShare = newShare
	} else {
		// Retired from the configuration: the old share must become
		// useless the moment the epoch advances.
		if err := e.shares.Zeroize(); err != nil {
			return false, nil, err
		}
	}
	e.clock.Observe(s.NewEpoch)
	e.log.Info("resharing committed locally",
		zap.String("session", string(id)),
		zap.Uint64("epoch", s.NewEpoch),
		zap.Bool("member", isNew))
	return true, outcome, nil
}

type badSigner struct {
	id  party.ID
	err error
}

func (b *badSigner) Error() string { return fmt.Sprintf("bad signer %s: %v", b.id, b.err) }

// signerCommitments collects the pinned set's nonce commitments for
// the given set key. An absent commitment means the round is still in
// flight; only an unparseable one is a fault.
func signerCommitments(s *ledger.ResharingState, setKey string) (map[int]*curve.Point, bool, *badSigner) {
	out := make(map[int]*curve.Point, len(s.SignerSet))
	for _, signer := range s.SignerSet {
		raw, ok := s.NonceCommitments[ledger.VerificationKey{Set: setKey, Signer: signer}]
		if !ok {
			return nil, false, nil
		}
		point, err := curve.PointFromBytes(raw)
		if err != nil {
			return nil, false, &badSigner{id: signer, err: err}
		}
		out[s.NewParticipants.Index(signer)] = point
	}
	return out, true, nil
}
