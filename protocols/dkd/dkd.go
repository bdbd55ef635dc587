// Package dkd implements deterministic key derivation: a threshold of
// participants jointly derive a context-bound identity seed through a
// commit/reveal exchange over the replicated session ledger. The same
// share-set and context always produce the same seed, on every
// participant, regardless of arrival order.
package dkd

import (
	"crypto/ed25519"
	"fmt"
	"sort"

	"github.com/hxrts/aura-sub005/pkg/hash"
	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/party"
)

// Phase is the derived position of a session in its lifecycle. Phases
// are computed from a ledger snapshot, never stored: two replicas with
// the same snapshot always agree on the phase.
type Phase int

const (
	PhaseInitiated Phase = iota
	PhaseCommitment
	PhaseReveal
	PhaseAggregation
	PhaseCompleted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseInitiated:
		return "initiated"
	case PhaseCommitment:
		return "commitment"
	case PhaseReveal:
		return "reveal"
	case PhaseAggregation:
		return "aggregation"
	case PhaseCompleted:
		return "completed"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PhaseOf classifies a ledger snapshot.
func PhaseOf(s *ledger.DKDState) Phase {
	switch {
	case s.Aborted:
		return PhaseAborted
	case s.Completed || len(s.Aggregated) > 0:
		return PhaseCompleted
	case s.RevealQuorum:
		return PhaseAggregation
	case s.CommitmentQuorum:
		return PhaseReveal
	case len(s.Commitments) > 0:
		return PhaseCommitment
	default:
		return PhaseInitiated
	}
}

// Contribution is a participant's secret input to one DKD session: the
// per-context scalar, its public group element, and the hash
// commitment that goes on the ledger first.
type Contribution struct {
	Scalar     *curve.Scalar
	Point      *curve.Point
	Commitment [hash.Size]byte
}

// Contribute derives a participant's contribution from its own secret
// share and the context identifier. The scalar depends only on the
// participant's share, never on anyone else's.
func Contribute(share *curve.Scalar, context string) (*Contribution, error) {
	wide := hash.ContextScalarInput(share.Bytes(), context)
	scalar, err := curve.ScalarFromUniformBytes(wide[:])
	if err != nil {
		return nil, fmt.Errorf("dkd: context scalar: %w", err)
	}
	point := scalar.ActOnBase()
	return &Contribution{
		Scalar:     scalar,
		Point:      point,
		Commitment: hash.Commitment(point.Bytes()),
	}, nil
}

// Zeroize destroys the contribution's secret scalar.
func (c *Contribution) Zeroize() {
	c.Scalar.Zeroize()
}

// VerifyReveals checks every reveal in the snapshot against its
// recorded commitment. It returns the verified group elements and the
// faults found: a reveal without a commitment, a reveal that does not
// hash to its commitment, or reveal bytes that do not decode to a
// point. Every honest participant running this over the same snapshot
// finds the same faults.
func VerifyReveals(s *ledger.DKDState) (map[party.ID]*curve.Point, map[party.ID]string) {
	verified := make(map[party.ID]*curve.Point, len(s.Reveals))
	faults := make(map[party.ID]string)
	for id, reveal := range s.Reveals {
		commitment, ok := s.Commitments[id]
		if !ok {
			faults[id] = reasonMissingCommitment
			continue
		}
		recomputed := hash.Commitment(reveal)
		if !curve.ConstantTimeEqualBytes(recomputed[:], commitment) {
			faults[id] = reasonRevealMismatch
			continue
		}
		point, err := curve.PointFromBytes(reveal)
		if err != nil {
			faults[id] = reasonInvalidPoint
			continue
		}
		verified[id] = point
	}
	return verified, faults
}

// Fault reasons recorded on the session ledger by VerifyReveals. The
// strings are replicated state, so their values never change.
const (
	reasonMissingCommitment = "reveal without commitment"
	reasonRevealMismatch    = "reveal does not match commitment"
	reasonInvalidPoint      = "reveal is not a valid point"
)

// Result is the outcome of aggregation: the canonical aggregated point
// encoding, the derived seed, and its publishable fingerprint.
type Result struct {
	Aggregated  []byte
	Seed        [hash.Size]byte
	Fingerprint [hash.Size]byte
	Selected    party.IDSlice
}

// Aggregate sums the first threshold verified reveals in ascending
// participant-ID order, clears the cofactor, and hashes the result
// into the session seed. The selection order is canonical so that any
// replica holding the same reveals computes bit-identical output; it
// must never depend on arrival order.
func Aggregate(s *ledger.DKDState) (*Result, error) {
	verified, _ := VerifyReveals(s)
	if len(verified) < s.Threshold {
		return nil, fmt.Errorf("%w: %d verified of %d required",
			ErrInsufficientParticipants, len(verified), s.Threshold)
	}
	ids := make([]party.ID, 0, len(verified))
	for id := range verified {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	selected := ids[:s.Threshold]

	sum := curve.NewIdentityPoint()
	for _, id := range selected {
		sum = sum.Add(sum, verified[id])
	}
	sum = sum.ClearCofactor(sum)

	aggregated := sum.Bytes()
	seed := hash.Seed(aggregated, s.Context)
	return &Result{
		Aggregated:  aggregated,
		Seed:        seed,
		Fingerprint: hash.Fingerprint(seed[:]),
		Selected:    party.NewIDSlice(selected),
	}, nil
}

// SeedFromAggregated recomputes the session seed from the recorded
// aggregation fact. Pure; every participant derives the same seed from
// the same fact.
func SeedFromAggregated(aggregated []byte, context string) ([hash.Size]byte, error) {
	if _, err := curve.PointFromBytes(aggregated); err != nil {
		return [hash.Size]byte{}, fmt.Errorf("%w: aggregated fact: %v", ErrInvalidPoint, err)
	}
	return hash.Seed(aggregated, context), nil
}

// Identity is the context-bound signing identity expanded from a
// completed session. The seed itself stays local; only the fingerprint
// is shareable.
type Identity struct {
	Context         string
	PublicKey       ed25519.PublicKey
	PrivateKey      ed25519.PrivateKey
	SeedFingerprint []byte
}

// ExpandIdentity runs the local key-derivation expansion over the
// shared seed and context. No ledger state is touched.
func ExpandIdentity(seed [hash.Size]byte, context string) *Identity {
	material := hash.ExpandIdentity(seed[:], context)
	private := ed25519.NewKeyFromSeed(material[:])
	fingerprint := hash.Fingerprint(seed[:])
	return &Identity{
		Context:         context,
		PublicKey:       private.Public().(ed25519.PublicKey),
		PrivateKey:      private,
		SeedFingerprint: fingerprint[:],
	}
}
