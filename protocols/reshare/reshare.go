// Package reshare implements dynamic resharing of the group secret: a
// threshold-authorized redistribution to a new participant set and
// threshold that keeps the group public key unchanged and never
// reconstructs the secret in one place.
package reshare

import (
	"fmt"
	"io"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/hxrts/aura-sub005/pkg/hash"
	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/math/polynomial"
	"github.com/hxrts/aura-sub005/pkg/party"
	"github.com/hxrts/aura-sub005/pkg/sealed"
	"github.com/hxrts/aura-sub005/pkg/sigchain"
)

// Phase is the derived position of a resharing session, computed from
// a ledger snapshot.
type Phase int

const (
	PhaseInitiated Phase = iota
	PhaseDistribution
	PhaseReconstruction
	PhaseVerification
	PhaseCommitted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseInitiated:
		return "initiated"
	case PhaseDistribution:
		return "distribution"
	case PhaseReconstruction:
		return "reconstruction"
	case PhaseVerification:
		return "verification"
	case PhaseCommitted:
		return "committed"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PhaseOf classifies a ledger snapshot.
func PhaseOf(s *ledger.ResharingState) Phase {
	switch {
	case s.Aborted:
		return PhaseAborted
	case s.Committed:
		return PhaseCommitted
	case len(s.SignerSet) > 0:
		return PhaseVerification
	case distributionQuorum(s):
		return PhaseReconstruction
	case len(s.SubShares) > 0 || len(s.Distributed) > 0:
		return PhaseDistribution
	default:
		return PhaseInitiated
	}
}

// SignedProposal is a proposal plus the endorsements proving
// old-threshold authorization. It travels on the ledger as the
// session's initiating fact.
type SignedProposal struct {
	Proposal     sigchain.Proposal      `cbor:"1,keyasint"`
	Endorsements []sigchain.Endorsement `cbor:"2,keyasint"`
}

// Encode serializes the signed proposal for the ledger.
func (sp *SignedProposal) Encode() ([]byte, error) {
	return cbor.Marshal(sp)
}

// DecodeSignedProposal parses a session's proposal fact.
func DecodeSignedProposal(b []byte) (*SignedProposal, error) {
	var sp SignedProposal
	if err := cbor.Unmarshal(b, &sp); err != nil {
		return nil, fmt.Errorf("reshare: decode proposal: %w", err)
	}
	return &sp, nil
}

// SignerSetDigest canonically identifies a pinned cosigner set. The
// whole verification round is keyed by this digest, so a nonce
// commitment or response produced under one candidate set can never be
// read under another.
func SignerSetDigest(signers party.IDSlice) [hash.Size]byte {
	members := make([]string, len(signers))
	for i, id := range signers {
		members[i] = string(id)
	}
	return hash.SignerSet(members)
}

// VerificationMessage is the test message a pinned cosigner set must
// sign. Binding the session ID and group key makes the test signature
// unreplayable across sessions; binding the signer set gives each
// candidate set a distinct message, so a cosigner that responds again
// after a concurrent set proposal wins the merge derives a fresh nonce
// for a fresh challenge instead of reusing one across two challenges.
func VerificationMessage(id ledger.SessionID, groupKey []byte, signers party.IDSlice) []byte {
	digest := SignerSetDigest(signers)
	msg := make([]byte, 0, len(id)+len(groupKey)+len(digest)+24)
	msg = append(msg, "reshare-verification:"...)
	msg = append(msg, id...)
	msg = append(msg, ':')
	msg = append(msg, groupKey...)
	msg = append(msg, ':')
	msg = append(msg, digest[:]...)
	return msg
}

// CompletedDistributors returns, in ascending ID order, the old
// participants whose sub-shares cover every new participant. The
// ciphertext map is the source of truth; the Distributed flag alone
// proves nothing.
func CompletedDistributors(s *ledger.ResharingState) party.IDSlice {
	var out []party.ID
	for _, old := range s.OldParticipants {
		complete := true
		for _, recipient := range s.NewParticipants {
			if _, ok := s.SubShares[ledger.SubShareKey{From: old, To: recipient}]; !ok {
				complete = false
				break
			}
		}
		if complete {
			out = append(out, old)
		}
	}
	return party.NewIDSlice(out)
}

// DistributorSet returns the canonical old-threshold distributor
// subset: the first OldThreshold completed distributors in ascending
// ID order. Every new participant must reconstruct from exactly this
// subset, or the resulting shares would lie on different polynomials.
func DistributorSet(s *ledger.ResharingState) (party.IDSlice, bool) {
	done := CompletedDistributors(s)
	if len(done) < s.OldThreshold {
		return nil, false
	}
	return done[:s.OldThreshold].Copy(), true
}

func distributionQuorum(s *ledger.ResharingState) bool {
	_, ok := DistributorSet(s)
	return ok
}

// DistributeShare splits an old participant's current share into
// sub-shares for the new configuration: the share becomes the constant
// term of a fresh polynomial of degree NewThreshold-1, evaluated at
// each new participant's index and sealed for that participant alone.
// The ledger never sees a plaintext sub-share.
func DistributeShare(share *curve.Scalar, newSet party.IDSlice, newThreshold int,
	peerKeys map[party.ID][sealed.KeySize]byte, rand io.Reader) (map[party.ID][]byte, error) {
	poly, err := polynomial.NewPolynomial(newThreshold-1, share, rand)
	if err != nil {
		return nil, err
	}
	defer poly.Zeroize()

	out := make(map[party.ID][]byte, len(newSet))
	for _, id := range newSet {
		key, ok := peerKeys[id]
		if !ok {
			return nil, fmt.Errorf("reshare: no sealing key for %s", id)
		}
		eval := poly.EvaluateIndex(newSet.Index(id))
		ct, err := sealed.Seal(eval.Bytes(), key)
		eval.Zeroize()
		if err != nil {
			return nil, fmt.Errorf("reshare: seal sub-share for %s: %w", id, err)
		}
		out[id] = ct
	}
	return out, nil
}

// Reconstruct recovers the local participant's new share from the
// canonical distributor set's sub-shares. The received evaluations are
// combined with Lagrange weights at zero over the old indices, which
// yields the fresh sharing polynomial evaluated at the participant's
// own new index.
func Reconstruct(s *ledger.ResharingState, self party.ID, kp *sealed.KeyPair) (*curve.Scalar, error) {
	distributors, ok := DistributorSet(s)
	if !ok {
		return nil, fmt.Errorf("%w: %d of %d distributors complete",
			ErrInsufficientSubShares, len(CompletedDistributors(s)), s.OldThreshold)
	}
	shares := make([]polynomial.Share, 0, len(distributors))
	for _, from := range distributors {
		ct, ok := s.SubShares[ledger.SubShareKey{From: from, To: self}]
		if !ok {
			return nil, fmt.Errorf("%w: missing sub-share from %s", ErrInsufficientSubShares, from)
		}
		plaintext, err := kp.Open(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: sub-share from %s: %v", ErrInsufficientSubShares, from, err)
		}
		value, err := curve.ScalarFromBytes(plaintext)
		if err != nil {
			return nil, fmt.Errorf("%w: sub-share from %s: %v", ErrReconstructionFailed, from, err)
		}
		shares = append(shares, polynomial.Share{Index: s.OldParticipants.Index(from), Value: value})
	}
	secret, err := polynomial.InterpolateAt(shares, 0)
	for _, sh := range shares {
		sh.Value.Zeroize()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconstructionFailed, err)
	}
	return secret, nil
}

// ProposeSignerSet returns the canonical cosigner set for the
// verification round. Joining participants are preferred over
// continuing ones so the test signature exercises the shares with no
// prior history, then ascending ID within each group. The result is a
// deterministic function of the ready set.
func ProposeSignerSet(s *ledger.ResharingState) (party.IDSlice, bool) {
	ready := make([]party.ID, 0, len(s.ShareReady))
	for id := range s.ShareReady {
		ready = append(ready, id)
	}
	if len(ready) < s.NewThreshold {
		return nil, false
	}
	sort.Slice(ready, func(i, j int) bool {
		joinerI := !s.OldParticipants.Contains(ready[i])
		joinerJ := !s.OldParticipants.Contains(ready[j])
		if joinerI != joinerJ {
			return joinerI
		}
		return ready[i] < ready[j]
	})
	return party.NewIDSlice(ready[:s.NewThreshold]), true
}

// SuspectShares identifies share indices that cannot belong to any
// threshold subset whose public images interpolate to the group key.
// With one corrupt share, every subset avoiding it passes and every
// subset containing it fails, so the corrupt index is isolated
// exactly. If no subset passes, every index is suspect.
func SuspectShares(groupKey *curve.Point, publicShares map[int]*curve.Point, threshold int) []int {
	indices := make([]int, 0, len(publicShares))
	for index := range publicShares {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	if len(indices) < threshold {
		return indices
	}

	cleared := make(map[int]bool, len(indices))
	subset := make([]int, 0, threshold)
	var walk func(start int)
	var found bool
	walk = func(start int) {
		if len(subset) == threshold {
			candidate := make(map[int]*curve.Point, threshold)
			for _, i := range subset {
				candidate[i] = publicShares[i]
			}
			if sigchain.PreservesPublicKey(groupKey, candidate) {
				found = true
				for _, i := range subset {
					cleared[i] = true
				}
			}
			return
		}
		for i := start; i < len(indices); i++ {
			subset = append(subset, indices[i])
			walk(i + 1)
			subset = subset[:len(subset)-1]
		}
	}
	walk(0)

	if !found {
		return indices
	}
	var suspects []int
	for _, i := range indices {
		if !cleared[i] {
			suspects = append(suspects, i)
		}
	}
	return suspects
}
