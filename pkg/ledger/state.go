// Package ledger implements the replicated, conflict-free session state
// shared by the coordination protocols.
//
// Every session is a struct of append-only maps and monotone booleans.
// Writes from different participants commute: merging two replicas takes
// the union of every map and the OR of every flag, so all replicas
// converge to the same state regardless of delivery order. Nothing is
// ever overwritten; a conflicting double-write to the same key is itself
// recorded as fault evidence against the writer.
package ledger

import (
	"bytes"
	"strings"

	"github.com/hxrts/aura-sub005/pkg/party"
)

// SessionID names a single protocol execution.
type SessionID string

// Kind discriminates session state types.
type Kind uint8

const (
	// KindDKD is a deterministic key derivation session.
	KindDKD Kind = iota + 1
	// KindResharing is a resharing session.
	KindResharing
)

// DKDState is the replicated state of one DKD session.
type DKDState struct {
	// Immutable session attributes, set by the initiating fact.
	Context      string
	Participants party.IDSlice
	Threshold    int
	CreatedAt    int64
	Deadline     int64

	// Append-only contribution maps.
	Commitments map[party.ID][]byte
	Reveals     map[party.ID][]byte

	// Monotone quorum flags. RevealQuorum implies CommitmentQuorum.
	CommitmentQuorum bool
	RevealQuorum     bool

	// Write-once aggregation results. Honest recomputation is
	// bit-identical, so converging replicas agree on these.
	Aggregated      []byte
	SeedFingerprint []byte

	// Completion and fault bookkeeping.
	Completed bool
	Aborted   bool
	Faults    map[party.ID]string
}

// NewDKDState returns the initiating fact for a DKD session.
func NewDKDState(context string, participants party.IDSlice, threshold int, createdAt, deadline int64) *DKDState {
	return &DKDState{
		Context:      context,
		Participants: participants.Copy(),
		Threshold:    threshold,
		CreatedAt:    createdAt,
		Deadline:     deadline,
		Commitments:  make(map[party.ID][]byte),
		Reveals:      make(map[party.ID][]byte),
		Faults:       make(map[party.ID]string),
	}
}

// Merge folds other into s and reports whether s changed. Both
// operands may be partial deltas; the result is the least upper bound
// of the two. Merge is commutative, associative, and idempotent.
func (s *DKDState) Merge(other *DKDState) bool {
	if other == nil {
		return false
	}
	changed := mergeSessionAttrs(&s.Context, other.Context, &s.Threshold, other.Threshold,
		&s.Participants, other.Participants, &s.CreatedAt, other.CreatedAt, &s.Deadline, other.Deadline)

	changed = mergeByteMap(s.Commitments, other.Commitments, s.Faults, "conflicting commitment") || changed
	changed = mergeByteMap(s.Reveals, other.Reveals, s.Faults, "conflicting reveal") || changed

	changed = mergeBool(&s.CommitmentQuorum, other.CommitmentQuorum) || changed
	changed = mergeBool(&s.RevealQuorum, other.RevealQuorum) || changed
	s.Aggregated, changed = mergeWriteOnce(s.Aggregated, other.Aggregated, changed)
	s.SeedFingerprint, changed = mergeWriteOnce(s.SeedFingerprint, other.SeedFingerprint, changed)
	changed = mergeBool(&s.Completed, other.Completed) || changed
	changed = mergeBool(&s.Aborted, other.Aborted) || changed
	changed = mergeFaults(s.Faults, other.Faults) || changed
	return changed
}

// Copy returns a deep copy usable as an immutable snapshot.
func (s *DKDState) Copy() *DKDState {
	out := NewDKDState(s.Context, s.Participants, s.Threshold, s.CreatedAt, s.Deadline)
	copyByteMap(out.Commitments, s.Commitments)
	copyByteMap(out.Reveals, s.Reveals)
	out.CommitmentQuorum = s.CommitmentQuorum
	out.RevealQuorum = s.RevealQuorum
	out.Aggregated = append([]byte(nil), s.Aggregated...)
	out.SeedFingerprint = append([]byte(nil), s.SeedFingerprint...)
	out.Completed = s.Completed
	out.Aborted = s.Aborted
	for id, reason := range s.Faults {
		out.Faults[id] = reason
	}
	return out
}

// SubShareKey names the (old participant, new participant) edge a sealed
// sub-share travels along. A sub-share is meaningful only between the
// pair named here.
type SubShareKey struct {
	From party.ID
	To   party.ID
}

// VerificationKey names one cosigner's contribution to the test
// signature under a specific pinned signer set. Concurrent signer-set
// proposals converge by write-once merge, so a replica's pinned set can
// change while responses are in flight; keying by the set digest keeps
// a response computed under a superseded set from ever being combined
// under the winning one.
type VerificationKey struct {
	Set    string
	Signer party.ID
}

// ResharingState is the replicated state of one resharing session.
type ResharingState struct {
	// Proposal attributes, fixed at initiation. The endorsement proving
	// old-threshold authorization travels inside ProposalBytes.
	ProposalBytes []byte

	OldParticipants party.IDSlice
	NewParticipants party.IDSlice
	OldThreshold    int
	NewThreshold    int
	Reason          string
	CreatedAt       int64
	Deadline        int64

	// GroupPublicKey is constant across the resharing.
	GroupPublicKey []byte

	// SubShares holds sealed ciphertexts keyed by (old, new) pair.
	SubShares map[SubShareKey][]byte

	// Distributed is the set of old participants that finished
	// distributing to every new participant. Grow-only.
	Distributed map[party.ID]bool

	// ShareReady is the set of new participants whose share is
	// reconstructed. Grow-only.
	ShareReady map[party.ID]bool

	// PublicShares holds each cosigner's public share image, recorded
	// alongside ShareReady so the test signature can be checked
	// cosigner by cosigner.
	PublicShares map[party.ID][]byte

	// SignerSet pins the cosigner set for the verification round. The
	// first replica to observe a reconstruction quorum proposes it;
	// write-once merge makes the choice canonical everywhere.
	SignerSet party.IDSlice

	// NonceCommitments holds each cosigner's signing nonce commitment,
	// keyed by the signer set it was derived for.
	NonceCommitments map[VerificationKey][]byte

	// VerificationShares holds each cosigner's response to the test
	// signature challenge, keyed by the signer set it was computed
	// under.
	VerificationShares map[VerificationKey][]byte

	// TestSignature is the combined test signature, write-once.
	TestSignature []byte

	// Committed flips when verification has succeeded and the new
	// configuration is authoritative. NewEpoch is assigned at the same
	// moment and never before.
	Committed bool
	NewEpoch  uint64

	Aborted     bool
	AbortReason string
	Faults      map[party.ID]string
}

// NewResharingState returns the initiating fact for a resharing session.
func NewResharingState(proposalBytes []byte, oldP, newP party.IDSlice, oldT, newT int, reason string, groupKey []byte, createdAt, deadline int64) *ResharingState {
	return &ResharingState{
		ProposalBytes:      append([]byte(nil), proposalBytes...),
		OldParticipants:    oldP.Copy(),
		NewParticipants:    newP.Copy(),
		OldThreshold:       oldT,
		NewThreshold:       newT,
		Reason:             reason,
		GroupPublicKey:     append([]byte(nil), groupKey...),
		CreatedAt:          createdAt,
		Deadline:           deadline,
		SubShares:          make(map[SubShareKey][]byte),
		Distributed:        make(map[party.ID]bool),
		ShareReady:         make(map[party.ID]bool),
		PublicShares:       make(map[party.ID][]byte),
		NonceCommitments:   make(map[VerificationKey][]byte),
		VerificationShares: make(map[VerificationKey][]byte),
		Faults:             make(map[party.ID]string),
	}
}

// Merge folds other into s with the same lattice semantics as
// DKDState, reporting whether s changed.
func (s *ResharingState) Merge(other *ResharingState) bool {
	if other == nil {
		return false
	}
	changed := false
	s.ProposalBytes, changed = mergeWriteOnce(s.ProposalBytes, other.ProposalBytes, changed)
	if len(s.OldParticipants) == 0 && len(other.OldParticipants) > 0 {
		s.OldParticipants = other.OldParticipants.Copy()
		changed = true
	}
	if len(s.NewParticipants) == 0 && len(other.NewParticipants) > 0 {
		s.NewParticipants = other.NewParticipants.Copy()
		changed = true
	}
	if s.OldThreshold == 0 && other.OldThreshold != 0 {
		s.OldThreshold = other.OldThreshold
		changed = true
	}
	if s.NewThreshold == 0 && other.NewThreshold != 0 {
		s.NewThreshold = other.NewThreshold
		changed = true
	}
	if s.Reason == "" && other.Reason != "" {
		s.Reason = other.Reason
		changed = true
	}
	if s.CreatedAt == 0 && other.CreatedAt != 0 {
		s.CreatedAt = other.CreatedAt
		changed = true
	}
	if s.Deadline == 0 && other.Deadline != 0 {
		s.Deadline = other.Deadline
		changed = true
	}
	s.GroupPublicKey, changed = mergeWriteOnce(s.GroupPublicKey, other.GroupPublicKey, changed)

	for key, ct := range other.SubShares {
		existing, ok := s.SubShares[key]
		if !ok {
			s.SubShares[key] = append([]byte(nil), ct...)
			changed = true
			continue
		}
		if !bytes.Equal(existing, ct) {
			// A participant published two different ciphertexts for
			// the same edge. Keep the lexicographically smaller one so
			// replicas converge, and flag the sender.
			if bytes.Compare(ct, existing) < 0 {
				s.SubShares[key] = append([]byte(nil), ct...)
				changed = true
			}
			if _, flagged := s.Faults[key.From]; !flagged {
				s.Faults[key.From] = "conflicting sub-share"
				changed = true
			}
		}
	}

	for id := range other.Distributed {
		if !s.Distributed[id] {
			s.Distributed[id] = true
			changed = true
		}
	}
	for id := range other.ShareReady {
		if !s.ShareReady[id] {
			s.ShareReady[id] = true
			changed = true
		}
	}
	changed = mergeSignerSet(&s.SignerSet, other.SignerSet) || changed
	changed = mergeByteMap(s.PublicShares, other.PublicShares, s.Faults, "conflicting public share") || changed
	changed = mergeVerificationMap(s.NonceCommitments, other.NonceCommitments, s.Faults, "conflicting nonce commitment") || changed
	changed = mergeVerificationMap(s.VerificationShares, other.VerificationShares, s.Faults, "conflicting verification share") || changed
	s.TestSignature, changed = mergeWriteOnce(s.TestSignature, other.TestSignature, changed)
	changed = mergeBool(&s.Committed, other.Committed) || changed
	if other.NewEpoch > s.NewEpoch {
		s.NewEpoch = other.NewEpoch
		changed = true
	}
	changed = mergeBool(&s.Aborted, other.Aborted) || changed
	if s.AbortReason == "" && other.AbortReason != "" {
		s.AbortReason = other.AbortReason
		changed = true
	}
	changed = mergeFaults(s.Faults, other.Faults) || changed
	return changed
}

// Copy returns a deep copy usable as an immutable snapshot.
func (s *ResharingState) Copy() *ResharingState {
	out := NewResharingState(s.ProposalBytes, s.OldParticipants, s.NewParticipants,
		s.OldThreshold, s.NewThreshold, s.Reason, s.GroupPublicKey, s.CreatedAt, s.Deadline)
	for key, ct := range s.SubShares {
		out.SubShares[key] = append([]byte(nil), ct...)
	}
	for id := range s.Distributed {
		out.Distributed[id] = true
	}
	for id := range s.ShareReady {
		out.ShareReady[id] = true
	}
	out.SignerSet = s.SignerSet.Copy()
	copyByteMap(out.PublicShares, s.PublicShares)
	for key, value := range s.NonceCommitments {
		out.NonceCommitments[key] = append([]byte(nil), value...)
	}
	for key, value := range s.VerificationShares {
		out.VerificationShares[key] = append([]byte(nil), value...)
	}
	out.TestSignature = append([]byte(nil), s.TestSignature...)
	out.Committed = s.Committed
	out.NewEpoch = s.NewEpoch
	out.Aborted = s.Aborted
	out.AbortReason = s.AbortReason
	for id, reason := range s.Faults {
		out.Faults[id] = reason
	}
	return out
}

func mergeSessionAttrs(context *string, otherContext string, threshold *int, otherThreshold int,
	participants *party.IDSlice, otherParticipants party.IDSlice, createdAt *int64, otherCreatedAt int64,
	deadline *int64, otherDeadline int64) bool {
	changed := false
	if *context == "" && otherContext != "" {
		*context = otherContext
		changed = true
	}
	if *threshold == 0 && otherThreshold != 0 {
		*threshold = otherThreshold
		changed = true
	}
	if len(*participants) == 0 && len(otherParticipants) > 0 {
		*participants = otherParticipants.Copy()
		changed = true
	}
	if *createdAt == 0 && otherCreatedAt != 0 {
		*createdAt = otherCreatedAt
		changed = true
	}
	if *deadline == 0 && otherDeadline != 0 {
		*deadline = otherDeadline
		changed = true
	}
	return changed
}

// mergeByteMap takes the union of two participant-keyed byte maps. A key
// present on both sides with different values converges to the
// lexicographically smaller value and flags the participant.
func mergeByteMap(dst, src map[party.ID][]byte, faults map[party.ID]string, faultReason string) bool {
	changed := false
	for id, value := range src {
		existing, ok := dst[id]
		if !ok {
			dst[id] = append([]byte(nil), value...)
			changed = true
			continue
		}
		if !bytes.Equal(existing, value) {
			if bytes.Compare(value, existing) < 0 {
				dst[id] = append([]byte(nil), value...)
				changed = true
			}
			if _, flagged := faults[id]; !flagged {
				faults[id] = faultReason
				changed = true
			}
		}
	}
	return changed
}

// mergeVerificationMap takes the union of two verification-round maps.
// A key present on both sides with different values converges to the
// lexicographically smaller value and flags the signer.
func mergeVerificationMap(dst, src map[VerificationKey][]byte, faults map[party.ID]string, faultReason string) bool {
	changed := false
	for key, value := range src {
		existing, ok := dst[key]
		if !ok {
			dst[key] = append([]byte(nil), value...)
			changed = true
			continue
		}
		if !bytes.Equal(existing, value) {
			if bytes.Compare(value, existing) < 0 {
				dst[key] = append([]byte(nil), value...)
				changed = true
			}
			if _, flagged := faults[key.Signer]; !flagged {
				faults[key.Signer] = faultReason
				changed = true
			}
		}
	}
	return changed
}

// mergeWriteOnce converges a write-once field. Identical writes merge
// silently; divergent writes converge to the lexicographically smaller
// value so replicas agree. The changed flag is threaded through so
// callers can chain several fields.
func mergeWriteOnce(a, b []byte, changed bool) ([]byte, bool) {
	if len(b) == 0 {
		return a, changed
	}
	if len(a) == 0 {
		return append([]byte(nil), b...), true
	}
	if bytes.Compare(b, a) < 0 {
		return append([]byte(nil), b...), true
	}
	return a, changed
}

// mergeSignerSet converges the write-once signer set. Divergent
// proposals converge to the one with the smaller canonical encoding.
func mergeSignerSet(dst *party.IDSlice, src party.IDSlice) bool {
	if len(src) == 0 {
		return false
	}
	if len(*dst) == 0 {
		*dst = src.Copy()
		return true
	}
	a := strings.Join(idJoin(*dst), "\x00")
	b := strings.Join(idJoin(src), "\x00")
	if b < a {
		*dst = src.Copy()
		return true
	}
	return false
}

func idJoin(ids party.IDSlice) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func mergeBool(dst *bool, src bool) bool {
	if src && !*dst {
		*dst = true
		return true
	}
	return false
}

func mergeFaults(dst, src map[party.ID]string) bool {
	changed := false
	for id, reason := range src {
		if _, ok := dst[id]; !ok {
			dst[id] = reason
			changed = true
		}
	}
	return changed
}

func copyByteMap(dst, src map[party.ID][]byte) {
	for id, value := range src {
		dst[id] = append([]byte(nil), value...)
	}
}
