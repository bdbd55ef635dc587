package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/party"
)

var testParties = party.NewIDSlice([]party.ID{"alice", "bob", "carol"})

func dkdDelta(mutate func(*ledger.DKDState)) *ledger.DKDState {
	s := ledger.NewDKDState("backup/v1", testParties, 2, 100, 200)
	if mutate != nil {
		mutate(s)
	}
	return s
}

func TestDKDMergeCommutative(t *testing.T) {
	a := dkdDelta(func(s *ledger.DKDState) {
		s.Commitments["alice"] = []byte{1}
		s.CommitmentQuorum = true
	})
	b := dkdDelta(func(s *ledger.DKDState) {
		s.Commitments["bob"] = []byte{2}
		s.Reveals["bob"] = []byte{3}
	})

	ab := a.Copy()
	ab.Merge(b)
	ba := b.Copy()
	ba.Merge(a)
	assert.Equal(t, ab, ba)
}

func TestDKDMergeAssociative(t *testing.T) {
	a := dkdDelta(func(s *ledger.DKDState) { s.Commitments["alice"] = []byte{1} })
	b := dkdDelta(func(s *ledger.DKDState) { s.Commitments["bob"] = []byte{2} })
	c := dkdDelta(func(s *ledger.DKDState) {
		s.Reveals["carol"] = []byte{3}
		s.Aggregated = []byte{9}
	})

	left := a.Copy()
	left.Merge(b)
	left.Merge(c)

	bc := b.Copy()
	bc.Merge(c)
	right := a.Copy()
	right.Merge(bc)

	assert.Equal(t, left, right)
}

func TestDKDMergeIdempotent(t *testing.T) {
	a := dkdDelta(func(s *ledger.DKDState) {
		s.Commitments["alice"] = []byte{1}
		s.Completed = true
	})
	merged := a.Copy()
	changed := merged.Merge(a)
	assert.False(t, changed)
	assert.Equal(t, a, merged)
}

func TestDKDMergeReportsChange(t *testing.T) {
	a := dkdDelta(nil)
	b := dkdDelta(func(s *ledger.DKDState) { s.Commitments["alice"] = []byte{1} })

	assert.True(t, a.Merge(b))
	assert.False(t, a.Merge(b))
}

func TestDKDMergeConflictingCommitmentFlagsEquivocator(t *testing.T) {
	a := dkdDelta(func(s *ledger.DKDState) { s.Commitments["alice"] = []byte{1} })
	b := dkdDelta(func(s *ledger.DKDState) { s.Commitments["alice"] = []byte{2} })

	a.Merge(b)
	assert.Contains(t, a.Faults, party.ID("alice"))
	// Deterministic pick: both merge orders keep the same value.
	c := dkdDelta(func(s *ledger.DKDState) { s.Commitments["alice"] = []byte{2} })
	d := dkdDelta(func(s *ledger.DKDState) { s.Commitments["alice"] = []byte{1} })
	c.Merge(d)
	assert.Equal(t, a.Commitments["alice"], c.Commitments["alice"])
}

func TestDKDFlagsAreMonotone(t *testing.T) {
	a := dkdDelta(func(s *ledger.DKDState) { s.CommitmentQuorum = true })
	b := dkdDelta(nil)
	a.Merge(b)
	assert.True(t, a.CommitmentQuorum)
}

func TestDKDAggregatedIsWriteOnce(t *testing.T) {
	a := dkdDelta(func(s *ledger.DKDState) { s.Aggregated = []byte{1, 1} })
	b := dkdDelta(func(s *ledger.DKDState) { s.Aggregated = []byte{2, 2} })

	ab := a.Copy()
	ab.Merge(b)
	ba := b.Copy()
	ba.Merge(a)
	// Conflicting write-once values converge to the same pick.
	assert.Equal(t, ab.Aggregated, ba.Aggregated)
}

func reshareDelta(mutate func(*ledger.ResharingState)) *ledger.ResharingState {
	oldP := party.NewIDSlice([]party.ID{"alice", "bob"})
	newP := party.NewIDSlice([]party.ID{"alice", "bob", "carol"})
	s := ledger.NewResharingState([]byte("proposal"), oldP, newP, 2, 2, "add-device", []byte("pk"), 100, 200)
	if mutate != nil {
		mutate(s)
	}
	return s
}

func TestResharingMergeCommutative(t *testing.T) {
	a := reshareDelta(func(s *ledger.ResharingState) {
		s.SubShares[ledger.SubShareKey{From: "alice", To: "bob"}] = []byte{1}
		s.Distributed["alice"] = true
	})
	b := reshareDelta(func(s *ledger.ResharingState) {
		s.ShareReady["carol"] = true
		s.PublicShares["carol"] = []byte{4}
	})

	ab := a.Copy()
	ab.Merge(b)
	ba := b.Copy()
	ba.Merge(a)
	assert.Equal(t, ab, ba)
}

func TestResharingSignerSetConverges(t *testing.T) {
	a := reshareDelta(func(s *ledger.ResharingState) {
		s.SignerSet = party.NewIDSlice([]party.ID{"alice", "bob"})
	})
	b := reshareDelta(func(s *ledger.ResharingState) {
		s.SignerSet = party.NewIDSlice([]party.ID{"alice", "carol"})
	})

	ab := a.Copy()
	ab.Merge(b)
	ba := b.Copy()
	ba.Merge(a)
	require.Equal(t, ab.SignerSet, ba.SignerSet)
	// One of the proposals wins outright; no splicing.
	assert.Equal(t, party.NewIDSlice([]party.ID{"alice", "bob"}), ab.SignerSet)
}

func TestResharingSignerSetIsWriteOnce(t *testing.T) {
	a := reshareDelta(func(s *ledger.ResharingState) {
		s.SignerSet = party.NewIDSlice([]party.ID{"alice", "bob"})
	})
	again := reshareDelta(func(s *ledger.ResharingState) {
		s.SignerSet = party.NewIDSlice([]party.ID{"alice", "bob"})
	})
	assert.False(t, a.Merge(again))
}

func TestVerificationRoundIsKeyedPerSignerSet(t *testing.T) {
	// The same cosigner responding under two different pinned sets is
	// two distinct facts, not an equivocation.
	a := reshareDelta(func(s *ledger.ResharingState) {
		s.VerificationShares[ledger.VerificationKey{Set: "d1", Signer: "bob"}] = []byte{1}
	})
	b := reshareDelta(func(s *ledger.ResharingState) {
		s.VerificationShares[ledger.VerificationKey{Set: "d2", Signer: "bob"}] = []byte{2}
	})
	assert.True(t, a.Merge(b))
	assert.Len(t, a.VerificationShares, 2)
	assert.Empty(t, a.Faults)
}

func TestVerificationRoundConflictFlagsSigner(t *testing.T) {
	a := reshareDelta(func(s *ledger.ResharingState) {
		s.NonceCommitments[ledger.VerificationKey{Set: "d1", Signer: "bob"}] = []byte{2}
	})
	b := reshareDelta(func(s *ledger.ResharingState) {
		s.NonceCommitments[ledger.VerificationKey{Set: "d1", Signer: "bob"}] = []byte{1}
	})
	a.Merge(b)
	assert.Equal(t, []byte{1}, a.NonceCommitments[ledger.VerificationKey{Set: "d1", Signer: "bob"}])
	assert.Equal(t, "conflicting nonce commitment", a.Faults["bob"])
}

func TestResharingAbortIsSticky(t *testing.T) {
	a := reshareDelta(func(s *ledger.ResharingState) {
		s.Aborted = true
		s.AbortReason = "verification-failed"
		s.Faults["bob"] = "bad share"
	})
	b := reshareDelta(nil)
	b.Merge(a)
	assert.True(t, b.Aborted)
	assert.Equal(t, "verification-failed", b.AbortReason)
	assert.Contains(t, b.Faults, party.ID("bob"))
}

func TestResharingNewEpochMaxMerges(t *testing.T) {
	a := reshareDelta(func(s *ledger.ResharingState) { s.NewEpoch = 2 })
	b := reshareDelta(func(s *ledger.ResharingState) { s.NewEpoch = 3 })
	a.Merge(b)
	assert.Equal(t, uint64(3), a.NewEpoch)
	assert.False(t, a.Merge(b))
}

func TestCopyIsDeep(t *testing.T) {
	a := reshareDelta(func(s *ledger.ResharingState) {
		s.SubShares[ledger.SubShareKey{From: "alice", To: "carol"}] = []byte{7}
	})
	b := a.Copy()
	b.SubShares[ledger.SubShareKey{From: "alice", To: "carol"}][0] = 9
	b.Faults["alice"] = "tampered"
	assert.Equal(t, byte(7), a.SubShares[ledger.SubShareKey{From: "alice", To: "carol"}][0])
	assert.NotContains(t, a.Faults, party.ID("alice"))
}
