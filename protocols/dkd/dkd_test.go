package dkd

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub005/pkg/hash"
	"github.com/hxrts/aura-sub005/pkg/ledger"
	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/math/polynomial"
	"github.com/hxrts/aura-sub005/pkg/party"
)

func testShares(t *testing.T, threshold int, ids ...party.ID) map[party.ID]*curve.Scalar {
	t.Helper()
	secret, err := curve.Sample(rand.Reader)
	require.NoError(t, err)
	poly, err := polynomial.NewPolynomial(threshold-1, secret, rand.Reader)
	require.NoError(t, err)
	set := party.NewIDSlice(ids)
	shares := make(map[party.ID]*curve.Scalar, len(set))
	for _, id := range set {
		shares[id] = poly.EvaluateIndex(set.Index(id))
	}
	return shares
}

func TestContributeDeterministic(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob", "carol")

	a1, err := Contribute(shares["alice"], "app.chat")
	require.NoError(t, err)
	a2, err := Contribute(shares["alice"], "app.chat")
	require.NoError(t, err)
	assert.Equal(t, a1.Point.Bytes(), a2.Point.Bytes())
	assert.Equal(t, a1.Commitment, a2.Commitment)
}

func TestContributeContextIsolation(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob")

	chat, err := Contribute(shares["alice"], "app.chat")
	require.NoError(t, err)
	mail, err := Contribute(shares["alice"], "app.mail")
	require.NoError(t, err)
	assert.NotEqual(t, chat.Point.Bytes(), mail.Point.Bytes())
}

func sessionWithReveals(t *testing.T, threshold int, context string, shares map[party.ID]*curve.Scalar, reveal []party.ID) *ledger.DKDState {
	t.Helper()
	ids := make([]party.ID, 0, len(shares))
	for id := range shares {
		ids = append(ids, id)
	}
	s := ledger.NewDKDState(context, party.NewIDSlice(ids), threshold, 0, 0)
	for _, id := range reveal {
		c, err := Contribute(shares[id], context)
		require.NoError(t, err)
		s.Commitments[id] = c.Commitment[:]
		s.Reveals[id] = c.Point.Bytes()
	}
	s.CommitmentQuorum = len(s.Commitments) >= threshold
	s.RevealQuorum = len(s.Reveals) >= threshold
	return s
}

func TestAggregateCanonicalSelection(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob", "carol")

	// Aggregation picks the first threshold reveals by ascending ID, so
	// carol's extra reveal must not change the result.
	two := sessionWithReveals(t, 2, "app.chat", shares, []party.ID{"alice", "bob"})
	three := sessionWithReveals(t, 2, "app.chat", shares, []party.ID{"alice", "bob", "carol"})

	r2, err := Aggregate(two)
	require.NoError(t, err)
	r3, err := Aggregate(three)
	require.NoError(t, err)

	assert.Equal(t, r2.Seed, r3.Seed)
	assert.Equal(t, r2.Aggregated, r3.Aggregated)
	assert.Equal(t, party.NewIDSlice([]party.ID{"alice", "bob"}), r3.Selected)
}

func TestAggregateBelowThreshold(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob", "carol")
	one := sessionWithReveals(t, 2, "app.chat", shares, []party.ID{"alice"})
	_, err := Aggregate(one)
	assert.ErrorIs(t, err, ErrInsufficientParticipants)
}

func TestVerifyRevealsFlagsByzantine(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob", "carol")
	s := sessionWithReveals(t, 2, "app.chat", shares, []party.ID{"alice", "bob", "carol"})

	// Bob swaps in a different point after committing.
	other, err := curve.Sample(rand.Reader)
	require.NoError(t, err)
	s.Reveals["bob"] = other.ActOnBase().Bytes()

	verified, faults := VerifyReveals(s)
	assert.Len(t, verified, 2)
	assert.Contains(t, faults, party.ID("bob"))
	assert.NotContains(t, faults, party.ID("alice"))

	// Aggregation proceeds on the honest quorum and never includes bob.
	result, err := Aggregate(s)
	require.NoError(t, err)
	assert.Equal(t, party.NewIDSlice([]party.ID{"alice", "carol"}), result.Selected)
}

func TestVerifyRevealsRejectsMalformedPoint(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob")
	s := sessionWithReveals(t, 2, "app.chat", shares, []party.ID{"alice"})

	garbage := []byte("definitely not a point, wrong size")
	commitment := hash.Commitment(garbage)
	s.Commitments["bob"] = commitment[:]
	s.Reveals["bob"] = garbage

	_, faults := VerifyReveals(s)
	assert.Equal(t, "reveal is not a valid point", faults["bob"])
}

func TestVerifyRevealsRequiresCommitment(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob")
	s := sessionWithReveals(t, 2, "app.chat", shares, []party.ID{"alice"})

	c, err := Contribute(shares["bob"], "app.chat")
	require.NoError(t, err)
	s.Reveals["bob"] = c.Point.Bytes()

	_, faults := VerifyReveals(s)
	assert.Equal(t, "reveal without commitment", faults["bob"])
}

func TestSeedMatchesAggregatedFact(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob")
	s := sessionWithReveals(t, 2, "app.chat", shares, []party.ID{"alice", "bob"})

	result, err := Aggregate(s)
	require.NoError(t, err)
	seed, err := SeedFromAggregated(result.Aggregated, "app.chat")
	require.NoError(t, err)
	assert.Equal(t, result.Seed, seed)

	_, err = SeedFromAggregated([]byte("bad fact"), "app.chat")
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestExpandIdentityDeterministic(t *testing.T) {
	var seed [hash.Size]byte
	copy(seed[:], []byte("0123456789abcdef0123456789abcdef"))

	a := ExpandIdentity(seed, "app.chat")
	b := ExpandIdentity(seed, "app.chat")
	assert.Equal(t, a.PublicKey, b.PublicKey)
	assert.Equal(t, a.SeedFingerprint, b.SeedFingerprint)

	c := ExpandIdentity(seed, "app.mail")
	assert.NotEqual(t, a.PublicKey, c.PublicKey)
}

func TestPhaseOf(t *testing.T) {
	shares := testShares(t, 2, "alice", "bob")
	s := ledger.NewDKDState("app.chat", party.NewIDSlice([]party.ID{"alice", "bob"}), 2, 0, 0)
	assert.Equal(t, PhaseInitiated, PhaseOf(s))

	c, err := Contribute(shares["alice"], "app.chat")
	require.NoError(t, err)
	s.Commitments["alice"] = c.Commitment[:]
	assert.Equal(t, PhaseCommitment, PhaseOf(s))

	s.CommitmentQuorum = true
	assert.Equal(t, PhaseReveal, PhaseOf(s))

	s.RevealQuorum = true
	assert.Equal(t, PhaseAggregation, PhaseOf(s))

	s.Aggregated = []byte{1}
	assert.Equal(t, PhaseCompleted, PhaseOf(s))

	s.Aborted = true
	assert.Equal(t, PhaseAborted, PhaseOf(s))
}
