package hash_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hxrts/aura-sub005/pkg/hash"
)

func TestCommitmentIsDeterministic(t *testing.T) {
	a := hash.Commitment([]byte("reveal"))
	b := hash.Commitment([]byte("reveal"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, hash.Commitment([]byte("other")))
}

func TestDomainsAreSeparated(t *testing.T) {
	// The same input under different derivations must never collide.
	input := []byte("same-input-everywhere")
	outputs := [][hash.Size]byte{
		hash.Commitment(input),
		hash.Seed(input, "same-input-everywhere"),
		hash.Fingerprint(input),
		hash.ExpandIdentity(input, "same-input-everywhere"),
	}
	for i := range outputs {
		for j := i + 1; j < len(outputs); j++ {
			assert.NotEqual(t, outputs[i], outputs[j], "%d vs %d", i, j)
		}
	}
}

func TestSeedBindsContext(t *testing.T) {
	agg := []byte("aggregated-point")
	assert.NotEqual(t, hash.Seed(agg, "backup/v1"), hash.Seed(agg, "signing/v1"))
}

func TestContextScalarInputLengthPrefixed(t *testing.T) {
	// ("ab", "c") and ("a", "bc") must not collide.
	a := hash.ContextScalarInput([]byte("ab"), "c")
	b := hash.ContextScalarInput([]byte("a"), "bc")
	assert.NotEqual(t, a, b)
}

func TestChallengeBindsAllInputs(t *testing.T) {
	base := hash.Challenge([]byte("R"), []byte("P"), []byte("m"))
	assert.Equal(t, base, hash.Challenge([]byte("R"), []byte("P"), []byte("m")))
	assert.NotEqual(t, base, hash.Challenge([]byte("X"), []byte("P"), []byte("m")))
	assert.NotEqual(t, base, hash.Challenge([]byte("R"), []byte("X"), []byte("m")))
	assert.NotEqual(t, base, hash.Challenge([]byte("R"), []byte("P"), []byte("x")))
}

func TestNonceInputBindsSecretAndMessage(t *testing.T) {
	base := hash.NonceInput([]byte("secret"), []byte("m"))
	assert.Equal(t, base, hash.NonceInput([]byte("secret"), []byte("m")))
	assert.NotEqual(t, base, hash.NonceInput([]byte("other"), []byte("m")))
	assert.NotEqual(t, base, hash.NonceInput([]byte("secret"), []byte("x")))
}

func TestFingerprintDoesNotRevealSeed(t *testing.T) {
	seed := []byte("super-secret-seed")
	fp := hash.Fingerprint(seed)
	assert.NotContains(t, string(fp[:]), "secret")
	assert.Len(t, fp, hash.Size)
}
