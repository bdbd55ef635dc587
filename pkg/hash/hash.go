// Package hash provides domain-separated BLAKE3 hashing for the
// coordination protocols: commitment binding, seed derivation, and
// identity key expansion.
package hash

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// Domain separation tags. Changing any of these changes every derived
// value, so they are part of the protocol definition.
const (
	domainCommitment  = "aura/threshold/commitment/v1"
	domainContextSeed = "aura/threshold/dkd-seed/v1"
	domainFingerprint = "aura/threshold/seed-fingerprint/v1"
	domainScalar      = "aura/threshold/context-scalar/v1"
	domainExpand      = "aura/threshold/identity-expand/v1"
	domainChallenge   = "aura/threshold/schnorr-challenge/v1"
	domainNonce       = "aura/threshold/schnorr-nonce/v1"
	domainSignerSet   = "aura/threshold/signer-set/v1"
)

// Size is the output size of all hashes in this package.
const Size = 32

// Commitment binds a group-element encoding to a 32-byte hash.
func Commitment(value []byte) [Size]byte {
	return keyed(domainCommitment, value)
}

// Seed hashes the canonical aggregation point into the derived seed.
func Seed(aggregated []byte, context string) [Size]byte {
	h := newHasher(domainContextSeed)
	writeLengthPrefixed(h, aggregated)
	writeLengthPrefixed(h, []byte(context))
	return sum(h)
}

// Fingerprint derives the publishable fingerprint of a seed. The
// fingerprint can be recorded on the ledger without exposing the seed.
func Fingerprint(seed []byte) [Size]byte {
	return keyed(domainFingerprint, seed)
}

// ContextScalarInput hashes a participant's own secret share together with
// the context identifier; the result is reduced into the per-context
// scalar h_i. 64 bytes keeps the reduction uniform.
func ContextScalarInput(share []byte, context string) [64]byte {
	h := newHasher(domainScalar)
	writeLengthPrefixed(h, share)
	writeLengthPrefixed(h, []byte(context))
	var out [64]byte
	_, _ = h.Digest().Read(out[:])
	return out
}

// Challenge hashes a signing nonce point, a public key, and a message
// into the Schnorr challenge. 64 bytes keeps the reduction uniform.
func Challenge(noncePoint, publicKey, message []byte) [64]byte {
	h := newHasher(domainChallenge)
	writeLengthPrefixed(h, noncePoint)
	writeLengthPrefixed(h, publicKey)
	writeLengthPrefixed(h, message)
	var out [64]byte
	_, _ = h.Digest().Read(out[:])
	return out
}

// NonceInput derives a deterministic signing nonce from secret key
// material and the message. Rederiving the same nonce for the same
// (secret, message) pair is safe; reusing it across messages is not,
// which the message binding prevents.
func NonceInput(secret, message []byte) [64]byte {
	h := newHasher(domainNonce)
	writeLengthPrefixed(h, secret)
	writeLengthPrefixed(h, message)
	var out [64]byte
	_, _ = h.Digest().Read(out[:])
	return out
}

// SignerSet binds an ordered cosigner set to a 32-byte digest. Each
// member is length-prefixed, so distinct sets never collide.
func SignerSet(members []string) [Size]byte {
	h := newHasher(domainSignerSet)
	for _, id := range members {
		writeLengthPrefixed(h, []byte(id))
	}
	return sum(h)
}

// ExpandIdentity expands a seed and context into signing-key material.
func ExpandIdentity(seed []byte, context string) [Size]byte {
	h := newHasher(domainExpand)
	writeLengthPrefixed(h, seed)
	writeLengthPrefixed(h, []byte(context))
	return sum(h)
}

func newHasher(domain string) *blake3.Hasher {
	h := blake3.New()
	writeLengthPrefixed(h, []byte(domain))
	return h
}

func keyed(domain string, data []byte) [Size]byte {
	h := newHasher(domain)
	writeLengthPrefixed(h, data)
	return sum(h)
}

func writeLengthPrefixed(h *blake3.Hasher, b []byte) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}

func sum(h *blake3.Hasher) [Size]byte {
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}
