// Package sealed provides end-to-end asymmetric encryption of small
// payloads for a single named recipient. Sub-shares crossing the ledger
// or network during resharing are always sealed with this package;
// sender attribution comes from the signed ledger fact carrying the
// ciphertext, not from the encryption itself.
package sealed

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/box"
)

// KeySize is the size of public and private keys.
const KeySize = 32

// MaxPayload bounds sealed payloads; sub-shares are 32-byte scalars.
const MaxPayload = 64

var (
	// ErrPayloadTooLarge is returned when the plaintext exceeds MaxPayload.
	ErrPayloadTooLarge = errors.New("sealed: payload exceeds maximum size")
	// ErrDecryptionFailed is returned when a ciphertext does not open
	// under the recipient key. Treated as a Byzantine signal upstream.
	ErrDecryptionFailed = errors.New("sealed: decryption failed")
)

// KeyPair is a recipient encryption key pair.
type KeyPair struct {
	Public  [KeySize]byte
	private [KeySize]byte
}

// GenerateKeyPair creates a recipient key pair from r.
func GenerateKeyPair(r io.Reader) (*KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := box.GenerateKey(r)
	if err != nil {
		return nil, err
	}
	kp := &KeyPair{Public: *pub, private: *priv}
	return kp, nil
}

// Seal encrypts payload for the recipient public key.
func Seal(payload []byte, recipient [KeySize]byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	pub := recipient
	return box.SealAnonymous(nil, payload, &pub, rand.Reader)
}

// Open decrypts a ciphertext sealed for kp.
func (kp *KeyPair) Open(ciphertext []byte) ([]byte, error) {
	out, ok := box.OpenAnonymous(nil, ciphertext, &kp.Public, &kp.private)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return out, nil
}

// Zeroize overwrites the private key.
func (kp *KeyPair) Zeroize() {
	for i := range kp.private {
		kp.private[i] = 0
	}
}
