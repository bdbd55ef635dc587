package sigchain

import (
	"errors"
	"fmt"

	"github.com/hxrts/aura-sub005/pkg/hash"
	"github.com/hxrts/aura-sub005/pkg/math/curve"
)

// SignatureSize is the encoded size of a Schnorr signature.
const SignatureSize = 2 * curve.PointSize

// ErrInvalidSignature is returned when signature bytes do not decode.
var ErrInvalidSignature = errors.New("sigchain: invalid signature encoding")

// Signature is a Schnorr signature (R, s) satisfying
// s*G == R + challenge*P for public key P.
type Signature struct {
	R *curve.Point
	S *curve.Scalar
}

// Bytes encodes the signature as R || s.
func (sig *Signature) Bytes() []byte {
	out := make([]byte, 0, SignatureSize)
	out = append(out, sig.R.Bytes()...)
	out = append(out, sig.S.Bytes()...)
	return out
}

// ParseSignature decodes an R || s encoding.
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != SignatureSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSignature, len(b))
	}
	r, err := curve.PointFromBytes(b[:curve.PointSize])
	if err != nil {
		return nil, fmt.Errorf("%w: nonce point: %v", ErrInvalidSignature, err)
	}
	s, err := curve.ScalarFromBytes(b[curve.PointSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: response scalar: %v", ErrInvalidSignature, err)
	}
	return &Signature{R: r, S: s}, nil
}

// Verify reports whether the signature is valid for the message under
// the given public key.
func (sig *Signature) Verify(publicKey *curve.Point, message []byte) bool {
	c := challengeScalar(sig.R, publicKey, message)
	lhs := sig.S.ActOnBase()
	rhs := curve.NewIdentityPoint().ScalarMult(c, publicKey)
	rhs = rhs.Add(sig.R, rhs)
	return lhs.Equal(rhs)
}

// Sign produces a plain single-key Schnorr signature with a
// deterministic nonce. Used by tests and as the reference the
// threshold path must agree with.
func Sign(secret *curve.Scalar, message []byte) (*Signature, error) {
	nonce, err := deterministicNonce(secret, message)
	if err != nil {
		return nil, err
	}
	bigR := nonce.ActOnBase()
	c := challengeScalar(bigR, secret.ActOnBase(), message)
	s := curve.NewScalar().Multiply(c, secret)
	s = s.Add(nonce, s)
	nonce.Zeroize()
	return &Signature{R: bigR, S: s}, nil
}

func challengeScalar(bigR, publicKey *curve.Point, message []byte) *curve.Scalar {
	wide := hash.Challenge(bigR.Bytes(), publicKey.Bytes(), message)
	c, err := curve.ScalarFromUniformBytes(wide[:])
	if err != nil {
		// 64 uniform bytes always reduce.
		panic(fmt.Sprintf("sigchain: challenge reduction: %v", err))
	}
	return c
}

func deterministicNonce(secret *curve.Scalar, message []byte) (*curve.Scalar, error) {
	wide := hash.NonceInput(secret.Bytes(), message)
	return curve.ScalarFromUniformBytes(wide[:])
}
