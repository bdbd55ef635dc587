// Package curve wraps the Ed25519 prime-order group for protocol use.
//
// Scalars are elements of the Ed25519 scalar field, points are group
// elements. All comparisons are constant time. The protocols above this
// package never touch curve internals directly.
package curve

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"

	"filippo.io/edwards25519"
)

// ScalarSize is the encoded size of a scalar in bytes.
const ScalarSize = 32

// PointSize is the encoded size of a group element in bytes.
const PointSize = 32

// Scalar is an element of the Ed25519 scalar field.
type Scalar struct {
	s edwards25519.Scalar
}

// Point is an element of the Ed25519 group.
type Point struct {
	p edwards25519.Point
}

// NewScalar returns the zero scalar.
func NewScalar() *Scalar {
	return &Scalar{}
}

// Sample returns a uniformly random scalar read from r.
func Sample(r io.Reader) (*Scalar, error) {
	if r == nil {
		r = rand.Reader
	}
	var wide [64]byte
	if _, err := io.ReadFull(r, wide[:]); err != nil {
		return nil, err
	}
	out := NewScalar()
	if _, err := out.s.SetUniformBytes(wide[:]); err != nil {
		return nil, err
	}
	return out, nil
}

// ScalarFromUniformBytes reduces 64 uniform bytes into a scalar.
func ScalarFromUniformBytes(b []byte) (*Scalar, error) {
	out := NewScalar()
	if _, err := out.s.SetUniformBytes(b); err != nil {
		return nil, err
	}
	return out, nil
}

// ScalarFromBytes decodes a canonical 32-byte scalar encoding.
func ScalarFromBytes(b []byte) (*Scalar, error) {
	out := NewScalar()
	if _, err := out.s.SetCanonicalBytes(b); err != nil {
		return nil, errors.New("curve: non-canonical scalar encoding")
	}
	return out, nil
}

// ScalarFromIndex maps a 1-based Shamir index to a scalar.
func ScalarFromIndex(i int) *Scalar {
	var b [32]byte
	binary.LittleEndian.PutUint64(b[:8], uint64(i))
	out := NewScalar()
	// 8-byte little-endian values are always canonical.
	if _, err := out.s.SetCanonicalBytes(b[:]); err != nil {
		panic("curve: index encoding not canonical")
	}
	return out
}

// Bytes returns the canonical 32-byte encoding.
func (s *Scalar) Bytes() []byte {
	return s.s.Bytes()
}

// Add sets s = a + b and returns s.
func (s *Scalar) Add(a, b *Scalar) *Scalar {
	s.s.Add(&a.s, &b.s)
	return s
}

// Subtract sets s = a - b and returns s.
func (s *Scalar) Subtract(a, b *Scalar) *Scalar {
	s.s.Subtract(&a.s, &b.s)
	return s
}

// Multiply sets s = a * b and returns s.
func (s *Scalar) Multiply(a, b *Scalar) *Scalar {
	s.s.Multiply(&a.s, &b.s)
	return s
}

// Invert sets s = 1/a and returns s. a must be nonzero.
func (s *Scalar) Invert(a *Scalar) *Scalar {
	s.s.Invert(&a.s)
	return s
}

// Set copies a into s.
func (s *Scalar) Set(a *Scalar) *Scalar {
	s.s.Set(&a.s)
	return s
}

// Equal reports whether s == a in constant time.
func (s *Scalar) Equal(a *Scalar) bool {
	return s.s.Equal(&a.s) == 1
}

// IsZero reports whether s is the zero scalar.
func (s *Scalar) IsZero() bool {
	return s.s.Equal(edwards25519.NewScalar()) == 1
}

// Zeroize overwrites the scalar with zero.
func (s *Scalar) Zeroize() {
	zero := edwards25519.NewScalar()
	s.s.Set(zero)
}

// ActOnBase returns s * G.
func (s *Scalar) ActOnBase() *Point {
	out := &Point{}
	out.p.ScalarBaseMult(&s.s)
	return out
}

// NewIdentityPoint returns the group identity.
func NewIdentityPoint() *Point {
	out := &Point{}
	out.p.Set(edwards25519.NewIdentityPoint())
	return out
}

// PointFromBytes decodes a 32-byte group element encoding.
func PointFromBytes(b []byte) (*Point, error) {
	out := &Point{}
	if _, err := out.p.SetBytes(b); err != nil {
		return nil, errors.New("curve: invalid point encoding")
	}
	return out, nil
}

// Bytes returns the canonical 32-byte encoding.
func (p *Point) Bytes() []byte {
	return p.p.Bytes()
}

// Add sets p = a + b and returns p.
func (p *Point) Add(a, b *Point) *Point {
	p.p.Add(&a.p, &b.p)
	return p
}

// ScalarMult sets p = s * a and returns p.
func (p *Point) ScalarMult(s *Scalar, a *Point) *Point {
	p.p.ScalarMult(&s.s, &a.p)
	return p
}

// ClearCofactor sets p = [8]a, mapping a into the prime-order subgroup.
func (p *Point) ClearCofactor(a *Point) *Point {
	p.p.MultByCofactor(&a.p)
	return p
}

// Equal reports whether p == a in constant time.
func (p *Point) Equal(a *Point) bool {
	return p.p.Equal(&a.p) == 1
}

// ConstantTimeEqualBytes compares two encodings without branching on content.
func ConstantTimeEqualBytes(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
