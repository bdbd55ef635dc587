package sigchain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/math/polynomial"
)

var (
	// ErrMissingCommitment is returned when a partial signature is
	// produced or combined without every cosigner's nonce commitment.
	ErrMissingCommitment = errors.New("sigchain: missing nonce commitment")
	// ErrMissingPartial is returned when Combine lacks a cosigner's
	// response.
	ErrMissingPartial = errors.New("sigchain: missing partial signature")
	// ErrThresholdNotMet is returned when fewer cosigners participate
	// than the sharing requires.
	ErrThresholdNotMet = errors.New("sigchain: not enough cosigners")
)

// Cosigner holds one party's share of the group secret for a threshold
// signing run. The signer set is fixed up front; every cosigner derives
// the same challenge from the union of nonce commitments.
type Cosigner struct {
	index  int
	secret *curve.Scalar
}

// NewCosigner wraps a Shamir share for signing. index is the share's
// evaluation point.
func NewCosigner(index int, secret *curve.Scalar) *Cosigner {
	return &Cosigner{index: index, secret: curve.NewScalar().Set(secret)}
}

// Index returns the cosigner's share index.
func (c *Cosigner) Index() int { return c.index }

// PublicShare returns the public image of the cosigner's share.
func (c *Cosigner) PublicShare() *curve.Point {
	return c.secret.ActOnBase()
}

// NonceCommitment derives the cosigner's deterministic nonce for the
// message and returns its public commitment R_i.
func (c *Cosigner) NonceCommitment(message []byte) (*curve.Point, error) {
	nonce, err := c.nonce(message)
	if err != nil {
		return nil, err
	}
	bigR := nonce.ActOnBase()
	nonce.Zeroize()
	return bigR, nil
}

// PartialSign produces the cosigner's response once all nonce
// commitments for the signer set are known. commitments maps share
// index to R_i and must include the cosigner's own.
func (c *Cosigner) PartialSign(message []byte, groupKey *curve.Point, commitments map[int]*curve.Point) (*curve.Scalar, error) {
	if _, ok := commitments[c.index]; !ok {
		return nil, fmt.Errorf("%w: own index %d", ErrMissingCommitment, c.index)
	}
	bigR := aggregateCommitments(commitments)
	coeffs, err := polynomial.Lagrange(sortedIndices(commitments), 0)
	if err != nil {
		return nil, err
	}
	ch := challengeScalar(bigR, groupKey, message)
	nonce, err := c.nonce(message)
	if err != nil {
		return nil, err
	}
	// s_i = nonce_i + challenge * lambda_i * x_i
	s := curve.NewScalar().Multiply(ch, coeffs[c.index])
	s = s.Multiply(s, c.secret)
	s = s.Add(nonce, s)
	nonce.Zeroize()
	return s, nil
}

// Zeroize destroys the cosigner's copy of the share.
func (c *Cosigner) Zeroize() {
	c.secret.Zeroize()
}

func (c *Cosigner) nonce(message []byte) (*curve.Scalar, error) {
	return deterministicNonce(c.secret, message)
}

// Combine assembles a full signature from every cosigner's response
// and verifies it against the group key before returning it.
func Combine(message []byte, groupKey *curve.Point, commitments map[int]*curve.Point, partials map[int]*curve.Scalar) (*Signature, error) {
	if len(partials) == 0 {
		return nil, ErrThresholdNotMet
	}
	for index := range commitments {
		if _, ok := partials[index]; !ok {
			return nil, fmt.Errorf("%w: index %d", ErrMissingPartial, index)
		}
	}
	for index := range partials {
		if _, ok := commitments[index]; !ok {
			return nil, fmt.Errorf("%w: index %d", ErrMissingCommitment, index)
		}
	}
	bigR := aggregateCommitments(commitments)
	s := curve.NewScalar()
	for _, partial := range partials {
		s = s.Add(s, partial)
	}
	sig := &Signature{R: bigR, S: s}
	if !sig.Verify(groupKey, message) {
		return nil, fmt.Errorf("sigchain: combined signature does not verify")
	}
	return sig, nil
}

// VerifyPartial checks one cosigner's response against its nonce
// commitment and public share. A failing partial identifies the
// cosigner as the faulty contributor to a bad combined signature.
func VerifyPartial(index int, partial *curve.Scalar, publicShare *curve.Point,
	message []byte, groupKey *curve.Point, commitments map[int]*curve.Point) bool {
	own, ok := commitments[index]
	if !ok {
		return false
	}
	coeffs, err := polynomial.Lagrange(sortedIndices(commitments), 0)
	if err != nil {
		return false
	}
	bigR := aggregateCommitments(commitments)
	ch := challengeScalar(bigR, groupKey, message)
	// s_i*G == R_i + challenge * lambda_i * A_i
	factor := curve.NewScalar().Multiply(ch, coeffs[index])
	rhs := curve.NewIdentityPoint().ScalarMult(factor, publicShare)
	rhs = rhs.Add(own, rhs)
	return partial.ActOnBase().Equal(rhs)
}

// PreservesPublicKey reports whether the public images of a signer
// set's shares interpolate back to the group key. A resharing that
// breaks this equation has corrupted the secret.
func PreservesPublicKey(groupKey *curve.Point, publicShares map[int]*curve.Point) bool {
	indices := make([]int, 0, len(publicShares))
	for index := range publicShares {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	coeffs, err := polynomial.Lagrange(indices, 0)
	if err != nil {
		return false
	}
	sum := curve.NewIdentityPoint()
	for _, index := range indices {
		term := curve.NewIdentityPoint().ScalarMult(coeffs[index], publicShares[index])
		sum = sum.Add(sum, term)
	}
	return sum.Equal(groupKey)
}

func aggregateCommitments(commitments map[int]*curve.Point) *curve.Point {
	sum := curve.NewIdentityPoint()
	for _, bigR := range commitments {
		sum = sum.Add(sum, bigR)
	}
	return sum
}

func sortedIndices(commitments map[int]*curve.Point) []int {
	indices := make([]int, 0, len(commitments))
	for index := range commitments {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}
