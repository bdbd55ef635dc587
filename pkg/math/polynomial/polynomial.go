// Package polynomial implements Shamir secret-sharing polynomials and
// Lagrange interpolation over the Ed25519 scalar field.
package polynomial

import (
	"errors"
	"io"

	"github.com/hxrts/aura-sub005/pkg/math/curve"
)

// Polynomial is a scalar polynomial f(x) = c0 + c1*x + ... + cd*x^d.
// The constant term c0 is the shared secret.
type Polynomial struct {
	coefficients []*curve.Scalar
}

// NewPolynomial returns a polynomial of the given degree whose constant
// term is secret and whose remaining coefficients are sampled from r.
func NewPolynomial(degree int, secret *curve.Scalar, r io.Reader) (*Polynomial, error) {
	if degree < 0 {
		return nil, errors.New("polynomial: negative degree")
	}
	coefficients := make([]*curve.Scalar, degree+1)
	coefficients[0] = curve.NewScalar().Set(secret)
	for i := 1; i <= degree; i++ {
		c, err := curve.Sample(r)
		if err != nil {
			return nil, err
		}
		coefficients[i] = c
	}
	return &Polynomial{coefficients: coefficients}, nil
}

// Evaluate computes f(x) by Horner's rule.
func (p *Polynomial) Evaluate(x *curve.Scalar) *curve.Scalar {
	out := curve.NewScalar()
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		out.Multiply(out, x)
		out.Add(out, p.coefficients[i])
	}
	return out
}

// EvaluateIndex computes f at the 1-based Shamir index i.
func (p *Polynomial) EvaluateIndex(i int) *curve.Scalar {
	return p.Evaluate(curve.ScalarFromIndex(i))
}

// Degree returns the polynomial degree.
func (p *Polynomial) Degree() int {
	return len(p.coefficients) - 1
}

// Zeroize overwrites every coefficient, destroying the secret constant term.
func (p *Polynomial) Zeroize() {
	for _, c := range p.coefficients {
		c.Zeroize()
	}
}
