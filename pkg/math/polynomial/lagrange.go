package polynomial

import (
	"errors"

	"github.com/hxrts/aura-sub005/pkg/math/curve"
)

// Share is a single polynomial evaluation (index, f(index)).
type Share struct {
	Index int
	Value *curve.Scalar
}

// Lagrange returns the Lagrange basis coefficients at x = at for the given
// 1-based evaluation indices. Summing value_i * coeff[index_i] over the
// shares interpolates f(at).
func Lagrange(indices []int, at int) (map[int]*curve.Scalar, error) {
	if len(indices) == 0 {
		return nil, errors.New("polynomial: no interpolation indices")
	}
	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i <= 0 {
			return nil, errors.New("polynomial: interpolation index must be positive")
		}
		if _, ok := seen[i]; ok {
			return nil, errors.New("polynomial: duplicate interpolation index")
		}
		seen[i] = struct{}{}
	}

	target := curve.ScalarFromIndex(at)
	coeffs := make(map[int]*curve.Scalar, len(indices))
	for _, i := range indices {
		xi := curve.ScalarFromIndex(i)
		num := curve.ScalarFromIndex(1)
		den := curve.ScalarFromIndex(1)
		for _, j := range indices {
			if j == i {
				continue
			}
			xj := curve.ScalarFromIndex(j)
			// num *= (at - xj), den *= (xi - xj)
			d1 := curve.NewScalar().Subtract(target, xj)
			d2 := curve.NewScalar().Subtract(xi, xj)
			num.Multiply(num, d1)
			den.Multiply(den, d2)
		}
		den.Invert(den)
		coeffs[i] = num.Multiply(num, den)
	}
	return coeffs, nil
}

// InterpolateAt reconstructs f(at) from the given shares.
// At least degree+1 shares drawn from distinct indices are required for a
// correct result; the caller enforces the threshold.
func InterpolateAt(shares []Share, at int) (*curve.Scalar, error) {
	indices := make([]int, len(shares))
	for i, sh := range shares {
		if sh.Value == nil {
			return nil, errors.New("polynomial: nil share value")
		}
		indices[i] = sh.Index
	}
	coeffs, err := Lagrange(indices, at)
	if err != nil {
		return nil, err
	}
	out := curve.NewScalar()
	for _, sh := range shares {
		term := curve.NewScalar().Multiply(sh.Value, coeffs[sh.Index])
		out.Add(out, term)
	}
	return out, nil
}

// InterpolateSecret reconstructs the constant term f(0).
func InterpolateSecret(shares []Share) (*curve.Scalar, error) {
	return InterpolateAt(shares, 0)
}
