package polynomial_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxrts/aura-sub005/pkg/math/curve"
	"github.com/hxrts/aura-sub005/pkg/math/polynomial"
)

func TestLagrangeCoefficientsSumToOne(t *testing.T) {
	one := curve.ScalarFromIndex(1)
	for _, indices := range [][]int{{1, 2}, {1, 2, 3}, {2, 4, 7, 9}, {1, 3, 5, 8, 13}} {
		coefs, err := polynomial.Lagrange(indices, 0)
		require.NoError(t, err)
		sum := curve.NewScalar()
		for _, c := range coefs {
			sum.Add(sum, c)
		}
		assert.True(t, sum.Equal(one), "indices %v", indices)
	}
}

func TestLagrangeRejectsDuplicateIndices(t *testing.T) {
	_, err := polynomial.Lagrange([]int{1, 2, 2}, 0)
	assert.Error(t, err)
}

func TestLagrangeRejectsEmpty(t *testing.T) {
	_, err := polynomial.Lagrange(nil, 0)
	assert.Error(t, err)
}

func TestInterpolateSecretRecoversConstant(t *testing.T) {
	secret, err := curve.Sample(rand.Reader)
	require.NoError(t, err)
	poly, err := polynomial.NewPolynomial(2, secret, rand.Reader)
	require.NoError(t, err)

	shares := make([]polynomial.Share, 0, 5)
	for i := 1; i <= 5; i++ {
		shares = append(shares, polynomial.Share{Index: i, Value: poly.EvaluateIndex(i)})
	}

	// Any 3 shares of a degree-2 polynomial recover the constant.
	for _, pick := range [][]int{{0, 1, 2}, {0, 2, 4}, {2, 3, 4}} {
		subset := []polynomial.Share{shares[pick[0]], shares[pick[1]], shares[pick[2]]}
		recovered, err := polynomial.InterpolateSecret(subset)
		require.NoError(t, err)
		assert.True(t, recovered.Equal(secret), "subset %v", pick)
	}

	// Two shares are not enough: the interpolation succeeds but lands
	// on a different degree-1 polynomial's constant.
	wrong, err := polynomial.InterpolateSecret(shares[:2])
	require.NoError(t, err)
	assert.False(t, wrong.Equal(secret))
}

func TestInterpolateAtMatchesEvaluation(t *testing.T) {
	secret, err := curve.Sample(rand.Reader)
	require.NoError(t, err)
	poly, err := polynomial.NewPolynomial(1, secret, rand.Reader)
	require.NoError(t, err)

	shares := []polynomial.Share{
		{Index: 2, Value: poly.EvaluateIndex(2)},
		{Index: 5, Value: poly.EvaluateIndex(5)},
	}
	got, err := polynomial.InterpolateAt(shares, 3)
	require.NoError(t, err)
	assert.True(t, got.Equal(poly.EvaluateIndex(3)))
}
