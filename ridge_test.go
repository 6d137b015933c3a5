package sparsesc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradientMatchesFiniteDifference(t *testing.T) {
	x, y := makeFactorData(20, 3, 5, 211)
	folds, err := KFoldSplit(20, 4, 3)
	require.NoError(t, err)

	problem := newGradientProblem(newFoldData(x, y, folds), 0.1, 0.05)

	points := [][]float64{
		{0, 0, 0},
		{0.3, 0.1, 0.2},
		{1, 0, 0.5},
	}
	const h = 1e-6

	for _, v := range points {
		analytic, err := problem.grad(v)
		require.NoError(t, err)

		for f := range v {
			vp := append([]float64(nil), v...)
			vm := append([]float64(nil), v...)
			vp[f] += h
			vm[f] -= h

			fp, err := problem.value(vp)
			require.NoError(t, err)
			fm, err := problem.value(vm)
			require.NoError(t, err)

			numeric := (fp - fm) / (2 * h)
			tol := 1e-3*math.Abs(numeric) + 1e-5
			assert.InDelta(t, numeric, analytic[f], tol,
				"gradient coordinate %d at %v", f, v)
		}
	}
}

func TestRidgeWeightsApproachUniform(t *testing.T) {
	// With a dominant weight penalty the fold system is wPen·I and the
	// right-hand side wPen/n, so every donor weight tends to 1/n.
	x, _ := makeFactorData(20, 3, 5, 223)
	v := []float64{1, 1, 1}

	rs, err := newRidgeSolver(x, v, 1e5)
	require.NoError(t, err)

	target, _ := makeFactorData(1, 3, 1, 5)
	w, err := rs.weights(x, target, v, 1e5)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assert.InDelta(t, 1.0/20, w.At(i, 0), 5e-3)
	}
}

func TestNullErrorPositive(t *testing.T) {
	x, y := makeFactorData(20, 3, 5, 227)
	folds, err := KFoldSplit(20, 4, 3)
	require.NoError(t, err)

	problem := newGradientProblem(newFoldData(x, y, folds), 0.1, 0.5)
	nullErr, err := problem.nullError()
	require.NoError(t, err)
	assert.Greater(t, nullErr, 0.0)

	// The penalty term must be excluded from the null error.
	raw := newGradientProblem(newFoldData(x, y, folds), 0.1, 0)
	rawErr, err := raw.nullError()
	require.NoError(t, err)
	assert.Equal(t, rawErr, nullErr)
}

func TestFixedFoldData(t *testing.T) {
	x, y := makeFactorData(12, 3, 4, 229)
	xTreat, yTreat := makeFactorData(2, 3, 4, 233)

	folds := newFixedFoldData(x, y, xTreat, yTreat)
	require.Len(t, folds, 1)

	tr, _ := folds[0].XT.Dims()
	te, _ := folds[0].XS.Dims()
	assert.Equal(t, 12, tr)
	assert.Equal(t, 2, te)
}

func TestRidgeSolverValidation(t *testing.T) {
	x, _ := makeFactorData(10, 3, 4, 239)

	_, err := newRidgeSolver(x, []float64{1, 1}, 0.1)
	assert.Error(t, err)
}
