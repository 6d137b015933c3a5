package sparsesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quadratic(center []float64) (func([]float64) float64, func([]float64) []float64) {
	obj := func(x []float64) float64 {
		s := 0.0
		for i := range x {
			d := x[i] - center[i]
			s += d * d
		}
		return s
	}
	grad := func(x []float64) []float64 {
		g := make([]float64, len(x))
		for i := range x {
			g[i] = 2 * (x[i] - center[i])
		}
		return g
	}
	return obj, grad
}

func TestLineSearchDescentQuadratic(t *testing.T) {
	obj, grad := quadratic([]float64{3, 1})

	ls := &LineSearchDescent{MaxIter: 500}
	res, err := ls.Optimize(obj, []float64{0, 0}, grad)
	require.NoError(t, err)

	assert.Greater(t, res.Iterations, 0)
	assert.InDelta(t, 3, res.X[0], 5e-2)
	assert.InDelta(t, 1, res.X[1], 5e-2)
	assert.Less(t, res.F, obj([]float64{0, 0}))
}

func TestLineSearchDescentProjectsOntoOrthant(t *testing.T) {
	// The unconstrained minimum sits at (-2, 4); the projected descent must
	// settle on the boundary point (0, 4).
	obj, grad := quadratic([]float64{-2, 4})

	ls := &LineSearchDescent{MaxIter: 500}
	res, err := ls.Optimize(obj, []float64{1, 1}, grad)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.X[0], 0.0)
	assert.InDelta(t, 0, res.X[0], 5e-2)
	assert.InDelta(t, 4, res.X[1], 5e-2)
}

func TestLineSearchDescentZeroGradient(t *testing.T) {
	// Starting exactly at the minimum: the zero gradient short-circuits the
	// descent and the starting point comes back converged.
	obj, grad := quadratic([]float64{1, 2})

	ls := &LineSearchDescent{}
	res, err := ls.Optimize(obj, []float64{1, 2}, grad)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Zero(t, res.Iterations)
	assert.Equal(t, []float64{1, 2}, res.X)
}

func TestLineSearchDescentBudgetExhaustion(t *testing.T) {
	obj, grad := quadratic([]float64{5, 5})

	ls := &LineSearchDescent{Tol: 1e-15, MaxIter: 2}
	res, err := ls.Optimize(obj, []float64{0, 0}, grad)
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)
	// Still strictly better than the start.
	assert.Less(t, res.F, obj([]float64{0, 0}))
}

func TestLineSearchDescentNegativeStart(t *testing.T) {
	// A negative starting point is clamped before the first evaluation.
	obj, grad := quadratic([]float64{0.5})

	ls := &LineSearchDescent{MaxIter: 200}
	res, err := ls.Optimize(obj, []float64{-3}, grad)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.X[0], 0.0)
	assert.InDelta(t, 0.5, res.X[0], 1e-2)
}
