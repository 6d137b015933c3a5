package sparsesc

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// makeFactorData builds a synthetic panel where the outcomes load on the
// first two feature columns and the remaining columns are pure noise. A
// good V should therefore weight the informative columns well above the
// noise columns.
func makeFactorData(n, k, tPeriods int, seed uint64) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewPCG(seed, seed))

	x := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			x.Set(i, j, r.NormFloat64())
		}
	}

	loadings := mat.NewDense(k, tPeriods, nil)
	for t := 0; t < tPeriods; t++ {
		loadings.Set(0, t, 1)
		if k > 1 {
			loadings.Set(1, t, 0.5)
		}
	}

	y := mat.NewDense(n, tPeriods, nil)
	y.Mul(x, loadings)
	for i := 0; i < n; i++ {
		for t := 0; t < tPeriods; t++ {
			y.Set(i, t, y.At(i, t)+0.05*r.NormFloat64())
		}
	}
	return x, y
}

func TestTensorLearnsNonnegativeDiagonal(t *testing.T) {
	x, y := makeFactorData(40, 4, 8, 7)

	v, diag, err := Tensor(x, y, &TensorConfig{WPen: 0.01, GradSplits: 5})
	require.NoError(t, err)
	require.NotNil(t, v)

	rows, cols := v.Dims()
	require.Equal(t, 4, rows)
	require.Equal(t, 4, cols)
	for j := 0; j < 4; j++ {
		assert.GreaterOrEqual(t, v.At(j, j), 0.0, "V[%d,%d] must be nonnegative", j, j)
	}
	assert.Greater(t, diag.Iterations, 0)
	assert.False(t, math.IsNaN(diag.F))
}

func TestTensorImprovesOnNullModel(t *testing.T) {
	x, y := makeFactorData(40, 4, 8, 11)

	cfg := &TensorConfig{WPen: 0.01, GradSplits: 5}
	folds, err := tensorFoldData(x, y, cfg)
	require.NoError(t, err)
	problem := newGradientProblem(folds, cfg.WPen, cfg.VPen)
	nullErr, err := problem.nullError()
	require.NoError(t, err)

	_, diag, err := Tensor(x, y, cfg)
	require.NoError(t, err)
	assert.Less(t, diag.F, nullErr, "fitted V must beat the zero-V model")
}

func TestTensorDeterministic(t *testing.T) {
	x, y := makeFactorData(30, 3, 6, 3)
	cfg := &TensorConfig{WPen: 0.05, GradSplits: 5, Seed: 99}

	v1, r1, err := Tensor(x, y, cfg)
	require.NoError(t, err)
	v2, r2, err := Tensor(x, y, cfg)
	require.NoError(t, err)

	assert.Equal(t, r1.Iterations, r2.Iterations)
	assert.Equal(t, r1.F, r2.F)
	for j := 0; j < 3; j++ {
		assert.Equal(t, v1.At(j, j), v2.At(j, j))
	}
}

func TestTensorFixedHeldOutBlock(t *testing.T) {
	x, y := makeFactorData(36, 3, 6, 5)
	xTrain := subsetRows(x, intRange(0, 30))
	yTrain := subsetRows(y, intRange(0, 30))
	xTreat := subsetRows(x, intRange(30, 36))
	yTreat := subsetRows(y, intRange(30, 36))

	v, _, err := Tensor(xTrain, yTrain, &TensorConfig{
		WPen:   0.01,
		XTreat: xTreat,
		YTreat: yTreat,
	})
	require.NoError(t, err)
	for j := 0; j < 3; j++ {
		assert.GreaterOrEqual(t, v.At(j, j), 0.0)
	}
}

func TestTensorExplicitFolds(t *testing.T) {
	x, y := makeFactorData(20, 3, 5, 13)
	folds, err := KFoldSplit(20, 4, 1)
	require.NoError(t, err)

	v, _, err := Tensor(x, y, &TensorConfig{WPen: 0.02, GradFoldList: folds})
	require.NoError(t, err)
	require.NotNil(t, v)
}

func TestTensorValidation(t *testing.T) {
	x, y := makeFactorData(20, 3, 5, 1)

	tests := []struct {
		name string
		run  func() error
	}{
		{"negative v pen", func() error {
			_, _, err := Tensor(x, y, &TensorConfig{VPen: -1, WPen: 0.1})
			return err
		}},
		{"negative w pen", func() error {
			_, _, err := Tensor(x, y, &TensorConfig{WPen: -0.1})
			return err
		}},
		{"row mismatch", func() error {
			short := mat.NewDense(10, 5, nil)
			_, _, err := Tensor(x, short, &TensorConfig{WPen: 0.1})
			return err
		}},
		{"bad explicit folds", func() error {
			_, _, err := Tensor(x, y, &TensorConfig{
				WPen:         0.1,
				GradFoldList: []Fold{{Train: []int{0}, Test: []int{0}}},
			})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.run())
		})
	}
}

func intRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}
