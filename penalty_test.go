package sparsesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestWPenGuestimate(t *testing.T) {
	t.Run("mean column variance", func(t *testing.T) {
		// Column 0 has sample variance 2, column 1 is constant.
		x := mat.NewDense(2, 2, []float64{
			0, 1,
			2, 1,
		})
		assert.InDelta(t, 1, WPenGuestimate(x), 1e-12)
	})

	t.Run("constant matrix floors", func(t *testing.T) {
		x := mat.NewDense(5, 3, nil)
		assert.Equal(t, penaltyFloor, WPenGuestimate(x))
	})

	t.Run("empty matrix floors", func(t *testing.T) {
		assert.Equal(t, penaltyFloor, WPenGuestimate(&mat.Dense{}))
	})
}

func TestMaxVPenPositive(t *testing.T) {
	x, y := makeFactorData(40, 4, 8, 17)

	bound, err := MaxVPen(x, y, 0.01, &PenaltyConfig{GradSplits: 5})
	require.NoError(t, err)
	assert.Greater(t, bound, 0.0)
}

func TestMaxVPenPinsVToZero(t *testing.T) {
	// At or above the bound, the penalized gradient at V = 0 is
	// nonnegative in every coordinate, so the projected descent never
	// leaves the origin.
	x, y := makeFactorData(40, 4, 8, 17)

	bound, err := MaxVPen(x, y, 0.01, &PenaltyConfig{GradSplits: 5})
	require.NoError(t, err)

	v, _, err := Tensor(x, y, &TensorConfig{VPen: bound * 1.0001, WPen: 0.01, GradSplits: 5})
	require.NoError(t, err)
	for j := 0; j < 4; j++ {
		assert.Zero(t, v.At(j, j), "V[%d] must stay pinned at zero", j)
	}
}

func TestMaxVPenBelowBoundMoves(t *testing.T) {
	x, y := makeFactorData(40, 4, 8, 17)

	bound, err := MaxVPen(x, y, 0.01, &PenaltyConfig{GradSplits: 5})
	require.NoError(t, err)

	v, _, err := Tensor(x, y, &TensorConfig{VPen: bound * 0.01, WPen: 0.01, GradSplits: 5})
	require.NoError(t, err)

	total := 0.0
	for j := 0; j < 4; j++ {
		total += v.At(j, j)
	}
	assert.Greater(t, total, 0.0, "a penalty well below the bound must let V move")
}

func TestMaxVPenDegenerate(t *testing.T) {
	// Zero outcomes give a zero gradient; the bound falls back to the
	// positive floor rather than zero.
	x, _ := makeFactorData(20, 3, 5, 23)
	y := mat.NewDense(20, 5, nil)

	bound, err := MaxVPen(x, y, 0.01, &PenaltyConfig{GradSplits: 5})
	require.NoError(t, err)
	assert.Equal(t, penaltyFloor, bound)
}

func TestMaxVPenValidation(t *testing.T) {
	x, y := makeFactorData(20, 3, 5, 1)

	t.Run("negative weight penalty", func(t *testing.T) {
		_, err := MaxVPen(x, y, -1, nil)
		assert.Error(t, err)
	})

	t.Run("row mismatch", func(t *testing.T) {
		short := mat.NewDense(5, 5, nil)
		_, err := MaxVPen(x, short, 0.1, nil)
		assert.Error(t, err)
	})

	t.Run("explicit folds validated", func(t *testing.T) {
		_, err := MaxVPen(x, y, 0.1, &PenaltyConfig{
			GradFoldList: []Fold{{Train: []int{0}, Test: []int{99}}},
		})
		assert.Error(t, err)
	})
}
