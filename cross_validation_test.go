package sparsesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCVScoreAlignment(t *testing.T) {
	x, y := makeFactorData(30, 3, 6, 29)
	pens := []float64{0.001, 0.01, 0.1}

	scores, err := CVScore(x, y, pens, &CVConfig{
		WPen:       0.01,
		Splits:     3,
		GradSplits: 3,
	})
	require.NoError(t, err)
	require.Len(t, scores, len(pens))
	for i, s := range scores {
		assert.Greater(t, s, 0.0, "score %d must be a positive sum of squared residuals", i)
	}
}

func TestCVScoreDeterministic(t *testing.T) {
	x, y := makeFactorData(30, 3, 6, 31)
	pens := []float64{0.01, 0.05}
	cfg := &CVConfig{WPen: 0.02, Splits: 3, GradSplits: 3, Seed: 7}

	a, err := CVScore(x, y, pens, cfg)
	require.NoError(t, err)
	b, err := CVScore(x, y, pens, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCVScoreExplicitFolds(t *testing.T) {
	x, y := makeFactorData(24, 3, 6, 37)
	folds, err := KFoldSplit(24, 4, 2)
	require.NoError(t, err)

	scores, err := CVScore(x, y, []float64{0.01}, &CVConfig{
		WPen:       0.01,
		FoldList:   folds,
		GradSplits: 3,
	})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Greater(t, scores[0], 0.0)
}

func TestCVScoreFixedBlock(t *testing.T) {
	x, y := makeFactorData(36, 3, 6, 41)
	xTrain := subsetRows(x, intRange(0, 30))
	yTrain := subsetRows(y, intRange(0, 30))
	xTreat := subsetRows(x, intRange(30, 36))
	yTreat := subsetRows(y, intRange(30, 36))

	scores, err := CVScore(xTrain, yTrain, []float64{0.01, 0.1}, &CVConfig{
		WPen:   0.01,
		XTreat: xTreat,
		YTreat: yTreat,
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	for _, s := range scores {
		assert.Greater(t, s, 0.0)
	}
}

func TestCVScoreErrors(t *testing.T) {
	x, y := makeFactorData(20, 3, 5, 43)

	t.Run("empty grid", func(t *testing.T) {
		_, err := CVScore(x, y, nil, &CVConfig{WPen: 0.01, Splits: 2, GradSplits: 2})
		assert.Error(t, err)
	})

	t.Run("row mismatch", func(t *testing.T) {
		short := mat.NewDense(5, 5, nil)
		_, err := CVScore(x, short, []float64{0.01}, &CVConfig{WPen: 0.01})
		assert.Error(t, err)
	})

	t.Run("invalid explicit folds", func(t *testing.T) {
		_, err := CVScore(x, y, []float64{0.01}, &CVConfig{
			WPen:     0.01,
			FoldList: []Fold{{Train: []int{0, 1}, Test: []int{1}}},
		})
		assert.Error(t, err)
	})
}
