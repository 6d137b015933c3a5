package sparsesc

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKFoldSplit(t *testing.T) {
	tests := []struct {
		name string
		n    int
		k    int
	}{
		{name: "even split", n: 20, k: 4},
		{name: "uneven split", n: 23, k: 5},
		{name: "two folds", n: 6, k: 2},
		{name: "fold per unit", n: 5, k: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folds, err := KFoldSplit(tt.n, tt.k, 42)
			require.NoError(t, err)
			require.Len(t, folds, tt.k)

			seen := make([]int, 0, tt.n)
			for _, f := range folds {
				assert.NotEmpty(t, f.Test)
				assert.Len(t, f.Train, tt.n-len(f.Test))
				assert.True(t, sort.IntsAreSorted(f.Test))
				assert.True(t, sort.IntsAreSorted(f.Train))
				seen = append(seen, f.Test...)
			}

			// Test sets partition 0..n-1.
			sort.Ints(seen)
			require.Len(t, seen, tt.n)
			for i, v := range seen {
				assert.Equal(t, i, v)
			}
		})
	}
}

func TestKFoldSplitDeterministic(t *testing.T) {
	a, err := KFoldSplit(50, 7, 10101)
	require.NoError(t, err)
	b, err := KFoldSplit(50, 7, 10101)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := KFoldSplit(50, 7, 20202)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestKFoldSplitErrors(t *testing.T) {
	tests := []struct {
		name string
		n    int
		k    int
	}{
		{name: "zero folds", n: 10, k: 0},
		{name: "one fold", n: 10, k: 1},
		{name: "more folds than units", n: 3, k: 4},
		{name: "no units", n: 0, k: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KFoldSplit(tt.n, tt.k, 1)
			assert.Error(t, err)
		})
	}
}

func TestValidateFolds(t *testing.T) {
	good := []Fold{
		{Train: []int{2, 3}, Test: []int{0, 1}},
		{Train: []int{0, 1}, Test: []int{2, 3}},
	}
	require.NoError(t, validateFolds("test", good, 4))

	tests := []struct {
		name  string
		folds []Fold
	}{
		{name: "empty list", folds: []Fold{}},
		{name: "empty test set", folds: []Fold{{Train: []int{0, 1}, Test: nil}}},
		{name: "index out of range", folds: []Fold{{Train: []int{0}, Test: []int{9}}}},
		{name: "negative index", folds: []Fold{{Train: []int{-1}, Test: []int{0}}}},
		{name: "train test overlap", folds: []Fold{{Train: []int{0, 1}, Test: []int{1, 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validateFolds("test", tt.folds, 4))
		})
	}
}

func TestProspectiveFolds(t *testing.T) {
	treated := []int{4, 5}
	controls := []int{0, 1, 2, 3}
	base := []Fold{
		{Train: []int{2, 3, 4, 5}, Test: []int{0, 1}},
		{Train: []int{0, 1, 4, 5}, Test: []int{2, 3}},
		{Train: []int{0, 1, 2, 3}, Test: []int{4, 5}},
	}

	got := prospectiveFolds(base, treated, controls)

	// The fold whose test set was exactly the treated units collapses to
	// an empty test set and is dropped; the terminal (controls, treated)
	// fold is appended.
	require.Len(t, got, 3)
	for _, f := range got[:2] {
		for _, u := range treated {
			assert.Contains(t, f.Train, u)
			assert.NotContains(t, f.Test, u)
		}
	}
	last := got[len(got)-1]
	assert.Equal(t, controls, last.Train)
	assert.Equal(t, treated, last.Test)

	assert.True(t, hasTreatedTestFold(got, treated))
	assert.False(t, hasTreatedTestFold(base[:2], treated))
}

func TestRestrictFolds(t *testing.T) {
	subset := []int{1, 3, 5, 7}
	folds := []Fold{
		{Train: []int{1, 3}, Test: []int{5, 7}},
		{Train: []int{5, 7}, Test: []int{1, 3}},
	}

	got := restrictFolds(folds, subset)
	assert.Equal(t, []Fold{
		{Train: []int{0, 1}, Test: []int{2, 3}},
		{Train: []int{2, 3}, Test: []int{0, 1}},
	}, got)

	// A fold stripped of its whole train side is dropped.
	got = restrictFolds([]Fold{{Train: []int{2}, Test: []int{1}}}, subset)
	assert.Empty(t, got)
}
