package sparsesc

import (
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
)

// Fold is one cross-validation split: disjoint, non-empty train and test
// unit index sets drawn without replacement from the unit universe.
//
// Two independent fold collections drive a fit: outer CV folds evaluate the
// generalization of a covariate-penalty choice, and inner gradient folds
// give the V optimizer an out-of-sample view of its own reconstruction
// error.
type Fold struct {
	Train []int
	Test  []int
}

// KFoldSplit partitions the indices 0..n-1 into k shuffled folds without
// replacement. The shuffle is seeded, so identical (n, k, seed) triples
// always produce identical folds. Both CV folds and gradient folds go
// through here with an explicit seed; there is no unseeded path.
func KFoldSplit(n, k int, seed int64) ([]Fold, error) {
	if n <= 0 {
		return nil, errors.NewValueError("KFoldSplit", "number of units must be positive")
	}
	if k < 2 {
		return nil, errors.NewValidationError("k", "at least 2 folds are required", k)
	}
	if k > n {
		return nil, errors.NewValidationError("k", "cannot have more folds than units", k)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	r.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	folds := make([]Fold, k)
	foldSize := n / k
	remainder := n % k

	current := 0
	for i := 0; i < k; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}

		test := make([]int, testSize)
		copy(test, indices[current:current+testSize])

		train := make([]int, 0, n-testSize)
		train = append(train, indices[:current]...)
		train = append(train, indices[current+testSize:]...)

		sort.Ints(train)
		sort.Ints(test)
		folds[i] = Fold{Train: train, Test: test}
		current += testSize
	}

	return folds, nil
}

// validateFolds checks an explicit, caller-supplied fold list: every fold
// must have non-empty, disjoint train and test sets whose indices lie in
// [0, n) with no duplicates on either side.
func validateFolds(op string, folds []Fold, n int) error {
	if len(folds) == 0 {
		return errors.NewValueError(op, "at least one fold is required")
	}
	for fi, fold := range folds {
		if len(fold.Train) == 0 || len(fold.Test) == 0 {
			return errors.NewValidationError("folds", "train and test sets must be non-empty", fi)
		}
		seen := make(map[int]int, len(fold.Train)+len(fold.Test))
		for _, u := range fold.Train {
			if u < 0 || u >= n {
				return errors.NewValidationError("folds", "train index out of range", u)
			}
			if _, dup := seen[u]; dup {
				return errors.NewValidationError("folds", "duplicate train index", u)
			}
			seen[u] = fi
		}
		for _, u := range fold.Test {
			if u < 0 || u >= n {
				return errors.NewValidationError("folds", "test index out of range", u)
			}
			if _, overlap := seen[u]; overlap {
				return errors.NewValidationError("folds", "train and test sets overlap", u)
			}
			seen[u] = fi
		}
	}
	return nil
}

// prospectiveFolds rebuilds gradient folds for the prospective model type:
// treated units join every fold's train set and leave every fold's test
// set, folds emptied on either side are dropped, and a final
// (controls, treated) fold is appended so the actual treated/control split
// is always scored at least once.
func prospectiveFolds(folds []Fold, treated, controls []int) []Fold {
	out := make([]Fold, 0, len(folds)+1)
	for _, fold := range folds {
		train := unionSorted(fold.Train, treated)
		test := differenceSorted(fold.Test, treated)
		if len(train) == 0 || len(test) == 0 {
			continue
		}
		out = append(out, Fold{Train: train, Test: test})
	}
	out = append(out, Fold{
		Train: append([]int(nil), controls...),
		Test:  append([]int(nil), treated...),
	})
	return out
}

// hasTreatedTestFold reports whether some fold's test set is exactly the
// treated set. User-supplied prospective gradient folds are re-formed when
// none is.
func hasTreatedTestFold(folds []Fold, treated []int) bool {
	want := make(map[int]struct{}, len(treated))
	for _, u := range treated {
		want[u] = struct{}{}
	}
	for _, fold := range folds {
		if len(fold.Test) != len(want) {
			continue
		}
		match := true
		for _, u := range fold.Test {
			if _, ok := want[u]; !ok {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// restrictFolds maps folds expressed in full-universe indices onto a subset
// of units, re-indexed by position within the subset. Folds that lose their
// entire train or test side are dropped.
func restrictFolds(folds []Fold, subset []int) []Fold {
	pos := make(map[int]int, len(subset))
	for i, u := range subset {
		pos[u] = i
	}

	out := make([]Fold, 0, len(folds))
	for _, fold := range folds {
		var train, test []int
		for _, u := range fold.Train {
			if p, ok := pos[u]; ok {
				train = append(train, p)
			}
		}
		for _, u := range fold.Test {
			if p, ok := pos[u]; ok {
				test = append(test, p)
			}
		}
		if len(train) == 0 || len(test) == 0 {
			continue
		}
		sort.Ints(train)
		sort.Ints(test)
		out = append(out, Fold{Train: train, Test: test})
	}
	return out
}

func unionSorted(a, b []int) []int {
	set := make(map[int]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func differenceSorted(a, b []int) []int {
	drop := make(map[int]struct{}, len(b))
	for _, v := range b {
		drop[v] = struct{}{}
	}
	out := make([]int, 0, len(a))
	for _, v := range a {
		if _, ok := drop[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
