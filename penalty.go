package sparsesc

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
	"github.com/YuminosukeSato/sparsesc/pkg/log"
)

// penaltyFloor is the small positive value returned for degenerate inputs
// (constant columns, vanishing gradients) instead of zero or NaN.
const penaltyFloor = 1e-6

// WPenGuestimate returns a quick closed-form default for the weight
// penalty: the mean sample variance of the control feature columns. It is
// deterministic, requires no iteration and runs in O(size of X).
func WPenGuestimate(x mat.Matrix) float64 {
	n, k := x.Dims()
	if n == 0 || k == 0 {
		return penaltyFloor
	}

	col := make([]float64, n)
	total := 0.0
	for j := 0; j < k; j++ {
		for i := 0; i < n; i++ {
			col[i] = x.At(i, j)
		}
		total += stat.Variance(col, nil)
	}

	guess := total / float64(k)
	if math.IsNaN(guess) || math.IsInf(guess, 0) || guess < penaltyFloor {
		return penaltyFloor
	}
	return guess
}

// PenaltyConfig configures the gradient-fold structure MaxVPen evaluates
// on. It mirrors the fold options of TensorConfig.
type PenaltyConfig struct {
	// GradSplits is the number of gradient folds. Default 10.
	GradSplits int
	// GradFoldList supplies explicit gradient folds over the rows of x.
	GradFoldList []Fold
	// Seed drives the gradient-fold shuffle. Default 10101.
	Seed int64
}

// MaxVPen returns the smallest covariate penalty above which the optimal V
// collapses to the zero matrix, i.e. the upper bound of the penalty grid.
//
// At V = 0 the projected descent stays pinned at zero exactly when every
// coordinate of the penalized gradient is nonnegative, i.e. when
// vPen ≥ −g_f for all f, where g is the gradient of the unpenalized
// cross-fold loss. The bound is therefore max_f(−g_f), evaluated with the
// same fold machinery the V optimizer uses. Degenerate inputs yield the
// positive floor, never zero or NaN.
func MaxVPen(x, y mat.Matrix, wPen float64, cfg *PenaltyConfig) (float64, error) {
	if cfg == nil {
		cfg = &PenaltyConfig{}
	}

	n, k := x.Dims()
	yn, _ := y.Dims()
	if n == 0 || k == 0 {
		return 0, errors.NewModelError("MaxVPen", "empty data", errors.ErrEmptyData)
	}
	if yn != n {
		return 0, errors.NewDimensionError("MaxVPen", n, yn, 0)
	}
	if wPen < 0 {
		return 0, errors.NewValueError("MaxVPen", "weight penalty must be nonnegative")
	}

	var folds []Fold
	if cfg.GradFoldList != nil {
		if err := validateFolds("MaxVPen", cfg.GradFoldList, n); err != nil {
			return 0, err
		}
		folds = cfg.GradFoldList
	} else {
		splits := cfg.GradSplits
		if splits <= 0 {
			splits = 10
		}
		seed := cfg.Seed
		if seed == 0 {
			seed = defaultGradientSeed
		}
		var err error
		folds, err = KFoldSplit(n, splits, seed)
		if err != nil {
			return 0, err
		}
	}

	problem := newGradientProblem(newFoldData(x, y, folds), wPen, 0)
	g, err := problem.grad(make([]float64, k))
	if err != nil {
		return 0, err
	}

	bound := 0.0
	for _, gf := range g {
		if math.IsNaN(gf) || math.IsInf(gf, 0) {
			logger := log.Logger()
			logger.Warn().Msg("degenerate gradient while bounding the covariate penalty; falling back to floor")
			return penaltyFloor, nil
		}
		if -gf > bound {
			bound = -gf
		}
	}
	if bound < penaltyFloor {
		return penaltyFloor, nil
	}
	return bound, nil
}
