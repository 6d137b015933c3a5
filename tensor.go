package sparsesc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
	"github.com/YuminosukeSato/sparsesc/pkg/log"
)

// TensorConfig configures one run of the V optimizer.
type TensorConfig struct {
	// VPen is the covariate penalty applied to the magnitude of diag(V).
	VPen float64
	// WPen is the weight penalty used inside every donor-weight solve.
	WPen float64

	// GradSplits is the number of gradient folds. Ignored when
	// GradFoldList or XTreat is set. Default 10.
	GradSplits int
	// GradFoldList supplies explicit gradient folds over the rows of X.
	GradFoldList []Fold
	// Seed drives the gradient-fold shuffle. Default 10101.
	Seed int64

	// XTreat/YTreat replace the gradient folds with one fixed held-out
	// block (the prospective-restricted model type).
	XTreat mat.Matrix
	YTreat mat.Matrix

	// Method is the descent strategy. Nil selects the built-in
	// LineSearchDescent configured from the knobs below.
	Method Optimizer

	// LearningRate, LearningRateAdjustment, Tol and MaxIter parameterize
	// the built-in optimizer. Zero values select its defaults.
	LearningRate           float64
	LearningRateAdjustment float64
	Tol                    float64
	MaxIter                int
}

// Tensor learns the diagonal feature-importance matrix V that minimizes the
// cross-fold reconstruction error of the pre-period outcomes under the
// given covariate penalty.
//
// V starts at the zero diagonal and descends the penalized held-out loss
// with the configured optimizer, projecting onto the nonnegative cone
// after every step. Non-convergence is not fatal: the best V found is
// returned along with the optimizer diagnostics.
func Tensor(x, y mat.Matrix, cfg *TensorConfig) (*mat.DiagDense, OptimizeResult, error) {
	if cfg == nil {
		cfg = &TensorConfig{}
	}

	n, k := x.Dims()
	yn, _ := y.Dims()
	if n == 0 || k == 0 {
		return nil, OptimizeResult{}, errors.NewModelError("Tensor", "empty data", errors.ErrEmptyData)
	}
	if yn != n {
		return nil, OptimizeResult{}, errors.NewDimensionError("Tensor", n, yn, 0)
	}
	if cfg.VPen < 0 {
		return nil, OptimizeResult{}, errors.NewValueError("Tensor", "covariate penalty must be nonnegative")
	}
	if cfg.WPen < 0 {
		return nil, OptimizeResult{}, errors.NewValueError("Tensor", "weight penalty must be nonnegative")
	}

	folds, err := tensorFoldData(x, y, cfg)
	if err != nil {
		return nil, OptimizeResult{}, err
	}
	problem := newGradientProblem(folds, cfg.WPen, cfg.VPen)

	nullErr, err := problem.nullError()
	if err != nil {
		return nil, OptimizeResult{}, err
	}

	// The optimizer contract works on plain float closures; solve errors
	// are captured and surfaced after the descent stops.
	var solveErr error
	objective := func(v []float64) float64 {
		val, err := problem.value(v)
		if err != nil {
			if solveErr == nil {
				solveErr = err
			}
			return math.NaN()
		}
		return val
	}
	gradient := func(v []float64) []float64 {
		g, err := problem.grad(v)
		if err != nil {
			if solveErr == nil {
				solveErr = err
			}
			return make([]float64, k)
		}
		return g
	}

	method := cfg.Method
	if method == nil {
		method = &LineSearchDescent{
			LearningRate:           cfg.LearningRate,
			LearningRateAdjustment: cfg.LearningRateAdjustment,
			Tol:                    cfg.Tol,
			MaxIter:                cfg.MaxIter,
			InitialError:           nullErr,
		}
	}

	res, err := method.Optimize(objective, make([]float64, k), gradient)
	if solveErr != nil {
		return nil, res, solveErr
	}
	if err != nil {
		return nil, res, err
	}

	diag := make([]float64, k)
	for i, v := range res.X {
		if v < 0 {
			v = 0
		}
		diag[i] = v
	}

	logger := log.Logger()
	logger.Debug().
		Float64("v_pen", cfg.VPen).
		Float64("w_pen", cfg.WPen).
		Int("iterations", res.Iterations).
		Bool("converged", res.Converged).
		Float64("objective", res.F).
		Msg("tensor fit complete")

	return mat.NewDiagDense(k, diag), res, nil
}

// tensorFoldData resolves the gradient-fold structure for one optimizer
// run: the fixed treated block when given, explicit folds when supplied,
// otherwise a seeded k-fold split.
func tensorFoldData(x, y mat.Matrix, cfg *TensorConfig) ([]foldData, error) {
	if cfg.XTreat != nil {
		tn, tk := cfg.XTreat.Dims()
		_, k := x.Dims()
		if tk != k {
			return nil, errors.NewDimensionError("Tensor", k, tk, 1)
		}
		ytn, _ := cfg.YTreat.Dims()
		if ytn != tn {
			return nil, errors.NewDimensionError("Tensor", tn, ytn, 0)
		}
		return newFixedFoldData(x, y, cfg.XTreat, cfg.YTreat), nil
	}

	n, _ := x.Dims()
	if cfg.GradFoldList != nil {
		if err := validateFolds("Tensor", cfg.GradFoldList, n); err != nil {
			return nil, err
		}
		return newFoldData(x, y, cfg.GradFoldList), nil
	}

	splits := cfg.GradSplits
	if splits <= 0 {
		splits = 10
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = defaultGradientSeed
	}
	folds, err := KFoldSplit(n, splits, seed)
	if err != nil {
		return nil, err
	}
	return newFoldData(x, y, folds), nil
}
