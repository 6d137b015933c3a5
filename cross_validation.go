package sparsesc

import (
	"io"

	"github.com/cheggaaa/pb/v3"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/core/parallel"
	"github.com/YuminosukeSato/sparsesc/metrics"
	"github.com/YuminosukeSato/sparsesc/pkg/errors"
	"github.com/YuminosukeSato/sparsesc/pkg/log"
)

// CVConfig configures cross-validated scoring of a covariate-penalty grid.
type CVConfig struct {
	// WPen is the weight penalty used in every inner solve.
	WPen float64

	// Splits is the number of outer CV folds over units. Ignored when
	// FoldList or XTreat is set. Default 10.
	Splits int
	// FoldList supplies explicit outer folds.
	FoldList []Fold
	// Seed drives both the outer-fold and gradient-fold shuffles.
	// Default 10101.
	Seed int64

	// GradSplits / GradFoldList configure the inner gradient folds passed
	// to the V optimizer. An explicit list is expressed in full-universe
	// indices and is restricted onto each outer fold's training units.
	GradSplits   int
	GradFoldList []Fold

	// XTreat/YTreat switch scoring to a fixed held-out treated block
	// instead of outer folds (the prospective-restricted model type).
	XTreat mat.Matrix
	YTreat mat.Matrix

	// Progress enables a console progress bar over the (fold × penalty)
	// grid. The bar is a side channel only and never affects scores.
	Progress bool

	// Optimizer knobs forwarded to Tensor.
	Method                 Optimizer
	LearningRate           float64
	LearningRateAdjustment float64
	Tol                    float64
	MaxIter                int
}

// CVScore evaluates each candidate covariate penalty by cross-validated
// held-out reconstruction error: for every (outer fold, penalty) cell it
// fits V on the fold's training units, reconstructs the held-out units with
// the fitted V, and accumulates the squared residual into the penalty's
// score. Cells are independent and evaluated in parallel; scores are summed
// per penalty, so evaluation order never changes the result.
//
// The returned slice is aligned positionally with vPens. Any error raised
// inside a cell propagates to the caller.
func CVScore(x, y mat.Matrix, vPens []float64, cfg *CVConfig) ([]float64, error) {
	if cfg == nil {
		cfg = &CVConfig{}
	}
	if len(vPens) == 0 {
		return nil, errors.NewValueError("CVScore", "at least one covariate penalty is required")
	}
	n, k := x.Dims()
	yn, _ := y.Dims()
	if n == 0 || k == 0 {
		return nil, errors.NewModelError("CVScore", "empty data", errors.ErrEmptyData)
	}
	if yn != n {
		return nil, errors.NewDimensionError("CVScore", n, yn, 0)
	}

	if cfg.XTreat != nil {
		return cvScoreFixed(x, y, vPens, cfg)
	}
	return cvScoreFolds(x, y, vPens, cfg)
}

// cvCell is one (outer fold, penalty) evaluation.
type cvCell struct {
	fold int
	pen  int
}

func cvScoreFolds(x, y mat.Matrix, vPens []float64, cfg *CVConfig) ([]float64, error) {
	n, _ := x.Dims()

	var folds []Fold
	if cfg.FoldList != nil {
		if err := validateFolds("CVScore", cfg.FoldList, n); err != nil {
			return nil, err
		}
		folds = cfg.FoldList
	} else {
		splits := cfg.Splits
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
			return nil, err
		}
	}

	logger := log.Logger()
	logger.Info().
		Int("folds", len(folds)).
		Int("grid_points", len(vPens)).
		Msg("scoring covariate penalty grid")

	// Pre-slice each outer fold once; every penalty reuses the slices.
	type foldSlices struct {
		xtr, ytr, xte, yte *mat.Dense
		gradFolds          []Fold
	}
	slices := make([]foldSlices, len(folds))
	for i, fold := range folds {
		slices[i] = foldSlices{
			xtr: subsetRows(x, fold.Train),
			ytr: subsetRows(y, fold.Train),
			xte: subsetRows(x, fold.Test),
			yte: subsetRows(y, fold.Test),
		}
		if cfg.GradFoldList != nil {
			slices[i].gradFolds = restrictFolds(cfg.GradFoldList, fold.Train)
		}
	}

	cells := make([]cvCell, 0, len(folds)*len(vPens))
	for fi := range folds {
		for pi := range vPens {
			cells = append(cells, cvCell{fold: fi, pen: pi})
		}
	}

	bar := newProgressBar(len(cells), cfg.Progress)
	defer bar.Finish()

	cellErrs := make([]float64, len(cells))
	err := parallel.TryParallelize(len(cells), func(ci int) error {
		defer bar.Increment()
		cell := cells[ci]
		fs := &slices[cell.fold]

		heldOut, err := cvCellError(fs.xtr, fs.ytr, fs.xte, fs.yte, vPens[cell.pen], fs.gradFolds, cfg)
		if err != nil {
			return err
		}
		cellErrs[ci] = heldOut
		return nil
	})
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(vPens))
	for ci, cell := range cells {
		scores[cell.pen] += cellErrs[ci]
	}
	return scores, nil
}

// cvScoreFixed scores every penalty against one fixed held-out treated
// block; there are no outer folds and no gradient folds.
func cvScoreFixed(x, y mat.Matrix, vPens []float64, cfg *CVConfig) ([]float64, error) {
	xAll := mat.DenseCopyOf(x)
	yAll := mat.DenseCopyOf(y)
	xTreat := mat.DenseCopyOf(cfg.XTreat)
	yTreat := mat.DenseCopyOf(cfg.YTreat)

	logger := log.Logger()
	logger.Info().
		Int("grid_points", len(vPens)).
		Msg("scoring covariate penalty grid against fixed held-out block")

	bar := newProgressBar(len(vPens), cfg.Progress)
	defer bar.Finish()

	scores := make([]float64, len(vPens))
	err := parallel.TryParallelize(len(vPens), func(pi int) error {
		defer bar.Increment()

		v, _, err := Tensor(xAll, yAll, &TensorConfig{
			VPen:                   vPens[pi],
			WPen:                   cfg.WPen,
			XTreat:                 xTreat,
			YTreat:                 yTreat,
			Method:                 cfg.Method,
			LearningRate:           cfg.LearningRate,
			LearningRateAdjustment: cfg.LearningRateAdjustment,
			Tol:                    cfg.Tol,
			MaxIter:                cfg.MaxIter,
		})
		if err != nil {
			return err
		}

		heldOut, err := heldOutError(xAll, yAll, xTreat, yTreat, v, cfg.WPen)
		if err != nil {
			return err
		}
		scores[pi] = heldOut
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// newProgressBar builds a grid-scoring progress bar. The writer is set
// before the bar starts so a disabled bar never renders a frame.
func newProgressBar(total int, enabled bool) *pb.ProgressBar {
	bar := pb.New(total)
	if !enabled {
		bar.SetWriter(io.Discard)
	}
	return bar.Start()
}

// cvCellError fits V on the fold's training units at one penalty and
// returns the held-out squared reconstruction error of the test units.
func cvCellError(xtr, ytr, xte, yte *mat.Dense, vPen float64, gradFolds []Fold, cfg *CVConfig) (float64, error) {
	v, _, err := Tensor(xtr, ytr, &TensorConfig{
		VPen:                   vPen,
		WPen:                   cfg.WPen,
		GradSplits:             cfg.GradSplits,
		GradFoldList:           gradFolds,
		Seed:                   cfg.Seed,
		Method:                 cfg.Method,
		LearningRate:           cfg.LearningRate,
		LearningRateAdjustment: cfg.LearningRateAdjustment,
		Tol:                    cfg.Tol,
		MaxIter:                cfg.MaxIter,
	})
	if err != nil {
		return 0, err
	}
	return heldOutError(xtr, ytr, xte, yte, v, cfg.WPen)
}

// heldOutError reconstructs the held-out outcomes from the donor outcomes
// under the fitted V and returns the sum of squared residuals.
func heldOutError(xtr, ytr, xte, yte *mat.Dense, v *mat.DiagDense, wPen float64) (float64, error) {
	diag := diagOf(v)
	rs, err := newRidgeSolver(xtr, diag, wPen)
	if err != nil {
		return 0, err
	}
	w, err := rs.weights(xtr, xte, diag, wPen)
	if err != nil {
		return 0, err
	}

	var pred mat.Dense
	pred.Mul(w.T(), ytr)
	return metrics.SSR(yte, &pred)
}

func diagOf(v *mat.DiagDense) []float64 {
	n, _ := v.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = v.At(i, i)
	}
	return out
}
