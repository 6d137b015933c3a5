package sparsesc

import (
	"math"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
)

// OptimizeResult reports where an optimizer stopped and how it got there.
// Non-convergence is not an error; callers needing a convergence guarantee
// inspect Converged and Iterations.
type OptimizeResult struct {
	// X is the best point found.
	X []float64
	// F is the objective value at X.
	F float64
	// Iterations is the number of accepted descent steps.
	Iterations int
	// Converged reports whether the stopping tolerance was met within the
	// iteration budget.
	Converged bool
}

// Optimizer abstracts the descent strategy used to learn the diagonal of V.
// Implementations minimize objective starting from x0, using gradient for
// descent directions, and always return a usable best point.
type Optimizer interface {
	Optimize(objective func([]float64) float64, x0 []float64, gradient func([]float64) []float64) (OptimizeResult, error)
}

// LineSearchDescent is the built-in optimizer: projected gradient descent
// with an adaptive step size. Each iteration starts the line search at
//
//	step = LearningRate × InitialError / ‖gradient‖
//
// accepts a step that decreases the objective, shrinks the learning rate by
// LearningRateAdjustment when the full step is rejected, and grows it by
// the inverse when the full step is accepted outright. After every step the
// iterate is clamped onto the nonnegative orthant, since V is a metric
// weighting and must never go negative.
type LineSearchDescent struct {
	// LearningRate is the initial step scale in (0, 1]. Default 0.2.
	LearningRate float64
	// LearningRateAdjustment is the multiplicative shrink factor in
	// (0, 1). Default 0.9.
	LearningRateAdjustment float64
	// Tol stops the descent when the proportional decrease of the
	// objective in one iteration falls below it. Default 1e-4.
	Tol float64
	// MaxIter bounds the number of descent iterations. Default 100.
	MaxIter int
	// InitialError scales the first step; typically the null-model error.
	// Zero falls back to the objective value at x0.
	InitialError float64
}

const lineSearchBacktracks = 40

// Optimize runs the projected line-search descent. A zero gradient at the
// starting point emits a ZeroGradientWarning and returns x0; exhausting the
// iteration budget emits a ConvergenceWarning and returns the best point
// found so far.
func (ls *LineSearchDescent) Optimize(objective func([]float64) float64, x0 []float64, gradient func([]float64) []float64) (OptimizeResult, error) {
	lr := ls.LearningRate
	if lr <= 0 {
		lr = 0.2
	}
	adj := ls.LearningRateAdjustment
	if adj <= 0 || adj >= 1 {
		adj = 0.9
	}
	tol := ls.Tol
	if tol <= 0 {
		tol = 1e-4
	}
	maxIter := ls.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}

	x := projectNonneg(append([]float64(nil), x0...))
	f := objective(x)
	if err := errors.CheckScalar("LineSearchDescent", f, 0); err != nil {
		return OptimizeResult{X: x, F: f}, err
	}

	scale := ls.InitialError
	if scale <= 0 {
		scale = f
	}
	if scale <= 0 {
		// Nothing to reduce.
		return OptimizeResult{X: x, F: f, Converged: true}, nil
	}

	res := OptimizeResult{X: x, F: f}
	for iter := 0; iter < maxIter; iter++ {
		g := gradient(x)
		gnorm := norm2(g)
		if gnorm == 0 {
			if iter == 0 {
				errors.Warn(errors.NewZeroGradientWarning("LineSearchDescent", ""))
			}
			res.Converged = true
			return res, nil
		}

		accepted := false
		relDecrease := 0.0
		for try := 0; try < lineSearchBacktracks; try++ {
			step := lr * scale / gnorm
			xNew := make([]float64, len(x))
			moved := false
			for i := range x {
				xNew[i] = x[i] - step*g[i]
				if xNew[i] < 0 {
					xNew[i] = 0
				}
				if xNew[i] != x[i] {
					moved = true
				}
			}
			if !moved {
				// Projection pinned every coordinate; shrinking the step
				// cannot unpin them.
				break
			}

			fNew := objective(xNew)
			if math.IsNaN(fNew) || math.IsInf(fNew, 0) {
				lr *= adj
				continue
			}
			if fNew < f {
				relDecrease = (f - fNew) / f
				x, f = xNew, fNew
				accepted = true
				if try == 0 {
					// Full step accepted: be more ambitious next time.
					lr /= adj
				}
				break
			}
			lr *= adj
		}

		if !accepted {
			// No descent direction with any admissible step size.
			res.X, res.F = x, f
			res.Converged = true
			return res, nil
		}

		res.X, res.F = x, f
		res.Iterations = iter + 1
		if relDecrease < tol || f <= 0 {
			res.Converged = true
			return res, nil
		}
	}

	errors.Warn(errors.NewConvergenceWarning("LineSearchDescent", maxIter, ""))
	return res, nil
}

func projectNonneg(x []float64) []float64 {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
	return x
}

func norm2(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s)
}
