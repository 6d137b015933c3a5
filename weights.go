package sparsesc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/core/parallel"
	"github.com/YuminosukeSato/sparsesc/pkg/errors"
)

// Constraint selects the feasible set of the per-unit donor-weight program.
type Constraint int

const (
	// ConstraintSimplex requires nonnegative weights that sum to one.
	// This is the classic synthetic control constraint and the default.
	ConstraintSimplex Constraint = iota
	// ConstraintOrthant requires nonnegative weights only.
	ConstraintOrthant
	// ConstraintNone solves the unconstrained ridge problem. This is the
	// differentiable path the V optimizer uses internally.
	ConstraintNone
)

func (c Constraint) String() string {
	switch c {
	case ConstraintSimplex:
		return "simplex"
	case ConstraintOrthant:
		return "orthant"
	case ConstraintNone:
		return "none"
	default:
		return "unknown"
	}
}

// defaultSumWeight is the penalty weight on the sum-to-one row under
// ConstraintSimplex. Large relative to the data terms so the constraint
// holds to solver tolerance.
const defaultSumWeight = 1e6

// WeightOptions configures the donor-weight solve.
type WeightOptions struct {
	// Constraint selects the feasible set. Default ConstraintSimplex.
	Constraint Constraint

	// DonorPool restricts which donors may receive nonzero weight per
	// target row (nTargets × nDonors). Nil allows every donor. Weights at
	// disallowed columns are exactly zero in the result.
	DonorPool [][]bool

	// SumWeight overrides the sum-to-one penalty weight under
	// ConstraintSimplex. Zero selects the default.
	SumWeight float64

	// MaxIter bounds the active-set iterations of the nonnegative solve
	// per row. Zero selects the conventional bound.
	MaxIter int
}

// Weights solves the per-unit donor-weight program: for each target row t,
// minimize
//
//	‖V^{1/2}(x_t − Xtrainᵀ w)‖² + wPen·‖w − 1/n‖²
//
// over the configured constraint set, restricted to the donors the target's
// donor pool allows. Rows are independent and solved in parallel.
//
// When xTest is nil the targets are the rows of xTrain themselves and each
// row is excluded from its own donor pool (leave-one-out), so a unit never
// becomes its own donor.
//
// The returned matrix is nTargets × nDonors. A target whose effective donor
// pool is empty fails the whole solve with a DonorPoolError.
func Weights(xTrain, xTest mat.Matrix, v *mat.DiagDense, wPen float64, opts *WeightOptions) (*mat.Dense, error) {
	if opts == nil {
		opts = &WeightOptions{}
	}

	nDonors, k := xTrain.Dims()
	if nDonors == 0 || k == 0 {
		return nil, errors.NewModelError("Weights", "empty donor matrix", errors.ErrEmptyData)
	}
	if vd, _ := v.Dims(); vd != k {
		return nil, errors.NewDimensionError("Weights", k, vd, 1)
	}
	for j := 0; j < k; j++ {
		if v.At(j, j) < 0 {
			return nil, errors.NewValueError("Weights", "V must be nonnegative")
		}
	}
	if wPen < 0 {
		return nil, errors.NewValueError("Weights", "weight penalty must be nonnegative")
	}

	loo := xTest == nil
	var nTargets int
	if loo {
		nTargets = nDonors
	} else {
		var tc int
		nTargets, tc = xTest.Dims()
		if tc != k {
			return nil, errors.NewDimensionError("Weights", k, tc, 1)
		}
	}
	if opts.DonorPool != nil && len(opts.DonorPool) != nTargets {
		return nil, errors.NewDimensionError("Weights", nTargets, len(opts.DonorPool), 0)
	}

	sqrtV := make([]float64, k)
	for j := 0; j < k; j++ {
		sqrtV[j] = math.Sqrt(v.At(j, j))
	}

	sumWeight := opts.SumWeight
	if sumWeight == 0 {
		sumWeight = defaultSumWeight
	}

	out := mat.NewDense(nTargets, nDonors, nil)
	err := parallel.TryParallelize(nTargets, func(t int) error {
		donors := allowedDonors(t, nDonors, loo, opts.DonorPool)
		if len(donors) == 0 {
			return errors.NewDonorPoolError("Weights", t)
		}

		var target []float64
		if loo {
			target = rowOf(xTrain, t, k)
		} else {
			target = rowOf(xTest, t, k)
		}

		w, err := solveRow(xTrain, target, donors, sqrtV, wPen, sumWeight, opts.Constraint, opts.MaxIter)
		if err != nil {
			return err
		}
		for di, j := range donors {
			out.Set(t, j, w[di])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// solveRow builds and solves the stacked least-squares system for one
// target. The system has one row per feature, one ridge row per allowed
// donor when wPen > 0, and one sum-to-one row under ConstraintSimplex:
//
//	[ √V · Xᵀ   ]       [ √V · x_t          ]
//	[ √wPen · I ] w  ≅  [ √wPen · (1/n) · 1 ]
//	[ √μ  · 1ᵀ  ]       [ √μ                ]
func solveRow(xTrain mat.Matrix, target []float64, donors []int, sqrtV []float64, wPen, sumWeight float64, constraint Constraint, maxIter int) ([]float64, error) {
	k := len(sqrtV)
	n := len(donors)

	rows := k
	if wPen > 0 {
		rows += n
	}
	if constraint == ConstraintSimplex {
		rows++
	}

	a := mat.NewDense(rows, n, nil)
	b := mat.NewVecDense(rows, nil)

	for f := 0; f < k; f++ {
		if sqrtV[f] == 0 {
			continue
		}
		for di, j := range donors {
			a.Set(f, di, sqrtV[f]*xTrain.At(j, f))
		}
		b.SetVec(f, sqrtV[f]*target[f])
	}

	row := k
	if wPen > 0 {
		sq := math.Sqrt(wPen)
		uniform := sq / float64(n)
		for di := 0; di < n; di++ {
			a.Set(row+di, di, sq)
			b.SetVec(row+di, uniform)
		}
		row += n
	}
	if constraint == ConstraintSimplex {
		sq := math.Sqrt(sumWeight)
		for di := 0; di < n; di++ {
			a.Set(row, di, sq)
		}
		b.SetVec(row, sq)
	}

	if constraint == ConstraintNone {
		var z mat.VecDense
		if err := z.SolveVec(a, b); err != nil {
			return nil, errors.NewModelError("Weights", "singular system", errors.ErrSingularMatrix)
		}
		w := make([]float64, n)
		for i := range w {
			w[i] = z.AtVec(i)
		}
		return w, nil
	}

	return nnls(a, b, maxIter)
}

// allowedDonors resolves the effective donor pool for one target row.
func allowedDonors(t, nDonors int, loo bool, pool [][]bool) []int {
	donors := make([]int, 0, nDonors)
	for j := 0; j < nDonors; j++ {
		if loo && j == t {
			continue
		}
		if pool != nil && !pool[t][j] {
			continue
		}
		donors = append(donors, j)
	}
	return donors
}

func rowOf(m mat.Matrix, i, cols int) []float64 {
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		out[j] = m.At(i, j)
	}
	return out
}
