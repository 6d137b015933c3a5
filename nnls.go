package sparsesc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
)

// nnls solves min ‖Ax − b‖₂ subject to x ≥ 0 with the Lawson–Hanson
// active-set method. Columns move between the zero (active) set and the
// passive set; at each outer step the most violated dual coordinate enters
// the passive set and an unconstrained least-squares subproblem is solved
// on the passive columns, backtracking along the segment to the previous
// iterate whenever the subproblem solution turns a passive coordinate
// negative.
//
// maxIter <= 0 selects the conventional 3n budget. Exhausting the budget is
// reported as a ConvergenceWarning and the current (feasible) iterate is
// returned.
func nnls(a *mat.Dense, b *mat.VecDense, maxIter int) ([]float64, error) {
	m, n := a.Dims()
	if b.Len() != m {
		return nil, errors.NewDimensionError("nnls", m, b.Len(), 0)
	}
	if maxIter <= 0 {
		maxIter = 3 * n
	}

	const dualTol = 1e-10

	x := make([]float64, n)
	passive := make([]bool, n)
	nPassive := 0

	// Residual r = b − Ax. x starts at zero, so r starts at b.
	resid := mat.NewVecDense(m, nil)
	resid.CopyVec(b)

	w := make([]float64, n)
	iter := 0

	for {
		// Dual vector w = Aᵀr; only coordinates in the zero set matter.
		for j := 0; j < n; j++ {
			if passive[j] {
				w[j] = 0
				continue
			}
			w[j] = mat.Dot(a.ColView(j), resid)
		}

		// Most violated KKT coordinate enters the passive set.
		jMax, wMax := -1, dualTol
		for j := 0; j < n; j++ {
			if !passive[j] && w[j] > wMax {
				jMax, wMax = j, w[j]
			}
		}
		if jMax < 0 || nPassive == min(m, n) {
			return x, nil
		}
		passive[jMax] = true
		nPassive++

		for {
			iter++
			if iter > maxIter {
				errors.Warn(errors.NewConvergenceWarning("nnls", maxIter, "active-set iteration budget exhausted"))
				return x, nil
			}

			z, ok := solvePassive(a, b, passive, nPassive)
			if !ok {
				// Near-dependent column; drop it back to the zero set.
				passive[jMax] = false
				nPassive--
				w[jMax] = 0
				break
			}

			// Feasible subproblem solution: accept and return to the
			// dual test.
			if allPositive(z, passive, n) {
				zi := 0
				for j := 0; j < n; j++ {
					if passive[j] {
						x[j] = z[zi]
						zi++
					} else {
						x[j] = 0
					}
				}
				break
			}

			// Backtrack x toward z until the first passive coordinate
			// hits zero, then retire every zeroed coordinate.
			alpha := math.Inf(1)
			zi := 0
			for j := 0; j < n; j++ {
				if !passive[j] {
					continue
				}
				if z[zi] <= 0 {
					t := x[j] / (x[j] - z[zi])
					if t < alpha {
						alpha = t
					}
				}
				zi++
			}

			zi = 0
			for j := 0; j < n; j++ {
				if !passive[j] {
					continue
				}
				x[j] += alpha * (z[zi] - x[j])
				zi++
			}
			for j := 0; j < n; j++ {
				if passive[j] && x[j] <= 1e-14 {
					x[j] = 0
					passive[j] = false
					nPassive--
				}
			}
			if nPassive == 0 {
				break
			}
		}

		// Refresh the residual for the next dual evaluation.
		xv := mat.NewVecDense(n, x)
		var ax mat.VecDense
		ax.MulVec(a, xv)
		resid.SubVec(b, &ax)
	}
}

// solvePassive solves the unconstrained least-squares problem restricted to
// the passive columns of a. Returns ok=false when the passive submatrix is
// numerically rank deficient.
func solvePassive(a *mat.Dense, b *mat.VecDense, passive []bool, nPassive int) ([]float64, bool) {
	m, n := a.Dims()
	sub := mat.NewDense(m, nPassive, nil)
	col := 0
	for j := 0; j < n; j++ {
		if !passive[j] {
			continue
		}
		for i := 0; i < m; i++ {
			sub.Set(i, col, a.At(i, j))
		}
		col++
	}

	var z mat.VecDense
	if err := z.SolveVec(sub, b); err != nil {
		return nil, false
	}
	out := make([]float64, nPassive)
	for i := range out {
		v := z.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func allPositive(z []float64, passive []bool, n int) bool {
	zi := 0
	for j := 0; j < n; j++ {
		if !passive[j] {
			continue
		}
		if z[zi] <= 0 {
			return false
		}
		zi++
	}
	return true
}
