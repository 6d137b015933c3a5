package sparsesc

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/core/parallel"
	"github.com/YuminosukeSato/sparsesc/pkg/errors"
)

// ridgeJitter keeps the per-fold system positive definite when the caller
// supplies a zero weight penalty.
const ridgeJitter = 1e-10

// foldData holds the pre-sliced matrices for one gradient fold: donor
// (train) features and outcomes, and target (test) features and outcomes.
type foldData struct {
	XT *mat.Dense
	XS *mat.Dense
	YT *mat.Dense
	YS *mat.Dense
}

// newFoldData slices X and Y along the given folds.
func newFoldData(x, y mat.Matrix, folds []Fold) []foldData {
	out := make([]foldData, len(folds))
	for i, fold := range folds {
		out[i] = foldData{
			XT: subsetRows(x, fold.Train),
			XS: subsetRows(x, fold.Test),
			YT: subsetRows(y, fold.Train),
			YS: subsetRows(y, fold.Test),
		}
	}
	return out
}

// newFixedFoldData builds the single-fold structure used by the
// prospective-restricted model type: all rows of x are donors and the
// treated block is the fixed test set.
func newFixedFoldData(x, y, xTreat, yTreat mat.Matrix) []foldData {
	return []foldData{{
		XT: mat.DenseCopyOf(x),
		XS: mat.DenseCopyOf(xTreat),
		YT: mat.DenseCopyOf(y),
		YS: mat.DenseCopyOf(yTreat),
	}}
}

// ridgeSolver factors the fold system A = X_T·diag(v)·X_Tᵀ + wPen·I once,
// so the weight solve and every coordinate of the analytic gradient reuse
// the same Cholesky decomposition.
type ridgeSolver struct {
	chol mat.Cholesky
	n    int
}

func newRidgeSolver(xt *mat.Dense, v []float64, wPen float64) (*ridgeSolver, error) {
	n, k := xt.Dims()
	if len(v) != k {
		return nil, errors.NewDimensionError("ridgeSolver", k, len(v), 1)
	}
	if wPen < ridgeJitter {
		wPen = ridgeJitter
	}

	// M = X_T · diag(v)
	m := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			m.Set(i, j, xt.At(i, j)*v[j])
		}
	}

	var a mat.Dense
	a.Mul(m, xt.T())

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, a.At(i, i)+wPen)
		for j := i + 1; j < n; j++ {
			// Average the off-diagonal pair to wash out rounding asymmetry.
			sym.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}

	rs := &ridgeSolver{n: n}
	if ok := rs.chol.Factorize(sym); !ok {
		return nil, errors.NewModelError("ridgeSolver", "fold system is not positive definite", errors.ErrSingularMatrix)
	}
	return rs, nil
}

// weights solves for the n×s matrix W whose column s holds the
// unconstrained ridge weights of target row s:
//
//	(X_T·diag(v)·X_Tᵀ + wPen·I) w_s = X_T·diag(v)·x_s + (wPen/n)·1
func (rs *ridgeSolver) weights(xt, xs *mat.Dense, v []float64, wPen float64) (*mat.Dense, error) {
	n, k := xt.Dims()
	s, _ := xs.Dims()
	if wPen < ridgeJitter {
		wPen = ridgeJitter
	}

	m := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			m.Set(i, j, xt.At(i, j)*v[j])
		}
	}

	b := mat.NewDense(n, s, nil)
	b.Mul(m, xs.T())
	uniform := wPen / float64(n)
	for i := 0; i < n; i++ {
		for j := 0; j < s; j++ {
			b.Set(i, j, b.At(i, j)+uniform)
		}
	}

	var w mat.Dense
	if err := rs.chol.SolveTo(&w, b); err != nil {
		return nil, errors.NewModelError("ridgeSolver", "solve failed", err)
	}
	return &w, nil
}

// gradientProblem evaluates the cross-fold reconstruction loss
//
//	L(v) = Σ_folds ‖Y_S − Wᵀ(v)·Y_T‖²_F + vPen·Σ_f v_f
//
// and its analytic gradient with respect to the diagonal of V. The gradient
// differentiates through the ridge weight solve: with A(v) the fold system
// and W = A⁻¹B,
//
//	∂W/∂v_f = A⁻¹·u_f·(c_fᵀ − u_fᵀW)
//
// where u_f and c_f are feature column f over the train and test units.
type gradientProblem struct {
	folds []foldData
	wPen  float64
	vPen  float64
	k     int
}

func newGradientProblem(folds []foldData, wPen, vPen float64) *gradientProblem {
	k := 0
	if len(folds) > 0 {
		_, k = folds[0].XT.Dims()
	}
	return &gradientProblem{folds: folds, wPen: wPen, vPen: vPen, k: k}
}

// value computes the penalized cross-fold loss at v. Fold contributions are
// evaluated in parallel and summed, which is order-independent.
func (p *gradientProblem) value(v []float64) (float64, error) {
	losses := make([]float64, len(p.folds))
	err := parallel.TryParallelize(len(p.folds), func(i int) error {
		loss, err := p.foldLoss(&p.folds[i], v)
		if err != nil {
			return err
		}
		losses[i] = loss
		return nil
	})
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, l := range losses {
		total += l
	}
	for _, vf := range v {
		total += p.vPen * vf
	}
	return total, nil
}

// grad computes the gradient of the penalized cross-fold loss at v.
func (p *gradientProblem) grad(v []float64) ([]float64, error) {
	partials := make([][]float64, len(p.folds))
	err := parallel.TryParallelize(len(p.folds), func(i int) error {
		g, err := p.foldGrad(&p.folds[i], v)
		if err != nil {
			return err
		}
		partials[i] = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	g := make([]float64, p.k)
	for _, partial := range partials {
		for f := range g {
			g[f] += partial[f]
		}
	}
	for f := range g {
		g[f] += p.vPen
	}
	return g, nil
}

// nullError is the unpenalized loss at V = 0, i.e. the reconstruction error
// of the near-uniform donor weighting. The optimizer scales its first step
// from it.
func (p *gradientProblem) nullError() (float64, error) {
	zero := make([]float64, p.k)
	loss, err := p.value(zero)
	if err != nil {
		return 0, err
	}
	// The penalty term vanishes at zero, so this is the pure loss.
	return loss, nil
}

func (p *gradientProblem) foldLoss(fd *foldData, v []float64) (float64, error) {
	rs, err := newRidgeSolver(fd.XT, v, p.wPen)
	if err != nil {
		return 0, err
	}
	w, err := rs.weights(fd.XT, fd.XS, v, p.wPen)
	if err != nil {
		return 0, err
	}

	var e mat.Dense
	e.Mul(w.T(), fd.YT)
	e.Sub(&e, fd.YS)

	loss := 0.0
	r, c := e.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := e.At(i, j)
			loss += d * d
		}
	}
	return loss, nil
}

func (p *gradientProblem) foldGrad(fd *foldData, v []float64) ([]float64, error) {
	rs, err := newRidgeSolver(fd.XT, v, p.wPen)
	if err != nil {
		return nil, err
	}
	w, err := rs.weights(fd.XT, fd.XS, v, p.wPen)
	if err != nil {
		return nil, err
	}

	n, _ := fd.XT.Dims()
	s, _ := fd.XS.Dims()

	// E = WᵀY_T − Y_S, G = Y_T·Eᵀ; then ∂L/∂v_f = 2·p_fᵀ·G·r_f with
	// p_f = A⁻¹u_f and r_f = c_f − Wᵀu_f.
	var e mat.Dense
	e.Mul(w.T(), fd.YT)
	e.Sub(&e, fd.YS)

	var g mat.Dense
	g.Mul(fd.YT, e.T())

	grad := make([]float64, p.k)
	pf := mat.NewVecDense(n, nil)
	uf := mat.NewVecDense(n, nil)
	rf := mat.NewVecDense(s, nil)
	wtu := mat.NewVecDense(s, nil)
	gr := mat.NewVecDense(n, nil)

	for f := 0; f < p.k; f++ {
		for i := 0; i < n; i++ {
			uf.SetVec(i, fd.XT.At(i, f))
		}
		if err := rs.chol.SolveVecTo(pf, uf); err != nil {
			return nil, errors.NewModelError("gradientProblem", "gradient solve failed", err)
		}

		wtu.MulVec(w.T(), uf)
		for i := 0; i < s; i++ {
			rf.SetVec(i, fd.XS.At(i, f)-wtu.AtVec(i))
		}

		gr.MulVec(&g, rf)
		grad[f] = 2 * mat.Dot(pf, gr)
	}
	return grad, nil
}

// subsetRows copies the given rows of m into a fresh dense matrix.
func subsetRows(m mat.Matrix, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}
	return out
}
