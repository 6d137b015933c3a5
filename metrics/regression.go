// Package metrics implements the reconstruction-error metrics used to score
// synthetic control fits.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
)

// SSR computes the sum of squared residuals between two equally shaped
// matrices. This is the commutative per-fold quantity accumulated by the
// cross-validation scorer, so parallel fold evaluation can never change the
// total.
func SSR(yTrue, yPred mat.Matrix) (float64, error) {
	r, c := yTrue.Dims()
	rp, cp := yPred.Dims()

	if r == 0 || c == 0 {
		return 0, errors.NewValueError("SSR", "empty matrix")
	}
	if r != rp || c != cp {
		return 0, errors.NewDimensionError("SSR", r, rp, 0)
	}

	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			diff := yTrue.At(i, j) - yPred.At(i, j)
			sum += diff * diff
		}
	}
	return sum, nil
}

// MSE computes the mean squared error between two equally shaped matrices.
func MSE(yTrue, yPred mat.Matrix) (float64, error) {
	ssr, err := SSR(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	r, c := yTrue.Dims()
	return ssr / float64(r*c), nil
}

// RMSE computes the root mean squared error between two equally shaped
// matrices.
func RMSE(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// R2Score computes the coefficient of determination of a reconstruction,
// with the total sum of squares taken around the grand mean of yTrue.
func R2Score(yTrue, yPred mat.Matrix) (float64, error) {
	r, c := yTrue.Dims()
	rp, cp := yPred.Dims()

	if r == 0 || c == 0 {
		return 0, errors.NewValueError("R2Score", "empty matrix")
	}
	if r != rp || c != cp {
		return 0, errors.NewDimensionError("R2Score", r, rp, 0)
	}

	var mean float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			mean += yTrue.At(i, j)
		}
	}
	mean /= float64(r * c)

	var tss, rss float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			yt := yTrue.At(i, j)
			yp := yPred.At(i, j)
			tss += (yt - mean) * (yt - mean)
			rss += (yt - yp) * (yt - yp)
		}
	}

	if tss == 0 {
		return 0, errors.Newf("total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}
