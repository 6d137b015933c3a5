// Package preprocessing provides feature standardization for synthetic
// control fitting. The donor-weight solve assumes covariates on a common
// scale; StandardScaler brings a raw feature matrix there.
package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
)

// StandardScaler centers each feature column to mean zero and rescales it
// to unit standard deviation. Constant columns keep scale 1 so they pass
// through unchanged rather than dividing by zero.
type StandardScaler struct {
	// Mean holds the per-feature mean learned by Fit.
	Mean []float64
	// Scale holds the per-feature standard deviation learned by Fit.
	Scale []float64
	// NFeatures is the number of feature columns seen by Fit.
	NFeatures int

	// WithMean controls whether the mean is subtracted. Default true.
	WithMean bool
	// WithStd controls whether columns are divided by their standard
	// deviation. Default true.
	WithStd bool

	fitted bool
}

// NewStandardScaler creates a StandardScaler with the given centering and
// scaling behavior.
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{WithMean: withMean, WithStd: withStd}
}

// NewStandardScalerDefault creates a StandardScaler that both centers and
// scales.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit learns the per-column mean and standard deviation of x.
func (s *StandardScaler) Fit(x mat.Matrix) error {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.NFeatures = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	for j := 0; j < c; j++ {
		if s.WithMean {
			sum := 0.0
			for i := 0; i < r; i++ {
				sum += x.At(i, j)
			}
			s.Mean[j] = sum / float64(r)
		}

		s.Scale[j] = 1.0
		if s.WithStd {
			var ss float64
			for i := 0; i < r; i++ {
				d := x.At(i, j) - s.Mean[j]
				ss += d * d
			}
			sd := math.Sqrt(ss / float64(r))
			if sd > 0 {
				s.Scale[j] = sd
			}
		}
	}

	s.fitted = true
	return nil
}

// Transform applies the learned standardization to x.
func (s *StandardScaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	if !s.fitted {
		return nil, errors.NewValueError("StandardScaler.Transform", "scaler has not been fitted")
	}
	r, c := x.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (x.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return out, nil
}

// FitTransform fits the scaler on x and returns the standardized matrix.
func (s *StandardScaler) FitTransform(x mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}

// InverseTransform maps a standardized matrix back to the original scale.
func (s *StandardScaler) InverseTransform(x mat.Matrix) (*mat.Dense, error) {
	if !s.fitted {
		return nil, errors.NewValueError("StandardScaler.InverseTransform", "scaler has not been fitted")
	}
	r, c := x.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.NFeatures, c, 1)
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, x.At(i, j)*s.Scale[j]+s.Mean[j])
		}
	}
	return out, nil
}
