package sparsesc

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
)

// FitResult is the outcome of a completed Fit. It is immutable: every
// field is written once during fitting and only read afterward, so a
// result can be shared across goroutines without synchronization.
type FitResult struct {
	// X and Y are the fitted feature and target matrices (standardized
	// when the Standardize option was set).
	X mat.Matrix
	Y mat.Matrix

	// ControlUnits and TreatedUnits are the sorted row-index partitions.
	// Both are nil for ModelFull.
	ControlUnits []int
	TreatedUnits []int

	// ModelType is the partition policy the model was fit under.
	ModelType ModelType

	// VPen and WPen are the selected covariate penalty and the resolved
	// weight penalty.
	VPen float64
	WPen float64

	// CovariatePenalties is the scored penalty grid and Scores its
	// positionally aligned cross-validation scores. Scores is nil when
	// a single penalty was supplied and scoring was skipped.
	CovariatePenalties []float64
	Scores             []float64

	// V is the fitted diagonal matrix of covariate importances.
	V *mat.DiagDense

	// SCWeights holds one donor-weight row per unit: N × C for the
	// treated model types (columns indexed by ControlUnits), N × N with a
	// zero diagonal for ModelFull.
	SCWeights *mat.Dense

	// Diagnostics reports the optimizer run that produced V.
	Diagnostics OptimizeResult
}

// Predict builds synthetic outcomes as SCWeights times the donor outcome
// matrix. With a nil argument the model's own targets are used: the
// control rows of Y for the treated model types, all of Y for ModelFull.
// yDonor may carry any number of columns, so post-treatment outcomes
// produce counterfactual predictions.
func (r *FitResult) Predict(yDonor mat.Matrix) (*mat.Dense, error) {
	if r.SCWeights == nil {
		return nil, errors.NewModelError("Predict", "not fitted", errors.ErrNotFitted)
	}
	if yDonor == nil {
		if r.ModelType == ModelFull {
			yDonor = r.Y
		} else {
			yDonor = subsetRows(r.Y, r.ControlUnits)
		}
	}

	_, donors := r.SCWeights.Dims()
	dr, _ := yDonor.Dims()
	if dr != donors {
		return nil, errors.NewDimensionError("Predict", donors, dr, 0)
	}

	var out mat.Dense
	out.Mul(r.SCWeights, yDonor)
	return &out, nil
}

// String renders a short human-readable fit summary.
func (r *FitResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model type: %s\n", r.ModelType)
	fmt.Fprintf(&b, "V penalty: %g\n", r.VPen)
	fmt.Fprintf(&b, "W penalty: %g\n", r.WPen)
	if r.V != nil {
		fmt.Fprintf(&b, "V: %v\n", diagOf(r.V))
	}
	if len(r.TreatedUnits) > 0 {
		fmt.Fprintf(&b, "Treated units: %d, control units: %d\n", len(r.TreatedUnits), len(r.ControlUnits))
	}
	return b.String()
}
