package sparsesc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sparsesc/pkg/errors"
	"github.com/YuminosukeSato/sparsesc/pkg/log"
	"github.com/YuminosukeSato/sparsesc/preprocessing"
)

// defaultGradientSeed matches the historical default used for gradient-fold
// shuffling; both fold structures are seeded from it unless overridden.
const defaultGradientSeed = 10101

// ModelType selects the data-partition and fold-construction policy of a
// fit.
type ModelType int

const (
	// ModelRetrospective trains on controls only and evaluates
	// generalization with standard CV folds over controls.
	ModelRetrospective ModelType = iota
	// ModelProspective trains on all units with gradient folds rebuilt so
	// treated units are always scored out-of-sample.
	ModelProspective
	// ModelProspectiveRestricted trains on controls and scores against the
	// treated rows as one fixed held-out block.
	ModelProspectiveRestricted
	// ModelFull fits every unit symmetrically, with no treated/control
	// split; used for purely descriptive synthetic control fitting.
	ModelFull
)

func (m ModelType) String() string {
	switch m {
	case ModelRetrospective:
		return "retrospective"
	case ModelProspective:
		return "prospective"
	case ModelProspectiveRestricted:
		return "prospective-restricted"
	case ModelFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseModelType converts the conventional string form of a model type.
func ParseModelType(s string) (ModelType, error) {
	switch s {
	case "retrospective":
		return ModelRetrospective, nil
	case "prospective":
		return ModelProspective, nil
	case "prospective-restricted":
		return ModelProspectiveRestricted, nil
	case "full":
		return ModelFull, nil
	default:
		return 0, errors.NewValidationError("model_type", "unknown model type", s)
	}
}

// PenaltyChoice is the policy for picking one covariate penalty from the
// scored grid. The zero value (and ChoiceMin) selects the penalty with the
// lowest cross-validation score; ChoiceFunc substitutes a custom rule.
type PenaltyChoice struct {
	name string
	fn   func(scores, penalties []float64) (float64, error)
}

// ChoiceMin selects the penalty with the minimum CV score.
var ChoiceMin = PenaltyChoice{name: "min"}

// ChoiceFunc wraps a custom selection rule. The function receives the fold
// scores and the penalty grid, positionally aligned, and returns the chosen
// penalty.
func ChoiceFunc(fn func(scores, penalties []float64) (float64, error)) PenaltyChoice {
	return PenaltyChoice{name: "custom", fn: fn}
}

func (c PenaltyChoice) String() string {
	if c.name == "" {
		return "min"
	}
	return c.name
}

func (c PenaltyChoice) pick(scores, penalties []float64) (float64, error) {
	if c.fn != nil {
		return c.fn(scores, penalties)
	}
	best := 0
	for i, s := range scores {
		if s < scores[best] {
			best = i
		}
	}
	return penalties[best], nil
}

// FitOptions configures Fit. DefaultFitOptions returns the conventional
// defaults; zero-valued knobs on a hand-built struct fall back to the same
// defaults, except WeightPenalty where zero means exactly zero (use NaN for
// the guestimate).
type FitOptions struct {
	// WeightPenalty shrinks donor weights toward the uniform 1/n
	// weighting. NaN requests the WPenGuestimate default.
	WeightPenalty float64

	// CovariatePenalties is the explicit grid of covariate penalties. A
	// single-element grid is used directly, skipping cross-validation.
	CovariatePenalties []float64

	// Grid holds relative grid points in (0, 1], scaled by MaxVPen when
	// CovariatePenalties is unset. Nil selects the log-spaced default.
	Grid []float64
	// MinVPen and MaxVPen bound the default grid. Defaults 1e-6 and 1.
	MinVPen float64
	MaxVPen float64
	// GridPoints is the size of the default grid. Default 20.
	GridPoints int

	// Choice picks a penalty from the scored grid. Default ChoiceMin.
	Choice PenaltyChoice

	// CVFolds is the number of outer cross-validation folds; CVFoldList
	// supplies them explicitly (indices into the training block).
	CVFolds    int
	CVFoldList []Fold

	// GradientFolds is the number of inner gradient folds; GradientFoldList
	// supplies them explicitly. For ModelProspective the indices cover all
	// units, otherwise the training block.
	GradientFolds    int
	GradientFoldList []Fold

	// GradientSeed makes every fold shuffle reproducible. Default 10101.
	GradientSeed int64

	// ModelType selects the data-partition policy. Default
	// ModelRetrospective.
	ModelType ModelType

	// CustomDonorPool restricts, per unit, which donors may receive
	// nonzero weight (N × number-of-donors). Applied only at final weight
	// assembly, never while fitting V or the penalties.
	CustomDonorPool [][]bool

	// Constraint selects the feasible set of the final weight solve.
	// Default ConstraintSimplex.
	Constraint Constraint

	// Progress enables the console progress bar during grid scoring.
	Progress bool

	// Standardize z-scores the feature columns before fitting.
	Standardize bool

	// Method and the knobs below are forwarded to the V optimizer.
	Method                 Optimizer
	LearningRate           float64
	LearningRateAdjustment float64
	Tol                    float64
	MaxIter                int
}

// DefaultFitOptions returns the conventional fitting configuration.
func DefaultFitOptions() *FitOptions {
	return &FitOptions{
		WeightPenalty: math.NaN(),
		MinVPen:       1e-6,
		MaxVPen:       1,
		GridPoints:    20,
		Choice:        ChoiceMin,
		CVFolds:       10,
		GradientFolds: 10,
		GradientSeed:  defaultGradientSeed,
		ModelType:     ModelRetrospective,
		Constraint:    ConstraintSimplex,
		Progress:      true,
	}
}

// Fit fits a Sparse Synthetic Control model.
//
// X is the N×K feature matrix and Y the N×T matrix of pre-treatment
// outcomes to reconstruct. treatedUnits lists the rows of X and Y holding
// treated units; it must be nil exactly when the model type is ModelFull.
//
// The pipeline resolves the model-type data partition, bounds the penalty
// grid with WPenGuestimate and MaxVPen, scores the grid with CVScore,
// selects a penalty, re-fits V with Tensor at that penalty and assembles
// the final per-unit donor weights with Weights. All configuration problems
// are detected before any expensive computation starts.
func Fit(x, y mat.Matrix, treatedUnits []int, opts *FitOptions) (*FitResult, error) {
	if opts == nil {
		opts = DefaultFitOptions()
	}

	n, k := x.Dims()
	yn, _ := y.Dims()
	if n == 0 || k == 0 {
		return nil, errors.NewModelError("Fit", "empty data", errors.ErrEmptyData)
	}
	if yn != n {
		return nil, errors.NewDimensionError("Fit", n, yn, 0)
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	if opts.Standardize {
		scaled, err := preprocessing.NewStandardScalerDefault().FitTransform(x)
		if err != nil {
			return nil, err
		}
		x = scaled
	}

	if treatedUnits == nil {
		return fitFull(x, y, opts)
	}
	return fitTreated(x, y, treatedUnits, opts)
}

// fitTreated handles the retrospective, prospective and
// prospective-restricted model types.
func fitTreated(x, y mat.Matrix, treatedUnits []int, opts *FitOptions) (*FitResult, error) {
	n, _ := x.Dims()

	if opts.ModelType == ModelFull {
		return nil, errors.NewValidationError("model_type", "ModelFull requires treatedUnits to be nil", opts.ModelType.String())
	}
	treated, controls, err := partitionUnits(n, treatedUnits)
	if err != nil {
		return nil, err
	}
	if err := validateDonorPool(opts.CustomDonorPool, n, len(controls)); err != nil {
		return nil, err
	}

	xTrain := subsetRows(x, controls)
	xTest := subsetRows(x, treated)
	yTrain := subsetRows(y, controls)
	yTest := subsetRows(y, treated)

	wPen := opts.WeightPenalty
	if math.IsNaN(wPen) {
		wPen = WPenGuestimate(xTrain)
	}

	logger := log.Logger().With().
		Str("model_type", opts.ModelType.String()).
		Int("treated", len(treated)).
		Int("controls", len(controls)).
		Logger()
	logger.Info().Float64("w_pen", wPen).Msg("fitting sparse synthetic control model")

	var (
		pens     []float64
		scores   []float64
		bestPen  float64
		bestV    *mat.DiagDense
		diag     OptimizeResult
		gradList []Fold
	)

	switch opts.ModelType {
	case ModelRetrospective:
		pens, err = resolvePenalties(xTrain, yTrain, wPen, opts)
		if err != nil {
			return nil, err
		}
		bestPen, scores, err = scoreAndChoose(xTrain, yTrain, pens, opts, &CVConfig{
			WPen:     wPen,
			Splits:   opts.CVFolds,
			FoldList: opts.CVFoldList,
			Seed:     opts.GradientSeed,

			GradSplits:   opts.GradientFolds,
			GradFoldList: opts.GradientFoldList,

			Progress:               opts.Progress,
			Method:                 opts.Method,
			LearningRate:           opts.LearningRate,
			LearningRateAdjustment: opts.LearningRateAdjustment,
			Tol:                    opts.Tol,
			MaxIter:                opts.MaxIter,
		})
		if err != nil {
			return nil, err
		}
		bestV, diag, err = Tensor(xTrain, yTrain, tensorConfigFor(opts, bestPen, wPen, opts.GradientFoldList, nil, nil))

	case ModelProspective:
		gradList, err = prospectiveGradientFolds(n, treated, controls, opts)
		if err != nil {
			return nil, err
		}
		pens, err = resolvePenaltiesWithFolds(x, y, wPen, opts, gradList)
		if err != nil {
			return nil, err
		}
		bestPen, scores, err = scoreAndChoose(x, y, pens, opts, &CVConfig{
			WPen:     wPen,
			Splits:   opts.CVFolds,
			FoldList: opts.CVFoldList,
			Seed:     opts.GradientSeed,

			GradFoldList: gradList,

			Progress:               opts.Progress,
			Method:                 opts.Method,
			LearningRate:           opts.LearningRate,
			LearningRateAdjustment: opts.LearningRateAdjustment,
			Tol:                    opts.Tol,
			MaxIter:                opts.MaxIter,
		})
		if err != nil {
			return nil, err
		}
		bestV, diag, err = Tensor(x, y, tensorConfigFor(opts, bestPen, wPen, gradList, nil, nil))

	case ModelProspectiveRestricted:
		pens, err = resolvePenalties(xTrain, yTrain, wPen, opts)
		if err != nil {
			return nil, err
		}
		bestPen, scores, err = scoreAndChoose(xTrain, yTrain, pens, opts, &CVConfig{
			WPen:   wPen,
			XTreat: xTest,
			YTreat: yTest,

			Progress:               opts.Progress,
			Method:                 opts.Method,
			LearningRate:           opts.LearningRate,
			LearningRateAdjustment: opts.LearningRateAdjustment,
			Tol:                    opts.Tol,
			MaxIter:                opts.MaxIter,
		})
		if err != nil {
			return nil, err
		}
		bestV, diag, err = Tensor(xTrain, yTrain, tensorConfigFor(opts, bestPen, wPen, nil, xTest, yTest))

	default:
		return nil, errors.NewValidationError("model_type", "unknown model type", opts.ModelType)
	}
	if err != nil {
		return nil, err
	}

	// Final weights: treated and control rows are fit independently, each
	// against its own slice of the optional donor-pool mask, and written
	// into disjoint row ranges of one combined matrix.
	var poolT, poolC [][]bool
	if opts.CustomDonorPool != nil {
		poolT = subsetPool(opts.CustomDonorPool, treated)
		poolC = subsetPool(opts.CustomDonorPool, controls)
	}

	wTreat, err := Weights(xTrain, xTest, bestV, wPen, &WeightOptions{Constraint: opts.Constraint, DonorPool: poolT})
	if err != nil {
		return nil, err
	}
	wCtrl, err := Weights(xTrain, nil, bestV, wPen, &WeightOptions{Constraint: opts.Constraint, DonorPool: poolC})
	if err != nil {
		return nil, err
	}

	scWeights := mat.NewDense(n, len(controls), nil)
	for ti, u := range treated {
		for j := 0; j < len(controls); j++ {
			scWeights.Set(u, j, wTreat.At(ti, j))
		}
	}
	for ci, u := range controls {
		for j := 0; j < len(controls); j++ {
			scWeights.Set(u, j, wCtrl.At(ci, j))
		}
	}
	if err := errors.CheckMatrix("Fit", scWeights, n, len(controls), diag.Iterations); err != nil {
		return nil, err
	}

	logger.Info().Float64("v_pen", bestPen).Int("iterations", diag.Iterations).Msg("fit complete")

	return &FitResult{
		X:                  x,
		Y:                  y,
		ControlUnits:       controls,
		TreatedUnits:       treated,
		ModelType:          opts.ModelType,
		VPen:               bestPen,
		WPen:               wPen,
		CovariatePenalties: pens,
		Scores:             scores,
		V:                  bestV,
		SCWeights:          scWeights,
		Diagnostics:        diag,
	}, nil
}

// fitFull handles the full model type: no treated/control split, every
// unit fit symmetrically with leave-one-out donors.
func fitFull(x, y mat.Matrix, opts *FitOptions) (*FitResult, error) {
	n, _ := x.Dims()

	if opts.ModelType != ModelFull {
		return nil, errors.NewValidationError("model_type", "treatedUnits is required unless the model type is ModelFull", opts.ModelType.String())
	}
	if err := validateDonorPool(opts.CustomDonorPool, n, n); err != nil {
		return nil, err
	}

	wPen := opts.WeightPenalty
	if math.IsNaN(wPen) {
		wPen = WPenGuestimate(x)
	}

	logger := log.Logger()
	logger.Info().
		Str("model_type", opts.ModelType.String()).
		Int("units", n).
		Float64("w_pen", wPen).
		Msg("fitting sparse synthetic control model")

	pens, err := resolvePenalties(x, y, wPen, opts)
	if err != nil {
		return nil, err
	}
	bestPen, scores, err := scoreAndChoose(x, y, pens, opts, &CVConfig{
		WPen:     wPen,
		Splits:   opts.CVFolds,
		FoldList: opts.CVFoldList,
		Seed:     opts.GradientSeed,

		GradSplits:   opts.GradientFolds,
		GradFoldList: opts.GradientFoldList,

		Progress:               opts.Progress,
		Method:                 opts.Method,
		LearningRate:           opts.LearningRate,
		LearningRateAdjustment: opts.LearningRateAdjustment,
		Tol:                    opts.Tol,
		MaxIter:                opts.MaxIter,
	})
	if err != nil {
		return nil, err
	}

	bestV, diag, err := Tensor(x, y, tensorConfigFor(opts, bestPen, wPen, opts.GradientFoldList, nil, nil))
	if err != nil {
		return nil, err
	}

	scWeights, err := Weights(x, nil, bestV, wPen, &WeightOptions{Constraint: opts.Constraint, DonorPool: opts.CustomDonorPool})
	if err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix("Fit", scWeights, n, n, diag.Iterations); err != nil {
		return nil, err
	}

	return &FitResult{
		X:                  x,
		Y:                  y,
		ModelType:          opts.ModelType,
		VPen:               bestPen,
		WPen:               wPen,
		CovariatePenalties: pens,
		Scores:             scores,
		V:                  bestV,
		SCWeights:          scWeights,
		Diagnostics:        diag,
	}, nil
}

// scoreAndChoose runs grid scoring and applies the penalty-selection
// policy. A single-element grid is used directly, skipping the scoring
// pass entirely.
func scoreAndChoose(x, y mat.Matrix, pens []float64, opts *FitOptions, cfg *CVConfig) (float64, []float64, error) {
	if len(pens) == 1 {
		return pens[0], nil, nil
	}
	scores, err := CVScore(x, y, pens, cfg)
	if err != nil {
		return 0, nil, err
	}
	best, err := opts.Choice.pick(scores, pens)
	if err != nil {
		return 0, nil, err
	}
	return best, scores, nil
}

// resolvePenalties returns the covariate-penalty grid: the explicit grid
// when supplied, otherwise the default relative grid scaled by MaxVPen.
func resolvePenalties(x, y mat.Matrix, wPen float64, opts *FitOptions) ([]float64, error) {
	return resolvePenaltiesWithFolds(x, y, wPen, opts, opts.GradientFoldList)
}

func resolvePenaltiesWithFolds(x, y mat.Matrix, wPen float64, opts *FitOptions, gradFolds []Fold) ([]float64, error) {
	if opts.CovariatePenalties != nil {
		if len(opts.CovariatePenalties) == 0 {
			return nil, errors.NewValidationError("covariate_penalties", "must not be empty", opts.CovariatePenalties)
		}
		return append([]float64(nil), opts.CovariatePenalties...), nil
	}

	grid := opts.Grid
	if grid == nil {
		grid = logGrid(opts.MinVPen, opts.MaxVPen, opts.GridPoints)
	}

	n, _ := x.Dims()
	cfg := &PenaltyConfig{GradSplits: opts.GradientFolds, Seed: opts.GradientSeed}
	if gradFolds != nil {
		if err := validateFolds("Fit", gradFolds, n); err != nil {
			return nil, err
		}
		cfg.GradFoldList = gradFolds
	}
	bound, err := MaxVPen(x, y, wPen, cfg)
	if err != nil {
		return nil, err
	}

	pens := make([]float64, len(grid))
	for i, g := range grid {
		pens[i] = g * bound
	}
	return pens, nil
}

// logGrid builds the default grid exp(linspace(log(min), log(max), points)).
func logGrid(minVPen, maxVPen float64, points int) []float64 {
	if minVPen <= 0 {
		minVPen = 1e-6
	}
	if maxVPen <= 0 {
		maxVPen = 1
	}
	if points <= 0 {
		points = 20
	}
	if points == 1 {
		return []float64{maxVPen}
	}

	lo, hi := math.Log(minVPen), math.Log(maxVPen)
	grid := make([]float64, points)
	for i := range grid {
		t := float64(i) / float64(points-1)
		grid[i] = math.Exp(lo + t*(hi-lo))
	}
	return grid
}

// prospectiveGradientFolds builds the gradient folds for ModelProspective:
// a seeded split over all units reshaped so treated units are trained on in
// every fold and scored in none, plus the (controls, treated) fold. A
// user-supplied list is used verbatim when some fold already tests exactly
// the treated set, and re-formed with a warning otherwise.
func prospectiveGradientFolds(n int, treated, controls []int, opts *FitOptions) ([]Fold, error) {
	if opts.GradientFoldList != nil {
		if err := validateFolds("Fit", opts.GradientFoldList, n); err != nil {
			return nil, err
		}
		if hasTreatedTestFold(opts.GradientFoldList, treated) {
			return opts.GradientFoldList, nil
		}
		errors.Warn(errors.NewFoldRebuildWarning(ModelProspective.String()))
		return prospectiveFolds(opts.GradientFoldList, treated, controls), nil
	}

	splits := opts.GradientFolds
	if splits <= 0 {
		splits = 10
	}
	seed := opts.GradientSeed
	if seed == 0 {
		seed = defaultGradientSeed
	}
	base, err := KFoldSplit(n, splits, seed)
	if err != nil {
		return nil, err
	}
	return prospectiveFolds(base, treated, controls), nil
}

func tensorConfigFor(opts *FitOptions, vPen, wPen float64, gradFolds []Fold, xTreat, yTreat mat.Matrix) *TensorConfig {
	return &TensorConfig{
		VPen:         vPen,
		WPen:         wPen,
		GradSplits:   opts.GradientFolds,
		GradFoldList: gradFolds,
		Seed:         opts.GradientSeed,
		XTreat:       xTreat,
		YTreat:       yTreat,

		Method:                 opts.Method,
		LearningRate:           opts.LearningRate,
		LearningRateAdjustment: opts.LearningRateAdjustment,
		Tol:                    opts.Tol,
		MaxIter:                opts.MaxIter,
	}
}

// partitionUnits validates treatedUnits and returns sorted treated and
// control index sets partitioning 0..n-1.
func partitionUnits(n int, treatedUnits []int) (treated, controls []int, err error) {
	if len(treatedUnits) == 0 {
		return nil, nil, errors.NewValidationError("treated_units", "must contain at least one unit", treatedUnits)
	}

	seen := make(map[int]struct{}, len(treatedUnits))
	for _, u := range treatedUnits {
		if u < 0 || u >= n {
			return nil, nil, errors.NewValidationError("treated_units", "unit index out of range", u)
		}
		if _, dup := seen[u]; dup {
			return nil, nil, errors.NewValidationError("treated_units", "duplicated values are not allowed", u)
		}
		seen[u] = struct{}{}
	}

	treated = append([]int(nil), treatedUnits...)
	sort.Ints(treated)

	controls = make([]int, 0, n-len(treated))
	for u := 0; u < n; u++ {
		if _, ok := seen[u]; !ok {
			controls = append(controls, u)
		}
	}
	if len(controls) == 0 {
		return nil, nil, errors.NewValidationError("treated_units", "every unit is treated; no donors remain", len(treatedUnits))
	}
	return treated, controls, nil
}

func validateOptions(opts *FitOptions) error {
	if !math.IsNaN(opts.WeightPenalty) && opts.WeightPenalty < 0 {
		return errors.NewValidationError("weight_penalty", "must be nonnegative", opts.WeightPenalty)
	}
	if opts.MinVPen < 0 || opts.MaxVPen < 0 {
		return errors.NewValidationError("min_v_pen/max_v_pen", "must be nonnegative", opts.MinVPen)
	}
	for _, p := range opts.CovariatePenalties {
		if p < 0 {
			return errors.NewValidationError("covariate_penalties", "must be nonnegative", p)
		}
	}
	for _, g := range opts.Grid {
		if g <= 0 {
			return errors.NewValidationError("grid", "grid points must be positive", g)
		}
	}
	switch opts.Constraint {
	case ConstraintSimplex, ConstraintOrthant, ConstraintNone:
	default:
		return errors.NewValidationError("constraint", "unknown constraint set", opts.Constraint)
	}
	return nil
}

func validateDonorPool(pool [][]bool, n, donors int) error {
	if pool == nil {
		return nil
	}
	if len(pool) != n {
		return errors.NewValidationError("custom_donor_pool", "must have one row per unit", len(pool))
	}
	for i, row := range pool {
		if len(row) != donors {
			return errors.NewValidationError("custom_donor_pool", "row width must equal the number of donors", i)
		}
	}
	return nil
}

func subsetPool(pool [][]bool, rows []int) [][]bool {
	out := make([][]bool, len(rows))
	for i, r := range rows {
		out[i] = pool[r]
	}
	return out
}
