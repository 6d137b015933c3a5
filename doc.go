// Package sparsesc fits Sparse Synthetic Control models.
//
// Given a panel of units observed over pre- and post-treatment periods, the
// package learns a diagonal feature-importance matrix V over covariates and
// a sparse per-unit weighting of donor (control) units that reconstructs
// each unit's pre-treatment outcome trajectory. The fitted weights yield a
// counterfactual prediction for treated units.
//
// The entry point is Fit, which cross-validates a grid of covariate
// penalties, learns V by projected gradient descent at the selected penalty
// and assembles per-unit donor weights through a constrained least-squares
// solve:
//
//	result, err := sparsesc.Fit(X, Y, treated, sparsesc.DefaultFitOptions())
//	if err != nil {
//	    ...
//	}
//	counterfactual, err := result.Predict(nil)
//
// The lower-level pieces (Weights, Tensor, CVScore, WPenGuestimate, MaxVPen,
// KFoldSplit) are exported for callers that need to drive the pipeline
// manually, e.g. placebo and permutation testing wrappers.
package sparsesc
