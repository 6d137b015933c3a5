// Package errors provides the error and warning taxonomy used throughout
// sparsesc. Configuration problems surface as structured errors carrying
// stack traces (via cockroachdb/errors); recoverable numerical conditions
// are routed through a process-wide warning handler instead of failing the
// fit.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Warning handling
//
// ===========================================================================

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("sparsesc-warning: %v\n", w)
	}
	// zerolog sink, installed lazily by pkg/log to avoid an import cycle.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the process-wide warning handler. Useful for
// silencing ConvergenceWarning in batch runs, or for capturing warnings in
// tests.
//
// Example:
//
//	errors.SetWarningHandler(func(w error) {})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog-backed warning sink. Takes priority
// over the plain handler once set.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a warning through the configured sink. Warnings never abort a
// fit; they flag conditions (non-convergence, degenerate gradients) the
// caller may want to inspect through the returned diagnostics.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// ConvergenceWarning is emitted when an optimizer exhausts its iteration
// budget before meeting its stopping tolerance. The best point found is
// still returned to the caller.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing MaxIter or loosening Tol.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// ZeroGradientWarning is emitted when the objective gradient vanishes at the
// starting point, which usually means the problem is degenerate (for
// example, a weight penalty so large the covariates carry no signal).
type ZeroGradientWarning struct {
	Op      string
	Message string
}

func (w *ZeroGradientWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s: gradient is zero at the initial point: %s", w.Op, w.Message)
	}
	return fmt.Sprintf("%s: gradient is zero at the initial point; the problem may be degenerate (e.g. weight penalty too large)", w.Op)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *ZeroGradientWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("operation", w.Op).
		Str("message", w.Message).
		Str("type", "ZeroGradientWarning")
}

// NewZeroGradientWarning creates a new ZeroGradientWarning.
func NewZeroGradientWarning(op, message string) *ZeroGradientWarning {
	return &ZeroGradientWarning{Op: op, Message: message}
}

// FoldRebuildWarning is emitted when user-supplied gradient folds are
// re-formed to satisfy the requirements of the prospective model type.
type FoldRebuildWarning struct {
	ModelType string
}

func (w *FoldRebuildWarning) Error() string {
	return fmt.Sprintf("user supplied gradient folds were re-formed for compatibility with model type %q", w.ModelType)
}

// NewFoldRebuildWarning creates a new FoldRebuildWarning.
func NewFoldRebuildWarning(modelType string) *FoldRebuildWarning {
	return &FoldRebuildWarning{ModelType: modelType}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// DonorPoolError reports a target unit whose effective donor pool is empty,
// e.g. every donor masked out, or a leave-one-out row with a single donor.
// The weight solver fails loudly with this error instead of returning NaN
// weights that would silently corrupt downstream predictions.
type DonorPoolError struct {
	Op   string
	Unit int
}

func (e *DonorPoolError) Error() string {
	return fmt.Sprintf("sparsesc: %s: unit %d has an empty effective donor pool", e.Op, e.Unit)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DonorPoolError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("unit", e.Unit).
		Str("type", "DonorPoolError")
}

// NewDonorPoolError creates a new DonorPoolError with a stack trace attached.
func NewDonorPoolError(op string, unit int) error {
	err := &DonorPoolError{Op: op, Unit: unit}
	return errors.WithStack(err)
}

// DimensionError reports a dimension mismatch between input matrices.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("sparsesc: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a new DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError reports an invalid configuration parameter. These are
// raised eagerly, before any expensive computation starts, and are never
// retried.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sparsesc: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a new ValidationError with a stack trace attached.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError reports an argument whose value is unusable for the operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("sparsesc: %s: %s", e.Op, e.Message)
}

// NewValueError creates a new ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError is a general model-level failure wrapping an underlying cause.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sparsesc: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sparsesc: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError creates a new ModelError with a stack trace attached.
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// NumericalInstabilityError reports NaN/Inf values produced mid-computation.
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("sparsesc: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError creates a new NumericalInstabilityError with a
// stack trace attached.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates an error with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common sentinel errors
//
// ===========================================================================

var (
	// ErrEmptyData indicates an empty input matrix.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix indicates a singular (non-invertible) system.
	ErrSingularMatrix = New("singular matrix")

	// ErrNotFitted indicates a model method was called before fitting.
	ErrNotFitted = New("model is not fitted")
)
