// Package simerr defines the error taxonomy shared by every analyzer.
//
// Each failure class has a typed error carrying its diagnostic context and a
// sentinel it matches through errors.Is, so callers can branch on either.
package simerr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation  = errors.New("circuit validation failed")
	ErrSingular    = errors.New("circuit matrix is singular")
	ErrConvergence = errors.New("newton iteration did not converge")
	ErrTimeout     = errors.New("simulation timed out")
)

// ValidationError reports a malformed circuit or request. It is always raised
// before any matrix is assembled.
type ValidationError struct {
	Component string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Component, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validationf builds a ValidationError for a component.
func Validationf(component, format string, args ...any) error {
	return &ValidationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// SingularMatrixError reports a pivot that fell below the singularity
// threshold. Row is the 1-based unknown index, zero when the sparse
// factorization could not name one.
type SingularMatrixError struct {
	Row     int
	Unknown string
	Pivot   float64
}

func (e *SingularMatrixError) Error() string {
	switch {
	case e.Unknown != "":
		return fmt.Sprintf("singular matrix at %s (pivot %.3e): check for floating nodes or voltage source loops", e.Unknown, e.Pivot)
	case e.Row > 0:
		return fmt.Sprintf("singular matrix at row %d (pivot %.3e)", e.Row, e.Pivot)
	default:
		return "singular matrix: factorization failed"
	}
}

func (e *SingularMatrixError) Is(target error) bool { return target == ErrSingular }

// ConvergenceError reports an exhausted Newton iteration or step budget.
type ConvergenceError struct {
	Iterations int
	Residual   float64
	Time       float64 // simulation time for transient failures
	Transient  bool
}

func (e *ConvergenceError) Error() string {
	if e.Transient {
		return fmt.Sprintf("no convergence at t=%.6g s after %d iterations (residual %.3e)", e.Time, e.Iterations, e.Residual)
	}
	return fmt.Sprintf("no convergence after %d iterations (residual %.3e)", e.Iterations, e.Residual)
}

func (e *ConvergenceError) Is(target error) bool { return target == ErrConvergence }

// TimeoutError reports a run abandoned at the service deadline.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("simulation exceeded %s (elapsed %s)", e.Limit, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
