package simerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsMatchThroughWrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validationf("R1", "resistance must be positive"), ErrValidation},
		{"singular", &SingularMatrixError{Row: 2, Unknown: "node 2"}, ErrSingular},
		{"convergence", &ConvergenceError{Iterations: 10, Residual: 0.5}, ErrConvergence},
		{"timeout", &TimeoutError{Elapsed: time.Second, Limit: time.Second}, ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("ac at f=%g Hz: %w", 1e3, tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			for _, other := range []error{ErrValidation, ErrSingular, ErrConvergence, ErrTimeout} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestConvergenceErrorCarriesDiagnostics(t *testing.T) {
	err := fmt.Errorf("transient: %w", &ConvergenceError{Iterations: 42, Residual: 1e-3, Time: 2e-6, Transient: true})

	var ce *ConvergenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 42, ce.Iterations)
	assert.InDelta(t, 1e-3, ce.Residual, 1e-15)
	assert.Contains(t, err.Error(), "t=2e-06")
}

func TestSingularMessageNamesUnknown(t *testing.T) {
	err := &SingularMatrixError{Row: 3, Unknown: "node 7", Pivot: 0}
	assert.Contains(t, err.Error(), "node 7")
	assert.Contains(t, (&SingularMatrixError{}).Error(), "factorization failed")
}
