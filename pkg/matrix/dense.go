package matrix

import (
	"math"
	"math/cmplx"

	"github.com/edp1096/circuit-engine/pkg/simerr"
)

type scalar interface {
	float64 | complex128
}

func magnitude[T scalar](v T) float64 {
	switch x := any(v).(type) {
	case float64:
		return math.Abs(x)
	case complex128:
		return cmplx.Abs(x)
	}
	return 0
}

// luSolve runs Gaussian elimination with partial pivoting on the row-major
// n x n matrix a, transforming b into the solution in place. a is destroyed.
// A pivot whose magnitude is at or below threshold times the largest entry of
// a is singular; the returned row (1-based) is the pivot column that failed.
func luSolve[T scalar](a, b []T, n int, threshold float64) (row int, pivot float64, ok bool) {
	if n == 0 {
		return 0, 0, true
	}

	scale := 0.0
	for _, v := range a {
		scale = max(scale, magnitude(v))
	}
	if scale == 0 {
		return 1, 0, false
	}
	limit := threshold * scale

	for k := range n {
		p, best := k, magnitude(a[k*n+k])
		for i := k + 1; i < n; i++ {
			if m := magnitude(a[i*n+k]); m > best {
				p, best = i, m
			}
		}
		if best <= limit {
			return k + 1, best, false
		}
		if p != k {
			for j := range n {
				a[k*n+j], a[p*n+j] = a[p*n+j], a[k*n+j]
			}
			b[k], b[p] = b[p], b[k]
		}

		piv := a[k*n+k]
		for i := k + 1; i < n; i++ {
			f := a[i*n+k] / piv
			if f == 0 {
				continue
			}
			a[i*n+k] = 0
			for j := k + 1; j < n; j++ {
				a[i*n+j] -= f * a[k*n+j]
			}
			b[i] -= f * b[k]
		}
	}

	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i*n+j] * b[j]
		}
		b[i] = sum / a[i*n+i]
	}
	return 0, 0, true
}

// SolveDense solves the 0-based system a*x = b without modifying its inputs.
func SolveDense(a [][]float64, b []float64, threshold float64) ([]float64, error) {
	n := len(b)
	flat := make([]float64, n*n)
	for i := range n {
		copy(flat[i*n:(i+1)*n], a[i])
	}
	x := append([]float64(nil), b...)

	if row, piv, ok := luSolve(flat, x, n, threshold); !ok {
		return nil, &simerr.SingularMatrixError{Row: row, Pivot: piv}
	}
	return x, nil
}
