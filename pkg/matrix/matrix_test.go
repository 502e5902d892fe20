package matrix

import (
	"errors"
	"fmt"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuit-engine/pkg/simerr"
)

var denseOpts = Options{PivotThreshold: DefaultPivotThreshold, DenseThreshold: DefaultDenseThreshold}

func TestDenseRealSolve(t *testing.T) {
	m, err := NewMatrix(3, false, denseOpts)
	require.NoError(t, err)
	require.True(t, m.IsDense())

	// 2x + y = 3, x + 3y + z = 5, y + 4z = 5 -> (1, 1, 1)
	for _, e := range []struct {
		i, j int
		v    float64
	}{{1, 1, 2}, {1, 2, 1}, {2, 1, 1}, {2, 2, 3}, {2, 3, 1}, {3, 2, 1}, {3, 3, 4}} {
		m.AddElement(e.i, e.j, e.v)
	}
	m.AddRHS(1, 3)
	m.AddRHS(2, 5)
	m.AddRHS(3, 5)

	require.NoError(t, m.Solve())
	x := m.Solution()
	for i := 1; i <= 3; i++ {
		assert.InDelta(t, 1.0, x[i], 1e-12)
	}
}

func TestDenseNeedsPivoting(t *testing.T) {
	m, err := NewMatrix(2, false, denseOpts)
	require.NoError(t, err)
	// zero leading diagonal: voltage source style rows
	m.AddElement(1, 2, 1)
	m.AddElement(2, 1, 1)
	m.AddRHS(1, 2)
	m.AddRHS(2, 7)

	require.NoError(t, m.Solve())
	assert.InDelta(t, 7.0, m.Solution()[1], 1e-12)
	assert.InDelta(t, 2.0, m.Solution()[2], 1e-12)
}

func TestDenseComplexSolve(t *testing.T) {
	m, err := NewMatrix(1, true, denseOpts)
	require.NoError(t, err)
	m.AddComplexElement(1, 1, 1, 1) // (1+j) x = 2
	m.AddComplexRHS(1, 2, 0)

	require.NoError(t, m.Solve())
	x := m.ComplexSolution()
	assert.InDelta(t, 0, cmplx.Abs(x[1]-complex(1, -1)), 1e-12)
}

func TestSingularNamesRow(t *testing.T) {
	opts := denseOpts
	opts.Namer = func(row int) string { return fmt.Sprintf("node %d", row) }
	m, err := NewMatrix(2, false, opts)
	require.NoError(t, err)
	m.AddElement(1, 1, 1e-3) // row 2 never stamped

	err = m.Solve()
	require.Error(t, err)
	assert.ErrorIs(t, err, simerr.ErrSingular)

	var se *simerr.SingularMatrixError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.Row)
	assert.Equal(t, "node 2", se.Unknown)
}

func TestSingularRelativeThreshold(t *testing.T) {
	m, err := NewMatrix(2, false, denseOpts)
	require.NoError(t, err)
	// floating resistor pair: rank one
	m.AddElement(1, 1, 1e-3)
	m.AddElement(1, 2, -1e-3)
	m.AddElement(2, 1, -1e-3)
	m.AddElement(2, 2, 1e-3)

	assert.ErrorIs(t, m.Solve(), simerr.ErrSingular)
}

func TestClearResetsSystem(t *testing.T) {
	m, err := NewMatrix(1, false, denseOpts)
	require.NoError(t, err)
	m.AddElement(1, 1, 2)
	m.AddRHS(1, 4)
	require.NoError(t, m.Solve())
	assert.InDelta(t, 2.0, m.Solution()[1], 1e-15)

	m.Clear()
	m.AddElement(1, 1, 4)
	m.AddRHS(1, 4)
	require.NoError(t, m.Solve())
	assert.InDelta(t, 1.0, m.Solution()[1], 1e-15)
}

func TestLoadGminOnlyNodeRows(t *testing.T) {
	m, err := NewMatrix(2, false, denseOpts)
	require.NoError(t, err)
	m.LoadGmin(0.5, 1)
	m.AddElement(2, 2, 1)
	m.AddRHS(1, 1)
	m.AddRHS(2, 1)
	require.NoError(t, m.Solve())
	assert.InDelta(t, 2.0, m.Solution()[1], 1e-12)
	assert.InDelta(t, 1.0, m.Solution()[2], 1e-12)
}

func TestSolveDense(t *testing.T) {
	a := [][]float64{{4, 1}, {2, 3}}
	b := []float64{1, 2}
	x, err := SolveDense(a, b, DefaultPivotThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, x[0], 1e-12)
	assert.InDelta(t, 0.6, x[1], 1e-12)
	assert.Equal(t, []float64{1, 2}, b)

	_, err = SolveDense([][]float64{{1, 2}, {2, 4}}, b, DefaultPivotThreshold)
	assert.ErrorIs(t, err, simerr.ErrSingular)
}

func TestDeterministicRepeatedSolve(t *testing.T) {
	solve := func() []float64 {
		m, err := NewMatrix(3, false, denseOpts)
		require.NoError(t, err)
		for i := 1; i <= 3; i++ {
			for j := 1; j <= 3; j++ {
				m.AddElement(i, j, 1.0/float64(i+j-1))
			}
			m.AddRHS(i, float64(i))
		}
		require.NoError(t, m.Solve())
		return append([]float64(nil), m.Solution()...)
	}
	assert.Equal(t, solve(), solve())
}

func TestSparseLadder(t *testing.T) {
	const n = 80
	m, err := NewMatrix(n, false, Options{PivotThreshold: DefaultPivotThreshold, DenseThreshold: 16})
	require.NoError(t, err)
	defer m.Destroy()
	require.False(t, m.IsDense())

	// tridiagonal conductance ladder tied to ground at both ends
	for i := 1; i <= n; i++ {
		m.AddElement(i, i, 2)
		if i > 1 {
			m.AddElement(i, i-1, -1)
		}
		if i < n {
			m.AddElement(i, i+1, -1)
		}
		m.AddRHS(i, 1)
	}
	require.NoError(t, m.Solve())

	// x_i = i(n+1-i)/2
	x := m.Solution()
	for _, i := range []int{1, n / 2, n} {
		assert.InDelta(t, float64(i*(n+1-i))/2, x[i], 1e-6)
	}
}
