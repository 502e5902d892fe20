// Package matrix holds the MNA system and its linear solvers.
//
// Small systems are factored with a dense partial-pivoting LU; larger ones
// go through the sparse LU of github.com/edp1096/sparse. Both paths share the
// same 1-based stamping surface and report singularity the same way.
package matrix

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/edp1096/sparse"

	"github.com/edp1096/circuit-engine/pkg/simerr"
)

const (
	DefaultPivotThreshold = 1e-12
	DefaultDenseThreshold = 64
)

type Options struct {
	PivotThreshold float64 // relative to the largest matrix entry
	DenseThreshold int     // systems up to this size use the dense path
	Namer          func(row int) string
}

type CircuitMatrix struct {
	Size         int
	isComplex    bool
	opts         Options
	matrix       *sparse.Matrix
	config       *sparse.Configuration
	dense        []float64
	denseC       []complex128
	rhs          []float64
	rhsImag      []float64
	solution     []float64
	solutionImag []float64
}

func NewMatrix(size int, isComplex bool, opts Options) (*CircuitMatrix, error) {
	if opts.PivotThreshold <= 0 {
		opts.PivotThreshold = DefaultPivotThreshold
	}

	m := &CircuitMatrix{
		Size:         size,
		isComplex:    isComplex,
		opts:         opts,
		rhs:          make([]float64, size+1), // 1-based indexing
		rhsImag:      make([]float64, size+1),
		solution:     make([]float64, size+1),
		solutionImag: make([]float64, size+1),
	}

	if m.IsDense() {
		if isComplex {
			m.denseC = make([]complex128, size*size)
		} else {
			m.dense = make([]float64, size*size)
		}
		return m, nil
	}

	m.config = &sparse.Configuration{
		Real:                    true,
		Complex:                 isComplex,
		SeparatedComplexVectors: true,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}
	mat, err := sparse.Create(int64(size), m.config)
	if err != nil {
		return nil, fmt.Errorf("create sparse matrix: %w", err)
	}
	m.matrix = mat
	return m, nil
}

// IsDense reports whether the dense LU path is in use.
func (m *CircuitMatrix) IsDense() bool {
	return m.Size <= m.opts.DenseThreshold
}

func (m *CircuitMatrix) inBounds(i, j int) bool {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		slog.Warn("matrix index out of bounds", slog.Int("i", i), slog.Int("j", j), slog.Int("size", m.Size))
		return false
	}
	return true
}

func (m *CircuitMatrix) AddElement(i, j int, value float64) {
	m.AddComplexElement(i, j, value, 0)
}

func (m *CircuitMatrix) AddComplexElement(i, j int, real, imag float64) {
	if !m.inBounds(i, j) {
		return
	}
	switch {
	case m.dense != nil:
		m.dense[(i-1)*m.Size+j-1] += real
	case m.denseC != nil:
		m.denseC[(i-1)*m.Size+j-1] += complex(real, imag)
	default:
		element := m.matrix.GetElement(int64(i), int64(j))
		element.Real += real
		element.Imag += imag
	}
}

func (m *CircuitMatrix) AddRHS(i int, value float64) {
	m.AddComplexRHS(i, value, 0)
}

func (m *CircuitMatrix) AddComplexRHS(i int, real, imag float64) {
	if !m.inBounds(i, i) {
		return
	}
	m.rhs[i] += real
	m.rhsImag[i] += imag
}

// LoadGmin adds gmin to the first rows diagonal entries (the node rows).
func (m *CircuitMatrix) LoadGmin(gmin float64, rows int) {
	for i := 1; i <= min(rows, m.Size); i++ {
		m.AddElement(i, i, gmin)
	}
}

func (m *CircuitMatrix) Clear() {
	switch {
	case m.dense != nil:
		clear(m.dense)
	case m.denseC != nil:
		clear(m.denseC)
	case m.matrix != nil:
		m.matrix.Clear()
	}
	clear(m.rhs)
	clear(m.rhsImag)
}

// Solve factors the loaded system and solves it. The loaded values are
// consumed: call Clear and stamp again before the next Solve.
func (m *CircuitMatrix) Solve() error {
	if m.Size == 0 {
		return nil
	}

	var err error
	switch {
	case m.dense != nil:
		err = m.solveDense()
	case m.denseC != nil:
		err = m.solveDenseComplex()
	default:
		err = m.solveSparse()
	}

	path := "sparse"
	if m.IsDense() {
		path = "dense"
	}
	kind := "real"
	if m.isComplex {
		kind = "complex"
	}
	outcome := "ok"
	if err != nil {
		outcome = "singular"
	}
	linearSolves.WithLabelValues(path, kind, outcome).Inc()
	return err
}

func (m *CircuitMatrix) solveDense() error {
	x := m.solution[1:]
	copy(x, m.rhs[1:])
	if row, piv, ok := luSolve(m.dense, x, m.Size, m.opts.PivotThreshold); !ok {
		return m.singular(row, piv)
	}
	return nil
}

func (m *CircuitMatrix) solveDenseComplex() error {
	x := make([]complex128, m.Size)
	for i := range x {
		x[i] = complex(m.rhs[i+1], m.rhsImag[i+1])
	}
	if row, piv, ok := luSolve(m.denseC, x, m.Size, m.opts.PivotThreshold); !ok {
		return m.singular(row, piv)
	}
	for i, v := range x {
		m.solution[i+1] = real(v)
		m.solutionImag[i+1] = imag(v)
	}
	return nil
}

func (m *CircuitMatrix) solveSparse() error {
	if err := m.matrix.Factor(); err != nil {
		slog.Debug("sparse factorization failed", slog.String("error", err.Error()))
		return m.singular(0, 0)
	}

	if m.isComplex {
		re, im, err := m.matrix.SolveComplex(m.rhs, m.rhsImag)
		if err != nil {
			return fmt.Errorf("sparse solve: %w", err)
		}
		copy(m.solution, re)
		copy(m.solutionImag, im)
	} else {
		x, err := m.matrix.Solve(m.rhs)
		if err != nil {
			return fmt.Errorf("sparse solve: %w", err)
		}
		copy(m.solution, x)
	}

	for i := 1; i <= m.Size; i++ {
		if !isFinite(m.solution[i]) || !isFinite(m.solutionImag[i]) {
			return m.singular(i, 0)
		}
	}
	return nil
}

func (m *CircuitMatrix) singular(row int, pivot float64) error {
	err := &simerr.SingularMatrixError{Row: row, Pivot: pivot}
	if row > 0 && m.opts.Namer != nil {
		err.Unknown = m.opts.Namer(row)
	}
	return err
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Solution returns the 1-based real solution; index 0 is ground.
func (m *CircuitMatrix) Solution() []float64 {
	return m.solution
}

// ComplexSolution returns the 1-based complex solution as a fresh slice.
func (m *CircuitMatrix) ComplexSolution() []complex128 {
	out := make([]complex128, m.Size+1)
	for i := 1; i <= m.Size; i++ {
		out[i] = complex(m.solution[i], m.solutionImag[i])
	}
	return out
}

func (m *CircuitMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}
