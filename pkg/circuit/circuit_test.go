package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/matrix"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

func divider(t *testing.T) *Graph {
	t.Helper()
	g := New("divider")
	require.NoError(t, g.AddResistor("R1", 1, 0, 1000))
	require.NoError(t, g.AddVoltageSource("V1", 2, 0, 5))
	require.NoError(t, g.AddResistor("R2", 2, 1, 2000))
	return g
}

func TestAddRejectsDuplicateName(t *testing.T) {
	g := divider(t)
	err := g.AddResistor("R1", 3, 0, 10)
	assert.ErrorIs(t, err, simerr.ErrValidation)
	assert.Equal(t, 3, g.Len())
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, New("empty").Validate(), simerr.ErrValidation)

	g := divider(t)
	require.NoError(t, g.Validate())
	require.NoError(t, g.AddCapacitor("C1", 1, 0, -1))
	assert.ErrorIs(t, g.Validate(), simerr.ErrValidation)
}

func TestLayoutOrdering(t *testing.T) {
	g := New("layout")
	require.NoError(t, g.AddResistor("R1", 7, 3, 1))
	require.NoError(t, g.AddInductor("L1", 3, 0, 1e-3))
	require.NoError(t, g.AddVoltageSource("V1", 7, 0, 1))
	require.NoError(t, g.AddCapacitor("C1", 3, 0, 1e-9))
	require.NoError(t, g.AddGround("G0", 0))

	a, err := NewAssembler(g)
	require.NoError(t, err)
	l := a.Layout()

	assert.Equal(t, []int{3, 7}, l.Nodes())
	assert.Equal(t, 1, l.Row(3))
	assert.Equal(t, 2, l.Row(7))
	assert.Equal(t, 0, l.Row(0))
	assert.Equal(t, 3, l.BranchRow("L1"))
	assert.Equal(t, 4, l.BranchRow("V1"))
	assert.Equal(t, 0, l.BranchRow("G0"))
	assert.Equal(t, 4, l.Size())
	assert.Equal(t, 5, l.StateSize())

	assert.Equal(t, "node 7", l.Describe(2))
	assert.Equal(t, "branch V1", l.Describe(4))
	assert.Equal(t, "current of C1", l.Describe(5))

	require.Len(t, a.States(), 2)
	assert.Equal(t, "L1", a.States()[0].Name)
	assert.Equal(t, "C1", a.States()[1].Name)
	assert.False(t, a.HasNonlinear())
}

func TestCloneAndSetParam(t *testing.T) {
	g := divider(t)
	c := g.Clone()
	require.NoError(t, c.SetParam("R2", "value", 4000))

	orig, err := g.Param("R2", "value")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, orig)
	changed, err := c.Param("R2", "value")
	require.NoError(t, err)
	assert.Equal(t, 4000.0, changed)

	assert.ErrorIs(t, c.SetParam("R9", "value", 1), simerr.ErrValidation)
	assert.ErrorIs(t, c.SetParam("R1", "phase", 1), simerr.ErrValidation)
}

func TestFingerprint(t *testing.T) {
	a, err := divider(t).Fingerprint()
	require.NoError(t, err)
	b, err := divider(t).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	g := divider(t)
	require.NoError(t, g.SetParam("R1", "value", 1001))
	c, err := g.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestAssembleAndSolveDivider(t *testing.T) {
	a, err := NewAssembler(divider(t))
	require.NoError(t, err)

	m, err := a.NewMatrix(device.OperatingPoint, matrix.Options{DenseThreshold: 64})
	require.NoError(t, err)
	st := &device.Status{Mode: device.OperatingPoint}
	require.NoError(t, a.Stamp(m, st))
	require.NoError(t, m.Solve())

	sol := m.Solution()
	v := a.NodeVoltages(sol)
	assert.InDelta(t, 5.0/3.0, v[1], 1e-9)
	assert.InDelta(t, 5.0, v[2], 1e-9)
	assert.Equal(t, 0.0, v[0])

	currents, power := a.Measure(sol, st)
	assert.InDelta(t, 5.0/3000, currents["R2"], 1e-12)
	// the source delivers power: current enters its + terminal negatively
	assert.InDelta(t, -5.0/3000, currents["V1"], 1e-12)
	assert.InDelta(t, -25.0/3000, power["V1"], 1e-12)
	assert.InDelta(t, power["R1"]+power["R2"], -power["V1"], 1e-12)
}

func TestSingularNamesFloatingNode(t *testing.T) {
	g := divider(t)
	require.NoError(t, g.AddCapacitor("C1", 1, 5, 1e-6))

	a, err := NewAssembler(g)
	require.NoError(t, err)
	m, err := a.NewMatrix(device.OperatingPoint, matrix.Options{DenseThreshold: 64})
	require.NoError(t, err)
	require.NoError(t, a.Stamp(m, &device.Status{Mode: device.OperatingPoint}))

	err = m.Solve()
	var se *simerr.SingularMatrixError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "node 5", se.Unknown)
}
