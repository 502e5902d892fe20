package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuit-engine/pkg/simerr"
)

type entry struct{ i, j int }

// recorder is a DeviceMatrix that keeps the summed stamps.
type recorder struct {
	a   map[entry]complex128
	rhs map[int]complex128
}

func newRecorder() *recorder {
	return &recorder{a: map[entry]complex128{}, rhs: map[int]complex128{}}
}

func (r *recorder) AddElement(i, j int, v float64)             { r.a[entry{i, j}] += complex(v, 0) }
func (r *recorder) AddRHS(i int, v float64)                    { r.rhs[i] += complex(v, 0) }
func (r *recorder) AddComplexElement(i, j int, re, im float64) { r.a[entry{i, j}] += complex(re, im) }
func (r *recorder) AddComplexRHS(i int, re, im float64)        { r.rhs[i] += complex(re, im) }

func bind(c Component, idx ...int) *Element {
	return &Element{Component: c, Idx: idx, Slot: -1, Junction: -1}
}

func TestResistorStampIsSymmetric(t *testing.T) {
	r := newRecorder()
	require.NoError(t, Stamp(bind(NewResistor("R1", 1, 2, 500), 1, 2), r, &Status{}))

	assert.Equal(t, complex(0.002, 0), r.a[entry{1, 1}])
	assert.Equal(t, complex(0.002, 0), r.a[entry{2, 2}])
	assert.Equal(t, complex(-0.002, 0), r.a[entry{1, 2}])
	assert.Equal(t, complex(-0.002, 0), r.a[entry{2, 1}])
}

func TestGroundedTerminalIsSkipped(t *testing.T) {
	r := newRecorder()
	require.NoError(t, Stamp(bind(NewResistor("R1", 1, 0, 1000), 1, 0), r, &Status{}))
	assert.Len(t, r.a, 1)
}

func TestStampsAreAdditive(t *testing.T) {
	r := newRecorder()
	st := &Status{}
	require.NoError(t, Stamp(bind(NewResistor("R1", 1, 0, 1000), 1, 0), r, st))
	require.NoError(t, Stamp(bind(NewResistor("R2", 1, 0, 1000), 1, 0), r, st))
	assert.InDelta(t, 0.002, real(r.a[entry{1, 1}]), 1e-15)
}

func TestCapacitorModes(t *testing.T) {
	c := bind(NewCapacitor("C1", 1, 0, 1e-6), 1, 0)
	c.Slot = 0

	t.Run("dc open", func(t *testing.T) {
		r := newRecorder()
		require.NoError(t, Stamp(c, r, &Status{Mode: OperatingPoint}))
		assert.Empty(t, r.a)
		assert.Empty(t, r.rhs)
	})

	t.Run("ac admittance", func(t *testing.T) {
		r := newRecorder()
		require.NoError(t, Stamp(c, r, &Status{Mode: AC, Frequency: 1000}))
		assert.InDelta(t, 2*math.Pi*1000*1e-6, imag(r.a[entry{1, 1}]), 1e-12)
	})

	t.Run("backward euler companion", func(t *testing.T) {
		h := NewHistory(1)
		h.Voltage[0] = 2
		r := newRecorder()
		require.NoError(t, Stamp(c, r, &Status{Mode: Transient, TimeStep: 1e-6, History: h}))
		assert.InDelta(t, 1.0, real(r.a[entry{1, 1}]), 1e-12)
		// ieq = -geq*vPrev flows out of node 1, so +2 on its rhs
		assert.InDelta(t, 2.0, real(r.rhs[1]), 1e-12)
	})
}

func TestInductorBranch(t *testing.T) {
	l := bind(NewInductor("L1", 1, 2, 1e-3), 1, 2)
	l.Branch, l.Slot = 3, 0

	r := newRecorder()
	require.NoError(t, Stamp(l, r, &Status{Mode: AC, Frequency: 1000}))
	assert.Equal(t, complex(1, 0), r.a[entry{1, 3}])
	assert.Equal(t, complex(-1, 0), r.a[entry{2, 3}])
	assert.Equal(t, complex(1, 0), r.a[entry{3, 1}])
	assert.InDelta(t, -2*math.Pi*1000*1e-3, imag(r.a[entry{3, 3}]), 1e-12)

	r = newRecorder()
	require.NoError(t, Stamp(l, r, &Status{Mode: State, State: []float64{0.25}}))
	assert.Equal(t, complex(1, 0), r.a[entry{3, 3}])
	assert.Equal(t, complex(0.25, 0), r.rhs[3])
	_, coupled := r.a[entry{3, 1}]
	assert.False(t, coupled)
}

func TestSourceStamps(t *testing.T) {
	v := bind(NewVoltageSource("V1", 1, 0, 5).WithPhase(90), 1, 0)
	v.Branch = 2

	r := newRecorder()
	require.NoError(t, Stamp(v, r, &Status{Mode: OperatingPoint}))
	assert.Equal(t, complex(5, 0), r.rhs[2])

	r = newRecorder()
	require.NoError(t, Stamp(v, r, &Status{Mode: AC}))
	assert.InDelta(t, 0, real(r.rhs[2]), 1e-12)
	assert.InDelta(t, 5, imag(r.rhs[2]), 1e-12)

	i := bind(NewCurrentSource("I1", 1, 2, 1e-3), 1, 2)
	r = newRecorder()
	require.NoError(t, Stamp(i, r, &Status{}))
	assert.Equal(t, complex(-1e-3, 0), r.rhs[1])
	assert.Equal(t, complex(1e-3, 0), r.rhs[2])
}

func TestNoACSourceIsZeroInAC(t *testing.T) {
	c := NewVoltageSource("VB", 1, 0, 0.7)
	c.NoAC = true
	assert.Equal(t, complex128(0), c.Phasor())
}

func TestWaveforms(t *testing.T) {
	sin := NewSin(1, 2, 50, 90)
	assert.InDelta(t, 3.0, sin.At(0), 1e-12)

	pulse := NewPulse(0, 5, 1e-3, 1e-3, 1e-3, 2e-3, 10e-3)
	assert.Equal(t, 0.0, pulse.At(0.5e-3))
	assert.InDelta(t, 2.5, pulse.At(1.5e-3), 1e-9)
	assert.Equal(t, 5.0, pulse.At(3e-3))
	assert.InDelta(t, 2.5, pulse.At(4.5e-3), 1e-9)
	assert.Equal(t, 0.0, pulse.At(6e-3))
	assert.InDelta(t, 2.5, pulse.At(11.5e-3), 1e-9)

	step := NewStep(0, 1, 0, 0)
	assert.Equal(t, 1.0, step.At(1))

	pwl := NewPWL([]float64{0, 1, 2}, []float64{0, 10, 0})
	assert.Equal(t, 5.0, pwl.At(0.5))
	assert.Equal(t, 5.0, pwl.At(1.5))
	assert.Equal(t, 0.0, pwl.At(3))
}

func TestSourceValueUsesWaveOnlyInTime(t *testing.T) {
	c := NewVoltageSource("V1", 1, 0, 2).WithWave(NewStep(0, 1, 0, 0))
	assert.Equal(t, 2.0, c.SourceValue(&Status{Mode: OperatingPoint}))
	assert.Equal(t, 1.0, c.SourceValue(&Status{Mode: Transient, Time: 1}))
}

func TestParams(t *testing.T) {
	r := NewResistor("R1", 1, 0, 1000)
	require.NoError(t, r.SetParam("value", 2200))
	v, err := r.Param("value")
	require.NoError(t, err)
	assert.Equal(t, 2200.0, v)

	err = r.SetParam("is", 1)
	assert.ErrorIs(t, err, simerr.ErrValidation)

	d := NewDiode("D1", 1, 0)
	require.NoError(t, d.SetParam("n", 2))
	assert.Equal(t, 2.0, d.N)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		c    Component
		ok   bool
	}{
		{"resistor", NewResistor("R1", 1, 0, 1), true},
		{"zero resistor", NewResistor("R1", 1, 0, 0), false},
		{"negative capacitor", NewCapacitor("C1", 1, 0, -1e-9), false},
		{"negative node", NewResistor("R1", -1, 0, 1), false},
		{"shorted source", NewVoltageSource("V1", 2, 2, 1), false},
		{"nameless", NewResistor("", 1, 0, 1), false},
		{"ground", NewGround("G1", 3), true},
		{"wave on resistor", NewResistor("R1", 1, 0, 1).WithWave(NewSin(0, 1, 1, 0)), false},
		{"bad pwl", NewVoltageSource("V1", 1, 0, 0).WithWave(NewPWL([]float64{1, 0}, []float64{0, 1})), false},
		{"nan", NewResistor("R1", 1, 0, math.NaN()), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, simerr.ErrValidation)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := NewVoltageSource("V1", 1, 0, 0).WithWave(NewPWL([]float64{0, 1}, []float64{0, 1}))
	d := c.Clone()
	d.Nodes[0] = 9
	d.Wave.Values[1] = 5
	assert.Equal(t, 1, c.Nodes[0])
	assert.Equal(t, 1.0, c.Wave.Values[1])
}

func TestDiodeCurrentIsContinuous(t *testing.T) {
	e := bind(NewDiode("D1", 1, 0), 1, 0)
	nvt := thermalVoltage(300.15)
	edge := 40 * nvt

	below, gBelow := diodeCurrent(e, edge-1e-9, 300.15)
	above, gAbove := diodeCurrent(e, edge+1e-9, 300.15)
	assert.InEpsilon(t, below, above, 1e-6)
	assert.InEpsilon(t, gBelow, gAbove, 1e-6)

	rev, _ := diodeCurrent(e, -5, 300.15)
	assert.InDelta(t, -1e-14-5e-12, rev, 1e-20)
}

func TestJunctionLimiting(t *testing.T) {
	nvt := thermalVoltage(300.15)
	vcrit := nvt * math.Log(nvt/(math.Sqrt2*1e-14))

	v, limited := limitJunction(5, 0, nvt, vcrit)
	assert.True(t, limited)
	assert.Less(t, v, 0.5)

	v, limited = limitJunction(0.3, 0.29, nvt, vcrit)
	assert.False(t, limited)
	assert.Equal(t, 0.3, v)
}

func TestCurrentPassiveConvention(t *testing.T) {
	sol := []float64{0, 3, 1}
	r := bind(NewResistor("R1", 1, 2, 1000), 1, 2)
	assert.InDelta(t, 2e-3, Current(r, sol, &Status{}), 1e-15)

	c := bind(NewCapacitor("C1", 1, 2, 1e-6), 1, 2)
	assert.Equal(t, 0.0, Current(c, sol, &Status{Mode: OperatingPoint}))

	z, ok := Impedance(c, 0)
	assert.True(t, ok)
	assert.True(t, math.IsInf(real(z), 1))
}
