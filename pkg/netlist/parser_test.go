package netlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuit-engine/pkg/analysis"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1k", 1e3},
		{"1K", 1e3},
		{"2.2kohm", 2200},
		{"10uF", 10e-6},
		{"1meg", 1e6},
		{"1MEG", 1e6},
		{"3m", 3e-3},
		{"5V", 5},
		{"1e-3", 1e-3},
		{"-4.7n", -4.7e-9},
		{".5p", 0.5e-12},
		{"100", 100},
	}
	for _, tc := range cases {
		got, err := ParseValue(tc.in)
		require.NoError(t, err, tc.in)
		assert.InEpsilon(t, tc.want, got, 1e-12, tc.in)
	}

	for _, bad := range []string{"", "k", "1..2", "abc", "1k2"} {
		_, err := ParseValue(bad)
		assert.Error(t, err, bad)
	}
}

const dividerNetlist = `voltage divider
* comment line
V1 in 0 DC 5
R1 out 0 1k ; load
R2 in out
+ 2k
.op
.end
`

func TestParseDivider(t *testing.T) {
	nl, err := Parse(dividerNetlist)
	require.NoError(t, err)

	assert.Equal(t, "voltage divider", nl.Title)
	assert.Equal(t, 3, nl.Circuit.Len())
	assert.Equal(t, map[string]int{"0": 0, "in": 1, "out": 2}, nl.Nodes)
	require.Len(t, nl.Analyses, 1)
	assert.Equal(t, analysis.KindDC, nl.Analyses[0].Kind)

	r2, ok := nl.Circuit.Component("R2")
	require.True(t, ok)
	assert.Equal(t, 2000.0, r2.Value)
	assert.Equal(t, []int{1, 2}, r2.Nodes)

	res, err := analysis.Run(context.Background(), nl.Circuit, config.Default(), nl.Analyses[0])
	require.NoError(t, err)
	assert.InDelta(t, 5.0/3, res.DC.Voltage(nl.Nodes["out"]), 1e-9)
}

func TestNodeNumbering(t *testing.T) {
	nl, err := Parse("nodes\nR1 3 a 1\nR2 a GND 1\nR3 b 7 1\nV1 3 0 1\n")
	require.NoError(t, err)
	assert.Equal(t, 3, nl.Nodes["3"])
	assert.Equal(t, 7, nl.Nodes["7"])
	assert.Equal(t, 8, nl.Nodes["a"])
	assert.Equal(t, 9, nl.Nodes["b"])
	assert.Equal(t, 0, nl.Nodes["GND"])
}

func TestParseSources(t *testing.T) {
	src := `sources
V1 1 0 AC 1 45
V2 2 0 SIN(0 1 1k)
V3 3 0 PULSE(0 5 1u 1n 1n 10u 20u)
I1 0 4 PWL(0 0 1m 2m 2m 0)
V4 5 0 dc 3 ac 3
I2 0 6 2m
R1 1 0 1
R2 2 0 1
R3 3 0 1
R4 4 0 1
R5 5 0 1
R6 6 0 1
`
	nl, err := Parse(src)
	require.NoError(t, err)

	v1, _ := nl.Circuit.Component("V1")
	assert.Equal(t, 1.0, v1.Value)
	assert.Equal(t, 45.0, v1.Phase)
	assert.False(t, v1.NoAC)

	v2, _ := nl.Circuit.Component("V2")
	require.NotNil(t, v2.Wave)
	assert.Equal(t, device.SIN, v2.Wave.Kind)
	assert.Equal(t, 1e3, v2.Wave.Freq)
	assert.True(t, v2.NoAC)

	v3, _ := nl.Circuit.Component("V3")
	require.NotNil(t, v3.Wave)
	assert.Equal(t, device.PULSE, v3.Wave.Kind)
	assert.InDelta(t, 10e-6, v3.Wave.Width, 1e-18)
	assert.Equal(t, 0.0, v3.Value)

	i1, _ := nl.Circuit.Component("I1")
	require.NotNil(t, i1.Wave)
	assert.Equal(t, []float64{0, 1e-3, 2e-3}, i1.Wave.Times)
	assert.InDelta(t, 1e-3, i1.Wave.At(0.5e-3), 1e-12)

	v4, _ := nl.Circuit.Component("V4")
	assert.Equal(t, 3.0, v4.Value)

	i2, _ := nl.Circuit.Component("I2")
	assert.Equal(t, device.CurrentSource, i2.Kind)
	assert.InDelta(t, 2e-3, i2.Value, 1e-15)
}

func TestParseModelAndInitialConditions(t *testing.T) {
	src := `models
V1 1 0 5
R1 1 2 1k
D1 2 0 dmod
C1 2 0 1u IC=0.5
L1 1 3 1m ic=2m
R2 3 0 1
.model dmod D(is=2e-15 n=1.8)
`
	nl, err := Parse(src)
	require.NoError(t, err)

	d1, _ := nl.Circuit.Component("D1")
	assert.Equal(t, 2e-15, d1.Is)
	assert.Equal(t, 1.8, d1.N)

	c1, _ := nl.Circuit.Component("C1")
	assert.Equal(t, 0.5, c1.Initial)
	l1, _ := nl.Circuit.Component("L1")
	assert.InDelta(t, 2e-3, l1.Initial, 1e-15)
}

func TestParseAnalyses(t *testing.T) {
	src := `analyses
V1 1 0 1
R1 1 2 1k
C1 2 0 1u
.ac dec 10 1 1meg
.tran 1u 1m 0 10u uic method=bdf points=51
`
	nl, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, nl.Analyses, 2)

	ac := nl.Analyses[0]
	assert.Equal(t, analysis.KindAC, ac.Kind)
	assert.Equal(t, analysis.SweepDecade, ac.AC.Sweep)
	assert.Equal(t, 10, ac.AC.Points)
	assert.Equal(t, 1e6, ac.AC.Stop)

	tr := nl.Analyses[1].Transient
	assert.Equal(t, 1e-6, tr.Step)
	assert.Equal(t, 1e-3, tr.Stop)
	assert.InDelta(t, 10e-6, tr.MaxStep, 1e-18)
	assert.False(t, tr.UseOperatingPoint)
	assert.Equal(t, "bdf", tr.Method)
	assert.Equal(t, 51, tr.Points)
}

func TestParseStep(t *testing.T) {
	src := `step
V1 2 0 5
R1 1 0 1k
R2 2 1 2k
.step R1 LIST 1k 2k 4k
.step R2 value LIN 1k 3k 3
.op
`
	nl, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, nl.Analyses, 1)
	spec := nl.Analyses[0]
	require.Equal(t, analysis.KindParametric, spec.Kind)
	require.Len(t, spec.Parametric.Sweeps, 2)
	assert.Equal(t, []float64{1e3, 2e3, 4e3}, spec.Parametric.Sweeps[0].Values)
	assert.Equal(t, "value", spec.Parametric.Sweeps[1].Param)
	assert.InDeltaSlice(t, []float64{1e3, 2e3, 3e3}, spec.Parametric.Sweeps[1].Values, 1e-9)
	assert.Equal(t, analysis.KindDC, spec.Parametric.Inner.Kind)

	res, err := analysis.Run(context.Background(), nl.Circuit, config.Default(), spec)
	require.NoError(t, err)
	assert.Len(t, res.Parametric.Points, 9)
	assert.Zero(t, res.Parametric.Failures)
}

func TestParseMonteCarlo(t *testing.T) {
	src := `mc
V1 2 0 5
R1 1 0 1k
R2 2 1 2k
.mc 20 7 normal
.tol R1 5%
.tol R2 1 uniform
.op
`
	nl, err := Parse(src)
	require.NoError(t, err)
	spec := nl.Analyses[0]
	require.Equal(t, analysis.KindMonteCarlo, spec.Kind)
	mc := spec.MonteCarlo
	assert.Equal(t, 20, mc.Trials)
	assert.Equal(t, uint64(7), mc.Seed)
	require.Len(t, mc.Tolerances, 2)
	assert.Equal(t, analysis.Normal, mc.Tolerances[0].Distribution)
	assert.Equal(t, 5.0, mc.Tolerances[0].Percent)
	assert.Equal(t, analysis.Uniform, mc.Tolerances[1].Distribution)
}

func TestParseErrors(t *testing.T) {
	bad := map[string]string{
		"unknown element":   "t\nQ1 1 2 3 model\n",
		"missing value":     "t\nR1 1 0\n",
		"bad value":         "t\nR1 1 0 abc\n",
		"duplicate name":    "t\nR1 1 0 1\nR1 2 0 1\n",
		"undefined model":   "t\nD1 1 0 nomodel\n",
		"dangling plus":     "t\n+ 1k\n",
		"ac dc mismatch":    "t\nV1 1 0 DC 0 AC 1\n",
		"short pulse":       "t\nV1 1 0 PULSE(0 1 2)\n",
		"pwl order":         "t\nV1 1 0 PWL(0 0 0 1)\n",
		"bad sweep":         "t\nR1 1 0 1\n.ac foo 10 1 10\n",
		"tran args":         "t\nR1 1 0 1\n.tran 1u\n",
		"tran points":       "t\nR1 1 0 1\n.tran 1u 1m points=1\n",
		"tran option":       "t\nR1 1 0 1\n.tran 1u 1m order=2\n",
		"tol without mc":    "t\nR1 1 0 1\n.tol R1 5\n.op\n",
		"step without base": "t\nR1 1 0 1\n.step R1 LIST 1 2\n",
		"step and mc":       "t\nR1 1 0 1\n.step R1 LIST 1 2\n.mc 5\n.op\n",
		"unknown card":      "t\nR1 1 0 1\n.four 1k V(1)\n",
		"bad distribution":  "t\nR1 1 0 1\n.mc 5 1 cauchy\n.op\n",
	}
	for name, src := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(src)
			require.Error(t, err)
			assert.ErrorIs(t, err, simerr.ErrValidation)
		})
	}
}
