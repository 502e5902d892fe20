package waveplot

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/circuit-engine/pkg/analysis"
)

var pngMagic = []byte("\x89PNG")

func rcCharge() *analysis.TransientResult {
	res := &analysis.TransientResult{Method: "rk45"}
	for i := range 20 {
		t := float64(i) * 1e-4
		res.Samples = append(res.Samples, analysis.Sample{
			Time:         t,
			NodeVoltages: map[int]float64{0: 0, 1: 1, 2: 1 - math.Exp(-t/1e-3)},
		})
	}
	return res
}

func TestTransientChart(t *testing.T) {
	names := NodeName(func(n int) string {
		if n == 2 {
			return "out"
		}
		return ""
	})
	c := Transient("rc", rcCharge(), names)
	require.Len(t, c.Series, 2)
	assert.Equal(t, "V(1)", c.Series[0].Name)
	assert.Equal(t, "V(out)", c.Series[1].Name)
	assert.Len(t, c.Series[1].X, 20)
	assert.False(t, c.LogX)

	var buf bytes.Buffer
	require.NoError(t, c.Render(&buf, "png"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestACChartSkipsFailures(t *testing.T) {
	res := &analysis.ACResult{Points: []analysis.ACPoint{
		{Frequency: 10, NodeVoltages: map[int]complex128{1: 1, 2: 0.99}},
		{Frequency: 100, Err: errors.New("singular")},
		{Frequency: 1000, NodeVoltages: map[int]complex128{1: 1, 2: complex(0.5, -0.5)}},
		{Frequency: 10000, NodeVoltages: map[int]complex128{1: 1, 2: 0}},
	}}
	c := AC("lowpass", res, nil)
	require.Len(t, c.Series, 2)
	assert.True(t, c.LogX)
	assert.Equal(t, []float64{10, 1000}, c.Series[1].X)
	assert.InDelta(t, -3.0103, c.Series[1].Y[1], 1e-3)

	path := filepath.Join(t.TempDir(), "ac.png")
	require.NoError(t, c.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}

func TestEmptyChart(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Transient("none", nil, nil).Render(&buf, "png"), ErrNoData)
	assert.ErrorIs(t, AC("none", &analysis.ACResult{}, nil).Render(&buf, "png"), ErrNoData)
}

func TestMismatchedSeries(t *testing.T) {
	c := Chart{Series: []Series{{Name: "bad", X: []float64{0, 1}, Y: []float64{0}}}}
	var buf bytes.Buffer
	assert.Error(t, c.Render(&buf, "png"))
}
