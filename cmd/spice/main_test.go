package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dividerNetlist = `voltage divider
V1 in 0 DC 5
R1 out 0 1k
R2 in out 2k
.op
.end
`

const rcNetlist = `rc charge
V1 1 0 DC 1 AC 1
R1 1 2 1k
C1 2 0 1u
.tran 10u 2m uic
.ac dec 5 10 100k
`

func writeNetlist(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "circuit.cir")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel, jsonLogs = "", "error", false
	plotPath, withTrace, withStats = "", false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunOperatingPoint(t *testing.T) {
	out, err := execute(t, "run", writeNetlist(t, dividerNetlist), "--metrics")
	require.NoError(t, err)

	assert.Contains(t, out, "voltage divider")
	assert.Contains(t, out, "dc analysis")
	assert.Contains(t, out, "V(in) = 5.000 V")
	assert.Contains(t, out, "V(out) = 1.667 V")
	assert.Contains(t, out, "I(R1) = 1.667 mA")
	assert.Contains(t, out, "circuit_coordinator_requests_total")
	assert.NotContains(t, out, "go_goroutines")
}

func TestRunWritesPlots(t *testing.T) {
	plot := filepath.Join(t.TempDir(), "rc.png")
	out, err := execute(t, "run", writeNetlist(t, rcNetlist), "--plot", plot)
	require.NoError(t, err)
	assert.Contains(t, out, "transient analysis")
	assert.Contains(t, out, "ac analysis")

	for _, name := range []string{"rc-1.png", "rc-2.png"} {
		info, err := os.Stat(filepath.Join(filepath.Dir(plot), name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size())
	}
}

func TestRunRejectsNetlistWithoutAnalyses(t *testing.T) {
	_, err := execute(t, "run", writeNetlist(t, "empty\nR1 1 0 1k\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no analysis cards")
}

func TestRunReportsParseErrors(t *testing.T) {
	_, err := execute(t, "run", writeNetlist(t, "bad\nR1 1 0 abc\n.op\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseSummary(t *testing.T) {
	out, err := execute(t, "parse", writeNetlist(t, rcNetlist))
	require.NoError(t, err)
	assert.Contains(t, out, "Components (3):")
	assert.Contains(t, out, "Analyses (2):")
	assert.Contains(t, out, "transient step=1e-05 stop=0.002")
}

func TestPlotName(t *testing.T) {
	assert.Equal(t, "out.png", plotName("out.png", 0, 1))
	assert.Equal(t, "out-2.png", plotName("out.png", 1, 3))
	assert.Equal(t, "dir/plot-1.svg", plotName("dir/plot.svg", 0, 2))
}

func TestWriteMetricsFiltersForeignFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	ours := prometheus.NewCounter(prometheus.CounterOpts{Name: "circuit_test_total", Help: "test"})
	theirs := prometheus.NewCounter(prometheus.CounterOpts{Name: "other_total", Help: "test"})
	reg.MustRegister(ours, theirs)
	ours.Add(3)

	var buf bytes.Buffer
	require.NoError(t, writeMetrics(&buf, reg))
	assert.Contains(t, buf.String(), "circuit_test_total 3")
	assert.NotContains(t, buf.String(), "other_total")
}
