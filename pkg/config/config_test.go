package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Simulation.MaxIterations)
	assert.Equal(t, 1_000_000, cfg.Simulation.MaxTransientSteps)
	assert.Equal(t, SolverRK45, cfg.Simulation.TransientSolver)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, 4, cfg.Workers())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	data := []byte(`
simulation:
  max_iterations: 50
  transient_solver: bdf
service:
  thread_pool_size: 8
  service_timeout: 2.5
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("CIRCUIT_CONVERGENCE_TOLERANCE", "1e-9")
	t.Setenv("CIRCUIT_ENABLE_THREADING", "false")
	t.Setenv("CIRCUIT_MAX_TRANSIENT_STEPS", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Simulation.MaxIterations)
	assert.Equal(t, 5000, cfg.Simulation.MaxTransientSteps)
	assert.Equal(t, SolverBDF, cfg.Simulation.TransientSolver)
	assert.InDelta(t, 1e-9, cfg.Simulation.ConvergenceTolerance, 1e-20)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout())
	assert.Equal(t, 1, cfg.Workers())
	// untouched fields keep defaults
	assert.InDelta(t, 1e-6, cfg.Simulation.TimeStepDefault, 1e-20)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Simulation.MaxIterations = 0 }},
		{"zero step budget", func(c *Config) { c.Simulation.MaxTransientSteps = 0 }},
		{"negative tolerance", func(c *Config) { c.Simulation.ConvergenceTolerance = -1 }},
		{"unknown solver", func(c *Config) { c.Simulation.TransientSolver = "euler" }},
		{"empty pool", func(c *Config) { c.Service.ThreadPoolSize = 0 }},
		{"zero timeout", func(c *Config) { c.Service.ServiceTimeout = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSequentialLeavesOriginal(t *testing.T) {
	cfg := Default()
	seq := cfg.Sequential()
	assert.Equal(t, 1, seq.Workers())
	assert.True(t, cfg.Service.EnableThreading)
}
