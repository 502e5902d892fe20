// Package config holds the engine configuration.
//
// A Config is built once (defaults, then an optional YAML file, then
// CIRCUIT_* environment overrides), validated, and passed by value into every
// analyzer and the coordinator. Nothing in the engine mutates it afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Transient solver names accepted by SimulationConfig.TransientSolver.
const (
	SolverFixedStep = "fixed-step"
	SolverRK45      = "rk45"
	SolverBDF       = "bdf"
)

type Config struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Service    ServiceConfig    `json:"service" yaml:"service"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// SimulationConfig tunes the numerical core. MaxIterations caps the Newton
// iterations of one solve, each implicit transient step included.
// MaxTransientSteps caps the accepted plus rejected steps of one transient
// run.
type SimulationConfig struct {
	MaxIterations          int     `json:"max_iterations" yaml:"max_iterations" validate:"gte=1"`
	MaxTransientSteps      int     `json:"max_transient_steps" yaml:"max_transient_steps" validate:"gte=1"`
	ConvergenceTolerance   float64 `json:"convergence_tolerance" yaml:"convergence_tolerance" validate:"gt=0"`
	TimeStepDefault        float64 `json:"time_step_default" yaml:"time_step_default" validate:"gt=0"`
	TransientSolver        string  `json:"transient_solver" yaml:"transient_solver" validate:"oneof=fixed-step rk45 bdf"`
	FrequencyPointsDefault int     `json:"frequency_points_default" yaml:"frequency_points_default" validate:"gte=1"`
	PivotThreshold         float64 `json:"pivot_threshold" yaml:"pivot_threshold" validate:"gt=0,lt=1"`
	DenseThreshold         int     `json:"dense_threshold" yaml:"dense_threshold" validate:"gte=0"`
}

// ServiceConfig tunes the coordinator and worker pools.
type ServiceConfig struct {
	EnableThreading bool    `json:"enable_threading" yaml:"enable_threading"`
	ThreadPoolSize  int     `json:"thread_pool_size" yaml:"thread_pool_size" validate:"gte=1,lte=1024"`
	ServiceTimeout  float64 `json:"service_timeout" yaml:"service_timeout" validate:"gt=0"` // seconds
	EnableCaching   bool    `json:"enable_caching" yaml:"enable_caching"`
	HistoryLimit    int     `json:"history_limit" yaml:"history_limit" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `json:"json" yaml:"json"`
}

func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			MaxIterations:          1000,
			MaxTransientSteps:      1_000_000,
			ConvergenceTolerance:   1e-6,
			TimeStepDefault:        1e-6,
			TransientSolver:        SolverRK45,
			FrequencyPointsDefault: 100,
			PivotThreshold:         1e-12,
			DenseThreshold:         64,
		},
		Service: ServiceConfig{
			EnableThreading: true,
			ThreadPoolSize:  4,
			ServiceTimeout:  30,
			EnableCaching:   true,
			HistoryLimit:    100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration with priority env > file > defaults. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) error {
	ints := map[string]*int{
		"CIRCUIT_MAX_ITERATIONS":      &cfg.Simulation.MaxIterations,
		"CIRCUIT_MAX_TRANSIENT_STEPS": &cfg.Simulation.MaxTransientSteps,
		"CIRCUIT_THREAD_POOL_SIZE":    &cfg.Service.ThreadPoolSize,
	}
	floats := map[string]*float64{
		"CIRCUIT_CONVERGENCE_TOLERANCE": &cfg.Simulation.ConvergenceTolerance,
		"CIRCUIT_TIME_STEP_DEFAULT":     &cfg.Simulation.TimeStepDefault,
		"CIRCUIT_SERVICE_TIMEOUT":       &cfg.Service.ServiceTimeout,
	}
	bools := map[string]*bool{
		"CIRCUIT_ENABLE_THREADING": &cfg.Service.EnableThreading,
		"CIRCUIT_ENABLE_CACHING":   &cfg.Service.EnableCaching,
	}

	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	if v, ok := os.LookupEnv("CIRCUIT_TRANSIENT_SOLVER"); ok {
		cfg.Simulation.TransientSolver = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("CIRCUIT_LOG_LEVEL"); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	return nil
}

var validate = validator.New()

func (c Config) Validate() error {
	return validate.Struct(c)
}

// Timeout returns the service deadline as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Service.ServiceTimeout * float64(time.Second))
}

// Workers returns the pool width, 1 when threading is off.
func (c Config) Workers() int {
	if !c.Service.EnableThreading || c.Service.ThreadPoolSize < 1 {
		return 1
	}
	return c.Service.ThreadPoolSize
}

// Sequential returns a copy with threading disabled, used for nested runs.
func (c Config) Sequential() Config {
	c.Service.EnableThreading = false
	return c
}
