// Package analysis implements the DC, AC, transient, parametric and Monte
// Carlo analyzers on top of the circuit assembler.
//
// Every analyzer takes the engine configuration by value, reads the circuit
// graph without modifying it, and returns a freshly built Result.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edp1096/circuit-engine/pkg/circuit"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/logging"
	"github.com/edp1096/circuit-engine/pkg/matrix"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

var tracer = otel.Tracer("github.com/edp1096/circuit-engine/pkg/analysis")

type Kind int

const (
	KindDC Kind = iota
	KindAC
	KindTransient
	KindParametric
	KindMonteCarlo
)

func (k Kind) String() string {
	switch k {
	case KindDC:
		return "dc"
	case KindAC:
		return "ac"
	case KindTransient:
		return "transient"
	case KindParametric:
		return "parametric"
	case KindMonteCarlo:
		return "montecarlo"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Spec selects an analysis and carries its parameters. Parametric and Monte
// Carlo wrap an inner DC, AC or transient Spec.
type Spec struct {
	Kind       Kind
	AC         ACOptions
	Transient  TransientOptions
	Parametric *ParametricOptions
	MonteCarlo *MonteCarloOptions
}

func (s Spec) Validate() error {
	switch s.Kind {
	case KindDC, KindAC, KindTransient:
		return nil
	case KindParametric:
		if s.Parametric == nil {
			return simerr.Validationf("", "parametric analysis without options")
		}
		return s.Parametric.Inner.validateInner()
	case KindMonteCarlo:
		if s.MonteCarlo == nil {
			return simerr.Validationf("", "monte carlo analysis without options")
		}
		return s.MonteCarlo.Inner.validateInner()
	default:
		return simerr.Validationf("", "unknown analysis kind %d", int(s.Kind))
	}
}

func (s Spec) validateInner() error {
	switch s.Kind {
	case KindDC, KindAC, KindTransient:
		return nil
	default:
		return simerr.Validationf("", "%s cannot be nested in a sweep", s.Kind)
	}
}

// Analyzer is implemented by every analysis.
type Analyzer interface {
	Run(ctx context.Context, g *circuit.Graph) (*Result, error)
}

type Option func(*BaseAnalysis)

func WithLogger(l *slog.Logger) Option {
	return func(b *BaseAnalysis) { b.log = l }
}

type BaseAnalysis struct {
	cfg         config.Config
	log         *slog.Logger
	matrixOpts  matrix.Options
	convergence struct {
		maxIter int
		tol     float64
	}
}

func NewBaseAnalysis(cfg config.Config, opts ...Option) BaseAnalysis {
	b := BaseAnalysis{cfg: cfg}
	for _, o := range opts {
		o(&b)
	}
	b.log = logging.OrDefault(b.log)
	b.matrixOpts = matrix.Options{
		PivotThreshold: cfg.Simulation.PivotThreshold,
		DenseThreshold: cfg.Simulation.DenseThreshold,
	}
	b.convergence.maxIter = max(cfg.Simulation.MaxIterations, 1)
	b.convergence.tol = cfg.Simulation.ConvergenceTolerance
	return b
}

func (b *BaseAnalysis) options() []Option {
	return []Option{WithLogger(b.log)}
}

// newton iterates the real-valued system of st.Mode until the largest
// change of any unknown is within tolerance. iterate is the starting guess
// and receives the solution. Linear circuits take exactly one solve.
func (b *BaseAnalysis) newton(ctx context.Context, asm *circuit.Assembler, m *matrix.CircuitMatrix, st *device.Status, iterate []float64, gmin float64) (int, error) {
	linear := !asm.HasNonlinear()
	residual := math.Inf(1)

	for iter := 1; iter <= b.convergence.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return iter, err
		}

		m.Clear()
		st.Iterate = iterate
		if err := asm.Stamp(m, st); err != nil {
			return iter, err
		}
		if gmin > 0 {
			m.LoadGmin(gmin, asm.Layout().NumNodes())
		}
		if err := m.Solve(); err != nil {
			return iter, err
		}

		sol := m.Solution()
		residual = maxDelta(sol, iterate)
		copy(iterate, sol)

		if linear {
			return iter, nil
		}
		if iter > 1 && residual <= b.convergence.tol && !st.Limited {
			return iter, nil
		}
		b.log.Debug("newton iteration", slog.String("mode", st.Mode.String()), slog.Int("iter", iter), slog.Float64("residual", residual))
	}

	return b.convergence.maxIter, &simerr.ConvergenceError{Iterations: b.convergence.maxIter, Residual: residual}
}

func maxDelta(a, b []float64) float64 {
	d := 0.0
	for i := 1; i < len(a) && i < len(b); i++ {
		d = max(d, math.Abs(a[i]-b[i]))
	}
	return d
}

// Run dispatches spec to its analyzer.
func Run(ctx context.Context, g *circuit.Graph, cfg config.Config, spec Spec, opts ...Option) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var a Analyzer
	switch spec.Kind {
	case KindDC:
		a = NewOP(cfg, opts...)
	case KindAC:
		a = NewAC(cfg, spec.AC, opts...)
	case KindTransient:
		a = NewTransient(cfg, spec.Transient, opts...)
	case KindParametric:
		a = NewParametric(cfg, *spec.Parametric, opts...)
	case KindMonteCarlo:
		a = NewMonteCarlo(cfg, *spec.MonteCarlo, opts...)
	}
	return a.Run(ctx, g)
}

// startRun opens the span and returns the func that closes it and records
// metrics for the run.
func startRun(ctx context.Context, kind Kind, g *circuit.Graph) (context.Context, func(error)) {
	var attrs []attribute.KeyValue
	if g != nil {
		attrs = append(attrs, attribute.String("circuit", g.Name), attribute.Int("components", g.Len()))
	}
	ctx, span := tracer.Start(ctx, "analysis."+kind.String(), trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = outcomeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		runsTotal.WithLabelValues(kind.String(), outcome).Inc()
		runDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		span.End()
	}
}
