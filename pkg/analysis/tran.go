package analysis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"github.com/edp1096/circuit-engine/pkg/circuit"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/matrix"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

// ErrStreamConsumed is yielded when a transient stream is ranged twice.
var ErrStreamConsumed = errors.New("transient stream already consumed")

var errStopped = errors.New("stopped by consumer")

// TransientOptions configures a transient run. Integration always starts
// at t=0; samples before Start are not reported.
type TransientOptions struct {
	Start   float64
	Stop    float64
	Step    float64 // fixed step, or the first step of adaptive methods
	MinStep float64
	MaxStep float64
	// Method overrides the configured transient_solver.
	Method string
	// BackwardEuler keeps the fixed-step method on backward Euler instead of
	// switching to trapezoidal after the first step.
	BackwardEuler bool
	// UseOperatingPoint starts from the DC solution instead of the
	// components' initial values.
	UseOperatingPoint bool
	// MaxSteps overrides the configured max_transient_steps.
	MaxSteps int
	// Points, when set, reports samples on Points evenly spaced times from
	// Start to Stop, interpolated between accepted steps, instead of at the
	// accepted step times.
	Points int
}

// Sample is the circuit state at one accepted time point.
type Sample struct {
	Time           float64
	NodeVoltages   map[int]float64
	BranchCurrents map[string]float64
	Power          map[string]float64
}

type TransientResult struct {
	Method   string
	Samples  []Sample
	Accepted int
	Rejected int
}

type Transient struct {
	BaseAnalysis
	opts TransientOptions
}

func NewTransient(cfg config.Config, opts TransientOptions, o ...Option) *Transient {
	return &Transient{BaseAnalysis: NewBaseAnalysis(cfg, o...), opts: opts}
}

func (tr *Transient) Run(ctx context.Context, g *circuit.Graph) (res *Result, err error) {
	ctx, done := startRun(ctx, KindTransient, g)
	defer func() { done(err) }()

	run, err := tr.prepare(g)
	if err != nil {
		return nil, err
	}
	defer run.close()

	out := &TransientResult{}
	err = run.integrate(ctx, func(s Sample) bool {
		out.Samples = append(out.Samples, s)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("transient: %w", err)
	}
	out.Method, out.Accepted, out.Rejected = run.method, run.accepted, run.rejected
	return &Result{Kind: KindTransient, Transient: out}, nil
}

// Stream runs the analysis lazily, yielding samples as they are accepted.
// The sequence can be ranged once; breaking out of the loop stops the run.
func (tr *Transient) Stream(ctx context.Context, g *circuit.Graph) iter.Seq2[Sample, error] {
	var used atomic.Bool
	return func(yield func(Sample, error) bool) {
		if used.Swap(true) {
			yield(Sample{}, ErrStreamConsumed)
			return
		}
		run, err := tr.prepare(g)
		if err != nil {
			yield(Sample{}, err)
			return
		}
		defer run.close()

		err = run.integrate(ctx, func(s Sample) bool { return yield(s, nil) })
		if err != nil && !errors.Is(err, errStopped) {
			yield(Sample{}, fmt.Errorf("transient: %w", err))
		}
	}
}

type tranRun struct {
	*Transient
	asm     *circuit.Assembler
	method  string
	start   float64
	stop    float64
	step    float64
	minStep float64
	maxStep float64

	maxSteps int
	accepted int
	rejected int

	grid *resampler

	// State-mode solver shared by every derivative evaluation
	stateMat  *matrix.CircuitMatrix
	stateSt   *device.Status
	stateIter []float64
}

func (tr *Transient) prepare(g *circuit.Graph) (*tranRun, error) {
	o := tr.opts
	if o.Stop <= 0 || o.Start < 0 || o.Start >= o.Stop || math.IsNaN(o.Stop) {
		return nil, simerr.Validationf("", "transient needs 0 <= start < stop, got [%g, %g]", o.Start, o.Stop)
	}

	asm, err := circuit.NewAssembler(g)
	if err != nil {
		return nil, err
	}

	r := &tranRun{Transient: tr, asm: asm, start: o.Start, stop: o.Stop}
	r.method = strings.ToLower(o.Method)
	if r.method == "" {
		r.method = tr.cfg.Simulation.TransientSolver
	}
	switch r.method {
	case config.SolverFixedStep, config.SolverRK45, config.SolverBDF:
	default:
		return nil, simerr.Validationf("", "unknown transient solver %q", o.Method)
	}

	r.step = o.Step
	if r.step <= 0 {
		r.step = tr.cfg.Simulation.TimeStepDefault
	}
	r.step = min(r.step, o.Stop)
	r.maxStep = o.MaxStep
	if r.maxStep <= 0 {
		r.maxStep = max(r.step, o.Stop/50)
	}
	r.minStep = o.MinStep
	if r.minStep <= 0 {
		r.minStep = r.step * 1e-3
	}
	if r.minStep > r.step || r.step > r.maxStep && r.method != config.SolverFixedStep {
		return nil, simerr.Validationf("", "transient steps must satisfy min <= step <= max")
	}
	r.maxSteps = o.MaxSteps
	if r.maxSteps <= 0 {
		r.maxSteps = max(tr.cfg.Simulation.MaxTransientSteps, 1)
	}
	switch {
	case o.Points == 1 || o.Points < 0:
		return nil, simerr.Validationf("", "transient output needs at least 2 points, got %d", o.Points)
	case o.Points > 1:
		r.grid = newResampler(o.Start, o.Stop, o.Points)
	}

	r.stateMat, err = asm.NewMatrix(device.State, tr.matrixOpts)
	if err != nil {
		return nil, err
	}
	r.stateSt = &device.Status{Mode: device.State, Junction: make([]float64, asm.NumJunctions())}
	r.stateIter = make([]float64, asm.Size(device.State)+1)
	return r, nil
}

func (r *tranRun) close() {
	r.stateMat.Destroy()
}

func (r *tranRun) integrate(ctx context.Context, emit func(Sample) bool) error {
	x0, err := r.initialState(ctx)
	if err != nil {
		return err
	}

	// a capacitor across a voltage source leaves the state equations without
	// a solution; companion models handle that loop
	if r.method != config.SolverFixedStep {
		if _, err := r.stateSolve(ctx, 0, x0); errors.Is(err, simerr.ErrSingular) {
			r.log.Warn("state equations singular, integrating with companion models",
				slog.String("method", r.method),
				slog.String("error", err.Error()),
			)
			r.method = config.SolverFixedStep
		}
	}
	r.log.Debug("transient start", slog.String("method", r.method), slog.Float64("stop", r.stop), slog.Float64("step", r.step))

	switch r.method {
	case config.SolverRK45:
		return r.rk45(ctx, x0, emit)
	case config.SolverBDF:
		return r.bdf(ctx, x0, emit)
	default:
		return r.fixedStep(ctx, x0, emit)
	}
}

// initialState returns capacitor voltages and inductor currents at t=0.
func (r *tranRun) initialState(ctx context.Context) ([]float64, error) {
	states := r.asm.States()
	elems := r.asm.Elements()
	x := make([]float64, len(states))

	if !r.opts.UseOperatingPoint {
		for k, s := range states {
			x[k] = elems[s.Element].Initial
		}
		return x, nil
	}

	op := &OperatingPoint{BaseAnalysis: r.BaseAnalysis}
	_, sol, err := op.solve(ctx, r.asm)
	if err != nil {
		return nil, err
	}
	for k, s := range states {
		e := elems[s.Element]
		if s.Kind == device.Capacitor {
			x[k] = e.Voltage(sol)
		} else {
			x[k] = sol[e.Branch]
		}
	}
	return x, nil
}

// emitAt reports an accepted point. Without an output grid, points before
// the output window are dropped; with one, every point feeds the resampler.
func (r *tranRun) emitAt(t float64, sol []float64, st *device.Status, emit func(Sample) bool) error {
	if r.grid == nil && t < r.start-1e-15*r.stop {
		return nil
	}
	currents, power := r.asm.Measure(sol, st)
	s := Sample{
		Time:           t,
		NodeVoltages:   r.asm.NodeVoltages(sol),
		BranchCurrents: currents,
		Power:          power,
	}
	if r.grid != nil {
		return r.grid.push(s, emit)
	}
	if !emit(s) {
		return errStopped
	}
	return nil
}

// stateSolve solves the instantaneous circuit with the state pinned to x
// and returns a copy of the solution.
func (r *tranRun) stateSolve(ctx context.Context, t float64, x []float64) ([]float64, error) {
	r.stateSt.Time = t
	r.stateSt.State = x
	if _, err := r.newton(ctx, r.asm, r.stateMat, r.stateSt, r.stateIter, 0); err != nil {
		return nil, err
	}
	return append([]float64(nil), r.stateIter...), nil
}

// derivative evaluates dx/dt from a State-mode solution.
func (r *tranRun) derivative(sol []float64) []float64 {
	elems := r.asm.Elements()
	dx := make([]float64, len(r.asm.States()))
	for k, s := range r.asm.States() {
		e := elems[s.Element]
		if s.Kind == device.Capacitor {
			dx[k] = sol[e.Aux] / e.Value
		} else {
			dx[k] = e.Voltage(sol) / e.Value
		}
	}
	return dx
}

func (r *tranRun) f(ctx context.Context, t float64, x []float64) ([]float64, []float64, error) {
	sol, err := r.stateSolve(ctx, t, x)
	if err != nil {
		return nil, nil, err
	}
	return sol, r.derivative(sol), nil
}

func (r *tranRun) budget(t, residual float64) error {
	if r.accepted+r.rejected >= r.maxSteps {
		return &simerr.ConvergenceError{Iterations: r.accepted + r.rejected, Residual: residual, Time: t, Transient: true}
	}
	return nil
}

// fixedStep integrates with companion models: backward Euler on the first
// step, trapezoidal afterwards. A step that fails to converge is halved
// down to the minimum step.
func (r *tranRun) fixedStep(ctx context.Context, x0 []float64, emit func(Sample) bool) error {
	states := r.asm.States()
	elems := r.asm.Elements()
	hist := device.NewHistory(len(states))
	junction := make([]float64, r.asm.NumJunctions())

	for k := range states {
		if states[k].Kind == device.Capacitor {
			hist.Voltage[k] = x0[k]
		} else {
			hist.Current[k] = x0[k]
		}
	}

	m, err := r.asm.NewMatrix(device.Transient, r.matrixOpts)
	if err != nil {
		return err
	}
	defer m.Destroy()
	iterate := make([]float64, r.asm.Size(device.Transient)+1)

	// consistent t=0 point; a capacitor loop makes the state solve singular,
	// then a minimum backward Euler step stands in for it
	sol0, err := r.stateSolve(ctx, 0, x0)
	switch {
	case err == nil:
		for k, s := range states {
			e := elems[s.Element]
			if s.Kind == device.Capacitor {
				hist.Current[k] = sol0[e.Aux]
			} else {
				hist.Voltage[k] = e.Voltage(sol0)
			}
		}
		copy(iterate, sol0)
		if err := r.emitAt(0, sol0, r.stateSt, emit); err != nil {
			return err
		}
	case errors.Is(err, simerr.ErrSingular):
		st := &device.Status{Mode: device.Transient, TimeStep: r.minStep, Method: device.BE, History: hist, Junction: junction}
		if _, err := r.newton(ctx, r.asm, m, st, iterate, 0); err != nil {
			return err
		}
		if err := r.emitAt(0, iterate, st, emit); err != nil {
			return err
		}
	default:
		return err
	}

	t, h := 0.0, r.step
	first := true
	eps := 1e-12 * r.stop
	for t < r.stop-eps {
		if err := r.budget(t, 0); err != nil {
			return err
		}

		hs := min(h, r.stop-t)
		method := device.TR
		if first || r.opts.BackwardEuler {
			method = device.BE
		}
		st := &device.Status{
			Mode:     device.Transient,
			Time:     t + hs,
			TimeStep: hs,
			Method:   method,
			History:  hist,
			Junction: junction,
		}

		trial := append([]float64(nil), iterate...)
		if _, err := r.newton(ctx, r.asm, m, st, trial, 0); err != nil {
			var ce *simerr.ConvergenceError
			if errors.As(err, &ce) {
				r.rejected++
				if hs/2 >= r.minStep {
					h = hs / 2
					continue
				}
				return &simerr.ConvergenceError{Iterations: ce.Iterations, Residual: ce.Residual, Time: t + hs, Transient: true}
			}
			return fmt.Errorf("t=%g s: %w", t+hs, err)
		}

		// measure against the old history, then advance it
		if err := r.emitAt(t+hs, trial, st, emit); err != nil {
			return err
		}
		nextV := make([]float64, len(states))
		nextI := make([]float64, len(states))
		for k, s := range states {
			e := elems[s.Element]
			nextV[k] = e.Voltage(trial)
			nextI[k] = device.Current(e, trial, st)
		}
		copy(hist.Voltage, nextV)
		copy(hist.Current, nextI)

		iterate = trial
		t += hs
		first = false
		r.accepted++
		if h < r.step {
			h = min(2*h, r.step)
		}
	}
	return nil
}
