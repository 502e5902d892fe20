package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/edp1096/circuit-engine/pkg/circuit"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

type SweepKind string

const (
	SweepDecade SweepKind = "dec"
	SweepOctave SweepKind = "oct"
	SweepLinear SweepKind = "lin"
)

// ACOptions selects the frequencies of an AC sweep: an explicit list, or
// Points values from Start to Stop spaced by Sweep.
type ACOptions struct {
	Frequencies []float64
	Sweep       SweepKind
	Start       float64
	Stop        float64
	Points      int
}

func (o ACOptions) frequencies(defaultPoints int) ([]float64, error) {
	if len(o.Frequencies) > 0 {
		for _, f := range o.Frequencies {
			if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, simerr.Validationf("", "invalid frequency %g", f)
			}
		}
		return append([]float64(nil), o.Frequencies...), nil
	}
	points := o.Points
	if points <= 0 {
		points = defaultPoints
	}
	return SweepPoints(o.Sweep, o.Start, o.Stop, points)
}

// SweepPoints generates points values from start to stop inclusive,
// log-spaced for decade and octave sweeps.
func SweepPoints(kind SweepKind, start, stop float64, points int) ([]float64, error) {
	if points < 1 {
		return nil, simerr.Validationf("", "sweep needs at least one point")
	}
	if math.IsNaN(start) || math.IsNaN(stop) || math.IsInf(start, 0) || math.IsInf(stop, 0) {
		return nil, simerr.Validationf("", "sweep bounds must be finite")
	}
	if points == 1 {
		return []float64{start}, nil
	}

	out := make([]float64, points)
	switch SweepKind(strings.ToLower(string(kind))) {
	case SweepDecade, SweepOctave:
		if start <= 0 || stop <= 0 {
			return nil, simerr.Validationf("", "logarithmic sweep needs positive bounds")
		}
		logStart, logStop := math.Log10(start), math.Log10(stop)
		step := (logStop - logStart) / float64(points-1)
		for i := range points {
			out[i] = math.Pow(10, logStart+float64(i)*step)
		}
		out[points-1] = stop
	case SweepLinear, "":
		step := (stop - start) / float64(points-1)
		for i := range points {
			out[i] = start + float64(i)*step
		}
	default:
		return nil, simerr.Validationf("", "unknown sweep type %q", kind)
	}
	return out, nil
}

// ACPoint is the phasor solution at one frequency. A failed frequency keeps
// its Err and no data.
type ACPoint struct {
	Frequency      float64
	NodeVoltages   map[int]complex128
	BranchCurrents map[string]complex128
	Impedances     map[string]complex128
	Err            error
}

type ACResult struct {
	Points         []ACPoint
	OperatingPoint *OperatingPointResult // set for nonlinear circuits
	Failures       int
}

// Voltages returns the node phasor at every frequency, zero where failed.
func (r *ACResult) Voltages(node int) []complex128 {
	out := make([]complex128, len(r.Points))
	for i, p := range r.Points {
		if p.Err == nil {
			out[i] = p.NodeVoltages[node]
		}
	}
	return out
}

type ACAnalysis struct {
	BaseAnalysis
	opts ACOptions
}

func NewAC(cfg config.Config, opts ACOptions, o ...Option) *ACAnalysis {
	return &ACAnalysis{BaseAnalysis: NewBaseAnalysis(cfg, o...), opts: opts}
}

func (ac *ACAnalysis) Run(ctx context.Context, g *circuit.Graph) (res *Result, err error) {
	ctx, done := startRun(ctx, KindAC, g)
	defer func() { done(err) }()

	freqs, err := ac.opts.frequencies(ac.cfg.Simulation.FrequencyPointsDefault)
	if err != nil {
		return nil, err
	}
	asm, err := circuit.NewAssembler(g)
	if err != nil {
		return nil, err
	}

	out := &ACResult{Points: make([]ACPoint, len(freqs))}

	// linearize once around the DC operating point
	var opSol []float64
	if asm.HasNonlinear() {
		op := &OperatingPoint{BaseAnalysis: ac.BaseAnalysis}
		out.OperatingPoint, opSol, err = op.solve(ctx, asm)
		if err != nil {
			return nil, fmt.Errorf("ac: %w", err)
		}
	}

	err = forEach(ctx, len(freqs), ac.cfg.Workers(), func(ctx context.Context, i int) {
		out.Points[i] = ac.solvePoint(asm, freqs[i], opSol)
	})
	if err != nil {
		return nil, err
	}

	for _, p := range out.Points {
		if p.Err != nil {
			out.Failures++
			ac.log.Warn("ac point failed", slog.Float64("frequency", p.Frequency), slog.String("error", p.Err.Error()))
		}
	}
	pointFailures.WithLabelValues(KindAC.String()).Add(float64(out.Failures))
	return &Result{Kind: KindAC, AC: out}, nil
}

func (ac *ACAnalysis) solvePoint(asm *circuit.Assembler, freq float64, opSol []float64) ACPoint {
	p := ACPoint{Frequency: freq}

	m, err := asm.NewMatrix(device.AC, ac.matrixOpts)
	if err != nil {
		p.Err = err
		return p
	}
	defer m.Destroy()

	st := &device.Status{Mode: device.AC, Frequency: freq, Iterate: opSol}
	if err := asm.Stamp(m, st); err != nil {
		p.Err = err
		return p
	}
	if err := m.Solve(); err != nil {
		p.Err = fmt.Errorf("f=%g Hz: %w", freq, err)
		return p
	}

	sol := m.ComplexSolution()
	p.NodeVoltages = asm.NodeVoltagesAC(sol)
	p.BranchCurrents = asm.MeasureAC(sol, opSol, st)
	p.Impedances = asm.Impedances(freq)
	return p
}
