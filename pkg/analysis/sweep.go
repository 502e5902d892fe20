package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/edp1096/circuit-engine/pkg/circuit"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

// Sweep varies one component parameter over Values.
type Sweep struct {
	Component string
	Param     string
	Values    []float64
}

func (s Sweep) label() string {
	p := s.Param
	if p == "" {
		p = "value"
	}
	return s.Component + "." + p
}

// LinearRange returns points evenly spaced values from start to stop.
func LinearRange(start, stop float64, points int) []float64 {
	v, err := SweepPoints(SweepLinear, start, stop, points)
	if err != nil {
		return nil
	}
	return v
}

// DecadeRange returns points log-spaced values from start to stop.
func DecadeRange(start, stop float64, points int) []float64 {
	v, err := SweepPoints(SweepDecade, start, stop, points)
	if err != nil {
		return nil
	}
	return v
}

type ParametricOptions struct {
	Sweeps []Sweep
	Inner  Spec
}

// ParametricPoint is one combination of parameter values.
type ParametricPoint struct {
	Index  int
	Key    string
	Values []float64
	Result *Result
	Err    error
}

type ParametricResult struct {
	Sweeps   []Sweep
	Points   []ParametricPoint
	Failures int
	byKey    map[string]int
}

// Lookup finds the point for one value per sweep, in sweep order.
func (r *ParametricResult) Lookup(values ...float64) (*ParametricPoint, bool) {
	i, ok := r.byKey[PointKey(r.Sweeps, values)]
	if !ok {
		return nil, false
	}
	return &r.Points[i], true
}

// PointKey renders a parameter tuple as "R1.value=1000,C1.value=1e-06".
func PointKey(sweeps []Sweep, values []float64) string {
	var b strings.Builder
	for i, s := range sweeps {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.label())
		b.WriteByte('=')
		if i < len(values) {
			b.WriteString(strconv.FormatFloat(values[i], 'g', -1, 64))
		}
	}
	return b.String()
}

// Parametric runs the inner analysis over the Cartesian product of the
// sweeps. The first sweep varies slowest.
type Parametric struct {
	BaseAnalysis
	opts ParametricOptions
}

func NewParametric(cfg config.Config, opts ParametricOptions, o ...Option) *Parametric {
	return &Parametric{BaseAnalysis: NewBaseAnalysis(cfg, o...), opts: opts}
}

func (p *Parametric) validate(g *circuit.Graph) (int, error) {
	if len(p.opts.Sweeps) == 0 {
		return 0, simerr.Validationf("", "parametric analysis needs at least one sweep")
	}
	if err := p.opts.Inner.validateInner(); err != nil {
		return 0, err
	}
	if err := g.Validate(); err != nil {
		return 0, err
	}

	total := 1
	seen := make(map[string]bool)
	for _, s := range p.opts.Sweeps {
		if seen[s.label()] {
			return 0, simerr.Validationf(s.Component, "parameter %s swept twice", s.label())
		}
		seen[s.label()] = true
		if _, err := g.Param(s.Component, s.Param); err != nil {
			return 0, err
		}
		if len(s.Values) == 0 {
			return 0, simerr.Validationf(s.Component, "sweep of %s has no values", s.label())
		}
		sorted := slices.Clone(s.Values)
		slices.Sort(sorted)
		if len(slices.Compact(sorted)) != len(s.Values) {
			return 0, simerr.Validationf(s.Component, "sweep of %s repeats a value", s.label())
		}
		total *= len(s.Values)
	}
	return total, nil
}

// combination decodes a point index into one value per sweep.
func (p *Parametric) combination(index int) []float64 {
	sweeps := p.opts.Sweeps
	values := make([]float64, len(sweeps))
	for i := len(sweeps) - 1; i >= 0; i-- {
		n := len(sweeps[i].Values)
		values[i] = sweeps[i].Values[index%n]
		index /= n
	}
	return values
}

func (p *Parametric) Run(ctx context.Context, g *circuit.Graph) (res *Result, err error) {
	ctx, done := startRun(ctx, KindParametric, g)
	defer func() { done(err) }()

	total, err := p.validate(g)
	if err != nil {
		return nil, err
	}

	out := &ParametricResult{
		Sweeps: slices.Clone(p.opts.Sweeps),
		Points: make([]ParametricPoint, total),
		byKey:  make(map[string]int, total),
	}
	inner := p.cfg.Sequential()

	err = forEach(ctx, total, p.cfg.Workers(), func(ctx context.Context, i int) {
		values := p.combination(i)
		pt := ParametricPoint{Index: i, Key: PointKey(p.opts.Sweeps, values), Values: values}
		pt.Result, pt.Err = p.runPoint(ctx, g, inner, values)
		out.Points[i] = pt
	})
	if err != nil {
		return nil, err
	}

	for i, pt := range out.Points {
		out.byKey[pt.Key] = i
		if pt.Err != nil {
			out.Failures++
			p.log.Warn("parametric point failed", slog.String("point", pt.Key), slog.String("error", pt.Err.Error()))
		}
	}
	pointFailures.WithLabelValues(KindParametric.String()).Add(float64(out.Failures))
	return &Result{Kind: KindParametric, Parametric: out}, nil
}

func (p *Parametric) runPoint(ctx context.Context, g *circuit.Graph, cfg config.Config, values []float64) (*Result, error) {
	clone := g.Clone()
	for i, s := range p.opts.Sweeps {
		if err := clone.SetParam(s.Component, s.Param, values[i]); err != nil {
			return nil, err
		}
	}
	res, err := Run(ctx, clone, cfg, p.opts.Inner, p.options()...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PointKey(p.opts.Sweeps, values), err)
	}
	return res, nil
}
