package analysis

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/edp1096/circuit-engine/pkg/circuit"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

type Distribution string

const (
	Uniform Distribution = "uniform"
	Normal  Distribution = "normal"
)

// Tolerance perturbs one parameter around its nominal value. Uniform draws
// from nominal*(1 +- Percent/100); Normal uses sigma = nominal*Percent/300,
// so the tolerance band is three sigma.
type Tolerance struct {
	Component    string
	Param        string
	Percent      float64
	Distribution Distribution
}

type MonteCarloOptions struct {
	Trials      int
	Seed        uint64
	Tolerances  []Tolerance
	Inner       Spec
	Percentiles []float64 // default 5, 50, 95
}

// Statistics summarizes one observed quantity over successful trials.
type Statistics struct {
	Count       int
	Mean        float64
	StdDev      float64
	Min         float64
	Max         float64
	Percentiles map[float64]float64
}

type MonteCarloResult struct {
	Trials   int
	Failures int
	Stats    map[string]Statistics
	// Values holds each quantity's samples in trial order.
	Values map[string][]float64
	Errors map[int]error
}

type MonteCarlo struct {
	BaseAnalysis
	opts MonteCarloOptions
}

func NewMonteCarlo(cfg config.Config, opts MonteCarloOptions, o ...Option) *MonteCarlo {
	return &MonteCarlo{BaseAnalysis: NewBaseAnalysis(cfg, o...), opts: opts}
}

func (mc *MonteCarlo) validate(g *circuit.Graph) error {
	if mc.opts.Trials < 1 {
		return simerr.Validationf("", "monte carlo needs at least one trial")
	}
	if err := mc.opts.Inner.validateInner(); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	for _, tol := range mc.opts.Tolerances {
		if _, err := g.Param(tol.Component, tol.Param); err != nil {
			return err
		}
		if tol.Percent < 0 || math.IsNaN(tol.Percent) {
			return simerr.Validationf(tol.Component, "tolerance must not be negative")
		}
		switch tol.Distribution {
		case Uniform, Normal, "":
		default:
			return simerr.Validationf(tol.Component, "unknown distribution %q", tol.Distribution)
		}
	}
	for _, p := range mc.opts.Percentiles {
		if p < 0 || p > 100 {
			return simerr.Validationf("", "percentile %g out of range", p)
		}
	}
	return nil
}

// splitmix64 decorrelates neighbouring trial indices.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// TrialSource is the random source of one trial. It depends only on the
// seed and the trial index.
func TrialSource(seed uint64, trial int) rand.Source {
	return rand.NewPCG(seed, splitmix64(seed^uint64(trial)))
}

// sample draws every toleranced parameter for one trial, in tolerance order.
func (mc *MonteCarlo) sample(g *circuit.Graph, trial int) ([]float64, error) {
	src := TrialSource(mc.opts.Seed, trial)
	out := make([]float64, len(mc.opts.Tolerances))
	for i, tol := range mc.opts.Tolerances {
		nominal, err := g.Param(tol.Component, tol.Param)
		if err != nil {
			return nil, err
		}
		spread := math.Abs(nominal) * tol.Percent / 100
		switch tol.Distribution {
		case Normal:
			out[i] = distuv.Normal{Mu: nominal, Sigma: spread / 3, Src: src}.Rand()
		default:
			out[i] = distuv.Uniform{Min: nominal - spread, Max: nominal + spread, Src: src}.Rand()
		}
	}
	return out, nil
}

func (mc *MonteCarlo) Run(ctx context.Context, g *circuit.Graph) (res *Result, err error) {
	ctx, done := startRun(ctx, KindMonteCarlo, g)
	defer func() { done(err) }()

	if err := mc.validate(g); err != nil {
		return nil, err
	}

	trials := mc.opts.Trials
	observed := make([]map[string]float64, trials)
	errs := make([]error, trials)
	inner := mc.cfg.Sequential()

	err = forEach(ctx, trials, mc.cfg.Workers(), func(ctx context.Context, i int) {
		observed[i], errs[i] = mc.runTrial(ctx, g, inner, i)
	})
	if err != nil {
		return nil, err
	}

	out := mc.aggregate(observed, errs)
	pointFailures.WithLabelValues(KindMonteCarlo.String()).Add(float64(out.Failures))
	mc.log.Info("monte carlo complete", slog.Int("trials", trials), slog.Int("failures", out.Failures))
	return &Result{Kind: KindMonteCarlo, MonteCarlo: out}, nil
}

func (mc *MonteCarlo) runTrial(ctx context.Context, g *circuit.Graph, cfg config.Config, trial int) (map[string]float64, error) {
	values, err := mc.sample(g, trial)
	if err != nil {
		return nil, err
	}
	clone := g.Clone()
	for i, tol := range mc.opts.Tolerances {
		if err := clone.SetParam(tol.Component, tol.Param, values[i]); err != nil {
			return nil, err
		}
	}
	res, err := Run(ctx, clone, cfg, mc.opts.Inner, mc.options()...)
	if err != nil {
		return nil, err
	}
	return res.Observations(), nil
}

// aggregate walks trials in index order so the statistics do not depend on
// which worker finished first.
func (mc *MonteCarlo) aggregate(observed []map[string]float64, errs []error) *MonteCarloResult {
	out := &MonteCarloResult{
		Trials: len(observed),
		Stats:  make(map[string]Statistics),
		Values: make(map[string][]float64),
		Errors: make(map[int]error),
	}
	for i, obs := range observed {
		if errs[i] != nil {
			out.Failures++
			out.Errors[i] = errs[i]
			continue
		}
		for _, name := range slices.Sorted(maps.Keys(obs)) {
			out.Values[name] = append(out.Values[name], obs[name])
		}
	}

	percentiles := mc.opts.Percentiles
	if len(percentiles) == 0 {
		percentiles = []float64{5, 50, 95}
	}
	for name, vals := range out.Values {
		out.Stats[name] = summarize(vals, percentiles)
	}
	return out
}

func summarize(vals []float64, percentiles []float64) Statistics {
	s := Statistics{
		Count:       len(vals),
		Mean:        stat.Mean(vals, nil),
		Min:         floats.Min(vals),
		Max:         floats.Max(vals),
		Percentiles: make(map[float64]float64, len(percentiles)),
	}
	if len(vals) > 1 {
		s.StdDev = stat.StdDev(vals, nil)
	}

	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	for _, p := range percentiles {
		s.Percentiles[p] = stat.Quantile(p/100, stat.Empirical, sorted, nil)
	}
	return s
}
