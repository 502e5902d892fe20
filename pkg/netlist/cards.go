package netlist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edp1096/circuit-engine/pkg/analysis"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

// cards collects analysis control lines.
type cards struct {
	base       []analysis.Spec
	sweeps     []analysis.Sweep
	mc         *analysis.MonteCarloOptions
	mcDist     analysis.Distribution
	tolerances []analysis.Tolerance
	tolLines   []int
}

func (c *cards) parse(l line) error {
	f := l.fields
	switch strings.ToLower(f[0]) {
	case ".op":
		c.base = append(c.base, analysis.Spec{Kind: analysis.KindDC})
	case ".ac":
		return c.parseAC(l)
	case ".tran":
		return c.parseTran(l)
	case ".step":
		return c.parseStep(l)
	case ".mc":
		return c.parseMC(l)
	case ".tol":
		return c.parseTol(l)
	default:
		return lineError(l.num, "unsupported control card %s", f[0])
	}
	return nil
}

// .ac DEC|OCT|LIN points fstart fstop
func (c *cards) parseAC(l line) error {
	f := l.fields
	if len(f) < 5 {
		return lineError(l.num, "insufficient AC parameters, need sweep type, points, fstart, and fstop")
	}
	sweep := analysis.SweepKind(strings.ToLower(f[1]))
	switch sweep {
	case analysis.SweepDecade, analysis.SweepOctave, analysis.SweepLinear:
	default:
		return lineError(l.num, "invalid sweep type: %s", f[1])
	}
	points, err := strconv.Atoi(f[2])
	if err != nil {
		return lineError(l.num, "invalid points number: %v", err)
	}
	v, err := parseValues(f[3:5])
	if err != nil {
		return lineError(l.num, "ac: %v", err)
	}
	c.base = append(c.base, analysis.Spec{Kind: analysis.KindAC, AC: analysis.ACOptions{
		Sweep: sweep, Points: points, Start: v[0], Stop: v[1],
	}})
	return nil
}

// .tran tstep tstop [tstart [tmax]] [uic] [method=fixed-step|rk45|bdf] [points=n]
func (c *cards) parseTran(l line) error {
	f := l.fields
	if len(f) < 3 {
		return lineError(l.num, "insufficient tran parameters, need at least tstep and tstop")
	}
	opts := analysis.TransientOptions{UseOperatingPoint: true}
	var times []float64
	for _, w := range f[1:] {
		if strings.EqualFold(w, "uic") {
			opts.UseOperatingPoint = false
			continue
		}
		if key, val, ok := strings.Cut(w, "="); ok {
			switch strings.ToLower(key) {
			case "method":
				opts.Method = strings.ToLower(val)
			case "points":
				n, err := strconv.Atoi(val)
				if err != nil || n < 2 {
					return lineError(l.num, "tran points must be an integer of at least 2, got %s", val)
				}
				opts.Points = n
			default:
				return lineError(l.num, "unknown tran option %s", key)
			}
			continue
		}
		v, err := ParseValue(w)
		if err != nil {
			return lineError(l.num, "tran: %v", err)
		}
		times = append(times, v)
	}
	if len(times) < 2 || len(times) > 4 {
		return lineError(l.num, "tran takes tstep tstop [tstart [tmax]]")
	}
	opts.Step, opts.Stop = times[0], times[1]
	if len(times) > 2 {
		opts.Start = times[2]
	}
	if len(times) > 3 {
		opts.MaxStep = times[3]
	}
	c.base = append(c.base, analysis.Spec{Kind: analysis.KindTransient, Transient: opts})
	return nil
}

// .step comp [param] LIN start stop points | DEC start stop points | LIST v...
func (c *cards) parseStep(l line) error {
	f := l.fields
	if len(f) < 4 {
		return lineError(l.num, "insufficient step parameters")
	}
	s := analysis.Sweep{Component: f[1]}
	rest := f[2:]
	if !isSweepType(rest[0]) {
		s.Param = strings.ToLower(rest[0])
		rest = rest[1:]
	}
	if len(rest) < 2 {
		return lineError(l.num, "step %s: missing values", s.Component)
	}

	kind := strings.ToUpper(rest[0])
	if kind == "LIST" {
		v, err := parseValues(rest[1:])
		if err != nil {
			return lineError(l.num, "step %s: %v", s.Component, err)
		}
		s.Values = v
		c.sweeps = append(c.sweeps, s)
		return nil
	}

	if len(rest) != 4 {
		return lineError(l.num, "step %s: %s takes start stop points", s.Component, kind)
	}
	v, err := parseValues(rest[1:3])
	if err != nil {
		return lineError(l.num, "step %s: %v", s.Component, err)
	}
	points, err := strconv.Atoi(rest[3])
	if err != nil {
		return lineError(l.num, "step %s: invalid points number: %v", s.Component, err)
	}
	if kind == "LIN" {
		s.Values = analysis.LinearRange(v[0], v[1], points)
	} else {
		s.Values = analysis.DecadeRange(v[0], v[1], points)
	}
	if s.Values == nil {
		return lineError(l.num, "step %s: invalid range", s.Component)
	}
	c.sweeps = append(c.sweeps, s)
	return nil
}

func isSweepType(w string) bool {
	switch strings.ToUpper(w) {
	case "LIN", "DEC", "LIST":
		return true
	}
	return false
}

// .mc trials [seed [uniform|normal]]
func (c *cards) parseMC(l line) error {
	f := l.fields
	if len(f) < 2 || len(f) > 4 {
		return lineError(l.num, "mc takes trials [seed [distribution]]")
	}
	trials, err := strconv.Atoi(f[1])
	if err != nil {
		return lineError(l.num, "invalid trial count: %v", err)
	}
	opts := &analysis.MonteCarloOptions{Trials: trials}
	if len(f) > 2 {
		if opts.Seed, err = strconv.ParseUint(f[2], 10, 64); err != nil {
			return lineError(l.num, "invalid seed: %v", err)
		}
	}
	c.mcDist = analysis.Uniform
	if len(f) > 3 {
		if c.mcDist, err = distribution(f[3]); err != nil {
			return lineError(l.num, "%v", err)
		}
	}
	c.mc = opts
	return nil
}

// .tol comp pct[%] [uniform|normal]
func (c *cards) parseTol(l line) error {
	f := l.fields
	if len(f) < 3 || len(f) > 4 {
		return lineError(l.num, "tol takes component percent [distribution]")
	}
	pct, err := ParseValue(strings.TrimSuffix(f[2], "%"))
	if err != nil {
		return lineError(l.num, "tol %s: %v", f[1], err)
	}
	t := analysis.Tolerance{Component: f[1], Percent: pct}
	if len(f) > 3 {
		if t.Distribution, err = distribution(f[3]); err != nil {
			return lineError(l.num, "%v", err)
		}
	}
	c.tolerances = append(c.tolerances, t)
	c.tolLines = append(c.tolLines, l.num)
	return nil
}

func netlistError(format string, args ...any) error {
	return fmt.Errorf("netlist: %w", simerr.Validationf("", format, args...))
}

func distribution(w string) (analysis.Distribution, error) {
	d := analysis.Distribution(strings.ToLower(w))
	switch d {
	case analysis.Uniform, analysis.Normal:
		return d, nil
	}
	return "", fmt.Errorf("unknown distribution %q", w)
}

// specs wraps every base analysis in the requested sweep.
func (c *cards) specs() ([]analysis.Spec, error) {
	if len(c.tolerances) > 0 && c.mc == nil {
		return nil, lineError(c.tolLines[0], ".tol without .mc")
	}
	if (len(c.sweeps) > 0 || c.mc != nil) && len(c.base) == 0 {
		return nil, netlistError(".step and .mc need an .op, .ac or .tran analysis")
	}
	if len(c.sweeps) > 0 && c.mc != nil {
		return nil, netlistError(".step and .mc cannot be combined")
	}

	out := make([]analysis.Spec, 0, len(c.base))
	for _, inner := range c.base {
		switch {
		case len(c.sweeps) > 0:
			out = append(out, analysis.Spec{Kind: analysis.KindParametric, Parametric: &analysis.ParametricOptions{
				Sweeps: c.sweeps,
				Inner:  inner,
			}})
		case c.mc != nil:
			opts := *c.mc
			opts.Inner = inner
			opts.Tolerances = make([]analysis.Tolerance, len(c.tolerances))
			for i, t := range c.tolerances {
				if t.Distribution == "" {
					t.Distribution = c.mcDist
				}
				opts.Tolerances[i] = t
			}
			out = append(out, analysis.Spec{Kind: analysis.KindMonteCarlo, MonteCarlo: &opts})
		default:
			out = append(out, inner)
		}
	}
	return out, nil
}
