package analysis

import (
	"fmt"
	"maps"
	"math"
	"math/cmplx"
	"slices"
	"strconv"
)

// Result is the outcome of one analysis. Exactly the field that matches
// Kind is set. A Result handed to several callers is shared; use Clone
// before modifying it.
type Result struct {
	Kind       Kind
	DC         *OperatingPointResult
	AC         *ACResult
	Transient  *TransientResult
	Parametric *ParametricResult
	MonteCarlo *MonteCarloResult
}

// OperatingPointResult holds a DC solution. Currents follow the passive
// sign convention and positive power is consumption.
type OperatingPointResult struct {
	NodeVoltages   map[int]float64
	BranchCurrents map[string]float64
	Power          map[string]float64
	Iterations     int
	GminStepping   bool
}

func (r *OperatingPointResult) Voltage(node int) float64 { return r.NodeVoltages[node] }

func (r *OperatingPointResult) Current(name string) float64 { return r.BranchCurrents[name] }

// TotalPower sums the power of every component; zero up to rounding.
func (r *OperatingPointResult) TotalPower() float64 {
	sum := 0.0
	for _, k := range slices.Sorted(maps.Keys(r.Power)) {
		sum += r.Power[k]
	}
	return sum
}

// Observations flattens the result into named scalars, the quantities
// Monte Carlo aggregates: V(n) per node, I(x) and P(x) per component. AC
// results give the magnitude VM(n)@f per node and frequency; transient
// results give the values of the final sample.
func (r *Result) Observations() map[string]float64 {
	out := make(map[string]float64)
	switch {
	case r.DC != nil:
		addScalars(out, r.DC.NodeVoltages, r.DC.BranchCurrents, r.DC.Power)
	case r.AC != nil:
		for _, p := range r.AC.Points {
			if p.Err != nil {
				continue
			}
			f := strconv.FormatFloat(p.Frequency, 'g', -1, 64)
			for n, v := range p.NodeVoltages {
				if n != 0 {
					out[fmt.Sprintf("VM(%d)@%s", n, f)] = cmplx.Abs(v)
				}
			}
		}
	case r.Transient != nil && len(r.Transient.Samples) > 0:
		s := r.Transient.Samples[len(r.Transient.Samples)-1]
		addScalars(out, s.NodeVoltages, s.BranchCurrents, s.Power)
	}
	return out
}

func addScalars(out map[string]float64, v map[int]float64, i, p map[string]float64) {
	for n, x := range v {
		if n != 0 {
			out[fmt.Sprintf("V(%d)", n)] = x
		}
	}
	for name, x := range i {
		out[fmt.Sprintf("I(%s)", name)] = x
	}
	for name, x := range p {
		out[fmt.Sprintf("P(%s)", name)] = x
	}
}

// Magnitude, phase and dB helpers for phasors.
func Magnitude(v complex128) float64 { return cmplx.Abs(v) }

func PhaseDeg(v complex128) float64 { return cmplx.Phase(v) * 180.0 / math.Pi }

func DB(v complex128) float64 { return 20 * math.Log10(cmplx.Abs(v)) }

// Clone returns a deep copy that shares no maps or slices with r. Errors
// are immutable and kept as they are.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{Kind: r.Kind}
	out.DC = r.DC.clone()
	if r.AC != nil {
		ac := *r.AC
		ac.OperatingPoint = r.AC.OperatingPoint.clone()
		ac.Points = slices.Clone(r.AC.Points)
		for i, p := range ac.Points {
			ac.Points[i].NodeVoltages = maps.Clone(p.NodeVoltages)
			ac.Points[i].BranchCurrents = maps.Clone(p.BranchCurrents)
			ac.Points[i].Impedances = maps.Clone(p.Impedances)
		}
		out.AC = &ac
	}
	if r.Transient != nil {
		tr := *r.Transient
		tr.Samples = slices.Clone(r.Transient.Samples)
		for i, s := range tr.Samples {
			tr.Samples[i].NodeVoltages = maps.Clone(s.NodeVoltages)
			tr.Samples[i].BranchCurrents = maps.Clone(s.BranchCurrents)
			tr.Samples[i].Power = maps.Clone(s.Power)
		}
		out.Transient = &tr
	}
	if r.Parametric != nil {
		pr := *r.Parametric
		pr.Sweeps = slices.Clone(r.Parametric.Sweeps)
		for i, s := range pr.Sweeps {
			pr.Sweeps[i].Values = slices.Clone(s.Values)
		}
		pr.Points = slices.Clone(r.Parametric.Points)
		for i, p := range pr.Points {
			pr.Points[i].Values = slices.Clone(p.Values)
			pr.Points[i].Result = p.Result.Clone()
		}
		pr.byKey = maps.Clone(r.Parametric.byKey)
		out.Parametric = &pr
	}
	if r.MonteCarlo != nil {
		mc := *r.MonteCarlo
		mc.Stats = maps.Clone(r.MonteCarlo.Stats)
		for k, st := range mc.Stats {
			st.Percentiles = maps.Clone(st.Percentiles)
			mc.Stats[k] = st
		}
		mc.Values = maps.Clone(r.MonteCarlo.Values)
		for k, v := range mc.Values {
			mc.Values[k] = slices.Clone(v)
		}
		mc.Errors = maps.Clone(r.MonteCarlo.Errors)
		out.MonteCarlo = &mc
	}
	return out
}

func (r *OperatingPointResult) clone() *OperatingPointResult {
	if r == nil {
		return nil
	}
	out := *r
	out.NodeVoltages = maps.Clone(r.NodeVoltages)
	out.BranchCurrents = maps.Clone(r.BranchCurrents)
	out.Power = maps.Clone(r.Power)
	return &out
}
