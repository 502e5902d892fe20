package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edp1096/circuit-engine/pkg/analysis"
	"github.com/edp1096/circuit-engine/pkg/coordinator"
	"github.com/edp1096/circuit-engine/pkg/netlist"
	"github.com/edp1096/circuit-engine/pkg/util"
)

// reporter prints results using the netlist's node names.
type reporter struct {
	w     io.Writer
	nl    *netlist.Netlist
	names map[int]string
}

func newReporter(w io.Writer, nl *netlist.Netlist) *reporter {
	names := make(map[int]string, len(nl.Nodes))
	for _, name := range slices.Sorted(maps.Keys(nl.Nodes)) {
		id := nl.Nodes[name]
		if _, taken := names[id]; !taken {
			names[id] = name
		}
	}
	return &reporter{w: w, nl: nl, names: names}
}

func (r *reporter) node(id int) string {
	if name, ok := r.names[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// rename replaces the node id inside V(2) or VM(2)@f with its name.
func (r *reporter) rename(key string) string {
	open, end := strings.IndexByte(key, '('), strings.IndexByte(key, ')')
	if !strings.HasPrefix(key, "V") || open < 0 || end < open {
		return key
	}
	id, err := strconv.Atoi(key[open+1 : end])
	if err != nil {
		return key
	}
	return key[:open+1] + r.node(id) + key[end:]
}

func (r *reporter) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

func (r *reporter) header() {
	r.printf("%s\n%s\n", r.nl.Title, strings.Repeat("=", max(len(r.nl.Title), 16)))
}

func (r *reporter) summary() {
	r.header()
	r.printf("\nNodes:\n")
	for _, id := range r.nl.Circuit.Nodes() {
		r.printf("  %-8s -> %d\n", r.node(id), id)
	}
	r.printf("\nComponents (%d):\n", r.nl.Circuit.Len())
	for _, c := range r.nl.Circuit.Components() {
		nodes := make([]string, len(c.Nodes))
		for i, n := range c.Nodes {
			nodes[i] = r.node(n)
		}
		r.printf("  %-8s %-15s %-16s %g\n", c.Name, c.Kind, strings.Join(nodes, " "), c.Value)
	}
	r.printf("\nAnalyses (%d):\n", len(r.nl.Analyses))
	for _, spec := range r.nl.Analyses {
		r.printf("  %s\n", describe(spec))
	}
}

func describe(spec analysis.Spec) string {
	switch spec.Kind {
	case analysis.KindAC:
		return fmt.Sprintf("ac %s %d %g..%g Hz", spec.AC.Sweep, spec.AC.Points, spec.AC.Start, spec.AC.Stop)
	case analysis.KindTransient:
		return fmt.Sprintf("transient step=%g stop=%g method=%s", spec.Transient.Step, spec.Transient.Stop, spec.Transient.Method)
	case analysis.KindParametric:
		n := 1
		for _, s := range spec.Parametric.Sweeps {
			n *= len(s.Values)
		}
		return fmt.Sprintf("parametric %d points over %s", n, describe(spec.Parametric.Inner))
	case analysis.KindMonteCarlo:
		return fmt.Sprintf("montecarlo %d trials seed=%d over %s", spec.MonteCarlo.Trials, spec.MonteCarlo.Seed, describe(spec.MonteCarlo.Inner))
	default:
		return spec.Kind.String()
	}
}

func (r *reporter) result(resp *coordinator.Response) {
	res := resp.Result
	cached := ""
	if resp.Cached {
		cached = ", cached"
	}
	r.printf("\n%s analysis (%s%s)\n", res.Kind, resp.Elapsed.Round(time.Microsecond), cached)
	r.printf("%s\n", strings.Repeat("-", 48))

	switch {
	case res.DC != nil:
		r.dc(res.DC)
	case res.AC != nil:
		r.ac(res.AC)
	case res.Transient != nil:
		r.transient(res.Transient)
	case res.Parametric != nil:
		r.parametric(res.Parametric)
	case res.MonteCarlo != nil:
		r.monteCarlo(res.MonteCarlo)
	}
}

func (r *reporter) dc(op *analysis.OperatingPointResult) {
	r.printf("Node Voltages:\n")
	for _, n := range slices.Sorted(maps.Keys(op.NodeVoltages)) {
		if n != 0 {
			r.printf("  V(%s) = %s\n", r.node(n), util.FormatValueFactor(op.NodeVoltages[n], "V"))
		}
	}
	r.printf("Branch Currents:\n")
	for _, name := range slices.Sorted(maps.Keys(op.BranchCurrents)) {
		r.printf("  I(%s) = %s   P = %s\n", name,
			util.FormatValueFactor(op.BranchCurrents[name], "A"),
			util.FormatValueFactor(op.Power[name], "W"))
	}
	r.printf("Newton iterations: %d", op.Iterations)
	if op.GminStepping {
		r.printf(" (gmin stepping)")
	}
	r.printf("\n")
}

func (r *reporter) ac(res *analysis.ACResult) {
	if res.OperatingPoint != nil {
		r.printf("Operating point:\n")
		r.dc(res.OperatingPoint)
	}
	r.printf("Frequency    Node Voltages (Magnitude/Phase)\n")
	for _, p := range res.Points {
		r.printf("%-13s", util.FormatFrequency(p.Frequency))
		if p.Err != nil {
			r.printf("failed: %v\n", p.Err)
			continue
		}
		for _, n := range slices.Sorted(maps.Keys(p.NodeVoltages)) {
			if n == 0 {
				continue
			}
			v := p.NodeVoltages[n]
			r.printf("%s  ", util.FormatMagnitudePhase("V("+r.node(n)+")", analysis.Magnitude(v), analysis.PhaseDeg(v)))
		}
		r.printf("\n")
	}
	if res.Failures > 0 {
		r.printf("%d of %d frequencies failed\n", res.Failures, len(res.Points))
	}
}

func (r *reporter) transient(res *analysis.TransientResult) {
	r.printf("Method %s: %d steps accepted, %d rejected, %d samples\n",
		res.Method, res.Accepted, res.Rejected, len(res.Samples))
	for _, s := range res.Samples {
		r.printf("%11s  ", util.FormatTime(s.Time))
		for _, n := range slices.Sorted(maps.Keys(s.NodeVoltages)) {
			if n != 0 {
				r.printf("V(%s)=%s  ", r.node(n), util.FormatValueFactor(s.NodeVoltages[n], "V"))
			}
		}
		for _, name := range slices.Sorted(maps.Keys(s.BranchCurrents)) {
			r.printf("I(%s)=%s  ", name, util.FormatValueFactor(s.BranchCurrents[name], "A"))
		}
		r.printf("\n")
	}
}

func (r *reporter) parametric(res *analysis.ParametricResult) {
	r.printf("%d points, %d failed\n", len(res.Points), res.Failures)
	for _, p := range res.Points {
		r.printf("[%s] ", p.Key)
		switch {
		case p.Err != nil:
			r.printf("failed: %v\n", p.Err)
		case p.Result.AC != nil:
			r.printf("%d frequencies, %d failed\n", len(p.Result.AC.Points), p.Result.AC.Failures)
		default:
			r.printf("%s\n", r.observations(p.Result))
		}
	}
}

// observations renders node voltages and currents on one line.
func (r *reporter) observations(res *analysis.Result) string {
	obs := res.Observations()
	var parts []string
	for _, key := range slices.Sorted(maps.Keys(obs)) {
		if strings.HasPrefix(key, "P(") {
			continue
		}
		parts = append(parts, r.rename(key)+"="+util.FormatStat(key, obs[key]))
	}
	return strings.Join(parts, "  ")
}

func (r *reporter) monteCarlo(res *analysis.MonteCarloResult) {
	r.printf("%d trials, %d failed\n", res.Trials, res.Failures)
	for _, trial := range slices.Sorted(maps.Keys(res.Errors)) {
		r.printf("  trial %d: %v\n", trial, res.Errors[trial])
	}
	for _, key := range slices.Sorted(maps.Keys(res.Stats)) {
		st := res.Stats[key]
		r.printf("%-16s mean=%s std=%s min=%s max=%s", r.rename(key),
			util.FormatStat(key, st.Mean), util.FormatStat(key, st.StdDev),
			util.FormatStat(key, st.Min), util.FormatStat(key, st.Max))
		for _, q := range slices.Sorted(maps.Keys(st.Percentiles)) {
			r.printf(" p%g=%s", q, util.FormatStat(key, st.Percentiles[q]))
		}
		r.printf("\n")
	}
}
