package circuit

import (
	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/matrix"
)

// StateVar is one entry of the transient state vector: a capacitor voltage
// or an inductor current.
type StateVar struct {
	Name    string
	Kind    device.Kind
	Element int
}

// Assembler builds MNA systems for a validated circuit. It is immutable once
// created and may be shared between goroutines; per-run data lives in the
// device.Status passed to Stamp.
type Assembler struct {
	layout    *Layout
	elements  []*device.Element
	states    []StateVar
	junctions int
}

func NewAssembler(g *Graph) (*Assembler, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	a := &Assembler{layout: newLayout(g)}
	capIdx := 0
	for i, c := range g.Components() {
		e := &device.Element{Component: c, Slot: -1, Junction: -1}
		for _, n := range c.Nodes {
			e.Idx = append(e.Idx, a.layout.Row(n))
		}
		e.Branch = a.layout.BranchRow(c.Name)

		switch c.Kind {
		case device.Capacitor:
			e.Aux = a.layout.auxRow(capIdx)
			capIdx++
			e.Slot = len(a.states)
			a.states = append(a.states, StateVar{Name: c.Name, Kind: c.Kind, Element: i})
		case device.Inductor:
			e.Slot = len(a.states)
			a.states = append(a.states, StateVar{Name: c.Name, Kind: c.Kind, Element: i})
		case device.Diode:
			e.Junction = a.junctions
			a.junctions++
		}
		a.elements = append(a.elements, e)
	}
	return a, nil
}

func (a *Assembler) Layout() *Layout { return a.layout }

// Elements exposes the bound elements. Callers must not modify them.
func (a *Assembler) Elements() []*device.Element { return a.elements }

func (a *Assembler) States() []StateVar { return a.states }

func (a *Assembler) HasNonlinear() bool { return a.junctions > 0 }

func (a *Assembler) NumJunctions() int { return a.junctions }

func (a *Assembler) Size(mode device.Mode) int {
	if mode == device.State {
		return a.layout.StateSize()
	}
	return a.layout.Size()
}

// NewMatrix allocates a system sized for mode whose singular errors name
// the offending unknown.
func (a *Assembler) NewMatrix(mode device.Mode, opts matrix.Options) (*matrix.CircuitMatrix, error) {
	opts.Namer = a.layout.Describe
	return matrix.NewMatrix(a.Size(mode), mode == device.AC, opts)
}

// Stamp adds every element for st.Mode. The caller clears m first.
func (a *Assembler) Stamp(m matrix.DeviceMatrix, st *device.Status) error {
	st.Limited = false
	for _, e := range a.elements {
		if err := device.Stamp(e, m, st); err != nil {
			return err
		}
	}
	return nil
}

// NodeVoltages maps node ids to their solved voltage. Ground is included.
func (a *Assembler) NodeVoltages(sol []float64) map[int]float64 {
	out := map[int]float64{0: 0}
	for i, n := range a.layout.nodes {
		out[n] = sol[i+1]
	}
	return out
}

func (a *Assembler) NodeVoltagesAC(sol []complex128) map[int]complex128 {
	out := map[int]complex128{0: 0}
	for i, n := range a.layout.nodes {
		out[n] = sol[i+1]
	}
	return out
}

// Measure returns the current through and power consumed by every
// component. Positive power is consumption.
func (a *Assembler) Measure(sol []float64, st *device.Status) (currents, power map[string]float64) {
	currents = make(map[string]float64, len(a.elements))
	power = make(map[string]float64, len(a.elements))
	for _, e := range a.elements {
		i := device.Current(e, sol, st)
		currents[e.Name] = i
		if e.Kind == device.Ground {
			power[e.Name] = 0
			continue
		}
		power[e.Name] = e.Voltage(sol) * i
	}
	return currents, power
}

// MeasureAC returns phasor currents for every component, linearized around
// the operating point op (nil for linear circuits).
func (a *Assembler) MeasureAC(sol []complex128, op []float64, st *device.Status) map[string]complex128 {
	out := make(map[string]complex128, len(a.elements))
	for _, e := range a.elements {
		out[e.Name] = device.CurrentAC(e, sol, op, st)
	}
	return out
}

// Impedances returns the impedance of every passive R, L, C at freq.
func (a *Assembler) Impedances(freq float64) map[string]complex128 {
	out := make(map[string]complex128)
	for _, e := range a.elements {
		if z, ok := device.Impedance(e, freq); ok {
			out[e.Name] = z
		}
	}
	return out
}
