// Package device defines the closed component set and its MNA stamps.
//
// Components are plain values. Everything that changes during a run
// (Newton iterate, integration history, junction limiting memory) lives in a
// Status owned by that run, so one circuit can be solved by many workers.
package device

import (
	"fmt"
	"math"
	"slices"

	"github.com/edp1096/circuit-engine/internal/consts"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

type Kind int

const (
	Resistor Kind = iota
	Capacitor
	Inductor
	VoltageSource
	CurrentSource
	Diode
	Ground
)

func (k Kind) String() string {
	switch k {
	case Resistor:
		return "resistor"
	case Capacitor:
		return "capacitor"
	case Inductor:
		return "inductor"
	case VoltageSource:
		return "voltage source"
	case CurrentSource:
		return "current source"
	case Diode:
		return "diode"
	case Ground:
		return "ground"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Terminals returns the node count the kind connects to.
func (k Kind) Terminals() int {
	if k == Ground {
		return 1
	}
	return 2
}

// HasBranch reports whether the kind owns a branch-current unknown.
func (k Kind) HasBranch() bool {
	return k == VoltageSource || k == Inductor || k == Ground
}

// Component is one circuit element. Current through a two-terminal element
// is measured from Nodes[0] through the element to Nodes[1].
type Component struct {
	Name    string
	Kind    Kind
	Nodes   []int
	Value   float64 // ohms, farads, henries, volts or amps
	Initial float64 // capacitor voltage or inductor current at the start of a transient
	Phase   float64 // AC phase of a source, degrees
	NoAC    bool    // source is a DC bias only and is zeroed in AC analysis
	Wave    *Waveform
	Is      float64 // diode saturation current
	N       float64 // diode emission coefficient
}

func NewResistor(name string, n1, n2 int, ohms float64) Component {
	return Component{Name: name, Kind: Resistor, Nodes: []int{n1, n2}, Value: ohms}
}

func NewCapacitor(name string, n1, n2 int, farads float64) Component {
	return Component{Name: name, Kind: Capacitor, Nodes: []int{n1, n2}, Value: farads}
}

func NewInductor(name string, n1, n2 int, henries float64) Component {
	return Component{Name: name, Kind: Inductor, Nodes: []int{n1, n2}, Value: henries}
}

// NewVoltageSource places value volts on np relative to nn.
func NewVoltageSource(name string, np, nn int, volts float64) Component {
	return Component{Name: name, Kind: VoltageSource, Nodes: []int{np, nn}, Value: volts}
}

// NewCurrentSource drives amps from np through the source into nn.
func NewCurrentSource(name string, np, nn int, amps float64) Component {
	return Component{Name: name, Kind: CurrentSource, Nodes: []int{np, nn}, Value: amps}
}

func NewDiode(name string, anode, cathode int) Component {
	return Component{Name: name, Kind: Diode, Nodes: []int{anode, cathode}, Is: consts.DiodeIs, N: consts.DiodeN}
}

// NewGround ties node to the reference. On node 0 it is a no-op marker.
func NewGround(name string, node int) Component {
	return Component{Name: name, Kind: Ground, Nodes: []int{node}}
}

// WithPhase returns c with the AC phase set in degrees.
func (c Component) WithPhase(degrees float64) Component {
	c.Phase = degrees
	return c
}

// WithInitial returns c with its transient initial condition set.
func (c Component) WithInitial(v float64) Component {
	c.Initial = v
	return c
}

// WithWave returns c driven by w during transient analysis.
func (c Component) WithWave(w *Waveform) Component {
	c.Wave = w
	return c
}

// Clone returns a deep copy.
func (c Component) Clone() Component {
	c.Nodes = slices.Clone(c.Nodes)
	if c.Wave != nil {
		w := *c.Wave
		w.Times = slices.Clone(w.Times)
		w.Values = slices.Clone(w.Values)
		c.Wave = &w
	}
	return c
}

func (c Component) IsNonlinear() bool { return c.Kind == Diode }

func (c Component) IsSource() bool {
	return c.Kind == VoltageSource || c.Kind == CurrentSource
}

// Param reads an overridable parameter.
func (c *Component) Param(name string) (float64, error) {
	p, err := c.param(name)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// SetParam overrides a parameter. The result is not validated here.
func (c *Component) SetParam(name string, value float64) error {
	p, err := c.param(name)
	if err != nil {
		return err
	}
	*p = value
	return nil
}

func (c *Component) param(name string) (*float64, error) {
	switch name {
	case "value", "":
		if c.Kind != Diode && c.Kind != Ground {
			return &c.Value, nil
		}
	case "initial", "ic":
		if c.Kind == Capacitor || c.Kind == Inductor {
			return &c.Initial, nil
		}
	case "phase":
		if c.IsSource() {
			return &c.Phase, nil
		}
	case "is":
		if c.Kind == Diode {
			return &c.Is, nil
		}
	case "n":
		if c.Kind == Diode {
			return &c.N, nil
		}
	}
	return nil, simerr.Validationf(c.Name, "%s has no parameter %q", c.Kind, name)
}

func (c Component) Validate() error {
	if c.Name == "" {
		return simerr.Validationf("", "component without a name")
	}
	if len(c.Nodes) != c.Kind.Terminals() {
		return simerr.Validationf(c.Name, "%s needs %d nodes, got %d", c.Kind, c.Kind.Terminals(), len(c.Nodes))
	}
	for _, n := range c.Nodes {
		if n < 0 {
			return simerr.Validationf(c.Name, "node %d does not exist", n)
		}
	}
	for _, v := range []float64{c.Value, c.Initial, c.Phase, c.Is, c.N} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return simerr.Validationf(c.Name, "non-finite parameter")
		}
	}

	switch c.Kind {
	case Resistor, Capacitor, Inductor:
		if c.Value <= 0 {
			return simerr.Validationf(c.Name, "%s value must be positive, got %g", c.Kind, c.Value)
		}
	case Diode:
		if c.Is <= 0 || c.N <= 0 {
			return simerr.Validationf(c.Name, "diode needs positive is and n")
		}
	case VoltageSource, CurrentSource, Ground:
	default:
		return simerr.Validationf(c.Name, "unknown component kind %d", int(c.Kind))
	}

	if (c.Kind == VoltageSource || c.Kind == Inductor) && c.Nodes[0] == c.Nodes[1] {
		return simerr.Validationf(c.Name, "%s terminals are shorted to node %d", c.Kind, c.Nodes[0])
	}
	if c.Wave != nil {
		if !c.IsSource() {
			return simerr.Validationf(c.Name, "only sources take a waveform")
		}
		if err := c.Wave.validate(); err != nil {
			return simerr.Validationf(c.Name, "%v", err)
		}
	}
	return nil
}

// SourceValue is the instantaneous source value used by real-valued modes.
func (c Component) SourceValue(st *Status) float64 {
	if c.Wave != nil && (st.Mode == Transient || st.Mode == State) {
		return c.Wave.At(st.Time)
	}
	return c.Value
}

// Phasor is the AC excitation of a source.
func (c Component) Phasor() complex128 {
	if c.NoAC {
		return 0
	}
	phase := c.Phase * math.Pi / 180.0
	return complex(c.Value*math.Cos(phase), c.Value*math.Sin(phase))
}
