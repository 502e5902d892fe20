// Package circuit holds the circuit graph, its unknown layout and the MNA
// assembler that turns a graph into stamped matrices.
package circuit

import (
	"fmt"
	"slices"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

// Graph owns components in insertion order. Nodes exist implicitly through
// the components that reference them; node 0 is ground.
//
// A Graph is not safe for concurrent mutation. Analyzers only read it, and
// sweeps work on clones.
type Graph struct {
	Name       string
	components []device.Component
	index      map[string]int
}

func New(name string) *Graph {
	return &Graph{Name: name, index: make(map[string]int)}
}

// Add appends a copy of c. Names must be unique.
func (g *Graph) Add(c device.Component) error {
	if _, exists := g.index[c.Name]; exists {
		return simerr.Validationf(c.Name, "duplicate component name")
	}
	g.index[c.Name] = len(g.components)
	g.components = append(g.components, c.Clone())
	return nil
}

func (g *Graph) AddResistor(name string, n1, n2 int, ohms float64) error {
	return g.Add(device.NewResistor(name, n1, n2, ohms))
}

func (g *Graph) AddCapacitor(name string, n1, n2 int, farads float64) error {
	return g.Add(device.NewCapacitor(name, n1, n2, farads))
}

func (g *Graph) AddInductor(name string, n1, n2 int, henries float64) error {
	return g.Add(device.NewInductor(name, n1, n2, henries))
}

func (g *Graph) AddVoltageSource(name string, np, nn int, volts float64) error {
	return g.Add(device.NewVoltageSource(name, np, nn, volts))
}

func (g *Graph) AddCurrentSource(name string, np, nn int, amps float64) error {
	return g.Add(device.NewCurrentSource(name, np, nn, amps))
}

func (g *Graph) AddDiode(name string, anode, cathode int) error {
	return g.Add(device.NewDiode(name, anode, cathode))
}

func (g *Graph) AddGround(name string, node int) error {
	return g.Add(device.NewGround(name, node))
}

func (g *Graph) Len() int { return len(g.components) }

// Components returns copies in insertion order.
func (g *Graph) Components() []device.Component {
	out := make([]device.Component, len(g.components))
	for i, c := range g.components {
		out[i] = c.Clone()
	}
	return out
}

func (g *Graph) Component(name string) (device.Component, bool) {
	i, ok := g.index[name]
	if !ok {
		return device.Component{}, false
	}
	return g.components[i].Clone(), true
}

// Nodes returns the distinct non-ground node ids in ascending order.
func (g *Graph) Nodes() []int {
	seen := make(map[int]bool)
	var nodes []int
	for _, c := range g.components {
		for _, n := range c.Nodes {
			if n != 0 && !seen[n] {
				seen[n] = true
				nodes = append(nodes, n)
			}
		}
	}
	slices.Sort(nodes)
	return nodes
}

func (g *Graph) Validate() error {
	if g == nil {
		return simerr.Validationf("", "nil circuit")
	}
	if len(g.components) == 0 {
		return simerr.Validationf(g.Name, "circuit has no components")
	}
	for _, c := range g.components {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) Clone() *Graph {
	out := New(g.Name)
	out.components = g.Components()
	for k, v := range g.index {
		out.index[k] = v
	}
	return out
}

func (g *Graph) Param(component, param string) (float64, error) {
	i, ok := g.index[component]
	if !ok {
		return 0, simerr.Validationf(component, "no such component")
	}
	return g.components[i].Param(param)
}

// SetParam overrides one component parameter in place.
func (g *Graph) SetParam(component, param string, value float64) error {
	i, ok := g.index[component]
	if !ok {
		return simerr.Validationf(component, "no such component")
	}
	return g.components[i].SetParam(param, value)
}

// Fingerprint hashes the component list, so structurally identical circuits
// built in the same order share a fingerprint.
func (g *Graph) Fingerprint() (uint64, error) {
	h, err := hashstructure.Hash(g.components, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("fingerprint circuit %q: %w", g.Name, err)
	}
	return h, nil
}
