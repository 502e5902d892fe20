package circuit

import (
	"fmt"

	"github.com/edp1096/circuit-engine/pkg/device"
)

// Layout is the unknown vector of every analysis: node voltages in
// ascending node id order at rows 1..N, then branch currents in component
// order. State-mode capacitor rows follow the fixed part.
type Layout struct {
	nodes      []int
	rows       map[int]int
	branches   []string
	branchRows map[string]int
	aux        []string
}

func newLayout(g *Graph) *Layout {
	l := &Layout{
		nodes:      g.Nodes(),
		rows:       make(map[int]int),
		branchRows: make(map[string]int),
	}
	for i, n := range l.nodes {
		l.rows[n] = i + 1
	}

	for _, c := range g.components {
		if !c.Kind.HasBranch() || (c.Kind == device.Ground && c.Nodes[0] == 0) {
			continue
		}
		l.branches = append(l.branches, c.Name)
		l.branchRows[c.Name] = len(l.nodes) + len(l.branches)
	}
	for _, c := range g.components {
		if c.Kind == device.Capacitor {
			l.aux = append(l.aux, c.Name)
		}
	}
	return l
}

func (l *Layout) NumNodes() int    { return len(l.nodes) }
func (l *Layout) NumBranches() int { return len(l.branches) }

// Size is the unknown count of DC, AC and transient systems.
func (l *Layout) Size() int { return len(l.nodes) + len(l.branches) }

// StateSize is the unknown count of State-mode systems.
func (l *Layout) StateSize() int { return l.Size() + len(l.aux) }

// Nodes returns the node ids in row order.
func (l *Layout) Nodes() []int { return append([]int(nil), l.nodes...) }

// Row returns the matrix row of a node, 0 for ground.
func (l *Layout) Row(node int) int { return l.rows[node] }

// BranchRow returns the branch-current row of a component, 0 if none.
func (l *Layout) BranchRow(name string) int { return l.branchRows[name] }

func (l *Layout) auxRow(k int) int { return l.Size() + k + 1 }

// Describe names the unknown at a 1-based row.
func (l *Layout) Describe(row int) string {
	switch {
	case row <= 0:
		return "ground"
	case row <= len(l.nodes):
		return fmt.Sprintf("node %d", l.nodes[row-1])
	case row <= l.Size():
		return fmt.Sprintf("branch %s", l.branches[row-len(l.nodes)-1])
	case row <= l.StateSize():
		return fmt.Sprintf("current of %s", l.aux[row-l.Size()-1])
	default:
		return fmt.Sprintf("row %d", row)
	}
}
