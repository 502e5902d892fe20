// Package netlist reads a SPICE-style text netlist into a circuit graph and
// the analyses it requests.
package netlist

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/edp1096/circuit-engine/internal/consts"
	"github.com/edp1096/circuit-engine/pkg/analysis"
	"github.com/edp1096/circuit-engine/pkg/circuit"
	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

// Netlist is a parsed netlist. Analyses appear in card order; .step and .mc
// cards wrap every base analysis.
type Netlist struct {
	Title    string
	Circuit  *circuit.Graph
	Nodes    map[string]int // node name -> node id
	Analyses []analysis.Spec
}

// line is one logical line after continuation merging.
type line struct {
	num    int
	fields []string
}

type element struct {
	line
	kind  string
	name  string
	nodes []string
}

type diodeModel struct {
	is, n float64
}

type parser struct {
	elements []element
	models   map[string]diodeModel
	cards    cards
}

func ParseFile(path string) (*Netlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read netlist: %w", err)
	}
	return Parse(string(data))
}

// Parse reads a netlist. The first line is the title. Lines starting with
// '*' are comments, ';' starts an inline comment and '+' continues the
// previous line.
func Parse(input string) (*Netlist, error) {
	title, lines, err := split(input)
	if err != nil {
		return nil, err
	}

	p := &parser{models: make(map[string]diodeModel)}
	for _, l := range lines {
		if err := p.parseLine(l); err != nil {
			return nil, err
		}
	}

	nl := &Netlist{Title: title, Circuit: circuit.New(title)}
	if nl.Nodes, err = p.nodeIDs(); err != nil {
		return nil, err
	}
	for _, e := range p.elements {
		c, err := p.component(e, nl.Nodes)
		if err != nil {
			return nil, err
		}
		if err := nl.Circuit.Add(c); err != nil {
			return nil, fmt.Errorf("netlist line %d: %w", e.num, err)
		}
	}
	if nl.Analyses, err = p.cards.specs(); err != nil {
		return nil, err
	}
	return nl, nil
}

func split(input string) (string, []line, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	var title string
	if scanner.Scan() {
		title = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "*"))
	}

	var lines []line
	num := 1
	for scanner.Scan() {
		num++
		text := scanner.Text()
		if idx := strings.IndexByte(text, ';'); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "*") {
			continue
		}

		if strings.HasPrefix(text, "+") {
			if len(lines) == 0 {
				return "", nil, lineError(num, "continuation without a preceding line")
			}
			last := &lines[len(lines)-1]
			last.fields = append(last.fields, strings.Fields(text[1:])...)
			continue
		}
		lines = append(lines, line{num: num, fields: strings.Fields(text)})
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("read netlist: %w", err)
	}
	return title, lines, nil
}

func lineError(num int, format string, args ...any) error {
	return fmt.Errorf("netlist line %d: %w", num, simerr.Validationf("", format, args...))
}

func (p *parser) parseLine(l line) error {
	head := l.fields[0]
	if strings.HasPrefix(head, ".") {
		return p.parseDot(l)
	}

	kind := strings.ToUpper(head[:1])
	switch kind {
	case "R", "C", "L", "V", "I", "D":
	default:
		return lineError(l.num, "unsupported element %s", head)
	}
	if len(l.fields) < 3 {
		return lineError(l.num, "element %s needs two nodes", head)
	}
	if kind != "D" && len(l.fields) < 4 {
		return lineError(l.num, "element %s has no value", head)
	}
	p.elements = append(p.elements, element{line: l, kind: kind, name: head, nodes: l.fields[1:3]})
	return nil
}

func (p *parser) parseDot(l line) error {
	switch strings.ToLower(l.fields[0]) {
	case ".model":
		return p.parseModel(l)
	case ".end", ".title", ".options", ".option":
		return nil
	default:
		return p.cards.parse(l)
	}
}

// parseModel reads ".model name D(is=1e-14 n=1.5)". Unknown diode
// parameters are ignored.
func (p *parser) parseModel(l line) error {
	rest := strings.Join(l.fields[1:], " ")
	rest = strings.NewReplacer("(", " ", ")", " ", ",", " ").Replace(rest)
	words := strings.Fields(rest)
	if len(words) < 2 {
		return lineError(l.num, "insufficient model parameters")
	}
	name, typ := words[0], strings.ToUpper(words[1])
	if typ != "D" {
		return lineError(l.num, "unsupported model type: %s", typ)
	}

	m := diodeModel{is: consts.DiodeIs, n: consts.DiodeN}
	for _, pair := range words[2:] {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return lineError(l.num, "model parameter %q is not name=value", pair)
		}
		v, err := ParseValue(val)
		if err != nil {
			return lineError(l.num, "model %s: %v", name, err)
		}
		switch strings.ToLower(key) {
		case "is":
			m.is = v
		case "n":
			m.n = v
		}
	}
	p.models[strings.ToLower(name)] = m
	return nil
}

// nodeIDs maps node names to ids. "0" and "gnd" are ground and numeric names
// keep their number; other names are numbered after the largest numeric
// node, in order of first use.
func (p *parser) nodeIDs() (map[string]int, error) {
	ids := map[string]int{}
	var named []string
	maxID := 0
	for _, e := range p.elements {
		for _, n := range e.nodes {
			if _, seen := ids[n]; seen || slices.Contains(named, n) {
				continue
			}
			if strings.EqualFold(n, "gnd") {
				ids[n] = 0
				continue
			}
			if id, err := strconv.Atoi(n); err == nil {
				if id < 0 {
					return nil, lineError(e.num, "negative node number %d", id)
				}
				ids[n] = id
				maxID = max(maxID, id)
				continue
			}
			named = append(named, n)
		}
	}
	for i, n := range named {
		ids[n] = maxID + 1 + i
	}
	return ids, nil
}

func (p *parser) component(e element, ids map[string]int) (device.Component, error) {
	n1, n2 := ids[e.nodes[0]], ids[e.nodes[1]]
	args := e.fields[3:]

	switch e.kind {
	case "R", "C", "L":
		v, err := ParseValue(args[0])
		if err != nil {
			return device.Component{}, lineError(e.num, "%s: %v", e.name, err)
		}
		var c device.Component
		switch e.kind {
		case "R":
			c = device.NewResistor(e.name, n1, n2, v)
		case "C":
			c = device.NewCapacitor(e.name, n1, n2, v)
		default:
			c = device.NewInductor(e.name, n1, n2, v)
		}
		for _, a := range args[1:] {
			key, val, ok := strings.Cut(a, "=")
			if !ok || !strings.EqualFold(key, "ic") || e.kind == "R" {
				return device.Component{}, lineError(e.num, "%s: unexpected %q", e.name, a)
			}
			ic, err := ParseValue(val)
			if err != nil {
				return device.Component{}, lineError(e.num, "%s: %v", e.name, err)
			}
			c = c.WithInitial(ic)
		}
		return c, nil

	case "D":
		c := device.NewDiode(e.name, n1, n2)
		if len(args) > 0 {
			m, ok := p.models[strings.ToLower(args[0])]
			if !ok {
				return device.Component{}, lineError(e.num, "%s: undefined model %s", e.name, args[0])
			}
			c.Is, c.N = m.is, m.n
		}
		return c, nil

	default:
		return parseSource(e, n1, n2)
	}
}
