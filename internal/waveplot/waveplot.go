// Package waveplot renders transient waveforms and AC magnitude responses
// as images.
package waveplot

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/edp1096/circuit-engine/pkg/analysis"
)

const (
	Width  = 8 * vg.Inch
	Height = 4 * vg.Inch
)

var ErrNoData = errors.New("waveplot: nothing to plot")

type Series struct {
	Name string
	X, Y []float64
}

type Chart struct {
	Title  string
	XLabel string
	YLabel string
	LogX   bool
	Series []Series
}

// NodeName labels a node for legends; nil falls back to the node number.
type NodeName func(node int) string

func (f NodeName) label(node int) string {
	if f != nil {
		if s := f(node); s != "" {
			return s
		}
	}
	return fmt.Sprint(node)
}

// Transient builds one voltage trace per non-ground node.
func Transient(title string, res *analysis.TransientResult, name NodeName) Chart {
	c := Chart{Title: title, XLabel: "time (s)", YLabel: "voltage (V)"}
	if res == nil || len(res.Samples) == 0 {
		return c
	}
	for _, n := range nodesOf(res.Samples[0].NodeVoltages) {
		s := Series{Name: "V(" + name.label(n) + ")"}
		for _, smp := range res.Samples {
			s.X = append(s.X, smp.Time)
			s.Y = append(s.Y, smp.NodeVoltages[n])
		}
		c.Series = append(c.Series, s)
	}
	return c
}

// AC builds one dB magnitude curve per non-ground node. Failed frequencies
// and zero magnitudes are left out of the curve.
func AC(title string, res *analysis.ACResult, name NodeName) Chart {
	c := Chart{Title: title, XLabel: "frequency (Hz)", YLabel: "magnitude (dB)", LogX: true}
	if res == nil {
		return c
	}
	var nodes []int
	for _, p := range res.Points {
		if p.Err == nil {
			nodes = nodesOf(p.NodeVoltages)
			break
		}
	}
	for _, n := range nodes {
		s := Series{Name: "V(" + name.label(n) + ")"}
		for _, p := range res.Points {
			if p.Err != nil {
				continue
			}
			db := analysis.DB(p.NodeVoltages[n])
			if math.IsInf(db, 0) || math.IsNaN(db) {
				continue
			}
			s.X = append(s.X, p.Frequency)
			s.Y = append(s.Y, db)
		}
		c.Series = append(c.Series, s)
	}
	return c
}

func nodesOf[V any](m map[int]V) []int {
	var out []int
	for n := range m {
		if n != 0 {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

func (c Chart) plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = c.XLabel
	p.Y.Label.Text = c.YLabel
	if c.LogX {
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Add(plotter.NewGrid())

	drawn := 0
	for i, s := range c.Series {
		if len(s.X) == 0 {
			continue
		}
		if len(s.X) != len(s.Y) {
			return nil, fmt.Errorf("waveplot: series %q has %d x and %d y values", s.Name, len(s.X), len(s.Y))
		}
		xys := make(plotter.XYs, len(s.X))
		for j := range s.X {
			xys[j].X, xys[j].Y = s.X[j], s.Y[j]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("waveplot: series %q: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
		drawn++
	}
	if drawn == 0 {
		return nil, ErrNoData
	}
	return p, nil
}

// Render writes the chart in the given format ("png", "svg", "pdf").
func (c Chart) Render(w io.Writer, format string) error {
	p, err := c.plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Width, Height, format)
	if err != nil {
		return fmt.Errorf("waveplot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("waveplot: write: %w", err)
	}
	return nil
}

// Save writes the chart to path; the extension picks the format.
func (c Chart) Save(path string) error {
	p, err := c.plot()
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("waveplot: save %s: %w", path, err)
	}
	return nil
}
