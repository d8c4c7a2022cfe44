// Package convplot renders residual convergence histories as log-scale
// line plots, one line per run, to PNG or SVG files.
package convplot

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/scfkit/go-scf/trace"
)

const (
	defaultWidth  = 6 * vg.Inch
	defaultHeight = 4 * vg.Inch
)

// Series is one named residual history.
type Series struct {
	Name  string
	Norms []float64
}

// FromTrace converts a recorded trace into a plot series named after
// its run.
func FromTrace(tr *trace.Trace) Series {
	return Series{Name: tr.Run, Norms: tr.Norms()}
}

// ResidualPlot writes a residual-vs-iteration plot to path. The output
// format follows the file extension (.png, .svg, .pdf).
func ResidualPlot(norms []float64, title, path string) error {
	return ComparePlot([]Series{{Name: "residual", Norms: norms}}, title, path)
}

// ComparePlot writes several residual histories on shared axes with a
// legend. The Y axis is logarithmic, so non-positive and non-finite
// norms are dropped from each line; a series with nothing plottable is
// skipped, and a plot with no lines at all is an error.
func ComparePlot(series []Series, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Residual norm"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	plotted := 0
	for i, s := range series {
		pts := logPoints(s.Norms)
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("convplot: %w", err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		if s.Name != "" {
			p.Legend.Add(s.Name, line)
		}
		plotted++
	}
	if plotted == 0 {
		return fmt.Errorf("convplot: no positive residual norms to plot")
	}
	p.Legend.Top = true

	if err := p.Save(defaultWidth, defaultHeight, path); err != nil {
		return fmt.Errorf("convplot: %w", err)
	}
	return nil
}

// logPoints keeps the plottable part of a history: finite, strictly
// positive norms, indexed by iteration.
func logPoints(norms []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(norms))
	for i, v := range norms {
		if v > 0 && !math.IsInf(v, 1) {
			pts = append(pts, plotter.XY{X: float64(i), Y: v})
		}
	}
	return pts
}
