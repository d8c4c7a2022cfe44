package convplot

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scfkit/go-scf/trace"
)

func TestResidualPlotWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "residual.png")

	norms := []float64{1, 0.5, 0.25, 0.125, 0.0625}
	if err := ResidualPlot(norms, "damped mixing", path); err != nil {
		t.Fatalf("ResidualPlot: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestComparePlotWritesSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compare.svg")

	series := []Series{
		{Name: "damped", Norms: []float64{1, 0.6, 0.36, 0.216}},
		{Name: "anderson", Norms: []float64{1, 0.1, 0.001}},
	}
	if err := ComparePlot(series, "damped vs anderson", path); err != nil {
		t.Fatalf("ComparePlot: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "svg") {
		t.Error("output does not look like SVG")
	}
}

func TestComparePlotSkipsUnplottableSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.png")

	series := []Series{
		{Name: "diverged", Norms: []float64{math.NaN(), math.Inf(1)}},
		{Name: "fine", Norms: []float64{1, 0.5}},
	}
	if err := ComparePlot(series, "", path); err != nil {
		t.Fatalf("ComparePlot: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
}

func TestComparePlotNothingToPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")

	series := []Series{
		{Name: "zeros", Norms: []float64{0, 0}},
		{Name: "nan", Norms: []float64{math.NaN()}},
	}
	if err := ComparePlot(series, "", path); err == nil {
		t.Error("expected error when no series is plottable")
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("no file should be written")
	}
}

func TestFromTrace(t *testing.T) {
	rec := trace.NewRecorder("run-7", "anderson", "contraction")
	rec.Observe(0, 1)
	rec.Observe(1, 0.25)

	s := FromTrace(rec.Trace())
	if s.Name != "run-7" {
		t.Errorf("name = %q", s.Name)
	}
	if len(s.Norms) != 2 || s.Norms[1] != 0.25 {
		t.Errorf("norms = %v", s.Norms)
	}
}

func TestLogPoints(t *testing.T) {
	pts := logPoints([]float64{1, 0, -2, math.NaN(), math.Inf(1), 0.5})
	if len(pts) != 2 {
		t.Fatalf("kept %d points, want 2", len(pts))
	}
	if pts[0].X != 0 || pts[0].Y != 1 {
		t.Errorf("pts[0] = %+v", pts[0])
	}
	if pts[1].X != 5 || pts[1].Y != 0.5 {
		t.Errorf("pts[1] = %+v", pts[1])
	}
}
