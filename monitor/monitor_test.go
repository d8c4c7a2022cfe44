package monitor

import (
	"math"
	"testing"

	"github.com/scfkit/go-scf/field"
	"github.com/scfkit/go-scf/solver"
)

func powers(rate float64, n int) []float64 {
	norms := make([]float64, n)
	for i := range norms {
		norms[i] = math.Pow(10, rate*float64(i))
	}
	return norms
}

func TestPredictorConverging(t *testing.T) {
	p := NewPredictor(1e-8, 0, 1e-3)
	pred := p.Fit(powers(-0.5, 10))
	if pred.Verdict != VerdictConverging {
		t.Fatalf("verdict = %s, want converging", pred.Verdict)
	}
	if math.Abs(pred.Rate+0.5) > 1e-9 {
		t.Fatalf("rate = %v, want -0.5", pred.Rate)
	}
	if pred.Confidence < 0.999 {
		t.Fatalf("confidence = %v for a perfect line", pred.Confidence)
	}
	// Fitted log10 residual at the last point is -4.5; reaching -8 at
	// half an order per iteration takes 7 more, give or take rounding.
	if pred.IterationsToTol < 7 || pred.IterationsToTol > 8 {
		t.Fatalf("IterationsToTol = %d, want about 7", pred.IterationsToTol)
	}
}

func TestPredictorDiverging(t *testing.T) {
	p := NewPredictor(1e-8, 0, 1e-3)
	pred := p.Fit(powers(0.2, 8))
	if pred.Verdict != VerdictDiverging {
		t.Fatalf("verdict = %s, want diverging", pred.Verdict)
	}
	if pred.IterationsToTol != -1 {
		t.Fatalf("IterationsToTol = %d for a diverging run", pred.IterationsToTol)
	}
}

func TestPredictorStalled(t *testing.T) {
	p := NewPredictor(1e-8, 0, 1e-3)
	pred := p.Fit([]float64{0.5, 0.5, 0.5, 0.5, 0.5})
	if pred.Verdict != VerdictStalled {
		t.Fatalf("verdict = %s, want stalled", pred.Verdict)
	}
	if pred.Confidence != 1 {
		t.Fatalf("confidence = %v for a flat line", pred.Confidence)
	}
}

func TestPredictorUnknown(t *testing.T) {
	p := NewPredictor(1e-8, 0, 1e-3)
	for _, norms := range [][]float64{
		nil,
		{1.0},
		{0, 0, 0},
		{math.Inf(1), math.NaN(), 1.0},
	} {
		if pred := p.Fit(norms); pred.Verdict != VerdictUnknown {
			t.Fatalf("Fit(%v) verdict = %s, want unknown", norms, pred.Verdict)
		}
	}
}

func TestPredictorWindowIgnoresOldHistory(t *testing.T) {
	// Early divergence followed by a clean converging tail: a windowed
	// fit sees only the tail.
	norms := append(powers(0.5, 10), powers(-0.5, 10)...)
	full := NewPredictor(1e-8, 0, 1e-3).Fit(norms)
	tail := NewPredictor(1e-8, 5, 1e-3).Fit(norms)
	if tail.Verdict != VerdictConverging {
		t.Fatalf("windowed verdict = %s, want converging", tail.Verdict)
	}
	if full.Verdict == VerdictConverging && full.Confidence > tail.Confidence {
		t.Fatal("full-history fit should not beat the clean tail")
	}
}

func TestWatchDivergingAlert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 3
	w := NewWatch("run-1", cfg)

	var alerts []Alert
	w.AddAlertHandler(func(a Alert) { alerts = append(alerts, a) })

	for i, norm := range powers(0.3, 8) {
		w.Observe(i, norm)
	}

	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want exactly 1", len(alerts))
	}
	a := alerts[0]
	if a.Type != AlertTypeDiverging || a.Severity != SeverityCritical {
		t.Fatalf("alert = %s/%s, want diverging/critical", a.Type, a.Severity)
	}
	if a.Run != "run-1" {
		t.Fatalf("alert run = %q", a.Run)
	}
	if a.Prediction == nil || a.Prediction.Verdict != VerdictDiverging {
		t.Fatal("alert carries no diverging prediction")
	}

	stats := w.Statistics()
	if stats.Checks != 8 || stats.TotalAlerts != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.AlertsByType[AlertTypeDiverging] != 1 {
		t.Fatalf("AlertsByType = %v", stats.AlertsByType)
	}
}

func TestWatchNonFiniteAlertFiresOnce(t *testing.T) {
	w := NewWatch("run-1", DefaultConfig())
	var alerts []Alert
	w.AddAlertHandler(func(a Alert) { alerts = append(alerts, a) })

	w.Observe(0, 1.0)
	w.Observe(1, math.NaN())
	w.Observe(2, math.NaN())
	w.Observe(3, math.Inf(1))

	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Type != AlertTypeNonFinite || alerts[0].Iteration != 1 {
		t.Fatalf("alert = %+v", alerts[0])
	}
}

func TestWatchBudgetAlert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 4
	cfg.Budget = 10
	w := NewWatch("run-1", cfg)
	var alerts []Alert
	w.AddAlertHandler(func(a Alert) { alerts = append(alerts, a) })

	// A tenth of an order of magnitude per iteration needs about 80
	// iterations to reach 1e-8, far beyond the budget of 10.
	for i, norm := range powers(-0.1, 6) {
		w.Observe(i, norm)
	}

	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Type != AlertTypeBudget || alerts[0].Severity != SeverityWarning {
		t.Fatalf("alert = %s/%s", alerts[0].Type, alerts[0].Severity)
	}
}

func TestWatchObservesSolverRun(t *testing.T) {
	w := NewWatch("contraction", DefaultConfig())
	var alerts []Alert
	w.AddAlertHandler(func(a Alert) { alerts = append(alerts, a) })

	f := func(x *field.Field) (*field.Field, error) {
		out := x.Clone()
		for i, v := range out.Data {
			out.Data[i] = v - 0.5*v
		}
		return out, nil
	}
	prob := solver.NewProblem(f, field.FromSlice([]float64{10, -10}))
	opts := solver.DefaultOptions()
	opts.Damping = 1.0
	res, err := solver.Solve(prob, solver.Damped().WithObserver(w), opts)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !res.Converged {
		t.Fatalf("no convergence in %d iterations", res.Iterations)
	}
	if len(alerts) != 0 {
		t.Fatalf("healthy run raised alerts: %v", alerts)
	}
	pred := w.Prediction()
	if pred == nil || pred.Verdict != VerdictConverging {
		t.Fatalf("prediction = %+v, want converging", pred)
	}
	// Contraction by half per iteration is 10^log10(0.5).
	if math.Abs(pred.Rate-math.Log10(0.5)) > 1e-6 {
		t.Fatalf("rate = %v, want %v", pred.Rate, math.Log10(0.5))
	}
	if stats := w.Statistics(); stats.Checks != len(res.ResidualNorms) {
		t.Fatalf("watch saw %d checks, run recorded %d", stats.Checks, len(res.ResidualNorms))
	}
}
