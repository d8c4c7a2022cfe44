package archive

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/scfkit/go-scf/field"
	"github.com/scfkit/go-scf/problem"
	"github.com/scfkit/go-scf/solver"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	opts := solver.DefaultOptions()

	if err := s.CreateRun("run-1", "contraction", "damped", opts); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "running" || run.EndedAt != nil {
		t.Fatalf("fresh run = %+v", run)
	}
	if run.Tol != opts.Tol || run.Damping != opts.Damping || run.MaxIters != opts.MaxIters {
		t.Fatalf("options not stored: %+v", run)
	}
	if time.Since(run.StartedAt) > time.Minute {
		t.Fatalf("started_at = %v", run.StartedAt)
	}

	res := &solver.Result{
		Converged:    true,
		Status:       solver.StatusConverged,
		Iterations:   12,
		Evaluations:  13,
		ResidualNorm: 1e-9,
		Runtime:      1500 * time.Millisecond,
	}
	if err := s.FinishRun("run-1", res); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "converged" || !run.Converged {
		t.Fatalf("finished run = %+v", run)
	}
	if run.EndedAt == nil {
		t.Fatal("ended_at not set")
	}
	if run.Iterations != 12 || run.Evaluations != 13 {
		t.Fatalf("counts = (%d, %d)", run.Iterations, run.Evaluations)
	}
	if run.FinalResidual != 1e-9 || run.ComputeSeconds != 1.5 {
		t.Fatalf("outcome = (%v, %v)", run.FinalResidual, run.ComputeSeconds)
	}
}

func TestFailRun(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateRun("run-1", "custom", "anderson", nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.FailRun("run-1", solver.ErrSingular); err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	run, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "error" || run.Error == "" {
		t.Fatalf("failed run = %+v", run)
	}
}

func TestChecksRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateRun("run-1", "custom", "damped", nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	norms := []float64{1, 0.5, math.NaN(), math.Inf(1), 1e-9}
	if err := s.LogChecks("run-1", norms); err != nil {
		t.Fatalf("LogChecks: %v", err)
	}
	got, err := s.GetChecks("run-1")
	if err != nil {
		t.Fatalf("GetChecks: %v", err)
	}
	if len(got) != len(norms) {
		t.Fatalf("got %d checks, want %d", len(got), len(norms))
	}
	for i, want := range norms {
		if math.IsNaN(want) {
			if !math.IsNaN(got[i]) {
				t.Fatalf("check %d = %v, want NaN", i, got[i])
			}
			continue
		}
		if got[i] != want {
			t.Fatalf("check %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateRun("run-1", "custom", "damped", nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	x, err := field.New([]int{2, 3}, []float64{1, -2, 3.5, math.NaN(), 1e300, 0})
	if err != nil {
		t.Fatalf("field.New: %v", err)
	}
	if err := s.SaveSnapshot("run-1", x); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	back, err := s.LoadSnapshot("run-1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !back.SameShape(x) {
		t.Fatalf("shape = %v, want %v", back.Shape, x.Shape)
	}
	for i := range x.Data {
		if math.Float64bits(back.Data[i]) != math.Float64bits(x.Data[i]) {
			t.Fatalf("element %d = %v, want %v", i, back.Data[i], x.Data[i])
		}
	}

	// Saving again replaces the stored fixpoint.
	y := field.FromSlice([]float64{7, 8})
	if err := s.SaveSnapshot("run-1", y); err != nil {
		t.Fatalf("SaveSnapshot replace: %v", err)
	}
	back, err = s.LoadSnapshot("run-1")
	if err != nil {
		t.Fatalf("LoadSnapshot after replace: %v", err)
	}
	if back.Len() != 2 || back.Data[0] != 7 {
		t.Fatalf("replaced snapshot = %+v", back)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LoadSnapshot("nope"); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestRecentRunsAndByProblem(t *testing.T) {
	s := newTestStore(t)
	for _, run := range []struct{ id, prob string }{
		{"run-1", "contraction"},
		{"run-2", "spectrum"},
		{"run-3", "contraction"},
	} {
		if err := s.CreateRun(run.id, run.prob, "damped", nil); err != nil {
			t.Fatalf("CreateRun %s: %v", run.id, err)
		}
		time.Sleep(time.Millisecond)
	}

	recent, err := s.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "run-3" || recent[1].ID != "run-2" {
		t.Fatalf("recent = %v, %v", recent[0].ID, recent[1].ID)
	}

	byProb, err := s.RunsForProblem("contraction")
	if err != nil {
		t.Fatalf("RunsForProblem: %v", err)
	}
	if len(byProb) != 2 || byProb[0].ID != "run-3" || byProb[1].ID != "run-1" {
		t.Fatalf("byProb = %+v", byProb)
	}
}

func TestExportRunJSON(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateRun("run-1", "custom", "damped", nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.LogChecks("run-1", []float64{1, math.NaN()}); err != nil {
		t.Fatalf("LogChecks: %v", err)
	}

	data, err := s.ExportRunJSON("run-1")
	if err != nil {
		t.Fatalf("ExportRunJSON: %v", err)
	}
	var export struct {
		Run struct {
			ID string `json:"id"`
		} `json:"run"`
		Checks []any `json:"checks"`
	}
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if export.Run.ID != "run-1" || len(export.Checks) != 2 {
		t.Fatalf("export = %+v", export)
	}
}

func TestArchiveFullSolve(t *testing.T) {
	s := newTestStore(t)

	m, err := problem.NewContraction(4, 0.5, 2.0)
	if err != nil {
		t.Fatalf("NewContraction: %v", err)
	}
	opts := solver.DefaultOptions()
	if err := s.CreateRun("run-1", m.Name, "anderson", opts); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	res, err := solver.Solve(m.Problem(), solver.Anderson(), opts)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if err := s.FinishRun("run-1", res); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := s.LogChecks("run-1", res.ResidualNorms); err != nil {
		t.Fatalf("LogChecks: %v", err)
	}
	if err := s.SaveSnapshot("run-1", res.Fixpoint); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	run, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !run.Converged || run.Iterations != res.Iterations {
		t.Fatalf("archived run = %+v", run)
	}
	checks, err := s.GetChecks("run-1")
	if err != nil {
		t.Fatalf("GetChecks: %v", err)
	}
	if len(checks) != len(res.ResidualNorms) {
		t.Fatalf("archived %d checks, run had %d", len(checks), len(res.ResidualNorms))
	}
	fix, err := s.LoadSnapshot("run-1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	for i := range fix.Data {
		if fix.Data[i] != res.Fixpoint.Data[i] {
			t.Fatalf("snapshot element %d = %v, want %v", i, fix.Data[i], res.Fixpoint.Data[i])
		}
	}
}
