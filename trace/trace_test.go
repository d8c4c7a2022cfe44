package trace

import (
	"math"
	"testing"
)

func geometric(run string, norms ...float64) *Trace {
	tr := &Trace{Run: run, Method: "damped", Problem: "contraction"}
	for i, n := range norms {
		tr.Records = append(tr.Records, Record{
			Run: run, Method: tr.Method, Problem: tr.Problem,
			Iteration: i, ResidualNorm: n,
		})
	}
	return tr
}

func TestLogGroupsByRun(t *testing.T) {
	log := NewLog()
	log.Add(Record{Run: "b", Iteration: 0, ResidualNorm: 1})
	log.Add(Record{Run: "a", Iteration: 0, ResidualNorm: 1})
	log.Add(Record{Run: "b", Iteration: 1, ResidualNorm: 0.5})

	if log.NumRuns() != 2 {
		t.Fatalf("NumRuns = %d, want 2", log.NumRuns())
	}
	if log.NumRecords() != 3 {
		t.Fatalf("NumRecords = %d, want 3", log.NumRecords())
	}
	traces := log.Traces()
	if traces[0].Run != "a" || traces[1].Run != "b" {
		t.Fatalf("traces not sorted by run: %s, %s", traces[0].Run, traces[1].Run)
	}
	if traces[1].Len() != 2 {
		t.Fatalf("run b has %d records, want 2", traces[1].Len())
	}
}

func TestTraceAnalytics(t *testing.T) {
	tr := geometric("r", 8, 4, 2, 1)
	if got := tr.Reduction(); math.Abs(got-0.125) > 1e-15 {
		t.Fatalf("Reduction = %v, want 0.125", got)
	}
	if got := tr.Rate(); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("Rate = %v, want 0.5", got)
	}
	if !tr.Monotone() {
		t.Fatal("geometric decay reported non-monotone")
	}

	bumpy := geometric("r", 1, 0.5, 0.7, 0.1)
	if bumpy.Monotone() {
		t.Fatal("residual bump reported monotone")
	}

	empty := &Trace{Run: "e"}
	if !math.IsNaN(empty.Reduction()) || !math.IsNaN(empty.Rate()) {
		t.Fatal("empty trace analytics should be NaN")
	}
	if _, ok := empty.Final(); ok {
		t.Fatal("empty trace reported a final record")
	}
}

func TestSummarize(t *testing.T) {
	log := NewLog()
	for _, rec := range geometric("good", 1, 1e-4, 1e-9).Records {
		log.Add(rec)
	}
	for _, rec := range geometric("bad", 1, 3, 2).Records {
		log.Add(rec)
	}

	s := log.Summarize()
	if s.NumRuns != 2 || s.NumRecords != 6 {
		t.Fatalf("counts = (%d, %d), want (2, 6)", s.NumRuns, s.NumRecords)
	}
	if s.BestRun != "good" || s.BestFinal != 1e-9 {
		t.Fatalf("best = (%s, %v), want (good, 1e-9)", s.BestRun, s.BestFinal)
	}
	if s.WorstRun != "bad" || s.WorstFinal != 2 {
		t.Fatalf("worst = (%s, %v), want (bad, 2)", s.WorstRun, s.WorstFinal)
	}
	if s.MonotoneRuns != 1 {
		t.Fatalf("MonotoneRuns = %d, want 1", s.MonotoneRuns)
	}
	if math.Abs(s.AvgChecks-3) > 1e-15 {
		t.Fatalf("AvgChecks = %v, want 3", s.AvgChecks)
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder("run-1", "anderson", "spectrum")
	rec.Observe(0, 1.0)
	rec.Observe(1, 0.25)

	tr := rec.Trace()
	if tr.Run != "run-1" || tr.Method != "anderson" || tr.Problem != "spectrum" {
		t.Fatalf("trace labels = (%s, %s, %s)", tr.Run, tr.Method, tr.Problem)
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
	if tr.Records[1].Iteration != 1 || tr.Records[1].ResidualNorm != 0.25 {
		t.Fatalf("record 1 = %+v", tr.Records[1])
	}
	if tr.Records[0].Elapsed > tr.Records[1].Elapsed {
		t.Fatal("elapsed times not monotone")
	}
}
