// Package trace records and analyzes solver convergence histories.
// A trace is the sequence of residual-norm checks one run performed;
// a log collects traces from many runs for comparison. Traces round-trip
// through CSV and JSONL for archival and plotting.
package trace

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Record is a single residual check during a run. Its JSON form is
// defined in jsonl.go; non-finite residual norms are carried as strings
// there because bare NaN is not valid JSON.
type Record struct {
	Run          string
	Method       string
	Problem      string
	Iteration    int
	ResidualNorm float64
	Elapsed      time.Duration
}

// Trace is the convergence history of a single run.
type Trace struct {
	Run     string
	Method  string
	Problem string
	Records []Record
}

// Log collects traces from multiple runs.
type Log struct {
	Runs map[string]*Trace
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{Runs: make(map[string]*Trace)}
}

// Add appends a record to its run's trace, creating the trace if needed.
func (log *Log) Add(rec Record) {
	tr, ok := log.Runs[rec.Run]
	if !ok {
		tr = &Trace{Run: rec.Run, Method: rec.Method, Problem: rec.Problem}
		log.Runs[rec.Run] = tr
	}
	tr.Records = append(tr.Records, rec)
}

// Traces returns all traces sorted by run ID.
func (log *Log) Traces() []*Trace {
	traces := make([]*Trace, 0, len(log.Runs))
	for _, tr := range log.Runs {
		traces = append(traces, tr)
	}
	sort.Slice(traces, func(i, j int) bool {
		return traces[i].Run < traces[j].Run
	})
	return traces
}

// NumRuns returns the number of runs in the log.
func (log *Log) NumRuns() int {
	return len(log.Runs)
}

// NumRecords returns the total record count across runs.
func (log *Log) NumRecords() int {
	total := 0
	for _, tr := range log.Runs {
		total += len(tr.Records)
	}
	return total
}

// Len returns the number of residual checks in the trace.
func (tr *Trace) Len() int { return len(tr.Records) }

// First returns the first record and whether one exists.
func (tr *Trace) First() (Record, bool) {
	if len(tr.Records) == 0 {
		return Record{}, false
	}
	return tr.Records[0], true
}

// Final returns the last record and whether one exists.
func (tr *Trace) Final() (Record, bool) {
	if len(tr.Records) == 0 {
		return Record{}, false
	}
	return tr.Records[len(tr.Records)-1], true
}

// Norms returns the residual norms in iteration order.
func (tr *Trace) Norms() []float64 {
	norms := make([]float64, len(tr.Records))
	for i, rec := range tr.Records {
		norms[i] = rec.ResidualNorm
	}
	return norms
}

// Reduction returns the final-to-first residual ratio, or NaN for traces
// with fewer than two records or a zero first norm.
func (tr *Trace) Reduction() float64 {
	if len(tr.Records) < 2 {
		return math.NaN()
	}
	first := tr.Records[0].ResidualNorm
	if first == 0 {
		return math.NaN()
	}
	return tr.Records[len(tr.Records)-1].ResidualNorm / first
}

// Rate returns the geometric-mean contraction factor per iteration,
// (final/first)^(1/(n−1)). Values below 1 mean the residual shrinks.
func (tr *Trace) Rate() float64 {
	n := len(tr.Records)
	if n < 2 {
		return math.NaN()
	}
	red := tr.Reduction()
	if !(red > 0) {
		return math.NaN()
	}
	return math.Pow(red, 1/float64(n-1))
}

// Monotone reports whether the residual norm never increased.
func (tr *Trace) Monotone() bool {
	for i := 1; i < len(tr.Records); i++ {
		if tr.Records[i].ResidualNorm > tr.Records[i-1].ResidualNorm {
			return false
		}
	}
	return true
}

// String returns a one-line description of the trace.
func (tr *Trace) String() string {
	final, ok := tr.Final()
	if !ok {
		return fmt.Sprintf("Run %s: empty", tr.Run)
	}
	return fmt.Sprintf("Run %s: %s on %s, %d checks, final residual %.3e",
		tr.Run, tr.Method, tr.Problem, tr.Len(), final.ResidualNorm)
}

// Summary holds aggregate statistics over a log.
type Summary struct {
	NumRuns       int
	NumRecords    int
	BestRun       string
	BestFinal     float64
	WorstRun      string
	WorstFinal    float64
	AvgChecks     float64
	MonotoneRuns  int
	TotalDuration time.Duration
}

// Summarize computes aggregate statistics over all runs in the log.
func (log *Log) Summarize() Summary {
	s := Summary{
		NumRuns:    log.NumRuns(),
		NumRecords: log.NumRecords(),
		BestFinal:  math.Inf(1),
		WorstFinal: math.Inf(-1),
	}
	if s.NumRuns == 0 {
		s.BestFinal = math.NaN()
		s.WorstFinal = math.NaN()
		return s
	}
	for _, tr := range log.Traces() {
		final, ok := tr.Final()
		if !ok {
			continue
		}
		// NaN finals compare false both ways and never take best or worst.
		if final.ResidualNorm < s.BestFinal {
			s.BestFinal = final.ResidualNorm
			s.BestRun = tr.Run
		}
		if final.ResidualNorm > s.WorstFinal {
			s.WorstFinal = final.ResidualNorm
			s.WorstRun = tr.Run
		}
		if tr.Monotone() {
			s.MonotoneRuns++
		}
		s.TotalDuration += final.Elapsed
	}
	s.AvgChecks = float64(s.NumRecords) / float64(s.NumRuns)
	return s
}

// Print writes the summary to standard output.
func (s Summary) Print() {
	fmt.Println("=== Convergence Log Summary ===")
	fmt.Printf("Runs: %d\n", s.NumRuns)
	fmt.Printf("Residual checks: %d\n", s.NumRecords)
	fmt.Printf("Best run: %s (final residual %.3e)\n", s.BestRun, s.BestFinal)
	fmt.Printf("Worst run: %s (final residual %.3e)\n", s.WorstRun, s.WorstFinal)
	fmt.Printf("Monotone runs: %d\n", s.MonotoneRuns)
	fmt.Printf("Avg checks per run: %.1f\n", s.AvgChecks)
	fmt.Printf("Total solver time: %v\n", s.TotalDuration)
}
