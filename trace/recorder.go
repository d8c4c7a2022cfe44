package trace

import "time"

// Recorder captures a run's residual checks as a Trace. It satisfies the
// solver's Observer interface and is not safe for concurrent use; give
// each run its own Recorder.
type Recorder struct {
	tr    Trace
	start time.Time
}

// NewRecorder creates a recorder for one run. The run ID keys the trace
// inside a Log; method and problem are carried for labeling.
func NewRecorder(run, method, problem string) *Recorder {
	return &Recorder{
		tr:    Trace{Run: run, Method: method, Problem: problem},
		start: time.Now(),
	}
}

// Observe appends one residual check.
func (r *Recorder) Observe(iteration int, residual float64) {
	r.tr.Records = append(r.tr.Records, Record{
		Run:          r.tr.Run,
		Method:       r.tr.Method,
		Problem:      r.tr.Problem,
		Iteration:    iteration,
		ResidualNorm: residual,
		Elapsed:      time.Since(r.start),
	})
}

// Trace returns the recorded trace. The returned value shares the
// recorder's backing slice; stop observing before using it.
func (r *Recorder) Trace() *Trace {
	return &r.tr
}
