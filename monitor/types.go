// Package monitor provides live convergence monitoring for solver runs.
// A Watch observes residual checks, fits the recent convergence rate,
// predicts whether and when the run will reach tolerance, and raises
// alerts for divergence, stalls, and budget overruns.
package monitor

import (
	"fmt"
	"sync"
	"time"
)

// Verdict classifies the trend of a residual history.
type Verdict string

const (
	// VerdictUnknown means too little usable history to classify.
	VerdictUnknown Verdict = "unknown"
	// VerdictConverging means the residual shrinks at a steady rate.
	VerdictConverging Verdict = "converging"
	// VerdictStalled means the residual is flat within the slope threshold.
	VerdictStalled Verdict = "stalled"
	// VerdictDiverging means the residual grows.
	VerdictDiverging Verdict = "diverging"
)

// Prediction is a fitted forecast for a run in progress.
type Prediction struct {
	ComputedAt time.Time
	Verdict    Verdict
	// Rate is the fitted log10 residual slope per iteration. Negative
	// values shrink the residual.
	Rate float64
	// IterationsToTol is the predicted number of further iterations
	// until the residual reaches tolerance, or -1 when the fit says it
	// never will.
	IterationsToTol int
	// Confidence is the R² of the linear fit, in [0, 1].
	Confidence float64
}

// Alert reports a condition noticed while watching a run.
type Alert struct {
	Timestamp    time.Time
	Run          string
	Type         AlertType
	Severity     AlertSeverity
	Message      string
	Iteration    int
	ResidualNorm float64
	Prediction   *Prediction
}

// AlertType categorizes alerts.
type AlertType string

const (
	AlertTypeDiverging AlertType = "diverging"
	AlertTypeStalled   AlertType = "stalled"
	AlertTypeNonFinite AlertType = "non_finite"
	AlertTypeBudget    AlertType = "budget"
)

// AlertSeverity indicates alert importance.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertHandler is called when an alert fires. Handlers run on the
// observing goroutine; keep them fast or hand off internally.
type AlertHandler func(alert Alert)

// Config tunes watching behavior.
type Config struct {
	// Tol is the residual tolerance predictions aim for.
	Tol float64
	// Window is how many recent checks the rate fit uses.
	Window int
	// MinHistory is the number of checks required before classifying.
	MinHistory int
	// SlopeEps separates a stall from genuine movement, in log10 units
	// per iteration.
	SlopeEps float64
	// Budget, when positive, is the iteration budget the run must
	// finish within; predictions beyond it raise a budget alert.
	Budget int
}

// DefaultConfig returns sensible watching defaults.
func DefaultConfig() Config {
	return Config{
		Tol:        1e-8,
		Window:     10,
		MinHistory: 5,
		SlopeEps:   1e-3,
		Budget:     0,
	}
}

// Statistics tracks watching activity.
type Statistics struct {
	Checks           int
	TotalAlerts      int
	AlertsBySeverity map[AlertSeverity]int
	AlertsByType     map[AlertType]int
}

// Watch observes one run's residual checks. It satisfies the solver's
// Observer interface. Safe for concurrent use, though a run delivers
// checks from a single goroutine.
type Watch struct {
	run       string
	config    Config
	predictor *Predictor

	mu       sync.Mutex
	norms    []float64
	lastIter int
	last     *Prediction
	fired    map[AlertType]bool
	handlers []AlertHandler
	stats    Statistics
}

// NewWatch creates a watch for one run.
func NewWatch(run string, config Config) *Watch {
	return &Watch{
		run:       run,
		config:    config,
		predictor: NewPredictor(config.Tol, config.Window, config.SlopeEps),
		fired:     make(map[AlertType]bool),
		stats: Statistics{
			AlertsBySeverity: make(map[AlertSeverity]int),
			AlertsByType:     make(map[AlertType]int),
		},
	}
}

// AddAlertHandler registers a function to call on alerts. Register
// handlers before the run starts.
func (w *Watch) AddAlertHandler(handler AlertHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Prediction returns the latest forecast, or nil before MinHistory
// checks have arrived.
func (w *Watch) Prediction() *Prediction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Statistics returns current watching statistics.
func (w *Watch) Statistics() Statistics {
	w.mu.Lock()
	defer w.mu.Unlock()
	stats := w.stats
	return stats
}

// String returns a one-line description of an alert.
func (a *Alert) String() string {
	return fmt.Sprintf("[%s] %s - run %s at iteration %d: %s",
		a.Severity, a.Type, a.Run, a.Iteration, a.Message)
}
