package monitor

import (
	"fmt"
	"math"
	"time"
)

// Observe records one residual check, refreshes the forecast, and fires
// any newly triggered alerts. Each alert type fires at most once per
// run, so a long stall raises one alert rather than one per iteration.
func (w *Watch) Observe(iteration int, residual float64) {
	w.mu.Lock()
	w.stats.Checks++
	w.lastIter = iteration
	w.norms = append(w.norms, residual)

	var alerts []Alert

	if math.IsNaN(residual) || math.IsInf(residual, 0) {
		if !w.fired[AlertTypeNonFinite] {
			w.fired[AlertTypeNonFinite] = true
			alerts = append(alerts, Alert{
				Timestamp:    time.Now(),
				Run:          w.run,
				Type:         AlertTypeNonFinite,
				Severity:     SeverityCritical,
				Message:      fmt.Sprintf("residual norm is %v", residual),
				Iteration:    iteration,
				ResidualNorm: residual,
			})
		}
	}

	if len(w.norms) >= w.config.MinHistory {
		pred := w.predictor.Fit(w.norms)
		w.last = pred

		switch pred.Verdict {
		case VerdictDiverging:
			if !w.fired[AlertTypeDiverging] {
				w.fired[AlertTypeDiverging] = true
				alerts = append(alerts, Alert{
					Timestamp: time.Now(),
					Run:       w.run,
					Type:      AlertTypeDiverging,
					Severity:  SeverityCritical,
					Message: fmt.Sprintf("residual growing at %.2f orders of magnitude per iteration",
						pred.Rate),
					Iteration:    iteration,
					ResidualNorm: residual,
					Prediction:   pred,
				})
			}
		case VerdictStalled:
			if !w.fired[AlertTypeStalled] {
				w.fired[AlertTypeStalled] = true
				alerts = append(alerts, Alert{
					Timestamp:    time.Now(),
					Run:          w.run,
					Type:         AlertTypeStalled,
					Severity:     SeverityWarning,
					Message:      fmt.Sprintf("residual flat over the last %d checks", w.config.Window),
					Iteration:    iteration,
					ResidualNorm: residual,
					Prediction:   pred,
				})
			}
		case VerdictConverging:
			if w.config.Budget > 0 && pred.IterationsToTol >= 0 &&
				iteration+pred.IterationsToTol > w.config.Budget && !w.fired[AlertTypeBudget] {
				w.fired[AlertTypeBudget] = true
				alerts = append(alerts, Alert{
					Timestamp: time.Now(),
					Run:       w.run,
					Type:      AlertTypeBudget,
					Severity:  SeverityWarning,
					Message: fmt.Sprintf("predicted to need %d more iterations, beyond the budget of %d",
						pred.IterationsToTol, w.config.Budget),
					Iteration:    iteration,
					ResidualNorm: residual,
					Prediction:   pred,
				})
			}
		}
	}

	for _, alert := range alerts {
		w.stats.TotalAlerts++
		w.stats.AlertsBySeverity[alert.Severity]++
		w.stats.AlertsByType[alert.Type]++
	}
	handlers := w.handlers
	w.mu.Unlock()

	// Handlers run outside the lock so they may query the watch.
	for _, alert := range alerts {
		for _, handler := range handlers {
			handler(alert)
		}
	}
}

// PrintStatus writes a summary of the watch to standard output.
func (w *Watch) PrintStatus() {
	w.mu.Lock()
	stats := w.stats
	pred := w.last
	run := w.run
	checks := len(w.norms)
	w.mu.Unlock()

	fmt.Printf("=== Watch %s ===\n", run)
	fmt.Printf("Residual checks: %d\n", checks)
	fmt.Printf("Alerts: %d\n", stats.TotalAlerts)
	for severity, count := range stats.AlertsBySeverity {
		fmt.Printf("  %s: %d\n", severity, count)
	}
	if pred != nil {
		fmt.Printf("Verdict: %s (rate %.3f per iteration, confidence %.2f)\n",
			pred.Verdict, pred.Rate, pred.Confidence)
		if pred.Verdict == VerdictConverging && pred.IterationsToTol >= 0 {
			fmt.Printf("Predicted iterations to tolerance: %d\n", pred.IterationsToTol)
		}
	}
}
