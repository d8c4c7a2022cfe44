package results

import (
	"fmt"
	"math"
	"sort"
)

// SweepResults contains results from a parameter sweep
type SweepResults struct {
	Version     string            `json:"version"`
	Problem     string            `json:"problem"`
	Objective   string            `json:"objective"`
	Parameters  []ParameterSweep  `json:"parameters"`
	Variants    []VariantResult   `json:"variants"`
	Best        *VariantResult    `json:"best,omitempty"`
	Worst       *VariantResult    `json:"worst,omitempty"`
	Summary     SweepSummary      `json:"summary"`
	Recommended map[string]string `json:"recommended,omitempty"`
}

// ParameterSweep describes a swept parameter
type ParameterSweep struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
}

// VariantResult contains results for one solver configuration
type VariantResult struct {
	ID         int                `json:"id"`
	Method     string             `json:"method"`
	Parameters map[string]float64 `json:"parameters"`
	Metrics    Metrics            `json:"metrics"`
	Score      Norm               `json:"score"`
	Rank       int                `json:"rank"`
	RunID      string             `json:"runId,omitempty"`
}

// Metrics contains key metrics extracted from a run
type Metrics struct {
	Converged     bool    `json:"converged"`
	Iterations    int     `json:"iterations"`
	Evaluations   int     `json:"evaluations"`
	FinalResidual Norm    `json:"finalResidual"`
	Rate          Norm    `json:"rate,omitempty"`
	ComputeTime   float64 `json:"computeTime"`
}

// SweepSummary provides overview of a sweep
type SweepSummary struct {
	TotalVariants  int  `json:"totalVariants"`
	ConvergedCount int  `json:"convergedCount"`
	FailedCount    int  `json:"failedCount"`
	BestScore      Norm `json:"bestScore"`
	WorstScore     Norm `json:"worstScore"`
}

// ObjectiveFunc evaluates how good a run is (lower is better)
type ObjectiveFunc func(*Results) (float64, error)

// Objectives maps objective names to evaluation functions. All treat
// lower as better; runs that did not converge score +Inf so they rank
// behind every converged run without being dropped.
var Objectives = map[string]ObjectiveFunc{
	"min_iterations": func(r *Results) (float64, error) {
		if !r.Results.Summary.Converged {
			return math.Inf(1), nil
		}
		return float64(r.Results.Summary.Iterations), nil
	},

	"min_evaluations": func(r *Results) (float64, error) {
		if !r.Results.Summary.Converged {
			return math.Inf(1), nil
		}
		return float64(r.Results.Summary.Evaluations), nil
	},

	"min_residual": func(r *Results) (float64, error) {
		final := float64(r.Results.Summary.FinalResidual)
		if math.IsNaN(final) {
			return math.Inf(1), nil
		}
		return final, nil
	},

	"min_time": func(r *Results) (float64, error) {
		if !r.Results.Summary.Converged {
			return math.Inf(1), nil
		}
		return r.Metadata.ComputeTime, nil
	},
}

// ExtractMetrics extracts key metrics from run results
func ExtractMetrics(r *Results) Metrics {
	m := Metrics{
		Converged:     r.Results.Summary.Converged,
		Iterations:    r.Results.Summary.Iterations,
		Evaluations:   r.Results.Summary.Evaluations,
		FinalResidual: r.Results.Summary.FinalResidual,
		ComputeTime:   r.Metadata.ComputeTime,
	}
	if r.Analysis != nil {
		m.Rate = r.Analysis.Rate
	}
	return m
}

// RankVariants sorts variants by score and assigns ranks. NaN scores
// sort last.
func RankVariants(variants []VariantResult) {
	sort.SliceStable(variants, func(i, j int) bool {
		a, b := float64(variants[i].Score), float64(variants[j].Score)
		if math.IsNaN(a) {
			return false
		}
		if math.IsNaN(b) {
			return true
		}
		return a < b
	})
	for i := range variants {
		variants[i].Rank = i + 1
	}
}

// GenerateRecommendations creates human-readable tuning hints from the
// best and worst variants
func GenerateRecommendations(sweep *SweepResults) map[string]string {
	rec := make(map[string]string)
	if sweep.Best == nil || sweep.Worst == nil {
		return rec
	}

	for param, bestVal := range sweep.Best.Parameters {
		worstVal, ok := sweep.Worst.Parameters[param]
		if !ok || bestVal == worstVal {
			continue
		}
		direction := "increase"
		if bestVal < worstVal {
			direction = "decrease"
		}
		rec[param] = fmt.Sprintf("%s (%.4g worked best, %.4g worst)",
			direction, bestVal, worstVal)
	}

	if sweep.Best.Method != sweep.Worst.Method && sweep.Best.Method != "" {
		rec["method"] = fmt.Sprintf("prefer %s over %s", sweep.Best.Method, sweep.Worst.Method)
	}

	best, worst := sweep.Best.Metrics, sweep.Worst.Metrics
	if best.Converged && worst.Converged && worst.Iterations > 0 {
		saved := worst.Iterations - best.Iterations
		rec["improvement"] = fmt.Sprintf("%d fewer iterations (%d vs %d)",
			saved, best.Iterations, worst.Iterations)
	} else if best.Converged && !worst.Converged {
		rec["improvement"] = "best configuration converged where the worst did not"
	}

	return rec
}
