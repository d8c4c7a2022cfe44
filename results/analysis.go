package results

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Analyzer computes insights from a run's residual history
type Analyzer struct {
	results *Results
}

// NewAnalyzer creates an analyzer for results
func NewAnalyzer(r *Results) *Analyzer {
	return &Analyzer{results: r}
}

// ComputeAll runs all analysis functions over the full residual history
func (a *Analyzer) ComputeAll() *Analysis {
	norms := fromNorms(a.results.Results.Convergence.Full)
	if len(norms) == 0 {
		norms = fromNorms(a.results.Results.Convergence.Downsampled)
	}

	analysis := &Analysis{
		Rate:         Norm(convergenceRate(norms)),
		OrdersGained: Norm(ordersGained(norms)),
		Monotone:     monotone(norms),
		Bounces:      findBounces(norms),
		Plateaus:     findPlateaus(norms),
		Residuals:    computeStats(norms),
	}
	return analysis
}

// convergenceRate is the geometric mean residual factor per iteration,
// (final/first)^(1/(n−1)), over the finite positive span of the history.
func convergenceRate(norms []float64) float64 {
	if len(norms) < 2 {
		return math.NaN()
	}
	first, last := norms[0], norms[len(norms)-1]
	if !(first > 0) || !(last > 0) || math.IsInf(first, 0) || math.IsInf(last, 0) {
		return math.NaN()
	}
	return math.Pow(last/first, 1/float64(len(norms)-1))
}

// ordersGained is log10(first/final), the orders of magnitude the
// residual dropped over the run.
func ordersGained(norms []float64) float64 {
	if len(norms) < 2 {
		return 0
	}
	first, last := norms[0], norms[len(norms)-1]
	if !(first > 0) || !(last > 0) {
		return math.NaN()
	}
	return math.Log10(first / last)
}

// monotone reports whether the residual never increased
func monotone(norms []float64) bool {
	for i := 1; i < len(norms); i++ {
		if norms[i] > norms[i-1] {
			return false
		}
	}
	return true
}

// findBounces detects residual increases between consecutive checks.
// Anderson restarts and over-aggressive damping show up here.
func findBounces(norms []float64) []Bounce {
	var bounces []Bounce
	for i := 1; i < len(norms); i++ {
		prev, cur := norms[i-1], norms[i]
		if math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		if cur > prev {
			factor := math.Inf(1)
			if prev > 0 {
				factor = cur / prev
			}
			bounces = append(bounces, Bounce{
				Iteration: i,
				From:      Norm(prev),
				To:        Norm(cur),
				Factor:    Norm(factor),
			})
		}
	}
	return bounces
}

// plateauEps is the per-step log10 movement below which the residual
// counts as flat.
const plateauEps = 0.01

// findPlateaus detects maximal stretches of at least three checks where
// the residual barely moves. A long plateau above tolerance usually
// means the damping is too heavy or the map has a slow mode.
func findPlateaus(norms []float64) []Plateau {
	var plateaus []Plateau
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= 2 {
			level := 0.0
			for i := start; i <= end; i++ {
				level += norms[i]
			}
			plateaus = append(plateaus, Plateau{
				Start: start,
				End:   end,
				Level: Norm(level / float64(end-start+1)),
			})
		}
		start = -1
	}
	for i := 1; i < len(norms); i++ {
		prev, cur := norms[i-1], norms[i]
		flat := prev > 0 && cur > 0 && math.Abs(math.Log10(cur/prev)) < plateauEps
		if flat {
			if start < 0 {
				start = i - 1
			}
			continue
		}
		flush(i - 1)
	}
	flush(len(norms) - 1)
	return plateaus
}

// computeStats calculates a statistical summary of the finite norms
func computeStats(norms []float64) Stat {
	finite := make([]float64, 0, len(norms))
	for _, v := range norms {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		nan := Norm(math.NaN())
		return Stat{Min: nan, Max: nan, Mean: nan, Median: nan, Std: nan}
	}
	sort.Float64s(finite)

	mean := stat.Mean(finite, nil)
	std := 0.0
	if len(finite) > 1 {
		std = stat.StdDev(finite, nil)
	}
	return Stat{
		Min:    Norm(finite[0]),
		Max:    Norm(finite[len(finite)-1]),
		Mean:   Norm(mean),
		Median: Norm(stat.Quantile(0.5, stat.Empirical, finite, nil)),
		Std:    Norm(std),
	}
}
