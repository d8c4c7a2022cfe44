package monitor

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Predictor fits the recent residual history with a straight line in
// log10 space. Geometric convergence is linear there, so the slope is
// the per-iteration order-of-magnitude gain and extrapolating the line
// to the tolerance level predicts the remaining iteration count.
type Predictor struct {
	tol      float64
	window   int
	slopeEps float64
}

// NewPredictor creates a predictor targeting the given tolerance. The
// fit uses at most window trailing points; slopeEps is the flatness
// threshold below which a trend counts as stalled.
func NewPredictor(tol float64, window int, slopeEps float64) *Predictor {
	return &Predictor{tol: tol, window: window, slopeEps: slopeEps}
}

// Fit classifies a residual history and forecasts the remaining
// iterations. Non-positive norms carry no log information and are
// skipped; fewer than two usable points yield VerdictUnknown.
func (p *Predictor) Fit(norms []float64) *Prediction {
	pred := &Prediction{
		ComputedAt:      time.Now(),
		Verdict:         VerdictUnknown,
		Rate:            math.NaN(),
		IterationsToTol: -1,
	}

	start := 0
	if p.window > 0 && len(norms) > p.window {
		start = len(norms) - p.window
	}
	var xs, ys []float64
	for i := start; i < len(norms); i++ {
		v := norms[i]
		if !(v > 0) || math.IsInf(v, 1) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, math.Log10(v))
	}
	if len(xs) < 2 {
		return pred
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	pred.Rate = beta
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) {
		// Zero variance in the history defeats R²; a perfectly flat
		// line is still a perfectly confident fit.
		r2 = 1
	}
	pred.Confidence = math.Max(0, math.Min(1, r2))

	switch {
	case beta > p.slopeEps:
		pred.Verdict = VerdictDiverging
	case beta > -p.slopeEps:
		pred.Verdict = VerdictStalled
	default:
		pred.Verdict = VerdictConverging
		last := xs[len(xs)-1]
		fitted := alpha + beta*last
		gap := math.Log10(p.tol) - fitted
		if gap >= 0 {
			pred.IterationsToTol = 0
		} else {
			pred.IterationsToTol = int(math.Ceil(gap / beta))
		}
	}
	return pred
}
