// Package tune searches solver configurations for a fixed-point problem
// by bounded coordinate descent, minimizing iterations to convergence.
// Two knobs are understood: "damping" (the mixing factor, applied as an
// option to the damped scheme and as a composed precond.Damp for
// Anderson) and "screening" (the Kerker wavevector, composed onto the
// map). A fresh probe is one full solver run and counts against the
// budget; configurations the descent revisits replay their cached
// score for free.
package tune

import (
	"fmt"
	"math"
	"sort"

	"github.com/scfkit/go-scf/cache"
	"github.com/scfkit/go-scf/precond"
	"github.com/scfkit/go-scf/solver"
)

// FitOptions configures the search.
type FitOptions struct {
	MaxEvals int                   // solver-run budget
	Bounds   map[string][2]float64 // per-knob search interval
	Seed     map[string]float64    // starting point, clamped into Bounds
	Step     float64               // initial step as a fraction of each interval
	Spacing  float64               // grid spacing handed to Kerker when screening is tuned
	Verbose  bool
}

// DefaultFitOptions returns a damping-only search over (0, 2).
func DefaultFitOptions() *FitOptions {
	return &FitOptions{
		MaxEvals: 200,
		Bounds:   map[string][2]float64{"damping": {0.05, 1.95}},
		Seed:     map[string]float64{"damping": 0.8},
		Step:     0.1,
		Spacing:  1,
	}
}

// Probe is one scored configuration.
type Probe struct {
	Params map[string]float64
	Score  float64
}

// FitResult is the outcome of a search.
type FitResult struct {
	Best      map[string]float64
	Score     float64
	Evals     int
	Converged bool // step size collapsed before the budget ran out
	Trace     []Probe
}

// Fit searches for the configuration of method ("damped" or "anderson")
// that solves p in the fewest iterations.
func Fit(p *solver.Problem, method string, opts *solver.Options, fopts *FitOptions) (*FitResult, error) {
	if p == nil || p.F == nil || p.X0 == nil {
		return nil, fmt.Errorf("tune: incomplete problem")
	}
	if opts == nil {
		opts = solver.DefaultOptions()
	}
	if fopts == nil {
		fopts = DefaultFitOptions()
	}
	if fopts.MaxEvals < 1 {
		return nil, fmt.Errorf("tune: MaxEvals %d < 1", fopts.MaxEvals)
	}
	if len(fopts.Seed) == 0 {
		return nil, fmt.Errorf("tune: no parameters to tune")
	}
	for name := range fopts.Seed {
		if _, ok := fopts.Bounds[name]; !ok {
			return nil, fmt.Errorf("tune: no bounds for %q", name)
		}
	}
	step := fopts.Step
	if !(step > 0) {
		step = 0.1
	}

	t := &tuner{prob: p, method: method, opts: opts, fopts: fopts}
	return t.descend(step), nil
}

type tuner struct {
	prob   *solver.Problem
	method string
	opts   *solver.Options
	fopts  *FitOptions
}

// score runs one solver evaluation of a configuration.
func (t *tuner) score(params map[string]float64) float64 {
	opts := *t.opts
	f := t.prob.F
	if q, ok := params["screening"]; ok {
		f = precond.Compose(f, precond.NewKerker(t.fopts.Spacing, q))
	}

	var m solver.Method
	if t.method == "anderson" {
		if d, ok := params["damping"]; ok {
			f = precond.Compose(f, precond.NewDamp(d))
		}
		m = solver.Anderson()
	} else {
		if d, ok := params["damping"]; ok {
			opts.Damping = d
		}
		m = solver.Damped()
	}

	res, err := solver.Solve(solver.NewProblem(f, t.prob.X0), m, &opts)
	if err != nil {
		return math.Inf(1)
	}
	return Score(res, &opts)
}

// Score ranks a run, lower is better. A converged run scores its
// iteration count plus the fraction of tolerance still showing in the
// final residual, so deeper convergence breaks ties without crossing
// an iteration boundary. An exhausted run scores the budget plus ten
// per order of magnitude still to cover, which keeps a slope toward
// convergence even where nothing converges. A non-finite residual
// scores +Inf.
func Score(res *solver.Result, opts *solver.Options) float64 {
	if res.Converged {
		tie := 0.0
		if res.ResidualNorm > 0 {
			tie = res.ResidualNorm / opts.Tol
		}
		return float64(res.Iterations) + tie
	}
	if !(res.ResidualNorm > 0) || math.IsInf(res.ResidualNorm, 0) {
		return math.Inf(1)
	}
	gap := math.Log10(res.ResidualNorm / opts.Tol)
	if gap < 0 {
		gap = 0
	}
	return float64(opts.MaxIters) + 10*gap
}

func (t *tuner) descend(stepFrac float64) *FitResult {
	bounds := t.fopts.Bounds

	names := make([]string, 0, len(t.fopts.Seed))
	for name := range t.fopts.Seed {
		names = append(names, name)
	}
	sort.Strings(names)

	x := make(map[string]float64, len(names))
	steps := make(map[string]float64, len(names))
	for _, name := range names {
		b := bounds[name]
		x[name] = clamp(t.fopts.Seed[name], b)
		steps[name] = stepFrac * (b[1] - b[0])
	}

	res := &FitResult{}
	scores := cache.NewScoreCache(0)
	probe := func(params map[string]float64) float64 {
		return scores.GetOrCompute(params, func() float64 {
			s := t.score(params)
			res.Evals++
			res.Trace = append(res.Trace, Probe{Params: copyParams(params), Score: s})
			return s
		})
	}

	best := probe(x)
	if t.fopts.Verbose {
		fmt.Printf("tune: initial %v score %.4g\n", x, best)
	}

	for res.Evals < t.fopts.MaxEvals {
		improved := false

		for _, name := range names {
			b := bounds[name]
			old := x[name]

			candidates := []float64{clamp(old+steps[name], b), clamp(old-steps[name], b)}
			for _, c := range candidates {
				if c == old || res.Evals >= t.fopts.MaxEvals {
					continue
				}
				x[name] = c
				if s := probe(x); s < best {
					best = s
					old = c
					improved = true
					if t.fopts.Verbose {
						fmt.Printf("tune: %s -> %.4g score %.4g\n", name, c, s)
					}
				}
			}
			x[name] = old
		}

		if !improved {
			done := true
			for _, name := range names {
				steps[name] /= 2
				b := bounds[name]
				if steps[name] >= 1e-4*(b[1]-b[0]) {
					done = false
				}
			}
			if done {
				res.Converged = true
				break
			}
		}
	}

	res.Best = copyParams(x)
	res.Score = best
	return res
}

func clamp(v float64, b [2]float64) float64 {
	if v < b[0] {
		return b[0]
	}
	if v > b[1] {
		return b[1]
	}
	return v
}

func copyParams(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
