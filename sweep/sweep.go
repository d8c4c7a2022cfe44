// Package sweep explores solver configurations on a fixed problem:
// damping grids, Anderson history windows, and method comparisons. Each
// variant runs the same problem to convergence or budget and is scored
// by a results objective, lower is better, so the returned ranking puts
// the preferred configuration first.
package sweep

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/scfkit/go-scf/problem"
	"github.com/scfkit/go-scf/results"
	"github.com/scfkit/go-scf/solver"
)

// Variant is one solver configuration to evaluate. Params carries the
// configuration knobs: "damping" for the damped scheme, "window" for
// the Anderson history bound.
type Variant struct {
	Method string
	Params map[string]float64
}

// Analyzer evaluates solver configurations against a model problem.
type Analyzer struct {
	model     *problem.Model
	opts      *solver.Options
	objective string
}

// NewAnalyzer creates an analyzer with default options and the
// min_iterations objective.
func NewAnalyzer(m *problem.Model) *Analyzer {
	return &Analyzer{
		model:     m,
		opts:      solver.DefaultOptions(),
		objective: "min_iterations",
	}
}

// WithOptions sets the base solver options shared by all variants.
// Variant parameters override individual settings.
func (a *Analyzer) WithOptions(opts *solver.Options) *Analyzer {
	a.opts = opts
	return a
}

// WithObjective selects the scoring objective by name, one of the keys
// of results.Objectives.
func (a *Analyzer) WithObjective(name string) *Analyzer {
	a.objective = name
	return a
}

// evaluate runs a single variant. Solver errors fold into an
// error-status result rather than aborting the sweep.
func (a *Analyzer) evaluate(v Variant) *results.Results {
	opts := *a.opts
	if d, ok := v.Params["damping"]; ok {
		opts.Damping = d
	}

	var method solver.Method
	switch v.Method {
	case "anderson":
		am := solver.Anderson()
		if w, ok := v.Params["window"]; ok {
			am = am.WithWindow(int(w))
		}
		method = am
	default:
		method = solver.Damped()
	}

	builder := results.NewBuilder().
		WithModel(a.model).
		WithSolve(method.Name(), &opts, "")

	res, err := solver.Solve(a.model.Problem(), method, &opts)
	if err != nil {
		return builder.WithError(err).Build()
	}
	r := builder.WithResult(res, 50).Build()
	r.Analysis = results.NewAnalyzer(r).ComputeAll()
	return r
}

func (a *Analyzer) scoreVariant(id int, v Variant, objective results.ObjectiveFunc) results.VariantResult {
	r := a.evaluate(v)

	score := math.Inf(1)
	if r.Metadata.Status != results.StatusError {
		if s, err := objective(r); err == nil {
			score = s
		}
	}

	params := make(map[string]float64, len(v.Params))
	for k, val := range v.Params {
		params[k] = val
	}
	return results.VariantResult{
		ID:         id,
		Method:     v.Method,
		Parameters: params,
		Metrics:    results.ExtractMetrics(r),
		Score:      results.Norm(score),
		RunID:      r.Metadata.RunID,
	}
}

// Run evaluates the variants one after another and returns the ranked
// sweep.
func (a *Analyzer) Run(variants []Variant) (*results.SweepResults, error) {
	objective, ok := results.Objectives[a.objective]
	if !ok {
		return nil, fmt.Errorf("sweep: unknown objective %q", a.objective)
	}

	ranked := make([]results.VariantResult, len(variants))
	for i, v := range variants {
		ranked[i] = a.scoreVariant(i, v, objective)
	}
	return a.assemble(variants, ranked), nil
}

// RunParallel evaluates the variants concurrently, one goroutine per
// variant. Each goroutine writes its own slot, so no lock is needed.
func (a *Analyzer) RunParallel(variants []Variant) (*results.SweepResults, error) {
	objective, ok := results.Objectives[a.objective]
	if !ok {
		return nil, fmt.Errorf("sweep: unknown objective %q", a.objective)
	}

	ranked := make([]results.VariantResult, len(variants))
	var wg sync.WaitGroup
	for i, v := range variants {
		wg.Add(1)
		go func(idx int, variant Variant) {
			defer wg.Done()
			ranked[idx] = a.scoreVariant(idx, variant, objective)
		}(i, v)
	}
	wg.Wait()

	return a.assemble(variants, ranked), nil
}

func (a *Analyzer) assemble(variants []Variant, ranked []results.VariantResult) *results.SweepResults {
	results.RankVariants(ranked)

	sr := &results.SweepResults{
		Version:    results.SchemaVersion,
		Problem:    a.model.Name,
		Objective:  a.objective,
		Parameters: collectParameters(variants),
		Variants:   ranked,
	}
	if len(ranked) > 0 {
		sr.Best = &ranked[0]
		sr.Worst = &ranked[len(ranked)-1]
		sr.Summary.BestScore = sr.Best.Score
		sr.Summary.WorstScore = sr.Worst.Score
	}
	sr.Summary.TotalVariants = len(ranked)
	for i := range ranked {
		if ranked[i].Metrics.Converged {
			sr.Summary.ConvergedCount++
		} else {
			sr.Summary.FailedCount++
		}
	}
	sr.Recommended = results.GenerateRecommendations(sr)
	return sr
}

// SweepDamping evaluates the damped scheme at each damping value.
func (a *Analyzer) SweepDamping(values []float64) (*results.SweepResults, error) {
	return a.RunParallel(DampingVariants(values))
}

// SweepDampingRange evaluates the damped scheme at evenly spaced
// damping values in [from, to].
func (a *Analyzer) SweepDampingRange(from, to float64, steps int) (*results.SweepResults, error) {
	return a.SweepDamping(linspace(from, to, steps))
}

// SweepWindow evaluates the Anderson scheme at each history window.
// A window of 0 means unbounded history.
func (a *Analyzer) SweepWindow(windows []int) (*results.SweepResults, error) {
	return a.RunParallel(WindowVariants(windows))
}

// CompareMethods evaluates the damped and Anderson schemes at the base
// options.
func (a *Analyzer) CompareMethods() (*results.SweepResults, error) {
	return a.RunParallel([]Variant{
		{Method: "damped", Params: map[string]float64{"damping": a.opts.Damping}},
		{Method: "anderson", Params: map[string]float64{}},
	})
}

// DampingVariants builds damped-scheme variants over the given values.
func DampingVariants(values []float64) []Variant {
	variants := make([]Variant, len(values))
	for i, d := range values {
		variants[i] = Variant{
			Method: "damped",
			Params: map[string]float64{"damping": d},
		}
	}
	return variants
}

// WindowVariants builds Anderson variants over the given history
// windows.
func WindowVariants(windows []int) []Variant {
	variants := make([]Variant, len(windows))
	for i, w := range windows {
		variants[i] = Variant{
			Method: "anderson",
			Params: map[string]float64{"window": float64(w)},
		}
	}
	return variants
}

// FindBestDamping sweeps evenly spaced damping values and returns the
// best value with its score. The error reports an empty sweep.
func FindBestDamping(m *problem.Model, from, to float64, steps int) (float64, float64, error) {
	sr, err := NewAnalyzer(m).SweepDampingRange(from, to, steps)
	if err != nil {
		return 0, 0, err
	}
	if sr.Best == nil {
		return 0, 0, fmt.Errorf("sweep: no variants evaluated")
	}
	return sr.Best.Parameters["damping"], float64(sr.Best.Score), nil
}

// linspace returns steps evenly spaced values from from to to.
func linspace(from, to float64, steps int) []float64 {
	if steps <= 0 {
		return nil
	}
	if steps == 1 {
		return []float64{from}
	}
	values := make([]float64, steps)
	for i := range values {
		values[i] = from + (to-from)*float64(i)/float64(steps-1)
	}
	return values
}

// collectParameters summarizes the distinct values swept per parameter.
func collectParameters(variants []Variant) []results.ParameterSweep {
	byName := make(map[string][]float64)
	for _, v := range variants {
		for name, val := range v.Params {
			byName[name] = append(byName[name], val)
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]results.ParameterSweep, 0, len(names))
	for _, name := range names {
		values := byName[name]
		sort.Float64s(values)
		uniq := values[:1]
		for _, v := range values[1:] {
			if v != uniq[len(uniq)-1] {
				uniq = append(uniq, v)
			}
		}
		params = append(params, results.ParameterSweep{
			Name:   name,
			Values: uniq,
			Min:    uniq[0],
			Max:    uniq[len(uniq)-1],
		})
	}
	return params
}
