package solver

import (
	"fmt"
	"time"
)

// DampedMethod is plain fixed-point iteration with linear mixing: each
// step accepts a Damping-scaled fraction of the residual,
//
//	x ← x + damping·(F(x) − x)
//
// With damping 1 this is undamped fixed-point iteration. Convergence is
// checked against the state from before the pending update, and on
// success that pre-update state is returned, not the fresher F(x) already
// in hand; the reported fixpoint therefore lags the last evaluation by
// one step. The same applies at budget exhaustion, where one final check
// uses the latest evaluation but the returned state is its argument.
type DampedMethod struct {
	obs Observer
}

// Damped returns the damped fixed-point scheme.
func Damped() *DampedMethod {
	return &DampedMethod{}
}

// WithObserver registers an observer for per-check residual norms.
func (m *DampedMethod) WithObserver(o Observer) *DampedMethod {
	m.obs = o
	return m
}

// Name returns "damped".
func (m *DampedMethod) Name() string { return "damped" }

// Solve runs damped fixed-point iteration on p.
func (m *DampedMethod) Solve(p *Problem, opts *Options) (*Result, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	state := p.X0.Clone()
	fstate, err := p.F(state)
	if err != nil {
		return nil, fmt.Errorf("solver: evaluating map: %w", err)
	}
	evals := 1
	norms := make([]float64, 0, opts.MaxIters+1)

	for i := 0; i < opts.MaxIters; i++ {
		residual, err := fstate.Sub(state)
		if err != nil {
			return nil, fmt.Errorf("solver: iteration %d: %w", i, err)
		}
		rn := residual.Norm()
		norms = append(norms, rn)
		if m.obs != nil {
			m.obs.Observe(i, rn)
		}
		if rn < opts.Tol {
			return &Result{
				Fixpoint:      state,
				Converged:     true,
				Status:        StatusConverged,
				Iterations:    i,
				Evaluations:   evals,
				ResidualNorm:  rn,
				ResidualNorms: norms,
				Runtime:       time.Since(start),
			}, nil
		}
		state, err = state.AddScaled(opts.Damping, residual)
		if err != nil {
			return nil, fmt.Errorf("solver: iteration %d: %w", i, err)
		}
		fstate, err = p.F(state)
		if err != nil {
			return nil, fmt.Errorf("solver: iteration %d: evaluating map: %w", i, err)
		}
		evals++
	}

	// Budget exhausted: one final check against the evaluation already in
	// hand. The returned state is the argument of that evaluation.
	residual, err := fstate.Sub(state)
	if err != nil {
		return nil, fmt.Errorf("solver: final check: %w", err)
	}
	rn := residual.Norm()
	norms = append(norms, rn)
	if m.obs != nil {
		m.obs.Observe(opts.MaxIters, rn)
	}
	converged := rn < opts.Tol
	status := StatusExhausted
	if converged {
		status = StatusConverged
	}
	return &Result{
		Fixpoint:      state,
		Converged:     converged,
		Status:        status,
		Iterations:    opts.MaxIters,
		Evaluations:   evals,
		ResidualNorm:  rn,
		ResidualNorms: norms,
		Runtime:       time.Since(start),
	}, nil
}
