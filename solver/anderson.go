package solver

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/scfkit/go-scf/field"
)

// AndersonMethod is Anderson-accelerated fixed-point iteration. Each step
// starts from the undamped candidate x + r and corrects it with a linear
// combination of differences against past iterates, with coefficients from
// a least-squares fit that minimizes the extrapolated residual. The first
// step, before any history exists, is exactly one undamped step.
//
// Unlike DampedMethod, the convergence check and the returned state are in
// sync: the residual tested is the residual of the state returned. The
// Damping option is ignored by the core step; external damping is applied
// by pre-composing the map, for example with precond.Damp.
//
// The least-squares solve grows with history length and dominates once
// history is large. Runs expected to take hundreds of iterations should
// bound the history with WithWindow; note that a window changes the
// iterate trajectory relative to the unbounded default.
type AndersonMethod struct {
	window int
	obs    Observer
}

// Anderson returns the Anderson-accelerated fixed-point scheme with
// unbounded history.
//
// Reference: D.G. Anderson, "Iterative procedures for nonlinear integral
// equations", Journal of the ACM 12(4), 1965. The scheme coincides with
// Pulay mixing (DIIS) as used by electronic-structure codes.
func Anderson() *AndersonMethod {
	return &AndersonMethod{}
}

// WithWindow bounds the history to the n most recent pairs. n <= 0
// restores the unbounded default.
func (m *AndersonMethod) WithWindow(n int) *AndersonMethod {
	m.window = n
	return m
}

// WithObserver registers an observer for per-check residual norms.
func (m *AndersonMethod) WithObserver(o Observer) *AndersonMethod {
	m.obs = o
	return m
}

// Name returns "anderson".
func (m *AndersonMethod) Name() string { return "anderson" }

// Solve runs Anderson-accelerated iteration on p.
func (m *AndersonMethod) Solve(p *Problem, opts *Options) (*Result, error) {
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
	residual, err := fstate.Sub(state)
	if err != nil {
		return nil, fmt.Errorf("solver: initial residual: %w", err)
	}
	rn := residual.Norm()
	norms := make([]float64, 0, opts.MaxIters+1)
	norms = append(norms, rn)
	if m.obs != nil {
		m.obs.Observe(0, rn)
	}

	hist := NewHistory(m.window)
	iters := 0
	// The loop condition keeps iterating while the check fails; a NaN
	// residual fails every check and runs the budget out.
	for iters < opts.MaxIters && !(rn < opts.Tol) {
		next, err := state.Add(residual)
		if err != nil {
			return nil, fmt.Errorf("solver: iteration %d: %w", iters, err)
		}
		if hist.Len() > 0 {
			beta, err := extrapolate(hist, residual)
			if err != nil {
				return nil, fmt.Errorf("solver: iteration %d: %w", iters, err)
			}
			for k, b := range beta {
				stateK, residualK := hist.At(k)
				ds, err := stateK.Sub(state)
				if err != nil {
					return nil, fmt.Errorf("solver: iteration %d: %w", iters, err)
				}
				dr, err := residualK.Sub(residual)
				if err != nil {
					return nil, fmt.Errorf("solver: iteration %d: %w", iters, err)
				}
				step, err := ds.Add(dr)
				if err != nil {
					return nil, fmt.Errorf("solver: iteration %d: %w", iters, err)
				}
				next, err = next.AddScaled(b, step)
				if err != nil {
					return nil, fmt.Errorf("solver: iteration %d: %w", iters, err)
				}
			}
		}
		// The pair joins the history only after the extrapolation, so a
		// step never uses its own residual.
		hist.Append(state, residual)
		state = next

		fstate, err = p.F(state)
		if err != nil {
			return nil, fmt.Errorf("solver: iteration %d: evaluating map: %w", iters, err)
		}
		evals++
		residual, err = fstate.Sub(state)
		if err != nil {
			return nil, fmt.Errorf("solver: iteration %d: %w", iters, err)
		}
		rn = residual.Norm()
		iters++
		norms = append(norms, rn)
		if m.obs != nil {
			m.obs.Observe(iters, rn)
		}
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
		Iterations:    iters,
		Evaluations:   evals,
		ResidualNorm:  rn,
		ResidualNorms: norms,
		Runtime:       time.Since(start),
	}, nil
}

// extrapolate solves the least-squares problem min ‖Mβ + r‖ whose matrix
// columns are the differences residual_k − r over the history, returning
// the mixing coefficients β, oldest entry first.
func extrapolate(h *History, residual *field.Field) ([]float64, error) {
	n := residual.Len()
	cols := h.Len()
	mtx := mat.NewDense(n, cols, nil)
	for k := 0; k < cols; k++ {
		_, residualK := h.At(k)
		for j := 0; j < n; j++ {
			mtx.Set(j, k, residualK.Data[j]-residual.Data[j])
		}
	}
	rhs := mat.NewVecDense(n, nil)
	for j := 0; j < n; j++ {
		rhs.SetVec(j, -residual.Data[j])
	}
	return minNormSolve(mtx, rhs)
}

// minNormSolve computes the minimum-norm least-squares solution of a·x = b
// by singular value decomposition, dropping singular values at or below a
// relative rank cutoff. A fully degenerate (rank zero) system yields the
// zero vector, which for the extrapolation means a plain undamped step.
func minNormSolve(a *mat.Dense, b *mat.VecDense) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("least-squares factorization failed: %w", ErrSingular)
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	rows, cols := a.Dims()
	maxDim := rows
	if cols > maxDim {
		maxDim = cols
	}
	eps := math.Nextafter(1, 2) - 1
	cutoff := 0.0
	if len(s) > 0 {
		// Singular values are in descending order.
		cutoff = s[0] * float64(maxDim) * eps
	}

	x := make([]float64, cols)
	for i, sv := range s {
		if sv <= cutoff {
			break
		}
		c := mat.Dot(u.ColView(i), b) / sv
		col := v.ColView(i)
		for j := 0; j < cols; j++ {
			x[j] += c * col.AtVec(j)
		}
	}
	return x, nil
}
