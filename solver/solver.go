// Package solver implements fixed-point solvers for self-consistent-field
// (SCF) style problems: find a state x with F(x) = x, given only an opaque
// map F. Two iteration schemes are provided, plain damped mixing and
// Anderson acceleration, sharing one problem, options, and result surface
// so they are drop-in replaceable.
//
// Example:
//
//	prob := solver.NewProblem(f, x0)
//	res, err := solver.Solve(prob, solver.Anderson(), solver.DefaultOptions())
//	if err != nil {
//	    // fatal: shape mismatch, failed evaluation, degenerate extrapolation
//	}
//	if !res.Converged {
//	    // structural: the iteration budget ran out first
//	}
package solver

import (
	"errors"
	"fmt"
	"time"

	"github.com/scfkit/go-scf/field"
)

// Common solver errors. Non-convergence is deliberately not among them: a
// run that exhausts its budget returns a Result with Converged == false,
// not an error.
var (
	// ErrOptions reports an invalid configuration.
	ErrOptions = errors.New("solver: invalid options")
	// ErrProblem reports a problem with a missing map or initial guess.
	ErrProblem = errors.New("solver: incomplete problem")
	// ErrSingular reports an extrapolation system so degenerate that no
	// least-squares solution could be produced.
	ErrSingular = errors.New("solver: singular extrapolation system")
)

// Map is a fixed-point map: given a state it produces the next state. The
// produced state must be a fresh value with the same shape as the input.
// An error returned by a Map is fatal to the run and propagates unchanged;
// non-finite values are not errors and flow through the iteration.
type Map func(*field.Field) (*field.Field, error)

// Problem is a fixed-point problem F(x) = x with an initial guess.
type Problem struct {
	// F is the fixed-point map supplied by the caller, typically a
	// physical response function, optionally pre-composed with a
	// preconditioner.
	F Map

	// X0 is the initial guess. All states in a run share its shape.
	X0 *field.Field
}

// NewProblem creates a fixed-point problem from a map and an initial guess.
func NewProblem(f Map, x0 *field.Field) *Problem {
	return &Problem{F: f, X0: x0}
}

// Residual evaluates the fixed-point defect F(x) - x at a state.
func (p *Problem) Residual(x *field.Field) (*field.Field, error) {
	fx, err := p.F(x)
	if err != nil {
		return nil, err
	}
	return fx.Sub(x)
}

func (p *Problem) check() error {
	if p == nil || p.F == nil || p.X0 == nil {
		return ErrProblem
	}
	return nil
}

// Method is an iteration scheme that drives a problem toward its fixed
// point. Damped and Anderson return the two built-in schemes.
type Method interface {
	// Name identifies the scheme in results, traces, and archives.
	Name() string

	// Solve runs the iteration loop on p under opts. A nil opts means
	// DefaultOptions. The returned error covers only fatal conditions;
	// exhausting the budget yields a Result with Converged == false.
	Solve(p *Problem, opts *Options) (*Result, error)
}

// Solve runs method m on problem p. It is shorthand for m.Solve(p, opts).
func Solve(p *Problem, m Method, opts *Options) (*Result, error) {
	return m.Solve(p, opts)
}

// Observer receives one callback per convergence check, in iteration
// order. Iteration 0 is the check against the initial guess for schemes
// that evaluate before updating. Observers must not block: the solver
// calls them synchronously from the loop.
type Observer interface {
	Observe(iteration int, residual float64)
}

// Status is the terminal state of a run.
type Status int

const (
	// StatusRunning is the in-loop state; a returned Result never
	// carries it.
	StatusRunning Status = iota
	// StatusConverged means the residual norm dropped below tolerance.
	StatusConverged
	// StatusExhausted means the iteration budget ran out first.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusConverged:
		return "converged"
	case StatusExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the outcome of one solver run.
type Result struct {
	// Fixpoint is the accepted state. It always has the shape of the
	// initial guess, whether or not the run converged.
	Fixpoint *field.Field

	// Converged reports whether the residual norm dropped below the
	// tolerance before (or exactly as) the budget ran out.
	Converged bool

	// Status is StatusConverged or StatusExhausted.
	Status Status

	// Iterations counts accepted state updates.
	Iterations int

	// Evaluations counts calls made to the map F.
	Evaluations int

	// ResidualNorm is the norm from the last convergence check.
	ResidualNorm float64

	// ResidualNorms holds one norm per convergence check, in order.
	ResidualNorms []float64

	// Runtime is the wall-clock duration of the run.
	Runtime time.Duration
}
