// Package precond provides residual preconditioning for fixed-point
// solvers. A Preconditioner transforms the raw defect F(x) - x into an
// effective residual with better convergence behavior for a given problem
// class; composition helpers inject it into a solver without touching the
// iteration loop.
package precond

import (
	"errors"

	"github.com/scfkit/go-scf/field"
	"github.com/scfkit/go-scf/solver"
)

// ErrConfig reports an invalid preconditioner configuration.
var ErrConfig = errors.New("precond: invalid configuration")

// Preconditioner transforms a residual. Implementations are pure with
// respect to observable behavior: the same input always yields the same
// output, and the input is never mutated.
type Preconditioner interface {
	// Name identifies the preconditioner in results and archives.
	Name() string

	// Apply returns the transformed residual as a fresh value.
	Apply(r *field.Field) (*field.Field, error)
}

// Residual computes a fixed-point defect at a state.
type Residual func(*field.Field) (*field.Field, error)

// Wrap returns the effective residual p∘r: the raw residual passed
// through the preconditioner. A nil preconditioner means identity.
func Wrap(r Residual, p Preconditioner) Residual {
	if p == nil {
		return r
	}
	return func(x *field.Field) (*field.Field, error) {
		raw, err := r(x)
		if err != nil {
			return nil, err
		}
		return p.Apply(raw)
	}
}

// Compose builds the preconditioned fixed-point map
//
//	x ↦ x + p(F(x) − x)
//
// from a raw map and a preconditioner. Solving the composed map with an
// undamped scheme applies the preconditioner on every step; this is also
// how external damping reaches the Anderson scheme, whose core step
// ignores the Damping option. A nil preconditioner returns f unchanged.
func Compose(f solver.Map, p Preconditioner) solver.Map {
	if p == nil {
		return f
	}
	return func(x *field.Field) (*field.Field, error) {
		fx, err := f(x)
		if err != nil {
			return nil, err
		}
		raw, err := fx.Sub(x)
		if err != nil {
			return nil, err
		}
		eff, err := p.Apply(raw)
		if err != nil {
			return nil, err
		}
		return x.Add(eff)
	}
}

// Identity passes residuals through unchanged.
type Identity struct{}

// Name returns "identity".
func (Identity) Name() string { return "identity" }

// Apply returns a copy of r.
func (Identity) Apply(r *field.Field) (*field.Field, error) {
	return r.Clone(), nil
}

// Damp scales every residual component by a uniform factor. Composing it
// into a map turns an undamped solve into a linearly mixed one, which is
// the standard way to damp the Anderson scheme.
type Damp struct {
	Alpha float64
}

// NewDamp returns a uniform damping preconditioner with factor alpha.
func NewDamp(alpha float64) *Damp {
	return &Damp{Alpha: alpha}
}

// Name returns "damp".
func (d *Damp) Name() string { return "damp" }

// Apply returns Alpha * r.
func (d *Damp) Apply(r *field.Field) (*field.Field, error) {
	return r.Scale(d.Alpha), nil
}
