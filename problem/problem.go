// Package problem provides constructed fixed-point problems with known
// behavior: linear contractions, maps with prescribed spectra, affine
// maps, and a small nonlinear density model. They serve as demo inputs,
// benchmark cases, and test fixtures for the solvers.
package problem

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/scfkit/go-scf/field"
	"github.com/scfkit/go-scf/solver"
)

var (
	// ErrUnknown reports a model name with no registered constructor.
	ErrUnknown = errors.New("problem: unknown model")
	// ErrModel reports invalid model parameters.
	ErrModel = errors.New("problem: invalid parameters")
)

// Model is a named fixed-point problem: a map, an initial guess, and,
// when the construction admits one, the exact fixed point for reference.
type Model struct {
	// Name identifies the model in results and archives.
	Name string
	// Dim is the state dimension.
	Dim int
	// Params records the construction parameters.
	Params map[string]float64

	f        solver.Map
	x0       *field.Field
	fixpoint *field.Field
}

// Map returns the fixed-point map.
func (m *Model) Map() solver.Map { return m.f }

// InitialGuess returns a fresh copy of the initial state.
func (m *Model) InitialGuess() *field.Field { return m.x0.Clone() }

// Fixpoint returns a copy of the exact fixed point, or nil when the model
// does not know it in closed form.
func (m *Model) Fixpoint() *field.Field {
	if m.fixpoint == nil {
		return nil
	}
	return m.fixpoint.Clone()
}

// WithInitialGuess replaces the initial state.
func (m *Model) WithInitialGuess(x0 *field.Field) *Model {
	m.x0 = x0.Clone()
	return m
}

// Problem builds a solver problem from the model.
func (m *Model) Problem() *solver.Problem {
	return solver.NewProblem(m.f, m.InitialGuess())
}

// NewContraction builds the uniform linear contraction
//
//	F(x) = x − rate·(x − target·1)
//
// with fixed point target in every component. Plain iteration converges
// for 0 < rate < 2 at factor |1 − rate| per undamped step.
func NewContraction(dim int, rate, target float64) (*Model, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension %d", ErrModel, dim)
	}
	if rate <= 0 || rate >= 2 {
		return nil, fmt.Errorf("%w: contraction rate %v outside (0, 2)", ErrModel, rate)
	}
	fix := field.Zeros([]int{dim})
	x0 := field.Zeros([]int{dim})
	for i := 0; i < dim; i++ {
		fix.Data[i] = target
		x0.Data[i] = target + 10
	}
	f := func(x *field.Field) (*field.Field, error) {
		defect, err := x.Sub(fix)
		if err != nil {
			return nil, err
		}
		return x.AddScaled(-rate, defect)
	}
	return &Model{
		Name:     "contraction",
		Dim:      dim,
		Params:   map[string]float64{"dim": float64(dim), "rate": rate, "target": target},
		f:        f,
		x0:       x0,
		fixpoint: fix,
	}, nil
}

// NewSpectrum builds a diagonal linear map with per-mode contraction
// rates and fixed point target. Undamped iteration shrinks mode j by
// |1 − rates[j]| per step, so rates near 0 or 2 make the problem
// ill-conditioned for plain mixing while leaving it easy for an
// accelerated scheme.
func NewSpectrum(rates, target []float64) (*Model, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: empty spectrum", ErrModel)
	}
	if len(target) != len(rates) {
		return nil, fmt.Errorf("%w: %d rates, %d targets", ErrModel, len(rates), len(target))
	}
	for j, c := range rates {
		if c <= 0 || c >= 2 {
			return nil, fmt.Errorf("%w: rate[%d] = %v outside (0, 2)", ErrModel, j, c)
		}
	}
	dim := len(rates)
	fix := field.FromSlice(target)
	x0 := field.Zeros([]int{dim})
	for i := range x0.Data {
		x0.Data[i] = target[i] + 10
	}
	cs := append([]float64(nil), rates...)
	f := func(x *field.Field) (*field.Field, error) {
		if x.Len() != dim {
			return nil, fmt.Errorf("problem: spectrum state length %d, want %d: %w",
				x.Len(), dim, field.ErrShape)
		}
		out := x.Clone()
		for j, c := range cs {
			out.Data[j] = x.Data[j] - c*(x.Data[j]-fix.Data[j])
		}
		return out, nil
	}
	slowest := math.Inf(1)
	for _, c := range cs {
		if c < slowest {
			slowest = c
		}
	}
	return &Model{
		Name:     "spectrum",
		Dim:      dim,
		Params:   map[string]float64{"dim": float64(dim), "slowest": slowest},
		f:        f,
		x0:       x0,
		fixpoint: fix,
	}, nil
}

// NewAffine builds F(x) = A·x + b. When I − A is nonsingular the exact
// fixed point (I − A)⁻¹ b is computed up front for reference.
func NewAffine(a *mat.Dense, b []float64) (*Model, error) {
	r, c := a.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: matrix is %dx%d", ErrModel, r, c)
	}
	if len(b) != r {
		return nil, fmt.Errorf("%w: offset length %d for %dx%d matrix", ErrModel, len(b), r, c)
	}
	dim := r
	amat := mat.DenseCopyOf(a)
	off := append([]float64(nil), b...)

	f := func(x *field.Field) (*field.Field, error) {
		if x.Len() != dim {
			return nil, fmt.Errorf("problem: affine state length %d, want %d: %w",
				x.Len(), dim, field.ErrShape)
		}
		out := field.Zeros([]int{dim})
		v := mat.NewVecDense(dim, x.Flatten())
		dst := mat.NewVecDense(dim, out.Data)
		dst.MulVec(amat, v)
		for i := 0; i < dim; i++ {
			out.Data[i] += off[i]
		}
		return out, nil
	}

	m := &Model{
		Name:   "affine",
		Dim:    dim,
		Params: map[string]float64{"dim": float64(dim)},
		f:      f,
		x0:     field.Zeros([]int{dim}),
	}

	// I − A, solved for the reference fixed point when possible.
	ima := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			v := -amat.At(i, j)
			if i == j {
				v++
			}
			ima.Set(i, j, v)
		}
	}
	var lu mat.LU
	lu.Factorize(ima)
	var fix mat.VecDense
	if err := lu.SolveVecTo(&fix, false, mat.NewVecDense(dim, off)); err == nil {
		m.fixpoint = field.FromSlice(fix.RawVector().Data)
	}
	return m, nil
}

// NewBoltzmann builds a small nonlinear density model: each component
// relaxes toward the normalized Boltzmann occupation
//
//	F(x)_i = particles · exp(−x_i/T) / Σ_j exp(−x_j/T)
//
// whose fixed point is the uniform filling particles/n. Higher
// temperatures make the map more strongly contracting.
func NewBoltzmann(n int, temperature, particles float64) (*Model, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: dimension %d", ErrModel, n)
	}
	if temperature <= 0 || particles <= 0 {
		return nil, fmt.Errorf("%w: temperature %v, particles %v", ErrModel, temperature, particles)
	}
	x0 := field.Zeros([]int{n})
	var total float64
	for i := range x0.Data {
		x0.Data[i] = float64(i + 1)
		total += float64(i + 1)
	}
	for i := range x0.Data {
		x0.Data[i] *= particles / total
	}
	fix := field.Zeros([]int{n})
	for i := range fix.Data {
		fix.Data[i] = particles / float64(n)
	}

	f := func(x *field.Field) (*field.Field, error) {
		out := field.Like(x)
		var z float64
		for _, v := range x.Data {
			z += math.Exp(-v / temperature)
		}
		if z == 0 || math.IsNaN(z) || math.IsInf(z, 0) {
			// Degenerate occupations pass through as non-finite values.
			for i := range out.Data {
				out.Data[i] = math.NaN()
			}
			return out, nil
		}
		for i, v := range x.Data {
			out.Data[i] = particles * math.Exp(-v/temperature) / z
		}
		return out, nil
	}
	return &Model{
		Name: "boltzmann",
		Dim:  n,
		Params: map[string]float64{
			"dim": float64(n), "temperature": temperature, "particles": particles,
		},
		f:        f,
		x0:       x0,
		fixpoint: fix,
	}, nil
}

// Names returns the model names New accepts, sorted.
func Names() []string {
	names := []string{"contraction", "spectrum", "boltzmann"}
	sort.Strings(names)
	return names
}

// New builds a named model from CLI-style parameters. Missing parameters
// take documented defaults.
//
//	contraction: dim (4), rate (0.5), target (0)
//	spectrum:    dim (4), min (0.1), max (1.9), rates spaced over [min, max]
//	boltzmann:   dim (6), temperature (5), particles (4)
func New(name string, params map[string]float64) (*Model, error) {
	get := func(key string, def float64) float64 {
		if v, ok := params[key]; ok {
			return v
		}
		return def
	}
	switch name {
	case "contraction":
		return NewContraction(int(get("dim", 4)), get("rate", 0.5), get("target", 0))
	case "spectrum":
		dim := int(get("dim", 4))
		if dim < 1 {
			return nil, fmt.Errorf("%w: dimension %d", ErrModel, dim)
		}
		lo, hi := get("min", 0.1), get("max", 1.9)
		rates := make([]float64, dim)
		for i := range rates {
			if dim == 1 {
				rates[i] = lo
				continue
			}
			rates[i] = lo + (hi-lo)*float64(i)/float64(dim-1)
		}
		return NewSpectrum(rates, make([]float64, dim))
	case "boltzmann":
		return NewBoltzmann(int(get("dim", 6)), get("temperature", 5), get("particles", 4))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
}
