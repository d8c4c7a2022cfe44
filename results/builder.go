package results

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/scfkit/go-scf/problem"
	"github.com/scfkit/go-scf/solver"
)

// Builder helps construct Results from solver output
type Builder struct {
	results Results
}

// NewBuilder creates a new results builder with a fresh run ID
func NewBuilder() *Builder {
	return &Builder{
		results: Results{
			Version: SchemaVersion,
			Metadata: Metadata{
				RunID:     uuid.NewString(),
				Timestamp: time.Now(),
			},
		},
	}
}

// WithRunID overrides the generated run ID, for runs already registered
// elsewhere (archives, sweeps).
func (b *Builder) WithRunID(id string) *Builder {
	b.results.Metadata.RunID = id
	return b
}

// WithModel records a built-in model's identity and parameters
func (b *Builder) WithModel(m *problem.Model) *Builder {
	x0 := m.InitialGuess()
	return b.WithProblem(m.Name, x0.Shape, m.Params)
}

// WithProblem records problem identity for custom maps
func (b *Builder) WithProblem(name string, shape []int, params map[string]float64) *Builder {
	size := 0
	if len(shape) > 0 {
		size = 1
		for _, d := range shape {
			size *= d
		}
	}
	b.results.Problem = Problem{
		Name:   name,
		Shape:  append([]int(nil), shape...),
		Size:   size,
		Params: copyParams(params),
	}
	return b
}

// WithSolve records the solver configuration
func (b *Builder) WithSolve(method string, opts *solver.Options, preconditioner string) *Builder {
	b.results.Solve = Solve{
		Method:         method,
		Preconditioner: preconditioner,
	}
	if opts != nil {
		b.results.Solve.Options = &SolverOptions{
			MaxIters: opts.MaxIters,
			Tol:      opts.Tol,
			Damping:  opts.Damping,
		}
	}
	return b
}

// WithResult processes solver output. The full residual history is kept
// alongside a downsampled view of at most downsampleTarget points.
func (b *Builder) WithResult(res *solver.Result, downsampleTarget int) *Builder {
	b.results.Metadata.Status = res.Status.String()
	b.results.Metadata.ComputeTime = res.Runtime.Seconds()

	b.results.Results.Summary = Summary{
		Converged:     res.Converged,
		Iterations:    res.Iterations,
		Evaluations:   res.Evaluations,
		FinalResidual: Norm(res.ResidualNorm),
	}
	if res.Fixpoint != nil {
		b.results.Results.Summary.FixpointNorm = Norm(res.Fixpoint.Norm())
	}

	b.results.Results.Convergence = Convergence{
		Full:        toNorms(res.ResidualNorms),
		Downsampled: toNorms(downsample(res.ResidualNorms, downsampleTarget)),
	}
	return b
}

// WithError sets error status
func (b *Builder) WithError(err error) *Builder {
	b.results.Metadata.Status = StatusError
	b.results.Metadata.Error = err.Error()
	return b
}

// Build returns the constructed Results
func (b *Builder) Build() *Results {
	return &b.results
}

// downsample reduces data to approximately targetPoints, always keeping
// the first and last values
func downsample(data []float64, targetPoints int) []float64 {
	if targetPoints < 2 || len(data) <= targetPoints {
		return data
	}
	result := make([]float64, targetPoints)
	result[0] = data[0]
	result[targetPoints-1] = data[len(data)-1]
	step := float64(len(data)-1) / float64(targetPoints-1)
	for i := 1; i < targetPoints-1; i++ {
		idx := int(math.Round(float64(i) * step))
		result[i] = data[idx]
	}
	return result
}

func toNorms(data []float64) []Norm {
	if data == nil {
		return nil
	}
	norms := make([]Norm, len(data))
	for i, v := range data {
		norms[i] = Norm(v)
	}
	return norms
}

func fromNorms(norms []Norm) []float64 {
	if norms == nil {
		return nil
	}
	data := make([]float64, len(norms))
	for i, v := range norms {
		data[i] = float64(v)
	}
	return data
}

func copyParams(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	result := make(map[string]float64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
