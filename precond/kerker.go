package precond

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/scfkit/go-scf/field"
)

// Kerker damps the long-wavelength components of a residual, the standard
// cure for charge sloshing in metallic densities. On a periodic grid with
// spacing h, each Fourier component at wavenumber k is scaled by
//
//	k² / (k² + q₀²)
//
// where q₀ is the screening wavevector. Components with k ≪ q₀ are
// suppressed and the uniform k = 0 component is removed entirely; short
// wavelengths pass almost unchanged. Fields of any shape are treated as a
// flattened one-dimensional periodic grid.
//
// Reference: G.P. Kerker, "Efficient iteration scheme for self-consistent
// pseudopotential calculations", Phys. Rev. B 23, 3082 (1981).
//
// A Kerker value caches its transform plan per grid length and is not safe
// for concurrent use; give each run its own instance.
type Kerker struct {
	// Spacing is the grid spacing h, > 0.
	Spacing float64
	// Screening is the screening wavevector q₀, > 0.
	Screening float64

	fft *fourier.FFT
	n   int
}

// NewKerker returns a Kerker preconditioner for a grid with the given
// spacing and screening wavevector.
func NewKerker(spacing, screening float64) *Kerker {
	return &Kerker{Spacing: spacing, Screening: screening}
}

// Name returns "kerker".
func (k *Kerker) Name() string { return "kerker" }

// Apply returns the screened residual.
func (k *Kerker) Apply(r *field.Field) (*field.Field, error) {
	if !(k.Spacing > 0) || !(k.Screening > 0) {
		return nil, fmt.Errorf("%w: kerker spacing %v, screening %v", ErrConfig, k.Spacing, k.Screening)
	}
	n := r.Len()
	if n == 0 {
		return r.Clone(), nil
	}
	if k.fft == nil || k.n != n {
		k.fft = fourier.NewFFT(n)
		k.n = n
	}

	coeff := k.fft.Coefficients(nil, r.Data)
	q2 := k.Screening * k.Screening
	for i := range coeff {
		kv := 2 * math.Pi * k.fft.Freq(i) / k.Spacing
		k2 := kv * kv
		coeff[i] *= complex(k2/(k2+q2), 0)
	}

	out := field.Like(r)
	k.fft.Sequence(out.Data, coeff)
	// The inverse transform is unnormalized and scales by the length.
	inv := 1 / float64(n)
	for i := range out.Data {
		out.Data[i] *= inv
	}
	return out, nil
}
