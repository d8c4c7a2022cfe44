package solver

import "fmt"

// Options configures a solver run. A given Options value is treated as
// immutable for the duration of the run.
type Options struct {
	// MaxIters is the iteration budget. Zero is allowed and degenerates
	// to a single convergence probe of the initial guess.
	MaxIters int

	// Tol is the convergence threshold on the residual norm.
	Tol float64

	// Damping scales the residual step in the damped scheme. The useful
	// range is (0, 2]; 1 is plain fixed-point iteration, values below 1
	// slow the step down for unstable maps, values above 1
	// over-relax. Zero is accepted but never moves the state. The
	// Anderson scheme ignores this setting (see Anderson).
	Damping float64
}

// DefaultOptions returns options suitable for most problems.
func DefaultOptions() *Options {
	return &Options{
		MaxIters: 100,
		Tol:      1e-8,
		Damping:  0.8,
	}
}

// FastOptions returns options tuned for speed over accuracy, useful for
// scans and interactive exploration.
func FastOptions() *Options {
	return &Options{
		MaxIters: 50,
		Tol:      1e-6,
		Damping:  1.0,
	}
}

// AccurateOptions returns options for tight convergence, for reference
// solutions and energy differences.
func AccurateOptions() *Options {
	return &Options{
		MaxIters: 500,
		Tol:      1e-12,
		Damping:  0.8,
	}
}

// StiffOptions returns options with heavy damping and a large budget for
// hard problems: near-degenerate spectra, metallic densities, maps whose
// plain iteration oscillates or diverges.
func StiffOptions() *Options {
	return &Options{
		MaxIters: 1000,
		Tol:      1e-8,
		Damping:  0.2,
	}
}

// Validate checks the options. Damping is accepted on [0, 2]: the closed
// lower end admits the degenerate "never move" configuration, the upper
// end is the usual over-relaxation limit.
func (o *Options) Validate() error {
	if o.MaxIters < 0 {
		return fmt.Errorf("%w: MaxIters %d < 0", ErrOptions, o.MaxIters)
	}
	if !(o.Tol > 0) {
		return fmt.Errorf("%w: Tol %v must be > 0", ErrOptions, o.Tol)
	}
	if o.Damping < 0 || o.Damping > 2 {
		return fmt.Errorf("%w: Damping %v outside [0, 2]", ErrOptions, o.Damping)
	}
	return nil
}
