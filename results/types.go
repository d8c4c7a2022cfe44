// Package results defines the structured output format for solver runs
package results

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const SchemaVersion = "1.0.0"

// Run status values used in Metadata.Status.
const (
	StatusConverged = "converged"
	StatusExhausted = "exhausted"
	StatusError     = "error"
)

// Norm is a residual norm in JSON. Finite values encode as plain
// numbers; NaN and infinities encode as strings, since JSON has no
// literal for them and diverged runs must still serialize.
type Norm float64

// MarshalJSON encodes the norm, using a string form for non-finite values.
func (n Norm) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.AppendQuote(nil, strconv.FormatFloat(f, 'g', -1, 64)), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON decodes either encoding.
func (n *Norm) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("invalid norm %s: %w", data, err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid norm %q: %w", s, err)
		}
		*n = Norm(f)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid norm %s: %w", data, err)
	}
	*n = Norm(f)
	return nil
}

// Results contains complete solver run output
type Results struct {
	Version  string    `json:"version"`
	Metadata Metadata  `json:"metadata"`
	Problem  Problem   `json:"problem"`
	Solve    Solve     `json:"solve"`
	Results  Data      `json:"results"`
	Analysis *Analysis `json:"analysis,omitempty"`
}

// Metadata contains run execution information
type Metadata struct {
	RunID       string    `json:"runId"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"` // converged, exhausted, error
	Error       string    `json:"error,omitempty"`
	ComputeTime float64   `json:"computeTime"` // seconds
}

// Problem summarizes the fixed-point problem
type Problem struct {
	Name   string             `json:"name,omitempty"`
	Shape  []int              `json:"shape"`
	Size   int                `json:"size"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Solve contains the solver configuration used
type Solve struct {
	Method         string         `json:"method"`
	Preconditioner string         `json:"preconditioner,omitempty"`
	Options        *SolverOptions `json:"options,omitempty"`
}

// SolverOptions mirrors the solver settings in the schema
type SolverOptions struct {
	MaxIters int     `json:"maxIters"`
	Tol      float64 `json:"tol"`
	Damping  float64 `json:"damping"`
}

// Data contains the run results
type Data struct {
	Summary     Summary     `json:"summary"`
	Convergence Convergence `json:"convergence"`
}

// Summary provides quick overview
type Summary struct {
	Converged     bool `json:"converged"`
	Iterations    int  `json:"iterations"`
	Evaluations   int  `json:"evaluations"`
	FinalResidual Norm `json:"finalResidual"`
	FixpointNorm  Norm `json:"fixpointNorm"`
}

// Convergence holds the residual history at two resolutions
type Convergence struct {
	Full        []Norm `json:"full,omitempty"`
	Downsampled []Norm `json:"downsampled"`
}

// Analysis contains automatically computed insights
type Analysis struct {
	// Rate is the geometric mean residual factor per iteration.
	Rate Norm `json:"rate"`
	// OrdersGained is log10(first/final residual).
	OrdersGained Norm `json:"ordersGained"`
	// Monotone reports whether the residual never increased.
	Monotone bool `json:"monotone"`
	// Bounces are iterations where the residual jumped up.
	Bounces []Bounce `json:"bounces,omitempty"`
	// Plateaus are stretches where the residual barely moved.
	Plateaus []Plateau `json:"plateaus,omitempty"`
	// Residuals summarizes the residual norm distribution.
	Residuals Stat `json:"residuals"`
}

// Bounce records a residual increase between consecutive checks
type Bounce struct {
	Iteration int  `json:"iteration"`
	From      Norm `json:"from"`
	To        Norm `json:"to"`
	Factor    Norm `json:"factor"`
}

// Plateau records a flat stretch of the residual history
type Plateau struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	Level Norm `json:"level"`
}

// Stat contains statistical summary
type Stat struct {
	Min    Norm `json:"min"`
	Max    Norm `json:"max"`
	Mean   Norm `json:"mean"`
	Median Norm `json:"median"`
	Std    Norm `json:"std"`
}
