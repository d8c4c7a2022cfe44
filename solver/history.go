package solver

import "github.com/scfkit/go-scf/field"

// History is the ordered store of past (state, residual) pairs consumed by
// Anderson extrapolation. Insertion order is significant, most recent
// last. By default it grows without bound within a run (the budget bounds
// it implicitly); a positive window keeps only the most recent pairs.
//
// History stores the values it is given. A single run owns its history
// exclusively and discards it at run end.
type History struct {
	window    int
	states    []*field.Field
	residuals []*field.Field
}

// NewHistory creates an empty history. window <= 0 means unbounded.
func NewHistory(window int) *History {
	return &History{window: window}
}

// Len returns the number of stored pairs.
func (h *History) Len() int { return len(h.states) }

// Append records a pair, evicting the oldest pair when a window is set
// and full.
func (h *History) Append(state, residual *field.Field) {
	if h.window > 0 && len(h.states) == h.window {
		h.states = append(h.states[:0], h.states[1:]...)
		h.residuals = append(h.residuals[:0], h.residuals[1:]...)
	}
	h.states = append(h.states, state)
	h.residuals = append(h.residuals, residual)
}

// At returns the i-th stored pair, oldest first.
func (h *History) At(i int) (state, residual *field.Field) {
	return h.states[i], h.residuals[i]
}
