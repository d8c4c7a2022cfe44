// Package field provides dense, shape-aware state arrays together with the
// vector-space operations fixed-point solvers need: addition, scaling,
// norms, and flattening to and from linear storage.
//
// A Field holds one solver state, for example a density sampled on a grid.
// All operations produce fresh values; no operation aliases or mutates its
// operands. Non-finite entries (NaN, Inf) are carried through arithmetic
// untouched.
package field

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrShape is returned when fields with incompatible shapes are combined,
// or when flat data does not match the element count of a shape.
var ErrShape = errors.New("field: shape mismatch")

// Field is a dense numeric array of arbitrary shape. Data is stored in
// row-major order and always has exactly as many elements as the shape
// describes.
type Field struct {
	Shape []int
	Data  []float64
}

// numElements returns the element count of a shape. Negative extents are a
// programmer error and panic, matching the gonum convention for bad sizes.
func numElements(shape []int) int {
	n := 1
	for _, s := range shape {
		if s < 0 {
			panic("field: negative dimension")
		}
		n *= s
	}
	return n
}

// New creates a field with the given shape from a copy of data.
func New(shape []int, data []float64) (*Field, error) {
	if len(data) != numElements(shape) {
		return nil, fmt.Errorf("field: %d values for shape %v: %w", len(data), shape, ErrShape)
	}
	f := Zeros(shape)
	copy(f.Data, data)
	return f, nil
}

// Zeros creates a zero-valued field with the given shape.
func Zeros(shape []int) *Field {
	return &Field{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, numElements(shape)),
	}
}

// FromSlice creates a one-dimensional field from a copy of data.
func FromSlice(data []float64) *Field {
	f := Zeros([]int{len(data)})
	copy(f.Data, data)
	return f
}

// Like creates a zero-valued field with the same shape as f.
func Like(f *Field) *Field {
	return Zeros(f.Shape)
}

// Clone returns an independent deep copy of f.
func (f *Field) Clone() *Field {
	g := Zeros(f.Shape)
	copy(g.Data, f.Data)
	return g
}

// Len returns the number of elements in f.
func (f *Field) Len() int {
	return len(f.Data)
}

// SameShape reports whether f and g have identical shapes.
func (f *Field) SameShape(g *Field) bool {
	if len(f.Shape) != len(g.Shape) {
		return false
	}
	for i, s := range f.Shape {
		if g.Shape[i] != s {
			return false
		}
	}
	return true
}

func (f *Field) shapeCheck(g *Field, op string) error {
	if !f.SameShape(g) {
		return fmt.Errorf("field: %s %v with %v: %w", op, f.Shape, g.Shape, ErrShape)
	}
	return nil
}

// Add returns f + g as a new field.
func (f *Field) Add(g *Field) (*Field, error) {
	if err := f.shapeCheck(g, "add"); err != nil {
		return nil, err
	}
	out := f.Clone()
	floats.Add(out.Data, g.Data)
	return out, nil
}

// Sub returns f - g as a new field. The residual of a fixed-point map F at
// state x is F(x).Sub(x).
func (f *Field) Sub(g *Field) (*Field, error) {
	if err := f.shapeCheck(g, "subtract"); err != nil {
		return nil, err
	}
	out := f.Clone()
	floats.Sub(out.Data, g.Data)
	return out, nil
}

// Scale returns c * f as a new field.
func (f *Field) Scale(c float64) *Field {
	out := f.Clone()
	floats.Scale(c, out.Data)
	return out
}

// AddScaled returns f + alpha*g as a new field. This is the damped update
// primitive: state.AddScaled(damping, residual).
func (f *Field) AddScaled(alpha float64, g *Field) (*Field, error) {
	if err := f.shapeCheck(g, "add scaled"); err != nil {
		return nil, err
	}
	out := f.Clone()
	floats.AddScaled(out.Data, alpha, g.Data)
	return out, nil
}

// Norm returns the Euclidean norm of f.
func (f *Field) Norm() float64 {
	return floats.Norm(f.Data, 2)
}

// Dot returns the inner product of f and g.
func (f *Field) Dot(g *Field) (float64, error) {
	if err := f.shapeCheck(g, "dot"); err != nil {
		return 0, err
	}
	return floats.Dot(f.Data, g.Data), nil
}

// Flatten returns a copy of the field data in row-major order.
func (f *Field) Flatten() []float64 {
	return append([]float64(nil), f.Data...)
}

// Unflatten creates a field with the given shape from a copy of flat
// row-major data. It is the inverse of Flatten.
func Unflatten(flat []float64, shape []int) (*Field, error) {
	return New(shape, flat)
}
