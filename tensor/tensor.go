package tensor

import (
	"fmt"
	"math/rand"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} is a 3D tensor with dimensions 2×3×4.
type Shape []int

// Size returns the total number of elements implied by the shape.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have the same dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i, d := range s {
		if d != o[i] {
			return false
		}
	}
	return true
}

// Tensor is a dense float64 tensor in row-major order.
//
// The zero value is not usable; construct tensors with New, FromSlice,
// Full, Randn or Rand.
type Tensor struct {
	shape Shape
	data  []float64
}

// New creates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	s := Shape(append([]int(nil), shape...))
	for _, d := range s {
		if d <= 0 {
			panic(fmt.Sprintf("tensor: invalid dimension %d in shape %v", d, s))
		}
	}
	return &Tensor{shape: s, data: make([]float64, s.Size())}
}

// FromSlice wraps data in a tensor with the given shape. The slice is not
// copied; the caller must not alias it afterwards.
func FromSlice(data []float64, shape ...int) *Tensor {
	s := Shape(append([]int(nil), shape...))
	if len(data) != s.Size() {
		panic(fmt.Sprintf("tensor: %d elements cannot fill shape %v", len(data), s))
	}
	return &Tensor{shape: s, data: data}
}

// Full creates a tensor filled with value v.
func Full(v float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// ZerosLike creates a zero tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return New(t.shape...)
}

// Randn creates a tensor with values drawn from N(0, 1).
func Randn(rng *rand.Rand, shape ...int) *Tensor {
	if rng == nil {
		panic("tensor: Randn requires a non-nil rand source")
	}
	t := New(shape...)
	for i := range t.data {
		t.data[i] = rng.NormFloat64()
	}
	return t
}

// Rand creates a tensor with values drawn from U(0, 1).
func Rand(rng *rand.Rand, shape ...int) *Tensor {
	if rng == nil {
		panic("tensor: Rand requires a non-nil rand source")
	}
	t := New(shape...)
	for i := range t.data {
		t.data[i] = rng.Float64()
	}
	return t
}

// Shape returns the tensor's shape. The returned slice is shared; treat it
// as read-only.
func (t *Tensor) Shape() Shape { return t.shape }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Len returns the total number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Data returns the underlying buffer in row-major order.
func (t *Tensor) Data() []float64 { return t.data }

func (t *Tensor) offset(ix []int) int {
	if len(ix) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for %dD tensor", len(ix), len(t.shape)))
	}
	off := 0
	for i, x := range ix {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", ix, t.shape))
		}
		off = off*t.shape[i] + x
	}
	return off
}

// At returns the element at the given multi-index.
func (t *Tensor) At(ix ...int) float64 { return t.data[t.offset(ix)] }

// Set stores v at the given multi-index.
func (t *Tensor) Set(v float64, ix ...int) { t.data[t.offset(ix)] = v }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := New(t.shape...)
	copy(c.data, t.data)
	return c
}

// CopyFrom copies o's elements into t. Shapes must match.
func (t *Tensor) CopyFrom(o *Tensor) {
	if !t.shape.Equal(o.shape) {
		panic(fmt.Sprintf("tensor: copy shape mismatch %v vs %v", t.shape, o.shape))
	}
	copy(t.data, o.data)
}

// Reshape returns a tensor with the new shape sharing t's buffer. The total
// element count must be unchanged.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	s := Shape(append([]int(nil), shape...))
	if s.Size() != len(t.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.shape, s))
	}
	return &Tensor{shape: s, data: t.data}
}

// Equal reports exact elementwise equality of shape and data.
func (t *Tensor) Equal(o *Tensor) bool {
	if !t.shape.Equal(o.shape) {
		return false
	}
	for i, v := range t.data {
		if v != o.data[i] {
			return false
		}
	}
	return true
}

// AllClose reports whether all elements of t and o agree within tol.
func (t *Tensor) AllClose(o *Tensor, tol float64) bool {
	if !t.shape.Equal(o.shape) {
		return false
	}
	for i, v := range t.data {
		d := v - o.data[i]
		if d < -tol || d > tol {
			return false
		}
	}
	return true
}
