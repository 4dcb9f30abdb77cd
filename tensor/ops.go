package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func sameShape(op string, a, b *Tensor) {
	if !a.shape.Equal(b.shape) {
		panic(fmt.Sprintf("tensor: %s shape mismatch %v vs %v", op, a.shape, b.shape))
	}
}

// Add returns the elementwise sum t + o.
func (t *Tensor) Add(o *Tensor) *Tensor {
	sameShape("add", t, o)
	r := New(t.shape...)
	floats.AddTo(r.data, t.data, o.data)
	return r
}

// Sub returns the elementwise difference t - o.
func (t *Tensor) Sub(o *Tensor) *Tensor {
	sameShape("sub", t, o)
	r := New(t.shape...)
	floats.SubTo(r.data, t.data, o.data)
	return r
}

// Mul returns the elementwise product t ⊙ o.
func (t *Tensor) Mul(o *Tensor) *Tensor {
	sameShape("mul", t, o)
	r := New(t.shape...)
	floats.MulTo(r.data, t.data, o.data)
	return r
}

// AddInPlace accumulates o into t and returns t.
func (t *Tensor) AddInPlace(o *Tensor) *Tensor {
	sameShape("add", t, o)
	floats.Add(t.data, o.data)
	return t
}

// Scale returns t scaled by c.
func (t *Tensor) Scale(c float64) *Tensor {
	r := New(t.shape...)
	floats.ScaleTo(r.data, c, t.data)
	return r
}

// Apply returns f applied elementwise.
func (t *Tensor) Apply(f func(float64) float64) *Tensor {
	r := New(t.shape...)
	for i, v := range t.data {
		r.data[i] = f(v)
	}
	return r
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 { return floats.Sum(t.data) }

// Zero sets every element to 0 in place.
func (t *Tensor) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// matView wraps a 2D tensor as a gonum matrix without copying.
func matView(t *Tensor) *mat.Dense {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: need 2D tensor for matrix op, got shape %v", t.shape))
	}
	return mat.NewDense(t.shape[0], t.shape[1], t.data)
}

// MatMul computes the matrix product a·b of two 2D tensors.
func MatMul(a, b *Tensor) *Tensor {
	am, bm := matView(a), matView(b)
	if a.shape[1] != b.shape[0] {
		panic(fmt.Sprintf("tensor: matmul inner dimension mismatch %v × %v", a.shape, b.shape))
	}
	out := New(a.shape[0], b.shape[1])
	matView(out).Mul(am, bm)
	return out
}

// T returns the transpose of a 2D tensor as a new tensor.
func (t *Tensor) T() *Tensor {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: T requires a 2D tensor, got shape %v", t.shape))
	}
	r, c := t.shape[0], t.shape[1]
	out := New(c, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.data[j*r+i] = t.data[i*c+j]
		}
	}
	return out
}

// ColSums sums a 2D tensor over its rows, returning one value per column.
func ColSums(t *Tensor) *Tensor {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: ColSums requires a 2D tensor, got shape %v", t.shape))
	}
	r, c := t.shape[0], t.shape[1]
	out := New(c)
	for i := 0; i < r; i++ {
		floats.Add(out.data, t.data[i*c:(i+1)*c])
	}
	return out
}

// AddRow adds the length-c vector v to every row of a 2D (r, c) tensor.
func (t *Tensor) AddRow(v *Tensor) *Tensor {
	if len(t.shape) != 2 || len(v.shape) != 1 || v.shape[0] != t.shape[1] {
		panic(fmt.Sprintf("tensor: AddRow shape mismatch %v + %v", t.shape, v.shape))
	}
	r, c := t.shape[0], t.shape[1]
	out := t.Clone()
	for i := 0; i < r; i++ {
		floats.Add(out.data[i*c:(i+1)*c], v.data)
	}
	return out
}

// Hstack concatenates two 2D tensors with equal row counts along columns.
func Hstack(a, b *Tensor) *Tensor {
	if len(a.shape) != 2 || len(b.shape) != 2 || a.shape[0] != b.shape[0] {
		panic(fmt.Sprintf("tensor: hstack shape mismatch %v vs %v", a.shape, b.shape))
	}
	r, ca, cb := a.shape[0], a.shape[1], b.shape[1]
	out := New(r, ca+cb)
	for i := 0; i < r; i++ {
		copy(out.data[i*(ca+cb):], a.data[i*ca:(i+1)*ca])
		copy(out.data[i*(ca+cb)+ca:], b.data[i*cb:(i+1)*cb])
	}
	return out
}

// SliceCols returns columns [lo, hi) of a 2D tensor as a new tensor.
func (t *Tensor) SliceCols(lo, hi int) *Tensor {
	if len(t.shape) != 2 || lo < 0 || hi > t.shape[1] || lo >= hi {
		panic(fmt.Sprintf("tensor: SliceCols [%d:%d) invalid for shape %v", lo, hi, t.shape))
	}
	r, c := t.shape[0], t.shape[1]
	out := New(r, hi-lo)
	for i := 0; i < r; i++ {
		copy(out.data[i*(hi-lo):], t.data[i*c+lo:i*c+hi])
	}
	return out
}
