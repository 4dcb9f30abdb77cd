// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

// KeepDim selects which axis Flatten preserves.
type KeepDim int

const (
	// KeepFirst collapses everything after the first axis: (d0, rest).
	KeepFirst KeepDim = iota
	// KeepLast collapses everything before the last axis: (rest, dk).
	KeepLast
	// KeepNone collapses the whole tensor into a single row: (1, total).
	KeepNone
)

func (k KeepDim) String() string {
	switch k {
	case KeepFirst:
		return "first"
	case KeepLast:
		return "last"
	default:
		return "none"
	}
}

// Flatten reshapes its input to a 2D matrix and restores the original shape
// on the backward pass. Row-major order is preserved, so the operation moves
// no data. It has no parameters.
type Flatten struct {
	base
	keep KeepDim

	inDims tensor.Shape
}

// NewFlatten creates a flattening layer.
func NewFlatten(keep KeepDim, opt optim.Optimizer) *Flatten {
	if keep != KeepFirst && keep != KeepLast && keep != KeepNone {
		panic(fmt.Sprintf("flatten: invalid keep dim %d", int(keep)))
	}
	return &Flatten{base: newBase("flatten", opt), keep: keep}
}

// Forward reshapes x to 2D according to the keep-dim policy.
func (l *Flatten) Forward(x *tensor.Tensor) *tensor.Tensor {
	l.inDims = x.Shape()
	total := l.inDims.Size()
	switch l.keep {
	case KeepFirst:
		return x.Reshape(x.Dim(0), total/x.Dim(0))
	case KeepLast:
		last := x.Dim(len(l.inDims) - 1)
		return x.Reshape(total/last, last)
	default:
		return x.Reshape(1, total)
	}
}

// Backward reshapes the upstream gradient back to the cached input shape.
func (l *Flatten) Backward(dLdY *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.inDims == nil {
		panic("flatten: backward called before forward")
	}
	return dLdY.Reshape(l.inDims...)
}

func (l *Flatten) Params() []Param { return nil }

func (l *Flatten) Update() {
	l.mustTrainable()
	l.FlushGradients()
}

func (l *Flatten) FlushGradients() {
	l.mustTrainable()
	l.inDims = nil
}

func (l *Flatten) Summary() Summary {
	return Summary{
		Layer:  "Flatten",
		Params: map[string]*tensor.Tensor{},
		Hyperparams: map[string]any{
			"keep_dim":  l.keep.String(),
			"frozen":    !l.trainable,
			"optimizer": l.opt.StateDict(),
		},
	}
}
