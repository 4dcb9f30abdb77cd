// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

// Add sums a list of same-shape tensors elementwise and applies an
// activation: Y = act(X1 + X2 + ... + Xk). It has no parameters; Backward
// returns one gradient per input, all equal to dLdY ⊙ act'(sum).
type Add struct {
	base
	act *Activation

	sum *tensor.Tensor
	nIn int
}

// NewAdd creates an elementwise sum layer. A nil act means Identity.
func NewAdd(act *Activation, opt optim.Optimizer) *Add {
	return &Add{base: newBase("add", opt), act: orIdentity(act)}
}

// Forward sums the inputs. Panics on an empty list or mismatched shapes.
func (l *Add) Forward(xs []*tensor.Tensor) *tensor.Tensor {
	if len(xs) == 0 {
		panic("add: forward requires at least one input")
	}
	sum := xs[0].Clone()
	for _, x := range xs[1:] {
		sum.AddInPlace(x)
	}
	l.sum = sum
	l.nIn = len(xs)
	return l.act.Fn(sum)
}

// Backward returns the gradient with respect to each input, in input order.
func (l *Add) Backward(dLdY *tensor.Tensor) []*tensor.Tensor {
	l.mustTrainable()
	if l.sum == nil {
		panic("add: backward called before forward")
	}
	g := dLdY.Mul(l.act.Grad(l.sum))
	grads := make([]*tensor.Tensor, l.nIn)
	for i := range grads {
		grads[i] = g.Clone()
	}
	return grads
}

func (l *Add) Params() []Param { return nil }

func (l *Add) Update() {
	l.mustTrainable()
	l.FlushGradients()
}

func (l *Add) FlushGradients() {
	l.mustTrainable()
	l.sum = nil
}

func (l *Add) Summary() Summary {
	return Summary{
		Layer:  "Add",
		Params: map[string]*tensor.Tensor{},
		Hyperparams: map[string]any{
			"act_fn":    l.act.String(),
			"frozen":    !l.trainable,
			"optimizer": l.opt.StateDict(),
		},
	}
}

// Multiply multiplies a list of same-shape tensors elementwise and applies an
// activation: Y = act(X1 ⊙ X2 ⊙ ... ⊙ Xk). It has no parameters; the
// gradient for input i is dLdY ⊙ act'(prod) ⊙ Π_{j≠i} Xj.
type Multiply struct {
	base
	act *Activation

	xs   []*tensor.Tensor
	prod *tensor.Tensor
}

// NewMultiply creates an elementwise product layer. A nil act means Identity.
func NewMultiply(act *Activation, opt optim.Optimizer) *Multiply {
	return &Multiply{base: newBase("multiply", opt), act: orIdentity(act)}
}

// Forward multiplies the inputs. Panics on an empty list or mismatched
// shapes.
func (l *Multiply) Forward(xs []*tensor.Tensor) *tensor.Tensor {
	if len(xs) == 0 {
		panic("multiply: forward requires at least one input")
	}
	prod := xs[0].Clone()
	for _, x := range xs[1:] {
		prod = prod.Mul(x)
	}
	l.xs = append([]*tensor.Tensor(nil), xs...)
	l.prod = prod
	return l.act.Fn(prod)
}

// Backward returns the gradient with respect to each input, in input order.
func (l *Multiply) Backward(dLdY *tensor.Tensor) []*tensor.Tensor {
	l.mustTrainable()
	if l.prod == nil {
		panic("multiply: backward called before forward")
	}
	g := dLdY.Mul(l.act.Grad(l.prod))
	grads := make([]*tensor.Tensor, len(l.xs))
	for i := range l.xs {
		gi := g.Clone()
		for j, x := range l.xs {
			if j != i {
				gi = gi.Mul(x)
			}
		}
		grads[i] = gi
	}
	return grads
}

func (l *Multiply) Params() []Param { return nil }

func (l *Multiply) Update() {
	l.mustTrainable()
	l.FlushGradients()
}

func (l *Multiply) FlushGradients() {
	l.mustTrainable()
	l.xs = nil
	l.prod = nil
}

func (l *Multiply) Summary() Summary {
	return Summary{
		Layer:  "Multiply",
		Params: map[string]*tensor.Tensor{},
		Hyperparams: map[string]any{
			"act_fn":    l.act.String(),
			"frozen":    !l.trainable,
			"optimizer": l.opt.StateDict(),
		},
	}
}
