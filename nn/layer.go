// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

// Param is one named trainable tensor together with its accumulated
// gradient. Both tensors are the layer's live storage, not copies.
type Param struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// Layer is the contract shared by every layer type. Forward and Backward are
// deliberately absent: their signatures differ per layer (elementwise layers
// take input slices, recurrent cells work per timestep, the RBM backward
// takes no argument), so they are methods on the concrete types.
//
// Params returns the live parameter/gradient pairs; it is empty before the
// first forward call of a lazily initialized layer. Update applies the
// layer's optimizer to every parameter and then flushes. FlushGradients
// zeroes accumulated gradients and drops cached forward state. Optimizer
// returns the optimizer the layer updates through, so its state can be
// snapshotted and restored across a Summary round trip. Backward, Update
// and FlushGradients panic when the layer is frozen.
type Layer interface {
	Params() []Param
	Summary() Summary
	Trainable() bool
	Freeze()
	Unfreeze()
	FlushGradients()
	Update()
	Optimizer() optim.Optimizer
}

// DefaultOptimizer returns the optimizer a layer falls back to when its
// constructor receives nil: SGD with the default learning rate.
func DefaultOptimizer() optim.Optimizer {
	return optim.NewSGD(optim.SGDConfig{})
}

// base carries the trainable flag and optimizer shared by all layers.
type base struct {
	name      string
	trainable bool
	opt       optim.Optimizer
}

func newBase(name string, opt optim.Optimizer) base {
	if opt == nil {
		opt = DefaultOptimizer()
	}
	return base{name: name, trainable: true, opt: opt}
}

func (b *base) Trainable() bool            { return b.trainable }
func (b *base) Freeze()                    { b.trainable = false }
func (b *base) Unfreeze()                  { b.trainable = true }
func (b *base) Optimizer() optim.Optimizer { return b.opt }

func (b *base) mustTrainable() {
	if !b.trainable {
		panic(b.name + ": layer is frozen")
	}
}

// applyUpdates runs the optimizer for every parameter, copying the result
// into the existing storage so tensors handed out earlier stay valid.
func (b *base) applyUpdates(params []Param) {
	for _, p := range params {
		p.Value.CopyFrom(b.opt.Apply(p.Name, p.Value, p.Grad))
	}
}

func zeroAll(ts ...*tensor.Tensor) {
	for _, t := range ts {
		if t != nil {
			t.Zero()
		}
	}
}
