// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"
	"math/rand"

	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

// FullyConnected is a dense layer: Y = act(X·W + b).
//
// Input is (examples, nIn); nIn is inferred on the first forward call.
type FullyConnected struct {
	base
	nIn, nOut int
	act       *Activation
	winit     WeightInit
	rng       *rand.Rand

	w, b   *tensor.Tensor // W (nIn, nOut), b (nOut)
	dw, db *tensor.Tensor
	x, z   *tensor.Tensor

	initialized bool
}

// NewFullyConnected creates a dense layer with nOut outputs. A nil act means
// Identity; a nil opt means DefaultOptimizer.
func NewFullyConnected(nOut int, act *Activation, winit WeightInit, opt optim.Optimizer, rng *rand.Rand) *FullyConnected {
	if nOut <= 0 {
		panic(fmt.Sprintf("dense: invalid output size %d", nOut))
	}
	return &FullyConnected{
		base:  newBase("dense", opt),
		nOut:  nOut,
		act:   orIdentity(act),
		winit: winit,
		rng:   rng,
	}
}

func (l *FullyConnected) initParams(nIn int) {
	l.nIn = nIn
	l.w = initWeights(l.rng, l.winit, l.act, nIn, l.nOut)
	l.b = tensor.New(l.nOut)
	l.dw = tensor.ZerosLike(l.w)
	l.db = tensor.ZerosLike(l.b)
	l.initialized = true
}

// Forward computes Y = act(X·W + b) for a (examples, nIn) input.
func (l *FullyConnected) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !l.initialized {
		l.initParams(x.Dim(1))
	}
	if x.Dim(1) != l.nIn {
		panic(fmt.Sprintf("dense: input features %d, layer expects %d", x.Dim(1), l.nIn))
	}
	l.x = x
	l.z = tensor.MatMul(x, l.w).AddRow(l.b)
	return l.act.Fn(l.z)
}

// Backward accumulates dW and db from the upstream gradient and returns the
// input gradient.
func (l *FullyConnected) Backward(dLdY *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.x == nil {
		panic("dense: backward called before forward")
	}
	dZ := dLdY.Mul(l.act.Grad(l.z))
	l.dw.AddInPlace(tensor.MatMul(l.x.T(), dZ))
	l.db.AddInPlace(tensor.ColSums(dZ))
	return tensor.MatMul(dZ, l.w.T())
}

func (l *FullyConnected) Params() []Param {
	if !l.initialized {
		return nil
	}
	return []Param{
		{Name: "W", Value: l.w, Grad: l.dw},
		{Name: "b", Value: l.b, Grad: l.db},
	}
}

func (l *FullyConnected) Update() {
	l.mustTrainable()
	l.applyUpdates(l.Params())
	l.FlushGradients()
}

func (l *FullyConnected) FlushGradients() {
	l.mustTrainable()
	l.x, l.z = nil, nil
	zeroAll(l.dw, l.db)
}

func (l *FullyConnected) Summary() Summary {
	return Summary{
		Layer:  "FullyConnected",
		Params: paramMap(l.Params()),
		Hyperparams: map[string]any{
			"n_in":      l.nIn,
			"n_out":     l.nOut,
			"act_fn":    l.act.String(),
			"init":      l.winit.String(),
			"frozen":    !l.trainable,
			"optimizer": l.opt.StateDict(),
		},
	}
}
