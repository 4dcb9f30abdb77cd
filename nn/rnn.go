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

// RNNCell is a single-timestep Elman recurrent cell:
//
//	Z[t] = A[t-1]·Waa + ba + X[t]·Wax + bx
//	A[t] = act(Z[t])
//
// Each Forward call advances the cell one timestep and caches that step;
// Backward consumes the cached steps strictly in reverse order, one call per
// forward call, carrying the hidden-state gradient between calls. The hidden
// state starts at zero on the first Forward after construction or a flush.
type RNNCell struct {
	base
	nIn, nOut int
	act       *Activation
	winit     WeightInit
	rng       *rand.Rand

	waa, wax, ba, bx     *tensor.Tensor
	dWaa, dWax, dBa, dBx *tensor.Tensor

	xs, zs, as []*tensor.Tensor // as holds one extra leading entry: A[0] = 0
	cursor     int              // next timestep Backward will consume, counting down
	dAAcc      *tensor.Tensor

	initialized bool
}

// NewRNNCell creates a recurrent cell with nOut hidden units. Input width is
// inferred on the first forward call. A nil act means Identity; a nil opt
// means DefaultOptimizer.
func NewRNNCell(nOut int, act *Activation, winit WeightInit, opt optim.Optimizer, rng *rand.Rand) *RNNCell {
	if nOut <= 0 {
		panic(fmt.Sprintf("rnncell: invalid hidden size %d", nOut))
	}
	return &RNNCell{
		base:  newBase("rnncell", opt),
		nOut:  nOut,
		act:   orIdentity(act),
		winit: winit,
		rng:   rng,
	}
}

func (l *RNNCell) initParams(nIn int) {
	l.nIn = nIn
	l.wax = initWeights(l.rng, l.winit, l.act, nIn, l.nOut)
	l.waa = initWeights(l.rng, l.winit, l.act, l.nOut, l.nOut)
	l.ba = tensor.New(l.nOut)
	l.bx = tensor.New(l.nOut)
	l.dWax = tensor.ZerosLike(l.wax)
	l.dWaa = tensor.ZerosLike(l.waa)
	l.dBa = tensor.ZerosLike(l.ba)
	l.dBx = tensor.ZerosLike(l.bx)
	l.initialized = true
}

// Forward advances the cell one timestep on a (examples, features) input and
// returns the new hidden state.
func (l *RNNCell) Forward(xt *tensor.Tensor) *tensor.Tensor {
	if !l.initialized {
		l.initParams(xt.Dim(1))
	}
	if xt.Dim(1) != l.nIn {
		panic(fmt.Sprintf("rnncell: input features %d, cell expects %d", xt.Dim(1), l.nIn))
	}
	n := xt.Dim(0)
	if len(l.as) == 0 {
		l.as = append(l.as, tensor.New(n, l.nOut))
	}
	aPrev := l.as[len(l.as)-1]

	zt := tensor.MatMul(aPrev, l.waa).AddRow(l.ba).
		Add(tensor.MatMul(xt, l.wax).AddRow(l.bx))
	at := l.act.Fn(zt)

	l.xs = append(l.xs, xt)
	l.zs = append(l.zs, zt)
	l.as = append(l.as, at)
	l.cursor++
	return at
}

// Backward consumes the most recent unconsumed timestep: it accumulates the
// weight and bias gradients for that step and returns the gradient with
// respect to its input. dLdAt is the loss gradient at that step's hidden
// state; the gradient flowing back through the recurrence is added
// internally. Calls must mirror Forward calls in reverse order, and panic
// once every cached step has been consumed.
func (l *RNNCell) Backward(dLdAt *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.cursor == 0 {
		panic("rnncell: backward called with no cached timestep")
	}
	l.cursor--
	t := l.cursor

	dA := dLdAt
	if l.dAAcc != nil {
		dA = dA.Add(l.dAAcc)
	}
	dZ := l.act.Grad(l.zs[t]).Mul(dA)
	dXt := tensor.MatMul(dZ, l.wax.T())

	// as[t] is the hidden state entering step t
	l.dWaa.AddInPlace(tensor.MatMul(l.as[t].T(), dZ))
	l.dWax.AddInPlace(tensor.MatMul(l.xs[t].T(), dZ))
	l.dBa.AddInPlace(tensor.ColSums(dZ))
	l.dBx.AddInPlace(tensor.ColSums(dZ))

	l.dAAcc = tensor.MatMul(dZ, l.waa.T())
	return dXt
}

func (l *RNNCell) Params() []Param {
	if !l.initialized {
		return nil
	}
	return []Param{
		{Name: "Waa", Value: l.waa, Grad: l.dWaa},
		{Name: "Wax", Value: l.wax, Grad: l.dWax},
		{Name: "ba", Value: l.ba, Grad: l.dBa},
		{Name: "bx", Value: l.bx, Grad: l.dBx},
	}
}

func (l *RNNCell) Update() {
	l.mustTrainable()
	l.applyUpdates(l.Params())
	l.FlushGradients()
}

func (l *RNNCell) FlushGradients() {
	l.mustTrainable()
	l.xs, l.zs, l.as = nil, nil, nil
	l.cursor = 0
	l.dAAcc = nil
	zeroAll(l.dWaa, l.dWax, l.dBa, l.dBx)
}

func (l *RNNCell) Summary() Summary {
	return Summary{
		Layer:  "RNNCell",
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

// RNN unrolls an RNNCell over the last axis of a (examples, features,
// timesteps) input, returning the hidden states of every step as
// (examples, hidden, timesteps). All Layer methods delegate to the cell.
type RNN struct {
	cell *RNNCell
}

// NewRNN creates a recurrent layer with nOut hidden units. A nil act means
// Identity; a nil opt means DefaultOptimizer.
func NewRNN(nOut int, act *Activation, winit WeightInit, opt optim.Optimizer, rng *rand.Rand) *RNN {
	return &RNN{cell: NewRNNCell(nOut, act, winit, opt, rng)}
}

// Cell returns the underlying cell.
func (l *RNN) Cell() *RNNCell { return l.cell }

// Forward runs the cell over every timestep in ascending order.
func (l *RNN) Forward(x *tensor.Tensor) *tensor.Tensor {
	n, steps := x.Dim(0), x.Dim(2)
	y := tensor.New(n, l.cell.nOut, steps)
	for t := 0; t < steps; t++ {
		at := l.cell.Forward(timeSlice(x, t))
		setTimeSlice(y, t, at)
	}
	return y
}

// Backward runs the cell backward over every timestep in descending order
// and returns the input gradient with the same layout as the input.
func (l *RNN) Backward(dLdA *tensor.Tensor) *tensor.Tensor {
	l.cell.mustTrainable()
	n, steps := dLdA.Dim(0), dLdA.Dim(2)
	dX := tensor.New(n, l.cell.nIn, steps)
	for t := steps - 1; t >= 0; t-- {
		dXt := l.cell.Backward(timeSlice(dLdA, t))
		setTimeSlice(dX, t, dXt)
	}
	return dX
}

func (l *RNN) Params() []Param { return l.cell.Params() }
func (l *RNN) Trainable() bool { return l.cell.Trainable() }
func (l *RNN) Freeze()         { l.cell.Freeze() }
func (l *RNN) Unfreeze()       { l.cell.Unfreeze() }
func (l *RNN) FlushGradients() { l.cell.FlushGradients() }
func (l *RNN) Update()         { l.cell.Update() }

func (l *RNN) Optimizer() optim.Optimizer { return l.cell.Optimizer() }

func (l *RNN) Summary() Summary {
	s := l.cell.Summary()
	s.Layer = "RNN"
	return s
}

// timeSlice extracts step t of a (examples, features, timesteps) tensor as a
// (examples, features) matrix.
func timeSlice(x *tensor.Tensor, t int) *tensor.Tensor {
	n, d, steps := x.Dim(0), x.Dim(1), x.Dim(2)
	out := tensor.New(n, d)
	src, dst := x.Data(), out.Data()
	for m := 0; m < n; m++ {
		for j := 0; j < d; j++ {
			dst[m*d+j] = src[(m*d+j)*steps+t]
		}
	}
	return out
}

// setTimeSlice writes a (examples, features) matrix into step t of a
// (examples, features, timesteps) tensor.
func setTimeSlice(x *tensor.Tensor, t int, v *tensor.Tensor) {
	n, d, steps := x.Dim(0), x.Dim(1), x.Dim(2)
	src, dst := v.Data(), x.Data()
	for m := 0; m < n; m++ {
		for j := 0; j < d; j++ {
			dst[(m*d+j)*steps+t] = src[m*d+j]
		}
	}
}
