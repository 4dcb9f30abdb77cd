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

// LSTMCell is a single-timestep long short-term memory cell. With
// Z[t] = [A[t-1], X[t]] (hidden state left, input right):
//
//	Gf = gate(Z[t]·Wf + bf)   forget gate
//	Gu = gate(Z[t]·Wu + bu)   update gate
//	Go = gate(Z[t]·Wo + bo)   output gate
//	Cc = act(Z[t]·Wc + bc)    candidate cell state
//	C[t] = Gf ⊙ C[t-1] + Gu ⊙ Cc
//	A[t] = Go ⊙ act(C[t])
//
// Each Forward call advances the cell one timestep and caches that step;
// Backward consumes the cached steps strictly in reverse order, carrying
// both the hidden-state and cell-state gradients between calls. Hidden and
// cell state start at zero on the first Forward after construction or a
// flush. Each gate's pre-activation is recomputed from its own weights and
// bias during the backward pass.
type LSTMCell struct {
	base
	nIn, nOut int
	act, gate *Activation
	winit     WeightInit
	rng       *rand.Rand

	wf, wu, wc, wo     *tensor.Tensor
	bf, bu, bc, bo     *tensor.Tensor
	dWf, dWu, dWc, dWo *tensor.Tensor
	dBf, dBu, dBc, dBo *tensor.Tensor

	xs            []*tensor.Tensor
	as, cs        []*tensor.Tensor // one extra leading entry: A[0] = C[0] = 0
	gfs, gus, gos []*tensor.Tensor
	ccs           []*tensor.Tensor
	cursor        int
	dAAcc, dCAcc  *tensor.Tensor

	initialized bool
}

// NewLSTMCell creates an LSTM cell with nOut hidden units. Input width is
// inferred on the first forward call. A nil act means Tanh and a nil gate
// means Sigmoid; a nil opt means DefaultOptimizer.
func NewLSTMCell(nOut int, act, gate *Activation, winit WeightInit, opt optim.Optimizer, rng *rand.Rand) *LSTMCell {
	if nOut <= 0 {
		panic(fmt.Sprintf("lstmcell: invalid hidden size %d", nOut))
	}
	if act == nil {
		act = Tanh
	}
	if gate == nil {
		gate = Sigmoid
	}
	return &LSTMCell{
		base:  newBase("lstmcell", opt),
		nOut:  nOut,
		act:   act,
		gate:  gate,
		winit: winit,
		rng:   rng,
	}
}

func (l *LSTMCell) initParams(nIn int) {
	l.nIn = nIn
	rows := nIn + l.nOut
	l.wf = initWeights(l.rng, l.winit, l.gate, rows, l.nOut)
	l.wu = initWeights(l.rng, l.winit, l.gate, rows, l.nOut)
	l.wc = initWeights(l.rng, l.winit, l.act, rows, l.nOut)
	l.wo = initWeights(l.rng, l.winit, l.gate, rows, l.nOut)
	l.bf = tensor.New(l.nOut)
	l.bu = tensor.New(l.nOut)
	l.bc = tensor.New(l.nOut)
	l.bo = tensor.New(l.nOut)
	l.dWf = tensor.ZerosLike(l.wf)
	l.dWu = tensor.ZerosLike(l.wu)
	l.dWc = tensor.ZerosLike(l.wc)
	l.dWo = tensor.ZerosLike(l.wo)
	l.dBf = tensor.ZerosLike(l.bf)
	l.dBu = tensor.ZerosLike(l.bu)
	l.dBc = tensor.ZerosLike(l.bc)
	l.dBo = tensor.ZerosLike(l.bo)
	l.initialized = true
}

// Forward advances the cell one timestep on a (examples, features) input and
// returns the new hidden state and cell state.
func (l *LSTMCell) Forward(xt *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	if !l.initialized {
		l.initParams(xt.Dim(1))
	}
	if xt.Dim(1) != l.nIn {
		panic(fmt.Sprintf("lstmcell: input features %d, cell expects %d", xt.Dim(1), l.nIn))
	}
	n := xt.Dim(0)
	if len(l.as) == 0 {
		l.as = append(l.as, tensor.New(n, l.nOut))
		l.cs = append(l.cs, tensor.New(n, l.nOut))
	}
	aPrev := l.as[len(l.as)-1]
	cPrev := l.cs[len(l.cs)-1]

	zt := tensor.Hstack(aPrev, xt)
	gf := l.gate.Fn(tensor.MatMul(zt, l.wf).AddRow(l.bf))
	gu := l.gate.Fn(tensor.MatMul(zt, l.wu).AddRow(l.bu))
	og := l.gate.Fn(tensor.MatMul(zt, l.wo).AddRow(l.bo))
	cc := l.act.Fn(tensor.MatMul(zt, l.wc).AddRow(l.bc))

	ct := gf.Mul(cPrev).Add(gu.Mul(cc))
	at := og.Mul(l.act.Fn(ct))

	l.xs = append(l.xs, xt)
	l.as = append(l.as, at)
	l.cs = append(l.cs, ct)
	l.gfs = append(l.gfs, gf)
	l.gus = append(l.gus, gu)
	l.gos = append(l.gos, og)
	l.ccs = append(l.ccs, cc)
	l.cursor++
	return at, ct
}

// Backward consumes the most recent unconsumed timestep: it accumulates the
// gate weight and bias gradients for that step and returns the gradient with
// respect to its input. dLdAt is the loss gradient at that step's hidden
// state; the gradients flowing back through the hidden and cell recurrences
// are added internally. Calls must mirror Forward calls in reverse order,
// and panic once every cached step has been consumed.
func (l *LSTMCell) Backward(dLdAt *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.cursor == 0 {
		panic("lstmcell: backward called with no cached timestep")
	}
	l.cursor--
	t := l.cursor

	aPrev, cPrev := l.as[t], l.cs[t]
	ct := l.cs[t+1]
	gf, gu, og, cc := l.gfs[t], l.gus[t], l.gos[t], l.ccs[t]
	zt := tensor.Hstack(aPrev, l.xs[t])

	dA := dLdAt
	if l.dAAcc != nil {
		dA = dA.Add(l.dAAcc)
	}
	dC := dA.Mul(og).Mul(l.act.Grad(ct))
	if l.dCAcc != nil {
		dC = dC.Add(l.dCAcc)
	}

	preGf := tensor.MatMul(zt, l.wf).AddRow(l.bf)
	preGu := tensor.MatMul(zt, l.wu).AddRow(l.bu)
	preGo := tensor.MatMul(zt, l.wo).AddRow(l.bo)
	preCc := tensor.MatMul(zt, l.wc).AddRow(l.bc)

	dGo := dA.Mul(l.act.Fn(ct)).Mul(l.gate.Grad(preGo))
	dCc := dC.Mul(gu).Mul(l.act.Grad(preCc))
	dGu := dC.Mul(cc).Mul(l.gate.Grad(preGu))
	dGf := dC.Mul(cPrev).Mul(l.gate.Grad(preGf))

	dZ := tensor.MatMul(dGf, l.wf.T()).
		Add(tensor.MatMul(dGu, l.wu.T())).
		Add(tensor.MatMul(dCc, l.wc.T())).
		Add(tensor.MatMul(dGo, l.wo.T()))

	ztT := zt.T()
	l.dWf.AddInPlace(tensor.MatMul(ztT, dGf))
	l.dWu.AddInPlace(tensor.MatMul(ztT, dGu))
	l.dWc.AddInPlace(tensor.MatMul(ztT, dCc))
	l.dWo.AddInPlace(tensor.MatMul(ztT, dGo))
	l.dBf.AddInPlace(tensor.ColSums(dGf))
	l.dBu.AddInPlace(tensor.ColSums(dGu))
	l.dBc.AddInPlace(tensor.ColSums(dCc))
	l.dBo.AddInPlace(tensor.ColSums(dGo))

	l.dAAcc = dZ.SliceCols(0, l.nOut)
	l.dCAcc = gf.Mul(dC)
	return dZ.SliceCols(l.nOut, l.nOut+l.nIn)
}

func (l *LSTMCell) Params() []Param {
	if !l.initialized {
		return nil
	}
	return []Param{
		{Name: "Wf", Value: l.wf, Grad: l.dWf},
		{Name: "Wu", Value: l.wu, Grad: l.dWu},
		{Name: "Wc", Value: l.wc, Grad: l.dWc},
		{Name: "Wo", Value: l.wo, Grad: l.dWo},
		{Name: "bf", Value: l.bf, Grad: l.dBf},
		{Name: "bu", Value: l.bu, Grad: l.dBu},
		{Name: "bc", Value: l.bc, Grad: l.dBc},
		{Name: "bo", Value: l.bo, Grad: l.dBo},
	}
}

func (l *LSTMCell) Update() {
	l.mustTrainable()
	l.applyUpdates(l.Params())
	l.FlushGradients()
}

func (l *LSTMCell) FlushGradients() {
	l.mustTrainable()
	l.xs, l.as, l.cs = nil, nil, nil
	l.gfs, l.gus, l.gos, l.ccs = nil, nil, nil, nil
	l.cursor = 0
	l.dAAcc, l.dCAcc = nil, nil
	zeroAll(l.dWf, l.dWu, l.dWc, l.dWo, l.dBf, l.dBu, l.dBc, l.dBo)
}

func (l *LSTMCell) Summary() Summary {
	return Summary{
		Layer:  "LSTMCell",
		Params: paramMap(l.Params()),
		Hyperparams: map[string]any{
			"n_in":      l.nIn,
			"n_out":     l.nOut,
			"act_fn":    l.act.String(),
			"gate_fn":   l.gate.String(),
			"init":      l.winit.String(),
			"frozen":    !l.trainable,
			"optimizer": l.opt.StateDict(),
		},
	}
}

// LSTM unrolls an LSTMCell over the last axis of a (examples, features,
// timesteps) input, returning the hidden states of every step as
// (examples, hidden, timesteps). Cell states stay inside the cell. All Layer
// methods delegate to the cell.
type LSTM struct {
	cell *LSTMCell
}

// NewLSTM creates an LSTM layer with nOut hidden units. A nil act means Tanh
// and a nil gate means Sigmoid; a nil opt means DefaultOptimizer.
func NewLSTM(nOut int, act, gate *Activation, winit WeightInit, opt optim.Optimizer, rng *rand.Rand) *LSTM {
	return &LSTM{cell: NewLSTMCell(nOut, act, gate, winit, opt, rng)}
}

// Cell returns the underlying cell.
func (l *LSTM) Cell() *LSTMCell { return l.cell }

// Forward runs the cell over every timestep in ascending order.
func (l *LSTM) Forward(x *tensor.Tensor) *tensor.Tensor {
	n, steps := x.Dim(0), x.Dim(2)
	y := tensor.New(n, l.cell.nOut, steps)
	for t := 0; t < steps; t++ {
		at, _ := l.cell.Forward(timeSlice(x, t))
		setTimeSlice(y, t, at)
	}
	return y
}

// Backward runs the cell backward over every timestep in descending order
// and returns the input gradient with the same layout as the input.
func (l *LSTM) Backward(dLdA *tensor.Tensor) *tensor.Tensor {
	l.cell.mustTrainable()
	n, steps := dLdA.Dim(0), dLdA.Dim(2)
	dX := tensor.New(n, l.cell.nIn, steps)
	for t := steps - 1; t >= 0; t-- {
		dXt := l.cell.Backward(timeSlice(dLdA, t))
		setTimeSlice(dX, t, dXt)
	}
	return dX
}

func (l *LSTM) Params() []Param { return l.cell.Params() }
func (l *LSTM) Trainable() bool { return l.cell.Trainable() }
func (l *LSTM) Freeze()         { l.cell.Freeze() }
func (l *LSTM) Unfreeze()       { l.cell.Unfreeze() }
func (l *LSTM) FlushGradients() { l.cell.FlushGradients() }
func (l *LSTM) Update()         { l.cell.Update() }

func (l *LSTM) Optimizer() optim.Optimizer { return l.cell.Optimizer() }

func (l *LSTM) Summary() Summary {
	s := l.cell.Summary()
	s.Layer = "LSTM"
	return s
}
