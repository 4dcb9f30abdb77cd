// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"
	"math/rand"

	"github.com/spindle-ml/spindle/internal/conv"
	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

// Conv1D is a 1D convolutional layer over (examples, length, channels)
// volumes. It supports the same padding policies as Conv2D plus CausalPad,
// which pads only on the left so output t never depends on input t+1.
//
// Weight shape: (kernelWidth, inCh, outCh). inCh is inferred on the first
// forward call. Internally the layer runs on the 2D engine with a single-row
// lift of input and kernel.
type Conv1D struct {
	base
	inCh, outCh int
	kernelWidth int
	stride      int
	dilation    int
	pad         Padding
	act         *Activation
	winit       WeightInit
	rng         *rand.Rand

	w, b   *tensor.Tensor
	dw, db *tensor.Tensor
	x, z   *tensor.Tensor

	initialized bool
}

// NewConv1D creates a 1D convolutional layer with outCh filters of width
// kernelWidth. Dilation 0 means no dilation. A nil act means Identity; a nil
// opt means DefaultOptimizer.
func NewConv1D(outCh, kernelWidth, stride, dilation int, pad Padding, act *Activation, winit WeightInit, opt optim.Optimizer, rng *rand.Rand) *Conv1D {
	if outCh <= 0 {
		panic(fmt.Sprintf("conv1d: invalid output channels %d", outCh))
	}
	if kernelWidth <= 0 {
		panic(fmt.Sprintf("conv1d: invalid kernel width %d", kernelWidth))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv1d: invalid stride %d", stride))
	}
	if dilation < 0 {
		panic(fmt.Sprintf("conv1d: invalid dilation %d", dilation))
	}
	return &Conv1D{
		base:        newBase("conv1d", opt),
		outCh:       outCh,
		kernelWidth: kernelWidth,
		stride:      stride,
		dilation:    dilation,
		pad:         pad,
		act:         orIdentity(act),
		winit:       winit,
		rng:         rng,
	}
}

func (l *Conv1D) initParams(inCh int) {
	l.inCh = inCh
	l.w = initWeights(l.rng, l.winit, l.act, l.kernelWidth, inCh, l.outCh)
	l.b = tensor.New(l.outCh)
	l.dw = tensor.ZerosLike(l.w)
	l.db = tensor.ZerosLike(l.b)
	l.initialized = true
}

// Forward computes the layer output for an (examples, length, channels)
// input.
func (l *Conv1D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !l.initialized {
		l.initParams(x.Dim(2))
	}
	if x.Dim(2) != l.inCh {
		panic(fmt.Sprintf("conv1d: input channels %d, layer expects %d", x.Dim(2), l.inCh))
	}
	l.x = x

	z := conv.Conv1D(x, l.w, l.stride, l.dilation, l.pad)
	n, lOut := z.Dim(0), z.Dim(1)
	l.z = z.Reshape(n*lOut, l.outCh).AddRow(l.b).Reshape(n, lOut, l.outCh)
	return l.act.Fn(l.z)
}

// Backward accumulates dW and db and returns the input gradient, working in
// the single-row 2D lift so the 1D pad (including causal) maps onto the
// column padding of the engine.
func (l *Conv1D) Backward(dLdY *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.x == nil {
		panic("conv1d: backward called before forward")
	}
	fw := l.kernelWidth
	n, lIn := l.x.Dim(0), l.x.Dim(1)

	dZ := dLdY.Mul(l.act.Grad(l.z))
	lOut := dZ.Dim(1)

	p0, p1 := l.pad.Resolve1D(lIn, fw, l.stride, l.dilation)
	p := [4]int{0, 0, p0, p1}

	x2 := l.x.Reshape(n, 1, lIn, l.inCh)
	dzCol := conv.VolToCols(dZ.Reshape(n, 1, lOut, l.outCh))
	xCol := conv.Im2Col(conv.Pad2D(x2, p), 1, fw, l.stride, l.dilation)

	l.db.AddInPlace(tensor.ColSums(dZ.Reshape(n*lOut, l.outCh)))

	dwCol := tensor.MatMul(dzCol, xCol.T())
	dw2 := conv.ColsToWeight(dwCol, 1, fw, l.inCh, l.outCh)
	l.dw.AddInPlace(dw2.Reshape(fw, l.inCh, l.outCh))

	w2 := l.w.Reshape(1, fw, l.inCh, l.outCh)
	dxCol := tensor.MatMul(conv.WeightCols(w2).T(), dzCol)
	dx2 := conv.Col2Im(dxCol, x2.Shape(), 1, fw, p, l.stride, l.dilation)
	return dx2.Reshape(n, lIn, l.inCh)
}

// backwardNaive is the direct-loop reference for Backward.
func (l *Conv1D) backwardNaive(dLdY *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.x == nil {
		panic("conv1d: backward called before forward")
	}
	fw, s, d := l.kernelWidth, l.stride, l.dilation+1
	n, lIn := l.x.Dim(0), l.x.Dim(1)

	p0, p1 := l.pad.Resolve1D(lIn, fw, l.stride, l.dilation)
	xPad := conv.Pad1D(l.x, p0, p1)
	dZ := dLdY.Mul(l.act.Grad(l.z))
	lOut := dZ.Dim(1)

	dxPad := tensor.ZerosLike(xPad)
	for m := 0; m < n; m++ {
		for i := 0; i < lOut; i++ {
			for o := 0; o < l.outCh; o++ {
				g := dZ.At(m, i, o)
				l.db.Data()[o] += g
				for k := 0; k < fw; k++ {
					for c := 0; c < l.inCh; c++ {
						l.dw.Data()[(k*l.inCh+c)*l.outCh+o] += xPad.At(m, i*s+k*d, c) * g
						dxPad.Data()[(m*xPad.Dim(1)+i*s+k*d)*l.inCh+c] += l.w.At(k, c, o) * g
					}
				}
			}
		}
	}
	return conv.Crop1D(dxPad, p0, p1)
}

func (l *Conv1D) Params() []Param {
	if !l.initialized {
		return nil
	}
	return []Param{
		{Name: "W", Value: l.w, Grad: l.dw},
		{Name: "b", Value: l.b, Grad: l.db},
	}
}

func (l *Conv1D) Update() {
	l.mustTrainable()
	l.applyUpdates(l.Params())
	l.FlushGradients()
}

func (l *Conv1D) FlushGradients() {
	l.mustTrainable()
	l.x, l.z = nil, nil
	zeroAll(l.dw, l.db)
}

func (l *Conv1D) Summary() Summary {
	return Summary{
		Layer:  "Conv1D",
		Params: paramMap(l.Params()),
		Hyperparams: map[string]any{
			"in_ch":        l.inCh,
			"out_ch":       l.outCh,
			"kernel_width": l.kernelWidth,
			"stride":       l.stride,
			"dilation":     l.dilation,
			"pad":          l.pad.String(),
			"act_fn":       l.act.String(),
			"init":         l.winit.String(),
			"frozen":       !l.trainable,
			"optimizer":    l.opt.StateDict(),
		},
	}
}
