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

// Conv2D is a 2D convolutional layer: Y = act(X * W + b), where * is the
// strided, dilated cross-correlation.
//
// Input shape:  (examples, inRows, inCols, inCh)  — NHWC
// Weight shape: (kernelRows, kernelCols, inCh, outCh)
// Output shape: (examples, outRows, outCols, outCh), with
//
//	outRows = floor(1 + (inRows + padTop + padBottom - effKernel) / stride)
//
// and effKernel = kernelRows*(dilation+1) - dilation. inCh is inferred on
// the first forward call.
type Conv2D struct {
	base
	inCh, outCh int
	kernel      [2]int
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

// NewConv2D creates a 2D convolutional layer with outCh filters of shape
// (kernelRows, kernelCols). Dilation 0 means no dilation. A nil act means
// Identity; a nil opt means DefaultOptimizer.
func NewConv2D(outCh, kernelRows, kernelCols, stride, dilation int, pad Padding, act *Activation, winit WeightInit, opt optim.Optimizer, rng *rand.Rand) *Conv2D {
	if outCh <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output channels %d", outCh))
	}
	if kernelRows <= 0 || kernelCols <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel shape (%d, %d)", kernelRows, kernelCols))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if dilation < 0 {
		panic(fmt.Sprintf("conv2d: invalid dilation %d", dilation))
	}
	return &Conv2D{
		base:     newBase("conv2d", opt),
		outCh:    outCh,
		kernel:   [2]int{kernelRows, kernelCols},
		stride:   stride,
		dilation: dilation,
		pad:      pad,
		act:      orIdentity(act),
		winit:    winit,
		rng:      rng,
	}
}

func (l *Conv2D) initParams(inCh int) {
	l.inCh = inCh
	l.w = initWeights(l.rng, l.winit, l.act, l.kernel[0], l.kernel[1], inCh, l.outCh)
	l.b = tensor.New(l.outCh)
	l.dw = tensor.ZerosLike(l.w)
	l.db = tensor.ZerosLike(l.b)
	l.initialized = true
}

// Forward computes the layer output for an NHWC input volume.
func (l *Conv2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !l.initialized {
		l.initParams(x.Dim(3))
	}
	if x.Dim(3) != l.inCh {
		panic(fmt.Sprintf("conv2d: input channels %d, layer expects %d", x.Dim(3), l.inCh))
	}
	l.x = x

	z := conv.Conv2D(x, l.w, l.stride, l.dilation, l.pad)
	n, or, oc := z.Dim(0), z.Dim(1), z.Dim(2)
	l.z = z.Reshape(n*or*oc, l.outCh).AddRow(l.b).Reshape(n, or, oc, l.outCh)
	return l.act.Fn(l.z)
}

// Backward accumulates dW and db and returns the input gradient. The column
// matrix is rebuilt from the cached input, so only X and Z survive between
// forward and backward.
func (l *Conv2D) Backward(dLdY *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.x == nil {
		panic("conv2d: backward called before forward")
	}
	fr, fc := l.kernel[0], l.kernel[1]

	dZ := dLdY.Mul(l.act.Grad(l.z))
	dzCol := conv.VolToCols(dZ)

	p := l.pad.Resolve2D(l.x.Dim(1), l.x.Dim(2), fr, fc, l.stride, l.dilation)
	xCol := conv.Im2Col(conv.Pad2D(l.x, p), fr, fc, l.stride, l.dilation)

	nPos := dZ.Dim(0) * dZ.Dim(1) * dZ.Dim(2)
	l.db.AddInPlace(tensor.ColSums(dZ.Reshape(nPos, l.outCh)))

	dwCol := tensor.MatMul(dzCol, xCol.T())
	l.dw.AddInPlace(conv.ColsToWeight(dwCol, fr, fc, l.inCh, l.outCh))

	dxCol := tensor.MatMul(conv.WeightCols(l.w).T(), dzCol)
	return conv.Col2Im(dxCol, l.x.Shape(), fr, fc, p, l.stride, l.dilation)
}

// backwardNaive is the direct-loop reference for Backward. Slow; exercised
// by tests to pin the vectorized gradients.
func (l *Conv2D) backwardNaive(dLdY *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.x == nil {
		panic("conv2d: backward called before forward")
	}
	fr, fc, s, d := l.kernel[0], l.kernel[1], l.stride, l.dilation+1

	p := l.pad.Resolve2D(l.x.Dim(1), l.x.Dim(2), fr, fc, l.stride, l.dilation)
	xPad := conv.Pad2D(l.x, p)
	dZ := dLdY.Mul(l.act.Grad(l.z))

	n, outRows, outCols := dZ.Dim(0), dZ.Dim(1), dZ.Dim(2)
	dxPad := tensor.ZerosLike(xPad)
	for m := 0; m < n; m++ {
		for i := 0; i < outRows; i++ {
			for j := 0; j < outCols; j++ {
				for o := 0; o < l.outCh; o++ {
					g := dZ.At(m, i, j, o)
					l.db.Data()[o] += g
					for ki := 0; ki < fr; ki++ {
						for kj := 0; kj < fc; kj++ {
							for c := 0; c < l.inCh; c++ {
								xv := xPad.At(m, i*s+ki*d, j*s+kj*d, c)
								l.dw.Data()[((ki*fc+kj)*l.inCh+c)*l.outCh+o] += xv * g
								dxPad.Data()[((m*xPad.Dim(1)+i*s+ki*d)*xPad.Dim(2)+j*s+kj*d)*l.inCh+c] += l.w.At(ki, kj, c, o) * g
							}
						}
					}
				}
			}
		}
	}
	return conv.Crop2D(dxPad, p)
}

func (l *Conv2D) Params() []Param {
	if !l.initialized {
		return nil
	}
	return []Param{
		{Name: "W", Value: l.w, Grad: l.dw},
		{Name: "b", Value: l.b, Grad: l.db},
	}
}

func (l *Conv2D) Update() {
	l.mustTrainable()
	l.applyUpdates(l.Params())
	l.FlushGradients()
}

func (l *Conv2D) FlushGradients() {
	l.mustTrainable()
	l.x, l.z = nil, nil
	zeroAll(l.dw, l.db)
}

func (l *Conv2D) Summary() Summary {
	return Summary{
		Layer:  "Conv2D",
		Params: paramMap(l.Params()),
		Hyperparams: map[string]any{
			"in_ch":        l.inCh,
			"out_ch":       l.outCh,
			"kernel_shape": l.kernel,
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
