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

// Deconv2D is a transposed (fractionally strided) convolution layer:
// Y = act(deconv(X, W) + b).
//
// The forward pass dilates the input by stride-1 zeros, pads it, then runs a
// unit-stride cross-correlation with the 180-degree-rotated kernel, producing
// stride*(in-1) + kernelRows output rows for an input of in rows; the
// configured padding cancels out of the output size. Dilation of the kernel
// itself is not supported.
//
// Weight shape: (kernelRows, kernelCols, inCh, outCh), as for Conv2D; inCh
// is inferred on the first forward call.
type Deconv2D struct {
	base
	inCh, outCh int
	kernel      [2]int
	stride      int
	pad         Padding
	act         *Activation
	winit       WeightInit
	rng         *rand.Rand

	w, b   *tensor.Tensor
	dw, db *tensor.Tensor
	x, z   *tensor.Tensor

	initialized bool
}

// NewDeconv2D creates a transposed convolution layer with outCh filters of
// shape (kernelRows, kernelCols). A nil act means Identity; a nil opt means
// DefaultOptimizer.
func NewDeconv2D(outCh, kernelRows, kernelCols, stride int, pad Padding, act *Activation, winit WeightInit, opt optim.Optimizer, rng *rand.Rand) *Deconv2D {
	if outCh <= 0 {
		panic(fmt.Sprintf("deconv2d: invalid output channels %d", outCh))
	}
	if kernelRows <= 0 || kernelCols <= 0 {
		panic(fmt.Sprintf("deconv2d: invalid kernel shape (%d, %d)", kernelRows, kernelCols))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("deconv2d: invalid stride %d", stride))
	}
	return &Deconv2D{
		base:   newBase("deconv2d", opt),
		outCh:  outCh,
		kernel: [2]int{kernelRows, kernelCols},
		stride: stride,
		pad:    pad,
		act:    orIdentity(act),
		winit:  winit,
		rng:    rng,
	}
}

func (l *Deconv2D) initParams(inCh int) {
	l.inCh = inCh
	l.w = initWeights(l.rng, l.winit, l.act, l.kernel[0], l.kernel[1], inCh, l.outCh)
	l.b = tensor.New(l.outCh)
	l.dw = tensor.ZerosLike(l.w)
	l.db = tensor.ZerosLike(l.b)
	l.initialized = true
}

// Forward computes the layer output for an NHWC input volume.
func (l *Deconv2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !l.initialized {
		l.initParams(x.Dim(3))
	}
	if x.Dim(3) != l.inCh {
		panic(fmt.Sprintf("deconv2d: input channels %d, layer expects %d", x.Dim(3), l.inCh))
	}
	l.x = x

	z := conv.Deconv2D(x, l.w, l.stride, l.pad)
	n, or, oc := z.Dim(0), z.Dim(1), z.Dim(2)
	l.z = z.Reshape(n*or*oc, l.outCh).AddRow(l.b).Reshape(n, or, oc, l.outCh)
	return l.act.Fn(l.z)
}

// Backward accumulates dW and db and returns the input gradient.
//
// The pass mirrors the forward construction: the cached input is re-dilated
// and double-padded, so the output gradient's positions line up with the
// unit-stride column matrix, and the weight gradient — computed against the
// rotated kernel — is rotated back before accumulating. The input gradient
// is scattered to the dilated volume and then subsampled by the stride,
// discarding the inserted zero positions.
func (l *Deconv2D) Backward(dLdY *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.x == nil {
		panic("deconv2d: backward called before forward")
	}
	fr, fc := l.kernel[0], l.kernel[1]

	x := l.x
	if l.stride > 1 {
		x = conv.Dilate(x, l.stride-1)
	}

	p := l.pad.Resolve2D(x.Dim(1), x.Dim(2), fr, fc, 1, 0)
	xPad := conv.Pad2D(x, p)
	inRows, inCols := xPad.Dim(1), xPad.Dim(2)

	outRows := inRows - 1 - p[0] - p[1] + fr
	outCols := inCols - 1 - p[2] - p[3] + fc
	p2 := conv.CalcPad2D(inRows, inCols, outRows, outCols, fr, fc, 1, 0)
	xPad = conv.Pad2D(xPad, p2)

	dZ := dLdY.Mul(l.act.Grad(l.z))
	dzCol := conv.VolToCols(dZ)
	xCol := conv.Im2Col(xPad, fr, fc, 1, 0)

	nPos := dZ.Dim(0) * dZ.Dim(1) * dZ.Dim(2)
	l.db.AddInPlace(tensor.ColSums(dZ.Reshape(nPos, l.outCh)))

	dwCol := tensor.MatMul(dzCol, xCol.T())
	dwRot := conv.ColsToWeight(dwCol, fr, fc, l.inCh, l.outCh)
	l.dw.AddInPlace(conv.Rot180(dwRot))

	wr := conv.Rot180(l.w)
	dxCol := tensor.MatMul(conv.WeightCols(wr).T(), dzCol)

	total := [4]int{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2], p[3] + p2[3]}
	dx := conv.Col2Im(dxCol, x.Shape(), fr, fc, total, 1, 0)
	return conv.Subsample(dx, l.stride)
}

func (l *Deconv2D) Params() []Param {
	if !l.initialized {
		return nil
	}
	return []Param{
		{Name: "W", Value: l.w, Grad: l.dw},
		{Name: "b", Value: l.b, Grad: l.db},
	}
}

func (l *Deconv2D) Update() {
	l.mustTrainable()
	l.applyUpdates(l.Params())
	l.FlushGradients()
}

func (l *Deconv2D) FlushGradients() {
	l.mustTrainable()
	l.x, l.z = nil, nil
	zeroAll(l.dw, l.db)
}

func (l *Deconv2D) Summary() Summary {
	return Summary{
		Layer:  "Deconv2D",
		Params: paramMap(l.Params()),
		Hyperparams: map[string]any{
			"in_ch":        l.inCh,
			"out_ch":       l.outCh,
			"kernel_shape": l.kernel,
			"stride":       l.stride,
			"pad":          l.pad.String(),
			"act_fn":       l.act.String(),
			"init":         l.winit.String(),
			"frozen":       !l.trainable,
			"optimizer":    l.opt.StateDict(),
		},
	}
}
