// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/spindle-ml/spindle/internal/conv"
	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

// PoolMode selects the pooling function.
type PoolMode int

const (
	MaxPool PoolMode = iota
	AvgPool
)

func (m PoolMode) String() string {
	if m == MaxPool {
		return "max"
	}
	return "average"
}

// Pool2D applies max or average pooling over strided 2D windows of an NHWC
// volume. Windows may overlap; each channel pools independently.
//
// Max-pool backward routes each window's gradient to exactly one input
// position: the first position in row-major scan order attaining the window
// maximum, even when ties exist. Average-pool backward spreads the gradient
// equally over the window. Both accumulate across overlapping windows.
type Pool2D struct {
	base
	kernel [2]int
	stride int
	pad    Padding
	mode   PoolMode
	ch     int

	x *tensor.Tensor
}

// NewPool2D creates a pooling layer with windows of shape (kernelRows,
// kernelCols). A nil opt means DefaultOptimizer (unused: the layer has no
// parameters, but the trainable gate still applies).
func NewPool2D(kernelRows, kernelCols, stride int, pad Padding, mode PoolMode, opt optim.Optimizer) *Pool2D {
	if kernelRows <= 0 || kernelCols <= 0 {
		panic(fmt.Sprintf("pool2d: invalid kernel shape (%d, %d)", kernelRows, kernelCols))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("pool2d: invalid stride %d", stride))
	}
	if mode != MaxPool && mode != AvgPool {
		panic(fmt.Sprintf("pool2d: invalid mode %d", int(mode)))
	}
	return &Pool2D{
		base:   newBase("pool2d", opt),
		kernel: [2]int{kernelRows, kernelCols},
		stride: stride,
		pad:    pad,
		mode:   mode,
	}
}

// Forward pools an NHWC input volume.
func (l *Pool2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	l.ch = x.Dim(3)
	l.x = x
	fr, fc, s := l.kernel[0], l.kernel[1], l.stride

	p := l.pad.Resolve2D(x.Dim(1), x.Dim(2), fr, fc, s, 0)
	xPad := conv.Pad2D(x, p)
	n, ch := x.Dim(0), x.Dim(3)
	outRows := conv.OutLen(xPad.Dim(1), 0, 0, fr, s, 0)
	outCols := conv.OutLen(xPad.Dim(2), 0, 0, fc, s, 0)

	y := tensor.New(n, outRows, outCols, ch)
	for m := 0; m < n; m++ {
		for i := 0; i < outRows; i++ {
			for j := 0; j < outCols; j++ {
				for c := 0; c < ch; c++ {
					if l.mode == MaxPool {
						best := xPad.At(m, i*s, j*s, c)
						for ki := 0; ki < fr; ki++ {
							for kj := 0; kj < fc; kj++ {
								if v := xPad.At(m, i*s+ki, j*s+kj, c); v > best {
									best = v
								}
							}
						}
						y.Set(best, m, i, j, c)
					} else {
						var sum float64
						for ki := 0; ki < fr; ki++ {
							for kj := 0; kj < fc; kj++ {
								sum += xPad.At(m, i*s+ki, j*s+kj, c)
							}
						}
						y.Set(sum/float64(fr*fc), m, i, j, c)
					}
				}
			}
		}
	}
	return y
}

// Backward routes the upstream gradient back through the pooling windows.
func (l *Pool2D) Backward(dLdY *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.x == nil {
		panic("pool2d: backward called before forward")
	}
	fr, fc, s := l.kernel[0], l.kernel[1], l.stride

	p := l.pad.Resolve2D(l.x.Dim(1), l.x.Dim(2), fr, fc, s, 0)
	xPad := conv.Pad2D(l.x, p)
	n, ch := l.x.Dim(0), l.x.Dim(3)
	outRows, outCols := dLdY.Dim(1), dLdY.Dim(2)

	dxPad := tensor.ZerosLike(xPad)
	for m := 0; m < n; m++ {
		for i := 0; i < outRows; i++ {
			for j := 0; j < outCols; j++ {
				for c := 0; c < ch; c++ {
					dy := dLdY.At(m, i, j, c)
					if l.mode == MaxPool {
						// first row-major maximum wins ties
						bi, bj := 0, 0
						best := xPad.At(m, i*s, j*s, c)
						for ki := 0; ki < fr; ki++ {
							for kj := 0; kj < fc; kj++ {
								if v := xPad.At(m, i*s+ki, j*s+kj, c); v > best {
									best, bi, bj = v, ki, kj
								}
							}
						}
						old := dxPad.At(m, i*s+bi, j*s+bj, c)
						dxPad.Set(old+dy, m, i*s+bi, j*s+bj, c)
					} else {
						share := dy / float64(fr*fc)
						for ki := 0; ki < fr; ki++ {
							for kj := 0; kj < fc; kj++ {
								old := dxPad.At(m, i*s+ki, j*s+kj, c)
								dxPad.Set(old+share, m, i*s+ki, j*s+kj, c)
							}
						}
					}
				}
			}
		}
	}
	return conv.Crop2D(dxPad, p)
}

func (l *Pool2D) Params() []Param { return nil }

func (l *Pool2D) Update() {
	l.mustTrainable()
	l.FlushGradients()
}

func (l *Pool2D) FlushGradients() {
	l.mustTrainable()
	l.x = nil
}

func (l *Pool2D) Summary() Summary {
	return Summary{
		Layer:  "Pool2D",
		Params: map[string]*tensor.Tensor{},
		Hyperparams: map[string]any{
			"kernel_shape": l.kernel,
			"stride":       l.stride,
			"pad":          l.pad.String(),
			"mode":         l.mode.String(),
			"in_ch":        l.ch,
			"out_ch":       l.ch,
			"frozen":       !l.trainable,
			"optimizer":    l.opt.StateDict(),
		},
	}
}
