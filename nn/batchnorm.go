// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

// bnState holds the parameters and the normalization math shared by
// BatchNorm1D and BatchNorm2D. The math always runs on a (rows, features)
// matrix; BatchNorm2D reshapes its NHWC volume down to that and back.
//
// While trainable, forward normalizes with the statistics of the current
// batch and folds them into the running estimates:
//
//	running = momentum*running + (1-momentum)*batch
//
// A frozen layer still accepts Forward and normalizes with the running
// estimates instead. Variances are biased (divide by rows, not rows-1).
type bnState struct {
	base
	nIn      int
	momentum float64
	epsilon  float64
	rng      *rand.Rand

	scaler, intercept   *tensor.Tensor
	dScaler, dIntercept *tensor.Tensor

	runningMean, runningVar *tensor.Tensor

	x *tensor.Tensor

	initialized bool
}

func newBNState(name string, momentum, epsilon float64, opt optim.Optimizer, rng *rand.Rand) bnState {
	if momentum == 0 {
		momentum = 0.9
	}
	if epsilon == 0 {
		epsilon = 1e-5
	}
	if momentum < 0 || momentum >= 1 {
		panic(fmt.Sprintf("%s: invalid momentum %v", name, momentum))
	}
	if epsilon < 0 {
		panic(fmt.Sprintf("%s: invalid epsilon %v", name, epsilon))
	}
	s := bnState{momentum: momentum, epsilon: epsilon, rng: rng}
	s.base = newBase(name, opt)
	return s
}

func (l *bnState) initParams(nIn int) {
	l.nIn = nIn
	l.scaler = tensor.Rand(l.rng, nIn)
	l.intercept = tensor.New(nIn)
	l.dScaler = tensor.ZerosLike(l.scaler)
	l.dIntercept = tensor.ZerosLike(l.intercept)
	l.runningMean = tensor.New(nIn)
	l.runningVar = tensor.Full(1, nIn)
	l.initialized = true
}

// batchStats computes per-feature mean and biased variance of a
// (rows, features) matrix.
func (l *bnState) batchStats(x2 *tensor.Tensor) (mean, vr []float64) {
	rows := x2.Dim(0)
	mean = make([]float64, l.nIn)
	vr = make([]float64, l.nIn)
	data := x2.Data()
	for r := 0; r < rows; r++ {
		for j := 0; j < l.nIn; j++ {
			mean[j] += data[r*l.nIn+j]
		}
	}
	for j := range mean {
		mean[j] /= float64(rows)
	}
	for r := 0; r < rows; r++ {
		for j := 0; j < l.nIn; j++ {
			d := data[r*l.nIn+j] - mean[j]
			vr[j] += d * d
		}
	}
	for j := range vr {
		vr[j] /= float64(rows)
	}
	return mean, vr
}

func (l *bnState) forward2(x2 *tensor.Tensor) *tensor.Tensor {
	if x2.Dim(1) != l.nIn {
		panic(fmt.Sprintf("%s: input features %d, layer expects %d", l.name, x2.Dim(1), l.nIn))
	}
	var mean, vr []float64
	if l.trainable {
		mean, vr = l.batchStats(x2)
		mm, rm, rv := l.momentum, l.runningMean.Data(), l.runningVar.Data()
		for j := 0; j < l.nIn; j++ {
			rm[j] = mm*rm[j] + (1-mm)*mean[j]
			rv[j] = mm*rv[j] + (1-mm)*vr[j]
		}
		l.x = x2
	} else {
		mean = l.runningMean.Data()
		vr = l.runningVar.Data()
	}

	rows := x2.Dim(0)
	y2 := tensor.New(rows, l.nIn)
	src, dst := x2.Data(), y2.Data()
	sc, ic := l.scaler.Data(), l.intercept.Data()
	for r := 0; r < rows; r++ {
		for j := 0; j < l.nIn; j++ {
			norm := (src[r*l.nIn+j] - mean[j]) / math.Sqrt(vr[j]+l.epsilon)
			dst[r*l.nIn+j] = sc[j]*norm + ic[j]
		}
	}
	return y2
}

func (l *bnState) backward2(dy2 *tensor.Tensor) *tensor.Tensor {
	l.mustTrainable()
	if l.x == nil {
		panic(l.name + ": backward called before forward")
	}
	rows := l.x.Dim(0)
	mean, vr := l.batchStats(l.x)

	// dX = (n*dN - sum(dN) - N*sum(dN*N)) / (n*sqrt(var+eps)), per feature
	norm := tensor.New(rows, l.nIn)
	dN := tensor.New(rows, l.nIn)
	sumDN := make([]float64, l.nIn)
	sumDNN := make([]float64, l.nIn)
	xd, dyd := l.x.Data(), dy2.Data()
	sc := l.scaler.Data()
	ds, di := l.dScaler.Data(), l.dIntercept.Data()
	for r := 0; r < rows; r++ {
		for j := 0; j < l.nIn; j++ {
			i := r*l.nIn + j
			nv := (xd[i] - mean[j]) / math.Sqrt(vr[j]+l.epsilon)
			norm.Data()[i] = nv
			di[j] += dyd[i]
			ds[j] += dyd[i] * nv
			dn := dyd[i] * sc[j]
			dN.Data()[i] = dn
			sumDN[j] += dn
			sumDNN[j] += dn * nv
		}
	}

	nf := float64(rows)
	dx2 := tensor.New(rows, l.nIn)
	for r := 0; r < rows; r++ {
		for j := 0; j < l.nIn; j++ {
			i := r*l.nIn + j
			dx2.Data()[i] = (nf*dN.Data()[i] - sumDN[j] - norm.Data()[i]*sumDNN[j]) /
				(nf * math.Sqrt(vr[j]+l.epsilon))
		}
	}
	return dx2
}

func (l *bnState) Params() []Param {
	if !l.initialized {
		return nil
	}
	return []Param{
		{Name: "scaler", Value: l.scaler, Grad: l.dScaler},
		{Name: "intercept", Value: l.intercept, Grad: l.dIntercept},
	}
}

func (l *bnState) Update() {
	l.mustTrainable()
	l.applyUpdates(l.Params())
	l.FlushGradients()
}

func (l *bnState) FlushGradients() {
	l.mustTrainable()
	l.x = nil
	zeroAll(l.dScaler, l.dIntercept)
}

// ResetRunningStats restores the running mean to zero and the running
// variance to one. Panics when frozen: a frozen layer depends on its running
// statistics to normalize.
func (l *bnState) ResetRunningStats() {
	l.mustTrainable()
	if !l.initialized {
		return
	}
	l.runningMean.Zero()
	rv := l.runningVar.Data()
	for i := range rv {
		rv[i] = 1
	}
}

func (l *bnState) summary(layer string) Summary {
	params := paramMap(l.Params())
	if l.initialized {
		params["running_mean"] = l.runningMean
		params["running_var"] = l.runningVar
	}
	return Summary{
		Layer:  layer,
		Params: params,
		Hyperparams: map[string]any{
			"n_in":      l.nIn,
			"n_out":     l.nIn,
			"momentum":  l.momentum,
			"epsilon":   l.epsilon,
			"frozen":    !l.trainable,
			"optimizer": l.opt.StateDict(),
		},
	}
}

// BatchNorm1D normalizes each feature of a (examples, features) batch to zero
// mean and unit variance, then rescales with the learned per-feature scaler
// and intercept. Feature count is inferred on the first forward call; the
// scaler initializes uniformly in [0, 1) and the intercept at zero.
type BatchNorm1D struct {
	bnState
}

// NewBatchNorm1D creates a 1D batch normalization layer. Zero momentum or
// epsilon select the defaults 0.9 and 1e-5. A nil opt means DefaultOptimizer.
func NewBatchNorm1D(momentum, epsilon float64, opt optim.Optimizer, rng *rand.Rand) *BatchNorm1D {
	return &BatchNorm1D{bnState: newBNState("batchnorm1d", momentum, epsilon, opt, rng)}
}

// Forward normalizes a (examples, features) batch.
func (l *BatchNorm1D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !l.initialized {
		l.initParams(x.Dim(1))
	}
	return l.forward2(x)
}

// Backward accumulates the scaler and intercept gradients and returns the
// input gradient. The batch statistics are recomputed from the cached input.
func (l *BatchNorm1D) Backward(dLdY *tensor.Tensor) *tensor.Tensor {
	return l.backward2(dLdY)
}

func (l *BatchNorm1D) Summary() Summary { return l.summary("BatchNorm1D") }

// BatchNorm2D normalizes each channel of an NHWC volume over the batch and
// both spatial axes, sharing the per-channel scaler and intercept across
// positions. Channel count is inferred on the first forward call.
type BatchNorm2D struct {
	bnState
	inDims tensor.Shape
}

// NewBatchNorm2D creates a 2D batch normalization layer. Zero momentum or
// epsilon select the defaults 0.9 and 1e-5. A nil opt means DefaultOptimizer.
func NewBatchNorm2D(momentum, epsilon float64, opt optim.Optimizer, rng *rand.Rand) *BatchNorm2D {
	return &BatchNorm2D{bnState: newBNState("batchnorm2d", momentum, epsilon, opt, rng)}
}

// Forward normalizes an NHWC input volume.
func (l *BatchNorm2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !l.initialized {
		l.initParams(x.Dim(3))
	}
	n, r, c, ch := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	l.inDims = x.Shape()
	y2 := l.forward2(x.Reshape(n*r*c, ch))
	return y2.Reshape(n, r, c, ch)
}

// Backward accumulates the scaler and intercept gradients and returns the
// input gradient, shaped like the cached input volume.
func (l *BatchNorm2D) Backward(dLdY *tensor.Tensor) *tensor.Tensor {
	n, r, c, ch := dLdY.Dim(0), dLdY.Dim(1), dLdY.Dim(2), dLdY.Dim(3)
	dx2 := l.backward2(dLdY.Reshape(n*r*c, ch))
	return dx2.Reshape(l.inDims...)
}

func (l *BatchNorm2D) Summary() Summary { return l.summary("BatchNorm2D") }
