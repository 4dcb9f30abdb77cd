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

// RBM is a Bernoulli restricted Boltzmann machine trained with contrastive
// divergence. Visible and hidden units are binary with sigmoid conditionals:
//
//	p(H|V) = sigmoid(V·W + bOut)
//	p(V|H) = sigmoid(H·Wᵀ + bIn)
//
// Forward runs one positive phase and K alternating Gibbs steps for the
// negative phase. Hidden units are sampled to binary values between steps;
// visible units always keep their probabilities, and the final hidden step
// keeps its probabilities too, so the negative statistics are computed from
// probabilities on both sides. Backward turns the cached phase statistics
// into gradients; no loss gradient flows in from outside.
type RBM struct {
	base
	nIn, nOut int
	k         int
	rng       *rand.Rand

	w, bIn, bOut    *tensor.Tensor
	dW, dBIn, dBOut *tensor.Tensor

	v, pH            *tensor.Tensor
	pVPrime, pHPrime *tensor.Tensor
	positive         *tensor.Tensor
	negative         *tensor.Tensor

	initialized bool
}

// NewRBM creates a restricted Boltzmann machine with nOut hidden units and k
// Gibbs steps per contrastive-divergence pass. Visible width is inferred on
// the first forward call. The rng drives the hidden-unit sampling and must
// be non-nil. A nil opt means DefaultOptimizer.
func NewRBM(nOut, k int, opt optim.Optimizer, rng *rand.Rand) *RBM {
	if nOut <= 0 {
		panic(fmt.Sprintf("rbm: invalid hidden size %d", nOut))
	}
	if k <= 0 {
		panic(fmt.Sprintf("rbm: invalid gibbs steps %d", k))
	}
	if rng == nil {
		panic("rbm: rng must be non-nil")
	}
	return &RBM{base: newBase("rbm", opt), nOut: nOut, k: k, rng: rng}
}

func (l *RBM) initParams(nIn int) {
	l.nIn = nIn
	l.w = initWeights(l.rng, GlorotUniform, Sigmoid, nIn, l.nOut)
	l.bIn = tensor.New(nIn)
	l.bOut = tensor.New(l.nOut)
	l.dW = tensor.ZerosLike(l.w)
	l.dBIn = tensor.ZerosLike(l.bIn)
	l.dBOut = tensor.ZerosLike(l.bOut)
	l.initialized = true
}

// sample draws a binary matrix with independent Bernoulli(p) entries.
func (l *RBM) sample(p *tensor.Tensor) *tensor.Tensor {
	s := tensor.ZerosLike(p)
	src, dst := p.Data(), s.Data()
	for i := range src {
		if l.rng.Float64() <= src[i] {
			dst[i] = 1
		}
	}
	return s
}

// Forward runs the positive phase and K Gibbs steps on a (examples,
// visible) batch of values in [0, 1], caching the phase statistics for
// Backward. It returns the visible reconstruction probabilities.
func (l *RBM) Forward(v *tensor.Tensor) *tensor.Tensor {
	return l.forward(v, l.k)
}

func (l *RBM) forward(v *tensor.Tensor, k int) *tensor.Tensor {
	if !l.initialized {
		l.initParams(v.Dim(1))
	}
	if v.Dim(1) != l.nIn {
		panic(fmt.Sprintf("rbm: visible units %d, layer expects %d", v.Dim(1), l.nIn))
	}

	pH := Sigmoid.Fn(tensor.MatMul(v, l.w).AddRow(l.bOut))
	h := l.sample(pH)
	positive := tensor.MatMul(v.T(), pH)

	var pV, pHNext *tensor.Tensor
	for step := 0; step < k; step++ {
		pV = Sigmoid.Fn(tensor.MatMul(h, l.w.T()).AddRow(l.bIn))
		pHNext = Sigmoid.Fn(tensor.MatMul(pV, l.w).AddRow(l.bOut))
		if step != k-1 {
			h = l.sample(pHNext)
		} else {
			h = pHNext
		}
	}
	negative := tensor.MatMul(pV.T(), pHNext)

	l.v, l.pH = v, pH
	l.pVPrime, l.pHPrime = pV, pHNext
	l.positive, l.negative = positive, negative
	return pV
}

// Backward turns the cached positive and negative phase statistics into
// gradients. It takes no upstream gradient: the contrastive-divergence
// update is not the gradient of an external loss.
func (l *RBM) Backward() {
	l.mustTrainable()
	if l.v == nil {
		panic("rbm: backward called before forward")
	}
	l.dW.AddInPlace(l.positive.Sub(l.negative))
	l.dBIn.AddInPlace(tensor.ColSums(l.v.Sub(l.pVPrime)))
	l.dBOut.AddInPlace(tensor.ColSums(l.pH.Sub(l.pHPrime)))
}

// CDUpdate accumulates one contrastive-divergence gradient for a batch:
// Forward followed by Backward. Call Update afterwards to apply it.
func (l *RBM) CDUpdate(x *tensor.Tensor) {
	l.Forward(x)
	l.Backward()
}

// Reconstruct passes a batch through nSteps Gibbs steps and returns the
// visible reconstruction: probabilities when returnProb is set, a binary
// sample otherwise. The phase statistics accumulated on the way are
// flushed, so Reconstruct never contributes to training.
func (l *RBM) Reconstruct(x *tensor.Tensor, nSteps int, returnProb bool) *tensor.Tensor {
	if nSteps <= 0 {
		panic(fmt.Sprintf("rbm: invalid gibbs steps %d", nSteps))
	}
	pV := l.forward(x, nSteps)
	l.FlushGradients()
	if returnProb {
		return pV
	}
	return l.sample(pV)
}

func (l *RBM) Params() []Param {
	if !l.initialized {
		return nil
	}
	return []Param{
		{Name: "W", Value: l.w, Grad: l.dW},
		{Name: "b_in", Value: l.bIn, Grad: l.dBIn},
		{Name: "b_out", Value: l.bOut, Grad: l.dBOut},
	}
}

func (l *RBM) Update() {
	l.mustTrainable()
	l.applyUpdates(l.Params())
	l.FlushGradients()
}

func (l *RBM) FlushGradients() {
	l.mustTrainable()
	l.v, l.pH = nil, nil
	l.pVPrime, l.pHPrime = nil, nil
	l.positive, l.negative = nil, nil
	zeroAll(l.dW, l.dBIn, l.dBOut)
}

func (l *RBM) Summary() Summary {
	return Summary{
		Layer:  "RBM",
		Params: paramMap(l.Params()),
		Hyperparams: map[string]any{
			"n_in":      l.nIn,
			"n_out":     l.nOut,
			"K":         l.k,
			"frozen":    !l.trainable,
			"optimizer": l.opt.StateDict(),
		},
	}
}
