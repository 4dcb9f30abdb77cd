// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"math"
	"strings"

	"github.com/spindle-ml/spindle/tensor"
)

// Adam implements the Adam (adaptive moment estimation) optimizer.
//
// Update rule:
//
//	m     = beta1 * m + (1-beta1) * gradient
//	v     = beta2 * v + (1-beta2) * gradient²
//	m_hat = m / (1 - beta1^t)
//	v_hat = v / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// The timestep t is tracked per parameter, so parameters that join training
// late still get correct bias correction.
//
// Reference: Kingma & Ba, "Adam: A Method for Stochastic Optimization", 2014.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	m     map[string]*tensor.Tensor
	v     map[string]*tensor.Tensor
	t     map[string]int
}

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LR    float64 // learning rate (default: 0.001)
	Beta1 float64 // first moment decay (default: 0.9)
	Beta2 float64 // second moment decay (default: 0.999)
	Eps   float64 // numerical stability term (default: 1e-8)
}

// NewAdam creates a new Adam optimizer.
func NewAdam(config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Beta1 == 0 {
		config.Beta1 = 0.9
	}
	if config.Beta2 == 0 {
		config.Beta2 = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		lr:    config.LR,
		beta1: config.Beta1,
		beta2: config.Beta2,
		eps:   config.Eps,
		m:     make(map[string]*tensor.Tensor),
		v:     make(map[string]*tensor.Tensor),
		t:     make(map[string]int),
	}
}

// Apply returns the updated value for the named parameter.
func (a *Adam) Apply(name string, param, grad *tensor.Tensor) *tensor.Tensor {
	m, ok := a.m[name]
	if !ok {
		m = tensor.ZerosLike(param)
		a.v[name] = tensor.ZerosLike(param)
	}
	v := a.v[name]
	a.t[name]++
	t := float64(a.t[name])

	m = m.Scale(a.beta1).Add(grad.Scale(1 - a.beta1))
	v = v.Scale(a.beta2).Add(grad.Mul(grad).Scale(1 - a.beta2))
	a.m[name] = m
	a.v[name] = v

	mc := 1 - math.Pow(a.beta1, t)
	vc := 1 - math.Pow(a.beta2, t)

	out := param.Clone()
	po, mo, vo := out.Data(), m.Data(), v.Data()
	for i := range po {
		mHat := mo[i] / mc
		vHat := vo[i] / vc
		po[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
	return out
}

// StateDict returns the moment estimates and per-parameter timesteps, keyed
// "m.<param>", "v.<param>" and "t.<param>". The timestep is a one-element
// tensor so the state stays a single map type.
func (a *Adam) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	for name, m := range a.m {
		state["m."+name] = m
	}
	for name, v := range a.v {
		state["v."+name] = v
	}
	for name, t := range a.t {
		state["t."+name] = tensor.FromSlice([]float64{float64(t)}, 1)
	}
	return state
}

// LoadStateDict restores state exported by StateDict. Parameters absent from
// the state start fresh, with bias correction from timestep one.
func (a *Adam) LoadStateDict(state map[string]*tensor.Tensor) {
	a.m = make(map[string]*tensor.Tensor)
	a.v = make(map[string]*tensor.Tensor)
	a.t = make(map[string]int)
	for key, val := range state {
		if name, ok := strings.CutPrefix(key, "m."); ok {
			a.m[name] = val.Clone()
		}
		if name, ok := strings.CutPrefix(key, "v."); ok {
			a.v[name] = val.Clone()
		}
		if name, ok := strings.CutPrefix(key, "t."); ok {
			a.t[name] = int(val.At(0))
		}
	}
}

// LR returns the learning rate.
func (a *Adam) LR() float64 { return a.lr }

// SetLR updates the learning rate. Useful for manual scheduling.
func (a *Adam) SetLR(lr float64) { a.lr = lr }
