// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"strings"

	"github.com/spindle-ml/spindle/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule:
//
//	velocity = momentum * velocity + lr * gradient
//	param    = param - velocity
//
// With Momentum 0 this reduces to plain gradient descent.
type SGD struct {
	lr       float64
	momentum float64
	velocity map[string]*tensor.Tensor
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR       float64 // learning rate (default: 0.01)
	Momentum float64 // momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		lr:       config.LR,
		momentum: config.Momentum,
		velocity: make(map[string]*tensor.Tensor),
	}
}

// Apply returns the updated value for the named parameter.
func (s *SGD) Apply(name string, param, grad *tensor.Tensor) *tensor.Tensor {
	v, ok := s.velocity[name]
	if !ok {
		v = tensor.ZerosLike(param)
	}
	v = v.Scale(s.momentum).Add(grad.Scale(s.lr))
	s.velocity[name] = v
	return param.Sub(v)
}

// StateDict returns the velocity buffers keyed "velocity.<param>". Without
// momentum there is no state to carry and the map is empty.
func (s *SGD) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	if s.momentum == 0 {
		return state
	}
	for name, v := range s.velocity {
		state["velocity."+name] = v
	}
	return state
}

// LoadStateDict restores velocity buffers exported by StateDict. Parameters
// absent from the state start fresh on their next Apply.
func (s *SGD) LoadStateDict(state map[string]*tensor.Tensor) {
	s.velocity = make(map[string]*tensor.Tensor)
	for key, v := range state {
		if name, ok := strings.CutPrefix(key, "velocity."); ok {
			s.velocity[name] = v.Clone()
		}
	}
}

// LR returns the learning rate.
func (s *SGD) LR() float64 { return s.lr }

// SetLR updates the learning rate. Useful for manual scheduling.
func (s *SGD) SetLR(lr float64) { s.lr = lr }
