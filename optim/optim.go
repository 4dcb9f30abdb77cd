// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import "github.com/spindle-ml/spindle/tensor"

// Optimizer computes updated parameter values from gradients.
//
// Apply returns the new value for the parameter; it does not modify param or
// grad. Implementations keep per-parameter state keyed by name, allocated
// lazily on first use, so a fresh optimizer can serve any set of parameters.
//
// StateDict exports that per-parameter state as a flat name-to-tensor map
// ("velocity.W", "m.b", ...) and LoadStateDict restores it, so an optimizer
// rebuilt from a snapshot resumes exactly where the exported one stopped.
// Scalar state travels as a one-element tensor.
type Optimizer interface {
	Apply(name string, param, grad *tensor.Tensor) *tensor.Tensor
	StateDict() map[string]*tensor.Tensor
	LoadStateDict(state map[string]*tensor.Tensor)
}
