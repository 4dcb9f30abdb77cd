// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides first-order gradient optimizers.
//
// An Optimizer maps a (parameter, gradient) pair to updated parameter values,
// keeping any internal state (momentum velocities, moment estimates) in
// per-parameter caches keyed by name. Layers call the optimizer once per
// parameter during their update step; the same optimizer instance may be
// shared across the parameters of a layer but not across layers, since keys
// are only unique within one.
//
// Example:
//
//	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.05, Momentum: 0.9})
//	layer := nn.NewFullyConnected(16, nn.Tanh, nn.GlorotUniform, sgd, rng)
//
// Configs use zero-value defaults: an unset field takes the documented
// default, so optim.NewAdam(optim.AdamConfig{}) is Adam with the standard
// hyperparameters.
package optim
