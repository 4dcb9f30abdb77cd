// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn implements differentiable layers with hand-derived backward
// passes. There is no autodiff tape: every layer computes its own input and
// parameter gradients from cached forward state.
//
// Layers share a common contract. A forward call caches whatever the matching
// backward call needs; backward returns the input gradient and accumulates
// parameter gradients in place until Update or FlushGradients resets them.
// Parameters are allocated lazily on the first forward call, when the input
// determines the missing dimensions. Freeze makes every mutating call
// (Backward, Update, FlushGradients) panic until Unfreeze.
//
// Spatial layers use NHWC layout: (examples, rows, cols, channels) for 2D and
// (examples, length, channels) for 1D. Recurrent layers take (examples,
// features, timesteps).
//
// Construction is positional, with explicit collaborators:
//
//	rng := nn.NewRand(42)
//	fc := nn.NewFullyConnected(64, nn.ReLU, nn.HeUniform, nn.DefaultOptimizer(), rng)
//	out := fc.Forward(x)
//	dx := fc.Backward(dOut)
//	fc.Update()
//
// Randomness is never global: layers that sample (weight init, RBM Gibbs
// steps) take a *rand.Rand, so runs are reproducible under a fixed seed.
package nn
