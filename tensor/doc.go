// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float64 tensor that the rest of the
// library computes on.
//
// A Tensor is a flat []float64 buffer plus a Shape. There is no stride
// machinery and no views: Reshape shares the buffer, everything else
// returns a fresh tensor. Matrix products are delegated to gonum's mat
// package; elementwise kernels use gonum's floats package.
//
// Example:
//
//	rng := rand.New(mt19937.New())
//	w := tensor.Randn(rng, 64, 32)
//	x := tensor.Randn(rng, 8, 64)
//	y := tensor.MatMul(x, w) // [8, 32]
package tensor
