// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import "github.com/spindle-ml/spindle/internal/conv"

// Padding selects how convolutional and pooling layers zero-pad their
// input. See the constructors for the explicit, output-preserving ("same")
// and causal policies.
type Padding = conv.Padding

// IntPad pads every edge with p zeros.
func IntPad(p int) Padding { return conv.IntPad(p) }

// PairPad pads with two explicit amounts: (left, right) for 1D layers,
// symmetric (rows, cols) for 2D layers.
func PairPad(a, b int) Padding { return conv.PairPad(a, b) }

// QuadPad pads a 2D input with explicit (top, bottom, left, right) amounts.
func QuadPad(r1, r2, c1, c2 int) Padding { return conv.QuadPad(r1, r2, c1, c2) }

// SamePad keeps the output the spatial size of the input.
func SamePad() Padding { return conv.Same() }

// CausalPad keeps the output length equal to the input length using
// left-only padding, so output t never depends on input t+1. 1D layers only.
func CausalPad() Padding { return conv.Causal() }
