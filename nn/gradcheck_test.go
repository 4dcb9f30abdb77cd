// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"math/rand"
	"testing"

	"github.com/spindle-ml/spindle/tensor"
)

// numGrad estimates d(loss)/d(data[i]) with a central difference, restoring
// the perturbed entry afterwards.
func numGrad(loss func() float64, data []float64, i int) float64 {
	const eps = 1e-6
	old := data[i]
	data[i] = old + eps
	lp := loss()
	data[i] = old - eps
	lm := loss()
	data[i] = old
	return (lp - lm) / (2 * eps)
}

// checkGrad compares every entry of an analytic gradient against the
// central-difference estimate obtained by perturbing the matching entry of
// data.
func checkGrad(t *testing.T, name string, loss func() float64, data []float64, grad *tensor.Tensor) {
	t.Helper()
	const tol = 1e-5
	for i, g := range grad.Data() {
		want := numGrad(loss, data, i)
		if diff := g - want; diff > tol || diff < -tol {
			t.Fatalf("%s[%d] = %g, finite difference %g", name, i, g, want)
		}
	}
}

// weightedLoss pairs a fixed random weighting of the output with the
// matching upstream gradient, so constant directions of the output (batch
// norm's intercept, for one) still get a nonzero gradient signal.
func weightedLoss(rng *rand.Rand, shape ...int) (*tensor.Tensor, func(*tensor.Tensor) float64) {
	wt := tensor.Randn(rng, shape...)
	return wt, func(y *tensor.Tensor) float64 { return y.Mul(wt).Sum() }
}

func ones(shape ...int) *tensor.Tensor {
	return tensor.Full(1, shape...)
}
