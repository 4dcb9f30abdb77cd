// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/spindle-ml/spindle/nn"
	"github.com/spindle-ml/spindle/tensor"
)

func TestRNNGradients(t *testing.T) {
	rng := nn.NewRand(70)
	l := nn.NewRNN(4, nn.Tanh, nn.GlorotUniform, nil, rng)
	x := tensor.Randn(rng, 2, 3, 5) // (examples, features, timesteps)

	y := l.Forward(x)
	wt, loss := weightedLoss(rng, y.Shape()...)
	dx := l.Backward(wt)

	grads := make(map[string]*tensor.Tensor)
	for _, p := range l.Params() {
		grads[p.Name] = p.Grad.Clone()
	}

	// each evaluation restarts the recurrence from a zero hidden state
	f := func() float64 {
		l.FlushGradients()
		return loss(l.Forward(x))
	}
	checkGrad(t, "dX", f, x.Data(), dx)
	for _, p := range l.Params() {
		checkGrad(t, "d"+p.Name, f, p.Value.Data(), grads[p.Name])
	}
}

// The wrapper is exactly the cell unrolled: driving the cell by hand over
// the same timesteps produces the same hidden states.
func TestRNNMatchesManualUnroll(t *testing.T) {
	x := tensor.Randn(nn.NewRand(71), 2, 3, 4)

	wrapped := nn.NewRNN(5, nn.Tanh, nn.GlorotUniform, nil, nn.NewRand(72))
	y := wrapped.Forward(x)

	cell := nn.NewRNNCell(5, nn.Tanh, nn.GlorotUniform, nil, nn.NewRand(72))
	for step := 0; step < 4; step++ {
		xt := tensor.New(2, 3)
		for m := 0; m < 2; m++ {
			for j := 0; j < 3; j++ {
				xt.Set(x.At(m, j, step), m, j)
			}
		}
		at := cell.Forward(xt)
		for m := 0; m < 2; m++ {
			for j := 0; j < 5; j++ {
				if y.At(m, j, step) != at.At(m, j) {
					t.Fatalf("step %d: wrapper and cell disagree at (%d, %d)", step, m, j)
				}
			}
		}
	}
}

func TestRNNCellHiddenStateChains(t *testing.T) {
	rng := nn.NewRand(73)
	cell := nn.NewRNNCell(3, nn.Tanh, nn.GlorotUniform, nil, rng)
	xt := tensor.Randn(rng, 1, 2)

	a1 := cell.Forward(xt)
	a2 := cell.Forward(xt) // same input, nonzero incoming hidden state
	if a1.Equal(a2) {
		t.Fatal("second step ignored the hidden state")
	}

	cell.FlushGradients()
	if got := cell.Forward(xt); !got.Equal(a1) {
		t.Fatal("flush did not reset the hidden state")
	}
}

func TestRNNCellBackwardExhaustionPanics(t *testing.T) {
	rng := nn.NewRand(74)
	cell := nn.NewRNNCell(3, nn.Tanh, nn.GlorotUniform, nil, rng)
	xt := tensor.Randn(rng, 1, 2)

	cell.Forward(xt)
	cell.Forward(xt)
	cell.Backward(ones(1, 3))
	cell.Backward(ones(1, 3))

	defer func() {
		if recover() == nil {
			t.Fatal("third backward did not panic after two forwards")
		}
	}()
	cell.Backward(ones(1, 3))
}

func TestRNNCellBackwardBeforeForwardPanics(t *testing.T) {
	cell := nn.NewRNNCell(3, nn.Tanh, nn.GlorotUniform, nil, nn.NewRand(75))
	defer func() {
		if recover() == nil {
			t.Fatal("backward before forward did not panic")
		}
	}()
	cell.Backward(ones(1, 3))
}

func TestRNNFreezeDelegatesToCell(t *testing.T) {
	rng := nn.NewRand(76)
	l := nn.NewRNN(3, nn.Tanh, nn.GlorotUniform, nil, rng)
	l.Freeze()
	if l.Cell().Trainable() {
		t.Fatal("freezing the wrapper did not freeze the cell")
	}

	x := tensor.Randn(rng, 1, 2, 3)
	l.Forward(x) // forward stays legal while frozen
	defer func() {
		if recover() == nil {
			t.Fatal("backward on frozen wrapper did not panic")
		}
	}()
	l.Backward(ones(1, 3, 3))
}
