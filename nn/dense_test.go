// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/spindle-ml/spindle/nn"
	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

func TestFullyConnectedKnownValues(t *testing.T) {
	l := nn.NewFullyConnected(2, nil, nn.GlorotUniform, nil, nn.NewRand(1))
	x := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	l.Forward(x) // fix shapes

	nn.SetParams(l, nn.Summary{Params: map[string]*tensor.Tensor{
		"W": tensor.FromSlice([]float64{1, 0, 0, 1, 1, 1}, 3, 2),
		"b": tensor.FromSlice([]float64{10, 20}, 2),
	}})
	y := l.Forward(x)

	want := []float64{14, 25, 20, 31}
	for i, v := range y.Data() {
		if v != want[i] {
			t.Fatalf("y[%d] = %g, want %g", i, v, want[i])
		}
	}
}

func TestFullyConnectedLazyInit(t *testing.T) {
	l := nn.NewFullyConnected(4, nn.ReLU, nn.HeNormal, nil, nn.NewRand(2))
	if got := l.Params(); got != nil {
		t.Fatalf("Params before forward = %v, want nil", got)
	}
	l.Forward(tensor.New(3, 5))
	params := l.Params()
	if len(params) != 2 {
		t.Fatalf("got %d params, want 2", len(params))
	}
	if !params[0].Value.Shape().Equal(tensor.Shape{5, 4}) {
		t.Fatalf("W shape = %v, want (5, 4)", params[0].Value.Shape())
	}
}

func TestFullyConnectedGradients(t *testing.T) {
	rng := nn.NewRand(3)
	l := nn.NewFullyConnected(3, nn.Tanh, nn.GlorotUniform, nil, rng)
	x := tensor.Randn(rng, 4, 5)

	y := l.Forward(x)
	wt, loss := weightedLoss(rng, y.Shape()...)
	dx := l.Backward(wt)

	f := func() float64 { return loss(l.Forward(x)) }
	checkGrad(t, "dX", f, x.Data(), dx)
	for _, p := range l.Params() {
		checkGrad(t, "d"+p.Name, f, p.Value.Data(), p.Grad)
	}
}

func TestFullyConnectedGradientsAccumulate(t *testing.T) {
	rng := nn.NewRand(4)
	l := nn.NewFullyConnected(2, nil, nn.GlorotUniform, nil, rng)
	x := tensor.Randn(rng, 3, 3)

	l.Forward(x)
	l.Backward(ones(3, 2))
	first := l.Params()[0].Grad.Clone()

	l.Forward(x)
	l.Backward(ones(3, 2))
	second := l.Params()[0].Grad

	for i, v := range second.Data() {
		if got, want := v, 2*first.Data()[i]; got != want {
			t.Fatalf("accumulated dW[%d] = %g, want %g", i, got, want)
		}
	}

	l.FlushGradients()
	for i, v := range l.Params()[0].Grad.Data() {
		if v != 0 {
			t.Fatalf("dW[%d] = %g after flush, want 0", i, v)
		}
	}
}

func TestFullyConnectedUpdate(t *testing.T) {
	rng := nn.NewRand(5)
	l := nn.NewFullyConnected(2, nil, nn.GlorotUniform, optim.NewSGD(optim.SGDConfig{LR: 0.5}), rng)
	x := tensor.Randn(rng, 3, 3)

	l.Forward(x)
	l.Backward(ones(3, 2))

	w0 := l.Params()[0].Value.Clone()
	dw := l.Params()[0].Grad.Clone()
	l.Update()

	w1 := l.Params()[0].Value
	for i := range w1.Data() {
		want := w0.Data()[i] - 0.5*dw.Data()[i]
		if got := w1.Data()[i]; got != want {
			t.Fatalf("W[%d] = %g after update, want %g", i, got, want)
		}
	}
	if l.Params()[0].Grad.Sum() != 0 {
		t.Fatal("gradients not flushed after update")
	}
}

func TestFullyConnectedFreeze(t *testing.T) {
	rng := nn.NewRand(6)
	l := nn.NewFullyConnected(2, nil, nn.GlorotUniform, nil, rng)
	x := tensor.Randn(rng, 2, 2)
	l.Forward(x)
	l.Freeze()

	if l.Trainable() {
		t.Fatal("layer still trainable after Freeze")
	}
	// forward stays legal while frozen
	l.Forward(x)

	for name, fn := range map[string]func(){
		"Backward":       func() { l.Backward(ones(2, 2)) },
		"Update":         func() { l.Update() },
		"FlushGradients": func() { l.FlushGradients() },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%s did not panic on frozen layer", name)
				}
			}()
			fn()
		}()
	}

	l.Unfreeze()
	l.Forward(x)
	l.Backward(ones(2, 2)) // legal again
}

func TestFullyConnectedBackwardBeforeForward(t *testing.T) {
	l := nn.NewFullyConnected(2, nil, nn.GlorotUniform, nil, nn.NewRand(7))
	defer func() {
		if recover() == nil {
			t.Fatal("backward before forward did not panic")
		}
	}()
	l.Backward(ones(1, 2))
}
