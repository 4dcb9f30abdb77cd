// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/spindle-ml/spindle/nn"
	"github.com/spindle-ml/spindle/tensor"
)

func TestAddForwardBackward(t *testing.T) {
	rng := nn.NewRand(60)
	l := nn.NewAdd(nn.Tanh, nil)
	xs := []*tensor.Tensor{
		tensor.Randn(rng, 2, 3),
		tensor.Randn(rng, 2, 3),
		tensor.Randn(rng, 2, 3),
	}

	y := l.Forward(xs)
	wt, loss := weightedLoss(rng, y.Shape()...)
	grads := l.Backward(wt)
	if len(grads) != 3 {
		t.Fatalf("got %d input gradients, want 3", len(grads))
	}

	for i, x := range xs {
		f := func() float64 { return loss(l.Forward(xs)) }
		checkGrad(t, "dX", f, x.Data(), grads[i])
	}
}

func TestMultiplyForwardBackward(t *testing.T) {
	rng := nn.NewRand(61)
	l := nn.NewMultiply(nn.Sigmoid, nil)
	xs := []*tensor.Tensor{
		tensor.Randn(rng, 2, 3),
		tensor.Randn(rng, 2, 3),
		tensor.Randn(rng, 2, 3),
	}

	y := l.Forward(xs)
	wt, loss := weightedLoss(rng, y.Shape()...)
	grads := l.Backward(wt)

	for i, x := range xs {
		f := func() float64 { return loss(l.Forward(xs)) }
		checkGrad(t, "dX", f, x.Data(), grads[i])
	}
}

func TestMultiplyKnownValues(t *testing.T) {
	l := nn.NewMultiply(nil, nil)
	xs := []*tensor.Tensor{
		tensor.FromSlice([]float64{2, 3}, 1, 2),
		tensor.FromSlice([]float64{5, 7}, 1, 2),
	}
	y := l.Forward(xs)
	if y.At(0, 0) != 10 || y.At(0, 1) != 21 {
		t.Fatalf("y = %v, want [10 21]", y.Data())
	}

	grads := l.Backward(ones(1, 2))
	// d(x0*x1)/dx0 = x1 and vice versa
	if grads[0].At(0, 0) != 5 || grads[0].At(0, 1) != 7 {
		t.Fatalf("grads[0] = %v, want [5 7]", grads[0].Data())
	}
	if grads[1].At(0, 0) != 2 || grads[1].At(0, 1) != 3 {
		t.Fatalf("grads[1] = %v, want [2 3]", grads[1].Data())
	}
}

func TestAddEmptyInputPanics(t *testing.T) {
	l := nn.NewAdd(nil, nil)
	defer func() {
		if recover() == nil {
			t.Fatal("empty input did not panic")
		}
	}()
	l.Forward(nil)
}

func TestFlattenRoundTrip(t *testing.T) {
	cases := []struct {
		keep nn.KeepDim
		want tensor.Shape
	}{
		{nn.KeepFirst, tensor.Shape{2, 24}},
		{nn.KeepLast, tensor.Shape{12, 4}},
		{nn.KeepNone, tensor.Shape{1, 48}},
	}
	rng := nn.NewRand(62)
	x := tensor.Randn(rng, 2, 2, 3, 4)
	for _, tc := range cases {
		l := nn.NewFlatten(tc.keep, nil)
		y := l.Forward(x)
		if !y.Shape().Equal(tc.want) {
			t.Fatalf("keep %v: shape = %v, want %v", tc.keep, y.Shape(), tc.want)
		}

		dx := l.Backward(ones(tc.want...))
		if !dx.Shape().Equal(x.Shape()) {
			t.Fatalf("keep %v: dx shape = %v, want %v", tc.keep, dx.Shape(), x.Shape())
		}
	}
}

func TestFlattenPreservesOrder(t *testing.T) {
	l := nn.NewFlatten(nn.KeepFirst, nil)
	x := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 1, 2, 3)
	y := l.Forward(x)
	for i, v := range y.Data() {
		if v != float64(i+1) {
			t.Fatalf("flatten reordered data: %v", y.Data())
		}
	}
}
