// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/spindle-ml/spindle/nn"
	"github.com/spindle-ml/spindle/tensor"
)

func TestConv2DOutputShape(t *testing.T) {
	cases := []struct {
		name               string
		stride, dilation   int
		pad                nn.Padding
		inRows, inCols     int
		wantRows, wantCols int
	}{
		{"unit stride no pad", 1, 0, nn.IntPad(0), 5, 5, 3, 3},
		{"unit stride same", 1, 0, nn.SamePad(), 5, 7, 5, 7},
		{"stride 2", 2, 0, nn.IntPad(1), 6, 6, 3, 3},
		{"dilated", 1, 1, nn.IntPad(0), 7, 7, 3, 3},
	}
	rng := nn.NewRand(10)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := nn.NewConv2D(4, 3, 3, tc.stride, tc.dilation, tc.pad, nil, nn.GlorotUniform, nil, rng)
			y := l.Forward(tensor.Randn(rng, 2, tc.inRows, tc.inCols, 3))
			want := tensor.Shape{2, tc.wantRows, tc.wantCols, 4}
			if !y.Shape().Equal(want) {
				t.Fatalf("output shape = %v, want %v", y.Shape(), want)
			}
		})
	}
}

func TestConv2DGradients(t *testing.T) {
	cases := []struct {
		name             string
		stride, dilation int
		pad              nn.Padding
		inRows, inCols   int
	}{
		{"unit stride", 1, 0, nn.IntPad(1), 5, 5},
		{"stride 2", 2, 0, nn.IntPad(1), 6, 6},
		{"dilated", 1, 1, nn.IntPad(2), 7, 7},
		{"same pad", 1, 0, nn.SamePad(), 4, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rng := nn.NewRand(11)
			l := nn.NewConv2D(2, 3, 3, tc.stride, tc.dilation, tc.pad, nn.Tanh, nn.GlorotUniform, nil, rng)
			x := tensor.Randn(rng, 2, tc.inRows, tc.inCols, 3)

			y := l.Forward(x)
			wt, loss := weightedLoss(rng, y.Shape()...)
			dx := l.Backward(wt)

			f := func() float64 { return loss(l.Forward(x)) }
			checkGrad(t, "dX", f, x.Data(), dx)
			for _, p := range l.Params() {
				checkGrad(t, "d"+p.Name, f, p.Value.Data(), p.Grad)
			}
		})
	}
}

func TestConv2DChannelMismatch(t *testing.T) {
	rng := nn.NewRand(12)
	l := nn.NewConv2D(2, 3, 3, 1, 0, nn.IntPad(0), nil, nn.GlorotUniform, nil, rng)
	l.Forward(tensor.Randn(rng, 1, 5, 5, 3))
	defer func() {
		if recover() == nil {
			t.Fatal("channel mismatch did not panic")
		}
	}()
	l.Forward(tensor.Randn(rng, 1, 5, 5, 4))
}

func TestConv2DInvalidConfig(t *testing.T) {
	rng := nn.NewRand(13)
	for name, fn := range map[string]func(){
		"zero out channels": func() { nn.NewConv2D(0, 3, 3, 1, 0, nn.IntPad(0), nil, nn.GlorotUniform, nil, rng) },
		"zero stride":       func() { nn.NewConv2D(1, 3, 3, 0, 0, nn.IntPad(0), nil, nn.GlorotUniform, nil, rng) },
		"negative dilation": func() { nn.NewConv2D(1, 3, 3, 1, -1, nn.IntPad(0), nil, nn.GlorotUniform, nil, rng) },
		"causal pad in 2d": func() {
			l := nn.NewConv2D(1, 3, 3, 1, 0, nn.CausalPad(), nil, nn.GlorotUniform, nil, rng)
			l.Forward(tensor.Randn(rng, 1, 5, 5, 1))
		},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%s did not panic", name)
				}
			}()
			fn()
		}()
	}
}
