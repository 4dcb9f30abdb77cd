// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/spindle-ml/spindle/nn"
	"github.com/spindle-ml/spindle/tensor"
)

func TestDeconv2DOutputShape(t *testing.T) {
	cases := []struct {
		name               string
		stride             int
		pad                nn.Padding
		inRows, inCols     int
		wantRows, wantCols int
	}{
		// stride s expands in rows to s*(in-1) + kernel; the configured
		// padding cancels out of the output size
		{"unit stride no pad", 1, nn.IntPad(0), 3, 3, 5, 5},
		{"unit stride pad 2", 1, nn.IntPad(2), 4, 5, 6, 7},
		{"stride 2 no pad", 2, nn.IntPad(0), 3, 3, 7, 7},
		{"stride 2 pad 1", 2, nn.IntPad(1), 4, 4, 9, 9},
		{"stride 2 asymmetric pad", 2, nn.QuadPad(1, 0, 2, 1), 3, 3, 7, 7},
	}
	rng := nn.NewRand(30)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := nn.NewDeconv2D(2, 3, 3, tc.stride, tc.pad, nil, nn.GlorotUniform, nil, rng)
			y := l.Forward(tensor.Randn(rng, 2, tc.inRows, tc.inCols, 3))
			want := tensor.Shape{2, tc.wantRows, tc.wantCols, 2}
			if !y.Shape().Equal(want) {
				t.Fatalf("output shape = %v, want %v", y.Shape(), want)
			}
		})
	}
}

func TestDeconv2DGradients(t *testing.T) {
	cases := []struct {
		name           string
		stride         int
		pad            nn.Padding
		inRows, inCols int
	}{
		{"unit stride", 1, nn.IntPad(0), 4, 4},
		{"unit stride pad 1", 1, nn.IntPad(1), 4, 4},
		{"unit stride pad 2", 1, nn.IntPad(2), 4, 5},
		{"stride 2", 2, nn.IntPad(0), 3, 3},
		{"stride 2 pad 1", 2, nn.IntPad(1), 3, 4},
		{"stride 2 asymmetric pad", 2, nn.QuadPad(1, 0, 2, 1), 3, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rng := nn.NewRand(31)
			l := nn.NewDeconv2D(2, 3, 3, tc.stride, tc.pad, nn.Tanh, nn.GlorotUniform, nil, rng)
			x := tensor.Randn(rng, 2, tc.inRows, tc.inCols, 2)

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
