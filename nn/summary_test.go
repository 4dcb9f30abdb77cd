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

// TestSummaryRoundTrip verifies Summary plus SetParams transfers parameters
// and optimizer state: after the restore, one identical update moves both
// layers to exactly the same values.
func TestSummaryRoundTrip(t *testing.T) {
	rng := nn.NewRand(55)
	x := tensor.Randn(rng, 4, 3)
	wt := tensor.Randn(rng, 4, 2)

	adam := func() optim.Optimizer { return optim.NewAdam(optim.AdamConfig{LR: 0.05}) }
	src := nn.NewFullyConnected(2, nn.Tanh, nn.GlorotUniform, adam(), rng)
	step := func(l *nn.FullyConnected) {
		l.Forward(x)
		l.Backward(wt)
		l.Update()
	}
	for i := 0; i < 3; i++ {
		step(src)
	}

	dst := nn.NewFullyConnected(2, nn.Tanh, nn.GlorotUniform, adam(), rng)
	dst.Forward(x)
	nn.SetParams(dst, src.Summary())

	for i, p := range dst.Params() {
		if !p.Value.AllClose(src.Params()[i].Value, 1e-12) {
			t.Fatalf("%s differs after restore", p.Name)
		}
	}

	// Without the restored Adam moments and timesteps the bias correction
	// would differ and the layers would drift apart here.
	step(src)
	step(dst)
	for i, p := range dst.Params() {
		if !p.Value.AllClose(src.Params()[i].Value, 1e-12) {
			t.Fatalf("%s diverges one update after restore", p.Name)
		}
	}
}

// TestSummaryRestoresFrozen verifies the frozen flag crosses the boundary in
// both directions.
func TestSummaryRestoresFrozen(t *testing.T) {
	rng := nn.NewRand(56)
	x := tensor.Randn(rng, 2, 4)

	src := nn.NewFullyConnected(3, nil, nn.GlorotUniform, nil, rng)
	src.Forward(x)
	src.Freeze()

	s := src.Summary()
	if frozen, ok := s.Hyperparams["frozen"].(bool); !ok || !frozen {
		t.Fatalf("summary frozen = %v, want true", s.Hyperparams["frozen"])
	}

	dst := nn.NewFullyConnected(3, nil, nn.GlorotUniform, nil, rng)
	dst.Forward(x)
	nn.SetParams(dst, s)
	if dst.Trainable() {
		t.Fatal("restored layer is trainable, want frozen")
	}

	src.Unfreeze()
	nn.SetParams(dst, src.Summary())
	if !dst.Trainable() {
		t.Fatal("restored layer is frozen, want trainable")
	}
}
