// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim_test

import (
	"math"
	"testing"

	"github.com/spindle-ml/spindle/optim"
	"github.com/spindle-ml/spindle/tensor"
)

// TestSGDPlainStep verifies param - lr*grad without momentum.
func TestSGDPlainStep(t *testing.T) {
	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.1})
	p := tensor.FromSlice([]float64{1, 2, 3}, 3)
	g := tensor.FromSlice([]float64{1, -1, 0.5}, 3)
	got := sgd.Apply("w", p, g)
	want := tensor.FromSlice([]float64{0.9, 2.1, 2.95}, 3)
	if !got.AllClose(want, 1e-12) {
		t.Errorf("Apply = %v, want %v", got.Data(), want.Data())
	}
	if !p.Equal(tensor.FromSlice([]float64{1, 2, 3}, 3)) {
		t.Error("Apply modified the input parameter")
	}
}

// TestSGDMomentumAccumulates verifies velocity carries across steps.
func TestSGDMomentumAccumulates(t *testing.T) {
	sgd := optim.NewSGD(optim.SGDConfig{LR: 1, Momentum: 0.5})
	p := tensor.FromSlice([]float64{0}, 1)
	g := tensor.FromSlice([]float64{1}, 1)

	// v1 = 1, v2 = 0.5*1 + 1 = 1.5
	p1 := sgd.Apply("w", p, g)
	p2 := sgd.Apply("w", p1, g)
	if got := p1.At(0); math.Abs(got+1) > 1e-12 {
		t.Errorf("step 1 = %v, want -1", got)
	}
	if got := p2.At(0); math.Abs(got+2.5) > 1e-12 {
		t.Errorf("step 2 = %v, want -2.5", got)
	}
}

// TestSGDKeysAreIndependent verifies per-parameter velocity state.
func TestSGDKeysAreIndependent(t *testing.T) {
	sgd := optim.NewSGD(optim.SGDConfig{LR: 1, Momentum: 0.9})
	p := tensor.FromSlice([]float64{0}, 1)
	g := tensor.FromSlice([]float64{1}, 1)
	sgd.Apply("w", p, g)

	// first step for "b" must see zero velocity
	got := sgd.Apply("b", p, g)
	if v := got.At(0); math.Abs(v+1) > 1e-12 {
		t.Errorf("fresh key step = %v, want -1", v)
	}
}

// TestAdamFirstStep verifies the bias-corrected first update: for any
// nonzero gradient the first step moves each weight by ~lr against the
// gradient sign.
func TestAdamFirstStep(t *testing.T) {
	adam := optim.NewAdam(optim.AdamConfig{LR: 0.001})
	p := tensor.FromSlice([]float64{1, -1}, 2)
	g := tensor.FromSlice([]float64{100, -0.001}, 2)
	got := adam.Apply("w", p, g)

	// m_hat = grad, v_hat = grad², update = lr*grad/(|grad|+eps)
	if d := got.At(0) - (1 - 0.001); math.Abs(d) > 1e-6 {
		t.Errorf("first step for +grad = %v", got.At(0))
	}
	if d := got.At(1) - (-1 + 0.001); math.Abs(d) > 1e-6 {
		t.Errorf("first step for -grad = %v", got.At(1))
	}
}

// TestAdamConverges verifies a few hundred steps minimize a quadratic.
func TestAdamConverges(t *testing.T) {
	adam := optim.NewAdam(optim.AdamConfig{LR: 0.05})
	p := tensor.FromSlice([]float64{5, -3}, 2)
	for i := 0; i < 500; i++ {
		g := p.Scale(2) // d/dp of p²
		p = adam.Apply("w", p, g)
	}
	if math.Abs(p.At(0)) > 1e-2 || math.Abs(p.At(1)) > 1e-2 {
		t.Errorf("Adam did not converge: %v", p.Data())
	}
}

// TestSGDStateDictRoundTrip verifies momentum velocity survives an
// export/import cycle: the restored optimizer takes the same step as the
// one it was exported from.
func TestSGDStateDictRoundTrip(t *testing.T) {
	p := tensor.FromSlice([]float64{1, 2}, 2)
	g := tensor.FromSlice([]float64{0.5, -0.5}, 2)

	warm := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	p = warm.Apply("w", p, g)

	restored := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	restored.LoadStateDict(warm.StateDict())

	got := restored.Apply("w", p, g)
	want := warm.Apply("w", p, g)
	if !got.AllClose(want, 1e-12) {
		t.Errorf("restored step = %v, want %v", got.Data(), want.Data())
	}
}

// TestAdamStateDictRoundTrip verifies the moment estimates and per-parameter
// timesteps survive an export/import cycle, keeping bias correction aligned.
func TestAdamStateDictRoundTrip(t *testing.T) {
	p := tensor.FromSlice([]float64{1, -2, 3}, 3)
	g := tensor.FromSlice([]float64{0.1, 0.2, -0.3}, 3)

	warm := optim.NewAdam(optim.AdamConfig{LR: 0.01})
	for i := 0; i < 5; i++ {
		p = warm.Apply("w", p, g)
	}

	restored := optim.NewAdam(optim.AdamConfig{LR: 0.01})
	restored.LoadStateDict(warm.StateDict())

	got := restored.Apply("w", p, g)
	want := warm.Apply("w", p, g)
	if !got.AllClose(want, 1e-12) {
		t.Errorf("restored step = %v, want %v", got.Data(), want.Data())
	}

	fresh := optim.NewAdam(optim.AdamConfig{LR: 0.01})
	if fresh.Apply("w", p, g).AllClose(want, 1e-12) {
		t.Error("fresh optimizer matches a warm one; state export is empty")
	}
}

// TestConfigDefaults verifies zero-value configs pick the documented
// defaults.
func TestConfigDefaults(t *testing.T) {
	if got := optim.NewSGD(optim.SGDConfig{}).LR(); got != 0.01 {
		t.Errorf("SGD default LR = %v, want 0.01", got)
	}
	if got := optim.NewAdam(optim.AdamConfig{}).LR(); got != 0.001 {
		t.Errorf("Adam default LR = %v, want 0.001", got)
	}
}
