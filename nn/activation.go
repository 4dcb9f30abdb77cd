// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"
	"math"

	"github.com/spindle-ml/spindle/tensor"
)

// Activation is an elementwise nonlinearity with its derivative. Fn and Grad
// both take the pre-activation; layers multiply Grad into the upstream
// gradient during backward.
type Activation struct {
	name string
	fn   func(float64) float64
	grad func(float64) float64
}

// Fn applies the nonlinearity elementwise.
func (a *Activation) Fn(x *tensor.Tensor) *tensor.Tensor { return x.Apply(a.fn) }

// Grad applies the derivative elementwise.
func (a *Activation) Grad(x *tensor.Tensor) *tensor.Tensor { return x.Apply(a.grad) }

func (a *Activation) String() string { return a.name }

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

var (
	// Identity is f(x) = x. Layers accept nil as shorthand for Identity.
	Identity = &Activation{
		name: "Identity",
		fn:   func(x float64) float64 { return x },
		grad: func(float64) float64 { return 1 },
	}

	Sigmoid = &Activation{
		name: "Sigmoid",
		fn:   sigmoid,
		grad: func(x float64) float64 { s := sigmoid(x); return s * (1 - s) },
	}

	Tanh = &Activation{
		name: "Tanh",
		fn:   math.Tanh,
		grad: func(x float64) float64 { t := math.Tanh(x); return 1 - t*t },
	}

	ReLU = &Activation{
		name: "ReLU",
		fn: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return 0
		},
		grad: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	}
)

// ActivationByName maps the names produced by Activation.String back to
// activations. Used when restoring a layer from a Summary.
func ActivationByName(name string) *Activation {
	switch name {
	case "Identity", "":
		return Identity
	case "Sigmoid":
		return Sigmoid
	case "Tanh":
		return Tanh
	case "ReLU":
		return ReLU
	}
	panic(fmt.Sprintf("nn: unknown activation %q", name))
}

func orIdentity(a *Activation) *Activation {
	if a == nil {
		return Identity
	}
	return a
}
