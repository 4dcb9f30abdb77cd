// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/seehuhn/mt19937"

	"github.com/spindle-ml/spindle/tensor"
)

// WeightInit selects a weight initialization scheme.
type WeightInit int

const (
	GlorotUniform WeightInit = iota
	GlorotNormal
	HeUniform
	HeNormal
)

func (w WeightInit) String() string {
	switch w {
	case GlorotUniform:
		return "glorot_uniform"
	case GlorotNormal:
		return "glorot_normal"
	case HeUniform:
		return "he_uniform"
	case HeNormal:
		return "he_normal"
	}
	panic(fmt.Sprintf("nn: unknown weight init %d", int(w)))
}

// WeightInitByName maps the names produced by WeightInit.String back to
// schemes. Used when restoring a layer from a Summary.
func WeightInitByName(name string) WeightInit {
	switch name {
	case "glorot_uniform":
		return GlorotUniform
	case "glorot_normal":
		return GlorotNormal
	case "he_uniform":
		return HeUniform
	case "he_normal":
		return HeNormal
	}
	panic(fmt.Sprintf("nn: unknown weight init %q", name))
}

// NewRand returns a seeded Mersenne Twister PRNG for weight initialization
// and sampling layers. One generator per model keeps runs reproducible.
func NewRand(seed int64) *rand.Rand {
	rng := rand.New(mt19937.New())
	rng.Seed(seed)
	return rng
}

// calcFan derives fan-in/fan-out from a weight shape. 2D weights are
// (in, out); 3D/4D convolution kernels put channels in the last two
// dimensions with the kernel taps before them.
func calcFan(shape tensor.Shape) (int, int) {
	switch len(shape) {
	case 2:
		return shape[0], shape[1]
	case 3, 4:
		kernel := 1
		for _, d := range shape[:len(shape)-2] {
			kernel *= d
		}
		in, out := shape[len(shape)-2], shape[len(shape)-1]
		return in * kernel, out * kernel
	}
	panic(fmt.Sprintf("nn: cannot derive fan from weight shape %v", shape))
}

// glorotGain compensates for the contraction of saturating activations.
func glorotGain(act *Activation) float64 {
	switch act {
	case Tanh:
		return 5.0 / 3.0
	case ReLU:
		return math.Sqrt2
	}
	return 1
}

// initWeights draws a weight tensor under the given scheme. The activation
// sets the gain for the glorot modes and is ignored by the he modes.
func initWeights(rng *rand.Rand, mode WeightInit, act *Activation, shape ...int) *tensor.Tensor {
	if rng == nil {
		panic("nn: weight initialization requires a non-nil *rand.Rand")
	}
	fanIn, fanOut := calcFan(shape)
	gain := glorotGain(act)

	w := tensor.New(shape...)
	data := w.Data()
	switch mode {
	case GlorotUniform:
		b := gain * math.Sqrt(6/float64(fanIn+fanOut))
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * b
		}
	case GlorotNormal:
		sd := gain * math.Sqrt(2/float64(fanIn+fanOut))
		for i := range data {
			data[i] = rng.NormFloat64() * sd
		}
	case HeUniform:
		b := math.Sqrt(6 / float64(fanIn))
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * b
		}
	case HeNormal:
		sd := math.Sqrt(2 / float64(fanIn))
		for i := range data {
			data[i] = rng.NormFloat64() * sd
		}
	default:
		panic(fmt.Sprintf("nn: unknown weight init %d", int(mode)))
	}
	return w
}
