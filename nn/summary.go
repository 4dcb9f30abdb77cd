// Copyright 2026 Spindle ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import "github.com/spindle-ml/spindle/tensor"

// Summary is the serializable view of a layer: its name, its parameter
// tensors, and its hyperparameters. Parameter tensors are shared with the
// layer, not copied; callers that persist a Summary should clone them.
//
// Hyperparams carries plain values (ints, floats, strings produced by the
// String methods of activations, paddings and init schemes) so a Summary
// can cross an encoding boundary without referencing layer internals. Two
// entries carry training state: "frozen" holds the trainable flag and
// "optimizer" holds the optimizer's StateDict.
type Summary struct {
	Layer       string
	Params      map[string]*tensor.Tensor
	Hyperparams map[string]any
}

// SetParams copies tensors from a Summary into the layer's matching
// parameters by name. The layer must already be initialized (its shapes
// fixed by a forward call); names in the summary with no corresponding
// parameter are ignored. The "frozen" hyperparameter restores the trainable
// flag and the "optimizer" hyperparameter reloads the optimizer's
// per-parameter caches, so an Update after the restore continues exactly
// where the summarized layer stopped.
func SetParams(l Layer, s Summary) {
	for _, p := range l.Params() {
		if t, ok := s.Params[p.Name]; ok && t != nil {
			p.Value.CopyFrom(t)
		}
	}
	if state, ok := s.Hyperparams["optimizer"].(map[string]*tensor.Tensor); ok {
		l.Optimizer().LoadStateDict(state)
	}
	if frozen, ok := s.Hyperparams["frozen"].(bool); ok {
		if frozen {
			l.Freeze()
		} else {
			l.Unfreeze()
		}
	}
}

func paramMap(params []Param) map[string]*tensor.Tensor {
	m := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		m[p.Name] = p.Value
	}
	return m
}
