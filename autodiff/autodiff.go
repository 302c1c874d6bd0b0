// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// Backend wraps any tensor.Backend and records the operations it runs on a
// GradientTape while recording is on. Backward walks the tape in reverse.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y := conv.Forward(x)
//	grads := autodiff.BackwardWithGrad(y, gradOut, backend)
//	backend.Tape().StopRecording()
//	autodiff.AssignGrads(grads, x)
package autodiff

import (
	"github.com/born-ml/convprobe/internal/autodiff"
	"github.com/born-ml/convprobe/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New wraps backend with gradient recording.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable is implemented by backends that own a tape.
type BackwardCapable = autodiff.BackwardCapable

// Backward computes gradients of t seeded with ones.
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}

// BackwardWithGrad computes gradients of t seeded with grad, which must have
// t's shape.
func BackwardWithGrad[T tensor.DType, B BackwardCapable](t, grad *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.BackwardWithGrad(t, grad, backend)
}

// AssignGrads accumulates gradients from grads into the given tensors that
// require grad.
func AssignGrads[T tensor.DType, B tensor.Backend](grads map[*tensor.RawTensor]*tensor.RawTensor, tensors ...*tensor.Tensor[T, B]) {
	autodiff.AssignGrads(grads, tensors...)
}
