package autodiff

import (
	"fmt"

	"github.com/born-ml/convprobe/internal/tensor"
)

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of t seeded with ones, the gradient of sum(t).
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.Ones[float32](Shape{2}, backend).RequireGrad()
//	y := x.MulScalar(3)
//	gradients := autodiff.Backward(y, backend)
//	grad := gradients[x.Raw()] // [3, 3]
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	seed := tensor.Ones[T, B](t.Shape(), backend)
	return BackwardWithGrad(t, seed, backend)
}

// BackwardWithGrad computes gradients of t seeded with grad, the
// equivalent of output.backward(grad). grad must have t's shape.
func BackwardWithGrad[T tensor.DType, B BackwardCapable](t, grad *tensor.Tensor[T, B], backend B) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()

	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if !grad.Shape().Equal(t.Shape()) {
		panic(fmt.Sprintf("backward: grad shape %v does not match output shape %v", grad.Shape(), t.Shape()))
	}

	return tape.Backward(t.Raw(), grad.Raw(), backend)
}

// AssignGrads stores the gradient computed for each tensor into its Grad(),
// adding to any gradient already present. Tensors that did not receive a
// gradient, or were not marked with RequireGrad, are left untouched.
func AssignGrads[T tensor.DType, B tensor.Backend](grads map[*tensor.RawTensor]*tensor.RawTensor, tensors ...*tensor.Tensor[T, B]) {
	for _, t := range tensors {
		if !t.RequiresGrad() {
			continue
		}
		g, ok := grads[t.Raw()]
		if !ok {
			continue
		}
		if existing := t.Grad(); existing != nil {
			t.SetGrad(tensor.New[T, B](t.Backend().Add(existing.Raw(), g), t.Backend()))
			continue
		}
		t.SetGrad(tensor.New[T, B](g.Clone(), t.Backend()))
	}
}
