package nn

import (
	"github.com/born-ml/convprobe/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that require gradient computation. They represent
// the weights and biases of layers.
//
// Example:
//
//	weight := nn.NewParameter("conv3d.weight", weightTensor)
//	w := weight.Tensor()
//	grad := weight.Grad() // after backward
type Parameter[T tensor.DType, B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[T, B]
}

// NewParameter creates a new trainable parameter and marks its tensor with
// RequireGrad.
func NewParameter[T tensor.DType, B tensor.Backend](name string, t *tensor.Tensor[T, B]) *Parameter[T, B] {
	t.RequireGrad()
	return &Parameter[T, B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[T, B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[T, B]) Tensor() *tensor.Tensor[T, B] {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been assigned yet.
func (p *Parameter[T, B]) Grad() *tensor.Tensor[T, B] {
	return p.tensor.Grad()
}

// SetGrad sets the gradient tensor.
func (p *Parameter[T, B]) SetGrad(grad *tensor.Tensor[T, B]) {
	p.tensor.SetGrad(grad)
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter[T, B]) ZeroGrad() {
	p.tensor.SetGrad(nil)
}

// Tensors returns the tensors of params, in order, for use with
// autodiff.AssignGrads.
func Tensors[T tensor.DType, B tensor.Backend](params []*Parameter[T, B]) []*tensor.Tensor[T, B] {
	out := make([]*tensor.Tensor[T, B], len(params))
	for i, p := range params {
		out[i] = p.tensor
	}
	return out
}
