package ops

import "github.com/born-ml/convprobe/internal/tensor"

// CatOp represents a concatenation operation along a dimension.
//
// Forward: output = Cat([input1, input2, ...], dim)
//
// Backward:
//
//	Split gradOutput along dim at input boundaries and distribute to each input.
//	Each input receives the gradient slice corresponding to its contribution.
//
// Example:
//
//	inputs: [2,1,4,4,4] and [2,1,4,4,4] along dim=1
//	output: [2,2,4,4,4]
//	gradInput1: gradOutput[:, 0:1]
//	gradInput2: gradOutput[:, 1:2]
type CatOp struct {
	inputs []*tensor.RawTensor
	dim    int
	sizes  []int
	output *tensor.RawTensor
}

// NewCatOp creates a new cat operation. dim must already be normalized.
func NewCatOp(inputs []*tensor.RawTensor, dim int, sizes []int, output *tensor.RawTensor) *CatOp {
	return &CatOp{
		inputs: inputs,
		dim:    dim,
		sizes:  sizes,
		output: output,
	}
}

// Inputs returns the input tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *CatOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward narrows gradOutput back into one slice per input.
func (op *CatOp) Backward(gradOutput *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, size := range op.sizes {
		grads[i] = backend.Narrow(gradOutput, op.dim, offset, size)
		offset += size
	}
	return grads
}
