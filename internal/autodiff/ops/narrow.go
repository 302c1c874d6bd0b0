package ops

import (
	"fmt"

	"github.com/born-ml/convprobe/internal/tensor"
)

// NarrowOp represents output = input[..., start:start+length, ...] along dim.
//
// Backward: the gradient is placed back at [start, start+length) of a zero
// tensor shaped like the input, built as Cat(zeros, grad, zeros).
type NarrowOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
	start  int
}

// NewNarrowOp creates a new NarrowOp. dim must already be normalized.
func NewNarrowOp(input, output *tensor.RawTensor, dim, start int) *NarrowOp {
	return &NarrowOp{
		input:  input,
		output: output,
		dim:    dim,
		start:  start,
	}
}

// Backward zero-pads the gradient back to the input shape.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	full := op.input.Shape()[op.dim]
	length := outputGrad.Shape()[op.dim]
	after := full - op.start - length

	parts := make([]*tensor.RawTensor, 0, 3)
	if op.start > 0 {
		parts = append(parts, zerosAlong(outputGrad, op.dim, op.start, backend))
	}
	parts = append(parts, outputGrad)
	if after > 0 {
		parts = append(parts, zerosAlong(outputGrad, op.dim, after, backend))
	}

	if len(parts) == 1 {
		return []*tensor.RawTensor{outputGrad.Clone()}
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

func zerosAlong(like *tensor.RawTensor, dim, size int, backend tensor.Backend) *tensor.RawTensor {
	shape := like.Shape().Clone()
	shape[dim] = size
	z, err := tensor.NewRaw(shape, like.DType(), backend.Device())
	if err != nil {
		panic(fmt.Sprintf("narrow backward: %v", err))
	}
	return z
}

// Inputs returns [input].
func (op *NarrowOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the narrowed tensor.
func (op *NarrowOp) Output() *tensor.RawTensor {
	return op.output
}
