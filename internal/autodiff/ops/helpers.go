package ops

import (
	"fmt"

	"github.com/born-ml/convprobe/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: bias[1,2,1,1,1] + x[2,2,4,4,4] -> y[2,2,4,4,4]
//	Backward: grad_y[2,2,4,4,4] -> grad_bias[1,2,1,1,1] (sum over dims 0, 2, 3, 4)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape) *tensor.RawTensor {
	// Clone even when shapes match so that two inputs never share a gradient buffer.
	if grad.Shape().Equal(targetShape) {
		return grad.Clone()
	}

	result, err := tensor.NewRaw(targetShape, grad.DType(), grad.Device())
	if err != nil {
		panic(fmt.Sprintf("reduceBroadcast: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		sumInto(tensor.Elements[float32](result), tensor.Elements[float32](grad), grad.Shape(), targetShape)
	case tensor.Float64:
		sumInto(tensor.Elements[float64](result), tensor.Elements[float64](grad), grad.Shape(), targetShape)
	default:
		panic(fmt.Sprintf("reduceBroadcast: unsupported dtype %s", grad.DType()))
	}
	return result
}

func sumInto[T tensor.DType](dst, grad []T, gradShape, targetShape tensor.Shape) {
	for i, v := range grad {
		dst[tensor.BroadcastIndex(i, gradShape, targetShape)] += v
	}
}
