// Package nn implements neural network modules for convprobe.
//
// This package provides the building blocks the equivalence check needs:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking
//   - Conv3D: Grouped 3-D convolution layer
//   - SplitGroups: One ungrouped Conv3D per group of a grouped layer
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"github.com/born-ml/convprobe/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//
// Type parameter T is the element type, B the backend.
type Module[T tensor.DType, B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[T, B]) *tensor.Tensor[T, B]

	// Parameters returns all trainable parameters of this module.
	Parameters() []*Parameter[T, B]
}
