package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Kernels panic on invalid input (shape or dtype mismatch) with an
// "op: message" string; callers that need errors recover at their boundary.
//
// Implementations:
//   - CPU: pure Go with gonum BLAS for the convolution GEMMs
//   - Autodiff: decorator over any Backend that records a gradient tape
type Backend interface {
	// Add performs element-wise addition with broadcasting.
	Add(a, b *RawTensor) *RawTensor

	// MulScalar multiplies every element by s.
	MulScalar(x *RawTensor, s float64) *RawTensor

	// Reshape returns a copy of t with a new shape of the same element count.
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	// Cat concatenates tensors along dim. All other dimensions must match.
	Cat(tensors []*RawTensor, dim int) *RawTensor

	// Narrow returns a copy of x restricted to [start, start+length) along dim.
	Narrow(x *RawTensor, dim, start, length int) *RawTensor

	// Conv3D performs a grouped 3-D convolution.
	//   input:  [N, C_in, D, H, W]
	//   weight: [C_out, C_in/groups, kD, kH, kW]
	//   bias:   [C_out] or nil
	//   output: [N, C_out, D_out, H_out, W_out]
	Conv3D(input, weight, bias *RawTensor, cfg Conv3DConfig) *RawTensor

	// Conv3DInputBackward returns dL/dinput given dL/doutput.
	Conv3DInputBackward(input, weight, grad *RawTensor, cfg Conv3DConfig) *RawTensor

	// Conv3DKernelBackward returns dL/dweight given dL/doutput.
	Conv3DKernelBackward(input, weight, grad *RawTensor, cfg Conv3DConfig) *RawTensor

	// Conv3DBiasBackward returns dL/dbias, the sum of grad over N, D, H, W.
	Conv3DBiasBackward(grad *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
