package ops

import "github.com/born-ml/convprobe/internal/tensor"

// Conv3DOp records a grouped 3D convolution for autodiff.
//
// Forward: output = Conv3D(input, weight, bias, cfg)
//
// Backward (gradients):
//   - d_input:  transposed convolution of d_output with the weight, per group
//   - d_weight: correlation of the input with d_output, per group
//   - d_bias:   sum of d_output over N, D, H, W
type Conv3DOp struct {
	input  *tensor.RawTensor
	weight *tensor.RawTensor
	bias   *tensor.RawTensor // nil when the convolution has no bias
	output *tensor.RawTensor
	cfg    tensor.Conv3DConfig
}

// NewConv3DOp creates a new Conv3D operation. bias may be nil.
func NewConv3DOp(input, weight, bias, output *tensor.RawTensor, cfg tensor.Conv3DConfig) *Conv3DOp {
	return &Conv3DOp{
		input:  input,
		weight: weight,
		bias:   bias,
		output: output,
		cfg:    cfg,
	}
}

// Inputs returns [input, weight] or [input, weight, bias].
func (op *Conv3DOp) Inputs() []*tensor.RawTensor {
	if op.bias == nil {
		return []*tensor.RawTensor{op.input, op.weight}
	}
	return []*tensor.RawTensor{op.input, op.weight, op.bias}
}

// Output returns the output tensor.
func (op *Conv3DOp) Output() *tensor.RawTensor {
	return op.output
}

// Config returns the convolution hyper-parameters.
func (op *Conv3DOp) Config() tensor.Conv3DConfig {
	return op.cfg
}

// Backward computes gradients for Conv3D.
//
// This is pure orchestration - delegates computation to backend.
//
// Given:
//   - outputGrad: ∂L/∂output [N, C_out, D_out, H_out, W_out]
//
// Compute:
//   - inputGrad:  ∂L/∂input  [N, C_in, D, H, W]
//   - weightGrad: ∂L/∂weight [C_out, C_in/groups, kD, kH, kW]
//   - biasGrad:   ∂L/∂bias   [C_out] (only when bias is present)
func (op *Conv3DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv3DInputBackward(op.input, op.weight, outputGrad, op.cfg)
	weightGrad := backend.Conv3DKernelBackward(op.input, op.weight, outputGrad, op.cfg)

	if op.bias == nil {
		return []*tensor.RawTensor{inputGrad, weightGrad}
	}
	return []*tensor.RawTensor{inputGrad, weightGrad, backend.Conv3DBiasBackward(outputGrad)}
}
