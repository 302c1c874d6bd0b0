package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/convprobe/internal/parallel"
	"github.com/born-ml/convprobe/internal/tensor"
)

// Conv3DInputBackward computes the gradient with respect to the input.
//
// For every (batch n, group g):
//
//	colGrad [K, L] = W_g^T [K, C_out/groups] @ grad_ng [C_out/groups, L]
//	dL/dinput_ng   = col2vol(colGrad)
//
// Each (n, g) pair owns a disjoint block of the input gradient.
func (cpu *CPUBackend) Conv3DInputBackward(input, weight, grad *tensor.RawTensor, cfg tensor.Conv3DConfig) *tensor.RawTensor {
	geo := newConv3DGeometry("conv3d_input_backward", input, weight, cfg)
	checkConvGrad("conv3d_input_backward", grad, input.DType(), geo)

	result, err := tensor.NewRaw(input.Shape(), input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv3d_input_backward: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv3dInputBackward[float32](result, weight, grad, geo, cpu.parallel)
	case tensor.Float64:
		conv3dInputBackward[float64](result, weight, grad, geo, cpu.parallel)
	default:
		panic(fmt.Sprintf("conv3d_input_backward: unsupported dtype %s", input.DType()))
	}
	return result
}

func conv3dInputBackward[T tensor.DType](result, weight, grad *tensor.RawTensor, geo conv3dGeometry, pcfg parallel.Config) {
	w := tensor.Elements[T](weight)
	gd := tensor.Elements[T](grad)
	dst := tensor.Elements[T](result)

	parallel.ForBatch(geo.N, geo.Groups, func(n, grp int) {
		colGrad := make([]T, geo.K*geo.L)
		wFrom, wTo := geo.weightSlab(grp)
		gFrom, gTo := geo.outputSlab(n, grp)
		gemm(blas.Trans, blas.NoTrans,
			geo.CoutG, geo.K, w[wFrom:wTo],
			geo.CoutG, geo.L, gd[gFrom:gTo],
			0, geo.K, geo.L, colGrad)

		inFrom, inTo := geo.inputSlab(n, grp)
		col2vol(dst[inFrom:inTo], colGrad, geo)
	}, pcfg)
}

// Conv3DKernelBackward computes the gradient with respect to the weight.
//
// For every (batch n, group g):
//
//	dW_g [C_out/groups, K] += grad_ng [C_out/groups, L] @ col_ng^T [L, K]
//
// Workers accumulate into per-batch partial buffers which are summed over
// the batch afterwards.
func (cpu *CPUBackend) Conv3DKernelBackward(input, weight, grad *tensor.RawTensor, cfg tensor.Conv3DConfig) *tensor.RawTensor {
	geo := newConv3DGeometry("conv3d_kernel_backward", input, weight, cfg)
	checkConvGrad("conv3d_kernel_backward", grad, input.DType(), geo)

	result, err := tensor.NewRaw(weight.Shape(), weight.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv3d_kernel_backward: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv3dKernelBackward[float32](result, input, grad, geo, cpu.parallel)
	case tensor.Float64:
		conv3dKernelBackward[float64](result, input, grad, geo, cpu.parallel)
	default:
		panic(fmt.Sprintf("conv3d_kernel_backward: unsupported dtype %s", input.DType()))
	}
	return result
}

func conv3dKernelBackward[T tensor.DType](result, input, grad *tensor.RawTensor, geo conv3dGeometry, pcfg parallel.Config) {
	in := tensor.Elements[T](input)
	gd := tensor.Elements[T](grad)
	dW := tensor.Elements[T](result)

	partials := make([][]T, geo.N)
	for n := range partials {
		partials[n] = make([]T, len(dW))
	}

	parallel.ForBatch(geo.N, geo.Groups, func(n, grp int) {
		col := make([]T, geo.K*geo.L)
		inFrom, inTo := geo.inputSlab(n, grp)
		vol2col(col, in[inFrom:inTo], geo)

		gFrom, gTo := geo.outputSlab(n, grp)
		wFrom, wTo := geo.weightSlab(grp)
		gemm(blas.NoTrans, blas.Trans,
			geo.CoutG, geo.L, gd[gFrom:gTo],
			geo.K, geo.L, col,
			0, geo.CoutG, geo.K, partials[n][wFrom:wTo])
	}, pcfg)

	for _, p := range partials {
		for i, v := range p {
			dW[i] += v
		}
	}
}

// Conv3DBiasBackward computes the gradient with respect to the bias: the sum
// of grad over the batch and spatial dimensions, per output channel.
func (cpu *CPUBackend) Conv3DBiasBackward(grad *tensor.RawTensor) *tensor.RawTensor {
	shape := grad.Shape()
	if len(shape) != 5 {
		panic(fmt.Sprintf("conv3d_bias_backward: grad must be 5D [N, C_out, D, H, W], got %v", shape))
	}

	result, err := tensor.NewRaw(tensor.Shape{shape[1]}, grad.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv3d_bias_backward: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		sumChannels(tensor.Elements[float32](result), tensor.Elements[float32](grad), shape)
	case tensor.Float64:
		sumChannels(tensor.Elements[float64](result), tensor.Elements[float64](grad), shape)
	default:
		panic(fmt.Sprintf("conv3d_bias_backward: unsupported dtype %s", grad.DType()))
	}
	return result
}

func sumChannels[T tensor.DType](dst, grad []T, shape tensor.Shape) {
	n, c := shape[0], shape[1]
	spatial := shape[2] * shape[3] * shape[4]
	for b := range n {
		for ch := range c {
			base := (b*c + ch) * spatial
			var sum T
			for _, v := range grad[base : base+spatial] {
				sum += v
			}
			dst[ch] += sum
		}
	}
}

func checkConvGrad(op string, grad *tensor.RawTensor, dtype tensor.DataType, geo conv3dGeometry) {
	if !grad.Shape().Equal(geo.outputShape()) {
		panic(fmt.Sprintf("%s: grad shape %v, want %v", op, grad.Shape(), geo.outputShape()))
	}
	if grad.DType() != dtype {
		panic(fmt.Sprintf("%s: grad dtype %s, want %s", op, grad.DType(), dtype))
	}
}
