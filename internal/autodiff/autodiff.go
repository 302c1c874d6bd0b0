// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient tracking
// through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op (Add, Cat, Conv3D, ...) implements its backward pass
//   - Reverse-mode AD: Computes gradients using the chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//
//	x := tensor.Randn[float32](tensor.Shape{2, 2, 6, 6, 6}, backend).RequireGrad()
//	y := conv.Forward(x)
//
//	grads := autodiff.BackwardWithGrad(y, gradOutput, backend)
//	autodiff.AssignGrads(grads, x)
//	fmt.Println(x.Grad().Shape()) // (2, 2, 6, 6, 6)
package autodiff

import (
	"github.com/born-ml/convprobe/internal/autodiff/ops"
	"github.com/born-ml/convprobe/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between passes
//   - Inspecting recorded operations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.tape.Record(ops.NewAddOp(a, c, result))
	return result
}

// MulScalar multiplies by a scalar and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	result := b.inner.MulScalar(x, s)
	b.tape.Record(ops.NewMulScalarOp(x, result, s))
	return result
}

// Reshape changes tensor shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	b.tape.Record(ops.NewReshapeOp(t, result))
	return result
}

// Cat concatenates tensors and records the operation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Cat(tensors, dim)
	if b.tape.IsRecording() {
		d, _ := tensor.NormalizeDim(dim, len(result.Shape()))
		sizes := make([]int, len(tensors))
		for i, t := range tensors {
			sizes[i] = t.Shape()[d]
		}
		b.tape.Record(ops.NewCatOp(tensors, d, sizes, result))
	}
	return result
}

// Narrow slices along a dimension and records the operation.
func (b *AutodiffBackend[B]) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	result := b.inner.Narrow(x, dim, start, length)
	if b.tape.IsRecording() {
		d, _ := tensor.NormalizeDim(dim, len(x.Shape()))
		b.tape.Record(ops.NewNarrowOp(x, result, d, start))
	}
	return result
}

// Conv3D performs grouped 3-D convolution and records the operation.
// bias may be nil.
func (b *AutodiffBackend[B]) Conv3D(input, weight, bias *tensor.RawTensor, cfg tensor.Conv3DConfig) *tensor.RawTensor {
	cfg = cfg.Normalize()
	result := b.inner.Conv3D(input, weight, bias, cfg)
	b.tape.Record(ops.NewConv3DOp(input, weight, bias, result, cfg))
	return result
}

// Conv3DInputBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) Conv3DInputBackward(input, weight, grad *tensor.RawTensor, cfg tensor.Conv3DConfig) *tensor.RawTensor {
	return b.inner.Conv3DInputBackward(input, weight, grad, cfg)
}

// Conv3DKernelBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) Conv3DKernelBackward(input, weight, grad *tensor.RawTensor, cfg tensor.Conv3DConfig) *tensor.RawTensor {
	return b.inner.Conv3DKernelBackward(input, weight, grad, cfg)
}

// Conv3DBiasBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) Conv3DBiasBackward(grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Conv3DBiasBackward(grad)
}
