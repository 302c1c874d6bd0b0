// Package cpu implements the CPU backend with gonum BLAS for convolution GEMMs.
package cpu

import (
	"fmt"

	"github.com/born-ml/convprobe/internal/parallel"
	"github.com/born-ml/convprobe/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// New creates a new CPU backend that fans convolution work out over all
// available cores.
func New() *CPUBackend {
	cfg := parallel.DefaultConfig()
	// Each (batch, group) work item is a full GEMM, so never batch them.
	cfg.MinChunkSize = 1
	return NewWithConfig(cfg)
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("add: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("add: %v", err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("add: failed to create result tensor: %v", err))
	}

	switch a.DType() {
	case tensor.Float32:
		addTyped(tensor.Elements[float32](result), a, b, outShape, needsBroadcast)
	case tensor.Float64:
		addTyped(tensor.Elements[float64](result), a, b, outShape, needsBroadcast)
	default:
		panic(fmt.Sprintf("add: unsupported dtype %s", a.DType()))
	}

	return result
}

func addTyped[T tensor.DType](out []T, a, b *tensor.RawTensor, outShape tensor.Shape, needsBroadcast bool) {
	ad, bd := tensor.Elements[T](a), tensor.Elements[T](b)
	if !needsBroadcast {
		for i := range out {
			out[i] = ad[i] + bd[i]
		}
		return
	}
	for i := range out {
		out[i] = ad[tensor.BroadcastIndex(i, outShape, a.Shape())] +
			bd[tensor.BroadcastIndex(i, outShape, b.Shape())]
	}
}

// MulScalar multiplies every element of x by s.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float64) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("mulscalar: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		scaleTyped(tensor.Elements[float32](result), tensor.Elements[float32](x), float32(s))
	case tensor.Float64:
		scaleTyped(tensor.Elements[float64](result), tensor.Elements[float64](x), s)
	default:
		panic(fmt.Sprintf("mulscalar: unsupported dtype %s", x.DType()))
	}
	return result
}

func scaleTyped[T tensor.DType](out, in []T, s T) {
	for i, v := range in {
		out[i] = v * s
	}
}

// Reshape returns a copy of t with a new shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result, err := t.WithShape(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}
