package cpu

import (
	"fmt"

	"github.com/born-ml/convprobe/internal/tensor"
)

// Cat concatenates tensors along dim. All other dimensions must match.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	first := tensors[0]
	ndim := len(first.Shape())
	d, err := tensor.NormalizeDim(dim, ndim)
	if err != nil {
		panic(fmt.Sprintf("cat: %v", err))
	}

	outShape := first.Shape().Clone()
	outShape[d] = 0
	for i, t := range tensors {
		if t.DType() != first.DType() {
			panic(fmt.Sprintf("cat: tensor %d has dtype %s, want %s", i, t.DType(), first.DType()))
		}
		if len(t.Shape()) != ndim {
			panic(fmt.Sprintf("cat: tensor %d has %d dims, want %d", i, len(t.Shape()), ndim))
		}
		for j := range ndim {
			if j != d && t.Shape()[j] != first.Shape()[j] {
				panic(fmt.Sprintf("cat: shape mismatch at dim %d: %v vs %v", j, t.Shape(), first.Shape()))
			}
		}
		outShape[d] += t.Shape()[d]
	}

	result, err := tensor.NewRaw(outShape, first.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cat: %v", err))
	}

	outer, inner := splitAt(outShape, d, first.DType().Size())
	dst := result.Data()
	pos := 0
	for o := range outer {
		for _, t := range tensors {
			chunk := t.Shape()[d] * inner
			copy(dst[pos:pos+chunk], t.Data()[o*chunk:(o+1)*chunk])
			pos += chunk
		}
	}
	return result
}

// Narrow returns a copy of x restricted to [start, start+length) along dim.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	d, err := tensor.NormalizeDim(dim, len(shape))
	if err != nil {
		panic(fmt.Sprintf("narrow: %v", err))
	}
	if start < 0 || length <= 0 || start+length > shape[d] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dim %d of size %d", start, start+length, d, shape[d]))
	}

	outShape := shape.Clone()
	outShape[d] = length
	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("narrow: %v", err))
	}

	outer, inner := splitAt(shape, d, x.DType().Size())
	src, dst := x.Data(), result.Data()
	srcChunk, dstChunk := shape[d]*inner, length*inner
	for o := range outer {
		from := o*srcChunk + start*inner
		copy(dst[o*dstChunk:(o+1)*dstChunk], src[from:from+dstChunk])
	}
	return result
}

// splitAt returns the number of outer slabs before dim and the byte size of
// one step along dim.
func splitAt(shape tensor.Shape, dim, elemSize int) (outer, inner int) {
	outer = 1
	for _, s := range shape[:dim] {
		outer *= s
	}
	inner = elemSize
	for _, s := range shape[dim+1:] {
		inner *= s
	}
	return outer, inner
}
