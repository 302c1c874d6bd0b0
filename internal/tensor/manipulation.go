package tensor

// Cat concatenates tensors along the specified dimension.
//
// All tensors must have the same shape except along the concatenation dimension.
// Supports negative dim indexing (-1 = last dimension). A single tensor still
// goes through the backend so that the result is recorded by autodiff.
//
// Example:
//
//	a := tensor.Randn[float32](Shape{2, 1, 4, 4, 4}, backend)
//	b := tensor.Randn[float32](Shape{2, 1, 4, 4, 4}, backend)
//	c := tensor.Cat([]*Tensor[float32, B]{a, b}, 1) // Shape: [2, 2, 4, 4, 4]
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	rawTensors := make([]*RawTensor, len(tensors))
	backend := tensors[0].backend
	for i, t := range tensors {
		rawTensors[i] = t.raw
	}

	result := backend.Cat(rawTensors, dim)
	return New[T, B](result, backend)
}

// Narrow returns the slice [start, start+length) along dim as a new tensor.
//
// Supports negative dim indexing. The result is a copy.
//
// Example:
//
//	x := tensor.Randn[float32](Shape{2, 2, 6, 6, 6}, backend)
//	first := x.Narrow(1, 0, 1) // Shape: [2, 1, 6, 6, 6]
func (t *Tensor[T, B]) Narrow(dim, start, length int) *Tensor[T, B] {
	result := t.backend.Narrow(t.raw, dim, start, length)
	return New[T, B](result, t.backend)
}

// Split cuts the tensor into equal parts of size along dim.
// The dimension size must be divisible by size.
func (t *Tensor[T, B]) Split(size, dim int) []*Tensor[T, B] {
	d, err := NormalizeDim(dim, len(t.Shape()))
	if err != nil {
		panic("split: " + err.Error())
	}
	extent := t.Shape()[d]
	if size <= 0 || extent%size != 0 {
		panic("split: dimension size must be divisible by split size")
	}

	parts := make([]*Tensor[T, B], 0, extent/size)
	for start := 0; start < extent; start += size {
		parts = append(parts, t.Narrow(d, start, size))
	}
	return parts
}
