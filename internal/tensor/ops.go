package tensor

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones[float32](Shape{1, 2, 1, 1, 1}, backend)
//	b := tensor.Ones[float32](Shape{2, 2, 4, 4, 4}, backend)
//	c := a.Add(b) // Shape: [2, 2, 4, 4, 4] (broadcasted)
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Add(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// MulScalar multiplies every element by s.
//
// Example:
//
//	x := tensor.Randn[float32](Shape{2, 2, 6, 6, 6}, backend).MulScalar(0.5)
func (t *Tensor[T, B]) MulScalar(s float64) *Tensor[T, B] {
	result := t.backend.MulScalar(t.raw, s)
	return New[T, B](result, t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
//
// Example:
//
//	b := bias.Reshape(1, 2, 1, 1, 1)
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	result := t.backend.Reshape(t.raw, Shape(newShape))
	return New[T, B](result, t.backend)
}
