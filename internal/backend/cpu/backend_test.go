package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/convprobe/internal/tensor"
)

func rawFrom(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), values)
	return r
}

func TestAdd_Broadcast(t *testing.T) {
	backend := New()
	a := rawFrom(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := rawFrom(t, tensor.Shape{1, 3}, 10, 20, 30)

	out := backend.Add(a, b)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
}

func TestAdd_SameShape(t *testing.T) {
	backend := New()
	a := rawFrom(t, tensor.Shape{3}, 1, 2, 3)
	b := rawFrom(t, tensor.Shape{3}, 1, 1, 1)

	out := backend.Add(a, b)
	assert.Equal(t, []float32{2, 3, 4}, out.AsFloat32())
	assert.Equal(t, []float32{1, 2, 3}, a.AsFloat32(), "inputs must not be modified")
}

func TestMulScalar(t *testing.T) {
	backend := New()
	out := backend.MulScalar(rawFrom(t, tensor.Shape{2}, 2, -4), 0.5)
	assert.Equal(t, []float32{1, -2}, out.AsFloat32())
}

func TestReshape(t *testing.T) {
	backend := New()
	out := backend.Reshape(rawFrom(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6), tensor.Shape{3, 2})
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, out.AsFloat32())

	assert.Panics(t, func() { backend.Reshape(out, tensor.Shape{4}) })
}

func TestCat_Channels(t *testing.T) {
	backend := New()
	// [2, 1, 2] and [2, 2, 2] along dim 1.
	a := rawFrom(t, tensor.Shape{2, 1, 2}, 1, 2, 3, 4)
	b := rawFrom(t, tensor.Shape{2, 2, 2}, 10, 11, 12, 13, 14, 15, 16, 17)

	out := backend.Cat([]*tensor.RawTensor{a, b}, 1)
	assert.Equal(t, tensor.Shape{2, 3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 10, 11, 12, 13, 3, 4, 14, 15, 16, 17}, out.AsFloat32())
}

func TestCat_NegativeDim(t *testing.T) {
	backend := New()
	a := rawFrom(t, tensor.Shape{2, 1}, 1, 2)
	b := rawFrom(t, tensor.Shape{2, 1}, 3, 4)

	out := backend.Cat([]*tensor.RawTensor{a, b}, -1)
	assert.Equal(t, []float32{1, 3, 2, 4}, out.AsFloat32())
}

func TestCat_Mismatch(t *testing.T) {
	backend := New()
	a := rawFrom(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	b := rawFrom(t, tensor.Shape{3, 2}, 1, 2, 3, 4, 5, 6)
	assert.Panics(t, func() { backend.Cat([]*tensor.RawTensor{a, b}, 1) })
}

func TestNarrow(t *testing.T) {
	backend := New()
	x := rawFrom(t, tensor.Shape{2, 3, 2}, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	out := backend.Narrow(x, 1, 1, 2)
	assert.Equal(t, tensor.Shape{2, 2, 2}, out.Shape())
	assert.Equal(t, []float32{3, 4, 5, 6, 9, 10, 11, 12}, out.AsFloat32())

	assert.Panics(t, func() { backend.Narrow(x, 1, 2, 2) })
}

func TestNarrowCatRoundTrip(t *testing.T) {
	backend := New()
	x := rawFrom(t, tensor.Shape{2, 3, 2}, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	parts := []*tensor.RawTensor{
		backend.Narrow(x, 1, 0, 1),
		backend.Narrow(x, 1, 1, 2),
	}
	out := backend.Cat(parts, 1)
	assert.Equal(t, x.AsFloat32(), out.AsFloat32())
}

func TestTensorSplit(t *testing.T) {
	backend := New()
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, tensor.Shape{2, 2, 3}, backend)
	require.NoError(t, err)

	parts := x.Split(1, 1)
	require.Len(t, parts, 2)
	assert.Equal(t, tensor.Shape{2, 1, 3}, parts[0].Shape())
	assert.Equal(t, []float32{1, 2, 3, 7, 8, 9}, parts[0].Data())
	assert.Equal(t, []float32{4, 5, 6, 10, 11, 12}, parts[1].Data())

	whole := tensor.Cat(parts, 1)
	assert.Equal(t, x.Data(), whole.Data())

	assert.Panics(t, func() { x.Split(2, 2) })
	assert.Panics(t, func() { x.Split(0, 1) })
}
