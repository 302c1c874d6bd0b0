package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/convprobe/internal/autodiff"
	"github.com/born-ml/convprobe/internal/backend/cpu"
	"github.com/born-ml/convprobe/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func TestBackward_RequiresRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	y := x.MulScalar(2)

	assert.Panics(t, func() { autodiff.Backward(y, backend) })
}

func TestBackward_OnesSeed(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.Ones[float32](tensor.Shape{2}, backend).RequireGrad()
	y := x.MulScalar(3)

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float32{3, 3}, grads[x.Raw()].AsFloat32())
}

func TestBackwardWithGrad_ShapeMismatch(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	y := x.MulScalar(3)
	seed := tensor.Ones[float32](tensor.Shape{3}, backend)

	assert.Panics(t, func() { autodiff.BackwardWithGrad(y, seed, backend) })
}

func TestBackward_AccumulatesSharedInput(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float64{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	x.RequireGrad()

	// y = 2x + 5x
	y := x.MulScalar(2).Add(x.MulScalar(5))

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float64{7, 7}, grads[x.Raw()].AsFloat64())
}

func TestBackward_SeedsAtGivenOutput(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.Ones[float32](tensor.Shape{2}, backend).RequireGrad()
	y := x.MulScalar(3)
	_ = y.MulScalar(10) // later op unrelated to the requested output

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float32{3, 3}, grads[x.Raw()].AsFloat32())
}

func TestTape_StopRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	tape.StartRecording()
	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	_ = x.MulScalar(2)
	require.Equal(t, 1, tape.NumOps())

	tape.StopRecording()
	_ = x.MulScalar(2)
	assert.Equal(t, 1, tape.NumOps())

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
	assert.False(t, tape.IsRecording())
}

func TestBackward_DoesNotRecordGradientOps(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	a := tensor.Ones[float32](tensor.Shape{2, 1}, backend).RequireGrad()
	b := tensor.Ones[float32](tensor.Shape{2, 1}, backend).RequireGrad()
	y := tensor.Cat([]*tensor.Tensor[float32, Backend]{a, b}, 1)
	before := backend.Tape().NumOps()

	_ = autodiff.Backward(y, backend)
	assert.Equal(t, before, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())
}

func TestAssignGrads(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	tape.StartRecording()

	x := tensor.Ones[float32](tensor.Shape{2}, backend).RequireGrad()
	frozen := tensor.Ones[float32](tensor.Shape{2}, backend)
	y := x.Add(frozen).MulScalar(2)

	grads := autodiff.Backward(y, backend)
	tape.StopRecording()
	autodiff.AssignGrads(grads, x, frozen)

	require.NotNil(t, x.Grad())
	assert.Equal(t, []float32{2, 2}, x.Grad().Data())
	assert.Nil(t, frozen.Grad(), "tensors without RequireGrad get no gradient")

	// A second assignment accumulates.
	autodiff.AssignGrads(grads, x)
	assert.Equal(t, []float32{4, 4}, x.Grad().Data())
}

// TestGroupedGraph_NumericalGradient builds the split-reference graph
//
//	y = Cat(Conv3D(Narrow(x, 0:1), w0, b0), Conv3D(Narrow(x, 1:2), w1, b1)) * 0.5
//
// and checks dL/dx for L = sum(y * g) against central differences.
func TestGroupedGraph_NumericalGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	rng := rand.New(rand.NewSource(42))
	cfg := tensor.DefaultConv3DConfig()

	x := tensor.RandnWith[float64](tensor.Shape{1, 2, 4, 4, 4}, rng, backend).RequireGrad()
	w0 := tensor.RandnWith[float64](tensor.Shape{1, 1, 2, 2, 2}, rng, backend).RequireGrad()
	w1 := tensor.RandnWith[float64](tensor.Shape{1, 1, 2, 2, 2}, rng, backend).RequireGrad()
	b0 := tensor.RandnWith[float64](tensor.Shape{1}, rng, backend).RequireGrad()
	b1 := tensor.RandnWith[float64](tensor.Shape{1}, rng, backend).RequireGrad()
	g := tensor.RandnWith[float64](tensor.Shape{1, 2, 3, 3, 3}, rng, backend)

	forward := func() *tensor.Tensor[float64, Backend] {
		y0 := tensor.New[float64](backend.Conv3D(x.Narrow(1, 0, 1).Raw(), w0.Raw(), b0.Raw(), cfg), backend)
		y1 := tensor.New[float64](backend.Conv3D(x.Narrow(1, 1, 1).Raw(), w1.Raw(), b1.Raw(), cfg), backend)
		return tensor.Cat([]*tensor.Tensor[float64, Backend]{y0, y1}, 1).MulScalar(0.5)
	}

	tape.StartRecording()
	y := forward()
	grads := autodiff.BackwardWithGrad(y, g, backend)
	tape.StopRecording()
	tape.Clear()

	analytic := grads[x.Raw()].AsFloat64()
	require.Len(t, analytic, x.NumElements())

	loss := func() float64 {
		return floats.Dot(forward().Data(), g.Data())
	}

	const eps = 1e-6
	xd := x.Data()
	for i := 0; i < len(xd); i += 5 {
		orig := xd[i]
		xd[i] = orig + eps
		plus := loss()
		xd[i] = orig - eps
		minus := loss()
		xd[i] = orig

		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, analytic[i], 1e-6*math.Max(1, math.Abs(numeric)), "dL/dx[%d]", i)
	}

	assert.Equal(t, tensor.Shape{1, 1, 2, 2, 2}, grads[w0.Raw()].Shape())
	assert.Equal(t, tensor.Shape{1}, grads[b1.Raw()].Shape())
}
