package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/convprobe/internal/autodiff"
	"github.com/born-ml/convprobe/internal/backend/cpu"
	"github.com/born-ml/convprobe/internal/nn"
	"github.com/born-ml/convprobe/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func groupedConfig(groups int) tensor.Conv3DConfig {
	cfg := tensor.DefaultConv3DConfig()
	cfg.Groups = groups
	return cfg
}

func TestConv3D_Shapes(t *testing.T) {
	backend := cpu.New()
	conv := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, groupedConfig(2), true, rand.New(rand.NewSource(1)), backend)

	assert.Equal(t, tensor.Shape{2, 1, 3, 3, 3}, conv.Weight().Tensor().Shape())
	require.NotNil(t, conv.Bias())
	assert.Equal(t, tensor.Shape{2}, conv.Bias().Tensor().Shape())
	assert.Len(t, conv.Parameters(), 2)
	assert.Equal(t, 27, conv.FanIn())

	input := tensor.Randn[float32](tensor.Shape{2, 2, 6, 6, 6}, backend)
	output := conv.Forward(input)
	assert.Equal(t, tensor.Shape{2, 2, 4, 4, 4}, output.Shape())

	shape, err := conv.OutputShape(input.Shape())
	require.NoError(t, err)
	assert.Equal(t, output.Shape(), shape)
}

func TestConv3D_NoBias(t *testing.T) {
	conv := nn.NewConv3D[float64](4, 2, [3]int{1, 2, 3}, tensor.Conv3DConfig{}, false, nil, cpu.New())
	assert.Nil(t, conv.Bias())
	assert.Len(t, conv.Parameters(), 1)
	assert.False(t, conv.HasBias())
	assert.Equal(t, 1, conv.Groups())
}

func TestConv3D_InitBounds(t *testing.T) {
	conv := nn.NewConv3D[float64](4, 8, [3]int{3, 3, 3}, groupedConfig(2), true, rand.New(rand.NewSource(2)), cpu.New())
	bound := 1 / math.Sqrt(float64(2*27))

	for _, p := range conv.Parameters() {
		data := p.Tensor().Data()
		assert.LessOrEqual(t, floats.Max(data), bound, p.Name())
		assert.GreaterOrEqual(t, floats.Min(data), -bound, p.Name())
		assert.True(t, p.Tensor().RequiresGrad(), p.Name())
	}
}

func TestConv3D_SeededInitIsReproducible(t *testing.T) {
	a := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, groupedConfig(2), true, rand.New(rand.NewSource(9)), cpu.New())
	b := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, groupedConfig(2), true, rand.New(rand.NewSource(9)), cpu.New())
	assert.Equal(t, a.Weight().Tensor().Data(), b.Weight().Tensor().Data())
	assert.Equal(t, a.Bias().Tensor().Data(), b.Bias().Tensor().Data())
}

func TestConv3D_String(t *testing.T) {
	conv := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, groupedConfig(2), true, nil, cpu.New())
	assert.Equal(t,
		"Conv3D(in_channels=2, out_channels=2, kernel_size=(3, 3, 3), stride=(1, 1, 1), padding=(0, 0, 0), dilation=(1, 1, 1), groups=2, bias=true)",
		conv.String())
}

func TestConv3D_InvalidArguments(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() {
		nn.NewConv3D[float32](3, 2, [3]int{3, 3, 3}, groupedConfig(2), true, nil, backend)
	}, "in_channels not divisible by groups")
	assert.Panics(t, func() {
		nn.NewConv3D[float32](2, 2, [3]int{0, 3, 3}, groupedConfig(1), true, nil, backend)
	}, "zero kernel")
	assert.Panics(t, func() {
		nn.NewConv3D[float32](0, 2, [3]int{3, 3, 3}, groupedConfig(1), true, nil, backend)
	}, "zero channels")

	conv := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, groupedConfig(2), true, nil, backend)
	assert.Panics(t, func() {
		conv.Forward(tensor.Zeros[float32](tensor.Shape{1, 3, 6, 6, 6}, backend))
	}, "wrong input channels")
}

func TestSplitGroups_CopiesSlices(t *testing.T) {
	conv := nn.NewConv3D[float32](4, 6, [3]int{2, 2, 2}, groupedConfig(2), true, rand.New(rand.NewSource(3)), cpu.New())
	parts := nn.SplitGroups(conv)
	require.Len(t, parts, 2)

	w := conv.Weight().Tensor().Data()
	b := conv.Bias().Tensor().Data()
	for g, part := range parts {
		assert.Equal(t, 1, part.Groups())
		assert.Equal(t, 2, part.InChannels())
		assert.Equal(t, 3, part.OutChannels())
		assert.Equal(t, tensor.Shape{3, 2, 2, 2, 2}, part.Weight().Tensor().Shape())

		n := part.Weight().Tensor().NumElements()
		assert.Equal(t, w[g*n:(g+1)*n], part.Weight().Tensor().Data())
		assert.Equal(t, b[g*3:(g+1)*3], part.Bias().Tensor().Data())
	}

	// Copies must not alias the grouped module.
	parts[0].Weight().Tensor().Data()[0] = 100
	assert.NotEqual(t, float32(100), w[0])
}

func TestSplitGroups_ForwardEquivalence(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(4))
	cfg := tensor.Conv3DConfig{Stride: [3]int{1, 2, 1}, Padding: [3]int{1, 1, 0}, Groups: 3}

	conv := nn.NewConv3D[float64](6, 3, [3]int{3, 3, 2}, cfg, true, rng, backend)
	input := tensor.RandnWith[float64](tensor.Shape{2, 6, 5, 6, 4}, rng, backend)
	grouped := conv.Forward(input)

	parts := nn.SplitGroups(conv)
	outs := make([]*tensor.Tensor[float64, *cpu.CPUBackend], len(parts))
	for g, part := range parts {
		outs[g] = part.Forward(input.Narrow(1, g*2, 2))
	}
	reference := tensor.Cat(outs, 1)

	require.Equal(t, grouped.Shape(), reference.Shape())
	assert.True(t, floats.EqualApprox(grouped.Data(), reference.Data(), 1e-12))
}

func TestCopyGroupFrom_Errors(t *testing.T) {
	backend := cpu.New()
	src := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, groupedConfig(2), true, nil, backend)

	good := nn.NewConv3D[float32](1, 1, [3]int{3, 3, 3}, groupedConfig(1), true, nil, backend)
	require.NoError(t, good.CopyGroupFrom(src, 1))
	assert.Error(t, good.CopyGroupFrom(src, 2), "group out of range")

	noBias := nn.NewConv3D[float32](1, 1, [3]int{3, 3, 3}, groupedConfig(1), false, nil, backend)
	assert.Error(t, noBias.CopyGroupFrom(src, 0))

	wrongKernel := nn.NewConv3D[float32](1, 1, [3]int{2, 3, 3}, groupedConfig(1), true, nil, backend)
	assert.Error(t, wrongKernel.CopyGroupFrom(src, 0))

	wrongChannels := nn.NewConv3D[float32](2, 1, [3]int{3, 3, 3}, groupedConfig(1), true, nil, backend)
	assert.Error(t, wrongChannels.CopyGroupFrom(src, 0))
}

func TestConv3D_AutodiffParameterGrads(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	rng := rand.New(rand.NewSource(5))

	conv := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, groupedConfig(2), true, rng, backend)
	input := tensor.RandnWith[float32](tensor.Shape{2, 2, 6, 6, 6}, rng, backend).RequireGrad()

	tape.StartRecording()
	output := conv.Forward(input)
	grads := autodiff.Backward(output, backend)
	tape.StopRecording()

	autodiff.AssignGrads(grads, append(nn.Tensors(conv.Parameters()), input)...)

	require.NotNil(t, input.Grad())
	assert.Equal(t, input.Shape(), input.Grad().Shape())
	require.NotNil(t, conv.Weight().Grad())
	assert.Equal(t, conv.Weight().Tensor().Shape(), conv.Weight().Grad().Shape())

	// With a ones seed, dL/dbias is the number of output positions per channel.
	assert.Equal(t, []float32{128, 128}, conv.Bias().Grad().Data())

	conv.Bias().ZeroGrad()
	assert.Nil(t, conv.Bias().Grad())
}

var _ nn.Module[float32, Backend] = (*nn.Conv3D[float32, Backend])(nil)
