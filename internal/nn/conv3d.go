package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/convprobe/internal/tensor"
)

// Conv3D is a grouped 3D convolutional layer.
//
// Performs convolution: output = Conv3D(input, weight) + bias
//
// Input shape:  [batch, in_channels, depth, height, width]
// Weight shape: [out_channels, in_channels/groups, kernel_d, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_d, out_h, out_w]
//
// Where, per spatial axis:
//
//	out = (in + 2*padding - dilation*(kernel-1) - 1) / stride + 1
//
// Output channel block g (out_channels/groups channels) sees only input
// channel block g.
//
// Example:
//
//	cfg := tensor.DefaultConv3DConfig()
//	cfg.Groups = 2
//	conv := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, cfg, true, nil, backend)
//	output := conv.Forward(input) // [2, 2, 6, 6, 6] -> [2, 2, 4, 4, 4]
type Conv3D[T tensor.DType, B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [3]int
	cfg         tensor.Conv3DConfig
	useBias     bool

	weight *Parameter[T, B] // [out_channels, in_channels/groups, kD, kH, kW]
	bias   *Parameter[T, B] // [out_channels] or nil

	backend B
}

// NewConv3D creates a new 3D convolutional layer with PyTorch's default
// initialization.
//
// Parameters:
//   - inChannels, outChannels: Channel counts, both divisible by cfg.Groups
//   - kernel: Kernel extent (depth, height, width)
//   - cfg: Stride, padding, dilation and groups; zero fields take defaults
//   - useBias: Whether to include bias term
//   - rng: Random source for initialization; nil uses the global source
//   - backend: Backend for computation
//
// Initialization:
//   - Weights and bias: U(-1/sqrt(fan_in), 1/sqrt(fan_in)),
//     fan_in = in_channels/groups * kD * kH * kW
//
// Panics on invalid arguments, as layer constructors do.
func NewConv3D[T tensor.DType, B tensor.Backend](
	inChannels, outChannels int,
	kernel [3]int,
	cfg tensor.Conv3DConfig,
	useBias bool,
	rng *rand.Rand,
	backend B,
) *Conv3D[T, B] {
	c := newConv3D[T, B](inChannels, outChannels, kernel, cfg, useBias, backend)

	fanIn := c.FanIn()
	bound := FanInBound(fanIn)
	c.weight = NewParameter("conv3d.weight", KaimingUniform[T, B](fanIn, c.WeightShape(), rng, backend))
	if useBias {
		c.bias = NewParameter("conv3d.bias", Uniform[T, B](tensor.Shape{outChannels}, bound, rng, backend))
	}
	return c
}

// newConv3D validates arguments and allocates zero parameters.
func newConv3D[T tensor.DType, B tensor.Backend](
	inChannels, outChannels int,
	kernel [3]int,
	cfg tensor.Conv3DConfig,
	useBias bool,
	backend B,
) *Conv3D[T, B] {
	cfg = cfg.Normalize()
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv3d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	for _, k := range kernel {
		if k <= 0 {
			panic(fmt.Sprintf("conv3d: invalid kernel size %v", kernel))
		}
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("conv3d: %v", err))
	}
	if inChannels%cfg.Groups != 0 || outChannels%cfg.Groups != 0 {
		panic(fmt.Sprintf("conv3d: in_channels %d and out_channels %d must be divisible by groups %d",
			inChannels, outChannels, cfg.Groups))
	}

	c := &Conv3D[T, B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernel,
		cfg:         cfg,
		useBias:     useBias,
		backend:     backend,
	}
	c.weight = NewParameter("conv3d.weight", tensor.Zeros[T, B](c.WeightShape(), backend))
	if useBias {
		c.bias = NewParameter("conv3d.bias", tensor.Zeros[T, B](tensor.Shape{outChannels}, backend))
	}
	return c
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, depth, height, width]
// Output: [batch, out_channels, out_d, out_h, out_w].
func (c *Conv3D[T, B]) Forward(input *tensor.Tensor[T, B]) *tensor.Tensor[T, B] {
	inputShape := input.Shape()
	if len(inputShape) != 5 {
		panic(fmt.Sprintf("conv3d: expected 5D input [N,C,D,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv3d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	var biasRaw *tensor.RawTensor
	if c.useBias {
		biasRaw = c.bias.Tensor().Raw()
	}

	outputRaw := c.backend.Conv3D(input.Raw(), c.weight.Tensor().Raw(), biasRaw, c.cfg)
	return tensor.New[T, B](outputRaw, c.backend)
}

// Parameters returns all trainable parameters.
func (c *Conv3D[T, B]) Parameters() []*Parameter[T, B] {
	if c.useBias {
		return []*Parameter[T, B]{c.weight, c.bias}
	}
	return []*Parameter[T, B]{c.weight}
}

// String returns a string representation of the layer.
func (c *Conv3D[T, B]) String() string {
	return fmt.Sprintf("Conv3D(in_channels=%d, out_channels=%d, kernel_size=(%d, %d, %d), stride=(%d, %d, %d), padding=(%d, %d, %d), dilation=(%d, %d, %d), groups=%d, bias=%v)",
		c.inChannels, c.outChannels,
		c.kernelSize[0], c.kernelSize[1], c.kernelSize[2],
		c.cfg.Stride[0], c.cfg.Stride[1], c.cfg.Stride[2],
		c.cfg.Padding[0], c.cfg.Padding[1], c.cfg.Padding[2],
		c.cfg.Dilation[0], c.cfg.Dilation[1], c.cfg.Dilation[2],
		c.cfg.Groups, c.useBias)
}

// Weight returns the weight parameter.
func (c *Conv3D[T, B]) Weight() *Parameter[T, B] {
	return c.weight
}

// Bias returns the bias parameter, or nil when the layer has no bias.
func (c *Conv3D[T, B]) Bias() *Parameter[T, B] {
	return c.bias
}

// InChannels returns the number of input channels.
func (c *Conv3D[T, B]) InChannels() int {
	return c.inChannels
}

// OutChannels returns the number of output channels.
func (c *Conv3D[T, B]) OutChannels() int {
	return c.outChannels
}

// KernelSize returns the kernel size [depth, height, width].
func (c *Conv3D[T, B]) KernelSize() [3]int {
	return c.kernelSize
}

// Config returns the normalized convolution hyper-parameters.
func (c *Conv3D[T, B]) Config() tensor.Conv3DConfig {
	return c.cfg
}

// Groups returns the number of groups.
func (c *Conv3D[T, B]) Groups() int {
	return c.cfg.Groups
}

// HasBias reports whether the layer has a bias term.
func (c *Conv3D[T, B]) HasBias() bool {
	return c.useBias
}

// FanIn returns in_channels/groups * kD * kH * kW.
func (c *Conv3D[T, B]) FanIn() int {
	return c.inChannels / c.cfg.Groups * c.kernelSize[0] * c.kernelSize[1] * c.kernelSize[2]
}

// WeightShape returns [out_channels, in_channels/groups, kD, kH, kW].
func (c *Conv3D[T, B]) WeightShape() tensor.Shape {
	return tensor.Shape{c.outChannels, c.inChannels / c.cfg.Groups, c.kernelSize[0], c.kernelSize[1], c.kernelSize[2]}
}

// OutputShape computes the output shape for an input shape.
func (c *Conv3D[T, B]) OutputShape(input tensor.Shape) (tensor.Shape, error) {
	return c.cfg.OutputShape(input, c.WeightShape())
}
