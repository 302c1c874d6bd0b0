// Package check runs the grouped 3-D convolution equivalence check: a
// grouped Conv3D is compared, forward and backward, against one ungrouped
// Conv3D per group whose outputs are concatenated along channels.
package check

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/convprobe/internal/tensor"
)

// Errors returned by Run.
var (
	ErrInvalidConfig     = errors.New("invalid check configuration")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrShapeMismatch     = errors.New("grouped and reference shapes differ")
	ErrBackendFailure    = errors.New("backend failure")
)

// MaxElements bounds the element count of every tensor a run allocates.
const MaxElements = 1 << 30

// Config describes one equivalence run.
type Config struct {
	Batch       int
	InChannels  int
	OutChannels int
	Groups      int
	Kernel      [3]int
	Volume      [3]int // input depth, height, width
	Stride      [3]int
	Padding     [3]int
	Dilation    [3]int
	Bias        bool

	DType  tensor.DataType
	Device tensor.Device

	// Seed drives input, weight and output-gradient sampling. Zero draws a
	// fresh seed, which is recorded in the report.
	Seed int64

	// InputScale multiplies the N(0, 1) input and output-gradient samples.
	InputScale float64

	// Elements match when |grouped - reference| <= AbsTol + RelTol*|reference|.
	AbsTol float64
	RelTol float64

	// Workers bounds the CPU backend fan-out. Zero uses every core.
	Workers int
}

// DefaultConfig returns the reference scenario: input (2, 2, 6, 6, 6),
// a 2 -> 2 channel convolution with 2 groups and kernel 3, with bias.
func DefaultConfig() Config {
	return Config{
		Batch:       2,
		InChannels:  2,
		OutChannels: 2,
		Groups:      2,
		Kernel:      [3]int{3, 3, 3},
		Volume:      [3]int{6, 6, 6},
		Stride:      [3]int{1, 1, 1},
		Dilation:    [3]int{1, 1, 1},
		Bias:        true,
		DType:       tensor.Float32,
		Device:      tensor.CPU,
		InputScale:  0.5,
		AbsTol:      1e-5,
		RelTol:      1e-5,
	}
}

// ConvConfig returns the convolution hyper-parameters of c.
func (c Config) ConvConfig() tensor.Conv3DConfig {
	return tensor.Conv3DConfig{
		Stride:   c.Stride,
		Padding:  c.Padding,
		Dilation: c.Dilation,
		Groups:   c.Groups,
	}.Normalize()
}

// InputShape returns [batch, in_channels, D, H, W].
func (c Config) InputShape() tensor.Shape {
	return tensor.Shape{c.Batch, c.InChannels, c.Volume[0], c.Volume[1], c.Volume[2]}
}

// WeightShape returns [out_channels, in_channels/groups, kD, kH, kW].
func (c Config) WeightShape() tensor.Shape {
	return tensor.Shape{c.OutChannels, c.InChannels / max(c.Groups, 1), c.Kernel[0], c.Kernel[1], c.Kernel[2]}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Batch <= 0 || c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("%w: batch %d, in_channels %d and out_channels %d must be positive",
			ErrInvalidConfig, c.Batch, c.InChannels, c.OutChannels)
	}
	if c.Groups <= 0 {
		return fmt.Errorf("%w: groups %d must be positive", ErrInvalidConfig, c.Groups)
	}
	for i := range 3 {
		if c.Kernel[i] <= 0 {
			return fmt.Errorf("%w: kernel %v must be positive", ErrInvalidConfig, c.Kernel)
		}
		if c.Volume[i] <= 0 {
			return fmt.Errorf("%w: volume %v must be positive", ErrInvalidConfig, c.Volume)
		}
	}
	if !(c.InputScale > 0) || math.IsInf(c.InputScale, 1) {
		return fmt.Errorf("%w: input scale %v must be positive and finite", ErrInvalidConfig, c.InputScale)
	}
	if c.AbsTol < 0 || c.RelTol < 0 {
		return fmt.Errorf("%w: tolerances must be non-negative", ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d must be non-negative", ErrInvalidConfig, c.Workers)
	}
	if c.DType != tensor.Float32 && c.DType != tensor.Float64 {
		return fmt.Errorf("%w: unsupported dtype %s", ErrInvalidConfig, c.DType)
	}
	if err := checkElements("input", c.InputShape()); err != nil {
		return err
	}
	if err := checkElements("weight", c.WeightShape()); err != nil {
		return err
	}
	out, err := c.ConvConfig().OutputShape(c.InputShape(), c.WeightShape())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return checkElements("output", out)
}

// checkElements rejects shapes holding more than MaxElements elements,
// without overflowing on the way.
func checkElements(name string, shape tensor.Shape) error {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			continue
		}
		if n > MaxElements/d {
			return fmt.Errorf("%w: %s shape %v exceeds %d elements", ErrInvalidConfig, name, shape, MaxElements)
		}
		n *= d
	}
	return nil
}
