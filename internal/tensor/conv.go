package tensor

import (
	"errors"
	"fmt"
)

// Errors returned by Conv3DConfig validation.
var (
	ErrGroupsMismatch  = errors.New("channels not divisible by groups")
	ErrKernelChannels  = errors.New("kernel input channels do not match input channels / groups")
	ErrEmptyOutput     = errors.New("convolution output extent is not positive")
	ErrBadConvArgument = errors.New("invalid convolution argument")
)

// Conv3DConfig holds the hyper-parameters of a 3-D convolution. Each [3]int
// is ordered depth, height, width.
type Conv3DConfig struct {
	Stride   [3]int
	Padding  [3]int
	Dilation [3]int
	Groups   int
}

// DefaultConv3DConfig returns stride 1, no padding, dilation 1, one group.
func DefaultConv3DConfig() Conv3DConfig {
	return Conv3DConfig{
		Stride:   [3]int{1, 1, 1},
		Dilation: [3]int{1, 1, 1},
		Groups:   1,
	}
}

// Normalize fills zero-valued fields with their defaults.
func (c Conv3DConfig) Normalize() Conv3DConfig {
	for i := range 3 {
		if c.Stride[i] == 0 {
			c.Stride[i] = 1
		}
		if c.Dilation[i] == 0 {
			c.Dilation[i] = 1
		}
	}
	if c.Groups == 0 {
		c.Groups = 1
	}
	return c
}

// Validate checks the scalar hyper-parameters. Shape compatibility is
// checked by OutputShape.
func (c Conv3DConfig) Validate() error {
	for i := range 3 {
		if c.Stride[i] <= 0 {
			return fmt.Errorf("%w: stride %v must be positive", ErrBadConvArgument, c.Stride)
		}
		if c.Dilation[i] <= 0 {
			return fmt.Errorf("%w: dilation %v must be positive", ErrBadConvArgument, c.Dilation)
		}
		if c.Padding[i] < 0 {
			return fmt.Errorf("%w: padding %v must be non-negative", ErrBadConvArgument, c.Padding)
		}
	}
	if c.Groups <= 0 {
		return fmt.Errorf("%w: groups %d must be positive", ErrBadConvArgument, c.Groups)
	}
	return nil
}

// OutputShape computes [N, C_out, D_out, H_out, W_out] for the given input
// [N, C_in, D, H, W] and weight [C_out, C_in/groups, kD, kH, kW]:
//
//	out = (in + 2*pad - dil*(k-1) - 1) / stride + 1
func (c Conv3DConfig) OutputShape(input, weight Shape) (Shape, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if len(input) != 5 {
		return nil, fmt.Errorf("%w: input must be 5D [N, C, D, H, W], got %v", ErrBadConvArgument, input)
	}
	if len(weight) != 5 {
		return nil, fmt.Errorf("%w: weight must be 5D [C_out, C_in/groups, kD, kH, kW], got %v", ErrBadConvArgument, weight)
	}

	cIn, cOut := input[1], weight[0]
	if cIn%c.Groups != 0 {
		return nil, fmt.Errorf("%w: in_channels %d, groups %d", ErrGroupsMismatch, cIn, c.Groups)
	}
	if cOut%c.Groups != 0 {
		return nil, fmt.Errorf("%w: out_channels %d, groups %d", ErrGroupsMismatch, cOut, c.Groups)
	}
	if weight[1] != cIn/c.Groups {
		return nil, fmt.Errorf("%w: weight has %d, want %d", ErrKernelChannels, weight[1], cIn/c.Groups)
	}

	out := Shape{input[0], cOut, 0, 0, 0}
	for i := range 3 {
		in, k := input[2+i], weight[2+i]
		extent := (in+2*c.Padding[i]-c.Dilation[i]*(k-1)-1)/c.Stride[i] + 1
		if in+2*c.Padding[i]-c.Dilation[i]*(k-1)-1 < 0 || extent <= 0 {
			return nil, fmt.Errorf("%w: input %v, kernel %v", ErrEmptyOutput, input[2:], weight[2:])
		}
		out[2+i] = extent
	}
	return out, nil
}

// GroupChannels returns the per-group input and output channel counts.
func (c Conv3DConfig) GroupChannels(inChannels, outChannels int) (cinG, coutG int) {
	return inChannels / c.Groups, outChannels / c.Groups
}
