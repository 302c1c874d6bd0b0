package nn

import (
	"fmt"

	"github.com/born-ml/convprobe/internal/tensor"
)

// SplitGroups returns one ungrouped Conv3D per group of conv. Module g has
// in_channels/groups inputs, out_channels/groups outputs, the same kernel,
// stride, padding and dilation, and independent copies of conv's weight and
// bias slices for group g.
//
// Running module g on input channels [g*in/groups, (g+1)*in/groups) yields
// output channels [g*out/groups, (g+1)*out/groups) of conv.
func SplitGroups[T tensor.DType, B tensor.Backend](conv *Conv3D[T, B]) []*Conv3D[T, B] {
	groups := conv.Groups()
	cfg := conv.Config()
	cfg.Groups = 1

	parts := make([]*Conv3D[T, B], groups)
	for g := range groups {
		part := newConv3D[T, B](conv.inChannels/groups, conv.outChannels/groups, conv.kernelSize, cfg, conv.useBias, conv.backend)
		if err := part.CopyGroupFrom(conv, g); err != nil {
			// Shapes come from conv itself, so this cannot fail.
			panic(err)
		}
		parts[g] = part
	}
	return parts
}

// CopyGroupFrom loads group g of src into c. c must be ungrouped, with
// src.in/groups inputs, src.out/groups outputs, src's kernel size and a bias
// exactly when src has one. The copied data does not alias src.
func (c *Conv3D[T, B]) CopyGroupFrom(src *Conv3D[T, B], g int) error {
	groups := src.Groups()
	switch {
	case g < 0 || g >= groups:
		return fmt.Errorf("conv3d: group %d out of range [0, %d)", g, groups)
	case c.Groups() != 1:
		return fmt.Errorf("conv3d: destination must have 1 group, has %d", c.Groups())
	case c.inChannels != src.inChannels/groups || c.outChannels != src.outChannels/groups:
		return fmt.Errorf("conv3d: destination channels in=%d out=%d, want in=%d out=%d",
			c.inChannels, c.outChannels, src.inChannels/groups, src.outChannels/groups)
	case c.kernelSize != src.kernelSize:
		return fmt.Errorf("conv3d: kernel size %v, want %v", c.kernelSize, src.kernelSize)
	case c.useBias != src.useBias:
		return fmt.Errorf("conv3d: bias mismatch (destination %v, source %v)", c.useBias, src.useBias)
	}

	coutG := src.outChannels / groups
	rows := c.weight.Tensor().NumElements()
	copy(c.weight.Tensor().Data(), src.weight.Tensor().Data()[g*rows:(g+1)*rows])
	if c.useBias {
		copy(c.bias.Tensor().Data(), src.bias.Tensor().Data()[g*coutG:(g+1)*coutG])
	}
	return nil
}
