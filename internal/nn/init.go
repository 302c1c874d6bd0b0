package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/convprobe/internal/tensor"
)

// Uniform creates a tensor with values drawn from U(-bound, bound).
// A nil rng uses the global math/rand source.
func Uniform[T tensor.DType, B tensor.Backend](shape tensor.Shape, bound float64, rng *rand.Rand, backend B) *tensor.Tensor[T, B] {
	return tensor.RandUniform[T, B](shape, -bound, bound, rng, backend)
}

// KaimingUniform is PyTorch's default initialization for convolution
// weights (kaiming_uniform_ with a = sqrt(5)), which reduces to
//
//	U(-1/sqrt(fan_in), 1/sqrt(fan_in))
//
// fanIn for a grouped Conv3D is C_in/groups * kD * kH * kW.
func KaimingUniform[T tensor.DType, B tensor.Backend](fanIn int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[T, B] {
	return Uniform[T, B](shape, FanInBound(fanIn), rng, backend)
}

// FanInBound returns 1/sqrt(fanIn), the bound PyTorch uses for both the
// weight and the bias of a convolution.
func FanInBound(fanIn int) float64 {
	if fanIn <= 0 {
		return 0
	}
	return 1 / math.Sqrt(float64(fanIn))
}
