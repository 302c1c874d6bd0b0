// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/convprobe/autodiff"
	"github.com/born-ml/convprobe/backend/cpu"
	"github.com/born-ml/convprobe/nn"
	"github.com/born-ml/convprobe/tensor"
)

func ExampleSplitGroups() {
	backend := autodiff.New(cpu.NewWithWorkers(1))
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // G404: example data

	cfg := tensor.DefaultConv3DConfig()
	cfg.Groups = 2
	conv := nn.NewConv3D[float64](4, 2, [3]int{3, 3, 3}, cfg, true, rng, backend)
	x := tensor.RandnWith[float64](tensor.Shape{1, 4, 5, 5, 5}, rng, backend)

	grouped := conv.Forward(x)

	parts := nn.SplitGroups(conv)
	outs := make([]*tensor.Tensor[float64, *autodiff.Backend[*cpu.Backend]], len(parts))
	for g, part := range parts {
		outs[g] = part.Forward(x.Narrow(1, 2*g, 2))
	}
	split := tensor.Cat(outs, 1)

	maxDiff := 0.0
	for i, v := range grouped.Data() {
		maxDiff = math.Max(maxDiff, math.Abs(v-split.Data()[i]))
	}

	fmt.Println(conv)
	fmt.Println(parts[0])
	fmt.Println(grouped.Shape(), split.Shape(), maxDiff < 1e-12)
	// Output:
	// Conv3D(in_channels=4, out_channels=2, kernel_size=(3, 3, 3), stride=(1, 1, 1), padding=(0, 0, 0), dilation=(1, 1, 1), groups=2, bias=true)
	// Conv3D(in_channels=2, out_channels=1, kernel_size=(3, 3, 3), stride=(1, 1, 1), padding=(0, 0, 0), dilation=(1, 1, 1), groups=1, bias=true)
	// (1, 2, 3, 3, 3) (1, 2, 3, 3, 3) true
}

func ExampleNewConv3D() {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // G404: example data

	cfg := tensor.DefaultConv3DConfig()
	cfg.Stride = [3]int{2, 2, 2}
	cfg.Padding = [3]int{1, 1, 1}
	conv := nn.NewConv3D[float32](3, 8, [3]int{3, 3, 3}, cfg, false, rng, backend)

	out, err := conv.OutputShape(tensor.Shape{2, 3, 8, 8, 8})
	fmt.Println(out, err, len(conv.Parameters()))
	// Output: (2, 8, 4, 4, 4) <nil> 1
}
