// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the Conv3D layer and its per-group split.
//
// # Basic Usage
//
//	backend := autodiff.New(cpu.New())
//	cfg := tensor.DefaultConv3DConfig()
//	cfg.Groups = 2
//	conv := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, cfg, true, rng, backend)
//
//	// One ungrouped layer per group, holding copies of the group's weights.
//	parts := nn.SplitGroups(conv)
//
// # Initialization
//
// Weight and bias are drawn from U(-1/sqrt(fan_in), 1/sqrt(fan_in)) with
// fan_in = in_channels/groups * kD * kH * kW, matching PyTorch.
package nn

import (
	"math/rand"

	"github.com/born-ml/convprobe/internal/nn"
	"github.com/born-ml/convprobe/internal/tensor"
)

// Module is implemented by every layer.
type Module[T tensor.DType, B tensor.Backend] = nn.Module[T, B]

// Parameter is a named trainable tensor.
type Parameter[T tensor.DType, B tensor.Backend] = nn.Parameter[T, B]

// Conv3D is a 3-D convolution layer with optional groups and bias.
type Conv3D[T tensor.DType, B tensor.Backend] = nn.Conv3D[T, B]

// NewConv3D creates a Conv3D with PyTorch-style uniform initialization drawn
// from rng. Panics on invalid arguments.
func NewConv3D[T tensor.DType, B tensor.Backend](
	inChannels, outChannels int,
	kernel [3]int,
	cfg tensor.Conv3DConfig,
	useBias bool,
	rng *rand.Rand,
	backend B,
) *Conv3D[T, B] {
	return nn.NewConv3D[T, B](inChannels, outChannels, kernel, cfg, useBias, rng, backend)
}

// SplitGroups returns one ungrouped Conv3D per group of conv.
func SplitGroups[T tensor.DType, B tensor.Backend](conv *Conv3D[T, B]) []*Conv3D[T, B] {
	return nn.SplitGroups(conv)
}
