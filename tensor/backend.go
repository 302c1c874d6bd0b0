// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/convprobe/internal/tensor"

// Backend defines the kernels a compute backend implements.
//
// Implementations:
//   - backend/cpu: pure Go, vol2col + gonum GEMM convolutions
//
// Decorator backends:
//   - autodiff: records operations for reverse-mode differentiation
type Backend = tensor.Backend

// Conv3DConfig holds stride, padding, dilation (D, H, W) and groups.
type Conv3DConfig = tensor.Conv3DConfig

// DefaultConv3DConfig returns stride 1, padding 0, dilation 1, groups 1.
func DefaultConv3DConfig() Conv3DConfig {
	return tensor.DefaultConv3DConfig()
}

// Convolution argument errors returned by Conv3DConfig.OutputShape.
var (
	ErrGroupsMismatch  = tensor.ErrGroupsMismatch
	ErrKernelChannels  = tensor.ErrKernelChannels
	ErrEmptyOutput     = tensor.ErrEmptyOutput
	ErrBadConvArgument = tensor.ErrBadConvArgument
)
