// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// The backend implements:
//   - Conv3D forward and backward via vol2col and gonum BLAS GEMM
//   - Grouped convolution, one GEMM per (batch, group)
//   - Float32 and Float64 support
//   - NumPy-compatible broadcasting for Add
//   - Cat and Narrow along any dimension
//
// # Basic Usage
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 2, 6, 6, 6}, backend)
//	conv := nn.NewConv3D[float32](2, 2, [3]int{3, 3, 3}, cfg, true, rng, backend)
//	y := conv.Forward(x)
//
// # Thread Safety
//
// Kernels fan out over (batch, group) pairs with a bounded errgroup. The
// backend holds no mutable state and is safe for concurrent use.
package cpu

import (
	internalcpu "github.com/born-ml/convprobe/internal/backend/cpu"
	"github.com/born-ml/convprobe/internal/parallel"
	"github.com/born-ml/convprobe/tensor"
)

// Backend is the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend using every core.
func New() *Backend {
	return internalcpu.New()
}

// NewWithWorkers creates a CPU backend that runs at most workers kernels
// at once. workers <= 1 runs sequentially.
func NewWithWorkers(workers int) *Backend {
	cfg := parallel.DefaultConfig()
	cfg.MinChunkSize = 1
	cfg.NumWorkers = max(workers, 1)
	cfg.Enabled = workers > 1
	return internalcpu.NewWithConfig(cfg)
}
