// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"testing"

	"github.com/born-ml/convprobe/backend/cpu"
	"github.com/born-ml/convprobe/tensor"
)

// TestBackendInterface verifies that cpu.Backend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = (*cpu.Backend)(nil)
}

func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float64, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	if !raw.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want (2, 3)", raw.Shape())
	}
	if raw.DType() != tensor.Float64 {
		t.Errorf("DType() = %v, want float64", raw.DType())
	}
	if raw.ByteSize() != 48 {
		t.Errorf("ByteSize() = %d, want 48", raw.ByteSize())
	}
}

func TestCreationAndCat(t *testing.T) {
	backend := cpu.New()
	a := tensor.Ones[float32](tensor.Shape{1, 2, 2}, backend)
	b := tensor.Full[float32](tensor.Shape{1, 1, 2}, 3, backend)

	c := tensor.Cat([]*tensor.Tensor[float32, *cpu.Backend]{a, b}, 1)
	if !c.Shape().Equal(tensor.Shape{1, 3, 2}) {
		t.Fatalf("Cat shape = %v, want (1, 3, 2)", c.Shape())
	}
	want := []float32{1, 1, 1, 1, 3, 3}
	for i, v := range c.Data() {
		if v != want[i] {
			t.Errorf("Cat data[%d] = %v, want %v", i, v, want[i])
		}
	}

	z := tensor.Zeros[float32](tensor.Shape{1, 3, 2}, backend).Add(c)
	if z.At(0, 2, 1) != 3 {
		t.Errorf("At(0, 2, 1) = %v, want 3", z.At(0, 2, 1))
	}
}

func TestConv3DConfigOutputShape(t *testing.T) {
	cfg := tensor.DefaultConv3DConfig()
	cfg.Groups = 2

	out, err := cfg.OutputShape(tensor.Shape{2, 2, 6, 6, 6}, tensor.Shape{2, 1, 3, 3, 3})
	if err != nil {
		t.Fatalf("OutputShape failed: %v", err)
	}
	if !out.Equal(tensor.Shape{2, 2, 4, 4, 4}) {
		t.Errorf("OutputShape = %v, want (2, 2, 4, 4, 4)", out)
	}

	cfg.Groups = 3
	if _, err := cfg.OutputShape(tensor.Shape{2, 2, 6, 6, 6}, tensor.Shape{3, 1, 3, 3, 3}); !errors.Is(err, tensor.ErrGroupsMismatch) {
		t.Errorf("OutputShape error = %v, want ErrGroupsMismatch", err)
	}
}
