package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/born-ml/convprobe/internal/tensor"
)

func filled32(t *testing.T, shape tensor.Shape, scale float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	for i := range raw.AsFloat32() {
		raw.AsFloat32()[i] = float32(i+1) * scale
	}
	return raw
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.safetensors")

	weight := filled32(t, tensor.Shape{2, 1, 3, 3, 3}, 0.5)
	bias64, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	copy(bias64.AsFloat64(), []float64{-1.25, 3})

	in := map[string]*tensor.RawTensor{"weight": weight, "bias": bias64}
	meta := map[string]string{"scenario": "depth"}
	if err := WriteFile(path, in, meta); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got.Metadata["scenario"] != "depth" {
		t.Errorf("metadata = %v, want scenario=depth", got.Metadata)
	}
	if names := got.Names(); len(names) != 2 || names[0] != "bias" || names[1] != "weight" {
		t.Errorf("Names() = %v, want [bias weight]", names)
	}

	w := got.Tensors["weight"]
	if !w.Shape().Equal(weight.Shape()) || w.DType() != tensor.Float32 {
		t.Fatalf("weight = %v %s, want %v float32", w.Shape(), w.DType(), weight.Shape())
	}
	for i, v := range weight.AsFloat32() {
		if w.AsFloat32()[i] != v {
			t.Fatalf("weight[%d] = %v, want %v", i, w.AsFloat32()[i], v)
		}
	}
	b := got.Tensors["bias"]
	if b.DType() != tensor.Float64 || b.AsFloat64()[0] != -1.25 || b.AsFloat64()[1] != 3 {
		t.Errorf("bias = %v (%s), want [-1.25 3] float64", b.AsFloat64(), b.DType())
	}
}

func TestWriteWithoutMetadata(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, map[string]*tensor.RawTensor{"x": filled32(t, tensor.Shape{3}, 1)}, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte(metadataKey)) {
		t.Error("header should not carry an empty metadata entry")
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Metadata != nil {
		t.Errorf("Metadata = %v, want nil", got.Metadata)
	}
}

func encodeRaw(header string, payload []byte) *bytes.Reader {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.WriteString(header)
	buf.Write(payload)
	return bytes.NewReader(buf.Bytes())
}

func TestReadRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		payload []byte
		want    error
	}{
		{
			name:    "out of bounds",
			header:  `{"x":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`,
			payload: make([]byte, 4),
			want:    ErrBadOffsets,
		},
		{
			name:    "overlap",
			header:  `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`,
			payload: make([]byte, 12),
			want:    ErrBadOffsets,
		},
		{
			name:    "size disagrees with shape",
			header:  `{"x":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`,
			payload: make([]byte, 8),
			want:    ErrBadOffsets,
		},
		{
			name:    "huge shape without data",
			header:  `{"x":{"dtype":"F32","shape":[1099511627776],"data_offsets":[0,0]}}`,
			payload: nil,
			want:    ErrBadOffsets,
		},
		{
			name:    "element count overflows",
			header:  `{"x":{"dtype":"F32","shape":[4294967296,4294967296],"data_offsets":[0,0]}}`,
			payload: nil,
			want:    ErrBadOffsets,
		},
		{
			name:    "zero dimension",
			header:  `{"x":{"dtype":"F32","shape":[0],"data_offsets":[0,0]}}`,
			payload: nil,
			want:    ErrBadOffsets,
		},
		{
			name:    "unsupported dtype",
			header:  `{"x":{"dtype":"I64","shape":[1],"data_offsets":[0,8]}}`,
			payload: make([]byte, 8),
			want:    ErrUnsupportedDType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(encodeRaw(tt.header, tt.payload))
			if !errors.Is(err, tt.want) {
				t.Errorf("Read() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadRejectsHugeHeader(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1))
	if _, err := Read(&buf); !errors.Is(err, ErrHeaderTooLarge) {
		t.Errorf("Read() error = %v, want ErrHeaderTooLarge", err)
	}
}
