// Package serialization writes and reads tensors in the SafeTensors format:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON, name -> {dtype, shape, data_offsets}, optional __metadata__]
//	[tensor data: raw little-endian bytes, tensors in name order]
package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/convprobe/internal/tensor"
)

// Limits applied when reading untrusted files.
const (
	MaxHeaderSize  = 100 * 1024 * 1024
	MaxTensorCount = 100_000
)

const metadataKey = "__metadata__"

// Errors returned by Read.
var (
	ErrHeaderTooLarge   = errors.New("header exceeds maximum size")
	ErrTooManyTensors   = errors.New("too many tensors in file")
	ErrUnsupportedDType = errors.New("unsupported dtype")
	ErrBadOffsets       = errors.New("tensor offsets out of bounds or overlapping")
)

// TensorHeader describes one tensor in the JSON header.
type TensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// File is the decoded content of a SafeTensors file.
type File struct {
	Tensors  map[string]*tensor.RawTensor
	Metadata map[string]string
}

// Names returns the tensor names in file order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteFile writes tensors to path.
func WriteFile(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	//nolint:gosec // G304: output path is chosen by the user
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(f, tensors, metadata)
}

// Write encodes tensors to w. Tensors are laid out in name order.
func Write(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, name := range names {
		raw := tensors[name]
		dt, err := dtypeName(raw.DType())
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		size := int64(raw.ByteSize())
		shape := make([]int64, len(raw.Shape()))
		for i, d := range raw.Shape() {
			shape[i] = int64(d)
		}
		header[name] = TensorHeader{DType: dt, Shape: shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		if _, err := w.Write(tensors[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

// ReadFile decodes the SafeTensors file at path.
func ReadFile(path string) (*File, error) {
	//nolint:gosec // G304: input path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Read(bytes.NewReader(data))
}

// Read decodes a SafeTensors stream into CPU tensors.
func Read(r io.Reader) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	out := &File{Tensors: make(map[string]*tensor.RawTensor, len(entries))}
	if meta, ok := entries[metadataKey]; ok {
		if err := json.Unmarshal(meta, &out.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(entries, metadataKey)
	}
	if len(entries) > MaxTensorCount {
		return nil, fmt.Errorf("%w: %d", ErrTooManyTensors, len(entries))
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	headers := make(map[string]TensorHeader, len(entries))
	for name, msg := range entries {
		var h TensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		headers[name] = h
	}
	if err := validateOffsets(headers, int64(len(payload))); err != nil {
		return nil, err
	}

	for name, h := range headers {
		raw, err := decodeTensor(h, payload)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		out.Tensors[name] = raw
	}
	return out, nil
}

func decodeTensor(h TensorHeader, payload []byte) (*tensor.RawTensor, error) {
	dt, err := parseDTypeName(h.DType)
	if err != nil {
		return nil, err
	}
	span := h.DataOffsets[1] - h.DataOffsets[0]
	if err := checkShapeSpan(h.Shape, int64(dt.Size()), span); err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, len(h.Shape))
	for i, d := range h.Shape {
		shape[i] = int(d)
	}
	raw, err := tensor.NewRaw(shape, dt, tensor.CPU)
	if err != nil {
		return nil, err
	}
	copy(raw.Data(), payload[h.DataOffsets[0]:h.DataOffsets[1]])
	return raw, nil
}

// checkShapeSpan verifies that shape holds exactly span bytes of elemSize
// elements without overflowing, before anything is allocated.
func checkShapeSpan(shape []int64, elemSize, span int64) error {
	limit := span / elemSize
	n := int64(1)
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("%w: dimension %d is %d", ErrBadOffsets, i, d)
		}
		if n > limit/d {
			return fmt.Errorf("%w: shape %v exceeds header span of %d bytes", ErrBadOffsets, shape, span)
		}
		n *= d
	}
	if n*elemSize != span {
		return fmt.Errorf("%w: shape %v needs %d bytes, header spans %d",
			ErrBadOffsets, shape, n*elemSize, span)
	}
	return nil
}

// validateOffsets rejects negative, out-of-bounds and overlapping regions.
func validateOffsets(headers map[string]TensorHeader, dataSize int64) error {
	type region struct {
		name       string
		start, end int64
	}
	regions := make([]region, 0, len(headers))
	for name, h := range headers {
		start, end := h.DataOffsets[0], h.DataOffsets[1]
		if start < 0 || end < start || end > dataSize {
			return fmt.Errorf("%w: %s spans [%d, %d) of %d", ErrBadOffsets, name, start, end, dataSize)
		}
		regions = append(regions, region{name, start, end})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })
	for i := 1; i < len(regions); i++ {
		if regions[i-1].end > regions[i].start {
			return fmt.Errorf("%w: %s and %s", ErrBadOffsets, regions[i-1].name, regions[i].name)
		}
	}
	return nil
}

func dtypeName(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

func parseDTypeName(s string) (tensor.DataType, error) {
	switch s {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, s)
	}
}
