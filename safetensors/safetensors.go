// Package safetensors loads model checkpoints into tensor arrays: the
// .safetensors container format, PyTorch pickle state dicts, and a
// reflection-based walker that fills a model's weight-tagged fields by name.
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/latentlab/videodit/tensor"
)

type metadata struct {
	Type    string   `json:"dtype"`
	Shape   []uint64 `json:"shape"`
	Offsets []int64  `json:"data_offsets"`
}

// File is an open .safetensors checkpoint. Tensor data is read and converted
// lazily, one tensor at a time.
type File struct {
	f       *os.File
	dataOff int64
	entries map[string]metadata
}

// Open reads the header of a .safetensors file and indexes its tensors.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var n int64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		f.Close()
		return nil, fmt.Errorf("safetensors: reading header length: %w", err)
	}

	b := bytes.NewBuffer(make([]byte, 0, n))
	if _, err := io.CopyN(b, f, n); err != nil {
		f.Close()
		return nil, fmt.Errorf("safetensors: reading header: %w", err)
	}

	var headers map[string]metadata
	if err := json.NewDecoder(b).Decode(&headers); err != nil {
		f.Close()
		return nil, fmt.Errorf("safetensors: decoding header: %w", err)
	}
	// "__metadata__" carries no tensor and has an empty dtype.
	for k, v := range headers {
		if v.Type == "" {
			delete(headers, k)
		}
	}

	return &File{f: f, dataOff: 8 + n, entries: headers}, nil
}

func (s *File) Close() error { return s.f.Close() }

// Write saves tensors to path as a float32 .safetensors file, the inverse of
// Open for F32 data.
func Write(path string, tensors Tensors) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make(map[string]metadata, len(names))
	var off int64
	for _, name := range names {
		a := tensors[name]
		shape := make([]uint64, a.Ndim())
		for i := range shape {
			shape[i] = uint64(a.Dim(i))
		}
		size := int64(len(a.Data()) * 4)
		entries[name] = metadata{Type: "F32", Shape: shape, Offsets: []int64{off, off + size}}
		off += size
	}

	header, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, int64(len(header))); err != nil {
		return err
	}
	if _, err := f.Write(header); err != nil {
		return err
	}
	for _, name := range names {
		if err := binary.Write(f, binary.LittleEndian, tensors[name].Data()); err != nil {
			return err
		}
	}
	return f.Close()
}

// Names lists the tensors in the file, sorted.
func (s *File) Names() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tensor reads one tensor by name, converting half-precision storage to
// float32.
func (s *File) Tensor(name string) (*tensor.Array, error) {
	meta, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: no tensor named %q", name)
	}
	if len(meta.Shape) == 0 {
		return nil, errors.New("safetensors: scalar and quantized tensors are unsupported")
	}

	size := meta.Offsets[1] - meta.Offsets[0]
	if _, err := s.f.Seek(s.dataOff+meta.Offsets[0], io.SeekStart); err != nil {
		return nil, err
	}

	var f32s []float32
	switch meta.Type {
	case "F32":
		f32s = make([]float32, size/4)
		if err := binary.Read(s.f, binary.LittleEndian, f32s); err != nil {
			return nil, err
		}
	case "F16":
		u16s := make([]uint16, size/2)
		if err := binary.Read(s.f, binary.LittleEndian, u16s); err != nil {
			return nil, err
		}
		f32s = make([]float32, len(u16s))
		for i := range u16s {
			f32s[i] = float16.Frombits(u16s[i]).Float32()
		}
	case "BF16":
		u8s := make([]uint8, size)
		if err := binary.Read(s.f, binary.LittleEndian, u8s); err != nil {
			return nil, err
		}
		f32s = bfloat16.DecodeFloat32(u8s)
	default:
		return nil, fmt.Errorf("safetensors: unknown data type %q for %q", meta.Type, name)
	}

	shape := make([]int, len(meta.Shape))
	for i, d := range meta.Shape {
		shape[i] = int(d)
	}
	return tensor.New(f32s, shape...), nil
}
