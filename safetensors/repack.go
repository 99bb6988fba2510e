package safetensors

import (
	"fmt"
	"strings"

	ptensor "github.com/pdevine/tensor"

	"github.com/latentlab/videodit/tensor"
)

// FusedQKV adapts checkpoints that store each attention's query, key, and
// value projections as one fused tensor. A missing per-projection name falls
// back to splitting the fused "qkv" neighbor on its output dimension.
type FusedQKV struct {
	Src Source
}

func (s FusedQKV) Tensor(name string) (*tensor.Array, error) {
	a, err := s.Src.Tensor(name)
	if err == nil {
		return a, nil
	}
	for i, proj := range []string{".to_q.", ".to_k.", ".to_v."} {
		idx := strings.LastIndex(name, proj)
		if idx < 0 {
			continue
		}
		fused, fusedErr := s.Src.Tensor(name[:idx] + ".qkv." + name[idx+len(proj):])
		if fusedErr != nil {
			return nil, err
		}
		parts, splitErr := SplitDim(fused, 0, 3)
		if splitErr != nil {
			return nil, splitErr
		}
		return parts[i], nil
	}
	return nil, err
}

// ColumnMajor adapts checkpoints whose projection weights are stored
// [in, out]; every rank-2 ".weight" tensor is transposed to the [out, in]
// orientation the modules expect. Tables and rank-1 norms pass through.
type ColumnMajor struct {
	Src Source
}

func (s ColumnMajor) Tensor(name string) (*tensor.Array, error) {
	a, err := s.Src.Tensor(name)
	if err != nil {
		return nil, err
	}
	if a.Ndim() == 2 && strings.HasSuffix(name, ".weight") {
		return TransposeDims(a, 1, 0)
	}
	return a, nil
}

// SplitDim slices a fused weight into count equal parts along dim. Diffusion
// checkpoints often fuse query/key/value projections into one tensor; the
// per-layer modules here want them separate.
func SplitDim(a *tensor.Array, dim, count int) ([]*tensor.Array, error) {
	shape := a.Shape()
	if dim < 0 || dim >= len(shape) {
		return nil, fmt.Errorf("safetensors: split dim %d out of range for shape %v", dim, shape)
	}
	if shape[dim]%count != 0 {
		return nil, fmt.Errorf("safetensors: extent %d not divisible into %d parts", shape[dim], count)
	}
	step := shape[dim] / count

	out := make([]*tensor.Array, 0, count)
	for i := 0; i < count; i++ {
		backing := make([]float32, a.Size())
		copy(backing, a.Data())
		tt := ptensor.New(ptensor.WithShape(shape...), ptensor.WithBacking(backing))

		slice := make([]ptensor.Slice, len(shape))
		slice[dim] = ptensor.S(i*step, (i+1)*step)
		view, err := tt.Slice(slice...)
		if err != nil {
			return nil, err
		}
		part := ptensor.Materialize(view)

		partShape := append([]int(nil), shape...)
		partShape[dim] = step
		data, ok := part.Data().([]float32)
		if !ok {
			return nil, fmt.Errorf("safetensors: unexpected backing type %T", part.Data())
		}
		cp := make([]float32, len(data))
		copy(cp, data)
		out = append(out, tensor.New(cp, partShape...))
	}
	return out, nil
}

// TransposeDims permutes a weight's axes, for checkpoints that store a
// projection in the opposite orientation.
func TransposeDims(a *tensor.Array, perm ...int) (*tensor.Array, error) {
	backing := make([]float32, a.Size())
	copy(backing, a.Data())
	tt := ptensor.New(ptensor.WithShape(a.Shape()...), ptensor.WithBacking(backing))
	if err := tt.T(perm...); err != nil {
		return nil, err
	}
	materialized := ptensor.Materialize(tt)

	data, ok := materialized.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("safetensors: unexpected backing type %T", materialized.Data())
	}
	cp := make([]float32, len(data))
	copy(cp, data)
	return tensor.New(cp, materialized.Shape()...), nil
}
