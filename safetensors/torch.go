package safetensors

import (
	"fmt"
	"log/slog"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/latentlab/videodit/tensor"
)

// LoadTorch unpickles a PyTorch .pt/.pth state dict into tensor arrays keyed
// by parameter name. Only float storages are supported; the diffusion
// checkpoints this loads carry no quantized data.
func LoadTorch(path string) (map[string]*tensor.Array, error) {
	m, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: unpickling %s: %w", path, err)
	}

	dict, ok := m.(*types.Dict)
	if !ok {
		return nil, fmt.Errorf("safetensors: %s is not a state dict, got %T", path, m)
	}

	out := make(map[string]*tensor.Array, dict.Len())
	for _, k := range dict.Keys() {
		name, ok := k.(string)
		if !ok {
			continue
		}
		v, _ := dict.Get(k)
		t, ok := v.(*pytorch.Tensor)
		if !ok {
			slog.Debug("skipping non-tensor state dict entry", "key", name)
			continue
		}

		var f32s []float32
		switch s := t.Source.(type) {
		case *pytorch.FloatStorage:
			f32s = s.Data
		case *pytorch.HalfStorage:
			f32s = s.Data
		case *pytorch.BFloat16Storage:
			f32s = s.Data
		default:
			return nil, fmt.Errorf("safetensors: %q has unsupported storage %T", name, s)
		}

		shape := make([]int, len(t.Size))
		n := 1
		for i, d := range t.Size {
			shape[i] = d
			n *= d
		}
		if len(f32s) < t.StorageOffset+n {
			return nil, fmt.Errorf("safetensors: %q storage too short for shape %v", name, t.Size)
		}
		data := make([]float32, n)
		copy(data, f32s[t.StorageOffset:t.StorageOffset+n])
		out[name] = tensor.New(data, shape...)
	}
	return out, nil
}
