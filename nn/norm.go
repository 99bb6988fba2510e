package nn

import (
	"math"

	"github.com/latentlab/videodit/tensor"
)

// LayerNorm normalizes the last axis. Weight and Bias are nil when the layer
// is elementwise-affine-free, which is the common case under AdaLN where the
// affine comes from modulation instead.
type LayerNorm struct {
	Weight *tensor.Array `weight:"weight"`
	Bias   *tensor.Array `weight:"bias"`
	Eps    float32
}

func NewLayerNorm(dim int, affine bool) *LayerNorm {
	n := &LayerNorm{Eps: 1e-6}
	if affine {
		n.Weight = tensor.Full(1, dim)
		n.Bias = tensor.Zeros(dim)
	}
	return n
}

func (n *LayerNorm) Forward(x *tensor.Array) *tensor.Array {
	mean := tensor.Mean(x, -1)
	centered := tensor.Sub(x, mean)
	variance := tensor.Mean(tensor.Square(centered), -1)
	out := tensor.Div(centered, tensor.Sqrt(tensor.AddScalar(variance, n.Eps)))
	if n.Weight != nil {
		out = tensor.Mul(out, n.Weight)
	}
	if n.Bias != nil {
		out = tensor.Add(out, n.Bias)
	}
	return out
}

// RMSNorm normalizes by root mean square without centering. Used for
// query/key normalization inside attention.
type RMSNorm struct {
	Weight *tensor.Array `weight:"weight"`
	Eps    float32
}

func NewRMSNorm(dim int) *RMSNorm {
	return &RMSNorm{Weight: tensor.Full(1, dim), Eps: 1e-6}
}

func (n *RMSNorm) Forward(x *tensor.Array) *tensor.Array {
	ms := tensor.Mean(tensor.Square(x), -1)
	out := tensor.Div(x, tensor.Sqrt(tensor.AddScalar(ms, n.Eps)))
	if n.Weight != nil {
		out = tensor.Mul(out, n.Weight)
	}
	return out
}

// SinusoidalEmbedding maps scalars to dim-wide sin/cos features, the standard
// diffusion timestep embedding. maxPeriod is conventionally 10000.
func SinusoidalEmbedding(t *tensor.Array, dim int, maxPeriod float64) *tensor.Array {
	half := dim / 2
	n := t.Size()
	out := tensor.Zeros(n, dim)
	for i := 0; i < n; i++ {
		for j := 0; j < half; j++ {
			freq := math.Exp(-math.Log(maxPeriod) * float64(j) / float64(half))
			arg := float64(t.Data()[i]) * freq
			out.Set(float32(math.Cos(arg)), i, j)
			out.Set(float32(math.Sin(arg)), i, j+half)
		}
	}
	return out
}
