// Package nn provides the small set of learned layers the diffusion
// transformers are built from. Layers hold their parameters in exported
// fields tagged with weight names so checkpoint loading can fill them by
// reflection.
package nn

import (
	"github.com/latentlab/videodit/tensor"
)

// Linear is y = x W^T + b. Weight is stored [out, in], matching checkpoint
// layout.
type Linear struct {
	Weight *tensor.Array `weight:"weight"`
	Bias   *tensor.Array `weight:"bias"`
}

// NewLinear creates a linear layer with small seeded gaussian weights. Pass
// bias=false for projections that have none in the checkpoint.
func NewLinear(in, out int, bias bool, seed int64) *Linear {
	l := &Linear{
		Weight: tensor.MulScalar(tensor.RandomNormal(seed, out, in), 0.02),
	}
	if bias {
		l.Bias = tensor.Zeros(out)
	}
	return l
}

// In returns the input width.
func (l *Linear) In() int { return l.Weight.Dim(1) }

// Out returns the output width.
func (l *Linear) Out() int { return l.Weight.Dim(0) }

func (l *Linear) Forward(x *tensor.Array) *tensor.Array {
	y := tensor.MatMul(x, tensor.Transpose(l.Weight, 1, 0))
	if l.Bias != nil {
		y = tensor.Add(y, l.Bias)
	}
	return y
}

// FeedForward is the transformer MLP: expand, activate, contract.
type FeedForward struct {
	Up   *Linear `weight:"net.0.proj"`
	Down *Linear `weight:"net.2"`
}

func NewFeedForward(dim, hidden int, seed int64) *FeedForward {
	return &FeedForward{
		Up:   NewLinear(dim, hidden, true, seed),
		Down: NewLinear(hidden, dim, true, seed+1),
	}
}

func (f *FeedForward) Forward(x *tensor.Array) *tensor.Array {
	return f.Down.Forward(tensor.GELU(f.Up.Forward(x)))
}
