package nn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/tensor"
)

func TestLinearShapes(t *testing.T) {
	l := NewLinear(8, 16, true, 1)
	x := tensor.RandomNormal(2, 3, 5, 8)
	y := l.Forward(x)
	require.Equal(t, []int{3, 5, 16}, y.Shape())
}

func TestLayerNormZeroMeanUnitVar(t *testing.T) {
	n := NewLayerNorm(16, false)
	x := tensor.RandomNormal(3, 2, 16)
	y := n.Forward(x)

	mean := tensor.Mean(y, -1)
	for _, v := range mean.Data() {
		require.InDelta(t, 0, v, 1e-4)
	}
	variance := tensor.Mean(tensor.Square(tensor.Sub(y, mean)), -1)
	for _, v := range variance.Data() {
		require.InDelta(t, 1, v, 1e-2)
	}
}

func TestRMSNormScale(t *testing.T) {
	n := NewRMSNorm(4)
	x := tensor.Full(2, 1, 4)
	y := n.Forward(x)
	for _, v := range y.Data() {
		require.InDelta(t, 1, v, 1e-4)
	}
}

func TestSinusoidalEmbeddingRange(t *testing.T) {
	ts := tensor.New([]float32{0, 500, 999}, 3)
	e := SinusoidalEmbedding(ts, 32, 10000)
	require.Equal(t, []int{3, 32}, e.Shape())
	for _, v := range e.Data() {
		require.LessOrEqual(t, v, float32(1))
		require.GreaterOrEqual(t, v, float32(-1))
	}
	// t=0 embeds as cos(0)=1 for the first half, sin(0)=0 for the second.
	require.InDelta(t, 1, e.At(0, 0), 1e-6)
	require.InDelta(t, 0, e.At(0, 16), 1e-6)
}

func TestAttentionComputesAgree(t *testing.T) {
	q := tensor.RandomNormal(10, 1, 2, 5, 4)
	k := tensor.RandomNormal(11, 1, 2, 5, 4)
	v := tensor.RandomNormal(12, 1, 2, 5, 4)
	bias := tensor.Zeros(1, 1, 5, 5)
	bias.Set(-1e4, 0, 0, 0, 4)

	blas, err := AttentionCompute("blas")
	require.NoError(t, err)
	loop, err := AttentionCompute("loop")
	require.NoError(t, err)

	a := blas.Attend(q, k, v, bias, 0.5)
	b := loop.Attend(q, k, v, bias, 0.5)
	require.True(t, tensor.AllClose(a, b, 1e-4))
}

func TestAttentionComputeUnknown(t *testing.T) {
	_, err := AttentionCompute("cuda")
	require.Error(t, err)
}
