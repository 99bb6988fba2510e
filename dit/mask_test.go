package dit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/tensor"
)

func requireFinite(t *testing.T, a *tensor.Array) {
	t.Helper()
	for _, v := range a.Data() {
		require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "mask bias must stay finite")
	}
}

func TestMaskAllOnesGivesZeroBias(t *testing.T) {
	m, err := NewTokenMask(tensor.Full(1, 1, 4, 8, 8), 4, 8, 8, 1, 2, 2)
	require.NoError(t, err)
	bias := m.Bias()
	require.Equal(t, []int{1, 1, 1, 4 * 4 * 4}, bias.Shape())
	for _, v := range bias.Data() {
		require.Equal(t, float32(0), v)
	}
}

func TestMaskAllZerosGivesLargeNegativeBias(t *testing.T) {
	m, err := NewTokenMask(tensor.Zeros(1, 4, 8, 8), 4, 8, 8, 1, 2, 2)
	require.NoError(t, err)
	bias := m.Bias()
	for _, v := range bias.Data() {
		require.Equal(t, float32(maskDiscard), v)
	}
	requireFinite(t, bias)
}

func TestMaskPoolingStaysFinite(t *testing.T) {
	keep := tensor.Full(1, 1, 2, 14, 18)
	keep.Set(0, 0, 1, 13, 17)
	m, err := NewTokenMask(keep, 2, 14, 18, 1, 2, 2)
	require.NoError(t, err)
	require.Equal(t, Grid{T: 2, H: 7, W: 9}, m.Grid())
	requireFinite(t, m.Bias())

	// Odd 7x9 grid forces padding before the halving pool.
	pooled := m.Pool(1, 1)
	require.Equal(t, Grid{T: 2, H: 4, W: 5}, pooled.Grid())
	requireFinite(t, pooled.Bias())
}

func TestMaskPoolingKeepsAnyKeptVoxel(t *testing.T) {
	keep := tensor.Zeros(1, 2, 4, 4)
	keep.Set(1, 0, 0, 0, 0)
	m, err := NewTokenMask(keep, 2, 4, 4, 2, 2, 2)
	require.NoError(t, err)
	bias := m.Bias()
	require.Equal(t, float32(0), bias.At(0, 0, 0, 0))
	require.Equal(t, float32(maskDiscard), bias.At(0, 0, 0, 1))
}

func TestMaskBiasConventionRoundTrip(t *testing.T) {
	// Pre-converted rank-2 bias over 2x4x4 voxels.
	bias := tensor.Zeros(1, 2*4*4)
	for i := 16; i < 32; i++ {
		bias.Data()[i] = maskDiscard
	}
	m, err := NewTokenMask(bias, 2, 4, 4, 1, 2, 2)
	require.NoError(t, err)
	out := m.Bias()
	require.Equal(t, float32(0), out.At(0, 0, 0, 0))
	require.Equal(t, float32(maskDiscard), out.At(0, 0, 0, 4))
}

func TestMaskRejectsUnknownRank(t *testing.T) {
	_, err := NewTokenMask(tensor.Zeros(1, 2, 4), 2, 4, 4, 1, 2, 2)
	require.Error(t, err)
}

func TestMaskOddFramePadding(t *testing.T) {
	keep := tensor.Full(1, 1, 5, 2, 2)
	m, err := NewTokenMask(keep, 5, 2, 2, 2, 1, 1)
	require.NoError(t, err)
	require.Equal(t, Grid{T: 3, H: 2, W: 2}, m.Grid())
	for _, v := range m.Bias().Data() {
		require.Equal(t, float32(0), v)
	}
}

func TestTextBiasConventions(t *testing.T) {
	keep := tensor.New([]float32{1, 1, 0}, 1, 3)
	b, err := TextBias(keep)
	require.NoError(t, err)
	require.Equal(t, float32(0), b.At(0, 0, 0, 0))
	require.Equal(t, float32(maskDiscard), b.At(0, 0, 0, 2))

	pre := tensor.New([]float32{0, maskDiscard, 0}, 1, 3)
	b, err = TextBias(pre)
	require.NoError(t, err)
	require.Equal(t, float32(0), b.At(0, 0, 0, 0))
	require.Equal(t, float32(maskDiscard), b.At(0, 0, 0, 1))
	require.Equal(t, float32(0), b.At(0, 0, 0, 2))

	_, err = TextBias(tensor.Zeros(1, 3, 1))
	require.Error(t, err)
}
