package dit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/tensor"
)

func debugUDiT(t *testing.T) *UDiT {
	t.Helper()
	cfg, err := UDiTVariantConfig("udit-debug")
	require.NoError(t, err)
	m, err := NewUDiT(cfg)
	require.NoError(t, err)
	return m
}

// The 14x18 latent patchifies to a 7x9 token grid, so the downsample between
// levels must pad both extents and the mirrored upsample must crop them back
// for the skip concatenation to align.
func TestUDiTEndToEndShapeWithOddGrid(t *testing.T) {
	m := debugUDiT(t)
	out, err := m.Forward(ForwardInput{
		Latent:   tensor.RandomNormal(1, 1, 4, 4, 14, 18),
		Timestep: tensor.New([]float32{400}, 1),
		Caption:  tensor.RandomNormal(2, 1, 5, 32),
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 4, 14, 18}, out.Shape())
	requireAllFinite(t, out)
}

func TestUDiTRejectsOddFrameCount(t *testing.T) {
	m := debugUDiT(t)
	_, err := m.Forward(ForwardInput{
		Latent:   tensor.Zeros(1, 4, 9, 8, 8),
		Timestep: tensor.Zeros(1),
		Caption:  tensor.Zeros(1, 3, 32),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "even frame count")
}

func TestUDiTWithMask(t *testing.T) {
	m := debugUDiT(t)
	keep := tensor.Full(1, 1, 2, 14, 18)
	keep.Set(0, 0, 1, 13, 17)

	out, err := m.Forward(ForwardInput{
		Latent:     tensor.RandomNormal(3, 1, 4, 2, 14, 18),
		Timestep:   tensor.New([]float32{100}, 1),
		Caption:    tensor.RandomNormal(4, 1, 4, 32),
		LatentMask: keep,
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 2, 14, 18}, out.Shape())
	requireAllFinite(t, out)
}

func TestUDiTConfigValidation(t *testing.T) {
	cfg, err := UDiTVariantConfig("udit-debug")
	require.NoError(t, err)

	even := cfg
	even.Depth = []int{2, 2}
	require.Error(t, even.Validate())

	badHead := cfg
	badHead.HeadDim = 5
	require.Error(t, badHead.Validate())

	badMLP := cfg
	badMLP.MLPRatio = 0
	require.Error(t, badMLP.Validate())

	oddPos := cfg
	oddPos.HiddenSize = 24
	oddPos.HeadDim = 8
	require.ErrorContains(t, oddPos.Validate(), "divisible by 16")

	require.NoError(t, cfg.Validate())
}

func TestUDiTVariantsListed(t *testing.T) {
	names := UDiTVariants()
	require.Contains(t, names, "udit-xl")
	require.Contains(t, names, "udit-debug")

	_, err := UDiTVariantConfig("udit-xxxl")
	require.Error(t, err)
}
