package vae

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/tensor"
)

func TestLookup(t *testing.T) {
	cfg, err := Lookup("debug-2x2")
	require.NoError(t, err)
	require.Equal(t, 2, cfg.TemporalStride)
	require.Equal(t, 4, cfg.Channels)

	_, err = Lookup("nope")
	require.Error(t, err)

	require.Contains(t, IDs(), "wf-8x8x4")
}

func TestPoolingRoundTripShapes(t *testing.T) {
	cfg, err := Lookup("debug-2x2")
	require.NoError(t, err)
	ae := NewPooling(cfg)

	pixels := tensor.RandomNormal(1, 1, 3, 4, 8, 8)
	latent, err := ae.Encode(pixels)
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 2, 4, 4}, latent.Shape())

	back, err := ae.Decode(latent)
	require.NoError(t, err)
	require.Equal(t, pixels.Shape(), back.Shape())
}

func TestPoolingConstantIsExact(t *testing.T) {
	cfg, _ := Lookup("debug-2x2")
	ae := NewPooling(cfg)

	pixels := tensor.Full(0.25, 1, 3, 2, 4, 4)
	latent, err := ae.Encode(pixels)
	require.NoError(t, err)
	back, err := ae.Decode(latent)
	require.NoError(t, err)
	require.True(t, tensor.AllClose(pixels, back, 1e-6))
}

func TestPoolingErrors(t *testing.T) {
	cfg, _ := Lookup("debug-2x2")
	ae := NewPooling(cfg)

	_, err := ae.Encode(tensor.Zeros(1, 4, 2, 4, 4))
	require.Error(t, err)

	_, err = ae.Encode(tensor.Zeros(1, 3, 3, 4, 4))
	require.Error(t, err)

	_, err = ae.Decode(tensor.Zeros(1, 3, 2, 4, 4))
	require.Error(t, err)
}

func TestScaledNormalization(t *testing.T) {
	cfg := Config{TemporalStride: 2, SpatialStride: 2, Channels: 4, Scale: 2, Shift: 0.5}
	ae := &Scaled{Inner: NewPooling(cfg), Cfg: cfg}

	pixels := tensor.Full(1, 1, 3, 2, 4, 4)
	latent, err := ae.Encode(pixels)
	require.NoError(t, err)
	// Encoder output is uniformly 1.0; scaled latent is (1 - 0.5) * 2.
	for _, v := range latent.Data() {
		require.InDelta(t, 1.0, v, 1e-6)
	}

	back, err := ae.Decode(latent)
	require.NoError(t, err)
	require.True(t, tensor.AllClose(pixels, back, 1e-6))
}
