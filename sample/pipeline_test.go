package sample

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/dit"
	"github.com/latentlab/videodit/tensor"
	"github.com/latentlab/videodit/text"
	"github.com/latentlab/videodit/vae"
)

func debugPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg, err := dit.VariantConfig("sparse-debug")
	require.NoError(t, err)
	model, err := dit.NewSparseDiT(cfg)
	require.NoError(t, err)

	aeCfg, err := vae.Lookup("debug-2x2")
	require.NoError(t, err)

	return &Pipeline{
		Model:          model,
		Scheduler:      NewFlowMatchEuler(1),
		Encoder:        text.NewTable(256, cfg.CaptionDim, 8, 7),
		Tokenizer:      text.Tokenizer{Vocab: 256, MaxLen: 8},
		Decoder:        vae.NewPooling(aeCfg),
		LatentChannels: cfg.InChannels,
	}
}

func TestPipelineGenerateLatent(t *testing.T) {
	p := debugPipeline(t)

	var steps []int
	latent, err := p.GenerateLatent(context.Background(), Options{
		Prompt:   "a red cube rotating",
		Frames:   2,
		Height:   8,
		Width:    8,
		Steps:    3,
		Guidance: 3,
		Seed:     11,
		Progress: func(step, total int) {
			require.Equal(t, 3, total)
			steps = append(steps, step)
		},
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 2, 8, 8}, latent.Shape())
	require.Equal(t, []int{1, 2, 3}, steps)
}

func TestPipelineDeterministicForSeed(t *testing.T) {
	p := debugPipeline(t)
	opts := Options{Prompt: "dunes at dusk", Frames: 2, Height: 8, Width: 8, Steps: 2, Guidance: 1, Seed: 5}

	a, err := p.GenerateLatent(context.Background(), opts)
	require.NoError(t, err)
	b, err := p.GenerateLatent(context.Background(), opts)
	require.NoError(t, err)
	require.True(t, tensor.AllClose(a, b, 0))

	opts.Seed = 6
	c, err := p.GenerateLatent(context.Background(), opts)
	require.NoError(t, err)
	require.False(t, tensor.AllClose(a, c, 1e-6))
}

func TestPipelineDecodesPixels(t *testing.T) {
	p := debugPipeline(t)
	pixels, err := p.Generate(context.Background(), Options{
		Prompt: "waves", Frames: 2, Height: 8, Width: 8, Steps: 1, Guidance: 1, Seed: 1,
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 4, 16, 16}, pixels.Shape())
}

func TestPipelineCancellation(t *testing.T) {
	p := debugPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GenerateLatent(ctx, Options{
		Prompt: "anything", Frames: 2, Height: 8, Width: 8, Steps: 2, Guidance: 1, Seed: 1,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPipelineOptionValidation(t *testing.T) {
	p := debugPipeline(t)
	ctx := context.Background()

	_, err := p.GenerateLatent(ctx, Options{Frames: 2, Height: 8, Width: 8, Steps: 1})
	require.Error(t, err)

	_, err = p.GenerateLatent(ctx, Options{Prompt: "x", Frames: 0, Height: 8, Width: 8, Steps: 1})
	require.Error(t, err)

	_, err = p.GenerateLatent(ctx, Options{Prompt: "x", Frames: 2, Height: 8, Width: 8, Steps: 0})
	require.Error(t, err)
}
