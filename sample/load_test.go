package sample

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/dit"
	"github.com/latentlab/videodit/safetensors"
	"github.com/latentlab/videodit/tensor"
	"github.com/latentlab/videodit/text"
)

func writeManifest(t *testing.T, dir, name string, m Manifest) string {
	t.Helper()
	root := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(root, 0o755))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), data, 0o644))
	return root
}

func TestLoadPipelineUntrained(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "debug", Manifest{
		Variant: "sparse-debug", Family: "sparse", VAE: "debug-2x2",
		MaxTokens: 8, Vocab: 64, Untrained: true,
	})

	p, err := LoadPipeline(dir, "debug")
	require.NoError(t, err)
	require.Equal(t, 4, p.LatentChannels)

	latent, err := p.GenerateLatent(context.Background(), Options{
		Prompt: "a lighthouse", Frames: 2, Height: 8, Width: 8, Steps: 1, Guidance: 1, Seed: 3,
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 2, 8, 8}, latent.Shape())
}

func TestLoadPipelineUDiTUntrained(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "udit", Manifest{
		Variant: "udit-debug", Family: "udit", VAE: "debug-2x2",
		MaxTokens: 8, Vocab: 64, Untrained: true,
	})

	p, err := LoadPipeline(dir, "udit")
	require.NoError(t, err)
	require.Equal(t, 4, p.LatentChannels)
}

func TestLoadPipelineErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPipeline(dir, "missing")
	require.Error(t, err)

	writeManifest(t, dir, "badfamily", Manifest{Variant: "sparse-debug", Family: "cnn", VAE: "debug-2x2"})
	_, err = LoadPipeline(dir, "badfamily")
	require.ErrorContains(t, err, "family")

	writeManifest(t, dir, "badvae", Manifest{
		Variant: "sparse-debug", Family: "sparse", VAE: "wf-8x8x4", Untrained: true,
	})
	_, err = LoadPipeline(dir, "badvae")
	require.ErrorContains(t, err, "channels")

	// Trained models need weight files on disk.
	writeManifest(t, dir, "noweights", Manifest{
		Variant: "sparse-debug", Family: "sparse", VAE: "debug-2x2",
	})
	_, err = LoadPipeline(dir, "noweights")
	require.ErrorContains(t, err, "no weights")
}

// saveDebugModel snapshots a sparse-debug network and its text table into a
// model directory as float32 safetensors files.
func saveDebugModel(t *testing.T, root string, model *dit.SparseDiT, enc *text.Table) {
	t.Helper()
	snap, err := safetensors.Snapshot(model, "")
	require.NoError(t, err)
	require.NoError(t, safetensors.Write(filepath.Join(root, "transformer.safetensors"), snap))

	encSnap, err := safetensors.Snapshot(enc, "")
	require.NoError(t, err)
	require.NoError(t, safetensors.Write(filepath.Join(root, "text_encoder.safetensors"), encSnap))
}

func TestLoadPipelineTrainedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	root := writeManifest(t, dir, "trained", Manifest{
		Variant: "sparse-debug", Family: "sparse", VAE: "debug-2x2",
		MaxTokens: 8, Vocab: 64,
	})

	cfg, err := dit.VariantConfig("sparse-debug")
	require.NoError(t, err)
	src, err := dit.NewSparseDiT(cfg)
	require.NoError(t, err)

	// Mark weights deep inside a block so a successful load is
	// distinguishable from construction-time initialization.
	src.Stages[1].Blocks[1].Attn.Q.Weight.Set(42, 0, 0)
	src.Stages[0].Blocks[0].FF.Up.Weight.Set(-7, 0, 0)

	snap, err := safetensors.Snapshot(src, "")
	require.NoError(t, err)
	require.Contains(t, snap, "transformer_blocks.1.1.attn1.to_q.weight")
	require.Contains(t, snap, "transformer_blocks.0.0.ff.net.0.proj.weight")

	enc := text.NewTable(64, cfg.CaptionDim, 8, 9)
	saveDebugModel(t, root, src, enc)

	p, err := LoadPipeline(dir, "trained")
	require.NoError(t, err)

	loaded, ok := p.Model.(*dit.SparseDiT)
	require.True(t, ok)
	require.InDelta(t, 42, loaded.Stages[1].Blocks[1].Attn.Q.Weight.At(0, 0), 0)
	require.InDelta(t, -7, loaded.Stages[0].Blocks[0].FF.Up.Weight.At(0, 0), 0)

	table, ok := p.Encoder.(*text.Table)
	require.True(t, ok)
	require.True(t, tensor.AllClose(enc.Weights, table.Weights, 0))
}

func TestLoadPipelineRejectsPartialCheckpoint(t *testing.T) {
	dir := t.TempDir()
	root := writeManifest(t, dir, "partial", Manifest{
		Variant: "sparse-debug", Family: "sparse", VAE: "debug-2x2",
		MaxTokens: 8, Vocab: 64,
	})

	cfg, err := dit.VariantConfig("sparse-debug")
	require.NoError(t, err)
	src, err := dit.NewSparseDiT(cfg)
	require.NoError(t, err)

	snap, err := safetensors.Snapshot(src, "")
	require.NoError(t, err)
	// Strip every block tensor; the loader must refuse the checkpoint
	// rather than keep those weights at random init.
	for name := range snap {
		if strings.HasPrefix(name, "transformer_blocks.") {
			delete(snap, name)
		}
	}
	require.NoError(t, safetensors.Write(filepath.Join(root, "transformer.safetensors"), snap))

	enc := text.NewTable(64, cfg.CaptionDim, 8, 9)
	encSnap, err := safetensors.Snapshot(enc, "")
	require.NoError(t, err)
	require.NoError(t, safetensors.Write(filepath.Join(root, "text_encoder.safetensors"), encSnap))

	_, err = LoadPipeline(dir, "partial")
	require.ErrorContains(t, err, "transformer_blocks")
}

func TestLoadPipelineColumnMajorCheckpoint(t *testing.T) {
	dir := t.TempDir()
	root := writeManifest(t, dir, "colmajor", Manifest{
		Variant: "sparse-debug", Family: "sparse", VAE: "debug-2x2",
		MaxTokens: 8, Vocab: 64, ColumnMajor: true,
	})

	cfg, err := dit.VariantConfig("sparse-debug")
	require.NoError(t, err)
	src, err := dit.NewSparseDiT(cfg)
	require.NoError(t, err)
	src.Stages[2].Blocks[0].Cross.K.Weight.Set(13, 1, 0)

	snap, err := safetensors.Snapshot(src, "")
	require.NoError(t, err)
	for name, a := range snap {
		if a.Ndim() == 2 && strings.HasSuffix(name, ".weight") {
			flipped, err := safetensors.TransposeDims(a, 1, 0)
			require.NoError(t, err)
			snap[name] = flipped
		}
	}
	require.NoError(t, safetensors.Write(filepath.Join(root, "transformer.safetensors"), snap))

	enc := text.NewTable(64, cfg.CaptionDim, 8, 9)
	encSnap, err := safetensors.Snapshot(enc, "")
	require.NoError(t, err)
	require.NoError(t, safetensors.Write(filepath.Join(root, "text_encoder.safetensors"), encSnap))

	p, err := LoadPipeline(dir, "colmajor")
	require.NoError(t, err)
	loaded := p.Model.(*dit.SparseDiT)
	require.InDelta(t, 13, loaded.Stages[2].Blocks[0].Cross.K.Weight.At(1, 0), 0)
	require.True(t, tensor.AllClose(src.Embed.Proj.Weight, loaded.Embed.Proj.Weight, 0))
}

func TestReadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	root := writeManifest(t, dir, "m", Manifest{Variant: "sparse-debug", Family: "sparse", VAE: "debug-2x2"})

	m, err := ReadManifest(root)
	require.NoError(t, err)
	require.Equal(t, 256, m.MaxTokens)
	require.Equal(t, 32768, m.Vocab)
	require.InDelta(t, 1.0, m.Shift, 0)
}
