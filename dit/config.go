// Package dit implements the denoising transformer families: a hierarchical
// encoder/bottleneck/decoder network with sparse attention at constant
// resolution, and a U-shaped multi-resolution variant. Both consume a rank-5
// latent (batch, channel, time, height, width) and predict a tensor of the
// same volumetric shape.
package dit

import (
	"fmt"
	"sort"

	"github.com/latentlab/videodit/nn"
)

// Config describes one hierarchical model variant. Values are fixed at
// construction and never change for the model's lifetime.
type Config struct {
	InChannels  int `json:"in_channels"`
	OutChannels int `json:"out_channels"`

	NumHeads int `json:"num_attention_heads"`
	HeadDim  int `json:"attention_head_dim"`

	PatchT int `json:"patch_size_t"`
	PatchH int `json:"patch_size_h"`
	PatchW int `json:"patch_size_w"`

	// NumLayers holds the block count per stage, odd length, symmetric
	// around the bottleneck. SparseN holds the matching sparsity
	// granularity per stage; 1 means dense.
	NumLayers []int `json:"num_layers"`
	SparseN   []int `json:"sparse_n"`

	// SparsePattern selects how sparse stages group tokens: "1d" over the
	// flattened sequence or "2d" over spatial tiles.
	SparsePattern string `json:"sparse_pattern"`

	CaptionDim int `json:"caption_channels"`
	PooledDim  int `json:"pooled_projection_dim"` // 0 disables pooled conditioning

	MLPRatio float32 `json:"mlp_ratio"`

	// Interpolation scale factors applied to position encodings, so a
	// model trained at one resolution can run at another.
	InterpScaleT float64 `json:"interpolation_scale_t"`
	InterpScaleH float64 `json:"interpolation_scale_h"`
	InterpScaleW float64 `json:"interpolation_scale_w"`

	// Attention names the compute implementation, resolved once at
	// construction. Empty selects the default.
	Attention string `json:"-"`

	// Accepted from checkpoint configs for compatibility; recomputing
	// activations is a training-time memory knob with no effect here.
	GradientCheckpointing bool `json:"gradient_checkpointing"`
}

// HiddenSize is the token width, heads times head dimension.
func (c Config) HiddenSize() int { return c.NumHeads * c.HeadDim }

// Validate checks the configuration eagerly. A model is never constructed
// from an invalid config.
func (c Config) Validate() error {
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("dit: channel counts must be positive, got in=%d out=%d", c.InChannels, c.OutChannels)
	}
	if c.NumHeads <= 0 || c.HeadDim <= 0 {
		return fmt.Errorf("dit: invalid attention geometry, heads=%d head_dim=%d", c.NumHeads, c.HeadDim)
	}
	// The temporal axis takes dim/4 channels and each spatial axis 3*dim/8;
	// all three must be even so their sin/cos halves pair up.
	if c.HiddenSize()%16 != 0 {
		return fmt.Errorf("dit: hidden size %d must be divisible by 16 for position encoding", c.HiddenSize())
	}
	if c.PatchT < 1 || c.PatchH < 1 || c.PatchW < 1 {
		return fmt.Errorf("dit: patch sizes must be at least 1, got (%d,%d,%d)", c.PatchT, c.PatchH, c.PatchW)
	}
	n := len(c.NumLayers)
	if n == 0 || n%2 == 0 {
		return fmt.Errorf("dit: stage count must be odd, got %d", n)
	}
	if len(c.SparseN) != n {
		return fmt.Errorf("dit: sparse_n length %d does not match %d stages", len(c.SparseN), n)
	}
	for i, d := range c.NumLayers {
		if d <= 0 {
			return fmt.Errorf("dit: stage %d has non-positive depth %d", i, d)
		}
		mirror := c.NumLayers[n-1-i]
		if (d-mirror)%2 != 0 {
			return fmt.Errorf("dit: stage %d depth %d and mirror depth %d differ in parity", i, d, mirror)
		}
	}
	for i, s := range c.SparseN {
		if s < 1 {
			return fmt.Errorf("dit: stage %d has sparse_n %d, want >= 1", i, s)
		}
		if s != c.SparseN[n-1-i] {
			return fmt.Errorf("dit: sparse_n must be symmetric, stage %d has %d vs mirror %d", i, s, c.SparseN[n-1-i])
		}
	}
	switch c.SparsePattern {
	case "", "1d", "2d":
	default:
		return fmt.Errorf("dit: unknown sparse pattern %q", c.SparsePattern)
	}
	if c.CaptionDim <= 0 {
		return fmt.Errorf("dit: caption dimension must be positive, got %d", c.CaptionDim)
	}
	if c.MLPRatio <= 0 {
		return fmt.Errorf("dit: mlp ratio must be positive, got %v", c.MLPRatio)
	}
	if _, err := nn.AttentionCompute(c.Attention); err != nil {
		return err
	}
	return nil
}

func (c Config) pattern() Pattern {
	if c.SparsePattern == "2d" {
		return Sparse2D
	}
	return Sparse1D
}

// Variants of the hierarchical family.
var variants = map[string]Config{
	// Production-scale text-to-video model.
	"sparse-5b": {
		InChannels:    32,
		OutChannels:   32,
		NumHeads:      32,
		HeadDim:       72,
		PatchT:        1,
		PatchH:        2,
		PatchW:        2,
		NumLayers:     []int{2, 4, 8, 10, 8, 4, 2},
		SparseN:       []int{1, 4, 16, 64, 16, 4, 1},
		SparsePattern: "1d",
		CaptionDim:    4096,
		PooledDim:     1280,
		MLPRatio:      4,
		InterpScaleT:  1,
		InterpScaleH:  1,
		InterpScaleW:  1,
	},
	// Small config for local experiments.
	"sparse-debug": {
		InChannels:    4,
		OutChannels:   4,
		NumHeads:      2,
		HeadDim:       8,
		PatchT:        1,
		PatchH:        2,
		PatchW:        2,
		NumLayers:     []int{2, 2, 2},
		SparseN:       []int{1, 4, 1},
		SparsePattern: "1d",
		CaptionDim:    32,
		PooledDim:     16,
		MLPRatio:      2,
		InterpScaleT:  1,
		InterpScaleH:  1,
		InterpScaleW:  1,
	},
}

// VariantConfig returns the named hierarchical configuration.
func VariantConfig(name string) (Config, error) {
	c, ok := variants[name]
	if !ok {
		return Config{}, fmt.Errorf("dit: unknown variant %q", name)
	}
	return c, nil
}

// Variants lists the registered hierarchical variant names.
func Variants() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
