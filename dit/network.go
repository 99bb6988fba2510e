package dit

import (
	"fmt"

	"github.com/latentlab/videodit/nn"
	"github.com/latentlab/videodit/tensor"
)

// ForwardInput is the single entry-point argument of both network families.
type ForwardInput struct {
	// Latent is the noisy rank-5 latent [batch, channel, time, height,
	// width]. Never mutated; the network only produces derived tensors.
	Latent *tensor.Array
	// Timestep is the diffusion timestep per sample, [batch].
	Timestep *tensor.Array
	// Caption is the frozen text-encoder sequence embedding
	// [batch, textLen, captionDim].
	Caption *tensor.Array
	// Pooled is an optional pooled text embedding [batch, pooledDim].
	Pooled *tensor.Array
	// LatentMask optionally marks latent positions to keep; see
	// NewTokenMask for the accepted conventions.
	LatentMask *tensor.Array
	// TextMask optionally masks caption positions, [batch, textLen].
	TextMask *tensor.Array
}

func (in ForwardInput) validate() error {
	if in.Latent == nil || in.Timestep == nil || in.Caption == nil {
		return fmt.Errorf("dit: latent, timestep, and caption are required")
	}
	if in.Latent.Ndim() != 5 {
		return fmt.Errorf("dit: latent must be rank 5, got shape %v", in.Latent.Shape())
	}
	b := in.Latent.Dim(0)
	if in.Timestep.Ndim() != 1 || in.Timestep.Dim(0) != b {
		return fmt.Errorf("dit: timestep shape %v does not match batch %d", in.Timestep.Shape(), b)
	}
	if in.Caption.Ndim() != 3 || in.Caption.Dim(0) != b {
		return fmt.Errorf("dit: caption shape %v does not match batch %d", in.Caption.Shape(), b)
	}
	return nil
}

// SparseDiT is the hierarchical constant-resolution family: encoder stages
// push skip connections, the bottleneck runs once, decoder stages pop and
// fold them back in through a norm+linear reduction. Stage transitions are
// pure depth transitions; resolution and width never change.
type SparseDiT struct {
	cfg Config

	Embed   *PatchEmbedder    `weight:"pos_embed"`
	AdaLN   *AdaLNSingle      `weight:"adaln_single"`
	Caption *CaptionProjector `weight:"caption_projection"`
	Stages  []*Stage          `weight:"transformer_blocks"`

	// One norm+reduction pair per decoder stage, applied to the
	// channel-wise concatenation of decoder tokens and the popped skip.
	SkipNorms []*nn.LayerNorm `weight:"skip_norm"`
	SkipProjs []*nn.Linear    `weight:"skip_linear"`

	Head *Head `weight:"norm_final"`
}

// NewSparseDiT validates cfg and builds the network with seeded initial
// weights. Checkpoint loading replaces them afterwards.
func NewSparseDiT(cfg Config) (*SparseDiT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	compute, err := nn.AttentionCompute(cfg.Attention)
	if err != nil {
		return nil, err
	}

	dim := cfg.HiddenSize()
	m := &SparseDiT{
		cfg:     cfg,
		Embed:   NewPatchEmbedder(cfg.InChannels, dim, cfg.PatchT, cfg.PatchH, cfg.PatchW, cfg.InterpScaleT, cfg.InterpScaleH, cfg.InterpScaleW, 1),
		AdaLN:   NewAdaLNSingle(dim, cfg.PooledDim, 1000),
		Caption: NewCaptionProjector(cfg.CaptionDim, dim, 2000),
		Head:    NewHead(dim, cfg.PatchT, cfg.PatchH, cfg.PatchW, cfg.OutChannels, 3000),
	}

	for i, depth := range cfg.NumLayers {
		pattern := Dense
		if cfg.SparseN[i] > 1 {
			pattern = cfg.pattern()
		}
		m.Stages = append(m.Stages, NewStage(depth, dim, cfg.NumHeads, cfg.HeadDim, cfg.MLPRatio, pattern, cfg.SparseN[i], compute, int64(10000*(i+1))))
	}

	mid := len(cfg.NumLayers) / 2
	for i := 0; i < mid; i++ {
		m.SkipNorms = append(m.SkipNorms, nn.NewLayerNorm(2*dim, true))
		m.SkipProjs = append(m.SkipProjs, nn.NewLinear(2*dim, dim, true, int64(90000+i)))
	}
	return m, nil
}

// Config returns the immutable configuration the model was built with.
func (m *SparseDiT) Config() Config { return m.cfg }

// Forward predicts a tensor of the input's volumetric shape with
// cfg.OutChannels channels.
func (m *SparseDiT) Forward(in ForwardInput) (*tensor.Array, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	frames := in.Latent.Dim(2)

	x, grid, pad, err := m.Embed.Forward(in.Latent)
	if err != nil {
		return nil, err
	}

	var mask *Mask
	if in.LatentMask != nil {
		mask, err = NewTokenMask(in.LatentMask, frames, in.Latent.Dim(3), in.Latent.Dim(4), m.cfg.PatchT, m.cfg.PatchH, m.cfg.PatchW)
		if err != nil {
			return nil, err
		}
	}
	crossBias, err := TextBias(in.TextMask)
	if err != nil {
		return nil, err
	}

	cond, err := m.AdaLN.Forward(in.Timestep, in.Pooled)
	if err != nil {
		return nil, err
	}
	text, err := m.Caption.Forward(in.Caption)
	if err != nil {
		return nil, err
	}

	mid := len(m.Stages) / 2
	var skips skipStack

	for i := 0; i < mid; i++ {
		x, err = m.Stages[i].Forward(x, text, cond.Mod, mask, crossBias, grid)
		if err != nil {
			return nil, err
		}
		skips.push(x)
	}

	x, err = m.Stages[mid].Forward(x, text, cond.Mod, mask, crossBias, grid)
	if err != nil {
		return nil, err
	}

	for i := mid + 1; i < len(m.Stages); i++ {
		d := i - mid - 1
		skip := skips.pop()
		x = m.SkipProjs[d].Forward(m.SkipNorms[d].Forward(tensor.Concatenate([]*tensor.Array{x, skip}, -1)))
		x, err = m.Stages[i].Forward(x, text, cond.Mod, mask, crossBias, grid)
		if err != nil {
			return nil, err
		}
	}
	if skips.depth() != 0 {
		panic("dit: skip stack not empty after decoder")
	}

	out := m.Head.Forward(x, cond.Emb)
	return Unpatchify(out, grid, m.cfg.PatchT, m.cfg.PatchH, m.cfg.PatchW, m.cfg.OutChannels, pad), nil
}
