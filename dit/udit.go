package dit

import (
	"fmt"
	"sort"

	"github.com/latentlab/videodit/nn"
	"github.com/latentlab/videodit/tensor"
)

// UDiTConfig describes one U-shaped model variant. Level l of the U runs at
// width HiddenSize << l; the deepest level is len(Depth)/2.
type UDiTConfig struct {
	InChannels  int `json:"in_channels"`
	OutChannels int `json:"out_channels"`

	HiddenSize int `json:"hidden_size"`
	HeadDim    int `json:"attention_head_dim"`

	PatchT int `json:"patch_size_t"`
	PatchH int `json:"patch_size_h"`
	PatchW int `json:"patch_size_w"`

	// Depth holds the block count per stage, odd length.
	Depth []int `json:"depth"`

	CaptionDim int     `json:"caption_channels"`
	MLPRatio   float32 `json:"mlp_ratio"`

	InterpScaleT float64 `json:"interpolation_scale_t"`
	InterpScaleH float64 `json:"interpolation_scale_h"`
	InterpScaleW float64 `json:"interpolation_scale_w"`

	Attention string `json:"-"`
}

func (c UDiTConfig) levels() int { return len(c.Depth)/2 + 1 }

func (c UDiTConfig) width(level int) int { return c.HiddenSize << level }

func (c UDiTConfig) Validate() error {
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("dit: channel counts must be positive, got in=%d out=%d", c.InChannels, c.OutChannels)
	}
	n := len(c.Depth)
	if n == 0 || n%2 == 0 {
		return fmt.Errorf("dit: stage count must be odd, got %d", n)
	}
	for i, d := range c.Depth {
		if d <= 0 {
			return fmt.Errorf("dit: stage %d has non-positive depth %d", i, d)
		}
		if (d-c.Depth[n-1-i])%2 != 0 {
			return fmt.Errorf("dit: stage %d depth %d and mirror depth %d differ in parity", i, d, c.Depth[n-1-i])
		}
	}
	if c.HiddenSize%16 != 0 {
		return fmt.Errorf("dit: hidden size %d must be divisible by 16 for position encoding", c.HiddenSize)
	}
	if c.HeadDim <= 0 || c.HiddenSize%c.HeadDim != 0 {
		return fmt.Errorf("dit: head dim %d must divide hidden size %d", c.HeadDim, c.HiddenSize)
	}
	if c.PatchT < 1 || c.PatchH < 1 || c.PatchW < 1 {
		return fmt.Errorf("dit: patch sizes must be at least 1, got (%d,%d,%d)", c.PatchT, c.PatchH, c.PatchW)
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

// FinalLayer is the U-shaped family's output head: a learned scale-shift
// table modulated by the conditioning embedding, then the voxel projection.
type FinalLayer struct {
	Table *tensor.Array `weight:"scale_shift_table"` // [2, dim]
	Norm  *nn.LayerNorm `weight:"norm_out"`
	Proj  *nn.Linear    `weight:"proj_out"`

	dim int
}

func NewFinalLayer(dim, pt, ph, pw, outChannels int, seed int64) *FinalLayer {
	return &FinalLayer{
		Table: tensor.MulScalar(tensor.RandomNormal(seed, 2, dim), 0.02),
		Norm:  nn.NewLayerNorm(dim, false),
		Proj:  nn.NewLinear(dim, pt*ph*pw*outChannels, true, seed+1),
		dim:   dim,
	}
}

func (f *FinalLayer) Forward(x, emb *tensor.Array) *tensor.Array {
	b := emb.Dim(0)
	embRow := tensor.Reshape(emb, b, 1, f.dim)
	shift := tensor.Add(tensor.Reshape(tensor.Slice(f.Table, []int{0, 0}, []int{1, f.dim}), 1, 1, f.dim), embRow)
	scale := tensor.Add(tensor.Reshape(tensor.Slice(f.Table, []int{1, 0}, []int{2, f.dim}), 1, 1, f.dim), embRow)
	out := tensor.Add(tensor.Mul(f.Norm.Forward(x), tensor.AddScalar(scale, 1)), shift)
	return f.Proj.Forward(out)
}

// UDiT is the U-shaped multi-resolution family: every encoder stage is
// followed by an explicit Downsample, every decoder stage preceded by the
// mirrored Upsample, with per-call padding threaded between them. Skip
// connections concatenate channel-wise and a learned reduction projects back
// to the stage width. Conditioning is produced independently at every level
// width.
type UDiT struct {
	cfg UDiTConfig

	Embed    *PatchEmbedder      `weight:"pos_embed"`
	AdaLNs   []*AdaLNSingle      `weight:"adaln_single"`
	Captions []*CaptionProjector `weight:"caption_projection"`

	EncStages []*Stage      `weight:"encoder"`
	MidStage  *Stage        `weight:"mid"`
	DecStages []*Stage      `weight:"decoder"` // deepest first
	Downs     []*Downsample `weight:"downsample"`
	Ups       []*Upsample   `weight:"upsample"` // deepest first
	Reduces   []*nn.Linear  `weight:"reduce_chan"`

	Head *FinalLayer `weight:"final_layer"`
}

func NewUDiT(cfg UDiTConfig) (*UDiT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	compute, err := nn.AttentionCompute(cfg.Attention)
	if err != nil {
		return nil, err
	}

	k := cfg.levels() - 1
	m := &UDiT{
		cfg:   cfg,
		Embed: NewPatchEmbedder(cfg.InChannels, cfg.HiddenSize, cfg.PatchT, cfg.PatchH, cfg.PatchW, cfg.InterpScaleT, cfg.InterpScaleH, cfg.InterpScaleW, 5),
		Head:  NewFinalLayer(cfg.HiddenSize, cfg.PatchT, cfg.PatchH, cfg.PatchW, cfg.OutChannels, 7000),
	}
	for l := 0; l <= k; l++ {
		w := cfg.width(l)
		m.AdaLNs = append(m.AdaLNs, NewAdaLNSingle(w, 0, int64(100+l)))
		m.Captions = append(m.Captions, NewCaptionProjector(cfg.CaptionDim, w, int64(200+l)))
	}
	for l := 0; l < k; l++ {
		w := cfg.width(l)
		m.EncStages = append(m.EncStages, NewStage(cfg.Depth[l], w, w/cfg.HeadDim, cfg.HeadDim, cfg.MLPRatio, Dense, 1, compute, int64(20000*(l+1))))
		m.Downs = append(m.Downs, NewDownsample(w, int64(300+l)))
	}
	wMid := cfg.width(k)
	m.MidStage = NewStage(cfg.Depth[k], wMid, wMid/cfg.HeadDim, cfg.HeadDim, cfg.MLPRatio, Dense, 1, compute, 50000)
	for l := k - 1; l >= 0; l-- {
		w := cfg.width(l)
		m.Ups = append(m.Ups, NewUpsample(cfg.width(l+1), int64(400+l)))
		m.Reduces = append(m.Reduces, nn.NewLinear(2*w, w, true, int64(500+l)))
		stageIdx := len(cfg.Depth) - 1 - l
		m.DecStages = append(m.DecStages, NewStage(cfg.Depth[stageIdx], w, w/cfg.HeadDim, cfg.HeadDim, cfg.MLPRatio, Dense, 1, compute, int64(60000*(l+1))))
	}
	return m, nil
}

// Config returns the immutable configuration the model was built with.
func (m *UDiT) Config() UDiTConfig { return m.cfg }

// Forward predicts a tensor of the input's volumetric shape. Unlike the
// hierarchical family, this family rejects odd frame counts outright rather
// than applying the keyframe padding rule.
func (m *UDiT) Forward(in ForwardInput) (*tensor.Array, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	frames := in.Latent.Dim(2)
	if frames%2 == 1 {
		return nil, fmt.Errorf("dit: u-shaped variant requires an even frame count, got %d", frames)
	}

	x, grid, _, err := m.Embed.Forward(in.Latent)
	if err != nil {
		return nil, err
	}

	k := m.cfg.levels() - 1

	masks := make([]*Mask, k+1)
	if in.LatentMask != nil {
		masks[0], err = NewTokenMask(in.LatentMask, frames, in.Latent.Dim(3), in.Latent.Dim(4), m.cfg.PatchT, m.cfg.PatchH, m.cfg.PatchW)
		if err != nil {
			return nil, err
		}
	}
	crossBias, err := TextBias(in.TextMask)
	if err != nil {
		return nil, err
	}

	conds := make([]*Conditioning, k+1)
	texts := make([]*tensor.Array, k+1)
	for l := 0; l <= k; l++ {
		conds[l], err = m.AdaLNs[l].Forward(in.Timestep, nil)
		if err != nil {
			return nil, err
		}
		texts[l], err = m.Captions[l].Forward(in.Caption)
		if err != nil {
			return nil, err
		}
	}

	var skips skipStack
	padsH := make([]int, k)
	padsW := make([]int, k)

	for l := 0; l < k; l++ {
		x, err = m.EncStages[l].Forward(x, texts[l], conds[l].Mod, masks[l], crossBias, grid)
		if err != nil {
			return nil, err
		}
		skips.push(x)
		x, grid, padsH[l], padsW[l] = m.Downs[l].Forward(x, grid)
		if masks[l] != nil {
			masks[l+1] = masks[l].Pool(padsH[l], padsW[l])
		}
	}

	x, err = m.MidStage.Forward(x, texts[k], conds[k].Mod, masks[k], crossBias, grid)
	if err != nil {
		return nil, err
	}

	for i, l := 0, k-1; l >= 0; i, l = i+1, l-1 {
		x, grid = m.Ups[i].Forward(x, grid, padsH[l], padsW[l])
		skip := skips.pop()
		x = m.Reduces[i].Forward(tensor.Concatenate([]*tensor.Array{x, skip}, -1))
		x, err = m.DecStages[i].Forward(x, texts[l], conds[l].Mod, masks[l], crossBias, grid)
		if err != nil {
			return nil, err
		}
	}
	if skips.depth() != 0 {
		panic("dit: skip stack not empty after decoder")
	}

	out := m.Head.Forward(x, conds[0].Emb)
	return Unpatchify(out, grid, m.cfg.PatchT, m.cfg.PatchH, m.cfg.PatchW, m.cfg.OutChannels, 0), nil
}

// U-shaped variants.
var uditVariants = map[string]UDiTConfig{
	"udit-xl": {
		InChannels:   8,
		OutChannels:  8,
		HiddenSize:   1152,
		HeadDim:      72,
		PatchT:       1,
		PatchH:       2,
		PatchW:       2,
		Depth:        []int{2, 5, 8, 5, 2},
		CaptionDim:   4096,
		MLPRatio:     4,
		InterpScaleT: 1,
		InterpScaleH: 1,
		InterpScaleW: 1,
	},
	"udit-debug": {
		InChannels:   4,
		OutChannels:  4,
		HiddenSize:   16,
		HeadDim:      8,
		PatchT:       1,
		PatchH:       2,
		PatchW:       2,
		Depth:        []int{2, 2, 2},
		CaptionDim:   32,
		MLPRatio:     2,
		InterpScaleT: 1,
		InterpScaleH: 1,
		InterpScaleW: 1,
	},
}

// UDiTVariantConfig returns the named U-shaped configuration.
func UDiTVariantConfig(name string) (UDiTConfig, error) {
	c, ok := uditVariants[name]
	if !ok {
		return UDiTConfig{}, fmt.Errorf("dit: unknown variant %q", name)
	}
	return c, nil
}

// UDiTVariants lists the registered U-shaped variant names.
func UDiTVariants() []string {
	names := make([]string, 0, len(uditVariants))
	for name := range uditVariants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
