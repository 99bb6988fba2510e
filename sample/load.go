package sample

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/latentlab/videodit/dit"
	"github.com/latentlab/videodit/envconfig"
	"github.com/latentlab/videodit/safetensors"
	"github.com/latentlab/videodit/text"
	"github.com/latentlab/videodit/vae"
)

// Manifest describes a model directory. It sits next to the weight files as
// manifest.json and binds a network variant to its autoencoder, text encoder
// and scheduler settings.
type Manifest struct {
	Variant string `json:"variant"`
	// Family selects the network constructor, "sparse" or "udit".
	Family string `json:"family"`
	VAE    string `json:"vae"`

	Shift     float64 `json:"shift,omitempty"`
	MaxTokens int     `json:"max_tokens,omitempty"`
	Vocab     int     `json:"vocab,omitempty"`
	UsePooled bool    `json:"use_pooled,omitempty"`

	// QKVFused marks checkpoints that store attention projections as one
	// fused qkv tensor per layer.
	QKVFused bool `json:"qkv_fused,omitempty"`
	// ColumnMajor marks checkpoints whose projection weights are stored
	// [in, out] and need transposing on load.
	ColumnMajor bool `json:"column_major,omitempty"`

	// Untrained skips weight files and keeps the seeded random
	// initialization, for smoke tests and development.
	Untrained bool  `json:"untrained,omitempty"`
	Seed      int64 `json:"seed,omitempty"`
}

func (m Manifest) validate() error {
	if m.Variant == "" {
		return fmt.Errorf("sample: manifest has no variant")
	}
	switch m.Family {
	case "sparse", "udit":
	default:
		return fmt.Errorf("sample: unknown model family %q", m.Family)
	}
	if m.VAE == "" {
		return fmt.Errorf("sample: manifest has no vae")
	}
	return nil
}

// ReadManifest parses manifest.json inside a model directory.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("sample: parsing manifest: %w", err)
	}
	if m.MaxTokens == 0 {
		m.MaxTokens = 256
	}
	if m.Vocab == 0 {
		m.Vocab = 32768
	}
	if m.Shift == 0 {
		m.Shift = 1
	}
	return m, m.validate()
}

// LoadPipeline assembles a pipeline from the model directory dir/name. The
// directory holds manifest.json plus transformer and text encoder weights in
// safetensors or torch checkpoint form, unless the manifest marks the model
// untrained.
func LoadPipeline(dir, name string) (*Pipeline, error) {
	root := filepath.Join(dir, name)
	manifest, err := ReadManifest(root)
	if err != nil {
		return nil, err
	}

	var model Network
	var channels, captionDim int
	switch manifest.Family {
	case "sparse":
		cfg, err := dit.VariantConfig(manifest.Variant)
		if err != nil {
			return nil, err
		}
		cfg.Attention = envconfig.Attention()
		net, err := dit.NewSparseDiT(cfg)
		if err != nil {
			return nil, err
		}
		model, channels, captionDim = net, cfg.InChannels, cfg.CaptionDim
	case "udit":
		cfg, err := dit.UDiTVariantConfig(manifest.Variant)
		if err != nil {
			return nil, err
		}
		cfg.Attention = envconfig.Attention()
		net, err := dit.NewUDiT(cfg)
		if err != nil {
			return nil, err
		}
		model, channels, captionDim = net, cfg.InChannels, cfg.CaptionDim
	}

	encoder := text.NewTable(manifest.Vocab, captionDim, manifest.MaxTokens, manifest.Seed)
	if !manifest.Untrained {
		if err := loadWeights(model, filepath.Join(root, "transformer"), manifest); err != nil {
			return nil, err
		}
		// The embedding table is stored as-is; repacking options apply to
		// the transformer file only.
		if err := loadWeights(encoder, filepath.Join(root, "text_encoder"), Manifest{}); err != nil {
			return nil, err
		}
	}

	aeCfg, err := vae.Lookup(manifest.VAE)
	if err != nil {
		return nil, err
	}
	if aeCfg.Channels != channels {
		return nil, fmt.Errorf("sample: vae %q has %d channels, network expects %d", manifest.VAE, aeCfg.Channels, channels)
	}

	slog.Info("loaded pipeline", "model", name, "variant", manifest.Variant, "family", manifest.Family, "vae", manifest.VAE, "untrained", manifest.Untrained)
	return &Pipeline{
		Model:          model,
		Scheduler:      NewFlowMatchEuler(manifest.Shift),
		Encoder:        encoder,
		Tokenizer:      text.Tokenizer{Vocab: manifest.Vocab, MaxLen: manifest.MaxTokens},
		Decoder:        vae.NewPooling(aeCfg),
		LatentChannels: channels,
		UsePooled:      manifest.UsePooled,
	}, nil
}

// loadWeights fills a module from base.safetensors or base.pt, whichever
// exists, applying the manifest's repacking options.
func loadWeights(module any, base string, m Manifest) error {
	var src safetensors.Source
	switch {
	case exists(base + ".safetensors"):
		f, err := safetensors.Open(base + ".safetensors")
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	case exists(base + ".pt"):
		tensors, err := safetensors.LoadTorch(base + ".pt")
		if err != nil {
			return err
		}
		src = safetensors.Tensors(tensors)
	default:
		return fmt.Errorf("sample: no weights found at %s.{safetensors,pt}", base)
	}

	if m.ColumnMajor {
		src = safetensors.ColumnMajor{Src: src}
	}
	// Outermost so a fused fallback tensor is repacked before splitting.
	if m.QKVFused {
		src = safetensors.FusedQKV{Src: src}
	}
	return safetensors.LoadModule(module, src, "")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
