// Package vae defines the video autoencoder boundary. The diffusion network
// operates exclusively in the latent space an Autoencoder produces; the
// heavy pretrained backbones themselves live outside this repository and are
// selected by id from a registry of stride/channel configurations.
package vae

import (
	"fmt"
	"sort"

	"github.com/latentlab/videodit/tensor"
)

// Autoencoder compresses pixel videos into latents and back. Pixel tensors
// are [batch, 3, frames, height, width] in [-1, 1].
type Autoencoder interface {
	Encode(pixels *tensor.Array) (*tensor.Array, error)
	Decode(latent *tensor.Array) (*tensor.Array, error)
	// Strides reports the temporal and spatial compression factors.
	Strides() (t, s int)
	// Channels is the latent channel count.
	Channels() int
}

// Config describes a compression backbone: its strides, latent width, and
// the normalization bringing its latent distribution to roughly unit scale.
type Config struct {
	TemporalStride int     `json:"temporal_stride"`
	SpatialStride  int     `json:"spatial_stride"`
	Channels       int     `json:"latent_channels"`
	Scale          float32 `json:"scaling_factor"`
	Shift          float32 `json:"shift_factor"`
}

var registry = map[string]Config{
	"wf-8x8x4":    {TemporalStride: 4, SpatialStride: 8, Channels: 32, Scale: 0.7, Shift: 0},
	"causal-4x8":  {TemporalStride: 4, SpatialStride: 8, Channels: 16, Scale: 1.15, Shift: 0.09},
	"debug-2x2":   {TemporalStride: 2, SpatialStride: 2, Channels: 4, Scale: 1, Shift: 0},
}

// Lookup returns the stride configuration of a registered backbone id.
func Lookup(id string) (Config, error) {
	c, ok := registry[id]
	if !ok {
		return Config{}, fmt.Errorf("vae: unknown autoencoder %q", id)
	}
	return c, nil
}

// IDs lists the registered backbone ids, sorted.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Scaled wraps a backbone with the latent normalization the diffusion model
// was trained against: encode shifts then scales, decode inverts.
type Scaled struct {
	Inner Autoencoder
	Cfg   Config
}

func (s *Scaled) Encode(pixels *tensor.Array) (*tensor.Array, error) {
	latent, err := s.Inner.Encode(pixels)
	if err != nil {
		return nil, err
	}
	return tensor.MulScalar(tensor.AddScalar(latent, -s.Cfg.Shift), s.Cfg.Scale), nil
}

func (s *Scaled) Decode(latent *tensor.Array) (*tensor.Array, error) {
	return s.Inner.Decode(tensor.AddScalar(tensor.MulScalar(latent, 1/s.Cfg.Scale), s.Cfg.Shift))
}

func (s *Scaled) Strides() (int, int) { return s.Inner.Strides() }
func (s *Scaled) Channels() int       { return s.Inner.Channels() }
