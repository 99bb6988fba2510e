package vae

import (
	"fmt"

	"github.com/latentlab/videodit/tensor"
)

// Pooling is a parameter-free stand-in backbone used for tests and local
// debugging: average pooling as the encoder, nearest-neighbor upsampling as
// the decoder. It honors the same stride/channel contract as a real
// backbone so the rest of the pipeline cannot tell the difference.
type Pooling struct {
	Cfg Config
}

func NewPooling(cfg Config) *Pooling { return &Pooling{Cfg: cfg} }

func (p *Pooling) Strides() (int, int) { return p.Cfg.TemporalStride, p.Cfg.SpatialStride }
func (p *Pooling) Channels() int       { return p.Cfg.Channels }

func (p *Pooling) Encode(pixels *tensor.Array) (*tensor.Array, error) {
	if pixels.Ndim() != 5 || pixels.Dim(1) != 3 {
		return nil, fmt.Errorf("vae: pixels must be [batch, 3, frames, height, width], got %v", pixels.Shape())
	}
	st, ss := p.Cfg.TemporalStride, p.Cfg.SpatialStride
	b, t, h, w := pixels.Dim(0), pixels.Dim(2), pixels.Dim(3), pixels.Dim(4)
	if t%st != 0 || h%ss != 0 || w%ss != 0 {
		return nil, fmt.Errorf("vae: extents (%d,%d,%d) not divisible by strides (%d,%d)", t, h, w, st, ss)
	}
	lt, lh, lw := t/st, h/ss, w/ss

	out := tensor.Zeros(b, p.Cfg.Channels, lt, lh, lw)
	norm := 1 / float32(st*ss*ss)
	for bi := 0; bi < b; bi++ {
		for ci := 0; ci < p.Cfg.Channels; ci++ {
			src := ci % 3
			for ti := 0; ti < lt; ti++ {
				for hi := 0; hi < lh; hi++ {
					for wi := 0; wi < lw; wi++ {
						var acc float32
						for dt := 0; dt < st; dt++ {
							for dh := 0; dh < ss; dh++ {
								for dw := 0; dw < ss; dw++ {
									acc += pixels.At(bi, src, ti*st+dt, hi*ss+dh, wi*ss+dw)
								}
							}
						}
						out.Set(acc*norm, bi, ci, ti, hi, wi)
					}
				}
			}
		}
	}
	return out, nil
}

func (p *Pooling) Decode(latent *tensor.Array) (*tensor.Array, error) {
	if latent.Ndim() != 5 || latent.Dim(1) != p.Cfg.Channels {
		return nil, fmt.Errorf("vae: latent must have %d channels, got shape %v", p.Cfg.Channels, latent.Shape())
	}
	st, ss := p.Cfg.TemporalStride, p.Cfg.SpatialStride
	b, lt, lh, lw := latent.Dim(0), latent.Dim(2), latent.Dim(3), latent.Dim(4)

	out := tensor.Zeros(b, 3, lt*st, lh*ss, lw*ss)
	for bi := 0; bi < b; bi++ {
		for ci := 0; ci < 3; ci++ {
			for ti := 0; ti < lt*st; ti++ {
				for hi := 0; hi < lh*ss; hi++ {
					for wi := 0; wi < lw*ss; wi++ {
						out.Set(latent.At(bi, ci, ti/st, hi/ss, wi/ss), bi, ci, ti, hi, wi)
					}
				}
			}
		}
	}
	return out, nil
}
