package dit

import (
	"fmt"

	"github.com/latentlab/videodit/tensor"
)

// maskDiscard is the additive penalty for discarded positions. Large enough
// to zero them out after softmax, small enough to stay finite in float32.
const maskDiscard = -1e4

// Mask carries a boolean keep-mask at the current token grid resolution. It
// is converted to an additive bias once per stage and re-pooled whenever the
// resolution changes, so it always matches the token sequence it travels
// with.
type Mask struct {
	keep *tensor.Array // [batch, t, h, w], 1 keep / 0 discard
	grid Grid
}

// NewTokenMask pools a latent-resolution mask down to the token grid. Two
// input conventions are accepted:
//
//   - rank 4 [batch, frames, height, width]: a boolean keep-mask over latent
//     voxels, values in {0, 1}
//   - rank 2 [batch, frames*height*width]: a pre-converted additive bias
//     (zero keep, large negative discard), flattened over the same extents
//
// Any other rank is a shape error. The mask follows the same odd-frame
// front-padding rule as Patchify, repeating the first frame's mask row.
func NewTokenMask(m *tensor.Array, frames, height, width, pt, ph, pw int) (*Mask, error) {
	var keep *tensor.Array
	switch m.Ndim() {
	case 4:
		keep = m
	case 2:
		if m.Dim(1) != frames*height*width {
			return nil, fmt.Errorf("dit: bias mask length %d does not match %dx%dx%d", m.Dim(1), frames, height, width)
		}
		keep = tensor.Zeros(m.Dim(0), frames*height*width)
		for i, v := range m.Data() {
			if v > maskDiscard/2 {
				keep.Data()[i] = 1
			}
		}
		keep = tensor.Reshape(keep, m.Dim(0), frames, height, width)
	default:
		return nil, fmt.Errorf("dit: mask must be rank 4 keep-mask or rank 2 bias, got shape %v", m.Shape())
	}
	if keep.Dim(1) != frames || keep.Dim(2) != height || keep.Dim(3) != width {
		return nil, fmt.Errorf("dit: mask shape %v does not match latent %dx%dx%d", keep.Shape(), frames, height, width)
	}

	b := keep.Dim(0)
	var gt int
	if frames%2 == 1 {
		gt = (frames-1)/pt + 1
		if pad := gt*pt - frames; pad > 0 {
			first := tensor.Slice(keep, []int{0, 0, 0, 0}, []int{b, 1, height, width})
			parts := make([]*tensor.Array, 0, pad+1)
			for i := 0; i < pad; i++ {
				parts = append(parts, first)
			}
			parts = append(parts, keep)
			keep = tensor.Concatenate(parts, 1)
		}
	} else {
		if frames%pt != 0 {
			return nil, fmt.Errorf("dit: mask frame count %d not divisible by patch_t %d", frames, pt)
		}
		gt = frames / pt
	}

	grid := Grid{T: gt, H: height / ph, W: width / pw}
	pooled := tensor.MaxPool3D(tensor.ExpandDims(keep, 1), pt, ph, pw)
	return &Mask{keep: tensor.Squeeze(pooled, 1), grid: grid}, nil
}

// Grid returns the token grid this mask currently matches.
func (m *Mask) Grid() Grid { return m.grid }

// Pool resizes the mask for a halved spatial resolution, padding odd extents
// the same way Downsample pads the tokens. Padded positions are discarded.
func (m *Mask) Pool(padH, padW int) *Mask {
	keep := m.keep
	if padH > 0 || padW > 0 {
		keep = tensor.Pad(keep, [][2]int{{0, 0}, {0, 0}, {0, padH}, {0, padW}})
	}
	pooled := tensor.MaxPool3D(tensor.ExpandDims(keep, 1), 1, 2, 2)
	return &Mask{
		keep: tensor.Squeeze(pooled, 1),
		grid: Grid{T: m.grid.T, H: (m.grid.H + padH) / 2, W: (m.grid.W + padW) / 2},
	}
}

// Bias converts the keep-mask to an additive attention bias
// [batch, 1, 1, len]: zero for kept positions, a large negative finite value
// for discarded ones.
func (m *Mask) Bias() *tensor.Array {
	b := m.keep.Dim(0)
	flat := tensor.Reshape(m.keep, b, 1, 1, m.grid.Len())
	return tensor.MulScalar(tensor.AddScalar(tensor.Neg(flat), 1), maskDiscard)
}

// TextBias converts a text mask [batch, textLen] into a cross-attention bias
// [batch, 1, 1, textLen]. A mask containing values below -1 is taken to be a
// pre-converted additive bias (zero keep); otherwise it is a boolean
// keep-mask (one keep).
func TextBias(m *tensor.Array) (*tensor.Array, error) {
	if m == nil {
		return nil, nil
	}
	if m.Ndim() != 2 {
		return nil, fmt.Errorf("dit: text mask must be rank 2, got shape %v", m.Shape())
	}
	isBias := false
	for _, v := range m.Data() {
		if v < -1 {
			isBias = true
			break
		}
	}
	b, l := m.Dim(0), m.Dim(1)
	out := tensor.Zeros(b, 1, 1, l)
	for i, v := range m.Data() {
		discard := v == 0
		if isBias {
			discard = v <= maskDiscard/2
		}
		if discard {
			out.Data()[i] = maskDiscard
		}
	}
	return out, nil
}
