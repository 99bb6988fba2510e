package dit

import (
	"github.com/latentlab/videodit/nn"
	"github.com/latentlab/videodit/tensor"
)

// Downsample halves height and width and doubles the channel width: a linear
// to half width, then folding each 2x2 spatial neighborhood into channels.
// Odd extents are padded first; the padding is returned per call so the
// mirrored Upsample can invert it exactly, never assumed symmetric.
type Downsample struct {
	Proj *nn.Linear `weight:"proj"` // dim -> dim/2

	dim int
}

func NewDownsample(dim int, seed int64) *Downsample {
	return &Downsample{Proj: nn.NewLinear(dim, dim/2, true, seed), dim: dim}
}

func (d *Downsample) Forward(x *tensor.Array, grid Grid) (*tensor.Array, Grid, int, int) {
	b := x.Dim(0)
	half := d.dim / 2
	x = d.Proj.Forward(x)

	padH := grid.H % 2
	padW := grid.W % 2
	x = tensor.Reshape(x, b, grid.T, grid.H, grid.W, half)
	if padH > 0 || padW > 0 {
		x = tensor.Pad(x, [][2]int{{0, 0}, {0, 0}, {0, padH}, {0, padW}, {0, 0}})
	}
	h2 := (grid.H + padH) / 2
	w2 := (grid.W + padW) / 2

	x = tensor.Reshape(x, b, grid.T, h2, 2, w2, 2, half)
	x = tensor.Transpose(x, 0, 1, 2, 4, 3, 5, 6)
	out := Grid{T: grid.T, H: h2, W: w2}
	return tensor.Reshape(x, b, out.Len(), 4*half), out, padH, padW
}

// Upsample is the exact inverse of Downsample given the padding it recorded:
// a linear to double width, unfolding channels back into 2x2 spatial
// neighborhoods, then cropping the padding off.
type Upsample struct {
	Proj *nn.Linear `weight:"proj"` // dim -> 2*dim

	dim int
}

func NewUpsample(dim int, seed int64) *Upsample {
	return &Upsample{Proj: nn.NewLinear(dim, 2*dim, true, seed), dim: dim}
}

func (u *Upsample) Forward(x *tensor.Array, grid Grid, padH, padW int) (*tensor.Array, Grid) {
	b := x.Dim(0)
	half := u.dim / 2
	x = u.Proj.Forward(x) // [b, len, 2*dim] = 4*half per token

	x = tensor.Reshape(x, b, grid.T, grid.H, grid.W, 2, 2, half)
	x = tensor.Transpose(x, 0, 1, 2, 4, 3, 5, 6)
	x = tensor.Reshape(x, b, grid.T, 2*grid.H, 2*grid.W, half)

	out := Grid{T: grid.T, H: 2*grid.H - padH, W: 2*grid.W - padW}
	if padH > 0 || padW > 0 {
		x = tensor.Slice(x,
			[]int{0, 0, 0, 0, 0},
			[]int{b, out.T, out.H, out.W, half})
	}
	return tensor.Reshape(x, b, out.Len(), half), out
}
