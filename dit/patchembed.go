package dit

import (
	"fmt"
	"math"

	"github.com/latentlab/videodit/nn"
	"github.com/latentlab/videodit/tensor"
)

// Grid records the patch-divided extents carried alongside a token sequence.
// Losing it makes unpatchify impossible, so every function that reshapes the
// sequence threads it through explicitly.
type Grid struct {
	T, H, W int
}

// Len is the token sequence length for this grid.
func (g Grid) Len() int { return g.T * g.H * g.W }

// Patchify extracts non-overlapping (pt,ph,pw) blocks from a rank-5 latent
// and flattens each into one token. Height and width must divide evenly. An
// odd frame count is allowed: the first frame is a keyframe, so the sequence
// is front-padded with copies of it to reach frame' = (frames-1)/pt + 1
// patches. An even frame count must divide pt exactly.
//
// The returned padFrames is the number of padded latent frames to crop back
// off the front after Unpatchify.
func Patchify(x *tensor.Array, pt, ph, pw int) (*tensor.Array, Grid, int, error) {
	if x.Ndim() != 5 {
		return nil, Grid{}, 0, fmt.Errorf("dit: latent must be rank 5, got shape %v", x.Shape())
	}
	b, c, t, h, w := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3), x.Dim(4)
	if h%ph != 0 || w%pw != 0 {
		return nil, Grid{}, 0, fmt.Errorf("dit: spatial extent %dx%d not divisible by patch %dx%d", h, w, ph, pw)
	}

	var gt, pad int
	if t%2 == 1 {
		gt = (t-1)/pt + 1
		pad = gt*pt - t
	} else {
		if t%pt != 0 {
			return nil, Grid{}, 0, fmt.Errorf("dit: even frame count %d not divisible by patch_t %d", t, pt)
		}
		gt = t / pt
	}
	if pad > 0 {
		first := tensor.Slice(x, []int{0, 0, 0, 0, 0}, []int{b, c, 1, h, w})
		parts := make([]*tensor.Array, 0, pad+1)
		for i := 0; i < pad; i++ {
			parts = append(parts, first)
		}
		parts = append(parts, x)
		x = tensor.Concatenate(parts, 2)
	}

	grid := Grid{T: gt, H: h / ph, W: w / pw}
	x = tensor.Reshape(x, b, c, grid.T, pt, grid.H, ph, grid.W, pw)
	x = tensor.Transpose(x, 0, 2, 4, 6, 3, 5, 7, 1)
	return tensor.Reshape(x, b, grid.Len(), pt*ph*pw*c), grid, pad, nil
}

// Unpatchify is the exact inverse permutation of Patchify. tokens is
// [batch, grid.Len(), pt*ph*pw*channels]; padFrames leading latent frames are
// cropped from the result.
func Unpatchify(tokens *tensor.Array, grid Grid, pt, ph, pw, channels, padFrames int) *tensor.Array {
	b := tokens.Dim(0)
	x := tensor.Reshape(tokens, b, grid.T, grid.H, grid.W, pt, ph, pw, channels)
	x = tensor.Transpose(x, 0, 7, 1, 4, 2, 5, 3, 6)
	x = tensor.Reshape(x, b, channels, grid.T*pt, grid.H*ph, grid.W*pw)
	if padFrames > 0 {
		t := x.Dim(2)
		x = tensor.Slice(x,
			[]int{0, 0, padFrames, 0, 0},
			[]int{b, channels, t, x.Dim(3), x.Dim(4)})
	}
	return x
}

// PatchEmbedder turns a latent into a token sequence: patch extraction, a
// linear projection to the hidden width, and an interpolation-scaled 3D
// sin/cos position encoding.
type PatchEmbedder struct {
	Proj *nn.Linear `weight:"proj"`

	inChannels, hidden int
	pt, ph, pw         int
	scaleT, scaleH, scaleW float64
}

func NewPatchEmbedder(inChannels, hidden, pt, ph, pw int, scaleT, scaleH, scaleW float64, seed int64) *PatchEmbedder {
	return &PatchEmbedder{
		Proj:       nn.NewLinear(inChannels*pt*ph*pw, hidden, true, seed),
		inChannels: inChannels,
		hidden:     hidden,
		pt:         pt, ph: ph, pw: pw,
		scaleT: scaleT, scaleH: scaleH, scaleW: scaleW,
	}
}

func (p *PatchEmbedder) Forward(x *tensor.Array) (*tensor.Array, Grid, int, error) {
	if x.Ndim() == 5 && x.Dim(1) != p.inChannels {
		return nil, Grid{}, 0, fmt.Errorf("dit: latent has %d channels, model expects %d", x.Dim(1), p.inChannels)
	}
	tokens, grid, pad, err := Patchify(x, p.pt, p.ph, p.pw)
	if err != nil {
		return nil, Grid{}, 0, err
	}
	out := p.Proj.Forward(tokens)
	pos := positionEncoding3D(p.hidden, grid, p.scaleT, p.scaleH, p.scaleW)
	return tensor.Add(out, pos), grid, pad, nil
}

// positionEncoding3D builds a [1, grid.Len(), dim] sin/cos encoding. The
// temporal axis takes a quarter of the width, height and width split the
// rest. Positions are divided by the interpolation scale so a checkpoint
// trained at one resolution keeps its frequency layout at another.
func positionEncoding3D(dim int, grid Grid, scaleT, scaleH, scaleW float64) *tensor.Array {
	dT := dim / 4
	dS := (dim - dT) / 2

	embT := sincos1D(dT, grid.T, scaleT)
	embH := sincos1D(dS, grid.H, scaleH)
	embW := sincos1D(dS, grid.W, scaleW)

	out := tensor.Zeros(1, grid.Len(), dim)
	i := 0
	for t := 0; t < grid.T; t++ {
		for h := 0; h < grid.H; h++ {
			for w := 0; w < grid.W; w++ {
				dst := out.Data()[i*dim : (i+1)*dim]
				copy(dst[:dT], embT.Data()[t*dT:(t+1)*dT])
				copy(dst[dT:dT+dS], embH.Data()[h*dS:(h+1)*dS])
				copy(dst[dT+dS:], embW.Data()[w*dS:(w+1)*dS])
				i++
			}
		}
	}
	return out
}

func sincos1D(dim, n int, scale float64) *tensor.Array {
	if scale <= 0 {
		scale = 1
	}
	half := dim / 2
	out := tensor.Zeros(n, dim)
	for pos := 0; pos < n; pos++ {
		p := float64(pos) / scale
		for j := 0; j < half; j++ {
			omega := 1 / math.Pow(10000, float64(j)/float64(half))
			out.Set(float32(math.Sin(p*omega)), pos, j)
			out.Set(float32(math.Cos(p*omega)), pos, j+half)
		}
	}
	return out
}
