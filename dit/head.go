package dit

import (
	"github.com/latentlab/videodit/nn"
	"github.com/latentlab/videodit/tensor"
)

// Head is the output layer of the hierarchical network: a modulated norm
// whose shift and scale come from the combined conditioning embedding, then
// a projection expanding each token back to one patch worth of voxels.
type Head struct {
	Norm  *nn.LayerNorm `weight:"norm_out"`
	AdaLN *nn.Linear    `weight:"linear"`   // dim -> 2*dim
	Proj  *nn.Linear    `weight:"proj_out"` // dim -> pt*ph*pw*outChannels

	dim int
}

func NewHead(dim, pt, ph, pw, outChannels int, seed int64) *Head {
	return &Head{
		Norm:  nn.NewLayerNorm(dim, false),
		AdaLN: nn.NewLinear(dim, 2*dim, true, seed),
		Proj:  nn.NewLinear(dim, pt*ph*pw*outChannels, true, seed+1),
		dim:   dim,
	}
}

// Forward modulates and projects the final tokens. emb is the [batch, dim]
// conditioning embedding from AdaLNSingle.
func (h *Head) Forward(x, emb *tensor.Array) *tensor.Array {
	b := emb.Dim(0)
	packed := h.AdaLN.Forward(tensor.SiLU(emb)) // [b, 2*dim]
	shift := tensor.Reshape(tensor.Slice(packed, []int{0, 0}, []int{b, h.dim}), b, 1, h.dim)
	scale := tensor.Reshape(tensor.Slice(packed, []int{0, h.dim}, []int{b, 2 * h.dim}), b, 1, h.dim)

	out := tensor.Add(tensor.Mul(h.Norm.Forward(x), tensor.AddScalar(scale, 1)), shift)
	return h.Proj.Forward(out)
}
