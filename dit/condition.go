package dit

import (
	"fmt"

	"github.com/latentlab/videodit/nn"
	"github.com/latentlab/videodit/tensor"
)

// Modulation holds the six AdaLN parameter vectors derived once per forward
// pass and shared read-only by every block of the matching width. Each is
// [batch, 1, dim] so it broadcasts over the token axis.
type Modulation struct {
	ShiftMSA, ScaleMSA, GateMSA *tensor.Array
	ShiftMLP, ScaleMLP, GateMLP *tensor.Array
}

// Conditioning is the per-pass output of AdaLNSingle: the combined embedding
// (consumed again by the output head) and the block modulation set.
type Conditioning struct {
	Emb *tensor.Array // [batch, dim]
	Mod *Modulation
}

// TimestepEmbedder maps a scalar diffusion timestep per sample to a hidden
// vector: 256-wide sinusoidal features through a two-layer MLP.
type TimestepEmbedder struct {
	In  *nn.Linear `weight:"linear_1"`
	Out *nn.Linear `weight:"linear_2"`
}

func NewTimestepEmbedder(dim int, seed int64) *TimestepEmbedder {
	return &TimestepEmbedder{
		In:  nn.NewLinear(256, dim, true, seed),
		Out: nn.NewLinear(dim, dim, true, seed+1),
	}
}

func (e *TimestepEmbedder) Forward(t *tensor.Array) *tensor.Array {
	emb := nn.SinusoidalEmbedding(t, 256, 10000)
	return e.Out.Forward(tensor.SiLU(e.In.Forward(emb)))
}

// PooledProjector folds a pooled text embedding into the timestep embedding.
// When the caller has no pooled vector, a learned null embedding stands in,
// so unconditional sampling stays on the same code path.
type PooledProjector struct {
	Null *tensor.Array `weight:"null_embedding"`
	In   *nn.Linear    `weight:"linear_1"`
	Out  *nn.Linear    `weight:"linear_2"`
}

func NewPooledProjector(pooledDim, dim int, seed int64) *PooledProjector {
	return &PooledProjector{
		Null: tensor.MulScalar(tensor.RandomNormal(seed, pooledDim), 0.02),
		In:   nn.NewLinear(pooledDim, dim, true, seed+1),
		Out:  nn.NewLinear(dim, dim, true, seed+2),
	}
}

func (p *PooledProjector) Forward(pooled *tensor.Array, batch int) *tensor.Array {
	if pooled == nil {
		pooled = tensor.BroadcastTo(tensor.ExpandDims(p.Null, 0), batch, p.Null.Dim(0))
	}
	return p.Out.Forward(tensor.SiLU(p.In.Forward(pooled)))
}

// CaptionProjector maps frozen text-encoder embeddings into the hidden width
// the cross-attention layers read.
type CaptionProjector struct {
	In  *nn.Linear `weight:"linear_1"`
	Out *nn.Linear `weight:"linear_2"`
}

func NewCaptionProjector(captionDim, dim int, seed int64) *CaptionProjector {
	return &CaptionProjector{
		In:  nn.NewLinear(captionDim, dim, true, seed),
		Out: nn.NewLinear(dim, dim, true, seed+1),
	}
}

func (c *CaptionProjector) Forward(caption *tensor.Array) (*tensor.Array, error) {
	if caption.Ndim() != 3 {
		return nil, fmt.Errorf("dit: caption embedding must be rank 3, got shape %v", caption.Shape())
	}
	if caption.Dim(2) != c.In.In() {
		return nil, fmt.Errorf("dit: caption width %d, projection expects %d", caption.Dim(2), c.In.In())
	}
	return c.Out.Forward(tensor.GELU(c.In.Forward(caption))), nil
}

// AdaLNSingle produces one modulation set per forward pass at one hidden
// width. The U-shaped variant instantiates several, one per stage width.
type AdaLNSingle struct {
	Timestep *TimestepEmbedder `weight:"emb.timestep_embedder"`
	Pooled   *PooledProjector  `weight:"emb.pooled_projector"`
	Proj     *nn.Linear        `weight:"linear"`

	dim int
}

// NewAdaLNSingle builds the conditioning encoder. pooledDim of 0 disables
// pooled text conditioning entirely.
func NewAdaLNSingle(dim, pooledDim int, seed int64) *AdaLNSingle {
	a := &AdaLNSingle{
		Timestep: NewTimestepEmbedder(dim, seed),
		Proj:     nn.NewLinear(dim, 6*dim, true, seed+10),
		dim:      dim,
	}
	if pooledDim > 0 {
		a.Pooled = NewPooledProjector(pooledDim, dim, seed+20)
	}
	return a
}

// Forward derives the conditioning from a [batch] timestep tensor and an
// optional pooled text embedding.
func (a *AdaLNSingle) Forward(t, pooled *tensor.Array) (*Conditioning, error) {
	if t.Ndim() != 1 {
		return nil, fmt.Errorf("dit: timestep must be rank 1, got shape %v", t.Shape())
	}
	b := t.Dim(0)
	emb := a.Timestep.Forward(t)
	if a.Pooled != nil {
		if pooled != nil && (pooled.Ndim() != 2 || pooled.Dim(0) != b) {
			return nil, fmt.Errorf("dit: pooled embedding shape %v does not match batch %d", pooled.Shape(), b)
		}
		emb = tensor.Add(emb, a.Pooled.Forward(pooled, b))
	}

	packed := a.Proj.Forward(tensor.SiLU(emb)) // [b, 6*dim]
	chunk := func(i int) *tensor.Array {
		s := tensor.Slice(packed, []int{0, i * a.dim}, []int{b, (i + 1) * a.dim})
		return tensor.Reshape(s, b, 1, a.dim)
	}
	return &Conditioning{
		Emb: emb,
		Mod: &Modulation{
			ShiftMSA: chunk(0), ScaleMSA: chunk(1), GateMSA: chunk(2),
			ShiftMLP: chunk(3), ScaleMLP: chunk(4), GateMLP: chunk(5),
		},
	}, nil
}
