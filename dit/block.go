package dit

import (
	"fmt"
	"math"

	"github.com/latentlab/videodit/nn"
	"github.com/latentlab/videodit/tensor"
)

// SelfAttention is multi-head attention over the token sequence, with RMS
// query/key normalization.
type SelfAttention struct {
	Q *nn.Linear  `weight:"to_q"`
	K *nn.Linear  `weight:"to_k"`
	V *nn.Linear  `weight:"to_v"`
	O *nn.Linear  `weight:"to_out"`
	QNorm *nn.RMSNorm `weight:"norm_q"`
	KNorm *nn.RMSNorm `weight:"norm_k"`

	heads, headDim int
	compute        nn.Compute
}

func NewSelfAttention(dim, heads, headDim int, compute nn.Compute, seed int64) *SelfAttention {
	inner := heads * headDim
	return &SelfAttention{
		Q:     nn.NewLinear(dim, inner, true, seed),
		K:     nn.NewLinear(dim, inner, true, seed+1),
		V:     nn.NewLinear(dim, inner, true, seed+2),
		O:     nn.NewLinear(inner, dim, true, seed+3),
		QNorm: nn.NewRMSNorm(headDim),
		KNorm: nn.NewRMSNorm(headDim),
		heads: heads, headDim: headDim,
		compute: compute,
	}
}

func splitHeads(x *tensor.Array, heads, headDim int) *tensor.Array {
	b, l := x.Dim(0), x.Dim(1)
	return tensor.Transpose(tensor.Reshape(x, b, l, heads, headDim), 0, 2, 1, 3)
}

func mergeHeads(x *tensor.Array) *tensor.Array {
	b, h, l, d := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	return tensor.Reshape(tensor.Transpose(x, 0, 2, 1, 3), b, l, h*d)
}

func (a *SelfAttention) Forward(x, bias *tensor.Array) *tensor.Array {
	q := a.QNorm.Forward(splitHeads(a.Q.Forward(x), a.heads, a.headDim))
	k := a.KNorm.Forward(splitHeads(a.K.Forward(x), a.heads, a.headDim))
	v := splitHeads(a.V.Forward(x), a.heads, a.headDim)
	scale := float32(1 / math.Sqrt(float64(a.headDim)))
	return a.O.Forward(mergeHeads(a.compute.Attend(q, k, v, bias, scale)))
}

// CrossAttention attends tokens to projected caption embeddings.
type CrossAttention struct {
	Q *nn.Linear  `weight:"to_q"`
	K *nn.Linear  `weight:"to_k"`
	V *nn.Linear  `weight:"to_v"`
	O *nn.Linear  `weight:"to_out"`
	QNorm *nn.RMSNorm `weight:"norm_q"`
	KNorm *nn.RMSNorm `weight:"norm_k"`

	heads, headDim int
	compute        nn.Compute
}

func NewCrossAttention(dim, heads, headDim int, compute nn.Compute, seed int64) *CrossAttention {
	inner := heads * headDim
	return &CrossAttention{
		Q:     nn.NewLinear(dim, inner, true, seed),
		K:     nn.NewLinear(dim, inner, true, seed+1),
		V:     nn.NewLinear(dim, inner, true, seed+2),
		O:     nn.NewLinear(inner, dim, true, seed+3),
		QNorm: nn.NewRMSNorm(headDim),
		KNorm: nn.NewRMSNorm(headDim),
		heads: heads, headDim: headDim,
		compute: compute,
	}
}

func (a *CrossAttention) Forward(x, text, bias *tensor.Array) *tensor.Array {
	q := a.QNorm.Forward(splitHeads(a.Q.Forward(x), a.heads, a.headDim))
	k := a.KNorm.Forward(splitHeads(a.K.Forward(text), a.heads, a.headDim))
	v := splitHeads(a.V.Forward(text), a.heads, a.headDim)
	scale := float32(1 / math.Sqrt(float64(a.headDim)))
	return a.O.Forward(mergeHeads(a.compute.Attend(q, k, v, bias, scale)))
}

// Block is the repeated transformer unit: AdaLN-modulated self-attention,
// cross-attention to text, and a gated feed-forward. The per-block
// ScaleShiftTable is added to the shared modulation before use.
type Block struct {
	ScaleShiftTable *tensor.Array   `weight:"scale_shift_table"` // [6, dim]
	Norm1           *nn.LayerNorm   `weight:"norm1"`
	Attn            *SelfAttention  `weight:"attn1"`
	Cross           *CrossAttention `weight:"attn2"`
	Norm2           *nn.LayerNorm   `weight:"norm2"`
	FF              *nn.FeedForward `weight:"ff"`

	dim int
}

func NewBlock(dim, heads, headDim int, mlpRatio float32, compute nn.Compute, seed int64) *Block {
	return &Block{
		ScaleShiftTable: tensor.MulScalar(tensor.RandomNormal(seed, 6, dim), 0.02),
		Norm1:           nn.NewLayerNorm(dim, false),
		Attn:            NewSelfAttention(dim, heads, headDim, compute, seed+1),
		Cross:           NewCrossAttention(dim, heads, headDim, compute, seed+5),
		Norm2:           nn.NewLayerNorm(dim, false),
		FF:              nn.NewFeedForward(dim, int(float32(dim)*mlpRatio), seed+9),
		dim:             dim,
	}
}

// tableRow lifts row i of the scale-shift table to [1, 1, dim] and adds it to
// the shared modulation vector.
func (b *Block) tableRow(i int, shared *tensor.Array) *tensor.Array {
	row := tensor.Slice(b.ScaleShiftTable, []int{i, 0}, []int{i + 1, b.dim})
	return tensor.Add(tensor.Reshape(row, 1, 1, b.dim), shared)
}

// Forward runs one block. selfBias and crossBias may be nil.
func (b *Block) Forward(x, text *tensor.Array, mod *Modulation, selfBias, crossBias *tensor.Array) (*tensor.Array, error) {
	if x.Dim(-1) != b.dim {
		return nil, fmt.Errorf("dit: block width %d received tokens of width %d", b.dim, x.Dim(-1))
	}

	shiftMSA := b.tableRow(0, mod.ShiftMSA)
	scaleMSA := b.tableRow(1, mod.ScaleMSA)
	gateMSA := b.tableRow(2, mod.GateMSA)
	shiftMLP := b.tableRow(3, mod.ShiftMLP)
	scaleMLP := b.tableRow(4, mod.ScaleMLP)
	gateMLP := b.tableRow(5, mod.GateMLP)

	h := tensor.Add(tensor.Mul(b.Norm1.Forward(x), tensor.AddScalar(scaleMSA, 1)), shiftMSA)
	x = tensor.Add(x, tensor.Mul(gateMSA, b.Attn.Forward(h, selfBias)))

	x = tensor.Add(x, b.Cross.Forward(x, text, crossBias))

	h = tensor.Add(tensor.Mul(b.Norm2.Forward(x), tensor.AddScalar(scaleMLP, 1)), shiftMLP)
	x = tensor.Add(x, tensor.Mul(gateMLP, b.FF.Forward(h)))
	return x, nil
}
