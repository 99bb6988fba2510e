// Package text is the frozen text-conditioning boundary. The actual language
// model lives outside this repository; the diffusion pipeline only needs the
// embed contract plus a small deterministic tokenizer for driving it.
package text

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/latentlab/videodit/tensor"
)

// Encoder embeds token ids into a sequence embedding and, when the backbone
// provides one, a pooled embedding. Frozen: nothing here is trained.
type Encoder interface {
	Embed(ids []int, mask []float32) (sequence, pooled *tensor.Array, err error)
	Dim() int
	MaxLen() int
}

// Table is an embedding-table encoder: one frozen matrix looked up by id,
// with a masked mean as the pooled embedding. Real checkpoints load the
// table through the safetensors package.
type Table struct {
	Weights *tensor.Array `weight:"embedding.weight"` // [vocab, dim]
	Limit   int
}

// NewTable creates a seeded random table, the debug stand-in for a real
// encoder checkpoint.
func NewTable(vocab, dim, maxLen int, seed int64) *Table {
	return &Table{
		Weights: tensor.MulScalar(tensor.RandomNormal(seed, vocab, dim), 0.02),
		Limit:   maxLen,
	}
}

func (t *Table) Dim() int    { return t.Weights.Dim(1) }
func (t *Table) MaxLen() int { return t.Limit }

func (t *Table) Embed(ids []int, mask []float32) (*tensor.Array, *tensor.Array, error) {
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("text: cannot embed an empty id sequence")
	}
	if mask != nil && len(mask) != len(ids) {
		return nil, nil, fmt.Errorf("text: mask length %d does not match %d ids", len(mask), len(ids))
	}
	vocab, dim := t.Weights.Dim(0), t.Weights.Dim(1)

	seq := tensor.Zeros(1, len(ids), dim)
	pooled := tensor.Zeros(1, dim)
	var kept float32
	for i, id := range ids {
		if id < 0 || id >= vocab {
			return nil, nil, fmt.Errorf("text: id %d out of vocabulary %d", id, vocab)
		}
		row := t.Weights.Data()[id*dim : (id+1)*dim]
		copy(seq.Data()[i*dim:(i+1)*dim], row)

		keep := float32(1)
		if mask != nil {
			keep = mask[i]
		}
		if keep != 0 {
			kept++
			for j, v := range row {
				pooled.Data()[j] += v
			}
		}
	}
	if kept > 0 {
		pooled = tensor.MulScalar(pooled, 1/kept)
	}
	return seq, pooled, nil
}

// Tokenizer maps prompts to ids for the debug Table encoder: lowercase
// whitespace words hashed into the vocabulary, padded or truncated to the
// encoder's maximum length. Deterministic, so prompts reproduce exactly.
type Tokenizer struct {
	Vocab  int
	MaxLen int
}

// Encode returns ids and a keep-mask of equal length MaxLen.
func (t Tokenizer) Encode(prompt string) ([]int, []float32) {
	ids := make([]int, t.MaxLen)
	mask := make([]float32, t.MaxLen)
	words := strings.Fields(strings.ToLower(prompt))
	for i := 0; i < t.MaxLen && i < len(words); i++ {
		h := fnv.New32a()
		h.Write([]byte(words[i]))
		// id 0 is reserved as padding
		ids[i] = 1 + int(h.Sum32()%uint32(t.Vocab-1))
		mask[i] = 1
	}
	return ids, mask
}
