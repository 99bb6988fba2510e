package text

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/tensor"
)

func TestTableEmbedShapes(t *testing.T) {
	enc := NewTable(100, 16, 8, 1)
	seq, pooled, err := enc.Embed([]int{5, 9, 0}, []float32{1, 1, 0})
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 16}, seq.Shape())
	require.Equal(t, []int{1, 16}, pooled.Shape())
}

func TestTablePooledIgnoresMasked(t *testing.T) {
	enc := NewTable(100, 8, 8, 2)
	_, onlyFirst, err := enc.Embed([]int{7, 11}, []float32{1, 0})
	require.NoError(t, err)
	seq, _, err := enc.Embed([]int{7}, nil)
	require.NoError(t, err)
	// Pooled of {7, masked 11} equals the row of 7 alone.
	row := tensor.Reshape(seq, 1, 8)
	require.True(t, tensor.AllClose(row, onlyFirst, 1e-6))
}

func TestTableEmbedErrors(t *testing.T) {
	enc := NewTable(10, 8, 8, 3)

	_, _, err := enc.Embed(nil, nil)
	require.Error(t, err)

	_, _, err = enc.Embed([]int{11}, nil)
	require.Error(t, err)

	_, _, err = enc.Embed([]int{1, 2}, []float32{1})
	require.Error(t, err)
}

func TestTokenizerDeterministic(t *testing.T) {
	tok := Tokenizer{Vocab: 1000, MaxLen: 6}
	ids1, mask1 := tok.Encode("A cat surfing the waves")
	ids2, _ := tok.Encode("a cat surfing the waves")
	require.Equal(t, ids1, ids2, "tokenization is case-insensitive and deterministic")

	require.Equal(t, []float32{1, 1, 1, 1, 1, 0}, mask1)
	require.Equal(t, 0, ids1[5], "padding uses the reserved id")

	for _, id := range ids1[:5] {
		require.Greater(t, id, 0)
		require.Less(t, id, 1000)
	}
}
