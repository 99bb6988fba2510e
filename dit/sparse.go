package dit

import (
	"github.com/latentlab/videodit/tensor"
)

// Pattern selects how self-attention is restricted within a block.
type Pattern int

const (
	// Dense attends every position to every position.
	Dense Pattern = iota
	// Sparse1D groups the flattened token sequence into runs of sparseN
	// tokens.
	Sparse1D
	// Sparse2D groups tokens into sparseN x sparseN spatial tiles per
	// frame, with checkerboard parity.
	Sparse2D
)

// SparseBias builds a [len, len] additive bias restricting attention to a
// structured neighborhood. Tokens always attend their own cell. Beyond that,
// groupParity 0 attends cells of the query cell's parity and groupParity 1
// attends the complementary parity, so two consecutive blocks with
// alternating parity jointly cover the full sequence from every query.
//
// Returns nil for dense patterns or sparseN <= 1, meaning no restriction.
func SparseBias(p Pattern, grid Grid, sparseN, groupParity int) *tensor.Array {
	if p == Dense || sparseN <= 1 {
		return nil
	}

	l := grid.Len()
	cell := make([]int, l)
	parity := make([]int, l)
	switch p {
	case Sparse1D:
		for i := 0; i < l; i++ {
			cell[i] = i / sparseN
			parity[i] = cell[i] % 2
		}
	case Sparse2D:
		tilesW := (grid.W + sparseN - 1) / sparseN
		tilesH := (grid.H + sparseN - 1) / sparseN
		for i := 0; i < l; i++ {
			t := i / (grid.H * grid.W)
			rem := i % (grid.H * grid.W)
			th := (rem / grid.W) / sparseN
			tw := (rem % grid.W) / sparseN
			cell[i] = (t*tilesH+th)*tilesW + tw
			parity[i] = (th + tw) % 2
		}
	}

	bias := tensor.Full(maskDiscard, l, l)
	data := bias.Data()
	for i := 0; i < l; i++ {
		row := data[i*l : (i+1)*l]
		want := parity[i] ^ (groupParity & 1)
		for j := 0; j < l; j++ {
			if cell[j] == cell[i] || parity[j] == want {
				row[j] = 0
			}
		}
	}
	return bias
}
