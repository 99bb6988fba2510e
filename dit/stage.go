package dit

import (
	"github.com/latentlab/videodit/nn"
	"github.com/latentlab/videodit/tensor"
)

// Stage is an ordered run of blocks sharing one width, resolution, and
// sparsity configuration. Output shape always equals input shape.
type Stage struct {
	Blocks []*Block

	pattern Pattern
	sparseN int
}

func NewStage(depth, dim, heads, headDim int, mlpRatio float32, pattern Pattern, sparseN int, compute nn.Compute, seed int64) *Stage {
	s := &Stage{pattern: pattern, sparseN: sparseN}
	for i := 0; i < depth; i++ {
		s.Blocks = append(s.Blocks, NewBlock(dim, heads, headDim, mlpRatio, compute, seed+int64(i)*100))
	}
	return s
}

// Forward runs the stage. mask may be nil. Consecutive blocks alternate
// sparse group parity so every query reaches the full sequence across any
// two adjacent blocks.
func (s *Stage) Forward(x, text *tensor.Array, mod *Modulation, mask *Mask, crossBias *tensor.Array, grid Grid) (*tensor.Array, error) {
	var maskBias *tensor.Array
	if mask != nil {
		maskBias = mask.Bias()
	}

	// At most two distinct sparse biases per stage, one per parity.
	var sparseBias [2]*tensor.Array
	if s.pattern != Dense && s.sparseN > 1 {
		sparseBias[0] = SparseBias(s.pattern, grid, s.sparseN, 0)
		sparseBias[1] = SparseBias(s.pattern, grid, s.sparseN, 1)
	}

	var err error
	for i, blk := range s.Blocks {
		selfBias := maskBias
		if sb := sparseBias[i%2]; sb != nil {
			if selfBias != nil {
				selfBias = tensor.Add(selfBias, sb)
			} else {
				selfBias = tensor.Reshape(sb, 1, 1, grid.Len(), grid.Len())
			}
		}
		x, err = blk.Forward(x, text, mod, selfBias, crossBias)
		if err != nil {
			return nil, err
		}
	}
	return x, nil
}

// skipStack holds encoder outputs for the mirrored decoder stages. Underflow
// is a construction bug in stage wiring, never an input condition, so it
// panics rather than returning an error.
type skipStack struct {
	items []*tensor.Array
}

func (s *skipStack) push(x *tensor.Array) {
	s.items = append(s.items, x)
}

func (s *skipStack) pop() *tensor.Array {
	if len(s.items) == 0 {
		panic("dit: skip stack underflow")
	}
	x := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return x
}

func (s *skipStack) depth() int { return len(s.items) }
