package dit

import (
	"fmt"

	"github.com/latentlab/videodit/tensor"
)

// ShardPlan splits a token sequence along its temporal axis across a world
// of cooperating workers. The plan only does the data-distribution
// arithmetic: shard boundaries, per-rank frame windows for mask slicing, and
// reassembly. The attention algorithm itself is unchanged; once shards are
// reassembled the result must match the unsharded computation exactly.
type ShardPlan struct {
	World int
	grid  Grid
	// token frames owned per rank
	framesPerRank int
}

// NewShardPlan validates that the token grid's temporal extent divides the
// world size evenly.
func NewShardPlan(grid Grid, world int) (ShardPlan, error) {
	if world < 1 {
		return ShardPlan{}, fmt.Errorf("dit: world size must be at least 1, got %d", world)
	}
	if grid.T%world != 0 {
		return ShardPlan{}, fmt.Errorf("dit: %d token frames not divisible by world size %d", grid.T, world)
	}
	return ShardPlan{World: world, grid: grid, framesPerRank: grid.T / world}, nil
}

// FrameWindow returns the half-open token-frame interval [lo, hi) owned by
// rank.
func (p ShardPlan) FrameWindow(rank int) (int, int) {
	if rank < 0 || rank >= p.World {
		panic(fmt.Sprintf("dit: rank %d out of range for world %d", rank, p.World))
	}
	return rank * p.framesPerRank, (rank + 1) * p.framesPerRank
}

// ShardGrid is the token grid each rank sees.
func (p ShardPlan) ShardGrid() Grid {
	return Grid{T: p.framesPerRank, H: p.grid.H, W: p.grid.W}
}

// Shard extracts rank's slice of a [batch, len, dim] token sequence.
func (p ShardPlan) Shard(tokens *tensor.Array, rank int) *tensor.Array {
	lo, hi := p.FrameWindow(rank)
	per := p.grid.H * p.grid.W
	b, d := tokens.Dim(0), tokens.Dim(2)
	return tensor.Slice(tokens, []int{0, lo * per, 0}, []int{b, hi * per, d})
}

// Gather reassembles per-rank shards, rank order, into the full sequence.
func (p ShardPlan) Gather(shards []*tensor.Array) (*tensor.Array, error) {
	if len(shards) != p.World {
		return nil, fmt.Errorf("dit: gathered %d shards for world size %d", len(shards), p.World)
	}
	return tensor.Concatenate(shards, 1), nil
}

// SliceMaskFrames cuts a latent-resolution keep-mask [batch, frames, height,
// width] down to the frame window owned by rank, before any pooling. The
// window is expressed in latent frames: patchT latent frames per token
// frame, with the whole mask first truncated to the frames the world
// actually covers.
func (p ShardPlan) SliceMaskFrames(mask *tensor.Array, rank, patchT int) (*tensor.Array, error) {
	if mask.Ndim() != 4 {
		return nil, fmt.Errorf("dit: mask must be rank 4, got shape %v", mask.Shape())
	}
	covered := p.grid.T * patchT
	if mask.Dim(1) < covered {
		return nil, fmt.Errorf("dit: mask has %d frames, plan covers %d", mask.Dim(1), covered)
	}
	lo, hi := p.FrameWindow(rank)
	b, h, w := mask.Dim(0), mask.Dim(2), mask.Dim(3)
	return tensor.Slice(mask,
		[]int{0, lo * patchT, 0, 0},
		[]int{b, hi * patchT, h, w}), nil
}
