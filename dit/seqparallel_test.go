package dit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/tensor"
)

func TestShardGatherIdentity(t *testing.T) {
	grid := Grid{T: 8, H: 2, W: 3}
	tokens := tensor.RandomNormal(1, 2, grid.Len(), 16)

	plan, err := NewShardPlan(grid, 4)
	require.NoError(t, err)
	require.Equal(t, Grid{T: 2, H: 2, W: 3}, plan.ShardGrid())

	shards := make([]*tensor.Array, plan.World)
	for rank := 0; rank < plan.World; rank++ {
		shards[rank] = plan.Shard(tokens, rank)
		require.Equal(t, []int{2, plan.ShardGrid().Len(), 16}, shards[rank].Shape())
	}
	gathered, err := plan.Gather(shards)
	require.NoError(t, err)
	require.True(t, tensor.AllClose(tokens, gathered, 0))
}

func TestShardPlanRejectsIndivisibleWorld(t *testing.T) {
	_, err := NewShardPlan(Grid{T: 8, H: 2, W: 2}, 3)
	require.Error(t, err)

	_, err = NewShardPlan(Grid{T: 8, H: 2, W: 2}, 0)
	require.Error(t, err)
}

func TestFrameWindows(t *testing.T) {
	plan, err := NewShardPlan(Grid{T: 8, H: 1, W: 1}, 4)
	require.NoError(t, err)

	lo, hi := plan.FrameWindow(0)
	require.Equal(t, 0, lo)
	require.Equal(t, 2, hi)
	lo, hi = plan.FrameWindow(3)
	require.Equal(t, 6, lo)
	require.Equal(t, 8, hi)

	require.Panics(t, func() { plan.FrameWindow(4) })
}

// Per-rank mask slices, pooled independently, must concatenate to the same
// token mask the unsharded path pools.
func TestSliceMaskFramesConsistentWithPooling(t *testing.T) {
	const pt = 2
	grid := Grid{T: 4, H: 2, W: 2} // token frames after patchify of 8 latent frames
	plan, err := NewShardPlan(grid, 2)
	require.NoError(t, err)

	mask := tensor.RandomUniform(5, 1, 8, 4, 4)
	for i, v := range mask.Data() {
		if v > 0.5 {
			mask.Data()[i] = 1
		} else {
			mask.Data()[i] = 0
		}
	}

	full, err := NewTokenMask(mask, 8, 4, 4, pt, 2, 2)
	require.NoError(t, err)
	fullBias := full.Bias()

	var parts []*tensor.Array
	for rank := 0; rank < plan.World; rank++ {
		slice, err := plan.SliceMaskFrames(mask, rank, pt)
		require.NoError(t, err)
		require.Equal(t, []int{1, 4, 4, 4}, slice.Shape())

		m, err := NewTokenMask(slice, 4, 4, 4, pt, 2, 2)
		require.NoError(t, err)
		parts = append(parts, m.Bias())
	}
	combined := tensor.Concatenate(parts, 3)
	require.True(t, tensor.AllClose(fullBias, combined, 0))
}

func TestSliceMaskFramesErrors(t *testing.T) {
	plan, err := NewShardPlan(Grid{T: 4, H: 2, W: 2}, 2)
	require.NoError(t, err)

	_, err = plan.SliceMaskFrames(tensor.Zeros(1, 4, 4), 0, 2)
	require.Error(t, err)

	// Mask covering fewer frames than the plan.
	_, err = plan.SliceMaskFrames(tensor.Zeros(1, 4, 4, 4), 0, 2)
	require.Error(t, err)
}
