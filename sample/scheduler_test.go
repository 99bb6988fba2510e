package sample

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentlab/videodit/tensor"
)

func TestFlowMatchEulerSchedule(t *testing.T) {
	s := NewFlowMatchEuler(1)
	require.NoError(t, s.SetTimesteps(4))
	ts := s.Timesteps()
	require.Len(t, ts, 4)
	for i := 1; i < len(ts); i++ {
		require.Less(t, ts[i], ts[i-1], "timesteps must descend")
	}
	require.InDelta(t, 1000, ts[0], 1e-3)
}

// Integrating a constant velocity over the whole schedule must move the
// latent by exactly -sigma(0) * v.
func TestFlowMatchEulerConstantVelocity(t *testing.T) {
	s := NewFlowMatchEuler(1)
	require.NoError(t, s.SetTimesteps(8))

	x := tensor.Full(2, 1, 4)
	v := tensor.Full(3, 1, 4)
	var err error
	for i := range s.Timesteps() {
		x, err = s.Step(v, x, i)
		require.NoError(t, err)
	}
	// x = 2 - 1*3
	for _, got := range x.Data() {
		require.InDelta(t, -1, got, 1e-5)
	}
}

func TestFlowMatchEulerShiftBiasesSchedule(t *testing.T) {
	plain := NewFlowMatchEuler(1)
	shifted := NewFlowMatchEuler(3)
	require.NoError(t, plain.SetTimesteps(10))
	require.NoError(t, shifted.SetTimesteps(10))
	// A shift above 1 holds sigma higher for longer.
	require.Greater(t, shifted.Timesteps()[5], plain.Timesteps()[5])
}

func TestFlowMatchEulerErrors(t *testing.T) {
	s := NewFlowMatchEuler(1)
	require.Error(t, s.SetTimesteps(0))

	require.NoError(t, s.SetTimesteps(2))
	_, err := s.Step(tensor.Zeros(1), tensor.Zeros(1), 5)
	require.Error(t, err)
}

func TestDDIMSchedule(t *testing.T) {
	d := NewDDIM(1000)
	require.NoError(t, d.SetTimesteps(10))
	ts := d.Timesteps()
	require.Len(t, ts, 10)
	require.InDelta(t, 999, ts[0], 1e-3)
	for i := 1; i < len(ts); i++ {
		require.Less(t, ts[i], ts[i-1])
	}

	require.Error(t, d.SetTimesteps(0))
	require.Error(t, d.SetTimesteps(2000))
}

func TestDDIMStepShapes(t *testing.T) {
	d := NewDDIM(100)
	require.NoError(t, d.SetTimesteps(5))

	x := d.InitNoise(1, 1, 4, 2, 2)
	eps := tensor.Zeros(1, 4, 2, 2)
	var err error
	for i := range d.Timesteps() {
		x, err = d.Step(eps, x, i)
		require.NoError(t, err)
		require.Equal(t, []int{1, 4, 2, 2}, x.Shape())
	}
}

func TestInitNoiseSeeded(t *testing.T) {
	s := NewFlowMatchEuler(1)
	a := s.InitNoise(42, 2, 3)
	b := s.InitNoise(42, 2, 3)
	require.True(t, tensor.AllClose(a, b, 0))
}
