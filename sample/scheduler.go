// Package sample runs the iterative denoising loop: schedulers supplying the
// update rule and a pipeline orchestrating text conditioning, classifier-free
// guidance, and latent decoding.
package sample

import (
	"fmt"
	"math"

	"github.com/latentlab/videodit/tensor"
)

// Scheduler drives one denoising trajectory. SetTimesteps must be called
// before the loop; Step consumes the model output for step i and returns the
// next latent.
type Scheduler interface {
	SetTimesteps(steps int) error
	// Timesteps are the model-facing timestep values, descending.
	Timesteps() []float32
	// InitNoise draws the initial latent for the trajectory.
	InitNoise(seed int64, shape ...int) *tensor.Array
	// ScaleModelInput conditions the latent before the model call; most
	// schedulers return it unchanged.
	ScaleModelInput(x *tensor.Array, step int) *tensor.Array
	// Step applies the update rule for step i.
	Step(modelOut, x *tensor.Array, step int) (*tensor.Array, error)
}

// FlowMatchEuler integrates the velocity field predicted by flow-matched
// models with explicit Euler steps over a shifted sigma schedule.
type FlowMatchEuler struct {
	// Shift biases the schedule toward high-noise regions; 1 is uniform.
	Shift float64

	sigmas    []float64
	timesteps []float32
}

func NewFlowMatchEuler(shift float64) *FlowMatchEuler {
	if shift <= 0 {
		shift = 1
	}
	return &FlowMatchEuler{Shift: shift}
}

func (s *FlowMatchEuler) SetTimesteps(steps int) error {
	if steps < 1 {
		return fmt.Errorf("sample: need at least 1 step, got %d", steps)
	}
	s.sigmas = make([]float64, steps+1)
	s.timesteps = make([]float32, steps)
	for i := 0; i < steps; i++ {
		u := 1 - float64(i)/float64(steps)
		sigma := s.Shift * u / (1 + (s.Shift-1)*u)
		s.sigmas[i] = sigma
		s.timesteps[i] = float32(sigma * 1000)
	}
	s.sigmas[steps] = 0
	return nil
}

func (s *FlowMatchEuler) Timesteps() []float32 { return s.timesteps }

func (s *FlowMatchEuler) InitNoise(seed int64, shape ...int) *tensor.Array {
	return tensor.RandomNormal(seed, shape...)
}

func (s *FlowMatchEuler) ScaleModelInput(x *tensor.Array, step int) *tensor.Array { return x }

func (s *FlowMatchEuler) Step(modelOut, x *tensor.Array, step int) (*tensor.Array, error) {
	if step < 0 || step >= len(s.timesteps) {
		return nil, fmt.Errorf("sample: step %d out of range %d", step, len(s.timesteps))
	}
	dt := s.sigmas[step+1] - s.sigmas[step]
	return tensor.Add(x, tensor.MulScalar(modelOut, float32(dt))), nil
}

// DDIM is the deterministic (eta=0) sampler for epsilon-prediction models
// over a squared-cosine alpha schedule.
type DDIM struct {
	TrainSteps int

	alphaBar  []float64 // cumulative alpha per training step
	steps     []int
	timesteps []float32
}

func NewDDIM(trainSteps int) *DDIM {
	if trainSteps <= 0 {
		trainSteps = 1000
	}
	d := &DDIM{TrainSteps: trainSteps, alphaBar: make([]float64, trainSteps)}
	// squared cosine schedule
	f := func(t float64) float64 {
		v := math.Cos((t + 0.008) / 1.008 * math.Pi / 2)
		return v * v
	}
	f0 := f(0)
	for i := range d.alphaBar {
		d.alphaBar[i] = f(float64(i+1)/float64(trainSteps)) / f0
	}
	return d
}

func (d *DDIM) SetTimesteps(steps int) error {
	if steps < 1 || steps > d.TrainSteps {
		return fmt.Errorf("sample: inference steps %d out of range [1, %d]", steps, d.TrainSteps)
	}
	stride := d.TrainSteps / steps
	d.steps = make([]int, steps)
	d.timesteps = make([]float32, steps)
	for i := 0; i < steps; i++ {
		t := d.TrainSteps - 1 - i*stride
		d.steps[i] = t
		d.timesteps[i] = float32(t)
	}
	return nil
}

func (d *DDIM) Timesteps() []float32 { return d.timesteps }

func (d *DDIM) InitNoise(seed int64, shape ...int) *tensor.Array {
	return tensor.RandomNormal(seed, shape...)
}

func (d *DDIM) ScaleModelInput(x *tensor.Array, step int) *tensor.Array { return x }

func (d *DDIM) Step(modelOut, x *tensor.Array, step int) (*tensor.Array, error) {
	if step < 0 || step >= len(d.steps) {
		return nil, fmt.Errorf("sample: step %d out of range %d", step, len(d.steps))
	}
	t := d.steps[step]
	ab := d.alphaBar[t]
	abPrev := 1.0
	if step+1 < len(d.steps) {
		abPrev = d.alphaBar[d.steps[step+1]]
	}

	// x0 = (x - sqrt(1-ab) eps) / sqrt(ab), then re-noise to the previous level.
	sqrtAB := float32(math.Sqrt(ab))
	sqrtOne := float32(math.Sqrt(1 - ab))
	x0 := tensor.MulScalar(tensor.Sub(x, tensor.MulScalar(modelOut, sqrtOne)), 1/sqrtAB)

	sqrtABPrev := float32(math.Sqrt(abPrev))
	sqrtOnePrev := float32(math.Sqrt(1 - abPrev))
	return tensor.Add(tensor.MulScalar(x0, sqrtABPrev), tensor.MulScalar(modelOut, sqrtOnePrev)), nil
}
