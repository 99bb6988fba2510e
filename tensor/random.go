package tensor

import (
	"math"
	"math/rand"
)

// RandomNormal draws standard gaussian samples from a seeded source, so a
// fixed seed reproduces the same noise across runs.
func RandomNormal(seed int64, shape ...int) *Array {
	rng := rand.New(rand.NewSource(seed))
	out := Zeros(shape...)
	for i := range out.data {
		out.data[i] = float32(rng.NormFloat64())
	}
	return out
}

// RandomUniform draws samples from [0,1) with a seeded source.
func RandomUniform(seed int64, shape ...int) *Array {
	rng := rand.New(rand.NewSource(seed))
	out := Zeros(shape...)
	for i := range out.data {
		out.data[i] = rng.Float32()
	}
	return out
}

// Linspace returns n evenly spaced values from start to stop inclusive.
func Linspace(start, stop float32, n int) *Array {
	out := Zeros(n)
	if n == 1 {
		out.data[0] = start
		return out
	}
	step := (float64(stop) - float64(start)) / float64(n-1)
	for i := range out.data {
		out.data[i] = float32(float64(start) + step*float64(i))
	}
	return out
}

// AllClose reports whether two arrays match in shape and values within atol.
func AllClose(a, b *Array, atol float64) bool {
	if !sameShape(a.shape, b.shape) {
		return false
	}
	for i := range a.data {
		if math.Abs(float64(a.data[i])-float64(b.data[i])) > atol {
			return false
		}
	}
	return true
}
