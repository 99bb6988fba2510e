// Package tensor implements the float32 n-dimensional arrays the diffusion
// networks are written against. Arrays are always contiguous and row-major;
// ops return fresh arrays and never mutate their inputs.
package tensor

import (
	"fmt"
	"strings"
)

// Array is a contiguous row-major float32 tensor.
type Array struct {
	shape []int
	data  []float32
}

// New creates an array from data with the given shape. The data slice is
// owned by the array after this call.
func New(data []float32, shape ...int) *Array {
	n := numel(shape)
	if len(data) != n {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, n))
	}
	return &Array{shape: append([]int(nil), shape...), data: data}
}

// Zeros creates a zero-filled array.
func Zeros(shape ...int) *Array {
	return &Array{shape: append([]int(nil), shape...), data: make([]float32, numel(shape))}
}

// Full creates an array filled with v.
func Full(v float32, shape ...int) *Array {
	a := Zeros(shape...)
	for i := range a.data {
		a.data[i] = v
	}
	return a
}

// Arange creates a 1D array [start, stop) stepped by step.
func Arange(start, stop, step float32) *Array {
	var vals []float32
	for v := start; v < stop; v += step {
		vals = append(vals, v)
	}
	return New(vals, len(vals))
}

// Shape returns a copy of the array's shape.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Dim returns the extent of axis n. Negative n counts from the end.
func (a *Array) Dim(n int) int {
	if n < 0 {
		n += len(a.shape)
	}
	return a.shape[n]
}

// Ndim returns the number of axes.
func (a *Array) Ndim() int { return len(a.shape) }

// Size returns the total element count.
func (a *Array) Size() int { return len(a.data) }

// Data returns the backing slice. Callers must not resize it.
func (a *Array) Data() []float32 { return a.data }

// At reads the element at the given multi-index.
func (a *Array) At(idx ...int) float32 {
	return a.data[a.offset(idx)]
}

// Set writes the element at the given multi-index.
func (a *Array) Set(v float32, idx ...int) {
	a.data[a.offset(idx)] = v
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	data := make([]float32, len(a.data))
	copy(data, a.data)
	return New(data, a.shape...)
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(idx), a.shape))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= a.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, a.shape))
		}
		off = off*a.shape[i] + x
	}
	return off
}

// strides returns the row-major strides of shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders a short description, not the full contents.
func (a *Array) String() string {
	dims := make([]string, len(a.shape))
	for i, d := range a.shape {
		dims[i] = fmt.Sprint(d)
	}
	return "tensor<" + strings.Join(dims, "x") + ">"
}
