package tensor

import (
	"fmt"
	"math"
)

// Softmax normalizes along the last axis with the usual max-subtraction for
// stability.
func Softmax(a *Array) *Array {
	inner := a.Dim(-1)
	out := Zeros(a.shape...)
	for off := 0; off < len(a.data); off += inner {
		row := a.data[off : off+inner]
		dst := out.data[off : off+inner]
		maxv := row[0]
		for _, v := range row[1:] {
			if v > maxv {
				maxv = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxv))
			dst[i] = float32(e)
			sum += e
		}
		inv := float32(1 / sum)
		for i := range dst {
			dst[i] *= inv
		}
	}
	return out
}

// Mean reduces the given axis, keeping it as a singleton.
func Mean(a *Array, axis int) *Array {
	return reduceAxis(a, axis, func(acc, v float32) float32 { return acc + v }, func(acc float32, n int) float32 {
		return acc / float32(n)
	})
}

// Max reduces the given axis to its maximum, keeping it as a singleton.
func Max(a *Array, axis int) *Array {
	if axis < 0 {
		axis += len(a.shape)
	}
	outShape := a.Shape()
	outShape[axis] = 1
	out := Full(float32(math.Inf(-1)), outShape...)
	outer := numel(a.shape[:axis])
	mid := a.shape[axis]
	inner := numel(a.shape[axis+1:])
	for o := 0; o < outer; o++ {
		for m := 0; m < mid; m++ {
			for i := 0; i < inner; i++ {
				v := a.data[(o*mid+m)*inner+i]
				if v > out.data[o*inner+i] {
					out.data[o*inner+i] = v
				}
			}
		}
	}
	return out
}

func reduceAxis(a *Array, axis int, acc func(float32, float32) float32, fin func(float32, int) float32) *Array {
	if axis < 0 {
		axis += len(a.shape)
	}
	outShape := a.Shape()
	outShape[axis] = 1
	out := Zeros(outShape...)
	outer := numel(a.shape[:axis])
	mid := a.shape[axis]
	inner := numel(a.shape[axis+1:])
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			v := float32(0)
			for m := 0; m < mid; m++ {
				v = acc(v, a.data[(o*mid+m)*inner+i])
			}
			out.data[o*inner+i] = fin(v, mid)
		}
	}
	return out
}

// MaxPool3D max-pools the trailing three axes of a rank-5 array by the given
// kernel, which also serves as stride. Axis extents must divide evenly.
func MaxPool3D(a *Array, kt, kh, kw int) *Array {
	if a.Ndim() != 5 {
		panic(fmt.Sprintf("tensor: maxpool3d needs rank 5, got %v", a.shape))
	}
	b, c, t, h, w := a.shape[0], a.shape[1], a.shape[2], a.shape[3], a.shape[4]
	if t%kt != 0 || h%kh != 0 || w%kw != 0 {
		panic(fmt.Sprintf("tensor: maxpool3d kernel (%d,%d,%d) does not divide %v", kt, kh, kw, a.shape))
	}
	ot, oh, ow := t/kt, h/kh, w/kw
	out := Zeros(b, c, ot, oh, ow)
	for bi := 0; bi < b; bi++ {
		for ci := 0; ci < c; ci++ {
			for ti := 0; ti < ot; ti++ {
				for hi := 0; hi < oh; hi++ {
					for wi := 0; wi < ow; wi++ {
						maxv := float32(math.Inf(-1))
						for dt := 0; dt < kt; dt++ {
							for dh := 0; dh < kh; dh++ {
								for dw := 0; dw < kw; dw++ {
									v := a.At(bi, ci, ti*kt+dt, hi*kh+dh, wi*kw+dw)
									if v > maxv {
										maxv = v
									}
								}
							}
						}
						out.Set(maxv, bi, ci, ti, hi, wi)
					}
				}
			}
		}
	}
	return out
}
