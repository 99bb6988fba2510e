package tensor

import "fmt"

// Reshape returns a view of a with a new shape. One dimension may be -1 and
// is inferred from the element count.
func Reshape(a *Array, shape ...int) *Array {
	out := append([]int(nil), shape...)
	infer := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if infer >= 0 {
				panic("tensor: more than one inferred dimension in reshape")
			}
			infer = i
		} else {
			known *= d
		}
	}
	if infer >= 0 {
		if known == 0 || len(a.data)%known != 0 {
			panic(fmt.Sprintf("tensor: cannot infer dimension reshaping %v to %v", a.shape, shape))
		}
		out[infer] = len(a.data) / known
	}
	if numel(out) != len(a.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", a.shape, shape))
	}
	return &Array{shape: out, data: a.data}
}

// ExpandDims inserts a singleton axis at the given position.
func ExpandDims(a *Array, axis int) *Array {
	if axis < 0 {
		axis += len(a.shape) + 1
	}
	out := make([]int, 0, len(a.shape)+1)
	out = append(out, a.shape[:axis]...)
	out = append(out, 1)
	out = append(out, a.shape[axis:]...)
	return &Array{shape: out, data: a.data}
}

// Squeeze removes the singleton axis at the given position.
func Squeeze(a *Array, axis int) *Array {
	if axis < 0 {
		axis += len(a.shape)
	}
	if a.shape[axis] != 1 {
		panic(fmt.Sprintf("tensor: cannot squeeze axis %d of shape %v", axis, a.shape))
	}
	out := make([]int, 0, len(a.shape)-1)
	out = append(out, a.shape[:axis]...)
	out = append(out, a.shape[axis+1:]...)
	return &Array{shape: out, data: a.data}
}

// Transpose permutes the axes of a and materializes the result.
func Transpose(a *Array, perm ...int) *Array {
	n := len(a.shape)
	if len(perm) != n {
		panic(fmt.Sprintf("tensor: permutation %v does not match rank %d", perm, n))
	}
	seen := make([]bool, n)
	outShape := make([]int, n)
	for i, p := range perm {
		if p < 0 || p >= n || seen[p] {
			panic(fmt.Sprintf("tensor: invalid permutation %v", perm))
		}
		seen[p] = true
		outShape[i] = a.shape[p]
	}
	inStrides := strides(a.shape)
	permStrides := make([]int, n)
	for i, p := range perm {
		permStrides[i] = inStrides[p]
	}
	out := Zeros(outShape...)
	idx := make([]int, n)
	for o := range out.data {
		src := 0
		for i := range idx {
			src += idx[i] * permStrides[i]
		}
		out.data[o] = a.data[src]
		for i := n - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < outShape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

// Concatenate joins arrays along an axis. All other extents must match.
func Concatenate(arrays []*Array, axis int) *Array {
	if len(arrays) == 0 {
		panic("tensor: concatenate of nothing")
	}
	first := arrays[0]
	if axis < 0 {
		axis += first.Ndim()
	}
	outShape := first.Shape()
	for _, a := range arrays[1:] {
		if a.Ndim() != first.Ndim() {
			panic("tensor: concatenate rank mismatch")
		}
		for i := range outShape {
			if i == axis {
				continue
			}
			if a.shape[i] != outShape[i] {
				panic(fmt.Sprintf("tensor: concatenate shape mismatch %v vs %v on axis %d", a.shape, first.shape, i))
			}
		}
		outShape[axis] += a.shape[axis]
	}
	out := Zeros(outShape...)
	outer := numel(first.shape[:axis])
	inner := numel(first.shape[axis+1:])
	rowOut := outShape[axis] * inner
	off := 0
	for _, a := range arrays {
		rowIn := a.shape[axis] * inner
		for o := 0; o < outer; o++ {
			copy(out.data[o*rowOut+off:o*rowOut+off+rowIn], a.data[o*rowIn:(o+1)*rowIn])
		}
		off += rowIn
	}
	return out
}

// Slice extracts a[start[0]:stop[0], start[1]:stop[1], ...].
func Slice(a *Array, start, stop []int) *Array {
	n := len(a.shape)
	if len(start) != n || len(stop) != n {
		panic(fmt.Sprintf("tensor: slice bounds rank mismatch for shape %v", a.shape))
	}
	outShape := make([]int, n)
	for i := range outShape {
		if start[i] < 0 || stop[i] > a.shape[i] || start[i] > stop[i] {
			panic(fmt.Sprintf("tensor: slice [%v:%v] out of range for shape %v", start, stop, a.shape))
		}
		outShape[i] = stop[i] - start[i]
	}
	out := Zeros(outShape...)
	inStrides := strides(a.shape)
	// copy innermost runs
	inner := outShape[n-1]
	outerShape := outShape[:n-1]
	idx := make([]int, n-1)
	outOff := 0
	for {
		src := start[n-1] * inStrides[n-1]
		for i := range idx {
			src += (start[i] + idx[i]) * inStrides[i]
		}
		copy(out.data[outOff:outOff+inner], a.data[src:src+inner])
		outOff += inner
		carried := true
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < outerShape[i] {
				carried = false
				break
			}
			idx[i] = 0
		}
		if len(idx) == 0 || carried {
			break
		}
	}
	return out
}

// Pad zero-pads the array. pads holds (before, after) pairs per axis.
func Pad(a *Array, pads [][2]int) *Array {
	n := len(a.shape)
	if len(pads) != n {
		panic(fmt.Sprintf("tensor: pad spec rank mismatch for shape %v", a.shape))
	}
	outShape := make([]int, n)
	for i := range outShape {
		outShape[i] = pads[i][0] + a.shape[i] + pads[i][1]
	}
	out := Zeros(outShape...)
	outStrides := strides(outShape)
	inner := a.shape[n-1]
	idx := make([]int, n-1)
	inOff := 0
	for {
		dst := (pads[n-1][0]) * outStrides[n-1]
		for i := range idx {
			dst += (pads[i][0] + idx[i]) * outStrides[i]
		}
		copy(out.data[dst:dst+inner], a.data[inOff:inOff+inner])
		inOff += inner
		carried := true
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < a.shape[i] {
				carried = false
				break
			}
			idx[i] = 0
		}
		if len(idx) == 0 || carried {
			break
		}
	}
	return out
}

// Tile repeats the array reps[i] times along each axis.
func Tile(a *Array, reps ...int) *Array {
	if len(reps) != len(a.shape) {
		panic(fmt.Sprintf("tensor: tile reps %v do not match rank of %v", reps, a.shape))
	}
	out := a
	for axis, r := range reps {
		if r == 1 {
			continue
		}
		copies := make([]*Array, r)
		for i := range copies {
			copies[i] = out
		}
		out = Concatenate(copies, axis)
	}
	return out
}

// BroadcastTo materializes a broadcast of a to the target shape.
func BroadcastTo(a *Array, shape ...int) *Array {
	src := a
	if len(a.shape) < len(shape) {
		newShape := make([]int, len(shape))
		pad := len(shape) - len(a.shape)
		for i := range newShape {
			if i < pad {
				newShape[i] = 1
			} else {
				newShape[i] = a.shape[i-pad]
			}
		}
		src = Reshape(a, newShape...)
	}
	for i := range shape {
		if src.shape[i] != shape[i] && src.shape[i] != 1 {
			panic(fmt.Sprintf("tensor: cannot broadcast %v to %v", a.shape, shape))
		}
	}
	out := Zeros(shape...)
	srcStrides := strides(src.shape)
	for i := range srcStrides {
		if src.shape[i] == 1 {
			srcStrides[i] = 0
		}
	}
	idx := make([]int, len(shape))
	for o := range out.data {
		srcOff := 0
		for i := range idx {
			srcOff += idx[i] * srcStrides[i]
		}
		out.data[o] = src.data[srcOff]
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}
