package tensor

import (
	"fmt"
	"math"
)

// broadcastShape computes the result shape of broadcasting a against b,
// following the usual trailing-axis rules.
func broadcastShape(a, b []int) []int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i >= n-len(a) {
			da = a[i-(n-len(a))]
		}
		if i >= n-len(b) {
			db = b[i-(n-len(b))]
		}
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		default:
			panic(fmt.Sprintf("tensor: shapes %v and %v are not broadcastable", a, b))
		}
	}
	return out
}

func binary(a, b *Array, f func(x, y float32) float32) *Array {
	if sameShape(a.shape, b.shape) {
		out := Zeros(a.shape...)
		for i := range out.data {
			out.data[i] = f(a.data[i], b.data[i])
		}
		return out
	}
	shape := broadcastShape(a.shape, b.shape)
	ba := BroadcastTo(a, shape...)
	bb := BroadcastTo(b, shape...)
	out := Zeros(shape...)
	for i := range out.data {
		out.data[i] = f(ba.data[i], bb.data[i])
	}
	return out
}

func unary(a *Array, f func(x float32) float32) *Array {
	out := Zeros(a.shape...)
	for i := range out.data {
		out.data[i] = f(a.data[i])
	}
	return out
}

// Add returns a+b with broadcasting.
func Add(a, b *Array) *Array { return binary(a, b, func(x, y float32) float32 { return x + y }) }

// Sub returns a-b with broadcasting.
func Sub(a, b *Array) *Array { return binary(a, b, func(x, y float32) float32 { return x - y }) }

// Mul returns a*b elementwise with broadcasting.
func Mul(a, b *Array) *Array { return binary(a, b, func(x, y float32) float32 { return x * y }) }

// Div returns a/b elementwise with broadcasting.
func Div(a, b *Array) *Array { return binary(a, b, func(x, y float32) float32 { return x / y }) }

// AddScalar returns a+s.
func AddScalar(a *Array, s float32) *Array {
	return unary(a, func(x float32) float32 { return x + s })
}

// MulScalar returns a*s.
func MulScalar(a *Array, s float32) *Array {
	return unary(a, func(x float32) float32 { return x * s })
}

// Neg returns -a.
func Neg(a *Array) *Array { return unary(a, func(x float32) float32 { return -x }) }

// Sqrt returns elementwise square roots.
func Sqrt(a *Array) *Array {
	return unary(a, func(x float32) float32 { return float32(math.Sqrt(float64(x))) })
}

// Square returns a*a elementwise.
func Square(a *Array) *Array { return unary(a, func(x float32) float32 { return x * x }) }

// Exp returns elementwise e^x.
func Exp(a *Array) *Array {
	return unary(a, func(x float32) float32 { return float32(math.Exp(float64(x))) })
}

// Tanh returns elementwise tanh.
func Tanh(a *Array) *Array {
	return unary(a, func(x float32) float32 { return float32(math.Tanh(float64(x))) })
}

// Cos returns elementwise cosine.
func Cos(a *Array) *Array {
	return unary(a, func(x float32) float32 { return float32(math.Cos(float64(x))) })
}

// Sin returns elementwise sine.
func Sin(a *Array) *Array {
	return unary(a, func(x float32) float32 { return float32(math.Sin(float64(x))) })
}

// SiLU returns x*sigmoid(x).
func SiLU(a *Array) *Array {
	return unary(a, func(x float32) float32 {
		return x / (1 + float32(math.Exp(float64(-x))))
	})
}

// GELU returns the tanh approximation of gaussian error linear units.
func GELU(a *Array) *Array {
	const c = 0.7978845608028654 // sqrt(2/pi)
	return unary(a, func(x float32) float32 {
		x64 := float64(x)
		return float32(0.5 * x64 * (1 + math.Tanh(c*(x64+0.044715*x64*x64*x64))))
	})
}

// Minimum returns elementwise min with broadcasting.
func Minimum(a, b *Array) *Array {
	return binary(a, b, func(x, y float32) float32 {
		if x < y {
			return x
		}
		return y
	})
}

// Maximum returns elementwise max with broadcasting.
func Maximum(a, b *Array) *Array {
	return binary(a, b, func(x, y float32) float32 {
		if x > y {
			return x
		}
		return y
	})
}
