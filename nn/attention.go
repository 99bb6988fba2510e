package nn

import (
	"fmt"
	"math"

	"github.com/latentlab/videodit/tensor"
)

// Compute is the attention arithmetic capability. Implementations must agree
// numerically; they differ only in how the work is scheduled. The active
// implementation is chosen once at startup, by name, never by environment
// sniffing at import time.
type Compute interface {
	Name() string
	// Attend computes softmax(q k^T * scale + bias) v for q,k,v shaped
	// [batch, heads, len, headDim]. bias may be nil or broadcastable to
	// [batch, heads, qLen, kLen].
	Attend(q, k, v, bias *tensor.Array, scale float32) *tensor.Array
}

// BLASCompute batches the whole attention through gonum matmuls. The default.
type BLASCompute struct{}

func (BLASCompute) Name() string { return "blas" }

func (BLASCompute) Attend(q, k, v, bias *tensor.Array, scale float32) *tensor.Array {
	scores := tensor.MulScalar(tensor.MatMul(q, tensor.Transpose(k, 0, 1, 3, 2)), scale)
	if bias != nil {
		scores = tensor.Add(scores, bias)
	}
	return tensor.MatMul(tensor.Softmax(scores), v)
}

// LoopCompute is the plain reference implementation, one query row at a time.
// Useful for cross-checking the batched path and on hosts without a usable
// BLAS.
type LoopCompute struct{}

func (LoopCompute) Name() string { return "loop" }

func (LoopCompute) Attend(q, k, v, bias *tensor.Array, scale float32) *tensor.Array {
	b, h, lq, d := q.Dim(0), q.Dim(1), q.Dim(2), q.Dim(3)
	lk := k.Dim(2)
	var biasFull *tensor.Array
	if bias != nil {
		biasFull = tensor.BroadcastTo(bias, b, h, lq, lk)
	}
	out := tensor.Zeros(b, h, lq, d)
	row := make([]float64, lk)
	for bi := 0; bi < b; bi++ {
		for hi := 0; hi < h; hi++ {
			for qi := 0; qi < lq; qi++ {
				maxv := math.Inf(-1)
				for ki := 0; ki < lk; ki++ {
					var s float64
					for di := 0; di < d; di++ {
						s += float64(q.At(bi, hi, qi, di)) * float64(k.At(bi, hi, ki, di))
					}
					s *= float64(scale)
					if biasFull != nil {
						s += float64(biasFull.At(bi, hi, qi, ki))
					}
					row[ki] = s
					if s > maxv {
						maxv = s
					}
				}
				var sum float64
				for ki := range row {
					row[ki] = math.Exp(row[ki] - maxv)
					sum += row[ki]
				}
				for di := 0; di < d; di++ {
					var acc float64
					for ki := 0; ki < lk; ki++ {
						acc += row[ki] * float64(v.At(bi, hi, ki, di))
					}
					out.Set(float32(acc/sum), bi, hi, qi, di)
				}
			}
		}
	}
	return out
}

var computes = map[string]Compute{
	"blas": BLASCompute{},
	"loop": LoopCompute{},
}

// AttentionCompute returns the named implementation. Empty name selects the
// default.
func AttentionCompute(name string) (Compute, error) {
	if name == "" {
		name = "blas"
	}
	c, ok := computes[name]
	if !ok {
		return nil, fmt.Errorf("nn: unknown attention compute %q", name)
	}
	return c, nil
}
