package tensor

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/latentlab/videodit/envconfig"
)

// MatMul multiplies the last two axes of a and b, broadcasting leading batch
// axes. a is [..., m, k], b is [..., k, n], the result is [..., m, n].
func MatMul(a, b *Array) *Array {
	if a.Ndim() < 2 || b.Ndim() < 2 {
		panic(fmt.Sprintf("tensor: matmul needs rank >= 2, got %v x %v", a.shape, b.shape))
	}
	m, ka := a.Dim(-2), a.Dim(-1)
	kb, n := b.Dim(-2), b.Dim(-1)
	if ka != kb {
		panic(fmt.Sprintf("tensor: matmul inner dimensions disagree, %v x %v", a.shape, b.shape))
	}

	batchShape := broadcastShape(a.shape[:a.Ndim()-2], b.shape[:b.Ndim()-2])
	batch := numel(batchShape)

	aFull := BroadcastTo(a, append(append([]int(nil), batchShape...), m, ka)...)
	bFull := BroadcastTo(b, append(append([]int(nil), batchShape...), kb, n)...)
	out := Zeros(append(append([]int(nil), batchShape...), m, n)...)

	var g errgroup.Group
	g.SetLimit(max(1, int(envconfig.Threads())))
	for i := 0; i < batch; i++ {
		i := i
		g.Go(func() error {
			am := blas32.General{
				Rows: m, Cols: ka, Stride: ka,
				Data: aFull.data[i*m*ka : (i+1)*m*ka],
			}
			bm := blas32.General{
				Rows: ka, Cols: n, Stride: n,
				Data: bFull.data[i*ka*n : (i+1)*ka*n],
			}
			cm := blas32.General{
				Rows: m, Cols: n, Stride: n,
				Data: out.data[i*m*n : (i+1)*m*n],
			}
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, am, bm, 0, cm)
			return nil
		})
	}
	g.Wait()
	return out
}
