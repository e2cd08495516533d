package utils

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
)

// SymBandFactor holds the banded Cholesky factor P A Pᵀ = Uᵀ U of a sparse
// symmetric positive definite matrix, P being the reverse Cuthill-McKee
// renumbering.
type SymBandFactor struct {
	n, k      int
	perm, inv []int
	u         blas64.TriangularBand
}

func NewSymBandFactor(A CSR) (f *SymBandFactor, err error) {
	var (
		nr, nc = A.Dims()
	)
	if nr != nc {
		panic(fmt.Errorf("cholesky of non square matrix %dx%d", nr, nc))
	}
	f = &SymBandFactor{n: nr}
	f.perm = ReverseCuthillMcKee(A.Adjacency())
	f.inv = InversePermutation(f.perm)
	kl, ku := Bandwidth(A, f.inv)
	f.k = min(max(kl, ku), nr-1)
	sb := mat.NewSymBandDense(nr, f.k, nil)
	A.DoNonZero(func(i, j int, v float64) {
		pi, pj := f.inv[i], f.inv[j]
		if pi > pj {
			return
		}
		sb.SetSymBand(pi, pj, sb.At(pi, pj)+v)
	})
	var ok bool
	if f.u, ok = lapack64.Pbtrf(sb.RawSymBand()); !ok {
		return nil, fmt.Errorf("matrix is not positive definite: %w", ErrSingularMatrix)
	}
	return
}

func (f *SymBandFactor) Len() int { return f.n }

// U returns the triangular factor in the renumbered ordering
func (f *SymBandFactor) U() *mat.TriBandDense {
	return mat.NewTriBandDense(f.n, f.k, mat.Upper, f.u.Data)
}

// MulU returns U P x
func (f *SymBandFactor) MulU(x []float64) (y []float64) {
	y = f.permute(x)
	blas64.Tbmv(blas.NoTrans, f.u, f.vec(y))
	return
}

// SolveU returns Pᵀ U⁻¹ z, the inverse of MulU
func (f *SymBandFactor) SolveU(z []float64) (x []float64) {
	y := make([]float64, f.n)
	copy(y, z)
	blas64.Tbsv(blas.NoTrans, f.u, f.vec(y))
	return f.unpermute(y)
}

// SolveUT returns U⁻ᵀ P g
func (f *SymBandFactor) SolveUT(g []float64) (y []float64) {
	y = f.permute(g)
	blas64.Tbsv(blas.Trans, f.u, f.vec(y))
	return
}

// Solve returns x with A x = b
func (f *SymBandFactor) Solve(b []float64) (x []float64) {
	return f.SolveU(f.SolveUT(b))
}

func (f *SymBandFactor) vec(x []float64) blas64.Vector {
	return blas64.Vector{N: f.n, Data: x, Inc: 1}
}

func (f *SymBandFactor) permute(b []float64) (y []float64) {
	if len(b) != f.n {
		panic(fmt.Errorf("dimension mismatch: vector %d, matrix %d", len(b), f.n))
	}
	y = make([]float64, f.n)
	for i, p := range f.perm {
		y[i] = b[p]
	}
	return
}

func (f *SymBandFactor) unpermute(y []float64) (x []float64) {
	x = make([]float64, f.n)
	for i, p := range f.perm {
		x[p] = y[i]
	}
	return
}
