package utils

import (
	"errors"
	"fmt"
	"math"
)

var ErrSingularMatrix = errors.New("singular matrix")

// BandLU is an LU factorization with partial pivoting of a sparse square
// matrix, renumbered with reverse Cuthill-McKee and stored as a band.
// Row i holds columns i-kl .. i+ku+kl, the extra kl columns receive the fill
// from row interchanges.
type BandLU struct {
	n, kl, ku int
	width     int
	perm, inv []int
	ab        []float64
	piv       []int
}

func NewBandLU(A CSR) (lu *BandLU, err error) {
	var (
		nr, nc = A.Dims()
	)
	if nr != nc {
		panic(fmt.Errorf("band LU of non square matrix %dx%d", nr, nc))
	}
	lu = &BandLU{n: nr}
	lu.perm = ReverseCuthillMcKee(A.Adjacency())
	lu.inv = InversePermutation(lu.perm)
	lu.kl, lu.ku = Bandwidth(A, lu.inv)
	lu.width = 2*lu.kl + lu.ku + 1
	lu.ab = make([]float64, lu.n*lu.width)
	lu.piv = make([]int, lu.n)
	A.DoNonZero(func(i, j int, v float64) {
		lu.ab[lu.index(lu.inv[i], lu.inv[j])] += v
	})
	if err = lu.factor(); err != nil {
		return nil, err
	}
	return
}

func (lu *BandLU) index(i, j int) int { return i*lu.width + j - i + lu.kl }

// Bandwidth reports the lower and upper bandwidth after renumbering
func (lu *BandLU) Bandwidth() (kl, ku int) { return lu.kl, lu.ku }

func (lu *BandLU) factor() (err error) {
	var (
		n, kl, ku = lu.n, lu.kl, lu.ku
		ab        = lu.ab
	)
	for k := 0; k < n; k++ {
		var (
			p    = k
			amax = math.Abs(ab[lu.index(k, k)])
			last = min(n-1, k+kl)
			jmax = min(n-1, k+ku+kl)
		)
		for i := k + 1; i <= last; i++ {
			if a := math.Abs(ab[lu.index(i, k)]); a > amax {
				p, amax = i, a
			}
		}
		if amax == 0 {
			return fmt.Errorf("zero pivot in column %d: %w", k, ErrSingularMatrix)
		}
		lu.piv[k] = p
		if p != k {
			for j := k; j <= jmax; j++ {
				ia, ib := lu.index(k, j), lu.index(p, j)
				ab[ia], ab[ib] = ab[ib], ab[ia]
			}
		}
		pivot := ab[lu.index(k, k)]
		for i := k + 1; i <= last; i++ {
			ik := lu.index(i, k)
			l := ab[ik] / pivot
			ab[ik] = l
			if l == 0 {
				continue
			}
			for j := k + 1; j <= jmax; j++ {
				ab[lu.index(i, j)] -= l * ab[lu.index(k, j)]
			}
		}
	}
	return
}

// Solve returns x with A x = b
func (lu *BandLU) Solve(b []float64) (x []float64) {
	y := lu.permute(b)
	for k := 0; k < lu.n; k++ {
		if p := lu.piv[k]; p != k {
			y[k], y[p] = y[p], y[k]
		}
		for i := k + 1; i <= min(lu.n-1, k+lu.kl); i++ {
			y[i] -= lu.ab[lu.index(i, k)] * y[k]
		}
	}
	for i := lu.n - 1; i >= 0; i-- {
		sum := y[i]
		for j := i + 1; j <= min(lu.n-1, i+lu.ku+lu.kl); j++ {
			sum -= lu.ab[lu.index(i, j)] * y[j]
		}
		y[i] = sum / lu.ab[lu.index(i, i)]
	}
	return lu.unpermute(y)
}

// SolveTrans returns x with Aᵀ x = b
func (lu *BandLU) SolveTrans(b []float64) (x []float64) {
	z := lu.permute(b)
	for i := 0; i < lu.n; i++ {
		z[i] /= lu.ab[lu.index(i, i)]
		for j := i + 1; j <= min(lu.n-1, i+lu.ku+lu.kl); j++ {
			z[j] -= lu.ab[lu.index(i, j)] * z[i]
		}
	}
	for k := lu.n - 1; k >= 0; k-- {
		for i := k + 1; i <= min(lu.n-1, k+lu.kl); i++ {
			z[k] -= lu.ab[lu.index(i, k)] * z[i]
		}
		if p := lu.piv[k]; p != k {
			z[k], z[p] = z[p], z[k]
		}
	}
	return lu.unpermute(z)
}

func (lu *BandLU) permute(b []float64) (y []float64) {
	if len(b) != lu.n {
		panic(fmt.Errorf("dimension mismatch: rhs %d, matrix %d", len(b), lu.n))
	}
	y = make([]float64, lu.n)
	for i, p := range lu.perm {
		y[i] = b[p]
	}
	return
}

func (lu *BandLU) unpermute(y []float64) (x []float64) {
	x = make([]float64, lu.n)
	for i, p := range lu.perm {
		x[p] = y[i]
	}
	return
}
