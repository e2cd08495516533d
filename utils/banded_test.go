package utils

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func csrFromDense(d *mat.Dense) CSR {
	nr, nc := d.Dims()
	dok := NewDOK(nr, nc)
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			if v := d.At(i, j); v != 0 {
				dok.Set(i, j, v)
			}
		}
	}
	return dok.ToCSR()
}

// gridOperator is a shuffled convection-diffusion stencil on an nx by ny grid
func gridOperator(nx, ny int, rng *rand.Rand) *mat.Dense {
	var (
		n     = nx * ny
		A     = mat.NewDense(n, n, nil)
		label = rng.Perm(n)
	)
	id := func(i, j int) int { return label[i+nx*j] }
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			r := id(i, j)
			A.Set(r, r, 5+rng.Float64())
			if i > 0 {
				A.Set(r, id(i-1, j), -1-0.5*rng.Float64())
			}
			if i < nx-1 {
				A.Set(r, id(i+1, j), -1+0.5*rng.Float64())
			}
			if j > 0 {
				A.Set(r, id(i, j-1), -1)
			}
			if j < ny-1 {
				A.Set(r, id(i, j+1), -0.5)
			}
		}
	}
	return A
}

func TestBandLU(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	t.Run("grid operator", func(t *testing.T) {
		A := gridOperator(7, 5, rng)
		n, _ := A.Dims()
		b := make([]float64, n)
		for i := range b {
			b[i] = rng.NormFloat64()
		}
		lu, err := NewBandLU(csrFromDense(A))
		require.NoError(t, err)
		kl, ku := lu.Bandwidth()
		assert.Less(t, kl, n/2)
		assert.Less(t, ku, n/2)

		var want mat.VecDense
		require.NoError(t, want.SolveVec(A, mat.NewVecDense(n, b)))
		assert.InDeltaSlice(t, want.RawVector().Data, lu.Solve(b), 1.e-10)

		var wantT mat.VecDense
		require.NoError(t, wantT.SolveVec(A.T(), mat.NewVecDense(n, b)))
		assert.InDeltaSlice(t, wantT.RawVector().Data, lu.SolveTrans(b), 1.e-10)
	})
	t.Run("pivoting", func(t *testing.T) {
		A := mat.NewDense(4, 4, []float64{
			0, 2, 0, 0,
			1, 0, 3, 0,
			0, 4, 1, 5,
			0, 0, 1, 0,
		})
		b := []float64{1, 2, 3, 4}
		lu, err := NewBandLU(csrFromDense(A))
		require.NoError(t, err)
		var want mat.VecDense
		require.NoError(t, want.SolveVec(A, mat.NewVecDense(4, b)))
		assert.InDeltaSlice(t, want.RawVector().Data, lu.Solve(b), 1.e-12)
		var wantT mat.VecDense
		require.NoError(t, wantT.SolveVec(A.T(), mat.NewVecDense(4, b)))
		assert.InDeltaSlice(t, wantT.RawVector().Data, lu.SolveTrans(b), 1.e-12)
	})
	t.Run("singular", func(t *testing.T) {
		A := mat.NewDense(2, 2, []float64{
			1, 1,
			1, 1,
		})
		_, err := NewBandLU(csrFromDense(A))
		assert.True(t, errors.Is(err, ErrSingularMatrix))
	})
}

func TestSymBandFactor(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	G := gridOperator(6, 6, rng)
	n, _ := G.Dims()
	// symmetric positive definite: G + Gᵀ is diagonally dominant
	var A mat.Dense
	A.Add(G, G.T())

	f, err := NewSymBandFactor(csrFromDense(&A))
	require.NoError(t, err)
	require.Equal(t, n, f.Len())

	x := make([]float64, n)
	g := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
		g[i] = rng.NormFloat64()
	}
	t.Run("Solve", func(t *testing.T) {
		var want mat.VecDense
		require.NoError(t, want.SolveVec(&A, mat.NewVecDense(n, g)))
		assert.InDeltaSlice(t, want.RawVector().Data, f.Solve(g), 1.e-10)
	})
	t.Run("norm", func(t *testing.T) {
		z := f.MulU(x)
		xAx := mat.Inner(mat.NewVecDense(n, x), &A, mat.NewVecDense(n, x))
		assert.InDelta(t, xAx, mat.Dot(mat.NewVecDense(n, z), mat.NewVecDense(n, z)), 1.e-9)
	})
	t.Run("inverse", func(t *testing.T) {
		assert.InDeltaSlice(t, x, f.SolveU(f.MulU(x)), 1.e-10)
	})
	t.Run("dual pairing", func(t *testing.T) {
		// <U⁻ᵀ P g, U P x> = <g, x>
		lhs := mat.Dot(mat.NewVecDense(n, f.SolveUT(g)), mat.NewVecDense(n, f.MulU(x)))
		rhs := mat.Dot(mat.NewVecDense(n, g), mat.NewVecDense(n, x))
		assert.InDelta(t, rhs, lhs, 1.e-10)
	})
	t.Run("not positive definite", func(t *testing.T) {
		B := mat.NewDense(2, 2, []float64{
			1, 2,
			2, 1,
		})
		_, err := NewSymBandFactor(csrFromDense(B))
		assert.True(t, errors.Is(err, ErrSingularMatrix))
	})
}

func TestReverseCuthillMcKee(t *testing.T) {
	// a path graph numbered badly
	adj := [][]int{
		{4},
		{3, 2},
		{1, 4},
		{1},
		{0, 2},
	}
	perm := ReverseCuthillMcKee(adj)
	require.Len(t, perm, 5)
	inv := InversePermutation(perm)
	for i, nbrs := range adj {
		for _, j := range nbrs {
			d := inv[i] - inv[j]
			assert.True(t, d == 1 || d == -1, "edge %d-%d not adjacent after renumbering", i, j)
		}
	}
	for i, p := range perm {
		assert.Equal(t, i, inv[p])
	}
}

func TestDOK(t *testing.T) {
	m := NewDOK(2, 3)
	m.Add(0, 1, 2)
	m.Add(0, 1, 3)
	m.Set(1, 2, 7)
	assert.Equal(t, 5., m.At(0, 1))
	csr := m.ToCSR()
	y := make([]float64, 2)
	csr.MulVec(y, []float64{1, 1, 1})
	assert.Equal(t, []float64{5, 7}, y)
	yt := make([]float64, 3)
	csr.MulVecTrans(yt, []float64{1, 2})
	assert.Equal(t, []float64{0, 5, 14}, yt)

	m.SetReadOnly("m")
	assert.Panics(t, func() { m.Add(0, 0, 1) })
}

func TestParseBCName(t *testing.T) {
	assert.Equal(t, BCInflow, ParseBCName("Inlet"))
	assert.Equal(t, BCWall, ParseBCName("upper_wall"))
	assert.Equal(t, BCNone, ParseBCName("somewhere"))
	assert.Equal(t, "Outflow", BCOutflow.String())
}
