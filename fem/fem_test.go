package fem

import (
	"errors"
	"math"
	"testing"

	"github.com/notargets/goshape/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplex(t *testing.T) {
	t.Run("reference triangle", func(t *testing.T) {
		s, err := NewSimplex([][]float64{{0, 0}, {1, 0}, {0, 1}})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, s.Vol, 1.e-14)
		assert.InDeltaSlice(t, []float64{-1, -1}, s.G[0], 1.e-14)
		assert.InDeltaSlice(t, []float64{1, 0}, s.G[1], 1.e-14)
		assert.InDeltaSlice(t, []float64{0, 1}, s.G[2], 1.e-14)
	})
	t.Run("reference tetrahedron", func(t *testing.T) {
		s, err := NewSimplex([][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
		require.NoError(t, err)
		assert.InDelta(t, 1./6, s.Vol, 1.e-14)
	})
	t.Run("gradient of linear function", func(t *testing.T) {
		X := [][]float64{{0.1, 0.2}, {1.3, 0.1}, {0.4, 0.9}}
		s, err := NewSimplex(X)
		require.NoError(t, err)
		lin := func(x []float64) float64 { return 2 + 3*x[0] - 5*x[1] }
		u := []float64{lin(X[0]), lin(X[1]), lin(X[2])}
		assert.InDeltaSlice(t, []float64{3, -5}, s.Grad(u), 1.e-12)
		var sum [2]float64
		for _, g := range s.G {
			sum[0] += g[0]
			sum[1] += g[1]
		}
		assert.InDeltaSlice(t, []float64{0, 0}, sum[:], 1.e-12)
	})
	t.Run("inverted", func(t *testing.T) {
		_, err := NewSimplex([][]float64{{0, 0}, {0, 1}, {1, 0}})
		assert.True(t, errors.Is(err, ErrInvertedElement))
		_, err = NewSimplex([][]float64{{0, 0}, {1, 1}, {2, 2}})
		assert.True(t, errors.Is(err, ErrInvertedElement))
	})
}

func TestComputeGeometry(t *testing.T) {
	m := mesh.NewUnitSquareMesh(3)
	simplices, err := ComputeGeometry(m)
	require.NoError(t, err)
	var vol float64
	for _, s := range simplices {
		vol += s.Vol
	}
	assert.InDelta(t, 1., vol, 1.e-12)

	// push an interior vertex across its neighbours
	m.Vertices[5][0] = 5
	_, err = ComputeGeometry(m)
	assert.True(t, errors.Is(err, ErrInvertedElement))
}

// elementQuantity is a nonlinear function of the element geometry used to
// check NodeSensitivity: S = vol * Σ_a c_a |G_a|^2 + vol^2
func elementQuantity(s Simplex, c []float64) (S, sVol float64, sG [][]float64) {
	sG = NewGradient(s.Dim)
	var q float64
	for a := range s.G {
		for j := range s.G[a] {
			q += c[a] * s.G[a][j] * s.G[a][j]
			sG[a][j] = 2 * s.Vol * c[a] * s.G[a][j]
		}
	}
	S = s.Vol*q + s.Vol*s.Vol
	sVol = q + 2*s.Vol
	return
}

func TestNodeSensitivity(t *testing.T) {
	for _, X := range [][][]float64{
		{{0.1, 0.2}, {1.3, 0.1}, {0.4, 0.9}},
		{{0, 0, 0}, {1, 0.1, 0}, {0.2, 1.1, 0.1}, {0.1, 0.3, 0.9}},
	} {
		d := len(X) - 1
		c := []float64{1, 2, 3, 4}[:d+1]
		s, err := NewSimplex(X)
		require.NoError(t, err)
		_, sVol, sG := elementQuantity(s, c)
		dX := s.NodeSensitivity(sVol, sG)

		const eps = 1.e-6
		for b := range X {
			for k := 0; k < d; k++ {
				orig := X[b][k]
				X[b][k] = orig + eps
				sp, err := NewSimplex(X)
				require.NoError(t, err)
				Sp, _, _ := elementQuantity(sp, c)
				X[b][k] = orig - eps
				sm, err := NewSimplex(X)
				require.NoError(t, err)
				Sm, _, _ := elementQuantity(sm, c)
				X[b][k] = orig
				fd := (Sp - Sm) / (2 * eps)
				assert.InDelta(t, fd, dX[b][k], 1.e-6*math.Max(1, math.Abs(fd)),
					"dim %d vertex %d component %d", d, b, k)
			}
		}
	}
}

func TestQuadrature(t *testing.T) {
	X := [][]float64{{0, 0}, {1, 0}, {0, 1}}
	s, err := NewSimplex(X)
	require.NoError(t, err)
	integrate := func(q Quadrature, f func(x []float64) float64) (sum float64) {
		for i, l := range q.Points {
			sum += s.Vol * q.Weights[i] * f(Point(X, l))
		}
		return
	}
	// ∫ x^4 over the reference triangle is 1/30, ∫ x^2 y^2 is 1/180
	q4 := QuadratureRule(2, 4)
	assert.InDelta(t, 1./30, integrate(q4, func(x []float64) float64 { return math.Pow(x[0], 4) }), 1.e-12)
	assert.InDelta(t, 1./180, integrate(q4, func(x []float64) float64 { return x[0] * x[0] * x[1] * x[1] }), 1.e-12)
	q2 := QuadratureRule(2, 2)
	assert.InDelta(t, 1./12, integrate(q2, func(x []float64) float64 { return x[0] * x[0] }), 1.e-12)

	for dim := 1; dim <= 3; dim++ {
		for _, deg := range []int{1, 2, 4} {
			var sum float64
			for _, w := range QuadratureRule(dim, deg).Weights {
				sum += w
			}
			assert.InDelta(t, 1., sum, 1.e-12)
		}
	}
	assert.InDelta(t, 1./12, MassEntry(2, 0, 0)*s.Vol, 1.e-14)
}

func TestFunction(t *testing.T) {
	f := NewFunction("w", 3, 3)
	for v := 0; v < 3; v++ {
		f.Set(v, 0, float64(v))
		f.Set(v, 2, -float64(v))
	}
	vel := f.Components("velocity", 0, 2)
	assert.Equal(t, 2, vel.NComp)
	assert.Equal(t, []float64{0, 0, 1, 0, 2, 0}, vel.Values)
	assert.Equal(t, []float64{0, -1, -2}, f.Gather([]int{0, 1, 2}, 2))
	assert.Panics(t, func() { f.Components("p", 2, 4) })
}

func TestDirichletSet(t *testing.T) {
	bcs := NewDirichletSet()
	bcs.Set(2, 1.5)
	bcs.Set(0, 0)
	assert.Equal(t, []int{0, 2}, bcs.Dofs())

	as := NewAssembler(3, bcs)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			as.Add(i, j, 1)
		}
	}
	A := as.CSR()
	assert.Equal(t, 1., A.At(0, 0))
	assert.Equal(t, 0., A.At(0, 1))
	assert.Equal(t, 1., A.At(1, 0))

	u := []float64{3, 3, 3}
	R := []float64{9, 9, 9}
	bcs.ApplyResidual(R, u)
	assert.Equal(t, []float64{3, 9, 1.5}, R)
	bcs.Apply(u)
	assert.Equal(t, []float64{0, 3, 1.5}, u)
}
