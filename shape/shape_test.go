package shape

import (
	"errors"
	"math"
	"testing"

	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// field samples a vector field at the reference vertices of Q
func field(Q ControlSpace, fn func(x []float64) []float64) (w []float64) {
	for _, x := range Q.MeshR().Vertices {
		w = append(w, fn(x)...)
	}
	return
}

// checkDerivative compares DerivativeForm of o at q along w with a central
// finite difference
func checkDerivative(t *testing.T, Q ControlSpace, o Objective, q, w []float64) {
	t.Helper()
	const eps = 1.e-6
	eval := func(s float64) float64 {
		qs := make([]float64, len(q))
		floats.AddScaledTo(qs, q, s, w)
		require.NoError(t, Q.UpdateDomain(qs))
		require.NoError(t, Update(o))
		v, err := o.Value()
		require.NoError(t, err)
		return v
	}
	fd := (eval(eps) - eval(-eps)) / (2 * eps)
	require.NoError(t, Q.UpdateDomain(q))
	require.NoError(t, Update(o))
	dJ, err := DerivativeForm(o, w)
	require.NoError(t, err)
	assert.InDelta(t, fd, dJ, 1.e-6*math.Max(1, math.Abs(fd)))
}

func smoothDeformation(x []float64) []float64 {
	return []float64{0.3 * x[0] * x[0], 0.2 * x[0] * x[1]}
}

func perturbation(x []float64) []float64 {
	return []float64{math.Sin(x[0]) * x[1], x[0]*x[0] - 0.5*x[1]}
}

func TestFeControlSpace(t *testing.T) {
	m := mesh.NewUnitSquareMesh(4)
	Q := NewFeControlSpace(m)
	assert.Equal(t, 2, Q.Dim())
	assert.Equal(t, 2*25, Q.Len())

	q := field(Q, smoothDeformation)
	require.NoError(t, Q.UpdateDomain(q))
	assert.InDelta(t, 0.3, Q.MeshM().Vertices[4][0]-1, 1.e-14)
	// the reference mesh never moves
	assert.Equal(t, 1., m.Vertices[4][0])

	before := Q.MeshM().Coordinates()
	bad := make([]float64, Q.Len())
	bad[2*6] = 3
	err := Q.UpdateDomain(bad)
	assert.True(t, errors.Is(err, ErrInvertedElement))
	assert.Equal(t, before, Q.MeshM().Coordinates())
	assert.Equal(t, q, Q.Deformation())
}

func TestInnerProduct(t *testing.T) {
	m := mesh.NewUnitSquareMesh(4)
	Q := NewFeControlSpace(m)
	for name, build := range map[string]func(ControlSpace, []int, float64) (*AssembledInnerProduct, error){
		"laplace":    LaplaceInnerProduct,
		"elasticity": ElasticityInnerProduct,
	} {
		t.Run(name, func(t *testing.T) {
			ip, err := build(Q, []int{1}, 1)
			require.NoError(t, err)
			// five vertices on x=0, both components fixed
			assert.Len(t, ip.FreeDofs(), 2*(25-5))

			g := field(Q, perturbation)
			v := ip.Extend(ip.Restrict(field(Q, smoothDeformation)))
			r := ip.Riesz(g)
			assert.InDelta(t, floats.Dot(ip.Restrict(g), ip.Restrict(v)), ip.Eval(r, v), 1.e-10)
			for _, dof := range []int{0, 1, 10, 11} {
				assert.Equal(t, 0., r[dof])
			}
			assert.Greater(t, ip.Eval(v, v), 0.)

			cv := NewControlVector(Q, ip)
			cv.Data = v
			assert.InDelta(t, math.Sqrt(ip.Eval(v, v)), cv.Norm(), 1.e-12)
		})
	}
	t.Run("all fixed", func(t *testing.T) {
		_, err := LaplaceInnerProduct(Q, []int{1, 2, 3, 4}, 1)
		// interior vertices remain free
		require.NoError(t, err)
		_, err = LaplaceInnerProduct(NewFeControlSpace(mesh.NewUnitSquareMesh(1)), []int{1, 2, 3, 4}, 1)
		assert.Error(t, err)
	})
}

func TestVolumeFunctional(t *testing.T) {
	m := mesh.NewUnitSquareMesh(4)
	Q := NewFeControlSpace(m)
	vol := NewVolumeFunctional(Q)
	v, err := vol.Value()
	require.NoError(t, err)
	assert.InDelta(t, 1., v, 1.e-12)

	// a uniform stretch of x by 1.5 scales the area
	require.NoError(t, Q.UpdateDomain(field(Q, func(x []float64) []float64 { return []float64{0.5 * x[0], 0} })))
	v, err = vol.Value()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 1.e-12)

	checkDerivative(t, Q, vol, field(Q, smoothDeformation), field(Q, perturbation))
}

func TestMoYoSpectralConstraint(t *testing.T) {
	m := mesh.NewUnitSquareMesh(4)
	Q := NewFeControlSpace(m)
	moyo, err := NewMoYoSpectralConstraint(20, 0.3, Q)
	require.NoError(t, err)

	v, err := moyo.Value()
	require.NoError(t, err)
	assert.Equal(t, 0., v)

	q := field(Q, smoothDeformation)
	require.NoError(t, Q.UpdateDomain(q))
	v, err = moyo.Value()
	require.NoError(t, err)
	assert.Greater(t, v, 0.)

	checkDerivative(t, Q, moyo, q, field(Q, perturbation))
}

func TestAdd(t *testing.T) {
	m := mesh.NewUnitSquareMesh(4)
	Q := NewFeControlSpace(m)
	require.NoError(t, Q.UpdateDomain(field(Q, smoothDeformation)))
	moyo, err := NewMoYoSpectralConstraint(20, 0.3, Q)
	require.NoError(t, err)
	var (
		a = NewVolumeFunctional(Q)
		b = moyo
		c = Scale(-2.5, NewVolumeFunctional(Q))
	)
	sums := map[string]Objective{
		"(a+b)+c": Add(Add(a, b), c),
		"a+(b+c)": Add(a, Add(b, c)),
		"c+(a+b)": Add(c, Add(a, b)),
		"(c+b)+a": Add(Add(c, b), a),
	}
	want, err := sums["(a+b)+c"].Value()
	require.NoError(t, err)
	wantD := make([]float64, Q.Len())
	require.NoError(t, sums["(a+b)+c"].Derivative(wantD))
	for name, s := range sums {
		assert.Len(t, s.(*Sum).Terms, 3, name)
		v, err := s.Value()
		require.NoError(t, err)
		assert.InDelta(t, want, v, 1.e-12, name)
		d := make([]float64, Q.Len())
		require.NoError(t, s.Derivative(d))
		assert.InDeltaSlice(t, wantD, d, 1.e-12, name)
	}
}

func TestEqualityConstraint(t *testing.T) {
	m := mesh.NewUnitSquareMesh(2)
	Q := NewFeControlSpace(m)
	vol := NewVolumeFunctional(Q)
	econ := NewEqualityConstraint([]Objective{vol}, []float64{0.75})
	c, err := econ.Values()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25}, c, 1.e-12)
	assert.Panics(t, func() { NewEqualityConstraint([]Objective{vol}, nil) })
}

// countingPDE is a state u = x coordinate of each vertex
type countingPDE struct {
	m      *mesh.Mesh
	u      *fem.Function
	solves int
}

func (p *countingPDE) Mesh() *mesh.Mesh        { return p.m }
func (p *countingPDE) Solution() *fem.Function { return p.u }
func (p *countingPDE) Solve() error {
	p.solves++
	p.u.Interpolate(p.m.Vertices, 0, func(x []float64) float64 { return x[0] })
	return nil
}
func (p *countingPDE) SolveAdjoint(rhs []float64) ([]float64, error) {
	return append([]float64(nil), rhs...), nil
}
func (p *countingPDE) ShapeSensitivity(adjoint, dst []float64) error {
	// R = u - x, so -λᵀ ∂R/∂X adds λ to the x components
	for v, l := range adjoint {
		dst[2*v] += l
	}
	return nil
}

// sumState is Σ_v u_v, independent of the mesh for a fixed state
type sumState struct{ e *countingPDE }

func (s sumState) Value() (float64, error)        { return floats.Sum(s.e.u.Values), nil }
func (s sumState) Derivative(dst []float64) error { return nil }
func (s sumState) StateDerivative(dst []float64) error {
	for i := range dst {
		dst[i]++
	}
	return nil
}

func TestReducedObjective(t *testing.T) {
	m := mesh.NewUnitSquareMesh(2)
	Q := NewFeControlSpace(m)
	e := &countingPDE{m: Q.MeshM(), u: fem.NewFunction("u", m.NumVertices(), 1)}
	J := NewReducedObjective(sumState{e}, e, nil)
	var callbacks, hooks int
	J.Callback = func() error { callbacks++; return nil }
	J.AdjointHook = func([]float64) error { hooks++; return nil }

	v, err := J.Value()
	require.NoError(t, err)
	assert.InDelta(t, 4.5, v, 1.e-12)
	_, err = J.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, e.solves)
	assert.Equal(t, 1, callbacks)

	// moving the mesh forces a new solve
	require.NoError(t, Q.UpdateDomain(field(Q, func(x []float64) []float64 { return []float64{0.1 * x[0], 0} })))
	v, err = J.Value()
	require.NoError(t, err)
	assert.InDelta(t, 4.95, v, 1.e-12)
	assert.Equal(t, 2, e.solves)

	// the reduced derivative of Σ x_v is one per x component
	checkDerivative(t, Q, J, Q.Deformation(), field(Q, perturbation))
	assert.Greater(t, hooks, 0)
}
