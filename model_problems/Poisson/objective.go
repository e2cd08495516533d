package Poisson

import (
	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/mesh"
	"github.com/notargets/goshape/pde"
	"github.com/notargets/goshape/shape"
	"gonum.org/v1/gonum/floats"
)

// L2TrackingObjective is the misfit ∫ (u - u_t)² dx between the Poisson
// solution and the target u_t = 0.36 - (x-0.5)² - (y-0.5)²
type L2TrackingObjective struct {
	E    *pde.PoissonSolver
	quad fem.Quadrature
}

var _ shape.StateObjective = (*L2TrackingObjective)(nil)

func NewL2TrackingObjective(e *pde.PoissonSolver) *L2TrackingObjective {
	return &L2TrackingObjective{
		E:    e,
		quad: fem.QuadratureRule(e.Mesh().Dim, 4),
	}
}

// Target is u_t and its gradient at x
func Target(x []float64) (ut float64, grad []float64) {
	ut = 0.36
	grad = make([]float64, len(x))
	for j := 0; j < 2 && j < len(x); j++ {
		ut -= (x[j] - 0.5) * (x[j] - 0.5)
		grad[j] = -2 * (x[j] - 0.5)
	}
	return
}

// integrate visits the quadrature points of every element with the misfit
// u - u_t and the target gradient there
func (o *L2TrackingObjective) integrate(visit func(k int, s fem.Simplex, q int, misfit float64, gradT []float64)) (err error) {
	m := o.E.Mesh()
	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return
	}
	u := o.E.Solution()
	for k, s := range simplices {
		var (
			el = m.Elements[k]
			X  = elementCoordinates(m, el)
			ue = u.Gather(el, 0)
		)
		for q, lambda := range o.quad.Points {
			ut, gradT := Target(fem.Point(X, lambda))
			visit(k, s, q, floats.Dot(lambda, ue)-ut, gradT)
		}
	}
	return
}

func elementCoordinates(m *mesh.Mesh, el []int) (X [][]float64) {
	X = make([][]float64, len(el))
	for a, v := range el {
		X[a] = m.Vertices[v]
	}
	return
}

func (o *L2TrackingObjective) Value() (v float64, err error) {
	err = o.integrate(func(k int, s fem.Simplex, q int, misfit float64, _ []float64) {
		v += s.Vol * o.quad.Weights[q] * misfit * misfit
	})
	return
}

// Derivative is ∫ (u - u_t)² div w - 2 (u - u_t) ∇u_t·w dx, the nodal values
// of u moving with the mesh
func (o *L2TrackingObjective) Derivative(dst []float64) (err error) {
	var (
		m     = o.E.Mesh()
		sVol  = make([]float64, m.NumElements())
		point = make([][][]float64, m.NumElements())
	)
	err = o.integrate(func(k int, s fem.Simplex, q int, misfit float64, gradT []float64) {
		if point[k] == nil {
			point[k] = fem.NewGradient(s.Dim)
		}
		w := o.quad.Weights[q]
		sVol[k] += w * misfit * misfit
		floats.Scale(-2*s.Vol*w*misfit, gradT)
		fem.AddPointSensitivity(point[k], o.quad.Points[q], gradT)
	})
	if err != nil {
		return
	}
	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return
	}
	for k, s := range simplices {
		dX := s.NodeSensitivity(sVol[k], nil)
		for a := range dX {
			floats.Add(dX[a], point[k][a])
		}
		fem.Scatter(dst, m.Elements[k], dX)
	}
	return
}

func (o *L2TrackingObjective) StateDerivative(dst []float64) error {
	m := o.E.Mesh()
	return o.integrate(func(k int, s fem.Simplex, q int, misfit float64, _ []float64) {
		c := 2 * s.Vol * o.quad.Weights[q] * misfit
		for a, v := range m.Elements[k] {
			dst[v] += c * o.quad.Points[q][a]
		}
	})
}
