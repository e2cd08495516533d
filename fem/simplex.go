package fem

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/goshape/mesh"
	"gonum.org/v1/gonum/mat"
)

var ErrInvertedElement = errors.New("inverted or degenerate element")

// Simplex holds the geometry of a linear simplex: its measure and the
// constant gradients of the barycentric coordinates, G[a] = ∇λ_a.
type Simplex struct {
	Dim int
	Vol float64
	G   [][]float64
}

// NewSimplex computes the geometry of the simplex with vertices X (Dim+1
// points). A non positive orientation returns ErrInvertedElement.
func NewSimplex(X [][]float64) (s Simplex, err error) {
	var (
		d = len(X) - 1
		J = mat.NewDense(d, d, nil)
	)
	for c := 0; c < d; c++ {
		if len(X[c+1]) != d {
			panic(fmt.Errorf("simplex vertex has %d coordinates, expected %d", len(X[c+1]), d))
		}
		for r := 0; r < d; r++ {
			J.Set(r, c, X[c+1][r]-X[0][r])
		}
	}
	det := mat.Det(J)
	s = Simplex{Dim: d, Vol: det / float64(factorial(d))}
	if !(det > 0) || math.IsInf(det, 0) {
		return s, ErrInvertedElement
	}
	var Jinv mat.Dense
	if err = Jinv.Inverse(J); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return s, fmt.Errorf("%v: %w", err, ErrInvertedElement)
		}
		err = nil
	}
	s.G = make([][]float64, d+1)
	s.G[0] = make([]float64, d)
	for a := 1; a <= d; a++ {
		s.G[a] = make([]float64, d)
		for j := 0; j < d; j++ {
			s.G[a][j] = Jinv.At(a-1, j)
			s.G[0][j] -= s.G[a][j]
		}
	}
	return
}

// ElementSimplex is NewSimplex for element k of m
func ElementSimplex(m *mesh.Mesh, k int) (s Simplex, err error) {
	el := m.Elements[k]
	X := make([][]float64, len(el))
	for a, v := range el {
		X[a] = m.Vertices[v]
	}
	if s, err = NewSimplex(X); err != nil {
		err = fmt.Errorf("element %d: %w", k, err)
	}
	return
}

// ComputeGeometry returns the simplex of every element of m, failing on the
// first inverted element
func ComputeGeometry(m *mesh.Mesh) (simplices []Simplex, err error) {
	simplices = make([]Simplex, m.NumElements())
	for k := range m.Elements {
		if simplices[k], err = ElementSimplex(m, k); err != nil {
			return nil, err
		}
	}
	return
}

// Grad returns the gradient of the linear function with vertex values u
func (s Simplex) Grad(u []float64) (g []float64) {
	g = make([]float64, s.Dim)
	for a, ua := range u {
		for j := range g {
			g[j] += ua * s.G[a][j]
		}
	}
	return
}

// Point maps barycentric coordinates lambda to physical coordinates
func Point(X [][]float64, lambda []float64) (x []float64) {
	x = make([]float64, len(X[0]))
	for a, l := range lambda {
		for j := range x {
			x[j] += l * X[a][j]
		}
	}
	return
}

// MassEntry is ∫ λ_a λ_b dx / vol on a simplex of dimension d
func MassEntry(d, a, b int) float64 {
	if a == b {
		return 2 / float64((d+1)*(d+2))
	}
	return 1 / float64((d+1)*(d+2))
}

func factorial(n int) (f int) {
	f = 1
	for i := 2; i <= n; i++ {
		f *= i
	}
	return
}
