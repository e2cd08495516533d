package fem

import (
	"fmt"
	"math"
)

// Quadrature is a rule on the reference simplex in barycentric coordinates.
// Weights sum to one, so ∫_T f dx ≈ vol Σ_q w_q f(x_q).
type Quadrature struct {
	Points  [][]float64
	Weights []float64
}

// QuadratureRule returns the cheapest available rule for dimension dim that
// integrates polynomials of the given degree exactly, or the most accurate
// one available for that dimension
func QuadratureRule(dim, degree int) Quadrature {
	switch dim {
	case 1:
		if degree <= 1 {
			return Quadrature{[][]float64{{0.5, 0.5}}, []float64{1}}
		}
		g := 0.5 / math.Sqrt(3)
		return Quadrature{
			[][]float64{{0.5 + g, 0.5 - g}, {0.5 - g, 0.5 + g}},
			[]float64{0.5, 0.5},
		}
	case 2:
		switch {
		case degree <= 1:
			return Quadrature{[][]float64{{1. / 3, 1. / 3, 1. / 3}}, []float64{1}}
		case degree == 2:
			return symmetric3(2./3, 1./3)
		default:
			q1 := symmetric3(0.108103018168070, 0.223381589678011)
			q2 := symmetric3(0.816847572980459, 0.109951743655322)
			return Quadrature{
				append(q1.Points, q2.Points...),
				append(q1.Weights, q2.Weights...),
			}
		}
	case 3:
		if degree <= 1 {
			return Quadrature{[][]float64{{0.25, 0.25, 0.25, 0.25}}, []float64{1}}
		}
		a, b := 0.5854101966249685, 0.1381966011250105
		return Quadrature{
			[][]float64{{a, b, b, b}, {b, a, b, b}, {b, b, a, b}, {b, b, b, a}},
			[]float64{0.25, 0.25, 0.25, 0.25},
		}
	default:
		panic(fmt.Errorf("no quadrature for dimension %d", dim))
	}
}

// symmetric3 is the orbit of (a, b, b) with b = (1-a)/2, each point with
// weight w
func symmetric3(a, w float64) Quadrature {
	b := (1 - a) / 2
	return Quadrature{
		[][]float64{{a, b, b}, {b, a, b}, {b, b, a}},
		[]float64{w, w, w},
	}
}
