package shape

import (
	"fmt"

	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/utils"
	"gonum.org/v1/gonum/floats"
)

// InnerProduct is a symmetric positive definite bilinear form on the control
// dofs that are not fixed by a boundary condition
type InnerProduct interface {
	// FreeDofs lists the control dofs the inner product acts on, increasing
	FreeDofs() []int
	Factor() *utils.SymBandFactor
	// Eval returns a(u, v) for full length control vectors
	Eval(u, v []float64) float64
	// Riesz returns the representer of a dual vector, zero on fixed dofs
	Riesz(dual []float64) []float64
	Restrict(full []float64) []float64
	Extend(free []float64) []float64
}

// elementForm returns the entry of the element matrix coupling the basis
// function of vertex a, component i with vertex b, component j
type elementForm func(s fem.Simplex, a, i, b, j int) float64

// AssembledInnerProduct is an inner product assembled on the reference mesh
// and restricted to the free dofs
type AssembledInnerProduct struct {
	n      int
	free   []int
	index  []int // control dof to free dof, -1 when fixed
	matrix utils.CSR
	factor *utils.SymBandFactor
}

// LaplaceInnerProduct is ∫ ∇u:∇v + mu u·v dx on the reference mesh. All
// components on facets carrying one of fixedBids are removed.
func LaplaceInnerProduct(Q ControlSpace, fixedBids []int, mu float64) (*AssembledInnerProduct, error) {
	d := Q.Dim()
	return assembleInnerProduct(Q, fixedBids, func(s fem.Simplex, a, i, b, j int) float64 {
		if i != j {
			return 0
		}
		return s.Vol * (floats.Dot(s.G[a], s.G[b]) + mu*fem.MassEntry(d, a, b))
	})
}

// ElasticityInnerProduct is ∫ 2ε(u):ε(v) + mu u·v dx on the reference mesh,
// ε being the symmetric gradient
func ElasticityInnerProduct(Q ControlSpace, fixedBids []int, mu float64) (*AssembledInnerProduct, error) {
	d := Q.Dim()
	return assembleInnerProduct(Q, fixedBids, func(s fem.Simplex, a, i, b, j int) float64 {
		v := s.G[a][j] * s.G[b][i]
		if i == j {
			v += floats.Dot(s.G[a], s.G[b]) + mu*fem.MassEntry(d, a, b)
		}
		return s.Vol * v
	})
}

func assembleInnerProduct(Q ControlSpace, fixedBids []int, form elementForm) (ip *AssembledInnerProduct, err error) {
	var (
		m = Q.MeshR()
		d = Q.Dim()
	)
	ip = &AssembledInnerProduct{n: Q.Len(), index: make([]int, Q.Len())}
	fixed := make(map[int]bool)
	if len(fixedBids) != 0 {
		for _, v := range m.BoundaryVertices(fixedBids...) {
			fixed[v] = true
		}
	}
	for dof := range ip.index {
		if fixed[dof/d] {
			ip.index[dof] = -1
			continue
		}
		ip.index[dof] = len(ip.free)
		ip.free = append(ip.free, dof)
	}
	if len(ip.free) == 0 {
		return nil, fmt.Errorf("inner product: every control dof is fixed")
	}

	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return nil, err
	}
	dok := utils.NewDOK(len(ip.free), len(ip.free))
	for k, el := range m.Elements {
		s := simplices[k]
		for a, va := range el {
			for i := 0; i < d; i++ {
				r := ip.index[va*d+i]
				if r < 0 {
					continue
				}
				for b, vb := range el {
					for j := 0; j < d; j++ {
						c := ip.index[vb*d+j]
						if c < 0 {
							continue
						}
						if v := form(s, a, i, b, j); v != 0 {
							dok.Add(r, c, v)
						}
					}
				}
			}
		}
	}
	dok.SetReadOnly("inner product")
	ip.matrix = dok.ToCSR()
	if ip.factor, err = utils.NewSymBandFactor(ip.matrix); err != nil {
		return nil, fmt.Errorf("inner product: %w", err)
	}
	return
}

func (ip *AssembledInnerProduct) FreeDofs() []int              { return ip.free }
func (ip *AssembledInnerProduct) Factor() *utils.SymBandFactor { return ip.factor }
func (ip *AssembledInnerProduct) Matrix() utils.CSR            { return ip.matrix }

func (ip *AssembledInnerProduct) Eval(u, v []float64) float64 {
	var (
		uf = ip.Restrict(u)
		Av = make([]float64, len(ip.free))
	)
	ip.matrix.MulVec(Av, ip.Restrict(v))
	return floats.Dot(uf, Av)
}

func (ip *AssembledInnerProduct) Riesz(dual []float64) []float64 {
	return ip.Extend(ip.factor.Solve(ip.Restrict(dual)))
}

func (ip *AssembledInnerProduct) Restrict(full []float64) (free []float64) {
	if len(full) != ip.n {
		panic(fmt.Errorf("control vector length %d, expected %d", len(full), ip.n))
	}
	free = make([]float64, len(ip.free))
	for r, dof := range ip.free {
		free[r] = full[dof]
	}
	return
}

func (ip *AssembledInnerProduct) Extend(free []float64) (full []float64) {
	full = make([]float64, ip.n)
	for r, dof := range ip.free {
		full[dof] = free[r]
	}
	return
}
