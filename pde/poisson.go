package pde

import (
	"fmt"

	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/mesh"
	"github.com/notargets/goshape/utils"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// PoissonSolver solves -Δu = F with u = 0 on the whole boundary, continuous
// piecewise linear elements
type PoissonSolver struct {
	F        float64
	mesh     *mesh.Mesh
	solution *fem.Function
	bcs      *fem.DirichletSet
	lu       *utils.BandLU
	logger   *zap.Logger
}

func NewPoissonSolver(m *mesh.Mesh, logger *zap.Logger) *PoissonSolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	bcs := fem.NewDirichletSet()
	for _, v := range m.BoundaryVertices() {
		bcs.Set(v, 0)
	}
	return &PoissonSolver{
		F:        4,
		mesh:     m,
		solution: fem.NewFunction("u", m.NumVertices(), 1),
		bcs:      bcs,
		logger:   logger,
	}
}

func (s *PoissonSolver) Mesh() *mesh.Mesh        { return s.mesh }
func (s *PoissonSolver) Solution() *fem.Function { return s.solution }

func (s *PoissonSolver) Solve() (err error) {
	var (
		m = s.mesh
		d = m.Dim
		n = m.NumVertices()
		b = make([]float64, n)
	)
	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return
	}
	as := fem.NewAssembler(n, s.bcs)
	for k, el := range m.Elements {
		sx := simplices[k]
		for a, va := range el {
			for c, vc := range el {
				as.Add(va, vc, sx.Vol*floats.Dot(sx.G[a], sx.G[c]))
			}
			b[va] += s.F * sx.Vol / float64(d+1)
		}
	}
	s.bcs.Apply(b)
	if s.lu, err = utils.NewBandLU(as.CSR()); err != nil {
		return fmt.Errorf("poisson: %w", err)
	}
	copy(s.solution.Values, s.lu.Solve(b))
	// pivoting leaves round-off on the identity rows
	s.bcs.Apply(s.solution.Values)
	s.logger.Debug("poisson solved", zap.Float64("max", floats.Max(s.solution.Values)))
	return
}

// SolveAdjoint solves Kᵀλ = rhs for the last assembled system
func (s *PoissonSolver) SolveAdjoint(rhs []float64) (adjoint []float64, err error) {
	if s.lu == nil {
		if err = s.Solve(); err != nil {
			return
		}
	}
	adjoint = s.lu.SolveTrans(rhs)
	s.bcs.Zero(adjoint)
	return
}

// ShapeSensitivity adds -λᵀ ∂R/∂X, the residual of element T being
//
//	R_c = vol ∇u·∇λ_c - F vol/(d+1)
func (s *PoissonSolver) ShapeSensitivity(adjoint, dst []float64) (err error) {
	var (
		m = s.mesh
		d = m.Dim
	)
	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return
	}
	for k, el := range m.Elements {
		var (
			sx    = simplices[k]
			u     = s.solution.Gather(el, 0)
			lam   = make([]float64, len(el))
			sG    = fem.NewGradient(d)
			gradU = sx.Grad(u)
		)
		for a, v := range el {
			lam[a] = adjoint[v]
		}
		gradL := sx.Grad(lam)
		sVol := floats.Dot(gradU, gradL) - s.F*floats.Sum(lam)/float64(d+1)
		for a := range el {
			for j := 0; j < d; j++ {
				sG[a][j] = sx.Vol * (u[a]*gradL[j] + lam[a]*gradU[j])
			}
		}
		dX := sx.NodeSensitivity(sVol, sG)
		for a := range dX {
			floats.Scale(-1, dX[a])
		}
		fem.Scatter(dst, el, dX)
	}
	return
}
