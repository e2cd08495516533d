package pde

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/mesh"
	"github.com/notargets/goshape/utils"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

var ErrNewtonDiverged = errors.New("newton iteration diverged")

// NavierStokesSolver solves the steady incompressible Navier-Stokes equations
//
//	-ν Δu + (u·∇)u + ∇p = 0,  div u = 0
//
// with equal order linear velocity and pressure, stabilized by the
// Brezzi-Pitkäranta term -τ ∫ ∇p·∇q, τ = Delta h²/ν. The unknowns are stored
// vertex-major, velocity components first then pressure.
type NavierStokesSolver struct {
	Nu    float64
	Delta float64
	// BCs maps boundary tags to conditions, BCOutflow and untagged
	// facets are natural
	BCs    map[int]utils.BCType
	Inflow func(x []float64) []float64

	MaxIterations     int
	AbsTol, RelTol    float64
	ContinuationSteps int

	mesh      *mesh.Mesh
	solution  *fem.Function
	simplices []fem.Simplex
	bcs       *fem.DirichletSet
	lu        *utils.BandLU
	logger    *zap.Logger
}

func NewNavierStokesSolver(m *mesh.Mesh, nu float64, logger *zap.Logger) (*NavierStokesSolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var inflow func(x []float64) []float64
	switch m.Dim {
	case 2:
		inflow = func(x []float64) []float64 {
			return []float64{4 * x[1] * (1 - x[1]), 0}
		}
	case 3:
		inflow = func(x []float64) []float64 {
			return []float64{16 * x[1] * (1 - x[1]) * x[2] * (1 - x[2]), 0, 0}
		}
	default:
		return nil, fmt.Errorf("navier-stokes in %d dimensions is not supported", m.Dim)
	}
	return &NavierStokesSolver{
		Nu:    nu,
		Delta: 0.2,
		BCs: map[int]utils.BCType{
			mesh.PipeInflow:    utils.BCInflow,
			mesh.PipeOutflow:   utils.BCOutflow,
			mesh.PipeFixedWall: utils.BCWall,
			mesh.PipeFreeWall:  utils.BCWall,
		},
		Inflow:            inflow,
		MaxIterations:     25,
		AbsTol:            1.e-10,
		RelTol:            1.e-10,
		ContinuationSteps: 8,
		mesh:              m,
		solution:          fem.NewFunction("w", m.NumVertices(), m.Dim+1),
		logger:            logger,
	}, nil
}

func (s *NavierStokesSolver) Mesh() *mesh.Mesh        { return s.mesh }
func (s *NavierStokesSolver) Solution() *fem.Function { return s.solution }

// Velocity and Pressure copy the solution components
func (s *NavierStokesSolver) Velocity() *fem.Function {
	return s.solution.Components("velocity", 0, s.mesh.Dim)
}
func (s *NavierStokesSolver) Pressure() *fem.Function {
	return s.solution.Components("pressure", s.mesh.Dim, s.mesh.Dim+1)
}

func (s *NavierStokesSolver) nc() int { return s.mesh.Dim + 1 }

// prepare computes the geometry and the Dirichlet values on the current mesh
func (s *NavierStokesSolver) prepare() (err error) {
	if s.simplices, err = fem.ComputeGeometry(s.mesh); err != nil {
		return
	}
	var (
		d      = s.mesh.Dim
		nc     = s.nc()
		inflow []int
		walls  []int
	)
	for tag, bc := range s.BCs {
		switch bc {
		case utils.BCInflow:
			inflow = append(inflow, tag)
		case utils.BCWall:
			walls = append(walls, tag)
		}
	}
	sort.Ints(inflow)
	sort.Ints(walls)
	s.bcs = fem.NewDirichletSet()
	if len(inflow) != 0 {
		for _, v := range s.mesh.BoundaryVertices(inflow...) {
			for i, val := range s.Inflow(s.mesh.Vertices[v]) {
				s.bcs.Set(v*nc+i, val)
			}
		}
	}
	// walls win on vertices shared with the inflow
	if len(walls) != 0 {
		for _, v := range s.mesh.BoundaryVertices(walls...) {
			for i := 0; i < d; i++ {
				s.bcs.Set(v*nc+i, 0)
			}
		}
	}
	return
}

// Solve runs Newton's method from the current solution. When it fails the
// viscosity is raised to ν 2^k and lowered back to ν, for k up to
// ContinuationSteps.
func (s *NavierStokesSolver) Solve() (err error) {
	if err = s.prepare(); err != nil {
		return
	}
	s.lu = nil
	w := append([]float64(nil), s.solution.Values...)
	if err = s.newton(w, s.Nu); err == nil {
		copy(s.solution.Values, w)
		return
	}
	s.logger.Info("newton failed, starting viscosity continuation", zap.Error(err))
	for k := 1; k <= s.ContinuationSteps; k++ {
		copy(w, s.solution.Values)
		ok := true
		for j := k; j >= 0; j-- {
			if err = s.newton(w, s.Nu*math.Pow(2, float64(j))); err != nil {
				ok = false
				break
			}
		}
		if ok {
			s.logger.Info("viscosity continuation converged", zap.Int("steps", k))
			copy(s.solution.Values, w)
			return
		}
	}
	return fmt.Errorf("viscosity continuation: %w", err)
}

func (s *NavierStokesSolver) newton(w []float64, nu float64) (err error) {
	s.bcs.Apply(w)
	R := s.residual(w, nu)
	var (
		norm0 = floats.Norm(R, 2)
		norm  = norm0
		trial = make([]float64, len(w))
	)
	if norm0 <= s.AbsTol {
		return
	}
	for it := 0; it < s.MaxIterations; it++ {
		lu, err := utils.NewBandLU(s.jacobian(w, nu))
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrNewtonDiverged)
		}
		dw := lu.Solve(R)
		var (
			alpha    = 1.
			accepted bool
			Rt       []float64
			nt       float64
		)
		for ls := 0; ls < 12; ls++ {
			floats.AddScaledTo(trial, w, -alpha, dw)
			Rt = s.residual(trial, nu)
			nt = floats.Norm(Rt, 2)
			if nt < (1-1.e-4*alpha)*norm {
				accepted = true
				break
			}
			alpha /= 2
		}
		if !accepted {
			if norm <= 1.e3*s.AbsTol {
				// stagnation at round off
				return nil
			}
			return fmt.Errorf("line search failed at iteration %d, residual %g: %w", it, norm, ErrNewtonDiverged)
		}
		copy(w, trial)
		R, norm = Rt, nt
		s.logger.Debug("newton",
			zap.Int("iteration", it), zap.Float64("nu", nu),
			zap.Float64("residual", norm), zap.Float64("alpha", alpha))
		if norm <= s.AbsTol || norm <= s.RelTol*norm0 {
			return nil
		}
	}
	return fmt.Errorf("no convergence in %d iterations, residual %g: %w", s.MaxIterations, norm, ErrNewtonDiverged)
}

// nsElement holds the local fields of one element
type nsElement struct {
	sx   fem.Simplex
	U    [][]float64 // velocity per vertex
	P    []float64
	Gu   [][]float64 // Gu[i][j] = ∂u_i/∂x_j
	Gp   []float64
	ubar [][]float64 // ubar[c][j] = ∫ u_j λ_c dx / vol
	pbar float64     // mean pressure
	div  float64
}

func (s *NavierStokesSolver) element(k int, w []float64) (e nsElement) {
	var (
		el = s.mesh.Elements[k]
		d  = s.mesh.Dim
		nc = s.nc()
	)
	e.sx = s.simplices[k]
	e.U = make([][]float64, d+1)
	e.P = make([]float64, d+1)
	for a, v := range el {
		e.U[a] = w[v*nc : v*nc+d]
		e.P[a] = w[v*nc+d]
	}
	e.Gu, e.Gp = gradients(e.sx, e.U, e.P)
	e.ubar = make([][]float64, d+1)
	for c := 0; c <= d; c++ {
		e.ubar[c] = make([]float64, d)
		for b := 0; b <= d; b++ {
			m := fem.MassEntry(d, b, c)
			for j := 0; j < d; j++ {
				e.ubar[c][j] += e.U[b][j] * m
			}
		}
	}
	e.pbar = floats.Sum(e.P) / float64(d+1)
	for i := 0; i < d; i++ {
		e.div += e.Gu[i][i]
	}
	return
}

// gradients of a vector field U and a scalar P given at the vertices
func gradients(sx fem.Simplex, U [][]float64, P []float64) (Gu [][]float64, Gp []float64) {
	d := sx.Dim
	Gu = make([][]float64, d)
	for i := 0; i < d; i++ {
		Gu[i] = make([]float64, d)
		for a := range U {
			for j := 0; j < d; j++ {
				Gu[i][j] += U[a][i] * sx.G[a][j]
			}
		}
	}
	Gp = sx.Grad(P)
	return
}

func (s *NavierStokesSolver) tau(vol, nu float64) float64 {
	return s.Delta * math.Pow(vol, 2/float64(s.mesh.Dim)) / nu
}

func (s *NavierStokesSolver) residual(w []float64, nu float64) (R []float64) {
	var (
		d  = s.mesh.Dim
		nc = s.nc()
	)
	R = make([]float64, len(w))
	for k, el := range s.mesh.Elements {
		var (
			e   = s.element(k, w)
			vol = e.sx.Vol
			tau = s.tau(vol, nu)
		)
		for c, vc := range el {
			Gc := e.sx.G[c]
			for i := 0; i < d; i++ {
				var r float64
				for j := 0; j < d; j++ {
					r += nu*e.Gu[i][j]*Gc[j] + e.Gu[i][j]*e.ubar[c][j]
				}
				R[vc*nc+i] += vol * (r - e.pbar*Gc[i])
			}
			R[vc*nc+d] += -vol*e.div/float64(d+1) - tau*vol*floats.Dot(e.Gp, Gc)
		}
	}
	s.bcs.ApplyResidual(R, w)
	return
}

func (s *NavierStokesSolver) jacobian(w []float64, nu float64) utils.CSR {
	var (
		d  = s.mesh.Dim
		nc = s.nc()
		as = fem.NewAssembler(len(w), s.bcs)
	)
	for k, el := range s.mesh.Elements {
		var (
			e   = s.element(k, w)
			vol = e.sx.Vol
			tau = s.tau(vol, nu)
		)
		for c, vc := range el {
			Gc := e.sx.G[c]
			for a, va := range el {
				var (
					Ga   = e.sx.G[a]
					GaGc = floats.Dot(Ga, Gc)
					Mac  = fem.MassEntry(d, a, c)
				)
				for i := 0; i < d; i++ {
					row := vc*nc + i
					for kk := 0; kk < d; kk++ {
						v := vol * e.Gu[i][kk] * Mac
						if i == kk {
							v += vol * (nu*GaGc + floats.Dot(Ga, e.ubar[c]))
						}
						as.Add(row, va*nc+kk, v)
					}
					as.Add(row, va*nc+d, -vol*Gc[i]/float64(d+1))
				}
				rowP := vc*nc + d
				for kk := 0; kk < d; kk++ {
					as.Add(rowP, va*nc+kk, -vol*Ga[kk]/float64(d+1))
				}
				as.Add(rowP, va*nc+d, -tau*vol*GaGc)
			}
		}
	}
	return as.CSR()
}

// SolveAdjoint solves Jᵀλ = rhs with the Jacobian at the current solution.
// Constrained entries of λ are zero.
func (s *NavierStokesSolver) SolveAdjoint(rhs []float64) (adjoint []float64, err error) {
	if s.lu == nil {
		if err = s.prepare(); err != nil {
			return
		}
		if s.lu, err = utils.NewBandLU(s.jacobian(s.solution.Values, s.Nu)); err != nil {
			return nil, fmt.Errorf("adjoint: %w", err)
		}
	}
	adjoint = s.lu.SolveTrans(rhs)
	s.bcs.Zero(adjoint)
	return
}

// ShapeSensitivity adds -λᵀ ∂R/∂X for the adjoint state λ
func (s *NavierStokesSolver) ShapeSensitivity(adjoint, dst []float64) (err error) {
	if err = s.prepare(); err != nil {
		return
	}
	var (
		d     = s.mesh.Dim
		nc    = s.nc()
		nu    = s.Nu
		w     = s.solution.Values
		twoD  = 2 / float64(d)
		coeff = s.Delta / nu
	)
	for k, el := range s.mesh.Elements {
		var (
			e   = s.element(k, w)
			sx  = e.sx
			vol = sx.Vol
			L   = make([][]float64, d+1)
			Pi  = make([]float64, d+1)
			W   = make([][]float64, d)
		)
		for a, v := range el {
			L[a] = adjoint[v*nc : v*nc+d]
			Pi[a] = adjoint[v*nc+d]
		}
		GL, GPi := gradients(sx, L, Pi)
		for i := 0; i < d; i++ {
			W[i] = make([]float64, d)
			for c := 0; c <= d; c++ {
				for j := 0; j < d; j++ {
					W[i][j] += L[c][i] * e.ubar[c][j]
				}
			}
		}
		var (
			divL    float64
			piBar   = floats.Sum(Pi) / float64(d+1)
			GuGL    float64
			GuW     float64
			GpGPi   = floats.Dot(e.Gp, GPi)
			volPow  = math.Pow(vol, twoD)
			stabVol = coeff * vol * volPow
		)
		for i := 0; i < d; i++ {
			divL += GL[i][i]
			for j := 0; j < d; j++ {
				GuGL += e.Gu[i][j] * GL[i][j]
				GuW += e.Gu[i][j] * W[i][j]
			}
		}
		sVol := nu*GuGL + GuW - e.pbar*divL - piBar*e.div - coeff*(1+twoD)*volPow*GpGPi
		sG := fem.NewGradient(d)
		for a := 0; a <= d; a++ {
			for j := 0; j < d; j++ {
				var v float64
				for i := 0; i < d; i++ {
					v += nu * vol * (e.U[a][i]*GL[i][j] + L[a][i]*e.Gu[i][j])
					v += vol * e.U[a][i] * W[i][j]
				}
				v -= vol * e.pbar * L[a][j]
				v -= vol * piBar * e.U[a][j]
				v -= stabVol * (e.P[a]*GPi[j] + Pi[a]*e.Gp[j])
				sG[a][j] = v
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
