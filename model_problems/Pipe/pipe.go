// Package Pipe minimizes the energy dissipated by a steady Navier-Stokes flow
// through an S-bend pipe, deforming the free walls at constant volume.
package Pipe

import (
	"errors"
	"fmt"

	"github.com/notargets/goshape/InputParameters"
	"github.com/notargets/goshape/mesh"
	"github.com/notargets/goshape/optim"
	"github.com/notargets/goshape/output"
	"github.com/notargets/goshape/pde"
	"github.com/notargets/goshape/shape"
	"github.com/notargets/goshape/utils"
	"go.uber.org/zap"
)

var ErrUnsupportedDimension = errors.New("unsupported mesh dimension")

// Viscosity returns the flow viscosity for a mesh of dimension dim
func Viscosity(dim int) (float64, error) {
	switch dim {
	case 2:
		return 1. / 400., nil
	case 3:
		return 1. / 10., nil
	default:
		return 0, fmt.Errorf("pipe flow in %d dimensions: %w", dim, ErrUnsupportedDimension)
	}
}

// DefaultParameters is the optimizer setup of the pipe problem
func DefaultParameters() *InputParameters.Parameters {
	params, err := InputParameters.NewParameterList(map[string]interface{}{
		"General": map[string]interface{}{
			"Secant": map[string]interface{}{"Type": "Limited-Memory BFGS", "Maximum Storage": 20},
		},
		"Step": map[string]interface{}{
			"Type": "Augmented Lagrangian",
			"Augmented Lagrangian": map[string]interface{}{
				"Subproblem Step Type":                    "Line Search",
				"Maximum Penalty Parameter":               10,
				"Use Default Initial Penalty Parameter":   false,
				"Initial Penalty Parameter":               1.0,
				"Print Intermediate Optimization History": true,
				"Subproblem Iteration Limit":              100,
			},
		},
		"Status Test": map[string]interface{}{
			"Gradient Tolerance":   1e-3,
			"Step Tolerance":       1e-3,
			"Constraint Tolerance": 1e-1,
			"Iteration Limit":      12,
		},
	})
	if err != nil {
		panic(err)
	}
	return params
}

type Config struct {
	// MeshFile is a gmsh file, when empty a pipe of Dim dimensions is generated
	MeshFile   string
	Dim        int
	Nx, Ny, Nz int
	// Viscosity replaces the dimension default when positive
	Viscosity float64
	// TracePath enables velocity output after every state solve
	TracePath string
	Params    *InputParameters.Parameters
}

func NewConfig() Config {
	return Config{Dim: 2, Nx: 30, Ny: 6, Nz: 4}
}

// Mesh loads or generates the reference mesh
func (cfg Config) Mesh() (*mesh.Mesh, error) {
	if cfg.MeshFile != "" {
		return mesh.ReadMeshFile(cfg.MeshFile)
	}
	switch cfg.Dim {
	case 2:
		return mesh.NewPipeMesh2D(cfg.Nx, cfg.Ny), nil
	case 3:
		return mesh.NewPipeMesh3D(cfg.Nx, cfg.Ny, cfg.Nz), nil
	default:
		return nil, fmt.Errorf("generated pipe in %d dimensions: %w", cfg.Dim, ErrUnsupportedDimension)
	}
}

type Problem struct {
	Q             *shape.FeControlSpace
	Control       *shape.ControlVector
	State         *pde.NavierStokesSolver
	Objective     shape.Objective
	Volume        *shape.VolumeFunctional
	InitialVolume float64
	Constraint    *shape.EqualityConstraint
	Trace         *output.Trace
	params        *InputParameters.Parameters
	logger        *zap.Logger
}

// Setup builds the pipe problem on reference mesh m and solves the initial
// flow. The mesh dimension is checked before anything else.
func Setup(m *mesh.Mesh, cfg Config, logger *zap.Logger) (p *Problem, err error) {
	nu, err := Viscosity(m.TopologicalDimension())
	if err != nil {
		return
	}
	if cfg.Viscosity > 0 {
		nu = cfg.Viscosity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p = &Problem{params: cfg.Params, logger: logger}
	if p.params == nil {
		p.params = DefaultParameters()
	}

	p.Q = shape.NewFeControlSpace(m)
	inner, err := shape.LaplaceInnerProduct(p.Q,
		[]int{mesh.PipeInflow, mesh.PipeOutflow, mesh.PipeFixedWall}, 1)
	if err != nil {
		return nil, err
	}
	p.Control = shape.NewControlVector(p.Q, inner)

	if p.State, err = pde.NewNavierStokesSolver(p.Q.MeshM(), nu, logger); err != nil {
		return nil, err
	}
	// named physical groups override the tag defaults
	for tag, bc := range m.BoundaryConditions() {
		if bc != utils.BCNone {
			p.State.BCs[tag] = bc
		}
	}
	if err = p.State.Solve(); err != nil {
		return nil, fmt.Errorf("initial flow: %w", err)
	}
	logger.Info("initial flow solved", zap.Float64("viscosity", nu))

	J := shape.NewReducedObjective(NewPipeObjective(p.State), p.State, logger)
	J.MarkSolved()
	if cfg.TracePath != "" {
		if p.Trace, err = output.NewTrace(cfg.TracePath); err != nil {
			return nil, err
		}
		J.Callback = func() error {
			return p.Trace.Write(p.Q.MeshM(), p.State.Velocity())
		}
		if err = J.Callback(); err != nil {
			return nil, err
		}
	}
	Jq, err := shape.NewMoYoSpectralConstraint(20, 0.3, p.Q)
	if err != nil {
		return nil, err
	}
	p.Objective = shape.Add(J, Jq)

	p.Volume = shape.NewVolumeFunctional(p.Q)
	if p.InitialVolume, err = p.Volume.Value(); err != nil {
		return nil, err
	}
	p.Constraint = shape.NewEqualityConstraint([]shape.Objective{p.Volume}, []float64{p.InitialVolume})
	return
}

type Report struct {
	Result                *optim.Result
	InitialVolume, Volume float64
	Drift, RelativeDrift  float64
}

// Run optimizes the pipe and reports the volume drift of the final shape
func (p *Problem) Run() (rep *Report, err error) {
	solver, err := optim.NewSolver(&optim.Problem{
		Objective:  p.Objective,
		Control:    p.Control,
		Constraint: p.Constraint,
		Multiplier: make([]float64, 1),
	}, p.params, p.logger)
	if err != nil {
		return
	}
	res, err := solver.Solve()
	if err != nil {
		return
	}
	rep = &Report{Result: res, InitialVolume: p.InitialVolume}
	if rep.Volume, err = p.Volume.Value(); err != nil {
		return nil, err
	}
	rep.Drift = rep.Volume - p.InitialVolume
	rep.RelativeDrift = rep.Drift / p.InitialVolume
	return
}

func (rep *Report) Print() {
	fmt.Printf("%g\n", rep.Drift)
	fmt.Printf("%g\n", rep.RelativeDrift)
}
