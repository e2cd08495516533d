// Package Poisson deforms a domain so that the solution of -Δu = 4 with
// homogeneous Dirichlet conditions tracks a paraboloid target in L2.
package Poisson

import (
	"fmt"

	"github.com/notargets/goshape/InputParameters"
	"github.com/notargets/goshape/mesh"
	"github.com/notargets/goshape/optim"
	"github.com/notargets/goshape/output"
	"github.com/notargets/goshape/pde"
	"github.com/notargets/goshape/shape"
	"go.uber.org/zap"
)

// DefaultParameters is an unconstrained L-BFGS line search
func DefaultParameters() *InputParameters.Parameters {
	params, err := InputParameters.NewParameterList(map[string]interface{}{
		"General": map[string]interface{}{
			"Secant": map[string]interface{}{"Type": "Limited-Memory BFGS", "Maximum Storage": 25},
		},
		"Step": map[string]interface{}{
			"Type":        "Line Search",
			"Line Search": map[string]interface{}{"Descent Method": map[string]interface{}{"Type": "Quasi-Newton Step"}},
		},
		"Status Test": map[string]interface{}{
			"Gradient Tolerance": 1e-4,
			"Step Tolerance":     1e-10,
			"Iteration Limit":    30,
		},
	})
	if err != nil {
		panic(err)
	}
	return params
}

type Config struct {
	MeshFile  string
	N         int
	TracePath string
	Params    *InputParameters.Parameters
}

func NewConfig() Config { return Config{N: 30} }

// Mesh loads the mesh file or generates the unit square
func (cfg Config) Mesh() (m *mesh.Mesh, err error) {
	if cfg.MeshFile == "" {
		return mesh.NewUnitSquareMesh(cfg.N), nil
	}
	if m, err = mesh.ReadMeshFile(cfg.MeshFile); err != nil {
		return
	}
	if m.Dim != 2 {
		return nil, fmt.Errorf("L2 tracking needs a 2D mesh, %s is %dD", cfg.MeshFile, m.Dim)
	}
	return
}

type Problem struct {
	Q         *shape.FeControlSpace
	Control   *shape.ControlVector
	State     *pde.PoissonSolver
	Objective *shape.ReducedObjective
	Trace     *output.Trace
	params    *InputParameters.Parameters
	logger    *zap.Logger
}

func Setup(m *mesh.Mesh, cfg Config, logger *zap.Logger) (p *Problem, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p = &Problem{params: cfg.Params, logger: logger}
	if p.params == nil {
		p.params = DefaultParameters()
	}
	p.Q = shape.NewFeControlSpace(m)
	inner, err := shape.ElasticityInnerProduct(p.Q, nil, 1)
	if err != nil {
		return nil, err
	}
	p.Control = shape.NewControlVector(p.Q, inner)

	p.State = pde.NewPoissonSolver(p.Q.MeshM(), logger)
	if err = p.State.Solve(); err != nil {
		return nil, err
	}
	p.Objective = shape.NewReducedObjective(NewL2TrackingObjective(p.State), p.State, logger)
	p.Objective.MarkSolved()
	if cfg.TracePath != "" {
		if p.Trace, err = output.NewTrace(cfg.TracePath); err != nil {
			return nil, err
		}
		p.Objective.Callback = func() error {
			return p.Trace.Write(p.Q.MeshM(), p.State.Solution())
		}
		if err = p.Objective.Callback(); err != nil {
			return nil, err
		}
	}
	return
}

type Report struct {
	Result       *optim.Result
	InitialValue float64
}

func (p *Problem) Run() (rep *Report, err error) {
	rep = &Report{}
	if rep.InitialValue, err = p.Objective.Value(); err != nil {
		return nil, err
	}
	solver, err := optim.NewSolver(&optim.Problem{
		Objective: p.Objective,
		Control:   p.Control,
	}, p.params, p.logger)
	if err != nil {
		return nil, err
	}
	if rep.Result, err = solver.Solve(); err != nil {
		return nil, err
	}
	return
}

func (rep *Report) Print() {
	fmt.Printf("misfit %g -> %g after %d evaluations (%s)\n",
		rep.InitialValue, rep.Result.Value, rep.Result.FuncEvaluations, rep.Result.Reason)
}
