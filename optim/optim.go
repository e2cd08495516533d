// Package optim minimizes shape objectives over a control vector with gonum's
// limited memory BFGS, optionally under equality constraints handled by an
// augmented Lagrangian outer loop.
package optim

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/notargets/goshape/InputParameters"
	"github.com/notargets/goshape/shape"
	"github.com/notargets/goshape/utils"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

var ErrUnsupportedStep = errors.New("unsupported optimization step")

// Termination reasons
const (
	Converged      = "Converged"
	StepTolerance  = "Step Tolerance"
	IterationLimit = "Iteration Limit"
	NoProgress     = "No Progress"
)

// Problem is min J(q) over the control, subject to c(q) = 0 when a
// constraint is set
type Problem struct {
	Objective  shape.Objective
	Control    *shape.ControlVector
	Constraint *shape.EqualityConstraint
	Multiplier []float64
}

type Result struct {
	Reason          string
	Iterations      int
	Value           float64
	Constraint      []float64
	Multiplier      []float64
	GradientNorm    float64
	StepNorm        float64
	Penalty         float64
	FuncEvaluations int
	GradEvaluations int
}

type Solver struct {
	problem *Problem
	params  *InputParameters.Parameters
	logger  *zap.Logger
	runID   uuid.UUID

	factor *utils.SymBandFactor
	inner  shape.InnerProduct
	base   []float64 // full control, fixed dofs keep these values

	cache  *evaluation
	fatal  error
	nfval  int
	ngrad  int
	major  int // L-BFGS iterations over all subproblems
	lambda []float64
	mu     float64
}

// evaluation caches the functionals at one point of the optimizer space
type evaluation struct {
	z      []float64
	lambda []float64
	mu     float64
	ok     bool
	value  float64 // augmented Lagrangian
	obj    float64
	c      []float64
	grad   []float64 // in z coordinates, nil until requested
}

func NewSolver(problem *Problem, params *InputParameters.Parameters, logger *zap.Logger) (s *Solver, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params == nil {
		params = InputParameters.NewParameters()
	}
	if problem.Objective == nil || problem.Control == nil {
		return nil, fmt.Errorf("optimization problem needs an objective and a control")
	}
	if params.General.Secant.Type != "Limited-Memory BFGS" {
		return nil, fmt.Errorf("secant type %q: %w", params.General.Secant.Type, ErrUnsupportedStep)
	}
	switch params.Step.Type {
	case InputParameters.AugmentedLagrangianStep:
		if problem.Constraint == nil || problem.Constraint.Len() == 0 {
			return nil, fmt.Errorf("%s step without a constraint: %w", params.Step.Type, ErrUnsupportedStep)
		}
		if st := params.Step.AugmentedLagrangian.SubproblemStepType; st != InputParameters.LineSearchStep {
			return nil, fmt.Errorf("subproblem step %q: %w", st, ErrUnsupportedStep)
		}
		if problem.Multiplier == nil {
			problem.Multiplier = make([]float64, problem.Constraint.Len())
		}
		if len(problem.Multiplier) != problem.Constraint.Len() {
			return nil, fmt.Errorf("%d multipliers for %d constraints",
				len(problem.Multiplier), problem.Constraint.Len())
		}
	case InputParameters.LineSearchStep:
		if problem.Constraint != nil {
			return nil, fmt.Errorf("%s step with a constraint: %w", params.Step.Type, ErrUnsupportedStep)
		}
	default:
		return nil, fmt.Errorf("step type %q: %w", params.Step.Type, ErrUnsupportedStep)
	}
	s = &Solver{
		problem: problem,
		params:  params,
		runID:   uuid.New(),
		inner:   problem.Control.Inner,
		factor:  problem.Control.Inner.Factor(),
		base:    append([]float64(nil), problem.Control.Data...),
	}
	s.logger = logger.With(zap.String("run", s.runID.String()))
	return
}

// RunID identifies the solver in its log records
func (s *Solver) RunID() uuid.UUID { return s.runID }

// toZ maps a full control vector to the optimizer space, z = U P q_free with
// A = Uᵀ U, so the euclidean metric on z is the inner product on q
func (s *Solver) toZ(q []float64) []float64 { return s.factor.MulU(s.inner.Restrict(q)) }

func (s *Solver) fromZ(z []float64) (q []float64) {
	q = append([]float64(nil), s.base...)
	free := s.factor.SolveU(z)
	for r, dof := range s.inner.FreeDofs() {
		q[dof] = free[r]
	}
	return
}

// soft failures make the trial point infeasible, the line search backs off
func soft(err error) bool {
	return errors.Is(err, shape.ErrInvertedElement) || errors.Is(err, shape.ErrStateSolve)
}

func (s *Solver) evaluate(z []float64) (ev *evaluation, err error) {
	if c := s.cache; c != nil && c.mu == s.mu && floats.Equal(c.z, z) && floats.Equal(c.lambda, s.lambda) {
		return c, nil
	}
	ev = &evaluation{
		z:      append([]float64(nil), z...),
		lambda: append([]float64(nil), s.lambda...),
		mu:     s.mu,
		value:  math.Inf(1),
	}
	s.cache = ev
	s.nfval++
	if err = s.problem.Control.Q.UpdateDomain(s.fromZ(z)); err != nil {
		if soft(err) {
			s.logger.Debug("infeasible trial point", zap.Error(err))
			return ev, nil
		}
		return nil, err
	}
	if err = s.update(); err != nil {
		if soft(err) {
			s.logger.Debug("infeasible trial point", zap.Error(err))
			return ev, nil
		}
		return nil, err
	}
	if ev.obj, err = s.problem.Objective.Value(); err != nil {
		return nil, err
	}
	ev.value = ev.obj
	if s.problem.Constraint != nil {
		if ev.c, err = s.problem.Constraint.Values(); err != nil {
			return nil, err
		}
		for i, ci := range ev.c {
			ev.value += s.lambda[i]*ci + 0.5*s.mu*ci*ci
		}
	}
	ev.ok = true
	return
}

func (s *Solver) update() (err error) {
	if err = shape.Update(s.problem.Objective); err != nil {
		return
	}
	if s.problem.Constraint != nil {
		err = s.problem.Constraint.Update()
	}
	return
}

// gradient returns the gradient of the augmented Lagrangian in z coordinates,
// dL/dz = U⁻ᵀ P dL/dq
func (s *Solver) gradient(z []float64) (ev *evaluation, err error) {
	if ev, err = s.evaluate(z); err != nil {
		return
	}
	if ev.grad != nil {
		return
	}
	if !ev.ok {
		return nil, fmt.Errorf("gradient requested at an infeasible point: %w", shape.ErrInvertedElement)
	}
	s.ngrad++
	dq := make([]float64, s.problem.Control.Q.Len())
	if err = s.problem.Objective.Derivative(dq); err != nil {
		return nil, err
	}
	if s.problem.Constraint != nil {
		for i, ci := range ev.c {
			dc := make([]float64, len(dq))
			if err = s.problem.Constraint.DerivativeAt(i, dc); err != nil {
				return nil, err
			}
			floats.AddScaled(dq, s.lambda[i]+s.mu*ci, dc)
		}
	}
	ev.grad = s.factor.SolveUT(s.inner.Restrict(dq))
	return
}

// problem wraps the cached evaluations for gonum. Hard errors are kept and
// reported through Status, which gonum polls after every evaluation.
func (s *Solver) optimizeProblem() optimize.Problem {
	return optimize.Problem{
		Func: func(z []float64) float64 {
			ev, err := s.evaluate(z)
			if err != nil {
				s.fatal = err
				return math.Inf(1)
			}
			return ev.value
		},
		Grad: func(grad, z []float64) {
			ev, err := s.gradient(z)
			if err != nil {
				s.fatal = err
				for i := range grad {
					grad[i] = 0
				}
				return
			}
			copy(grad, ev.grad)
		},
		Status: func() (optimize.Status, error) {
			if s.fatal != nil {
				return optimize.Failure, s.fatal
			}
			return optimize.NotTerminated, nil
		},
	}
}

// minimize runs one L-BFGS solve from z0, returning the best point found
func (s *Solver) minimize(z0 []float64, gtol float64, limit, outer int) (z []float64, status optimize.Status, err error) {
	var (
		st       = s.params.StatusTest
		recorder optimize.Recorder
	)
	if s.params.Step.AugmentedLagrangian.PrintIntermediateOptimizationHistory ||
		s.params.Step.Type == InputParameters.LineSearchStep {
		recorder = &historyRecorder{logger: s.logger, outer: outer}
	}
	settings := &optimize.Settings{
		GradientThreshold: gtol,
		MajorIterations:   limit,
		Converger:         &stepConverger{tol: st.StepTolerance},
		Recorder:          recorder,
		Concurrent:        1,
	}
	method := &optimize.LBFGS{
		Store:        s.params.General.Secant.MaximumStorage,
		Linesearcher: &optimize.Backtracking{},
	}
	result, err := optimize.Minimize(s.optimizeProblem(), z0, settings, method)
	if s.fatal != nil {
		return nil, optimize.Failure, s.fatal
	}
	if err != nil {
		switch {
		case errors.Is(err, optimize.ErrLinesearcherFailure),
			errors.Is(err, optimize.ErrNoProgress),
			errors.Is(err, optimize.ErrNonDescentDirection):
			s.logger.Debug("subproblem stopped", zap.Error(err))
			err = nil
		default:
			return nil, optimize.Failure, err
		}
	}
	if result == nil {
		return z0, optimize.Failure, nil
	}
	s.major += result.Stats.MajorIterations
	return result.X, result.Status, nil
}

// Solve runs the optimizer and leaves the control, the physical mesh and the
// PDE states at the final iterate
func (s *Solver) Solve() (res *Result, err error) {
	defer func() {
		if res != nil {
			res.FuncEvaluations, res.GradEvaluations = s.nfval, s.ngrad
		}
	}()
	if s.params.Step.Type == InputParameters.LineSearchStep {
		return s.solveLineSearch()
	}
	return s.solveAugmentedLagrangian()
}

// finish moves everything to z and reports the objective and the gradient of
// the Lagrangian there
func (s *Solver) finish(z []float64, res *Result) (err error) {
	ev, err := s.gradient(z)
	if err != nil {
		return
	}
	s.problem.Control.Data = s.fromZ(z)
	if err = s.problem.Control.Apply(); err != nil {
		return
	}
	res.Value = ev.obj
	res.Constraint = ev.c
	res.GradientNorm = floats.Norm(ev.grad, 2)
	return
}

func (s *Solver) solveLineSearch() (res *Result, err error) {
	var (
		st = s.params.StatusTest
		z0 = s.toZ(s.problem.Control.Data)
	)
	z, status, err := s.minimize(z0, st.GradientTolerance, st.IterationLimit, 0)
	if err != nil {
		return nil, err
	}
	res = &Result{StepNorm: floats.Distance(z, z0, 2), Iterations: s.major}
	switch status {
	case optimize.GradientThreshold:
		res.Reason = Converged
	case optimize.StepConvergence:
		res.Reason = StepTolerance
	case optimize.IterationLimit:
		res.Reason = IterationLimit
	default:
		res.Reason = NoProgress
	}
	if err = s.finish(z, res); err != nil {
		return nil, err
	}
	if res.GradientNorm <= st.GradientTolerance {
		res.Reason = Converged
	}
	s.logger.Info("line search finished",
		zap.String("reason", res.Reason),
		zap.Float64("value", res.Value),
		zap.Float64("gnorm", res.GradientNorm))
	return
}

func (s *Solver) solveAugmentedLagrangian() (res *Result, err error) {
	var (
		st   = s.params.StatusTest
		al   = s.params.Step.AugmentedLagrangian
		gtol = st.GradientTolerance
	)
	s.lambda = append([]float64(nil), s.problem.Multiplier...)
	z := s.toZ(s.problem.Control.Data)
	s.mu = al.InitialPenaltyParameter
	if al.UseDefaultInitialPenaltyParameter {
		if s.mu, err = s.defaultPenalty(z); err != nil {
			return nil, err
		}
	}
	var (
		ctol     = st.ConstraintTolerance
		minOmega = 0.01 * gtol
		minEta   = 0.01 * ctol
		r        = reciprocal(s.mu)
		omega    = math.Max(minOmega, r)
		eta      = math.Max(minEta, math.Pow(r, 0.1))
	)
	res = &Result{Reason: IterationLimit}
	for iter := 1; iter <= st.IterationLimit; iter++ {
		zNew, _, err := s.minimize(z, omega, al.SubproblemIterationLimit, iter)
		if err != nil {
			return nil, err
		}
		res.Iterations = iter
		res.StepNorm = floats.Distance(zNew, z, 2)
		z = zNew

		ev, err := s.evaluate(z)
		if err != nil {
			return nil, err
		}
		if !ev.ok {
			return nil, fmt.Errorf("augmented Lagrangian iterate is infeasible: %w", shape.ErrInvertedElement)
		}
		cnorm := floats.Norm(ev.c, 2)

		// first order multiplier estimate, gradient of the Lagrangian
		lambdaNext := make([]float64, len(s.lambda))
		floats.AddScaledTo(lambdaNext, s.lambda, s.mu, ev.c)
		gnorm, err := s.lagrangianGradientNorm(z, lambdaNext)
		if err != nil {
			return nil, err
		}
		s.logger.Info("augmented Lagrangian",
			zap.Int("iteration", iter),
			zap.Float64("value", ev.obj),
			zap.Float64("cnorm", cnorm),
			zap.Float64("gnorm", gnorm),
			zap.Float64("snorm", res.StepNorm),
			zap.Float64("penalty", s.mu),
			zap.Float64s("multiplier", s.lambda))

		if cnorm <= eta {
			s.lambda = lambdaNext
			r = reciprocal(s.mu)
			omega = math.Max(minOmega, omega*r)
			eta = math.Max(minEta, eta*math.Pow(r, 0.9))
		} else {
			s.mu = math.Min(10*s.mu, al.MaximumPenaltyParameter)
			r = reciprocal(s.mu)
			omega = math.Max(minOmega, r)
			eta = math.Max(minEta, math.Pow(r, 0.1))
		}
		res.GradientNorm = gnorm
		if gnorm <= gtol && cnorm <= ctol {
			res.Reason = Converged
			break
		}
		if res.StepNorm <= st.StepTolerance {
			res.Reason = StepTolerance
			break
		}
	}
	gnorm := res.GradientNorm
	if err = s.finish(z, res); err != nil {
		return nil, err
	}
	res.GradientNorm = gnorm
	res.Penalty = s.mu
	res.Multiplier = append([]float64(nil), s.lambda...)
	copy(s.problem.Multiplier, s.lambda)
	s.logger.Info("augmented Lagrangian finished",
		zap.String("reason", res.Reason),
		zap.Int("iterations", res.Iterations),
		zap.Float64("value", res.Value),
		zap.Float64s("constraint", res.Constraint))
	return
}

// reciprocal scales the subproblem tolerances, it never exceeds 0.1 so they
// shrink even for small penalties
func reciprocal(mu float64) float64 { return math.Min(1/mu, 0.1) }

// defaultPenalty is 10 max(1, |J|) / max(1, |c|²) at the starting point,
// clamped to [1e-8, 1e8]
func (s *Solver) defaultPenalty(z []float64) (mu float64, err error) {
	s.mu = 0
	ev, err := s.evaluate(z)
	if err != nil {
		return
	}
	if !ev.ok {
		return 0, fmt.Errorf("initial control is infeasible: %w", shape.ErrInvertedElement)
	}
	c := floats.Norm(ev.c, 2)
	mu = 10 * math.Max(1, math.Abs(ev.obj)) / math.Max(1, c*c)
	return math.Max(1.e-8, math.Min(mu, 1.e8)), nil
}

// lagrangianGradientNorm is |∇J + Σ λ_i ∇c_i| in the dual norm of the inner
// product, evaluated at the current iterate
func (s *Solver) lagrangianGradientNorm(z, lambda []float64) (float64, error) {
	saved, savedMu := s.lambda, s.mu
	s.lambda, s.mu = lambda, 0
	defer func() { s.lambda, s.mu = saved, savedMu }()
	ev, err := s.gradient(z)
	if err != nil {
		return 0, err
	}
	return floats.Norm(ev.grad, 2), nil
}
