package optim

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// historyRecorder logs the major iterations of a subproblem
type historyRecorder struct {
	logger *zap.Logger
	outer  int
}

func (r *historyRecorder) Init() error { return nil }

func (r *historyRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	// InitIteration is recorded before the first evaluation
	if op != optimize.MajorIteration {
		return nil
	}
	var gnorm float64
	if loc.Gradient != nil {
		gnorm = floats.Norm(loc.Gradient, 2)
	}
	r.logger.Info("subproblem",
		zap.Int("outer", r.outer),
		zap.Int("iteration", stats.MajorIterations),
		zap.Float64("value", loc.F),
		zap.Float64("gnorm", gnorm),
		zap.Int("nfval", stats.FuncEvaluations),
		zap.Int("ngrad", stats.GradEvaluations))
	return nil
}

// stepConverger stops once consecutive major iterates are closer than tol
type stepConverger struct {
	tol  float64
	prev []float64
	last float64
}

func (c *stepConverger) Init(dim int) {
	c.prev = nil
	c.last = 0
}

func (c *stepConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.prev != nil {
		c.last = floats.Distance(loc.X, c.prev, 2)
		if c.last <= c.tol {
			return optimize.StepConvergence
		}
	}
	c.prev = append(c.prev[:0], loc.X...)
	return optimize.NotTerminated
}
