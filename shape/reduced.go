package shape

import (
	"errors"
	"fmt"

	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/mesh"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// ErrStateSolve wraps failures of the PDE solve behind a reduced objective
var ErrStateSolve = errors.New("state solve failed")

// PDEConstraint owns a PDE state on the physical mesh. SolveAdjoint solves
// the transposed linearized system for rhs, ShapeSensitivity adds
// -λᵀ ∂R/∂X to dst.
type PDEConstraint interface {
	Mesh() *mesh.Mesh
	Solution() *fem.Function
	Solve() error
	SolveAdjoint(rhs []float64) ([]float64, error)
	ShapeSensitivity(adjoint, dst []float64) error
}

// StateObjective depends on the mesh and a PDE state. Its Derivative is the
// partial shape derivative with the state held fixed.
type StateObjective interface {
	Objective
	StateDerivative(dst []float64) error
}

// ReducedObjective is J(X, u(X)), u solving the PDE constraint. The state is
// re-solved whenever the physical mesh moved since the last solve, and the
// derivative is completed with the adjoint term.
type ReducedObjective struct {
	J StateObjective
	E PDEConstraint
	// Callback runs after every state solve
	Callback func() error
	// AdjointHook runs after every adjoint solve with the adjoint state
	AdjointHook func(adjoint []float64) error
	solvedAt    []float64
	logger      *zap.Logger
}

func NewReducedObjective(J StateObjective, e PDEConstraint, logger *zap.Logger) *ReducedObjective {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReducedObjective{J: J, E: e, logger: logger}
}

// MarkSolved records that the current state matches the physical mesh
func (r *ReducedObjective) MarkSolved() {
	r.solvedAt = r.E.Mesh().Coordinates()
}

func (r *ReducedObjective) Update() (err error) {
	X := r.E.Mesh().Coordinates()
	if r.solvedAt != nil && floats.Equal(X, r.solvedAt) {
		return
	}
	if err = r.E.Solve(); err != nil {
		r.solvedAt = nil
		return fmt.Errorf("%w: %w", ErrStateSolve, err)
	}
	r.solvedAt = X
	r.logger.Debug("state solved")
	if r.Callback != nil {
		err = r.Callback()
	}
	return
}

func (r *ReducedObjective) Value() (float64, error) {
	if err := r.Update(); err != nil {
		return 0, err
	}
	return r.J.Value()
}

func (r *ReducedObjective) Derivative(dst []float64) (err error) {
	if err = r.Update(); err != nil {
		return
	}
	if err = r.J.Derivative(dst); err != nil {
		return
	}
	ju := make([]float64, len(r.E.Solution().Values))
	if err = r.J.StateDerivative(ju); err != nil {
		return
	}
	adjoint, err := r.E.SolveAdjoint(ju)
	if err != nil {
		return fmt.Errorf("adjoint: %w", err)
	}
	if r.AdjointHook != nil {
		if err = r.AdjointHook(adjoint); err != nil {
			return
		}
	}
	return r.E.ShapeSensitivity(adjoint, dst)
}
