package Pipe

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/notargets/goshape/mesh"
	"github.com/notargets/goshape/pde"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/floats"
)

func TestViscosity(t *testing.T) {
	nu, err := Viscosity(2)
	require.NoError(t, err)
	assert.Equal(t, 1./400., nu)
	nu, err = Viscosity(3)
	require.NoError(t, err)
	assert.Equal(t, 1./10., nu)
	for _, dim := range []int{1, 4} {
		_, err = Viscosity(dim)
		assert.ErrorIs(t, err, ErrUnsupportedDimension)
	}
}

func TestSetupDimension(t *testing.T) {
	m := mesh.NewMesh(1)
	m.AddVertex(0)
	m.AddVertex(1)
	m.AddElement(0, 0, 1)
	X0 := m.Coordinates()
	_, err := Setup(m, NewConfig(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedDimension)
	assert.Equal(t, X0, m.Coordinates())

	cfg := NewConfig()
	cfg.Dim = 1
	_, err = cfg.Mesh()
	assert.ErrorIs(t, err, ErrUnsupportedDimension)
}

func TestPipeObjectiveDerivatives(t *testing.T) {
	m := mesh.NewPipeMesh2D(6, 2)
	e, err := pde.NewNavierStokesSolver(m, 0.1, nil)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))
	w := e.Solution().Values
	for i := range w {
		w[i] = rng.NormFloat64()
	}
	J := NewPipeObjective(e)
	const eps = 1.e-6

	t.Run("shape", func(t *testing.T) {
		X0 := m.Coordinates()
		dX := make([]float64, len(X0))
		for i := range dX {
			dX[i] = 0.1 * rng.NormFloat64()
		}
		dJ := make([]float64, len(X0))
		require.NoError(t, J.Derivative(dJ))
		eval := func(s float64) float64 {
			X := make([]float64, len(X0))
			floats.AddScaledTo(X, X0, s, dX)
			m.SetCoordinates(X)
			v, err := J.Value()
			require.NoError(t, err)
			return v
		}
		fd := (eval(eps) - eval(-eps)) / (2 * eps)
		m.SetCoordinates(X0)
		assert.InDelta(t, fd, floats.Dot(dJ, dX), 1.e-6*math.Max(1, math.Abs(fd)))
	})
	t.Run("state", func(t *testing.T) {
		dw := make([]float64, len(w))
		for i := range dw {
			dw[i] = rng.NormFloat64()
		}
		ju := make([]float64, len(w))
		require.NoError(t, J.StateDerivative(ju))
		w0 := append([]float64(nil), w...)
		eval := func(s float64) float64 {
			floats.AddScaledTo(w, w0, s, dw)
			v, err := J.Value()
			require.NoError(t, err)
			return v
		}
		fd := (eval(eps) - eval(-eps)) / (2 * eps)
		copy(w, w0)
		assert.InDelta(t, fd, floats.Dot(ju, dw), 1.e-6*math.Max(1, math.Abs(fd)))
		// pressure does not enter the dissipation
		nc := e.Solution().NComp
		for v := 0; v < m.NumVertices(); v++ {
			assert.Equal(t, 0., ju[v*nc+nc-1])
		}
	})
}

func TestPipeOptimization(t *testing.T) {
	cfg := NewConfig()
	cfg.Nx, cfg.Ny = 18, 4
	cfg.Viscosity = 0.1
	cfg.TracePath = filepath.Join(t.TempDir(), "u.pvd")
	cfg.Params = DefaultParameters()
	cfg.Params.StatusTest.IterationLimit = 6
	cfg.Params.Step.AugmentedLagrangian.SubproblemIterationLimit = 15
	m, err := cfg.Mesh()
	require.NoError(t, err)

	p, err := Setup(m, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.InDelta(t, 6., p.InitialVolume, 1.e-12)
	require.NotNil(t, p.Trace)
	assert.Equal(t, 1, p.Trace.Len())

	rep, err := p.Run()
	require.NoError(t, err)
	rep.Print()
	assert.LessOrEqual(t, math.Abs(rep.RelativeDrift), 0.1)
	assert.InDelta(t, rep.Drift, rep.Result.Constraint[0], 1.e-10)
	assert.Greater(t, p.Trace.Len(), 1)

	// the fixed walls and the inlet do not move
	for _, v := range p.Q.MeshR().BoundaryVertices(mesh.PipeInflow, mesh.PipeOutflow, mesh.PipeFixedWall) {
		assert.Equal(t, p.Q.MeshR().Vertices[v], p.Q.MeshM().Vertices[v])
	}
}

func TestPipeDefaultConfiguration(t *testing.T) {
	if testing.Short() {
		t.Skip("full 2D pipe optimization")
	}
	cfg := NewConfig()
	m, err := cfg.Mesh()
	require.NoError(t, err)

	p, err := Setup(m, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1./400., p.State.Nu)
	assert.Equal(t, DefaultParameters(), p.params)

	rep, err := p.Run()
	require.NoError(t, err)
	assert.LessOrEqual(t, math.Abs(rep.RelativeDrift), 0.1)
	assert.LessOrEqual(t, rep.Result.Iterations, 12)
}

func TestSetup3D(t *testing.T) {
	cfg := NewConfig()
	cfg.Dim, cfg.Nx, cfg.Ny, cfg.Nz = 3, 6, 2, 2
	m, err := cfg.Mesh()
	require.NoError(t, err)

	p, err := Setup(m, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1./10., p.State.Nu)
	assert.InDelta(t, 6., p.InitialVolume, 1.e-12)

	// an unchanged control leaves the flow as it is
	first := p.State.Solution().Clone()
	require.NoError(t, p.State.Solve())
	assert.InDeltaSlice(t, first.Values, p.State.Solution().Values, 1.e-10)
}
