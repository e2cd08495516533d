package shape

import (
	"fmt"
	"math"

	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/mesh"
)

// ErrInvertedElement is returned when a deformation collapses or flips an
// element of the physical mesh
var ErrInvertedElement = fem.ErrInvertedElement

// ControlSpace parametrizes the physical mesh as reference + q, q being a
// vertex-major displacement with Dim components per vertex
type ControlSpace interface {
	Dim() int
	Len() int
	MeshR() *mesh.Mesh
	MeshM() *mesh.Mesh
	Deformation() []float64
	UpdateDomain(q []float64) error
}

// FeControlSpace uses the piecewise linear displacement of the mesh vertices
// as control
type FeControlSpace struct {
	meshR, meshM *mesh.Mesh
	ref, q       []float64
}

func NewFeControlSpace(m *mesh.Mesh) *FeControlSpace {
	ref := m.Coordinates()
	return &FeControlSpace{
		meshR: m,
		meshM: m.Clone(),
		ref:   ref,
		q:     make([]float64, len(ref)),
	}
}

func (Q *FeControlSpace) Dim() int          { return Q.meshR.Dim }
func (Q *FeControlSpace) Len() int          { return len(Q.ref) }
func (Q *FeControlSpace) MeshR() *mesh.Mesh { return Q.meshR }
func (Q *FeControlSpace) MeshM() *mesh.Mesh { return Q.meshM }

// Deformation returns a copy of the current displacement
func (Q *FeControlSpace) Deformation() []float64 {
	return append([]float64(nil), Q.q...)
}

// UpdateDomain moves the physical mesh to reference + q. When an element
// inverts the physical mesh is left unchanged.
func (Q *FeControlSpace) UpdateDomain(q []float64) (err error) {
	if len(q) != len(Q.ref) {
		panic(fmt.Errorf("control vector length %d, expected %d", len(q), len(Q.ref)))
	}
	X := make([]float64, len(q))
	for i := range X {
		if math.IsNaN(q[i]) || math.IsInf(q[i], 0) {
			return fmt.Errorf("non finite control entry %d: %w", i, ErrInvertedElement)
		}
		X[i] = Q.ref[i] + q[i]
	}
	prev := Q.meshM.Coordinates()
	Q.meshM.SetCoordinates(X)
	if _, err = fem.ComputeGeometry(Q.meshM); err != nil {
		Q.meshM.SetCoordinates(prev)
		return fmt.Errorf("update domain: %w", err)
	}
	copy(Q.q, q)
	return
}

// ControlVector is a displacement over a control space together with the
// inner product that defines its metric
type ControlVector struct {
	Q     ControlSpace
	Inner InnerProduct
	Data  []float64
}

func NewControlVector(Q ControlSpace, inner InnerProduct) *ControlVector {
	return &ControlVector{
		Q:     Q,
		Inner: inner,
		Data:  Q.Deformation(),
	}
}

func (cv *ControlVector) Clone() *ControlVector {
	return &ControlVector{
		Q:     cv.Q,
		Inner: cv.Inner,
		Data:  append([]float64(nil), cv.Data...),
	}
}

// Apply moves the physical mesh of the control space to this vector
func (cv *ControlVector) Apply() error { return cv.Q.UpdateDomain(cv.Data) }

func (cv *ControlVector) Dot(other *ControlVector) float64 {
	return cv.Inner.Eval(cv.Data, other.Data)
}

func (cv *ControlVector) Norm() float64 { return math.Sqrt(cv.Dot(cv)) }
