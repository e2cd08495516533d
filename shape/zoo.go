package shape

import (
	"math"

	"github.com/notargets/goshape/fem"
)

// VolumeFunctional is the measure of the physical mesh
type VolumeFunctional struct {
	Q ControlSpace
}

func NewVolumeFunctional(Q ControlSpace) *VolumeFunctional { return &VolumeFunctional{Q: Q} }

func (v *VolumeFunctional) Value() (vol float64, err error) {
	simplices, err := fem.ComputeGeometry(v.Q.MeshM())
	if err != nil {
		return
	}
	for _, s := range simplices {
		vol += s.Vol
	}
	return
}

func (v *VolumeFunctional) Derivative(dst []float64) (err error) {
	m := v.Q.MeshM()
	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return
	}
	for k, s := range simplices {
		fem.Scatter(dst, m.Elements[k], s.NodeSensitivity(1, nil))
	}
	return
}

// MoYoSpectralConstraint is the Moreau-Yosida penalty
//
//	c/2 ∫_Ω₀ max(0, |∇q|² - bound²)² dx
//
// on the displacement q over the reference mesh. It keeps the deformation
// gradient of the control bounded so elements do not degenerate.
type MoYoSpectralConstraint struct {
	C, Bound  float64
	Q         ControlSpace
	simplices []fem.Simplex
}

func NewMoYoSpectralConstraint(c, bound float64, Q ControlSpace) (*MoYoSpectralConstraint, error) {
	simplices, err := fem.ComputeGeometry(Q.MeshR())
	if err != nil {
		return nil, err
	}
	return &MoYoSpectralConstraint{C: c, Bound: bound, Q: Q, simplices: simplices}, nil
}

// excess returns the displacement gradient of element k and the active part
// of the penalty, max(0, |∇q|² - bound²)
func (mo *MoYoSpectralConstraint) excess(k int, q []float64) (Gq [][]float64, p float64) {
	var (
		el = mo.Q.MeshR().Elements[k]
		s  = mo.simplices[k]
		d  = s.Dim
	)
	Gq = make([][]float64, d)
	var norm2 float64
	for i := 0; i < d; i++ {
		Gq[i] = make([]float64, d)
		for j := 0; j < d; j++ {
			for a, v := range el {
				Gq[i][j] += q[v*d+i] * s.G[a][j]
			}
			norm2 += Gq[i][j] * Gq[i][j]
		}
	}
	return Gq, math.Max(0, norm2-mo.Bound*mo.Bound)
}

func (mo *MoYoSpectralConstraint) Value() (v float64, err error) {
	q := mo.Q.Deformation()
	for k, s := range mo.simplices {
		_, p := mo.excess(k, q)
		v += 0.5 * mo.C * s.Vol * p * p
	}
	return
}

// Derivative is taken with respect to q, which equals the derivative with
// respect to the physical coordinates X = X₀ + q
func (mo *MoYoSpectralConstraint) Derivative(dst []float64) (err error) {
	var (
		q  = mo.Q.Deformation()
		m  = mo.Q.MeshR()
		dd = m.Dim
	)
	for k, s := range mo.simplices {
		Gq, p := mo.excess(k, q)
		if p == 0 {
			continue
		}
		for a, v := range m.Elements[k] {
			for i := 0; i < dd; i++ {
				var sum float64
				for j := 0; j < dd; j++ {
					sum += Gq[i][j] * s.G[a][j]
				}
				dst[v*dd+i] += 2 * mo.C * s.Vol * p * sum
			}
		}
	}
	return
}
