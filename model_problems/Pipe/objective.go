package Pipe

import (
	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/pde"
	"github.com/notargets/goshape/shape"
)

// PipeObjective is the energy dissipation of the flow, ν ∫ ∇u:∇u dx over
// the velocity u
type PipeObjective struct {
	E *pde.NavierStokesSolver
}

var _ shape.StateObjective = (*PipeObjective)(nil)

func NewPipeObjective(e *pde.NavierStokesSolver) *PipeObjective {
	return &PipeObjective{E: e}
}

// velocityGradient returns ∇u_i, i < d, on element k
func (po *PipeObjective) velocityGradient(s fem.Simplex, el []int) (Gu [][]float64) {
	w := po.E.Solution()
	Gu = make([][]float64, s.Dim)
	for i := range Gu {
		Gu[i] = s.Grad(w.Gather(el, i))
	}
	return
}

func (po *PipeObjective) Value() (v float64, err error) {
	m := po.E.Mesh()
	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return
	}
	for k, s := range simplices {
		for _, g := range po.velocityGradient(s, m.Elements[k]) {
			for _, gj := range g {
				v += po.E.Nu * s.Vol * gj * gj
			}
		}
	}
	return
}

// Derivative is the partial shape derivative with the nodal velocity fixed
func (po *PipeObjective) Derivative(dst []float64) (err error) {
	var (
		m = po.E.Mesh()
		d = m.Dim
		w = po.E.Solution()
	)
	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return
	}
	for k, s := range simplices {
		el := m.Elements[k]
		Gu := po.velocityGradient(s, el)
		var sVol float64
		sG := fem.NewGradient(d)
		for i, g := range Gu {
			for j, gj := range g {
				sVol += po.E.Nu * gj * gj
				for a, v := range el {
					sG[a][j] += 2 * po.E.Nu * s.Vol * w.At(v, i) * gj
				}
			}
		}
		fem.Scatter(dst, el, s.NodeSensitivity(sVol, sG))
	}
	return
}

// StateDerivative adds ∂J/∂w, zero in the pressure components
func (po *PipeObjective) StateDerivative(dst []float64) (err error) {
	var (
		m  = po.E.Mesh()
		nc = po.E.Solution().NComp
	)
	simplices, err := fem.ComputeGeometry(m)
	if err != nil {
		return
	}
	for k, s := range simplices {
		el := m.Elements[k]
		for i, g := range po.velocityGradient(s, el) {
			for a, v := range el {
				var dot float64
				for j, gj := range g {
					dot += gj * s.G[a][j]
				}
				dst[v*nc+i] += 2 * po.E.Nu * s.Vol * dot
			}
		}
	}
	return
}
