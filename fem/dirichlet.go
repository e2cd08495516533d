package fem

import (
	"sort"

	"github.com/notargets/goshape/utils"
)

// DirichletSet holds prescribed values on a subset of the dofs of a system.
// Constrained rows of a residual become u_i - g_i, with identity rows in the
// Jacobian.
type DirichletSet struct {
	values map[int]float64
}

func NewDirichletSet() *DirichletSet {
	return &DirichletSet{values: make(map[int]float64)}
}

func (ds *DirichletSet) Set(dof int, val float64) { ds.values[dof] = val }

func (ds *DirichletSet) Has(dof int) bool {
	_, ok := ds.values[dof]
	return ok
}

func (ds *DirichletSet) Len() int { return len(ds.values) }

// Dofs returns the constrained dofs in increasing order
func (ds *DirichletSet) Dofs() (dofs []int) {
	dofs = make([]int, 0, len(ds.values))
	for dof := range ds.values {
		dofs = append(dofs, dof)
	}
	sort.Ints(dofs)
	return
}

// Apply enforces the values on u
func (ds *DirichletSet) Apply(u []float64) {
	for dof, val := range ds.values {
		u[dof] = val
	}
}

// ApplyResidual replaces constrained residual rows by u_i - g_i
func (ds *DirichletSet) ApplyResidual(R, u []float64) {
	for dof, val := range ds.values {
		R[dof] = u[dof] - val
	}
}

// Zero clears the constrained entries of v
func (ds *DirichletSet) Zero(v []float64) {
	for dof := range ds.values {
		v[dof] = 0
	}
}

// Assembler accumulates a system matrix in DOK form, skipping the rows of
// constrained dofs which receive an identity row when the matrix is built
type Assembler struct {
	n   int
	dok utils.DOK
	bcs *DirichletSet
}

func NewAssembler(n int, bcs *DirichletSet) *Assembler {
	if bcs == nil {
		bcs = NewDirichletSet()
	}
	return &Assembler{n: n, dok: utils.NewDOK(n, n), bcs: bcs}
}

func (as *Assembler) Add(i, j int, val float64) {
	if as.bcs.Has(i) {
		return
	}
	as.dok.Add(i, j, val)
}

// CSR finishes the assembly
func (as *Assembler) CSR() utils.CSR {
	for _, dof := range as.bcs.Dofs() {
		as.dok.Set(dof, dof, 1)
	}
	as.dok.SetReadOnly("assembled system")
	return as.dok.ToCSR()
}
