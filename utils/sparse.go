package utils

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/mat"
)

// DOK is the assembly format for every finite element system: element
// contributions are summed into it, then it is compressed with ToCSR.
type DOK struct {
	M        *sparse.DOK
	readOnly bool
	name     string
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{
		sparse.NewDOK(nr, nc),
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m DOK) T() mat.Matrix       { return m.M.T() }

func (m DOK) Set(i, j int, val float64) {
	m.checkWritable()
	m.M.Set(i, j, val)
}

// Add accumulates val into entry (i,j)
func (m DOK) Add(i, j int, val float64) {
	m.checkWritable()
	m.M.Set(i, j, m.M.At(i, j)+val)
}

func (m *DOK) SetReadOnly(name ...string) {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
}

func (m DOK) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

func (m DOK) ToCSR() CSR {
	return CSR{
		M:        m.M.ToCSR(),
		readOnly: m.readOnly,
		name:     m.name,
	}
}

type CSR struct {
	M        *sparse.CSR
	readOnly bool
	name     string
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m CSR) Dims() (r, c int)              { return m.M.Dims() }
func (m CSR) At(i, j int) float64           { return m.M.At(i, j) }
func (m CSR) T() mat.Matrix                 { return m.M.T() }
func (m CSR) RawMatrix() *blas.SparseMatrix { return m.M.RawMatrix() }
func (m CSR) Data() []float64 {
	return m.RawMatrix().Data
}

// DoNonZero calls fn for every stored entry, row by row
func (m CSR) DoNonZero(fn func(i, j int, v float64)) {
	raw := m.RawMatrix()
	for i := 0; i < raw.I; i++ {
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			fn(i, raw.Ind[k], raw.Data[k])
		}
	}
}

// MulVec computes dst = M * x
func (m CSR) MulVec(dst, x []float64) {
	var (
		raw = m.RawMatrix()
	)
	if len(dst) != raw.I || len(x) != raw.J {
		panic(fmt.Errorf("dimension mismatch: matrix is %dx%d, dst %d, x %d",
			raw.I, raw.J, len(dst), len(x)))
	}
	for i := 0; i < raw.I; i++ {
		var sum float64
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			sum += raw.Data[k] * x[raw.Ind[k]]
		}
		dst[i] = sum
	}
}

// MulVecTrans computes dst = Mᵀ * x
func (m CSR) MulVecTrans(dst, x []float64) {
	var (
		raw = m.RawMatrix()
	)
	if len(dst) != raw.J || len(x) != raw.I {
		panic(fmt.Errorf("dimension mismatch: matrix is %dx%d, dst %d, x %d",
			raw.I, raw.J, len(dst), len(x)))
	}
	for j := range dst {
		dst[j] = 0
	}
	for i := 0; i < raw.I; i++ {
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			dst[raw.Ind[k]] += raw.Data[k] * x[i]
		}
	}
}

// Adjacency returns the symmetrized sparsity graph of a square matrix,
// without self loops
func (m CSR) Adjacency() (adj [][]int) {
	var (
		nr, _ = m.Dims()
		seen  = make([]map[int]struct{}, nr)
	)
	for i := range seen {
		seen[i] = make(map[int]struct{})
	}
	m.DoNonZero(func(i, j int, _ float64) {
		if i == j {
			return
		}
		seen[i][j] = struct{}{}
		seen[j][i] = struct{}{}
	})
	adj = make([][]int, nr)
	for i, s := range seen {
		for j := range s {
			adj[i] = append(adj[i], j)
		}
	}
	return
}
