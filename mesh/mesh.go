package mesh

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/goshape/utils"
	"gonum.org/v1/gonum/mat"
)

// BoundaryFacet is a tagged codimension one simplex on the boundary
type BoundaryFacet struct {
	Vertices []int
	Tag      int
}

// Mesh is a simplicial mesh of dimension Dim: triangles in 2D, tetrahedra in
// 3D, line segments in 1D. Vertex coordinates carry Dim components.
type Mesh struct {
	Dim           int
	Vertices      [][]float64
	Elements      [][]int
	ElementTags   []int
	Facets        []BoundaryFacet
	PhysicalNames map[int]string
	FormatVersion string
}

func NewMesh(dim int) *Mesh {
	return &Mesh{
		Dim:           dim,
		PhysicalNames: make(map[int]string),
	}
}

func (m *Mesh) NumVertices() int { return len(m.Vertices) }
func (m *Mesh) NumElements() int { return len(m.Elements) }

// TopologicalDimension is the dimension of the cells
func (m *Mesh) TopologicalDimension() int { return m.Dim }

func (m *Mesh) AddVertex(x ...float64) (id int) {
	if len(x) != m.Dim {
		panic(fmt.Errorf("vertex has %d coordinates, mesh dimension is %d", len(x), m.Dim))
	}
	m.Vertices = append(m.Vertices, x)
	return len(m.Vertices) - 1
}

func (m *Mesh) AddElement(tag int, vertices ...int) {
	if len(vertices) != m.Dim+1 {
		panic(fmt.Errorf("element has %d vertices, expected %d", len(vertices), m.Dim+1))
	}
	m.Elements = append(m.Elements, vertices)
	m.ElementTags = append(m.ElementTags, tag)
}

// Clone returns a deep copy
func (m *Mesh) Clone() (c *Mesh) {
	c = NewMesh(m.Dim)
	c.FormatVersion = m.FormatVersion
	c.Vertices = make([][]float64, len(m.Vertices))
	for i, x := range m.Vertices {
		c.Vertices[i] = append([]float64(nil), x...)
	}
	c.Elements = make([][]int, len(m.Elements))
	for k, el := range m.Elements {
		c.Elements[k] = append([]int(nil), el...)
	}
	c.ElementTags = append([]int(nil), m.ElementTags...)
	c.Facets = make([]BoundaryFacet, len(m.Facets))
	for i, f := range m.Facets {
		c.Facets[i] = BoundaryFacet{Vertices: append([]int(nil), f.Vertices...), Tag: f.Tag}
	}
	for tag, name := range m.PhysicalNames {
		c.PhysicalNames[tag] = name
	}
	return
}

// Coordinates returns the vertex coordinates flattened vertex-major
func (m *Mesh) Coordinates() (X []float64) {
	X = make([]float64, 0, len(m.Vertices)*m.Dim)
	for _, x := range m.Vertices {
		X = append(X, x...)
	}
	return
}

// SetCoordinates overwrites the vertex coordinates from a vertex-major slice
func (m *Mesh) SetCoordinates(X []float64) {
	if len(X) != len(m.Vertices)*m.Dim {
		panic(fmt.Errorf("coordinate length %d, expected %d", len(X), len(m.Vertices)*m.Dim))
	}
	for i := range m.Vertices {
		copy(m.Vertices[i], X[i*m.Dim:(i+1)*m.Dim])
	}
}

// BoundaryTags returns the sorted distinct facet tags
func (m *Mesh) BoundaryTags() (tags []int) {
	seen := make(map[int]bool)
	for _, f := range m.Facets {
		if !seen[f.Tag] {
			seen[f.Tag] = true
			tags = append(tags, f.Tag)
		}
	}
	sort.Ints(tags)
	return
}

// BoundaryVertices returns the sorted vertices of the facets carrying one of
// tags. Without tags it returns the vertices of the topological boundary.
func (m *Mesh) BoundaryVertices(tags ...int) (verts []int) {
	var (
		seen = make(map[int]bool)
		add  = func(f []int) {
			for _, v := range f {
				if !seen[v] {
					seen[v] = true
					verts = append(verts, v)
				}
			}
		}
	)
	if len(tags) == 0 {
		for _, f := range m.TopologicalBoundary() {
			add(f)
		}
	} else {
		want := make(map[int]bool)
		for _, t := range tags {
			want[t] = true
		}
		for _, f := range m.Facets {
			if want[f.Tag] {
				add(f.Vertices)
			}
		}
	}
	sort.Ints(verts)
	return
}

// TopologicalBoundary returns the facets that belong to exactly one element,
// each with its vertices sorted
func (m *Mesh) TopologicalBoundary() (facets [][]int) {
	var (
		count = make(map[string]int)
		order []string
		byKey = make(map[string][]int)
	)
	for _, el := range m.Elements {
		for omit := range el {
			f := make([]int, 0, len(el)-1)
			for i, v := range el {
				if i != omit {
					f = append(f, v)
				}
			}
			sort.Ints(f)
			key := fmt.Sprintf("%v", f)
			if _, ok := count[key]; !ok {
				order = append(order, key)
				byKey[key] = f
			}
			count[key]++
		}
	}
	for _, key := range order {
		if count[key] == 1 {
			facets = append(facets, byKey[key])
		}
	}
	return
}

// TagBoundary replaces Facets with the topological boundary, tagging each
// facet with tagger evaluated at the facet centroid
func (m *Mesh) TagBoundary(tagger func(centroid []float64) int) {
	m.Facets = m.Facets[:0]
	for _, f := range m.TopologicalBoundary() {
		c := make([]float64, m.Dim)
		for _, v := range f {
			for d := range c {
				c[d] += m.Vertices[v][d] / float64(len(f))
			}
		}
		m.Facets = append(m.Facets, BoundaryFacet{Vertices: f, Tag: tagger(c)})
	}
}

// BoundaryConditions maps the physical group names of the facet tags to
// boundary condition types
func (m *Mesh) BoundaryConditions() (bcs map[int]utils.BCType) {
	bcs = make(map[int]utils.BCType)
	for _, tag := range m.BoundaryTags() {
		if name, ok := m.PhysicalNames[tag]; ok {
			bcs[tag] = utils.ParseBCName(name)
		}
	}
	return
}

// SignedMeasure returns the signed length, area or volume of element k
func (m *Mesh) SignedMeasure(k int) float64 {
	var (
		el = m.Elements[k]
		d  = m.Dim
		J  = mat.NewDense(d, d, nil)
	)
	for c := 0; c < d; c++ {
		for r := 0; r < d; r++ {
			J.Set(r, c, m.Vertices[el[c+1]][r]-m.Vertices[el[0]][r])
		}
	}
	return mat.Det(J) / float64(factorial(d))
}

// Orient swaps the last two vertices of every negatively oriented element
func (m *Mesh) Orient() (flipped int) {
	for k, el := range m.Elements {
		if m.SignedMeasure(k) < 0 {
			n := len(el)
			el[n-2], el[n-1] = el[n-1], el[n-2]
			flipped++
		}
	}
	return
}

// Volume is the total measure of the mesh
func (m *Mesh) Volume() (vol float64) {
	for k := range m.Elements {
		vol += math.Abs(m.SignedMeasure(k))
	}
	return
}

func factorial(n int) (f int) {
	f = 1
	for i := 2; i <= n; i++ {
		f *= i
	}
	return
}
