package mesh

import (
	"fmt"
	"math"
)

const geomTol = 1.e-10

// Boundary tags of the pipe meshes
const (
	PipeInflow    = 10
	PipeOutflow   = 11
	PipeFixedWall = 12
	PipeFreeWall  = 13
)

// NewRectangleMesh triangulates [0,lx]x[0,ly] with nx by ny cells, two
// triangles per cell. Boundary tags: 1 x=0, 2 x=lx, 3 y=0, 4 y=ly.
func NewRectangleMesh(nx, ny int, lx, ly float64) (m *Mesh) {
	m = rectangle(nx, ny, lx, ly)
	m.TagBoundary(func(c []float64) int {
		switch {
		case c[0] < geomTol:
			return 1
		case c[0] > lx-geomTol:
			return 2
		case c[1] < geomTol:
			return 3
		default:
			return 4
		}
	})
	return
}

// NewUnitSquareMesh is NewRectangleMesh on the unit square
func NewUnitSquareMesh(n int) *Mesh { return NewRectangleMesh(n, n, 1, 1) }

func rectangle(nx, ny int, lx, ly float64) (m *Mesh) {
	if nx < 1 || ny < 1 {
		panic(fmt.Errorf("invalid rectangle resolution %dx%d", nx, ny))
	}
	m = NewMesh(2)
	id := func(i, j int) int { return i + (nx+1)*j }
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.AddVertex(lx*float64(i)/float64(nx), ly*float64(j)/float64(ny))
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			m.AddElement(0, id(i, j), id(i+1, j), id(i+1, j+1))
			m.AddElement(0, id(i, j), id(i+1, j+1), id(i, j+1))
		}
	}
	return
}

// NewBoxMesh splits each of the nx*ny*nz cells of [0,lx]x[0,ly]x[0,lz] into
// six tetrahedra. Boundary tags: 1 x=0, 2 x=lx, 3 y=0, 4 y=ly, 5 z=0, 6 z=lz.
func NewBoxMesh(nx, ny, nz int, lx, ly, lz float64) (m *Mesh) {
	m = box(nx, ny, nz, lx, ly, lz)
	m.TagBoundary(func(c []float64) int {
		switch {
		case c[0] < geomTol:
			return 1
		case c[0] > lx-geomTol:
			return 2
		case c[1] < geomTol:
			return 3
		case c[1] > ly-geomTol:
			return 4
		case c[2] < geomTol:
			return 5
		default:
			return 6
		}
	})
	return
}

func box(nx, ny, nz int, lx, ly, lz float64) (m *Mesh) {
	if nx < 1 || ny < 1 || nz < 1 {
		panic(fmt.Errorf("invalid box resolution %dx%dx%d", nx, ny, nz))
	}
	m = NewMesh(3)
	id := func(i, j, k int) int { return i + (nx+1)*(j+(ny+1)*k) }
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				m.AddVertex(lx*float64(i)/float64(nx), ly*float64(j)/float64(ny), lz*float64(k)/float64(nz))
			}
		}
	}
	// Kuhn triangulation: one tetrahedron per monotone path through the cell
	paths := [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				for _, path := range paths {
					c := [3]int{i, j, k}
					tet := []int{id(c[0], c[1], c[2])}
					for _, axis := range path {
						c[axis]++
						tet = append(tet, id(c[0], c[1], c[2]))
					}
					m.AddElement(0, tet...)
				}
			}
		}
	}
	m.Orient()
	return
}

// pipeShift is the S-bend of the pipe centerline: zero before x=2, one after
// x=4 and a smoothstep in between
func pipeShift(x float64) float64 {
	t := math.Min(math.Max((x-2)/2, 0), 1)
	return t * t * (3 - 2*t)
}

func pipeTag(c []float64, length float64) int {
	switch {
	case c[0] < geomTol:
		return PipeInflow
	case c[0] > length-geomTol:
		return PipeOutflow
	case c[0] > 1 && c[0] < length-1:
		return PipeFreeWall
	default:
		return PipeFixedWall
	}
}

// NewPipeMesh2D is an S-bend channel of unit width and length 6 with nx by ny
// cells. Tags: 10 inflow (x=0), 11 outflow (x=6), 13 walls with 1<x<5, 12
// the remaining walls.
func NewPipeMesh2D(nx, ny int) (m *Mesh) {
	const length = 6.
	m = rectangle(nx, ny, length, 1)
	m.TagBoundary(func(c []float64) int { return pipeTag(c, length) })
	for _, x := range m.Vertices {
		x[1] += pipeShift(x[0])
	}
	m.Orient()
	return
}

// NewPipeMesh3D is NewPipeMesh2D extruded to unit depth in z
func NewPipeMesh3D(nx, ny, nz int) (m *Mesh) {
	const length = 6.
	m = box(nx, ny, nz, length, 1, 1)
	m.TagBoundary(func(c []float64) int { return pipeTag(c, length) })
	for _, x := range m.Vertices {
		x[1] += pipeShift(x[0])
	}
	m.Orient()
	return
}
