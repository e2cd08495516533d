// Package output writes mesh fields for ParaView, one unstructured grid file
// per write collected in a .pvd time series.
package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/notargets/goshape/fem"
	"github.com/notargets/goshape/mesh"
)

// VTK cell types
const (
	vtkLine        = 3
	vtkTriangle    = 5
	vtkTetrahedron = 10
)

type Trace struct {
	dir, base string
	files     []string
}

// NewTrace starts a collection at path, "out/u.pvd" writes out/u.pvd and
// out/u_<n>.vtu
func NewTrace(path string) (tr *Trace, err error) {
	if path, err = homedir.Expand(path); err != nil {
		return
	}
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	return &Trace{
		dir:  dir,
		base: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}, nil
}

func (tr *Trace) Len() int { return len(tr.files) }

func (tr *Trace) CollectionPath() string { return filepath.Join(tr.dir, tr.base+".pvd") }

// Write appends a snapshot of the fields on the current coordinates of m
func (tr *Trace) Write(m *mesh.Mesh, fields ...*fem.Function) (err error) {
	name := fmt.Sprintf("%s_%d.vtu", tr.base, len(tr.files))
	if err = writeVTU(filepath.Join(tr.dir, name), m, fields); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	tr.files = append(tr.files, name)
	return tr.writeCollection()
}

func (tr *Trace) writeCollection() (err error) {
	f, err := os.Create(tr.CollectionPath())
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, `<?xml version="1.0"?>`)
	fmt.Fprintln(w, `<VTKFile type="Collection" version="0.1">`)
	fmt.Fprintln(w, `  <Collection>`)
	for i, name := range tr.files {
		fmt.Fprintf(w, "    <DataSet timestep=\"%d\" part=\"0\" file=\"%s\"/>\n", i, name)
	}
	fmt.Fprintln(w, `  </Collection>`)
	fmt.Fprintln(w, `</VTKFile>`)
	return w.Flush()
}

func writeVTU(path string, m *mesh.Mesh, fields []*fem.Function) (err error) {
	var cellType int
	switch m.Dim {
	case 1:
		cellType = vtkLine
	case 2:
		cellType = vtkTriangle
	case 3:
		cellType = vtkTetrahedron
	default:
		return fmt.Errorf("no VTK cell for dimension %d", m.Dim)
	}
	for _, fn := range fields {
		if fn.NumVertices() != m.NumVertices() {
			return fmt.Errorf("field %s has %d vertices, mesh has %d", fn.Name, fn.NumVertices(), m.NumVertices())
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, `<?xml version="1.0"?>`)
	fmt.Fprintln(w, `<VTKFile type="UnstructuredGrid" version="0.1" byte_order="LittleEndian">`)
	fmt.Fprintln(w, `  <UnstructuredGrid>`)
	fmt.Fprintf(w, "    <Piece NumberOfPoints=\"%d\" NumberOfCells=\"%d\">\n", m.NumVertices(), m.NumElements())

	fmt.Fprintln(w, `      <Points>`)
	fmt.Fprintln(w, `        <DataArray type="Float64" NumberOfComponents="3" format="ascii">`)
	for _, x := range m.Vertices {
		var p [3]float64
		copy(p[:], x)
		fmt.Fprintf(w, "          %.16g %.16g %.16g\n", p[0], p[1], p[2])
	}
	fmt.Fprintln(w, `        </DataArray>`)
	fmt.Fprintln(w, `      </Points>`)

	fmt.Fprintln(w, `      <Cells>`)
	fmt.Fprintln(w, `        <DataArray type="Int64" Name="connectivity" format="ascii">`)
	for _, el := range m.Elements {
		fmt.Fprint(w, "         ")
		for _, v := range el {
			fmt.Fprintf(w, " %d", v)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, `        </DataArray>`)
	fmt.Fprintln(w, `        <DataArray type="Int64" Name="offsets" format="ascii">`)
	var offset int
	for _, el := range m.Elements {
		offset += len(el)
		fmt.Fprintf(w, "          %d\n", offset)
	}
	fmt.Fprintln(w, `        </DataArray>`)
	fmt.Fprintln(w, `        <DataArray type="UInt8" Name="types" format="ascii">`)
	for range m.Elements {
		fmt.Fprintf(w, "          %d\n", cellType)
	}
	fmt.Fprintln(w, `        </DataArray>`)
	fmt.Fprintln(w, `      </Cells>`)

	fmt.Fprintln(w, `      <PointData>`)
	for _, fn := range fields {
		// ParaView reads two component arrays as complex, pad vectors to 3
		nc := fn.NComp
		if nc == 2 {
			nc = 3
		}
		fmt.Fprintf(w, "        <DataArray type=\"Float64\" Name=\"%s\" NumberOfComponents=\"%d\" format=\"ascii\">\n",
			fn.Name, nc)
		for v := 0; v < fn.NumVertices(); v++ {
			fmt.Fprint(w, "         ")
			for _, val := range fn.Vertex(v) {
				fmt.Fprintf(w, " %.16g", val)
			}
			if nc != fn.NComp {
				fmt.Fprint(w, " 0")
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, `        </DataArray>`)
	}
	fmt.Fprintln(w, `      </PointData>`)
	fmt.Fprintln(w, `    </Piece>`)
	fmt.Fprintln(w, `  </UnstructuredGrid>`)
	fmt.Fprintln(w, `</VTKFile>`)
	return w.Flush()
}
