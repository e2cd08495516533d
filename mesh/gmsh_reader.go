package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported mesh format")

// gmsh element type number to (dimension, number of nodes)
var gmshElementTypes = map[int][2]int{
	15: {0, 1}, // point
	1:  {1, 2}, // line
	2:  {2, 3}, // triangle
	4:  {3, 4}, // tetrahedron
}

type gmshElement struct {
	dim   int
	tag   int
	nodes []int
}

// ReadMeshFile reads a mesh file based on extension
func ReadMeshFile(filename string) (*Mesh, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".msh":
		return ReadGmsh22(filename)
	default:
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}
}

// ReadGmsh22 reads an ASCII Gmsh MSH file format version 2.2. The mesh
// dimension is the highest element dimension found; elements one dimension
// lower become tagged boundary facets and unused nodes are dropped.
func ReadGmsh22(filename string) (*Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readGmsh22(file)
}

func readGmsh22(r io.Reader) (*Mesh, error) {
	var (
		scanner  = bufio.NewScanner(r)
		version  string
		names    = make(map[int]string)
		nodes    = make(map[int][]float64)
		elements []gmshElement
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch line {
		case "$MeshFormat":
			version, err = readMeshFormat(scanner)

		case "$PhysicalNames":
			err = readPhysicalNames(scanner, names)

		case "$Nodes":
			err = readNodes(scanner, nodes)

		case "$Elements":
			elements, err = readElements(scanner)

		default:
			if strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "$End") {
				// Skip unused sections
				endMarker := "$End" + line[1:]
				for scanner.Scan() {
					if strings.TrimSpace(scanner.Text()) == endMarker {
						break
					}
				}
			}
		}
		if err != nil {
			return nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %v", err)
	}
	if version == "" {
		return nil, fmt.Errorf("missing MeshFormat section: %w", ErrUnsupportedFormat)
	}

	return assemble(version, names, nodes, elements)
}

func readMeshFormat(scanner *bufio.Scanner) (version string, err error) {
	if !scanner.Scan() {
		return "", fmt.Errorf("unexpected EOF in MeshFormat")
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) < 3 {
		return "", fmt.Errorf("invalid MeshFormat line")
	}

	version = parts[0]
	if !strings.HasPrefix(version, "2.") {
		return "", fmt.Errorf("gmsh version %s: %w", version, ErrUnsupportedFormat)
	}
	if fileType, _ := strconv.Atoi(parts[1]); fileType != 0 {
		return "", fmt.Errorf("binary gmsh file: %w", ErrUnsupportedFormat)
	}

	// Skip to end
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "$EndMeshFormat" {
			break
		}
	}
	return
}

func readPhysicalNames(scanner *bufio.Scanner, names map[int]string) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in PhysicalNames")
	}

	numNames, _ := strconv.Atoi(strings.TrimSpace(scanner.Text()))

	for i := 0; i < numNames; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading physical names")
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			return fmt.Errorf("invalid physical name line: %s", scanner.Text())
		}
		tag, _ := strconv.Atoi(parts[1])
		names[tag] = strings.Trim(strings.Join(parts[2:], " "), "\"")
	}

	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "$EndPhysicalNames" {
			break
		}
	}
	return nil
}

func readNodes(scanner *bufio.Scanner, nodes map[int][]float64) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF in Nodes")
	}

	numNodes, _ := strconv.Atoi(strings.TrimSpace(scanner.Text()))

	for i := 0; i < numNodes; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading nodes")
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return fmt.Errorf("invalid node line: %s", scanner.Text())
		}

		nodeID, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("invalid node id %q: %v", parts[0], err)
		}
		x := make([]float64, 3)
		for d := 0; d < 3; d++ {
			if x[d], err = strconv.ParseFloat(parts[1+d], 64); err != nil {
				return fmt.Errorf("node %d: %v", nodeID, err)
			}
		}
		nodes[nodeID] = x
	}

	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "$EndNodes" {
			break
		}
	}
	return nil
}

func readElements(scanner *bufio.Scanner) (elements []gmshElement, err error) {
	if !scanner.Scan() {
		return nil, fmt.Errorf("unexpected EOF in Elements")
	}

	numElements, _ := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	elements = make([]gmshElement, 0, numElements)

	for i := 0; i < numElements; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("unexpected EOF reading elements")
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) < 4 {
			return nil, fmt.Errorf("invalid element line: %s", scanner.Text())
		}

		elemID, _ := strconv.Atoi(parts[0])
		elemType, _ := strconv.Atoi(parts[1])
		numTags, _ := strconv.Atoi(parts[2])

		etype, ok := gmshElementTypes[elemType]
		if !ok {
			return nil, fmt.Errorf("element %d: gmsh element type %d: %w",
				elemID, elemType, ErrUnsupportedFormat)
		}

		nodeStart := 3 + numTags
		if len(parts) < nodeStart+etype[1] {
			return nil, fmt.Errorf("element %d: expected %d nodes, got %d",
				elemID, etype[1], len(parts)-nodeStart)
		}

		// The first tag is the physical group
		el := gmshElement{dim: etype[0], nodes: make([]int, etype[1])}
		if numTags > 0 {
			el.tag, _ = strconv.Atoi(parts[3])
		}
		for j := range el.nodes {
			el.nodes[j], _ = strconv.Atoi(parts[nodeStart+j])
		}
		elements = append(elements, el)
	}

	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "$EndElements" {
			break
		}
	}
	return
}

func assemble(version string, names map[int]string, nodes map[int][]float64,
	elements []gmshElement) (*Mesh, error) {
	var dim int
	for _, el := range elements {
		dim = max(dim, el.dim)
	}
	if dim == 0 {
		m := NewMesh(0)
		m.FormatVersion = version
		return m, nil
	}

	m := NewMesh(dim)
	m.FormatVersion = version
	for tag, name := range names {
		m.PhysicalNames[tag] = name
	}

	index := make(map[int]int)
	vertex := func(nodeID int) (int, error) {
		if idx, ok := index[nodeID]; ok {
			return idx, nil
		}
		x, ok := nodes[nodeID]
		if !ok {
			return 0, fmt.Errorf("element references unknown node %d", nodeID)
		}
		idx := m.AddVertex(append([]float64(nil), x[:dim]...)...)
		index[nodeID] = idx
		return idx, nil
	}

	for _, el := range elements {
		if el.dim != dim {
			continue
		}
		verts := make([]int, len(el.nodes))
		for j, id := range el.nodes {
			v, err := vertex(id)
			if err != nil {
				return nil, err
			}
			verts[j] = v
		}
		m.AddElement(el.tag, verts...)
	}

	for _, el := range elements {
		if el.dim != dim-1 {
			continue
		}
		verts := make([]int, len(el.nodes))
		for j, id := range el.nodes {
			v, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("boundary element references node %d outside the mesh", id)
			}
			verts[j] = v
		}
		m.Facets = append(m.Facets, BoundaryFacet{Vertices: verts, Tag: el.tag})
	}

	m.Orient()
	return m, nil
}
