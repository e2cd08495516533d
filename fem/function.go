package fem

import "fmt"

// Function is a continuous piecewise linear field with NComp components per
// vertex, stored vertex-major
type Function struct {
	Name   string
	NComp  int
	Values []float64
}

func NewFunction(name string, nVertices, nComp int) *Function {
	return &Function{
		Name:   name,
		NComp:  nComp,
		Values: make([]float64, nVertices*nComp),
	}
}

func (f *Function) NumVertices() int { return len(f.Values) / f.NComp }

func (f *Function) At(v, c int) float64     { return f.Values[v*f.NComp+c] }
func (f *Function) Set(v, c int, val float64) { f.Values[v*f.NComp+c] = val }

// Vertex returns the components at vertex v, sharing storage with f
func (f *Function) Vertex(v int) []float64 {
	return f.Values[v*f.NComp : (v+1)*f.NComp]
}

// Components copies components [from, to) into a new Function
func (f *Function) Components(name string, from, to int) (g *Function) {
	if from < 0 || to > f.NComp || from >= to {
		panic(fmt.Errorf("component range [%d,%d) out of range for %d components", from, to, f.NComp))
	}
	n := f.NumVertices()
	g = NewFunction(name, n, to-from)
	for v := 0; v < n; v++ {
		copy(g.Vertex(v), f.Values[v*f.NComp+from:v*f.NComp+to])
	}
	return
}

// Gather returns the values of component c on the vertices of el
func (f *Function) Gather(el []int, c int) (u []float64) {
	u = make([]float64, len(el))
	for a, v := range el {
		u[a] = f.At(v, c)
	}
	return
}

func (f *Function) Clone() *Function {
	return &Function{
		Name:   f.Name,
		NComp:  f.NComp,
		Values: append([]float64(nil), f.Values...),
	}
}

// Interpolate sets component c to fn evaluated at the vertex coordinates
func (f *Function) Interpolate(vertices [][]float64, c int, fn func(x []float64) float64) {
	for v, x := range vertices {
		f.Set(v, c, fn(x))
	}
}
