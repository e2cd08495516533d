package fem

// NodeSensitivity returns the derivative with respect to the vertex
// coordinates X[b][k] of an element quantity S(vol, G), given its partial
// derivatives sVol = ∂S/∂vol and sG[a][j] = ∂S/∂G[a][j]. It uses
//
//	∂vol/∂X[b][k]    = vol G[b][k]
//	∂G[a][j]/∂X[b][k] = -G[a][k] G[b][j]
func (s Simplex) NodeSensitivity(sVol float64, sG [][]float64) (dX [][]float64) {
	var (
		d = s.Dim
		M = make([][]float64, d)
	)
	if sG != nil {
		for j := 0; j < d; j++ {
			M[j] = make([]float64, d)
			for k := 0; k < d; k++ {
				for a := 0; a <= d; a++ {
					M[j][k] += sG[a][j] * s.G[a][k]
				}
			}
		}
	}
	dX = make([][]float64, d+1)
	for b := 0; b <= d; b++ {
		dX[b] = make([]float64, d)
		for k := 0; k < d; k++ {
			v := s.Vol * sVol * s.G[b][k]
			if sG != nil {
				for j := 0; j < d; j++ {
					v -= s.G[b][j] * M[j][k]
				}
			}
			dX[b][k] = v
		}
	}
	return
}

// AddPointSensitivity adds the contribution of an explicit dependence on a
// physical point x = Σ λ_a X[a]: dX[b] += lambda[b] * dx
func AddPointSensitivity(dX [][]float64, lambda, dx []float64) {
	for b, l := range lambda {
		for k, v := range dx {
			dX[b][k] += l * v
		}
	}
}

// Scatter adds an element sensitivity into the vertex-major global vector
func Scatter(dst []float64, el []int, dX [][]float64) {
	d := len(dX[0])
	for a, v := range el {
		for k := 0; k < d; k++ {
			dst[v*d+k] += dX[a][k]
		}
	}
}

// NewGradient allocates a (d+1) x d zero array, the shape of G
func NewGradient(d int) (g [][]float64) {
	g = make([][]float64, d+1)
	for a := range g {
		g[a] = make([]float64, d)
	}
	return
}
