package utils

import "sort"

// ReverseCuthillMcKee returns a bandwidth reducing permutation of the graph
// adj; perm[new] = old. Every connected component is started from a vertex
// of minimum degree.
func ReverseCuthillMcKee(adj [][]int) (perm []int) {
	var (
		n       = len(adj)
		visited = make([]bool, n)
		order   = make([]int, n)
	)
	for i := range order {
		order[i] = i
	}
	degree := func(i int) int { return len(adj[i]) }
	sort.SliceStable(order, func(a, b int) bool {
		return degree(order[a]) < degree(order[b])
	})
	perm = make([]int, 0, n)
	for _, start := range order {
		if visited[start] {
			continue
		}
		visited[start] = true
		queue := []int{start}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			perm = append(perm, v)
			var nbrs []int
			for _, w := range adj[v] {
				if !visited[w] {
					visited[w] = true
					nbrs = append(nbrs, w)
				}
			}
			sort.SliceStable(nbrs, func(a, b int) bool {
				da, db := degree(nbrs[a]), degree(nbrs[b])
				if da == db {
					return nbrs[a] < nbrs[b]
				}
				return da < db
			})
			queue = append(queue, nbrs...)
		}
	}
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		perm[i], perm[j] = perm[j], perm[i]
	}
	return
}

// InversePermutation returns inv with inv[perm[i]] = i
func InversePermutation(perm []int) (inv []int) {
	inv = make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return
}

// Bandwidth returns the lower and upper bandwidth of the sparsity pattern of
// m after renumbering with inv (inv[old] = new).
func Bandwidth(m CSR, inv []int) (kl, ku int) {
	m.DoNonZero(func(i, j int, _ float64) {
		d := inv[j] - inv[i]
		if d > ku {
			ku = d
		}
		if -d > kl {
			kl = -d
		}
	})
	return
}
