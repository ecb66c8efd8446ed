package cluster

import (
	"math"

	"github.com/TobiSchelling/sciencesync/internal/distance"
)

// merge records a single merge step in the dendrogram.
type merge struct {
	a, b     int     // indices merged (original points or previous clusters)
	distance float64 // merge distance
	size     int     // size of the new cluster
}

// linkageMerges performs agglomerative clustering with the Lance-Williams recurrence and
// returns the full merge history (n-1 merges). Cluster n+s is the one created at step s.
// Ward works on squared distances and reports plain Euclidean merge heights.
func linkageMerges(dist *distance.Matrix, linkage Linkage) []merge {
	n := dist.Len()
	total := 2*n - 1
	if n == 0 {
		return nil
	}

	// Working matrix indexed by cluster id; rows for new clusters fill in as they appear.
	d := make([][]float64, total)
	for i := range d {
		d[i] = make([]float64, total)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := dist.At(i, j)
			if linkage == Ward {
				v *= v
			}
			d[i][j], d[j][i] = v, v
		}
	}

	active := make([]bool, total)
	size := make([]int, total)
	for i := 0; i < n; i++ {
		active[i] = true
		size[i] = 1
	}

	merges := make([]merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		// Closest active pair; ties go to the lowest (i, j).
		minDist := math.Inf(1)
		minI, minJ := -1, -1
		for i := 0; i < n+step; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n+step; j++ {
				if active[j] && d[i][j] < minDist {
					minDist, minI, minJ = d[i][j], i, j
				}
			}
		}

		newCluster := n + step
		active[minI], active[minJ] = false, false
		active[newCluster] = true
		size[newCluster] = size[minI] + size[minJ]

		height := minDist
		if linkage == Ward {
			height = math.Sqrt(minDist)
		}
		merges = append(merges, merge{a: minI, b: minJ, distance: height, size: size[newCluster]})

		ni, nj := float64(size[minI]), float64(size[minJ])
		for k := 0; k < newCluster; k++ {
			if !active[k] {
				continue
			}
			dik, djk := d[minI][k], d[minJ][k]
			var v float64
			switch linkage {
			case Single:
				v = math.Min(dik, djk)
			case Complete:
				v = math.Max(dik, djk)
			case Ward:
				nk := float64(size[k])
				v = ((nk+ni)*dik + (nk+nj)*djk - nk*minDist) / (nk + ni + nj)
			default:
				v = (ni*dik + nj*djk) / (ni + nj)
			}
			d[newCluster][k], d[k][newCluster] = v, v
		}
	}
	return merges
}

// cutToK replays merges until exactly k clusters remain and labels each original point.
func cutToK(merges []merge, n, k int) []int {
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	for step := 0; step < n-k; step++ {
		m := merges[step]
		newCluster := n + step
		parent[find(parent, m.a)] = newCluster
		parent[find(parent, m.b)] = newCluster
	}

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = find(parent, i)
	}
	return labels
}

// find resolves the root of a node, compressing the path.
func find(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}

// agglomerative merges the closest clusters until exactly k remain. It is deterministic and
// always converges.
func agglomerative(dist *distance.Matrix, k int, linkage Linkage) Result {
	n := dist.Len()
	merges := linkageMerges(dist, linkage)
	return Result{Labels: cutToK(merges, n, k), Converged: true, Iterations: n - k}
}
