package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/TobiSchelling/sciencesync/internal/features"
)

// kmeans runs Lloyd's algorithm from a seeded k-means++ start.
func kmeans(reps []features.Representation, k int, seed int64, maxIter int) (Result, error) {
	n := len(reps)
	d := len(reps[0].Vector)
	for i, r := range reps {
		if r.Vector == nil || len(r.Vector) != d {
			return Result{}, fmt.Errorf("%w: record %d has no vector of dimension %d", ErrUnsupportedMetric, i, d)
		}
	}
	if d == 0 {
		// No vocabulary: every point coincides.
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i * k / n
		}
		return Result{Labels: labels, Converged: true}, nil
	}

	data := mat.NewDense(n, d, nil)
	for i, r := range reps {
		data.SetRow(i, r.Vector)
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := initCentroidsPlusPlus(data, k, rng)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 1; iter <= maxIter; iter++ {
		next := assignNearest(data, centroids)
		fillEmptyClusters(data, centroids, next, k)

		changed := false
		for i := range labels {
			if labels[i] != next[i] {
				changed = true
				break
			}
		}
		labels = next
		if !changed {
			return Result{Labels: labels, Converged: true, Iterations: iter}, nil
		}
		centroids = updateCentroids(data, labels, k, centroids)
	}
	return Result{Labels: labels, Converged: false, Iterations: maxIter}, nil
}

// initCentroidsPlusPlus picks k starting centroids, each new one drawn with probability
// proportional to its squared distance from the nearest centroid chosen so far.
func initCentroidsPlusPlus(data *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, d := data.Dims()
	centroids := mat.NewDense(k, d, nil)
	centroids.SetRow(0, data.RawRowView(rng.Intn(n)))

	nearest := make([]float64, n)
	for j := 0; j < n; j++ {
		nearest[j] = sqDist(data.RawRowView(j), centroids.RawRowView(0))
	}

	for c := 1; c < k; c++ {
		total := floats.Sum(nearest)
		pick := 0
		if total == 0 {
			pick = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			cum := 0.0
			pick = n - 1
			for j, w := range nearest {
				cum += w
				if w > 0 && cum >= target {
					pick = j
					break
				}
			}
		}
		centroids.SetRow(c, data.RawRowView(pick))
		for j := 0; j < n; j++ {
			if dj := sqDist(data.RawRowView(j), centroids.RawRowView(c)); dj < nearest[j] {
				nearest[j] = dj
			}
		}
	}
	return centroids
}

// assignNearest returns the index of the closest centroid for every row. Ties go to the
// lower centroid index.
func assignNearest(data, centroids *mat.Dense) []int {
	n, _ := data.Dims()
	k, _ := centroids.Dims()
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		point := data.RawRowView(i)
		best, bestDist := 0, math.Inf(1)
		for c := 0; c < k; c++ {
			if dc := sqDist(point, centroids.RawRowView(c)); dc < bestDist {
				best, bestDist = c, dc
			}
		}
		labels[i] = best
	}
	return labels
}

// fillEmptyClusters moves the point farthest from its centroid into each empty cluster so
// that every one of the k labels stays in use.
func fillEmptyClusters(data, centroids *mat.Dense, labels []int, k int) {
	n, _ := data.Dims()
	for {
		counts := make([]int, k)
		for _, l := range labels {
			counts[l]++
		}
		empty := -1
		for c, cnt := range counts {
			if cnt == 0 {
				empty = c
				break
			}
		}
		if empty < 0 {
			return
		}

		far, farDist := -1, -1.0
		for i := 0; i < n; i++ {
			if counts[labels[i]] < 2 {
				continue
			}
			if di := sqDist(data.RawRowView(i), centroids.RawRowView(labels[i])); di > farDist {
				far, farDist = i, di
			}
		}
		if far < 0 {
			return
		}
		labels[far] = empty
		centroids.SetRow(empty, data.RawRowView(far))
	}
}

// updateCentroids averages the points of each cluster. A cluster without points keeps its
// previous centroid.
func updateCentroids(data *mat.Dense, labels []int, k int, prev *mat.Dense) *mat.Dense {
	_, d := data.Dims()
	centroids := mat.NewDense(k, d, nil)
	counts := make([]float64, k)
	for i, l := range labels {
		floats.Add(centroids.RawRowView(l), data.RawRowView(i))
		counts[l]++
	}
	for c := 0; c < k; c++ {
		row := centroids.RawRowView(c)
		if counts[c] == 0 {
			copy(row, prev.RawRowView(c))
			continue
		}
		floats.Scale(1/counts[c], row)
	}
	return centroids
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		diff := a[i] - b[i]
		s += diff * diff
	}
	return s
}
