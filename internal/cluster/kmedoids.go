package cluster

import (
	"math"

	"github.com/TobiSchelling/sciencesync/internal/distance"
)

// kmedoids runs PAM: a greedy BUILD phase followed by SWAP steps that take the single best
// medoid/non-medoid exchange until no exchange lowers the total cost. It only reads the
// distance matrix, so it works with any metric, and it is fully deterministic.
func kmedoids(dist *distance.Matrix, k, maxIter int) Result {
	n := dist.Len()
	medoids := buildMedoids(dist, k)
	isMedoid := make([]bool, n)
	for _, m := range medoids {
		isMedoid[m] = true
	}

	cost := totalCost(dist, medoids)
	converged := false
	iter := 0
	for iter < maxIter {
		iter++
		bestCost, bestSlot, bestPoint := cost, -1, -1
		for slot := range medoids {
			old := medoids[slot]
			for o := 0; o < n; o++ {
				if isMedoid[o] {
					continue
				}
				medoids[slot] = o
				if c := totalCost(dist, medoids); c < bestCost-1e-12 {
					bestCost, bestSlot, bestPoint = c, slot, o
				}
			}
			medoids[slot] = old
		}
		if bestSlot < 0 {
			converged = true
			break
		}
		isMedoid[medoids[bestSlot]] = false
		isMedoid[bestPoint] = true
		medoids[bestSlot] = bestPoint
		cost = bestCost
	}

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i], _ = nearestMedoid(dist, medoids, i)
	}
	return Result{Labels: labels, Converged: converged, Iterations: iter}
}

// buildMedoids greedily picks k medoids: first the point with the smallest total distance,
// then repeatedly the point that lowers the total cost most. Ties go to the lower index.
func buildMedoids(dist *distance.Matrix, k int) []int {
	n := dist.Len()
	chosen := make([]bool, n)
	nearest := make([]float64, n)
	for i := range nearest {
		nearest[i] = math.Inf(1)
	}

	medoids := make([]int, 0, k)
	for len(medoids) < k {
		best, bestCost := -1, math.Inf(1)
		for c := 0; c < n; c++ {
			if chosen[c] {
				continue
			}
			var cost float64
			for i := 0; i < n; i++ {
				cost += math.Min(nearest[i], dist.At(i, c))
			}
			if cost < bestCost {
				best, bestCost = c, cost
			}
		}
		chosen[best] = true
		medoids = append(medoids, best)
		for i := 0; i < n; i++ {
			nearest[i] = math.Min(nearest[i], dist.At(i, best))
		}
	}
	return medoids
}

func totalCost(dist *distance.Matrix, medoids []int) float64 {
	var cost float64
	for i := 0; i < dist.Len(); i++ {
		_, d := nearestMedoid(dist, medoids, i)
		cost += d
	}
	return cost
}

// nearestMedoid returns the slot of the medoid closest to point i. A medoid always belongs
// to its own slot, even when another medoid is at distance zero.
func nearestMedoid(dist *distance.Matrix, medoids []int, i int) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for slot, m := range medoids {
		if m == i {
			return slot, 0
		}
		if d := dist.At(i, m); d < bestDist {
			best, bestDist = slot, d
		}
	}
	return best, bestDist
}
