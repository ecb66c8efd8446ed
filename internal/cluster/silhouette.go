package cluster

import (
	"fmt"

	"github.com/TobiSchelling/sciencesync/internal/distance"
	"github.com/TobiSchelling/sciencesync/internal/features"
)

// Silhouette returns the mean silhouette coefficient of labels over dist, in [-1, 1].
// Points in singleton clusters score 0. The score is 0 when there are fewer than two
// clusters or every point is its own cluster.
func Silhouette(dist *distance.Matrix, labels []int) float64 {
	n := dist.Len()
	if n == 0 || len(labels) != n {
		return 0
	}

	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}
	if len(sizes) < 2 || len(sizes) == n {
		return 0
	}

	var total float64
	for i := 0; i < n; i++ {
		if sizes[labels[i]] < 2 {
			continue
		}
		sums := make(map[int]float64, len(sizes))
		for j := 0; j < n; j++ {
			if j != i {
				sums[labels[j]] += dist.At(i, j)
			}
		}

		a := sums[labels[i]] / float64(sizes[labels[i]]-1)
		b := -1.0
		for l, sum := range sums {
			if l == labels[i] {
				continue
			}
			if mean := sum / float64(sizes[l]); b < 0 || mean < b {
				b = mean
			}
		}

		if m := max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(n)
}

// KScore is the evaluation of one cluster count.
type KScore struct {
	K int `json:"k"`
	Scores
	Converged bool `json:"converged"`
}

// SuggestK runs opts for every k in [minK, maxK] (clamped to the number of points) and
// returns the scores plus the k with the highest silhouette. Ties go to the smaller k.
// Davies-Bouldin and Calinski-Harabasz are reported alongside but do not pick k.
func SuggestK(opts Options, dist *distance.Matrix, reps []features.Representation, minK, maxK int) ([]KScore, int, error) {
	if minK < 2 {
		minK = 2
	}
	if maxK > dist.Len() {
		maxK = dist.Len()
	}
	if minK > maxK {
		return nil, 0, fmt.Errorf("%w: no k in range [%d, %d] for %d records",
			ErrInvalidClusterCount, minK, maxK, dist.Len())
	}

	var (
		scores []KScore
		best   = -1
		bestS  float64
	)
	for k := minK; k <= maxK; k++ {
		opts.K = k
		res, err := Run(opts, dist, reps)
		if err != nil {
			return nil, 0, fmt.Errorf("k=%d: %w", k, err)
		}
		sc := Evaluate(dist, reps, res.Labels)
		scores = append(scores, KScore{K: k, Scores: sc, Converged: res.Converged})
		if best < 0 || sc.Silhouette > bestS {
			best, bestS = k, sc.Silhouette
		}
	}
	return scores, best, nil
}
