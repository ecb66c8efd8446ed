package cluster

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/TobiSchelling/sciencesync/internal/distance"
	"github.com/TobiSchelling/sciencesync/internal/features"
)

// Scores are the internal validity indices of one labelling.
type Scores struct {
	Silhouette       float64 `json:"silhouette"`
	DaviesBouldin    float64 `json:"davies_bouldin"`
	CalinskiHarabasz float64 `json:"calinski_harabasz"`
}

// Evaluate scores labels. Silhouette uses the run's distance matrix; Davies-Bouldin and
// Calinski-Harabasz need centroids and use the representations, with token sets turned into
// 0/1 indicator vectors.
func Evaluate(dist *distance.Matrix, reps []features.Representation, labels []int) Scores {
	s := Scores{Silhouette: Silhouette(dist, labels)}
	if len(reps) == 0 || len(reps) != len(labels) {
		return s
	}
	pts := points(reps)
	s.DaviesBouldin = DaviesBouldin(pts, labels)
	s.CalinskiHarabasz = CalinskiHarabasz(pts, labels)
	return s
}

// DaviesBouldin is the mean, over clusters, of the worst ratio of summed scatter to centroid
// separation. Lower is better. It is 0 for fewer than two clusters.
func DaviesBouldin(pts [][]float64, labels []int) float64 {
	labels = Canonicalize(labels)
	k := countLabels(labels)
	if k < 2 || len(pts) != len(labels) {
		return 0
	}
	cents, sizes := centroids(pts, labels, k)

	scatter := make([]float64, k)
	for i, p := range pts {
		scatter[labels[i]] += floats.Distance(p, cents[labels[i]], 2)
	}
	spread := false
	for c := range scatter {
		scatter[c] /= float64(sizes[c])
		if scatter[c] > 0 {
			spread = true
		}
	}
	if !spread {
		return 0
	}

	var total float64
	for i := 0; i < k; i++ {
		worst := 0.0
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			d := floats.Distance(cents[i], cents[j], 2)
			if d == 0 {
				continue
			}
			worst = max(worst, (scatter[i]+scatter[j])/d)
		}
		total += worst
	}
	return total / float64(k)
}

// CalinskiHarabasz is the ratio of between-cluster to within-cluster dispersion, each
// divided by its degrees of freedom. Higher is better. It is 0 unless 2 <= k < n, and 1 when
// every cluster is a single repeated point.
func CalinskiHarabasz(pts [][]float64, labels []int) float64 {
	labels = Canonicalize(labels)
	n, k := len(pts), countLabels(labels)
	if k < 2 || k >= n || n != len(labels) {
		return 0
	}
	cents, sizes := centroids(pts, labels, k)

	mean := make([]float64, len(pts[0]))
	for _, p := range pts {
		floats.Add(mean, p)
	}
	floats.Scale(1/float64(n), mean)

	var between, within float64
	for c, cent := range cents {
		d := floats.Distance(cent, mean, 2)
		between += float64(sizes[c]) * d * d
	}
	for i, p := range pts {
		d := floats.Distance(p, cents[labels[i]], 2)
		within += d * d
	}
	if within == 0 {
		return 1
	}
	return between * float64(n-k) / (within * float64(k-1))
}

func countLabels(labels []int) int {
	k := 0
	for _, l := range labels {
		k = max(k, l+1)
	}
	return k
}

// centroids averages the points of each label in [0, k).
func centroids(pts [][]float64, labels []int, k int) ([][]float64, []int) {
	cents := make([][]float64, k)
	sizes := make([]int, k)
	for c := range cents {
		cents[c] = make([]float64, len(pts[0]))
	}
	for i, p := range pts {
		floats.Add(cents[labels[i]], p)
		sizes[labels[i]]++
	}
	for c := range cents {
		if sizes[c] > 0 {
			floats.Scale(1/float64(sizes[c]), cents[c])
		}
	}
	return cents, sizes
}

func points(reps []features.Representation) [][]float64 {
	if reps[0].Vector != nil || reps[0].Set == nil {
		out := make([][]float64, len(reps))
		for i, r := range reps {
			out[i] = r.Vector
		}
		return out
	}

	index := make(map[string]int)
	var vocab []string
	for _, r := range reps {
		for tok := range r.Set {
			if _, ok := index[tok]; !ok {
				index[tok] = 0
				vocab = append(vocab, tok)
			}
		}
	}
	sort.Strings(vocab)
	for i, tok := range vocab {
		index[tok] = i
	}

	out := make([][]float64, len(reps))
	for i, r := range reps {
		v := make([]float64, len(vocab))
		for tok := range r.Set {
			v[index[tok]] = 1
		}
		out[i] = v
	}
	return out
}
