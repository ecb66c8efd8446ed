package cluster

import (
	"context"
	"testing"

	"github.com/TobiSchelling/sciencesync/internal/distance"
	"github.com/TobiSchelling/sciencesync/internal/features"
)

func vectors(points ...[]float64) []features.Representation {
	reps := make([]features.Representation, len(points))
	for i, p := range points {
		reps[i] = features.Representation{Vector: p}
	}
	return reps
}

func euclideanMatrix(t *testing.T, reps []features.Representation) *distance.Matrix {
	t.Helper()
	m, err := distance.Compute(context.Background(), distance.Euclidean, reps, 0)
	if err != nil {
		t.Fatalf("computing distances: %v", err)
	}
	return m
}

func TestWardLinkageSimple(t *testing.T) {
	// 4 points: 3 similar + 1 outlier
	reps := vectors(
		[]float64{1.0, 0.0, 0.0},
		[]float64{0.95, 0.05, 0.0},
		[]float64{0.9, 0.1, 0.0},
		[]float64{0.0, 0.0, 1.0},
	)
	merges := linkageMerges(euclideanMatrix(t, reps), Ward)

	if len(merges) != 3 {
		t.Fatalf("expected 3 merges, got %d", len(merges))
	}
	if m0 := merges[0]; m0.a == 3 || m0.b == 3 {
		t.Errorf("expected first merge between close points, got %d and %d", m0.a, m0.b)
	}
	for i := 1; i < len(merges); i++ {
		if merges[i].distance < merges[i-1].distance-1e-10 {
			t.Errorf("merge distances should be non-decreasing: %f < %f", merges[i].distance, merges[i-1].distance)
		}
	}
	if last := merges[2]; last.size != 4 {
		t.Errorf("last merge should contain every point, got size %d", last.size)
	}
}

func TestLinkageCutToK(t *testing.T) {
	// A chain 0-1-2 and a far point 3.
	reps := vectors([]float64{0}, []float64{1}, []float64{2}, []float64{10})
	dist := euclideanMatrix(t, reps)

	for _, l := range []Linkage{Single, Complete, Average, Ward} {
		labels := Canonicalize(cutToK(linkageMerges(dist, l), 4, 2))
		want := []int{0, 0, 0, 1}
		for i := range want {
			if labels[i] != want[i] {
				t.Errorf("%s: labels = %v, expected %v", l, labels, want)
				break
			}
		}
	}
}

func TestSingleLinkageChains(t *testing.T) {
	// Single linkage follows the chain; complete linkage does not.
	reps := vectors([]float64{0}, []float64{1.0}, []float64{2.0}, []float64{3.0}, []float64{3.9})
	dist := euclideanMatrix(t, reps)

	single := Canonicalize(cutToK(linkageMerges(dist, Single), 5, 1))
	for _, l := range single {
		if l != 0 {
			t.Fatalf("k=1 must give one cluster, got %v", single)
		}
	}

	merges := linkageMerges(dist, Single)
	for _, m := range merges {
		if m.distance > 1.0+1e-9 {
			t.Errorf("single linkage merge height %f exceeds chain step", m.distance)
		}
	}
	complete := linkageMerges(dist, Complete)
	if complete[len(complete)-1].distance < 3.9-1e-9 {
		t.Errorf("complete linkage final height %f should span the chain", complete[len(complete)-1].distance)
	}
}
