package distance

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/TobiSchelling/sciencesync/internal/features"
)

// Metric selects the distance function used for a run.
type Metric string

const (
	Jaccard   Metric = "jaccard"
	Euclidean Metric = "euclidean"
)

// ErrUnknownMetric is returned when parsing an unsupported metric name.
var ErrUnknownMetric = errors.New("unknown metric")

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case Jaccard, Euclidean:
		return m, nil
	}
	return "", fmt.Errorf("%w %q (expected jaccard or euclidean)", ErrUnknownMetric, s)
}

// Family is the representation family the metric operates on.
func (m Metric) Family() features.Family {
	if m == Euclidean {
		return features.FamilyGeometric
	}
	return features.FamilySet
}

// Between computes the distance of two representations under m.
func (m Metric) Between(a, b features.Representation) float64 {
	if m == Euclidean {
		return EuclideanDistance(a.Vector, b.Vector)
	}
	return JaccardDistance(a.Set, b.Set)
}

// JaccardDistance is 1 - |A∩B|/|A∪B|. Two empty sets share nothing and are at distance 1.
func JaccardDistance(a, b features.TokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if large.Has(t) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return 1 - float64(inter)/float64(union)
}

// EuclideanDistance is the L2 norm of a-b. Vectors must share a basis.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	return floats.Distance(a, b, 2)
}

// Matrix is a symmetric distance matrix with a zero diagonal, stored as the condensed
// upper triangle in row-major order.
type Matrix struct {
	n    int
	data []float64
}

// NewMatrix allocates an n×n zero matrix.
func NewMatrix(n int) *Matrix {
	return &Matrix{n: n, data: make([]float64, n*(n-1)/2)}
}

// Len is the number of points.
func (m *Matrix) Len() int { return m.n }

// At returns d(i, j). At(i, i) is always 0.
func (m *Matrix) At(i, j int) float64 {
	if i == j {
		return 0
	}
	return m.data[condensedIndex(m.n, i, j)]
}

// Set writes d(i, j) = d(j, i) = v for i != j.
func (m *Matrix) Set(i, j int, v float64) {
	if i == j {
		return
	}
	m.data[condensedIndex(m.n, i, j)] = v
}

// Condensed returns a copy of the upper-triangle values.
func (m *Matrix) Condensed() []float64 {
	return append([]float64(nil), m.data...)
}

// condensedIndex returns the index in the condensed array for pair (i, j), i != j.
func condensedIndex(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + j - i - 1
}

// Compute fills the distance matrix for reps. Each pair i<j is computed exactly once; rows
// are spread over workers goroutines (GOMAXPROCS when workers <= 0). Representations are
// only read.
func Compute(ctx context.Context, metric Metric, reps []features.Representation, workers int) (*Matrix, error) {
	n := len(reps)
	m := NewMatrix(n)
	if n < 2 {
		return m, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n-1; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Row i owns the cells (i, j>i); rows never share cells.
			for j := i + 1; j < n; j++ {
				m.data[condensedIndex(n, i, j)] = metric.Between(reps[i], reps[j])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("computing distances: %w", err)
	}
	return m, nil
}
