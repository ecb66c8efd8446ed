package cluster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/sciencesync/internal/distance"
	"github.com/TobiSchelling/sciencesync/internal/features"
)

// Algorithm selects the clustering method.
type Algorithm string

const (
	KMeans        Algorithm = "kmeans"
	KMedoids      Algorithm = "kmedoids"
	Agglomerative Algorithm = "agglomerative"
)

// Linkage selects how agglomerative clustering measures distance between clusters.
type Linkage string

const (
	Single   Linkage = "single"
	Complete Linkage = "complete"
	Average  Linkage = "average"
	Ward     Linkage = "ward"
)

const DefaultMaxIterations = 300

var (
	ErrUnsupportedMetric   = errors.New("metric not supported by algorithm")
	ErrInvalidClusterCount = errors.New("invalid cluster count")
	ErrUnknownAlgorithm    = errors.New("unknown clustering algorithm")
	ErrUnknownLinkage      = errors.New("unknown linkage")
)

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case KMeans, KMedoids, Agglomerative:
		return a, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownAlgorithm, s)
}

// ParseLinkage validates a linkage name. The empty string selects Average.
func ParseLinkage(s string) (Linkage, error) {
	switch l := Linkage(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return Average, nil
	case Single, Complete, Average, Ward:
		return l, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownLinkage, s)
}

// Options configures one clustering run.
type Options struct {
	Algorithm     Algorithm
	Metric        distance.Metric
	K             int
	Linkage       Linkage
	Seed          int64
	MaxIterations int
}

// Canonical returns o with algorithm, metric and linkage names parsed into their canonical
// form, or an error when the combination cannot run. Linkage is cleared for algorithms that
// do not use it and defaults to Average for agglomerative runs.
func (o Options) Canonical() (Options, error) {
	alg, err := ParseAlgorithm(string(o.Algorithm))
	if err != nil {
		return o, err
	}
	metric, err := distance.ParseMetric(string(o.Metric))
	if err != nil {
		return o, err
	}
	if o.K < 1 {
		return o, fmt.Errorf("%w: k=%d, must be at least 1", ErrInvalidClusterCount, o.K)
	}
	o.Algorithm, o.Metric = alg, metric

	if alg == KMeans && metric != distance.Euclidean {
		return o, fmt.Errorf("%w: kmeans needs centroids and cannot use %s", ErrUnsupportedMetric, metric)
	}
	if alg != Agglomerative {
		o.Linkage = ""
		return o, nil
	}
	l, err := ParseLinkage(string(o.Linkage))
	if err != nil {
		return o, err
	}
	if l == Ward && metric != distance.Euclidean {
		return o, fmt.Errorf("%w: ward linkage cannot use %s", ErrUnsupportedMetric, metric)
	}
	o.Linkage = l
	return o, nil
}

// Validate checks the option combination without looking at any data.
func (o Options) Validate() error {
	_, err := o.Canonical()
	return err
}

func (o Options) maxIterations() int {
	if o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return DefaultMaxIterations
}

// Result is the outcome of one clustering run. Labels[i] is the cluster of input i, in
// [0, K), numbered by first appearance.
type Result struct {
	Labels     []int
	K          int
	Converged  bool
	Iterations int
}

// Run clusters the points described by dist (and reps, for centroid methods) into exactly
// opts.K labels. Iterative methods that hit the iteration cap return their best assignment
// with Converged false.
func Run(opts Options, dist *distance.Matrix, reps []features.Representation) (Result, error) {
	opts, err := opts.Canonical()
	if err != nil {
		return Result{}, err
	}
	n := dist.Len()
	if opts.K > n {
		return Result{}, fmt.Errorf("%w: k=%d exceeds %d records", ErrInvalidClusterCount, opts.K, n)
	}

	var res Result
	switch opts.Algorithm {
	case KMeans:
		if len(reps) != n {
			return Result{}, fmt.Errorf("kmeans: %d representations for %d points", len(reps), n)
		}
		res, err = kmeans(reps, opts.K, opts.Seed, opts.maxIterations())
	case KMedoids:
		res = kmedoids(dist, opts.K, opts.maxIterations())
	case Agglomerative:
		res = agglomerative(dist, opts.K, opts.Linkage)
	default:
		return Result{}, fmt.Errorf("%w %q", ErrUnknownAlgorithm, opts.Algorithm)
	}
	if err != nil {
		return Result{}, err
	}

	res.Labels = Canonicalize(res.Labels)
	res.K = opts.K
	return res, nil
}

// Canonicalize renumbers labels so that clusters are numbered in order of first appearance.
func Canonicalize(labels []int) []int {
	remap := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := remap[l]
		if !ok {
			id = len(remap)
			remap[l] = id
		}
		out[i] = id
	}
	return out
}

// Assignment maps a record identity key to its cluster label.
type Assignment map[string]int

// Assign pairs identity keys with labels positionally.
func Assign(keys []string, labels []int) Assignment {
	a := make(Assignment, len(keys))
	for i, k := range keys {
		if i < len(labels) {
			a[k] = labels[i]
		}
	}
	return a
}
