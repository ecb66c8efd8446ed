package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/sciencesync/internal/aggregate"
	"github.com/TobiSchelling/sciencesync/internal/article"
	"github.com/TobiSchelling/sciencesync/internal/cluster"
	"github.com/TobiSchelling/sciencesync/internal/dedup"
	"github.com/TobiSchelling/sciencesync/internal/distance"
	"github.com/TobiSchelling/sciencesync/internal/enrich"
	"github.com/TobiSchelling/sciencesync/internal/extract"
	"github.com/TobiSchelling/sciencesync/internal/features"
	"github.com/TobiSchelling/sciencesync/internal/logger"
	"github.com/TobiSchelling/sciencesync/internal/metrics"
	"github.com/TobiSchelling/sciencesync/internal/normalize"
)

// Alert is one raw alert message.
type Alert = extract.Alert

// Enricher fills optional fields (snippets, DOIs, references) of canonical records and
// reports the lookups that failed.
type Enricher interface {
	Enrich(ctx context.Context, records []article.Record) ([]article.Record, enrich.Report, error)
}

// Options configures a processing run.
type Options struct {
	// Format is an alert format name or extract.AutoFormat.
	Format       string
	Clustering   cluster.Options
	LinkIdentity bool
	// Workers bounds concurrent extraction and distance rows; <= 0 means GOMAXPROCS.
	Workers  int
	Enricher Enricher
}

// Diagnostics aggregates recoverable problems and run facts.
type Diagnostics struct {
	AlertsProcessed  int `json:"alerts_processed"`
	EntriesExtracted int `json:"entries_extracted"`
	SkippedEntries   int `json:"skipped_entries"`
	UnparsableDates  int `json:"unparsable_dates"`
	DuplicatesMerged int `json:"duplicates_merged"`
	// EnrichmentFailures counts snippet and CrossRef lookups that failed.
	EnrichmentFailures int `json:"enrichment_failures"`

	Converged        bool    `json:"converged"`
	Iterations       int     `json:"iterations"`
	Silhouette       float64 `json:"silhouette"`
	DaviesBouldin    float64 `json:"davies_bouldin"`
	CalinskiHarabasz float64 `json:"calinski_harabasz"`
	// Alerts holds per-alert extraction counts in input order.
	Alerts []AlertStats `json:"alerts,omitempty"`
}

// AlertStats is the extraction outcome of one alert.
type AlertStats struct {
	ID      string `json:"id"`
	Entries int    `json:"entries"`
	Skipped int    `json:"skipped"`
}

// Output is the result of a full run: canonical records, their assignment and the grouped
// view.
type Output struct {
	Records     []article.Record
	Assignment  cluster.Assignment
	Clustering  cluster.Result
	View        *aggregate.View
	Diagnostics Diagnostics
}

// Process runs extraction, normalization, deduplication, optional enrichment, feature
// building, distance computation, clustering and aggregation. The configuration is
// validated before any alert is touched.
func Process(ctx context.Context, alerts []Alert, opts Options) (*Output, error) {
	if err := opts.Clustering.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clustering configuration: %w", err)
	}
	if err := ValidateFormat(opts.Format); err != nil {
		return nil, err
	}

	records, diag, err := Ingest(ctx, alerts, opts)
	if err != nil {
		return nil, err
	}

	if opts.Enricher != nil {
		var report enrich.Report
		records, report, err = opts.Enricher.Enrich(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("enriching records: %w", err)
		}
		diag.EnrichmentFailures = report.Failures()
	}

	out, err := Cluster(ctx, records, opts.Clustering, opts.Workers)
	if err != nil {
		return nil, err
	}
	out.Diagnostics.AlertsProcessed = diag.AlertsProcessed
	out.Diagnostics.EntriesExtracted = diag.EntriesExtracted
	out.Diagnostics.SkippedEntries = diag.SkippedEntries
	out.Diagnostics.UnparsableDates = diag.UnparsableDates
	out.Diagnostics.DuplicatesMerged = diag.DuplicatesMerged
	out.Diagnostics.EnrichmentFailures = diag.EnrichmentFailures
	out.Diagnostics.Alerts = diag.Alerts
	return out, nil
}

// ValidateFormat checks an alert format name.
func ValidateFormat(name string) error {
	if name == "" || name == extract.AutoFormat {
		return nil
	}
	if _, err := extract.Lookup(name); err != nil {
		return fmt.Errorf("invalid alert format: %w", err)
	}
	return nil
}

// Ingest extracts records from alerts concurrently, normalizes them and removes duplicates.
// Record order follows alert order, then entry order within an alert.
func Ingest(ctx context.Context, alerts []Alert, opts Options) ([]article.Record, Diagnostics, error) {
	log := logger.FromContext(ctx)
	var diag Diagnostics

	if err := ValidateFormat(opts.Format); err != nil {
		return nil, diag, err
	}

	results := make([]extract.Result, len(alerts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Workers))
	for i, alert := range alerts {
		i, alert := i, alert
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			format := formatFor(opts.Format, alert.Body)
			results[i] = extract.Extract(format, alert)
			metrics.AlertsProcessedTotal.WithLabelValues(format.Name).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, diag, fmt.Errorf("extracting alerts: %w", err)
	}

	var candidates []article.Record
	for i, res := range results {
		diag.AlertsProcessed++
		diag.EntriesExtracted += len(res.Records)
		diag.SkippedEntries += res.Skipped
		diag.Alerts = append(diag.Alerts, AlertStats{ID: alerts[i].ID, Entries: len(res.Records), Skipped: res.Skipped})
		if res.Skipped > 0 {
			log.Debug("entries skipped", zap.String("alert", alerts[i].ID), zap.Int("skipped", res.Skipped))
		}
		for _, rec := range res.Records {
			norm, badDate := normalize.Normalize(rec)
			if badDate {
				diag.UnparsableDates++
				log.Debug("unparsable publication date",
					zap.String("title", norm.Title), zap.String("raw_date", rec.RawDate))
			}
			candidates = append(candidates, norm)
		}
	}

	var dopts dedup.Options
	if opts.LinkIdentity {
		dopts.SecondaryKey = dedup.LinkIdentity
	}
	deduped := dedup.Dedupe(candidates, dopts)
	diag.DuplicatesMerged = deduped.Merged

	metrics.EntriesExtractedTotal.Add(float64(diag.EntriesExtracted))
	metrics.EntriesSkippedTotal.Add(float64(diag.SkippedEntries))
	metrics.UnparsableDatesTotal.Add(float64(diag.UnparsableDates))
	metrics.DuplicatesMergedTotal.Add(float64(diag.DuplicatesMerged))

	log.Info("alerts ingested",
		zap.Int("alerts", diag.AlertsProcessed),
		zap.Int("entries", diag.EntriesExtracted),
		zap.Int("skipped", diag.SkippedEntries),
		zap.Int("unparsable_dates", diag.UnparsableDates),
		zap.Int("records", len(deduped.Records)),
		zap.Int("duplicates", diag.DuplicatesMerged),
	)
	return deduped.Records, diag, nil
}

func formatFor(name, body string) extract.Format {
	if name == "" || name == extract.AutoFormat {
		return extract.Detect(body)
	}
	f, err := extract.Lookup(name)
	if err != nil {
		return extract.Detect(body)
	}
	return f
}

// Cluster builds features for records, computes their distances and clusters them. Records
// are only read; labels come back in the assignment and the grouped view.
func Cluster(ctx context.Context, records []article.Record, opts cluster.Options, nWorkers int) (*Output, error) {
	log := logger.FromContext(ctx)
	opts, err := opts.Canonical()
	if err != nil {
		return nil, fmt.Errorf("invalid clustering configuration: %w", err)
	}
	if opts.K > len(records) {
		return nil, fmt.Errorf("%w: k=%d exceeds %d records", cluster.ErrInvalidClusterCount, opts.K, len(records))
	}

	start := time.Now()
	dist, reps, err := Distances(ctx, records, opts.Metric, nWorkers)
	if err != nil {
		return nil, err
	}

	res, err := cluster.Run(opts, dist, reps)
	if err != nil {
		return nil, fmt.Errorf("clustering: %w", err)
	}
	metrics.ClusteringDuration.WithLabelValues(string(opts.Algorithm), string(opts.Metric)).
		Observe(time.Since(start).Seconds())
	if !res.Converged {
		metrics.ClusteringNotConvergedTotal.WithLabelValues(string(opts.Algorithm)).Inc()
		log.Warn("clustering stopped at iteration cap",
			zap.String("algorithm", string(opts.Algorithm)), zap.Int("iterations", res.Iterations))
	}

	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.IdentityKey
	}
	assignment := cluster.Assign(keys, res.Labels)

	scores := cluster.Evaluate(dist, reps, res.Labels)
	out := &Output{
		Records:    records,
		Assignment: assignment,
		Clustering: res,
		View:       aggregate.Build(records, assignment),
		Diagnostics: Diagnostics{
			Converged:        res.Converged,
			Iterations:       res.Iterations,
			Silhouette:       scores.Silhouette,
			DaviesBouldin:    scores.DaviesBouldin,
			CalinskiHarabasz: scores.CalinskiHarabasz,
		},
	}

	log.Info("records clustered",
		zap.String("algorithm", string(opts.Algorithm)),
		zap.String("metric", string(opts.Metric)),
		zap.Int("k", opts.K),
		zap.Int("records", len(records)),
		zap.Bool("converged", res.Converged),
		zap.Float64("silhouette", out.Diagnostics.Silhouette),
		zap.Float64("davies_bouldin", out.Diagnostics.DaviesBouldin),
		zap.Float64("calinski_harabasz", out.Diagnostics.CalinskiHarabasz),
	)
	return out, nil
}

// Distances vectorizes records in the metric's family and computes the distance matrix.
func Distances(ctx context.Context, records []article.Record, metric distance.Metric, nWorkers int) (*distance.Matrix, []features.Representation, error) {
	v, err := features.NewVectorizer(metric.Family(), records)
	if err != nil {
		return nil, nil, err
	}
	reps := v.RepresentAll(records)
	dist, err := distance.Compute(ctx, metric, reps, workers(nWorkers))
	if err != nil {
		return nil, nil, err
	}
	return dist, reps, nil
}

// SuggestK scans cluster counts for records and returns the silhouette of each.
func SuggestK(ctx context.Context, records []article.Record, opts cluster.Options, minK, maxK, nWorkers int) ([]cluster.KScore, int, error) {
	opts.K = 1
	opts, err := opts.Canonical()
	if err != nil {
		return nil, 0, fmt.Errorf("invalid clustering configuration: %w", err)
	}
	dist, reps, err := Distances(ctx, records, opts.Metric, nWorkers)
	if err != nil {
		return nil, 0, err
	}
	return cluster.SuggestK(opts, dist, reps, minK, maxK)
}

func workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}
