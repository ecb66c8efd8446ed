package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/sciencesync/internal/aggregate"
	"github.com/TobiSchelling/sciencesync/internal/article"
	"github.com/TobiSchelling/sciencesync/internal/cluster"
	"github.com/TobiSchelling/sciencesync/internal/config"
	"github.com/TobiSchelling/sciencesync/internal/database"
	"github.com/TobiSchelling/sciencesync/internal/logger"
	"github.com/TobiSchelling/sciencesync/internal/source"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID string
	Steps []StepResult
}

// Failed reports whether any step failed.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Runner executes the stored pipeline: load alerts, ingest, enrich, cluster and save the run.
type Runner struct {
	cfg      *config.Config
	db       *database.DB
	enricher Enricher
	window   Window
}

// NewRunner creates a runner. enricher may be nil. Clustering covers the configured
// days_ago window until SetWindow replaces it.
func NewRunner(cfg *config.Config, db *database.DB, enricher Enricher) *Runner {
	return &Runner{
		cfg:      cfg,
		db:       db,
		enricher: enricher,
		window:   LastDays(cfg.Clustering.DaysAgo, time.Now()),
	}
}

// SetWindow limits clustering to articles received within w.
func (r *Runner) SetWindow(w Window) {
	r.window = w
}

func (r *Runner) options() Options {
	return Options{
		Format:       r.cfg.Sources.Format,
		Clustering:   r.cfg.Clustering.Options(),
		LinkIdentity: r.cfg.Dedup.LinkIdentity,
		Workers:      r.cfg.Sources.Workers,
	}
}

// Run executes ingest, enrich and cluster. Clustering is skipped when ingestion fails.
func (r *Runner) Run(ctx context.Context) *Result {
	res := &Result{}

	step := r.Ingest(ctx)
	res.Steps = append(res.Steps, step)
	if step.Err != nil {
		return res
	}

	if r.enricher != nil {
		res.Steps = append(res.Steps, r.Enrich(ctx))
	}

	step, run := r.Cluster(ctx)
	res.Steps = append(res.Steps, step)
	res.RunID = run.ID
	return res
}

// Ingest loads new alerts from the alert directory, extracts and deduplicates their
// records and merges them into the store.
func (r *Runner) Ingest(ctx context.Context) StepResult {
	log := logger.FromContext(ctx)
	step := StepResult{Name: "Ingest"}

	loaded, err := source.NewLoader(r.cfg.GetAlertDir(), r.cfg.Sources.SubjectFilter).Load(ctx)
	if err != nil {
		step.Err = err
		return step
	}

	var fresh []Alert
	for _, a := range loaded.Alerts {
		done, err := r.db.IsAlertIngested(a.ID)
		if err != nil {
			step.Err = fmt.Errorf("checking alert %s: %w", a.ID, err)
			return step
		}
		if !done {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		step.Summary = fmt.Sprintf("No new alerts (%d files, %d already ingested)", loaded.Files, len(loaded.Alerts))
		return step
	}

	records, diag, err := Ingest(ctx, fresh, r.options())
	if err != nil {
		step.Err = err
		return step
	}

	inserted, err := r.db.UpsertArticles(records)
	if err != nil {
		step.Err = err
		return step
	}

	for i, a := range fresh {
		stats := diag.Alerts[i]
		if err := r.db.MarkAlertIngested(database.IngestedAlert{
			AlertID:    a.ID,
			Subject:    a.Subject,
			ReceivedAt: a.ReceivedAt,
			Entries:    stats.Entries,
			Skipped:    stats.Skipped,
		}); err != nil {
			log.Warn("failed to mark alert ingested", zap.String("alert", a.ID), zap.Error(err))
		}
	}

	step.Summary = fmt.Sprintf("%d alerts, %d entries (%d skipped), %d new articles, %d merged into stored ones",
		diag.AlertsProcessed, diag.EntriesExtracted, diag.SkippedEntries, inserted, len(records)-inserted)
	return step
}

// Enrich runs the enricher over stored articles that have not been enriched yet.
func (r *Runner) Enrich(ctx context.Context) StepResult {
	step := StepResult{Name: "Enrich"}
	if r.enricher == nil {
		step.Summary = "Enrichment disabled"
		return step
	}

	pending, err := r.db.GetArticlesNeedingEnrichment()
	if err != nil {
		step.Err = err
		return step
	}
	if len(pending) == 0 {
		step.Summary = "No articles need enrichment"
		return step
	}

	enriched, report, err := r.enricher.Enrich(ctx, pending)
	if err != nil {
		step.Err = err
		return step
	}
	changed := 0
	for i, rec := range enriched {
		if enrichedFields(pending[i]) != enrichedFields(rec) {
			changed++
		}
		if err := r.db.MarkEnriched(rec); err != nil {
			step.Err = err
			return step
		}
	}
	step.Summary = fmt.Sprintf("%d articles checked, %d gained fields", len(enriched), changed)
	if n := report.Failures(); n > 0 {
		step.Summary += fmt.Sprintf(", %d lookups failed (%d snippet, %d CrossRef)",
			n, report.SnippetFailures, report.CrossRefFailures)
	}
	return step
}

func enrichedFields(r article.Record) string {
	return fmt.Sprintf("%s|%s|%d", r.ReferenceSnippet, r.DOI, len(r.References))
}

// Cluster clusters the stored articles received within the runner's window with the
// configured options and saves the run.
func (r *Runner) Cluster(ctx context.Context) (StepResult, database.Run) {
	step := StepResult{Name: "Cluster"}

	records, err := r.db.ListArticlesReceivedBetween(r.window.Since, r.window.Until)
	if err != nil {
		step.Err = err
		return step, database.Run{}
	}
	if len(records) == 0 {
		step.Summary = "No articles to cluster"
		if !r.window.IsZero() {
			step.Summary += " received " + r.window.String()
		}
		return step, database.Run{}
	}

	opts := r.options()
	out, err := Cluster(ctx, records, opts.Clustering, opts.Workers)
	if err != nil {
		step.Err = err
		return step, database.Run{}
	}

	run, err := r.SaveRun(out)
	if err != nil {
		step.Err = err
		return step, database.Run{}
	}

	step.Summary = fmt.Sprintf("%d articles in %d groups (%s/%s, silhouette %.3f, Davies-Bouldin %.3f, converged %v)",
		len(records), out.View.Len(), run.Algorithm, run.Metric, run.Silhouette, run.DaviesBouldin, run.Converged)
	if !r.window.IsZero() {
		step.Summary += ", received " + r.window.String()
	}
	return step, run
}

// SaveRun stores a clustering output as a run, recording the runner's window.
func (r *Runner) SaveRun(out *Output) (database.Run, error) {
	opts := r.cfg.Clustering.Options()
	run := database.Run{
		Algorithm:        string(opts.Algorithm),
		Metric:           string(opts.Metric),
		K:                out.Clustering.K,
		Seed:             opts.Seed,
		Converged:        out.Clustering.Converged,
		Iterations:       out.Clustering.Iterations,
		Silhouette:       out.Diagnostics.Silhouette,
		DaviesBouldin:    out.Diagnostics.DaviesBouldin,
		CalinskiHarabasz: out.Diagnostics.CalinskiHarabasz,
		ReceivedSince:    boundPtr(r.window.Since),
		ReceivedUntil:    boundPtr(r.window.Until),
	}
	if opts.Algorithm == cluster.Agglomerative {
		run.Linkage = string(opts.Linkage)
	}

	var groups []database.RunGroup
	for _, g := range out.View.Groups() {
		groups = append(groups, database.RunGroup{Label: g.Label, Name: g.Name, Size: g.Size})
	}
	keys := make([]string, len(out.Records))
	for i, rec := range out.Records {
		keys[i] = rec.IdentityKey
	}
	return r.db.SaveRun(run, groups, keys, out.Clustering.Labels)
}

// DryRun reports what Run would do without changing the store.
func (r *Runner) DryRun(ctx context.Context) *Result {
	res := &Result{}

	loaded, err := source.NewLoader(r.cfg.GetAlertDir(), r.cfg.Sources.SubjectFilter).Load(ctx)
	if err != nil {
		res.Steps = append(res.Steps, StepResult{Name: "Ingest", Err: err})
		return res
	}
	fresh := 0
	for _, a := range loaded.Alerts {
		if done, _ := r.db.IsAlertIngested(a.ID); !done {
			fresh++
		}
	}
	res.Steps = append(res.Steps, StepResult{
		Name:    "Ingest",
		Summary: fmt.Sprintf("[dry-run] %d new alerts of %d loaded", fresh, len(loaded.Alerts)),
	})

	if r.enricher != nil {
		pending, _ := r.db.GetArticlesNeedingEnrichment()
		res.Steps = append(res.Steps, StepResult{
			Name:    "Enrich",
			Summary: fmt.Sprintf("[dry-run] %d articles need enrichment", len(pending)),
		})
	}

	inWindow, _ := r.db.ListArticlesReceivedBetween(r.window.Since, r.window.Until)
	opts := r.cfg.Clustering.Options()
	res.Steps = append(res.Steps, StepResult{
		Name: "Cluster",
		Summary: fmt.Sprintf("[dry-run] %d stored articles received %s into k=%d with %s/%s",
			len(inWindow), r.window, opts.K, opts.Algorithm, opts.Metric),
	})
	return res
}

// LoadView rebuilds the grouped view of a stored run. An empty runID loads the latest run.
func LoadView(db *database.DB, runID string) (database.Run, *aggregate.View, error) {
	var (
		run database.Run
		err error
	)
	if runID == "" {
		run, err = db.LatestRun()
	} else {
		run, err = db.GetRun(runID)
	}
	if err != nil {
		return database.Run{}, nil, err
	}

	assignment, keys, err := db.RunAssignment(run.ID)
	if err != nil {
		return database.Run{}, nil, err
	}

	records := make([]article.Record, 0, len(keys))
	for _, key := range keys {
		rec, err := db.GetArticle(key)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return database.Run{}, nil, err
		}
		records = append(records, rec)
	}
	return run, aggregate.Build(records, assignment), nil
}
