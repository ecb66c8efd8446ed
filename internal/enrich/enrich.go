// Package enrich fills optional record fields from external services: landing page
// snippets and CrossRef DOIs and cited references.
package enrich

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/sciencesync/internal/article"
	"github.com/TobiSchelling/sciencesync/internal/logger"
	"github.com/TobiSchelling/sciencesync/internal/metrics"
	"github.com/TobiSchelling/sciencesync/internal/normalize"
)

// Options configures an Enricher. A nil Snippets or CrossRef disables that lookup.
type Options struct {
	Snippets    *SnippetFetcher
	CrossRef    *CrossRefClient
	Cache       Cache
	Concurrency int
}

// Enricher fills empty snippet, DOI and reference fields of records. Enrichment never
// overwrites a non-empty field and lookup failures leave the record unchanged.
type Enricher struct {
	opts Options
}

// New creates an Enricher.
func New(opts Options) *Enricher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Enricher{opts: opts}
}

// Report counts lookups that failed during one Enrich call. A lookup that finds nothing
// is not a failure.
type Report struct {
	SnippetFailures  int `json:"snippet_failures"`
	CrossRefFailures int `json:"crossref_failures"`
}

// Failures is the total number of failed lookups.
func (r Report) Failures() int { return r.SnippetFailures + r.CrossRefFailures }

type outcome struct {
	snippetFailed  bool
	crossrefFailed bool
}

// Enrich returns enriched copies of records in the same order, plus a report of the lookups
// that failed. Only context cancellation is returned as an error.
func (e *Enricher) Enrich(ctx context.Context, records []article.Record) ([]article.Record, Report, error) {
	log := logger.FromContext(ctx)
	out := make([]article.Record, len(records))
	outcomes := make([]outcome, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i], outcomes[i] = e.enrichOne(gctx, log, rec.Clone())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}

	var report Report
	for _, o := range outcomes {
		if o.snippetFailed {
			report.SnippetFailures++
		}
		if o.crossrefFailed {
			report.CrossRefFailures++
		}
	}
	if report.Failures() > 0 {
		log.Warn("enrichment lookups failed",
			zap.Int("snippet_failures", report.SnippetFailures),
			zap.Int("crossref_failures", report.CrossRefFailures))
	}
	return out, report, ctx.Err()
}

func (e *Enricher) enrichOne(ctx context.Context, log *zap.Logger, rec article.Record) (article.Record, outcome) {
	var o outcome
	if e.opts.Snippets != nil && rec.ReferenceSnippet == "" && rec.SourceLink != "" {
		snippet, err := e.snippet(ctx, rec.SourceLink)
		if err != nil {
			o.snippetFailed = true
			log.Debug("snippet fetch failed", zap.String("link", rec.SourceLink), zap.Error(err))
		}
		rec.ReferenceSnippet = snippet
	}

	if e.opts.CrossRef != nil && (rec.DOI == "" || len(rec.References) == 0) && rec.Title != "" {
		work, err := e.work(ctx, rec.Title)
		switch {
		case errors.Is(err, ErrNoMatch):
		case err != nil:
			o.crossrefFailed = true
			log.Debug("crossref lookup failed", zap.String("title", rec.Title), zap.Error(err))
		default:
			if rec.DOI == "" {
				rec.DOI = work.DOI
			}
			if len(rec.References) == 0 {
				rec.References = work.References
			}
		}
	}
	return rec, o
}

func (e *Enricher) snippet(ctx context.Context, link string) (string, error) {
	key := "snippet:" + link
	if val, ok := e.cached(ctx, key); ok {
		metrics.EnrichmentRequestsTotal.WithLabelValues("snippet", "cached").Inc()
		return val, nil
	}

	snippet, err := e.opts.Snippets.Fetch(ctx, link)
	switch {
	case err != nil:
		metrics.EnrichmentRequestsTotal.WithLabelValues("snippet", "error").Inc()
		return "", err
	case snippet == "":
		metrics.EnrichmentRequestsTotal.WithLabelValues("snippet", "miss").Inc()
		return "", nil
	}
	metrics.EnrichmentRequestsTotal.WithLabelValues("snippet", "hit").Inc()
	e.store(ctx, key, snippet)
	return snippet, nil
}

func (e *Enricher) work(ctx context.Context, title string) (Work, error) {
	key := "crossref:" + normalize.Key(title)
	if val, ok := e.cached(ctx, key); ok {
		var w Work
		if err := json.Unmarshal([]byte(val), &w); err == nil {
			metrics.EnrichmentRequestsTotal.WithLabelValues("crossref", "cached").Inc()
			return w, nil
		}
	}

	w, err := e.opts.CrossRef.Lookup(ctx, title)
	switch {
	case errors.Is(err, ErrNoMatch):
		metrics.EnrichmentRequestsTotal.WithLabelValues("crossref", "miss").Inc()
		return Work{}, err
	case err != nil:
		metrics.EnrichmentRequestsTotal.WithLabelValues("crossref", "error").Inc()
		return Work{}, err
	}
	metrics.EnrichmentRequestsTotal.WithLabelValues("crossref", "hit").Inc()
	if data, err := json.Marshal(w); err == nil {
		e.store(ctx, key, string(data))
	}
	return w, nil
}

func (e *Enricher) cached(ctx context.Context, key string) (string, bool) {
	if e.opts.Cache == nil {
		return "", false
	}
	val, ok, err := e.opts.Cache.Get(ctx, key)
	if err != nil {
		logger.FromContext(ctx).Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return val, ok
}

func (e *Enricher) store(ctx context.Context, key, value string) {
	if e.opts.Cache == nil {
		return
	}
	if err := e.opts.Cache.Set(ctx, key, value); err != nil {
		logger.FromContext(ctx).Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
