package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/sciencesync/internal/config"
	"github.com/TobiSchelling/sciencesync/internal/database"
	"github.com/TobiSchelling/sciencesync/internal/enrich"
)

func testRunner(t *testing.T, enricher Enricher) (*Runner, *database.DB, string) {
	t.Helper()
	dir := t.TempDir()
	alertDir := filepath.Join(dir, "alerts")
	if err := os.MkdirAll(alertDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Output.DataDir = dir
	cfg.Sources.AlertDir = alertDir
	cfg.Clustering.NClusters = 2

	db, err := database.Open(cfg.DBPath())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRunner(cfg, db, enricher), db, alertDir
}

func writeAlert(t *testing.T, dir, name string, entries ...string) {
	t.Helper()
	body := strings.Join(entries, "\n\n")
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunnerRun(t *testing.T) {
	r, db, alertDir := testRunner(t, nil)
	writeAlert(t, alertDir, "a1.txt",
		entry("Protein folding structure prediction", "J Smith", "2021"),
		entry("Graph neural networks for molecules", "K Lee", "2020"),
	)
	writeAlert(t, alertDir, "a2.txt",
		entry("Protein Folding Structure Prediction", "J Smith", "2021"),
		entry("Neural networks on graph data", "M Park", "2020"),
		entry("Folding of protein structure", "L Chen", "2019"),
	)

	res := r.Run(context.Background())
	if res.Failed() {
		t.Fatalf("pipeline failed: %+v", res.Steps)
	}
	if len(res.Steps) != 2 || res.RunID == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Articles != 4 || stats.IngestedAlerts != 2 || stats.Runs != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	run, view, err := LoadView(db, "")
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != res.RunID || view.Len() != 2 {
		t.Errorf("unexpected run %+v with %d groups", run, view.Len())
	}
	total := 0
	for _, g := range view.Groups() {
		total += g.Size
	}
	if total != 4 {
		t.Errorf("expected 4 grouped records, got %d", total)
	}
}

func TestRunnerSkipsIngestedAlerts(t *testing.T) {
	r, db, alertDir := testRunner(t, nil)
	writeAlert(t, alertDir, "a1.txt", entry("Protein folding", "J Smith", "2021"))

	if step := r.Ingest(context.Background()); step.Err != nil {
		t.Fatal(step.Err)
	}
	step := r.Ingest(context.Background())
	if step.Err != nil {
		t.Fatal(step.Err)
	}
	if !strings.HasPrefix(step.Summary, "No new alerts") {
		t.Errorf("expected nothing to ingest, got %q", step.Summary)
	}
	if ok, _ := db.IsAlertIngested("a1.txt"); !ok {
		t.Error("expected a1.txt to be recorded")
	}
}

func TestRunnerEnrich(t *testing.T) {
	enricher := &stubEnricher{}
	r, db, alertDir := testRunner(t, enricher)
	writeAlert(t, alertDir, "a1.txt", entry("Protein folding", "J Smith", "2021"))

	r.Ingest(context.Background())
	step := r.Enrich(context.Background())
	if step.Err != nil {
		t.Fatal(step.Err)
	}
	if step.Summary != "1 articles checked, 1 gained fields" {
		t.Errorf("unexpected summary %q", step.Summary)
	}
	if again := r.Enrich(context.Background()); again.Summary != "No articles need enrichment" {
		t.Errorf("expected nothing left, got %q", again.Summary)
	}

	records, _ := db.ListArticles()
	if len(records) != 1 || len(records[0].References) != 1 {
		t.Errorf("enrichment not stored: %+v", records)
	}
}

func TestRunnerEnrichReportsFailures(t *testing.T) {
	enricher := &stubEnricher{report: enrich.Report{SnippetFailures: 1, CrossRefFailures: 2}}
	r, _, alertDir := testRunner(t, enricher)
	writeAlert(t, alertDir, "a1.txt", entry("Protein folding", "J Smith", "2021"))

	r.Ingest(context.Background())
	step := r.Enrich(context.Background())
	if step.Err != nil {
		t.Fatal(step.Err)
	}
	want := "1 articles checked, 1 gained fields, 3 lookups failed (1 snippet, 2 CrossRef)"
	if step.Summary != want {
		t.Errorf("got %q, want %q", step.Summary, want)
	}
}

func TestRunnerClusterWindow(t *testing.T) {
	r, db, alertDir := testRunner(t, nil)
	writeAlert(t, alertDir, "old.txt",
		entry("Graph neural networks for molecules", "K Lee", "2020"),
		entry("Neural networks on graph data", "M Park", "2020"),
	)
	writeAlert(t, alertDir, "new.txt",
		entry("Protein folding structure prediction", "J Smith", "2021"),
		entry("Folding of protein structure", "L Chen", "2019"),
		entry("Graph neural networks for proteins", "A Diaz", "2022"),
	)
	march := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	may := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(alertDir, "old.txt"), march, march); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(filepath.Join(alertDir, "new.txt"), may, may); err != nil {
		t.Fatal(err)
	}
	if step := r.Ingest(context.Background()); step.Err != nil {
		t.Fatal(step.Err)
	}

	w, err := ParseWindow("2024-05-01", "", 0, may)
	if err != nil {
		t.Fatal(err)
	}
	r.SetWindow(w)
	step, run := r.Cluster(context.Background())
	if step.Err != nil {
		t.Fatal(step.Err)
	}
	if run.RecordCount != 3 {
		t.Errorf("expected the 3 May articles, got %d", run.RecordCount)
	}
	if !strings.HasSuffix(step.Summary, "received since 2024-05-01") {
		t.Errorf("window missing from summary %q", step.Summary)
	}

	stored, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ReceivedSince == nil || !stored.ReceivedSince.Equal(w.Since) || stored.ReceivedUntil != nil {
		t.Errorf("window not stored: %+v", stored)
	}
	if stored.CalinskiHarabasz <= 0 {
		t.Errorf("expected a Calinski-Harabasz score, got %v", stored.CalinskiHarabasz)
	}

	r.SetWindow(Window{Until: march})
	if step, run := r.Cluster(context.Background()); run.ID != "" || step.Summary != "No articles to cluster received before 2024-03-10 08:00" {
		t.Errorf("expected an empty window, got %+v", step)
	}
}

func TestRunnerClusterEmptyStore(t *testing.T) {
	r, _, _ := testRunner(t, nil)
	step, run := r.Cluster(context.Background())
	if step.Err != nil || run.ID != "" {
		t.Errorf("expected no run for empty store, got %+v %+v", step, run)
	}
}

func TestRunnerMissingAlertDir(t *testing.T) {
	r, _, alertDir := testRunner(t, nil)
	os.RemoveAll(alertDir)

	res := r.Run(context.Background())
	if !res.Failed() || len(res.Steps) != 1 {
		t.Errorf("expected ingest failure to stop the run, got %+v", res.Steps)
	}
}

func TestLoadViewUnknownRun(t *testing.T) {
	_, db, _ := testRunner(t, nil)
	if _, _, err := LoadView(db, "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}
