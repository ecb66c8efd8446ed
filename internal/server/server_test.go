package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/sciencesync/internal/article"
	"github.com/TobiSchelling/sciencesync/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *database.DB) database.Run {
	t.Helper()
	_, err := db.UpsertArticles([]article.Record{
		{IdentityKey: "k1", Title: "Protein folding benchmarks", Authors: []string{"J Smith"}},
		{IdentityKey: "k2", Title: "Graph networks", Authors: []string{"K Lee"}},
		{IdentityKey: "k3", Title: "Protein folding at scale", Authors: []string{"L Chen"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	run, err := db.SaveRun(database.Run{Algorithm: "kmedoids", Metric: "jaccard", K: 2, Converged: true},
		[]database.RunGroup{{Label: 0, Name: "Folding Protein Benchmarks", Size: 2}, {Label: 1, Name: "Graph Networks", Size: 1}},
		[]string{"k1", "k2", "k3"}, []int{0, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	return run
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	srv := New(openTestDB(t), nil)
	rec := get(t, srv, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestIndexWithoutRuns(t *testing.T) {
	srv := New(openTestDB(t), nil)
	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "No clustering runs yet") {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestIndexRendersLatestRun(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	rec := get(t, New(db, nil), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Folding Protein Benchmarks (2)") {
		t.Errorf("expected group heading in page:\n%s", rec.Body.String())
	}
}

func TestArticlesRoute(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := New(db, nil)

	rec := get(t, srv, "/api/articles?limit=2&offset=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Total    int              `json:"total"`
		Articles []article.Record `json:"articles"`
	}
	decode(t, rec, &body)
	if body.Total != 3 || len(body.Articles) != 2 || body.Articles[0].IdentityKey != "k2" {
		t.Errorf("unexpected page %+v", body)
	}

	if rec := get(t, srv, "/api/articles?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
	if rec := get(t, srv, "/api/articles/k3"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for known article, got %d", rec.Code)
	}
	if rec := get(t, srv, "/api/articles/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown article, got %d", rec.Code)
	}
}

func TestLatestRunRoutes(t *testing.T) {
	db := openTestDB(t)
	run := seed(t, db)
	srv := New(db, nil)

	rec := get(t, srv, "/api/runs/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var latest struct {
		Run    database.Run        `json:"run"`
		Groups []database.RunGroup `json:"groups"`
	}
	decode(t, rec, &latest)
	if latest.Run.ID != run.ID || len(latest.Groups) != 2 {
		t.Errorf("unexpected latest run %+v", latest)
	}

	rec = get(t, srv, "/api/runs/latest/groups")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var groups struct {
		Groups []struct {
			Label   int              `json:"label"`
			Records []article.Record `json:"records"`
		} `json:"groups"`
	}
	decode(t, rec, &groups)
	if len(groups.Groups) != 2 || len(groups.Groups[0].Records) != 2 {
		t.Errorf("unexpected groups %+v", groups)
	}
}

func TestRunNotFound(t *testing.T) {
	srv := New(openTestDB(t), nil)
	for _, path := range []string{"/api/runs/latest", "/api/runs/unknown/groups"} {
		if rec := get(t, srv, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestRunsList(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	rec := get(t, New(db, nil), "/api/runs")
	var body struct {
		Runs []database.Run `json:"runs"`
	}
	decode(t, rec, &body)
	if len(body.Runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(body.Runs))
	}
}

func TestRunExport(t *testing.T) {
	db := openTestDB(t)
	run := seed(t, db)
	srv := New(db, nil)

	rec := get(t, srv, "/api/runs/"+run.ID+"/export?format=csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), run.ID+".csv") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if lines := strings.Count(rec.Body.String(), "\n"); lines != 4 {
		t.Errorf("expected header + 3 rows, got %d lines", lines)
	}

	if rec := get(t, srv, "/api/runs/latest/export?format=docx"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := New(db, nil)

	rec := get(t, srv, "/api/stats")
	var stats database.Stats
	decode(t, rec, &stats)
	if stats.Articles != 3 || stats.Runs != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	rec = get(t, srv, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sciencesync_http_requests_total") {
		t.Errorf("expected request metrics, got %d", rec.Code)
	}
}
