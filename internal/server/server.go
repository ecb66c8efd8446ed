// Package server serves stored articles and clustering runs over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TobiSchelling/sciencesync/internal/database"
	"github.com/TobiSchelling/sciencesync/internal/export"
	"github.com/TobiSchelling/sciencesync/internal/logger"
	"github.com/TobiSchelling/sciencesync/internal/metrics"
	"github.com/TobiSchelling/sciencesync/internal/pipeline"
)

const latestRun = "latest"

// Server is the HTTP server for the article store.
type Server struct {
	db     *database.DB
	logger *zap.Logger
	router chi.Router
}

// New creates a new Server.
func New(db *database.DB, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{db: db, logger: log, router: chi.NewRouter()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/articles", s.handleArticles)
		r.Get("/articles/{key}", s.handleArticle)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
		r.Get("/runs/{id}/groups", s.handleRunGroups)
		r.Get("/runs/{id}/export", s.handleRunExport)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	_, view, err := pipeline.LoadView(s.db, "")
	if errors.Is(err, database.ErrNotFound) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<!DOCTYPE html><html><body><h1>Citation digest</h1><p>No clustering runs yet.</p></body></html>")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, export.HTML, export.Document{View: view}); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.db.GetStats(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid offset")
		return
	}

	records, err := s.db.ListArticles()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	total := len(records)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"offset":   offset,
		"articles": records[offset:end],
	})
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	rec, err := s.db.GetArticle(chi.URLParam(r, "key"))
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "article not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid limit")
		return
	}
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	groups, err := s.db.RunGroups(run.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if groups == nil {
		groups = []database.RunGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "groups": groups})
}

func (s *Server) handleRunGroups(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	_, view, err := pipeline.LoadView(s.db, run.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     run.ID,
		"groups":     view.Groups(),
		"unassigned": view.Unassigned(),
	})
}

var contentTypes = map[export.Format]string{
	export.CSV:      "text/csv; charset=utf-8",
	export.Markdown: "text/markdown; charset=utf-8",
	export.HTML:     "text/html; charset=utf-8",
	export.PDF:      "application/pdf",
}

func (s *Server) handleRunExport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(export.CSV)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	_, view, err := pipeline.LoadView(s.db, run.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var buf bytes.Buffer
	doc := export.Document{Title: "Citation digest " + run.CreatedAt.Format("2006-01-02"), View: view}
	if err := export.Write(&buf, format, doc); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="sciencesync-%s%s"`, run.ID, format.Extension()))
	w.Write(buf.Bytes())
}

// lookupRun resolves the {id} parameter, writing the error response when it fails.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (database.Run, bool) {
	id := chi.URLParam(r, "id")
	var (
		run database.Run
		err error
	)
	if id == latestRun {
		run, err = s.db.LatestRun()
	} else {
		run, err = s.db.GetRun(id)
	}
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "run not found")
		return database.Run{}, false
	}
	if err != nil {
		s.internalError(w, r, err)
		return database.Run{}, false
	}
	return run, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					log.Error("panic recovered", zap.Any("panic", rvr), zap.Stack("stacktrace"))
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one log line per request and puts a request-scoped logger in the
// context.
func requestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := log.With(zap.String("request_id", requestID))
			ctx := logger.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
