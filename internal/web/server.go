// Package web provides a read-only web view of anvil run history.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"

	"github.com/metalagman/anvil/internal/db"
	"github.com/metalagman/anvil/internal/logging"
)

// RunStore is the part of the run history the web view reads.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]db.RunSummary, error)
	GetRunStatus(ctx context.Context, runID string) (string, error)
	Probes(ctx context.Context, runID string) ([]db.ProbeRecord, error)
}

// Server provides the web UI handlers.
type Server struct {
	store RunStore
	tmpl  *template.Template
}

//go:embed templates/*.html
var templatesFS embed.FS

// NewServer creates a web server over store.
func NewServer(store RunStore) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{store: store, tmpl: tmpl}, nil
}

// Routes returns the router for the web UI.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	mux.HandleFunc("GET /api/runs/{id}/probes", s.handleAPIProbes)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), 100)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.render(w, "index.html", runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, probes, ok := s.lookup(w, r, id)
	if !ok {
		return
	}
	s.render(w, "run.html", struct {
		ID     string
		Status string
		Probes []db.ProbeRecord
	}{id, status, probes})
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if runs == nil {
		runs = []db.RunSummary{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleAPIProbes(w http.ResponseWriter, r *http.Request) {
	_, probes, ok := s.lookup(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if probes == nil {
		probes = []db.ProbeRecord{}
	}
	writeJSON(w, probes)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, id string) (string, []db.ProbeRecord, bool) {
	status, err := s.store.GetRunStatus(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return "", nil, false
	}
	if status == "" {
		http.NotFound(w, r)
		return "", nil, false
	}
	probes, err := s.store.Probes(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return "", nil, false
	}
	return status, probes, true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.fail(w, err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	logger := logging.Component("web")
	logger.Error().Err(err).Msg("request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
