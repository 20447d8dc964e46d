// Package server exposes a read-only status HTTP API over the job store.
// It is optional: the scheduler runs it only when a listen address is
// configured. Nothing here mutates jobs.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/jobq/internal/store"
	"github.com/me/jobq/pkg/model"
)

// Server is the read-only jobq status API.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	store     store.Store
	startTime time.Time
}

// New creates a Server with all routes registered.
func New(st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		store:     st,
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleListJobs renders the structured full dump: a mapping keyed by the
// fixed-width hex job identifier. An empty store yields an empty mapping,
// not null.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context())
	if err != nil {
		s.logger.Error("list jobs", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "list jobs"})
		return
	}

	dump := make(map[string]*model.Job, len(jobs))
	for _, job := range jobs {
		dump[job.HexID()] = job
	}
	respondJSON(w, http.StatusOK, dump)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.logger.Error("get job", "id", id, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "get job"})
		return
	}
	if job == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
