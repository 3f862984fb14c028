package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/domainguard/internal/httpapi/middleware"
	"github.com/hamed0406/domainguard/internal/metrics"
	"github.com/hamed0406/domainguard/internal/scheduler"
)

// Manual sweep runs are throttled per caller.
const (
	DefaultRunPerMinute = 6
	DefaultRunBurst     = 2
)

// JobController is satisfied by *scheduler.Scheduler.
type JobController interface {
	States() []scheduler.JobStatus
	RunNow(ctx context.Context, job scheduler.Job) (scheduler.Summary, error)
}

type Server struct {
	Logger *zap.Logger
	Jobs   JobController
}

func NewServer(l *zap.Logger, jobs JobController) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Jobs: jobs}
}

func (s *Server) Router(auth apimw.Auth, runPerMin, runBurst int) http.Handler {
	if auth.Logger == nil {
		auth.Logger = s.Logger
	}
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(auth.Require(apimw.RoleViewer)).Get("/jobs", s.handleListJobs)
		r.With(auth.Require(apimw.RoleOperator), apimw.RateLimit(runPerMin, runBurst)).
			Post("/jobs/{job}/run", s.handleRunJob)
	})
	return r
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Jobs.States())
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	job, err := scheduler.ParseJob(chi.URLParam(r, "job"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	sum, err := s.Jobs.RunNow(r.Context(), job)
	switch {
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		// Per-target failures are reported inside the summary.
		s.Logger.Warn("manual_sweep_failed", zap.String("job", string(job)), zap.Error(err))
	}

	s.Logger.Info("manual_sweep",
		zap.String("job", string(job)),
		zap.Int("targets", sum.Targets),
		zap.Int("failed", sum.Failed),
	)
	writeJSON(w, http.StatusOK, sum)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
