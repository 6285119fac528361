package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/config"
	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/metrics"
	"github.com/JakeFAU/job-crawler/internal/scheduler"
	"github.com/JakeFAU/job-crawler/internal/store"
)

const readyTimeout = 2 * time.Second

// Crawler runs one crawl; *crawler.Orchestrator satisfies it.
type Crawler interface {
	Run(ctx context.Context) (crawler.Report, error)
}

// Scheduler performs the interval-gated crawl; *scheduler.Gate satisfies it.
type Scheduler interface {
	Check(ctx context.Context) scheduler.Response
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server.
type Options struct {
	Auth           config.AuthConfig
	RequestTimeout time.Duration
	CrawlTimeout   time.Duration
}

// Server wires HTTP handlers to the orchestrator, scheduler and run history.
type Server struct {
	router    chi.Router
	crawl     Crawler
	scheduler Scheduler
	ready     Pinger
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs and ready may be nil.
func NewServer(
	crawl Crawler,
	sched Scheduler,
	runs store.RunRepository,
	ready Pinger,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		crawl:     crawl,
		scheduler: sched,
		ready:     ready,
		logger:    logger,
	}
	runHandler := NewRunHandler(runs, logger.Named("runs"))

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.Auth.Enabled {
			r.Use(apiKeyMiddleware(opts.Auth.APIKey))
		}
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.CrawlTimeout))
			r.Post("/crawl", s.runCrawl)
			r.Post("/schedule", s.runSchedule)
		})
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.RequestTimeout))
			r.Get("/runs", runHandler.ListRuns)
			r.Route("/runs/{run_id}", func(r chi.Router) {
				r.Get("/", runHandler.GetRun)
				r.Get("/sources", runHandler.ListRunSources)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// runCrawl returns the full report, 409 while another run holds the lock and 500
// when the run could not start.
func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request) {
	report, err := s.crawl.Run(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, crawler.ErrRunInProgress) {
			status = http.StatusConflict
		}
		s.logger.Error("crawl request failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeFailure(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) runSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeFailure(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	resp := s.scheduler.Check(r.Context())
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure matches the {success:false,error} shape of crawl and schedule responses.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
