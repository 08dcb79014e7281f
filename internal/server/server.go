// Package server exposes a read-only HTTP inspector over a running
// scheduler. It never mutates kernel state; every endpoint is a view of
// a pass-boundary snapshot or of the recorded trace.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/gokern/internal/sched"
	"github.com/me/gokern/internal/trace"
)

// Server is the kernel inspector HTTP server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	sched     *sched.Scheduler
	reader    *trace.Reader // optional; enables the /api/runs endpoints
	startTime time.Time
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithTraceReader exposes a recorded trace database under /api/runs.
func WithTraceReader(r *trace.Reader) Option {
	return func(s *Server) {
		s.reader = r
	}
}

// New creates a Server with all routes registered.
func New(sc *sched.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "inspector"),
		sched:     sc,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/scheduler", s.handleScheduler)

		r.Route("/processes", func(r chi.Router) {
			r.Get("/", s.handleListProcesses)
			r.Get("/{pid}", s.handleGetProcess)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}/events", s.handleRunEvents)
		})
	})
}

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// instrument tags each request with an id and logs it against the
// scheduler's progress, so inspector traffic can be lined up with the
// pass stream in the kernel log.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestID()
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		snap := s.sched.Snapshot()
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).String(),
			"request_id", reqID,
			"pass", snap.Passes,
			"kernel_now", snap.Now.String(),
		)
	})
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
