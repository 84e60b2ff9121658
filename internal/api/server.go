package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/cachestate"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StaleLister lists sources due for a refresh.
type StaleLister interface {
	Stale(ctx context.Context) ([]cachestate.StaleSource, error)
}

// Refresher starts a background refresh. It returns ErrRefreshRunning when a
// refresh is already in progress.
type Refresher interface {
	TriggerRefresh() error
}

// Refresher errors.
var (
	// ErrRefreshRunning is returned when a refresh is in flight.
	ErrRefreshRunning = errors.New("refresh already running")
	// ErrRefreshStopped is returned once the scheduler is shutting down.
	ErrRefreshStopped = errors.New("refresh scheduler stopped")
)

// Middleware wraps handlers, e.g. metrics.Collectors.Middleware.
type Middleware func(http.Handler) http.Handler

// Server wires HTTP handlers to the ranking services.
type Server struct {
	router    chi.Router
	store     Pinger
	stale     StaleLister
	refresher Refresher
	logger    *zap.Logger
}

// Options configures NewServer. Metrics and Refresher are optional.
type Options struct {
	Store      Pinger
	Stale      StaleLister
	Refresher  Refresher
	Metrics    http.Handler
	Middleware []Middleware
	Logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     opts.Store,
		stale:     opts.Stale,
		refresher: opts.Refresher,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	for _, mw := range opts.Middleware {
		r.Use(mw)
	}
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stale", s.listStale)
		r.Post("/refresh", s.refresh)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type staleDTO struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Reason  string `json:"reason"`
	Command string `json:"command"`
}

func (s *Server) listStale(w http.ResponseWriter, r *http.Request) {
	if s.stale == nil {
		s.writeError(w, http.StatusNotImplemented, "stale listing not configured")
		return
	}
	stale, err := s.stale.Stale(r.Context())
	if err != nil {
		s.logger.Error("list stale sources", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list stale sources")
		return
	}
	out := make([]staleDTO, 0, len(stale))
	for _, src := range stale {
		out = append(out, staleDTO{
			Code:    src.Code,
			Name:    src.Name,
			Reason:  src.Reason,
			Command: "rankings fetch --source " + src.Code,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stale": out})
}

func (s *Server) refresh(w http.ResponseWriter, _ *http.Request) {
	if s.refresher == nil {
		s.writeError(w, http.StatusNotImplemented, "refresh not configured")
		return
	}
	switch err := s.refresher.TriggerRefresh(); {
	case errors.Is(err, ErrRefreshRunning):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRefreshStopped):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("trigger refresh", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to start refresh")
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
	}
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
