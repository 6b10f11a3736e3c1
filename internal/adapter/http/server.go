package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/service"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ThreatService answers the operator queries served by the API.
// *service.Engine implements it.
type ThreatService interface {
	Threats(ctx context.Context, q service.Query) service.ThreatView
	Report(ctx context.Context, q service.Query) domain.Report
	Readings(ctx context.Context, q service.Query) service.ReadingsView
	Dashboard(ctx context.Context, q service.Query) service.Dashboard
	Totals(ctx context.Context, q service.Query) service.TotalsView
}

// Options configures query defaults.
type Options struct {
	DefaultRange time.Duration
	DefaultTopN  int
	Clock        clockwork.Clock
}

// Server exposes the query API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	engine     ThreatService
	opts       Options
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the
// /api/v1 query routes.
func NewServer(addr string, engine ThreatService, ready sharedobs.ReadinessChecker, opts Options, logger *slog.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.DefaultRange <= 0 {
		opts.DefaultRange = 24 * time.Hour
	}
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 5
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine: engine,
		opts:   opts,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/threats", s.withQuery(func(ctx context.Context, q service.Query) any {
		return s.engine.Threats(ctx, q)
	}))
	mux.HandleFunc("GET /api/v1/report", s.withQuery(func(ctx context.Context, q service.Query) any {
		return s.engine.Report(ctx, q)
	}))
	mux.HandleFunc("GET /api/v1/readings", s.withQuery(func(ctx context.Context, q service.Query) any {
		return s.engine.Readings(ctx, q)
	}))
	mux.HandleFunc("GET /api/v1/dashboard", s.withQuery(func(ctx context.Context, q service.Query) any {
		return s.engine.Dashboard(ctx, q)
	}))
	mux.HandleFunc("GET /api/v1/totals", s.withQuery(func(ctx context.Context, q service.Query) any {
		return s.engine.Totals(ctx, q)
	}))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) withQuery(fn func(ctx context.Context, q service.Query) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseQuery(r, s.opts)
		if err != nil {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, fn(r.Context(), q))
	}
}

// CombineReadiness reports ready only when every checker does.
func CombineReadiness(checkers ...sharedobs.ReadinessChecker) sharedobs.ReadinessChecker {
	return readinessGroup(checkers)
}

type readinessGroup []sharedobs.ReadinessChecker

func (g readinessGroup) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range g {
		if err := c.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
