// Package web provides the HTTP API for feed decoding and ingestion.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/tickfeed/internal/config"
	"github.com/JonMunkholm/tickfeed/internal/core"
	"github.com/JonMunkholm/tickfeed/internal/metrics"
	"github.com/JonMunkholm/tickfeed/internal/pipeline"
	"github.com/JonMunkholm/tickfeed/internal/store"
	"github.com/JonMunkholm/tickfeed/internal/web/middleware"
)

// Deps are the collaborators a Server needs. DB may be nil, in which case
// ingest runs are processed but not persisted.
type Deps struct {
	Config   *config.Config
	DB       store.DB
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Limiter  *pipeline.Limiter
}

// Server is the HTTP server for the feed API.
type Server struct {
	cfg      *config.Config
	db       store.DB
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limiter  *pipeline.Limiter

	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server and configures its routes.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		db:       d.DB,
		metrics:  d.Metrics,
		gatherer: d.Gatherer,
		limiter:  d.Limiter,
		router:   chi.NewRouter(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.limiter == nil {
		s.limiter = pipeline.NewLimiter(d.Config.Ingest.MaxConcurrent, d.Config.Ingest.MaxWaitTime, d.Metrics)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys))

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
			r.Use(chimw.Compress(5))

			r.Get("/feeds", s.handleListFeeds)
			r.Get("/feeds/{feedKey}", s.handleGetFeed)
			r.Post("/feeds/{feedKey}/decode", s.handleDecode)
		})

		// Ingest runs are bounded by INGEST_TIMEOUT instead of the request
		// timeout.
		r.Post("/feeds/{feedKey}/ingest", s.handleIngest)
		r.Get("/ingest/status", s.handleIngestStatus)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ingest runs.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

type healthResponse struct {
	Status string                 `json:"status"`
	Feeds  int                    `json:"feeds"`
	Store  bool                   `json:"store"`
	Ingest pipeline.LimiterStatus `json:"ingest"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Feeds:  core.FeedCount(),
		Store:  s.db != nil,
		Ingest: s.limiter.Status(),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
