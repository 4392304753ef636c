// Package api provides the HTTP API for pacekeeper.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/pacekeeper/internal/api/handler"
	"github.com/breatheroute/pacekeeper/internal/api/middleware"
	"github.com/breatheroute/pacekeeper/internal/api/response"
	"github.com/breatheroute/pacekeeper/internal/auth"
	"github.com/breatheroute/pacekeeper/internal/coach"
	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/stream"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	JWTService  *auth.JWTService
	Registry    *coach.Registry
	RunDefaults pace.RunConfig
	Hub         *stream.Hub
	RequireTLS  bool
	Checks      []handler.DependencyCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pacekeeper-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Checks...)
	runsHandler := handler.NewRunsHandler(handler.RunsHandlerConfig{
		Registry: cfg.Registry,
		Defaults: cfg.RunDefaults,
		Hub:      cfg.Hub,
		Logger:   cfg.Logger,
	})

	authMiddleware := middleware.Auth(cfg.JWTService)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// Runs (authenticated) - runner-based rate limiting
		r.Route("/runs", func(r chi.Router) {
			r.Use(authMiddleware)

			r.With(middleware.RateLimitByRunner(middleware.StandardRateLimit)).Get("/", runsHandler.ListRuns)
			r.With(middleware.RateLimitByRunner(middleware.RunControlRateLimit), middleware.RequireJSON).Post("/", runsHandler.CreateRun)

			r.Route("/{runId}", func(r chi.Router) {
				r.With(middleware.RateLimitByRunner(middleware.StandardRateLimit)).Get("/", runsHandler.GetRun)
				r.Get("/stream", runsHandler.Stream)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RateLimitByRunner(middleware.RunControlRateLimit))
					r.Delete("/", runsHandler.DeleteRun)
					r.With(middleware.RequireJSON).Post("/start", runsHandler.StartRun)
					r.Post("/stop", runsHandler.StopRun)
					r.Post("/reset", runsHandler.ResetRun)
				})

				r.With(middleware.RateLimitByRunner(middleware.FixIngestRateLimit), middleware.RequireJSON).Post("/fixes", runsHandler.PushFix)
			})
		})
	})

	return r
}
