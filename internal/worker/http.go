package worker

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/pacekeeper/internal/api/handler"
	"github.com/breatheroute/pacekeeper/internal/api/middleware"
	"github.com/breatheroute/pacekeeper/internal/api/models"
	"github.com/breatheroute/pacekeeper/internal/api/response"
	"github.com/breatheroute/pacekeeper/internal/stream"
)

// RouterConfig holds configuration for the worker's HTTP surface.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Job       *Job

	// Hub, when set, serves run events on /v1/run/stream.
	Hub    *stream.Hub
	Checks []handler.DependencyCheck
}

// NewRouter serves health probes and the status of the job's run. The
// worker is not exposed publicly, so no route is authenticated.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.ContentTypeJSON)

	ops := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Checks...)
	runner := cfg.Job.Runner()

	r.Route("/v1", func(r chi.Router) {
		r.Get("/ops/health", ops.HealthCheck)
		r.Get("/ops/ready", ops.ReadinessCheck)

		r.Get("/run", func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, r, http.StatusOK, models.NewRunStatus(runner.Status()))
		})
		r.Post("/run/stop", func(w http.ResponseWriter, r *http.Request) {
			runner.Stop()
			response.JSON(w, r, http.StatusOK, models.NewRunStatus(runner.Status()))
		})
		r.Get("/run/stream", func(w http.ResponseWriter, r *http.Request) {
			if cfg.Hub == nil {
				response.ServiceUnavailable(w, r, "event streaming is not enabled")
				return
			}
			cfg.Hub.Serve(w, r, runner.ID())
		})
	})

	return r
}
