package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/pacekeeper/internal/api/models"
	"github.com/breatheroute/pacekeeper/internal/api/response"
	"github.com/breatheroute/pacekeeper/internal/coach"
	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/internal/stream"
)

// RunsHandler handles the run control surface and fix ingestion.
type RunsHandler struct {
	registry *coach.Registry
	defaults pace.RunConfig
	hub      *stream.Hub
	logger   zerolog.Logger
}

// RunsHandlerConfig holds configuration for a RunsHandler.
type RunsHandlerConfig struct {
	Registry *coach.Registry
	// Defaults supplies distances and tolerance a request does not override.
	Defaults pace.RunConfig
	Hub      *stream.Hub
	Logger   zerolog.Logger
}

// NewRunsHandler creates a new RunsHandler.
func NewRunsHandler(cfg RunsHandlerConfig) *RunsHandler {
	if cfg.Defaults == (pace.RunConfig{}) {
		cfg.Defaults = pace.DefaultRunConfig()
	}
	return &RunsHandler{
		registry: cfg.Registry,
		defaults: cfg.Defaults,
		hub:      cfg.Hub,
		logger:   cfg.Logger,
	}
}

// CreateRun handles POST /v1/runs. The run is started immediately; a
// missing or unusable target time is a precondition failure and no run is
// created.
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	runnerID := GetRunnerID(r.Context())

	var req models.CreateRunRequest
	if err := response.Decode(r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid run settings", errs)
		return
	}

	target, err := pace.ParseTargetDuration(req.TargetTime)
	if err != nil {
		invalidTarget(w, r)
		return
	}

	cfg := req.Apply(h.defaults)
	if err := cfg.WithTarget(target).Validate(); err != nil {
		response.PreconditionFailed(w, r, err.Error(), nil)
		return
	}

	run := h.registry.Create(runnerID, cfg)
	if err := run.Runner.Start(r.Context(), req.TargetTime); err != nil {
		_ = h.registry.Delete(runnerID, run.ID)
		h.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to start run")
		response.InternalError(w, r, "failed to start run")
		return
	}

	response.Created(w, r, "/v1/runs/"+run.ID, toRun(run))
}

// ListRuns handles GET /v1/runs.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.registry.List(GetRunnerID(r.Context()))

	list := models.RunList{Items: make([]models.Run, 0, len(runs))}
	for _, run := range runs {
		list.Items = append(list.Items, toRun(run))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// GetRun handles GET /v1/runs/{runId}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toRun(run))
}

// DeleteRun handles DELETE /v1/runs/{runId}.
func (h *RunsHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	if err := h.registry.Delete(GetRunnerID(r.Context()), runID); err != nil {
		h.writeRunError(w, r, err)
		return
	}
	if h.hub != nil {
		h.hub.Close(runID)
	}
	response.NoContent(w, r)
}

// StartRun handles POST /v1/runs/{runId}/start. It begins a fresh attempt
// with the run's distances and tolerance, replacing any attempt in progress.
// An unusable target time leaves the run as it was.
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.StartRunRequest
	if err := response.Decode(r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	if err := run.Runner.Start(r.Context(), req.TargetTime); err != nil {
		if errors.Is(err, pace.ErrInvalidTargetDuration) {
			invalidTarget(w, r)
			return
		}
		h.writeRunError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toRun(run))
}

// StopRun handles POST /v1/runs/{runId}/stop.
func (h *RunsHandler) StopRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	run.Runner.Stop()
	response.JSON(w, r, http.StatusOK, toRun(run))
}

// ResetRun handles POST /v1/runs/{runId}/reset.
func (h *RunsHandler) ResetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	run.Runner.Reset()
	response.JSON(w, r, http.StatusOK, toRun(run))
}

// PushFix handles POST /v1/runs/{runId}/fixes. Fixes are processed
// asynchronously in arrival order.
func (h *RunsHandler) PushFix(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.FixRequest
	if err := response.Decode(r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid position fix", errs)
		return
	}

	fix := position.Fix{AccuracyMeters: req.AccuracyMeters}
	fix.Lat, fix.Lon = *req.Lat, *req.Lon
	if req.Timestamp != nil {
		fix.Timestamp = req.Timestamp.Time()
	}

	if err := run.Feed.Publish(fix); err != nil {
		h.writeRunError(w, r, err)
		return
	}
	response.Accepted(w, r, models.NewRunStatus(run.Runner.Status()))
}

// Stream handles GET /v1/runs/{runId}/stream as a websocket of run events.
func (h *RunsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.hub == nil {
		response.ServiceUnavailable(w, r, "event streaming is not enabled")
		return
	}
	h.hub.Serve(w, r, run.ID)
}

func (h *RunsHandler) lookup(w http.ResponseWriter, r *http.Request) (*coach.Run, bool) {
	run, err := h.registry.Get(GetRunnerID(r.Context()), chi.URLParam(r, "runId"))
	if err != nil {
		h.writeRunError(w, r, err)
		return nil, false
	}
	return run, true
}

func (h *RunsHandler) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, coach.ErrRunNotFound):
		response.NotFound(w, r, "run not found")
	case errors.Is(err, position.ErrNotSubscribed):
		response.Conflict(w, r, "run is not running")
	case errors.Is(err, position.ErrStaleFix), errors.Is(err, position.ErrFutureFix):
		response.PreconditionFailed(w, r, "fix timestamp is outside the accepted age, check the device clock", []models.FieldError{
			{Field: "timestamp", Message: err.Error(), Code: models.CodeOutOfRange},
		})
	case errors.Is(err, position.ErrBacklogFull):
		response.TooManyRequests(w, r, "fixes are arriving faster than they can be processed")
	default:
		h.logger.Error().Err(err).Msg("run request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func invalidTarget(w http.ResponseWriter, r *http.Request) {
	response.PreconditionFailed(w, r, "a run needs a target time greater than zero", []models.FieldError{
		{Field: "targetTime", Message: "must be minutes:seconds, e.g. 12:00", Code: models.CodeInvalid},
	})
}

func toRun(run *coach.Run) models.Run {
	out := models.Run{
		RunID:     run.ID,
		CreatedAt: models.Timestamp(run.CreatedAt),
		Config:    run.Runner.Config(),
		Status:    models.NewRunStatus(run.Runner.Status()),
	}
	if opts, ok := run.Feed.Options(); ok {
		out.Position = &models.PositionOptions{
			MaximumAgeMillis:   opts.MaxAge.Milliseconds(),
			EnableHighAccuracy: opts.HighAccuracy,
			TimeoutMillis:      opts.Timeout.Milliseconds(),
		}
	}
	return out
}
