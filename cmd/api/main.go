// Package main provides the entrypoint for the pacekeeper API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/pacekeeper/internal/api"
	"github.com/breatheroute/pacekeeper/internal/api/handler"
	"github.com/breatheroute/pacekeeper/internal/api/middleware"
	"github.com/breatheroute/pacekeeper/internal/auth"
	"github.com/breatheroute/pacekeeper/internal/coach"
	"github.com/breatheroute/pacekeeper/internal/config"
	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/internal/speech"
	"github.com/breatheroute/pacekeeper/internal/stream"
	"github.com/breatheroute/pacekeeper/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pacekeeper-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pacekeeper API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, cfg.Telemetry(serviceName, Version, "api"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	runMetrics, err := coach.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize run metrics")
		os.Exit(1)
	}

	jwtConfig, devKey := cfg.JWT()
	if devKey {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(jwtConfig)

	// Devices speak utterances they receive on the stream. The server only
	// voices them itself when a speech endpoint is configured.
	var checks []handler.DependencyCheck
	sink := speech.Discard
	if cfg.SpeechEndpoint != "" {
		speaker := speech.NewHTTPSpeaker(speech.HTTPConfig{
			Endpoint: cfg.SpeechEndpoint,
			Voice:    cfg.SpeechVoice,
		})
		queue := speech.NewQueue(speech.QueueConfig{
			Speaker: speaker,
			Logger:  log.With().Str("component", "speech").Logger(),
			Size:    cfg.SpeechQueueSize,
			Timeout: cfg.SpeechTimeout,
		})
		defer queue.Close()

		sink = queue
		checks = append(checks, handler.DependencyCheck{Name: "speech", Check: speaker.Ready})
		log.Info().Str("endpoint", cfg.SpeechEndpoint).Msg("speech endpoint configured")
	}

	hub := stream.NewHub(log.With().Str("component", "stream").Logger())

	runLogger := log.With().Str("component", "coach").Logger()
	registry := coach.NewRegistry(func(id string, run pace.RunConfig) (*coach.Runner, *position.Feed) {
		feed := position.NewFeed(position.FeedConfig{Backlog: cfg.FeedBacklog})
		return coach.NewRunner(coach.RunnerConfig{
			ID:       id,
			Run:      run,
			Source:   feed,
			Options:  cfg.Position(),
			Sink:     sink,
			Observer: hub,
			Metrics:  runMetrics,
			Logger:   runLogger,
		}), feed
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.RunRetention > 0 {
		go registry.Sweep(sweepCtx, min(cfg.RunRetention, time.Minute), cfg.RunRetention, func(ids []string) {
			for _, id := range ids {
				hub.Close(id)
			}
			log.Info().Int("runs", len(ids)).Msg("evicted idle runs")
		})
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		JWTService:  jwtService,
		Registry:    registry,
		RunDefaults: cfg.Run(),
		Hub:         hub,
		RequireTLS:  cfg.RequireTLS,
		Checks:      checks,
	})

	// No WriteTimeout: run event streams are long-lived websockets.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked connections.
	stopSweep()
	registry.Shutdown()
	hub.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Int("runs", registry.Len()).Msg("server stopped")
}
