// Package main provides the entrypoint for the pacekeeper worker, which
// coaches a single run from a Pub/Sub fix stream or a replayed route.
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

	"github.com/breatheroute/pacekeeper/internal/api/handler"
	"github.com/breatheroute/pacekeeper/internal/coach"
	"github.com/breatheroute/pacekeeper/internal/config"
	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/internal/speech"
	"github.com/breatheroute/pacekeeper/internal/stream"
	"github.com/breatheroute/pacekeeper/internal/telemetry"
	"github.com/breatheroute/pacekeeper/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pacekeeper-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pacekeeper worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatal().Err(err).Msg("invalid worker configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tp, err := telemetry.Init(ctx, cfg.Telemetry(serviceName, Version, "worker"))
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

	runMetrics, err := coach.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize run metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	source, closeSource, err := newSource(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Str("source", cfg.PositionSource).Msg("failed to create position source")
		os.Exit(1)
	}
	defer closeSource()

	var checks []handler.DependencyCheck
	speechLog := log.With().Str("component", "speech").Logger()
	newQueue := func(speaker speech.Speaker) *speech.Queue {
		return speech.NewQueue(speech.QueueConfig{
			Speaker: speaker,
			Logger:  speechLog,
			Size:    cfg.SpeechQueueSize,
			Timeout: cfg.SpeechTimeout,
		})
	}

	// The transcript is always logged; a configured endpoint voices it as well.
	transcript := newQueue(speech.NewLogSpeaker(speechLog))
	defer transcript.Close()
	sink := speech.Fanout{transcript}
	if cfg.SpeechEndpoint != "" {
		httpSpeaker := speech.NewHTTPSpeaker(speech.HTTPConfig{
			Endpoint: cfg.SpeechEndpoint,
			Voice:    cfg.SpeechVoice,
		})
		voice := newQueue(httpSpeaker)
		defer voice.Close()
		sink = append(sink, voice)
		checks = append(checks, handler.DependencyCheck{Name: "speech", Check: httpSpeaker.Ready})
	}

	hub := stream.NewHub(log.With().Str("component", "stream").Logger())
	defer hub.Shutdown()

	jobCfg := worker.DefaultJobConfig()
	jobCfg.TargetTime = cfg.TargetTime
	jobCfg.Run = cfg.Run()
	jobCfg.Source = source
	jobCfg.Options = cfg.Position()
	jobCfg.Sink = sink
	jobCfg.Observer = hub
	jobCfg.Metrics = runMetrics
	jobCfg.Logger = log.With().Str("component", "coach").Logger()
	if cfg.PubSubRunID != "" {
		jobCfg.ID = cfg.PubSubRunID
	}
	job := worker.NewJob(jobCfg)

	// Worker also exposes health and run status for Cloud Run.
	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: worker.NewRouter(worker.RouterConfig{
			Version:   Version,
			BuildTime: BuildTime,
			Logger:    log,
			Job:       job,
			Hub:       hub,
			Checks:    checks,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	result, err := job.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
	} else {
		log.Info().
			Str("state", result.State.String()).
			Str("display", result.Display).
			Int("callouts", result.Callouts).
			Dur("duration", result.Duration).
			Msg("run finished")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// newSource builds the configured position source and a func that releases it.
func newSource(ctx context.Context, cfg config.Config, log zerolog.Logger) (position.Source, func(), error) {
	switch cfg.PositionSource {
	case config.SourcePubSub:
		src, err := position.NewPubSubSource(ctx, position.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			RunID:            cfg.PubSubRunID,
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if err != nil {
			return nil, nil, err
		}
		return src, func() {
			if err := src.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close pubsub client")
			}
		}, nil
	default:
		src, err := position.NewReplayFromPolyline(cfg.ReplayPolyline, position.ReplayConfig{
			StepMeters: cfg.ReplayStepMeters,
			Interval:   cfg.ReplayInterval,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Int("fixes", src.Len()).Msg("replaying route")
		return src, func() {}, nil
	}
}
