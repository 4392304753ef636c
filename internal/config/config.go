// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/breatheroute/pacekeeper/internal/auth"
	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/internal/telemetry"
)

// Position sources the worker can read fixes from.
const (
	SourcePubSub = "pubsub"
	SourceReplay = "replay"
)

// DevSigningKey is used when JWT_SIGNING_KEY is unset.
const DevSigningKey = "local-dev-signing-key-change-in-production"

// Config is the union of the API server and worker settings.
type Config struct {
	Port        string `mapstructure:"APP_PORT"`
	Environment string `mapstructure:"APP_ENV"`

	OTelEnabled  bool   `mapstructure:"OTEL_ENABLED"`
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	RequireTLS    bool   `mapstructure:"REQUIRE_TLS"`

	TotalDistanceMeters   float64 `mapstructure:"RUN_TOTAL_DISTANCE_M"`
	CalloutIntervalMeters float64 `mapstructure:"RUN_CALLOUT_INTERVAL_M"`
	PaceToleranceSeconds  float64 `mapstructure:"RUN_PACE_TOLERANCE_S"`
	TargetTime            string  `mapstructure:"RUN_TARGET_TIME"`

	// RunRetention is how long an idle API run is kept before eviction.
	// Zero keeps runs until they are deleted.
	RunRetention time.Duration `mapstructure:"RUN_RETENTION"`

	PositionSource       string        `mapstructure:"POSITION_SOURCE"`
	PositionMaxAge       time.Duration `mapstructure:"POSITION_MAX_AGE"`
	PositionTimeout      time.Duration `mapstructure:"POSITION_TIMEOUT"`
	PositionHighAccuracy bool          `mapstructure:"POSITION_HIGH_ACCURACY"`
	FeedBacklog          int           `mapstructure:"POSITION_FEED_BACKLOG"`

	PubSubProjectID    string `mapstructure:"PUBSUB_PROJECT_ID"`
	PubSubSubscription string `mapstructure:"PUBSUB_SUBSCRIPTION"`
	PubSubRunID        string `mapstructure:"PUBSUB_RUN_ID"`

	ReplayPolyline   string        `mapstructure:"REPLAY_POLYLINE"`
	ReplayStepMeters float64       `mapstructure:"REPLAY_STEP_M"`
	ReplayInterval   time.Duration `mapstructure:"REPLAY_INTERVAL"`

	SpeechEndpoint  string        `mapstructure:"SPEECH_ENDPOINT"`
	SpeechVoice     string        `mapstructure:"SPEECH_VOICE"`
	SpeechQueueSize int           `mapstructure:"SPEECH_QUEUE_SIZE"`
	SpeechTimeout   time.Duration `mapstructure:"SPEECH_TIMEOUT"`
}

var defaults = map[string]any{
	"APP_PORT":                    "8080",
	"APP_ENV":                     "development",
	"OTEL_ENABLED":                false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"JWT_SIGNING_KEY":             "",
	"JWT_ISSUER":                  "https://api.pacekeeper.dev",
	"JWT_AUDIENCE":                "pacekeeper-api",
	"REQUIRE_TLS":                 false,
	"RUN_TOTAL_DISTANCE_M":        pace.DefaultTotalDistanceMeters,
	"RUN_CALLOUT_INTERVAL_M":      pace.DefaultCalloutIntervalMeters,
	"RUN_PACE_TOLERANCE_S":        pace.DefaultPaceToleranceSeconds,
	"RUN_TARGET_TIME":             "12:00",
	"RUN_RETENTION":               time.Hour,
	"POSITION_SOURCE":             SourceReplay,
	"POSITION_MAX_AGE":            time.Second,
	"POSITION_TIMEOUT":            5 * time.Second,
	"POSITION_HIGH_ACCURACY":      true,
	"POSITION_FEED_BACKLOG":       16,
	"PUBSUB_PROJECT_ID":           "",
	"PUBSUB_SUBSCRIPTION":         "",
	"PUBSUB_RUN_ID":               "",
	"REPLAY_POLYLINE":             "",
	"REPLAY_STEP_M":               25.0,
	"REPLAY_INTERVAL":             5 * time.Second,
	"SPEECH_ENDPOINT":             "",
	"SPEECH_VOICE":                "",
	"SPEECH_QUEUE_SIZE":           32,
	"SPEECH_TIMEOUT":              10 * time.Second,
}

// Load reads the configuration from the environment, falling back to
// defaults for unset variables.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings shared by every process.
func (c Config) Validate() error {
	var errs []error
	// The target is checked per run.
	if err := c.Run().WithTarget(1).Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RunRetention < 0 {
		errs = append(errs, errors.New("RUN_RETENTION must not be negative"))
	}
	if c.PositionMaxAge < 0 || c.PositionTimeout < 0 {
		errs = append(errs, errors.New("POSITION_MAX_AGE and POSITION_TIMEOUT must not be negative"))
	}
	switch c.PositionSource {
	case SourcePubSub, SourceReplay:
	default:
		errs = append(errs, fmt.Errorf("POSITION_SOURCE must be %q or %q, got %q", SourcePubSub, SourceReplay, c.PositionSource))
	}
	return errors.Join(errs...)
}

// ValidateWorker checks the settings a headless run needs on top of Validate.
func (c Config) ValidateWorker() error {
	var errs []error
	if _, err := pace.ParseTargetDuration(c.TargetTime); err != nil {
		errs = append(errs, fmt.Errorf("RUN_TARGET_TIME: %w", err))
	}
	switch c.PositionSource {
	case SourcePubSub:
		if c.PubSubProjectID == "" || c.PubSubSubscription == "" {
			errs = append(errs, errors.New("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION are required for the pubsub source"))
		}
	case SourceReplay:
		if c.ReplayPolyline == "" {
			errs = append(errs, errors.New("REPLAY_POLYLINE is required for the replay source"))
		}
	}
	return errors.Join(errs...)
}

// Run returns the distances and tolerance new runs start with.
func (c Config) Run() pace.RunConfig {
	return pace.RunConfig{
		TotalDistanceMeters:   c.TotalDistanceMeters,
		CalloutIntervalMeters: c.CalloutIntervalMeters,
		PaceToleranceSeconds:  c.PaceToleranceSeconds,
	}
}

// Position returns the options runs subscribe with.
func (c Config) Position() position.Options {
	return position.Options{
		MaxAge:       c.PositionMaxAge,
		HighAccuracy: c.PositionHighAccuracy,
		Timeout:      c.PositionTimeout,
	}
}

// JWT returns the token service settings. The second result reports whether
// the development signing key is in use.
func (c Config) JWT() (auth.JWTConfig, bool) {
	key, dev := c.JWTSigningKey, false
	if key == "" {
		key, dev = DevSigningKey, true
	}
	return auth.JWTConfig{
		SigningKey: key,
		Issuer:     c.JWTIssuer,
		Audience:   c.JWTAudience,
	}, dev
}

// Telemetry returns the telemetry settings for one process of the service.
func (c Config) Telemetry(serviceName, version, component string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTLPEndpoint,
		Enabled:        c.OTelEnabled,
		Component:      component,
	}
}
