// Package config loads the consuma server's settings from the environment,
// prefix CONSUMA_, mirroring original_source/src/app/config.py field for
// field. Unlike the teacher's YAML-file loader this one reads os.Getenv
// directly, since the server's configuration surface is environment-based
// (spec §6) rather than scenario-file-based.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds every CONSUMA_-prefixed knob the server reads at startup.
type Settings struct {
	DefaultIterations      int
	MaxWorkers             int
	MaxQueueSize           int
	CallbackTimeout        time.Duration
	CallbackMaxRetries     int
	RateLimitRequests      int
	RateLimitWindow        time.Duration
	AllowPrivateCallbacks  bool
	DatabasePath           string

	// HealthDegradeThreshold is the fraction of queue capacity (0..1) at or
	// above which GET /healthz reports status=degraded. Not named in spec §6 but
	// an ambient addition to the health breaker — see DESIGN.md.
	HealthDegradeThreshold float64
}

const envPrefix = "CONSUMA_"

// Default returns the settings with the spec's documented defaults applied.
func Default() Settings {
	return Settings{
		DefaultIterations:      50_000,
		MaxWorkers:             4,
		MaxQueueSize:           1000,
		CallbackTimeout:        10 * time.Second,
		CallbackMaxRetries:     5,
		RateLimitRequests:      500,
		RateLimitWindow:        60 * time.Second,
		AllowPrivateCallbacks:  false,
		DatabasePath:           "requests.wal",
		HealthDegradeThreshold: 0.5,
	}
}

// Load builds Settings from Default() overridden by any CONSUMA_* environment
// variables that are set, then validates the result.
func Load() (Settings, error) {
	s := Default()
	var result ValidationResult

	if v, ok := lookup("DEFAULT_ITERATIONS"); ok {
		s.DefaultIterations = parseIntInto(&result, "DEFAULT_ITERATIONS", v, s.DefaultIterations)
	}
	if v, ok := lookup("MAX_WORKERS"); ok {
		s.MaxWorkers = parseIntInto(&result, "MAX_WORKERS", v, s.MaxWorkers)
	}
	if v, ok := lookup("MAX_QUEUE_SIZE"); ok {
		s.MaxQueueSize = parseIntInto(&result, "MAX_QUEUE_SIZE", v, s.MaxQueueSize)
	}
	if v, ok := lookup("CALLBACK_TIMEOUT"); ok {
		s.CallbackTimeout = parseSecondsInto(&result, "CALLBACK_TIMEOUT", v, s.CallbackTimeout)
	}
	if v, ok := lookup("CALLBACK_MAX_RETRIES"); ok {
		s.CallbackMaxRetries = parseIntInto(&result, "CALLBACK_MAX_RETRIES", v, s.CallbackMaxRetries)
	}
	if v, ok := lookup("RATE_LIMIT_REQUESTS"); ok {
		s.RateLimitRequests = parseIntInto(&result, "RATE_LIMIT_REQUESTS", v, s.RateLimitRequests)
	}
	if v, ok := lookup("RATE_LIMIT_WINDOW"); ok {
		s.RateLimitWindow = parseSecondsInto(&result, "RATE_LIMIT_WINDOW", v, s.RateLimitWindow)
	}
	if v, ok := lookup("ALLOW_PRIVATE_CALLBACKS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			result.Add(ValidationError{
				Field: envPrefix + "ALLOW_PRIVATE_CALLBACKS", Value: v,
				Message: "must be a boolean", Expected: "true or false",
			})
		} else {
			s.AllowPrivateCallbacks = b
		}
	}
	if v, ok := lookup("DATABASE_PATH"); ok && v != "" {
		s.DatabasePath = v
	}
	if v, ok := lookup("HEALTH_DEGRADE_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			result.Add(ValidationError{
				Field: envPrefix + "HEALTH_DEGRADE_THRESHOLD", Value: v,
				Message: "must be a float", Expected: "a number between 0 and 1",
			})
		} else {
			s.HealthDegradeThreshold = f
		}
	}

	if err := s.validate(); err != nil {
		result.Add(ValidationError{Field: "settings", Message: err.Error()})
	}

	if result.HasErrors() {
		return Settings{}, fmt.Errorf("%s", result.FormatErrors())
	}
	return s, nil
}

func lookup(name string) (string, bool) {
	return os.LookupEnv(envPrefix + name)
}

func parseIntInto(result *ValidationResult, name, raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		result.Add(ValidationError{
			Field: envPrefix + name, Value: raw,
			Message: "must be an integer", Expected: "a whole number",
		})
		return fallback
	}
	return n
}

func parseSecondsInto(result *ValidationResult, name, raw string, fallback time.Duration) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		result.Add(ValidationError{
			Field: envPrefix + name, Value: raw,
			Message: "must be an integer number of seconds", Expected: "a whole number",
		})
		return fallback
	}
	return time.Duration(n) * time.Second
}

// validate checks cross-field invariants that can't be caught per-field.
func (s Settings) validate() error {
	switch {
	case s.MaxWorkers <= 0:
		return fmt.Errorf("max_workers must be positive, got %d", s.MaxWorkers)
	case s.MaxQueueSize <= 0:
		return fmt.Errorf("max_queue_size must be positive, got %d", s.MaxQueueSize)
	case s.DefaultIterations <= 0 || s.DefaultIterations > 1_000_000:
		return fmt.Errorf("default_iterations must be in 1..1_000_000, got %d", s.DefaultIterations)
	case s.CallbackMaxRetries <= 0:
		return fmt.Errorf("callback_max_retries must be positive, got %d", s.CallbackMaxRetries)
	case s.RateLimitRequests <= 0:
		return fmt.Errorf("rate_limit_requests must be positive, got %d", s.RateLimitRequests)
	}
	return nil
}
