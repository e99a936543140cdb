package config

import (
	"errors"
	"fmt"
	"net/url"

	"hitqueue/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateStore(cfg.Store); err != nil {
		errs = append(errs, err)
	}

	if err := validateTracking(cfg.Tracking); err != nil {
		errs = append(errs, err)
	}

	if err := validateEngines(cfg.Engines); err != nil {
		errs = append(errs, err)
	}

	if cfg.Collector.Enabled && cfg.Collector.RateLimit.Enabled {
		if err := validateRateLimit("collector.rate_limit", cfg.Collector.RateLimit); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}
	return nil
}

func validateStore(cfg StoreConfig) error {
	switch cfg.Type {
	case constants.StoreTypeMemory:
		return nil
	case constants.StoreTypeFS:
		if cfg.FS.Dir == "" {
			return &ValidationError{
				Field:   "store.fs.dir",
				Message: "directory is required for the fs store",
			}
		}
		return nil
	case constants.StoreTypeRedis:
		if cfg.Redis.Host == "" {
			return &ValidationError{
				Field:   "store.redis.host",
				Message: "Redis host is required",
			}
		}
		if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
			return &ValidationError{
				Field:   "store.redis.port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Redis.Port),
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "store.type",
			Message: fmt.Sprintf("unknown store type: %s (supported: memory, fs, redis)", cfg.Type),
		}
	}
}

func validateTracking(cfg TrackingConfig) error {
	if cfg.QueueLifeSpan <= 0 {
		return &ValidationError{
			Field:   "tracking.queue_life_span",
			Message: "queue life span must be positive",
		}
	}

	if cfg.RetryInterval <= 0 {
		return &ValidationError{
			Field:   "tracking.retry_interval",
			Message: "retry interval must be positive",
		}
	}

	if cfg.Workers < 1 {
		return &ValidationError{
			Field:   "tracking.workers",
			Message: "at least one worker is required",
		}
	}

	if cfg.BufferSize < 0 {
		return &ValidationError{
			Field:   "tracking.buffer_size",
			Message: "buffer size must be non-negative (0 means unbounded)",
		}
	}

	if cfg.HTTPTimeout <= 0 {
		return &ValidationError{
			Field:   "tracking.http_timeout",
			Message: "HTTP timeout must be positive",
		}
	}

	if cfg.RateLimit.Enabled {
		return validateRateLimit("tracking.rate_limit", cfg.RateLimit)
	}

	return nil
}

func validateEngines(engines []EngineConfig) error {
	seen := make(map[string]bool, len(engines))
	defaults := 0

	for i, e := range engines {
		if e.ID == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("engines[%d].id", i),
				Message: "engine id is required",
			}
		}
		if seen[e.ID] {
			return &ValidationError{
				Field:   fmt.Sprintf("engines[%d].id", i),
				Message: fmt.Sprintf("duplicate engine id: %s", e.ID),
			}
		}
		seen[e.ID] = true

		if e.Default {
			defaults++
		}

		for field, raw := range map[string]string{
			"secure_endpoint":   e.SecureEndpoint,
			"insecure_endpoint": e.InsecureEndpoint,
		} {
			if raw == "" {
				continue
			}
			if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("engines[%d].%s", i, field),
					Message: fmt.Sprintf("invalid endpoint URL: %s", raw),
				}
			}
		}
	}

	if defaults > 1 {
		return &ValidationError{
			Field:   "engines",
			Message: "at most one engine can be the default",
		}
	}

	return nil
}

func validateRateLimit(field string, cfg RateLimitConfig) error {
	if cfg.RPS <= 0 {
		return &ValidationError{
			Field:   field + ".rps",
			Message: "rps must be positive",
		}
	}
	if cfg.Burst < 1 {
		return &ValidationError{
			Field:   field + ".burst",
			Message: "burst must be at least 1",
		}
	}
	return nil
}
