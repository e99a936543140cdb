package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"hitqueue/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("store.type", constants.StoreTypeMemory)
	v.SetDefault("store.timeout", constants.DefaultStoreTimeout)
	v.SetDefault("store.janitor_interval", constants.DefaultJanitorInterval)
	v.SetDefault("store.redis.port", 6379)

	v.SetDefault("tracking.queue_life_span", constants.DefaultQueueLifeSpan)
	v.SetDefault("tracking.retry_interval", constants.DefaultRetryInterval)
	v.SetDefault("tracking.workers", constants.DefaultWorkers)
	v.SetDefault("tracking.http_timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("tracking.secure", true)

	v.SetDefault("collector.enabled", true)
	v.SetDefault("collector.rate_limit.rps", 10.0)
	v.SetDefault("collector.rate_limit.burst", 20)
	v.SetDefault("collector.rate_limit.cleanup_interval", "5m")
	v.SetDefault("collector.rate_limit.max_age", "10m")
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("store.type", "STORE_TYPE")
	v.BindEnv("store.fs.dir", "STORE_FS_DIR")
	v.BindEnv("store.redis.host", "STORE_REDIS_HOST")
	v.BindEnv("store.redis.port", "STORE_REDIS_PORT")
	v.BindEnv("store.redis.password", "STORE_REDIS_PASSWORD")
	v.BindEnv("store.redis.db", "STORE_REDIS_DB")

	v.BindEnv("tracking.queue_life_span", "TRACKING_QUEUE_LIFE_SPAN")
	v.BindEnv("tracking.retry_interval", "TRACKING_RETRY_INTERVAL")
	v.BindEnv("tracking.workers", "TRACKING_WORKERS")
	v.BindEnv("tracking.secure", "TRACKING_SECURE")

	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
}
