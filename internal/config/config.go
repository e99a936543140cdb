package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Store          StoreConfig          `mapstructure:"store"`
	Tracking       TrackingConfig       `mapstructure:"tracking"`
	Engines        []EngineConfig       `mapstructure:"engines"`
	Collector      CollectorConfig      `mapstructure:"collector"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Type            string        `mapstructure:"type"`
	FS              FSConfig      `mapstructure:"fs"`
	Redis           RedisConfig   `mapstructure:"redis"`
	Timeout         time.Duration `mapstructure:"timeout"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

type FSConfig struct {
	Dir string `mapstructure:"dir"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TrackingConfig holds the defaults applied to every engine.
type TrackingConfig struct {
	QueueLifeSpan time.Duration   `mapstructure:"queue_life_span"`
	RetryInterval time.Duration   `mapstructure:"retry_interval"`
	Workers       int             `mapstructure:"workers"`
	BufferSize    int             `mapstructure:"buffer_size"`
	HTTPTimeout   time.Duration   `mapstructure:"http_timeout"`
	Secure        bool            `mapstructure:"secure"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

type EngineConfig struct {
	ID               string `mapstructure:"id"`
	Default          bool   `mapstructure:"default"`
	SecureEndpoint   string `mapstructure:"secure_endpoint"`
	InsecureEndpoint string `mapstructure:"insecure_endpoint"`
}

type CollectorConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
