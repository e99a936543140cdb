package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitqueue/internal/constants"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := Load("testdata/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, constants.StoreTypeFS, cfg.Store.Type)
	assert.Equal(t, "/var/lib/hitqueue", cfg.Store.FS.Dir)
	assert.Equal(t, 48*time.Hour, cfg.Tracking.QueueLifeSpan)
	assert.Equal(t, 30*time.Second, cfg.Tracking.RetryInterval)
	assert.Equal(t, 2, cfg.Tracking.Workers)
	assert.True(t, cfg.Tracking.Secure)
	assert.Equal(t, constants.DefaultHTTPTimeout, cfg.Tracking.HTTPTimeout)

	require.Len(t, cfg.Engines, 2)
	assert.True(t, cfg.Engines[0].Default)
	assert.Equal(t, "https://collector.example.com/collect", cfg.Engines[1].SecureEndpoint)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, constants.StoreTypeMemory, cfg.Store.Type)
	assert.Equal(t, constants.DefaultQueueLifeSpan, cfg.Tracking.QueueLifeSpan)
	assert.Equal(t, constants.DefaultRetryInterval, cfg.Tracking.RetryInterval)
	assert.Equal(t, constants.DefaultWorkers, cfg.Tracking.Workers)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TRACKING_RETRY_INTERVAL", "5s")
	t.Setenv("STORE_TYPE", "redis")
	t.Setenv("STORE_REDIS_HOST", "cache.local")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Tracking.RetryInterval)
	assert.Equal(t, "cache.local", cfg.Store.Redis.Host)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8089},
		Store:  StoreConfig{Type: constants.StoreTypeMemory},
		Tracking: TrackingConfig{
			QueueLifeSpan: time.Hour,
			RetryInterval: time.Second,
			Workers:       1,
			HTTPTimeout:   time.Second,
		},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown store", func(c *Config) { c.Store.Type = "sqlite" }, "store.type"},
		{"fs without dir", func(c *Config) { c.Store.Type = constants.StoreTypeFS }, "store.fs.dir"},
		{"redis without host", func(c *Config) { c.Store.Type = constants.StoreTypeRedis; c.Store.Redis.Port = 6379 }, "store.redis.host"},
		{"zero life span", func(c *Config) { c.Tracking.QueueLifeSpan = 0 }, "tracking.queue_life_span"},
		{"zero retry interval", func(c *Config) { c.Tracking.RetryInterval = 0 }, "tracking.retry_interval"},
		{"no workers", func(c *Config) { c.Tracking.Workers = 0 }, "tracking.workers"},
		{"negative buffer", func(c *Config) { c.Tracking.BufferSize = -1 }, "tracking.buffer_size"},
		{"engine without id", func(c *Config) { c.Engines = []EngineConfig{{}} }, "engines[0].id"},
		{"duplicate engine", func(c *Config) { c.Engines = []EngineConfig{{ID: "a"}, {ID: "a"}} }, "engines[1].id"},
		{"two defaults", func(c *Config) {
			c.Engines = []EngineConfig{{ID: "a", Default: true}, {ID: "b", Default: true}}
		}, "engines"},
		{"bad endpoint", func(c *Config) {
			c.Engines = []EngineConfig{{ID: "a", SecureEndpoint: "not a url"}}
		}, "engines[0].secure_endpoint"},
		{"rate limit without rps", func(c *Config) { c.Tracking.RateLimit.Enabled = true }, "tracking.rate_limit.rps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantErr, verr.Field)
		})
	}
}
