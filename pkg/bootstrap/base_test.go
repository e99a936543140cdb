package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitqueue/internal/config"
	"hitqueue/internal/constants"
	"hitqueue/internal/kvstore"
	"hitqueue/internal/logger"
	"hitqueue/internal/store"
)

func testConfig(storeType, dir string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			Type:    storeType,
			FS:      config.FSConfig{Dir: dir},
			Timeout: time.Second,
		},
		Tracking: config.TrackingConfig{
			QueueLifeSpan: time.Hour,
			RetryInterval: time.Second,
			Workers:       1,
			HTTPTimeout:   time.Second,
		},
		Engines: []config.EngineConfig{
			{ID: "UA-1"},
			{ID: "UA-2", Default: true, SecureEndpoint: "https://collector.example.com/collect"},
		},
	}
}

func TestInitRegistryMemory(t *testing.T) {
	b := NewBase(testConfig(constants.StoreTypeMemory, ""), logger.NopLogger())
	require.NoError(t, b.InitRegistry(context.Background()))
	t.Cleanup(func() { _ = b.Shutdown(context.Background(), nil) })

	assert.Nil(t, b.Redis)
	assert.IsType(t, &store.MemoryStore{}, b.Store)
	assert.Equal(t, []string{"UA-1", "UA-2"}, b.Registry.Engines())

	def, err := b.Registry.Default()
	require.NoError(t, err)
	assert.Equal(t, "UA-2", def.ID())
}

func TestInitRegistryFS(t *testing.T) {
	dir := t.TempDir()
	b := NewBase(testConfig(constants.StoreTypeFS, dir), logger.NopLogger())
	require.NoError(t, b.InitRegistry(context.Background()))
	t.Cleanup(func() { _ = b.Shutdown(context.Background(), nil) })

	assert.IsType(t, &store.FSStore{}, b.Store)
	assert.DirExists(t, dir+"/queue")
	assert.DirExists(t, dir+"/kvstore")
}

func TestInitRegistryWrapsCircuitBreaker(t *testing.T) {
	cfg := testConfig(constants.StoreTypeMemory, "")
	cfg.CircuitBreaker = config.CircuitBreakerConfig{Enabled: true}

	b := NewBase(cfg, logger.NopLogger())
	require.NoError(t, b.InitRegistry(context.Background()))
	t.Cleanup(func() { _ = b.Shutdown(context.Background(), nil) })

	assert.IsType(t, &store.CircuitBreakerStore{}, b.Store)
}

func TestKVStoreByType(t *testing.T) {
	sc := NewStoreConnector(testConfig(constants.StoreTypeMemory, ""), logger.NopLogger())
	kv, err := sc.KVStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &kvstore.Memory{}, kv)

	sc = NewStoreConnector(testConfig(constants.StoreTypeRedis, ""), logger.NopLogger())
	_, err = sc.KVStore(nil)
	assert.Error(t, err)
}

func TestHealthCheckersIncludeStore(t *testing.T) {
	b := NewBase(testConfig(constants.StoreTypeMemory, ""), logger.NopLogger())
	require.NoError(t, b.InitRegistry(context.Background()))
	t.Cleanup(func() { _ = b.Shutdown(context.Background(), nil) })

	h := b.HealthCheckers().Check(context.Background())
	assert.Contains(t, h.Checks, "queue_store")
}

func TestShutdownRunsAdditional(t *testing.T) {
	b := NewBase(testConfig(constants.StoreTypeMemory, ""), logger.NopLogger())
	require.NoError(t, b.InitRegistry(context.Background()))

	called := false
	err := b.Shutdown(context.Background(), func(context.Context) []error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
