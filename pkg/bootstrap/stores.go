package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"hitqueue/internal/config"
	"hitqueue/internal/constants"
	"hitqueue/internal/kvstore"
	"hitqueue/internal/logger"
	"hitqueue/internal/store"
	"hitqueue/pkg/retry"
)

type StoreConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewStoreConnector(cfg *config.Config, log logger.Logger) *StoreConnector {
	return &StoreConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis connects to Redis when the store type needs it. It returns a
// nil client for the other store types.
func (sc *StoreConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	if sc.Config.Store.Type != constants.StoreTypeRedis {
		return nil, nil
	}

	rc := sc.Config.Store.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", rc.Host, rc.Port),
		Password: rc.Password,
		DB:       rc.DB,
	})

	err := retry.RetryWithCallback(ctx, retry.DefaultPolicy(), func() error {
		return rdb.Ping(ctx).Err()
	}, func(attempt int, err error, nextDelay time.Duration) {
		sc.Logger.Warnw("Redis not reachable, retrying",
			"attempt", attempt,
			"error", err,
			"next_delay", nextDelay,
		)
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	sc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

// QueueStore builds the configured queue store, wrapped in a circuit
// breaker when enabled.
func (sc *StoreConnector) QueueStore(rdb *redis.Client) (store.QueueStore, error) {
	cfg := sc.Config.Store

	var st store.QueueStore
	switch cfg.Type {
	case constants.StoreTypeFS:
		fs, err := store.NewFSStore(filepath.Join(cfg.FS.Dir, "queue"), sc.Logger)
		if err != nil {
			return nil, err
		}
		st = fs
	case constants.StoreTypeRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		st = store.NewRedisStore(rdb, sc.Logger)
	default:
		st = store.NewMemoryStore(cfg.JanitorInterval, sc.Logger)
	}

	if sc.Config.CircuitBreaker.Enabled {
		sc.Logger.Info("Circuit breaker enabled for queue store")
	}
	return store.NewCircuitBreakerStore(st, "queue-store-"+cfg.Type, sc.Config.CircuitBreaker), nil
}

// KVStore builds the client ID store next to the queue store.
func (sc *StoreConnector) KVStore(rdb *redis.Client) (kvstore.KeyValueStore, error) {
	switch sc.Config.Store.Type {
	case constants.StoreTypeFS:
		return kvstore.NewFS(filepath.Join(sc.Config.Store.FS.Dir, "kvstore"))
	case constants.StoreTypeRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis kvstore requires a redis client")
		}
		return kvstore.NewRedis(rdb), nil
	default:
		return &kvstore.Memory{}, nil
	}
}

func (sc *StoreConnector) Shutdown(rdb *redis.Client) []error {
	var errs []error
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}
	return errs
}
