package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hitqueue/internal/config"
	"hitqueue/internal/engine"
	"hitqueue/internal/logger"
	"hitqueue/internal/store"
	"hitqueue/pkg/health"
)

// Base holds what every command needs: configuration, logging, the
// stores and the engine registry built from them.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Redis    *redis.Client
	Store    store.QueueStore
	Registry *engine.Registry

	connector *StoreConnector
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config:    cfg,
		Logger:    log,
		connector: NewStoreConnector(cfg, log),
	}
}

// InitRegistry connects the stores and creates every configured engine.
func (b *Base) InitRegistry(ctx context.Context) error {
	rdb, err := b.connector.InitRedis(ctx)
	if err != nil {
		return err
	}
	b.Redis = rdb

	st, err := b.connector.QueueStore(rdb)
	if err != nil {
		return fmt.Errorf("failed to create queue store: %w", err)
	}
	b.Store = st

	kv, err := b.connector.KVStore(rdb)
	if err != nil {
		return fmt.Errorf("failed to create client id store: %w", err)
	}

	b.Registry = engine.NewRegistry(engine.RegistryConfig{
		Store:        st,
		KV:           kv,
		Defaults:     engine.OptionsFromConfig(b.Config.Tracking, b.Config.CircuitBreaker),
		BufferSize:   b.Config.Tracking.BufferSize,
		StoreTimeout: b.Config.Store.Timeout,
	}, b.Logger)

	for _, ec := range b.Config.Engines {
		e, err := b.Registry.Engine(ec.ID, engine.WithEndpoints(ec.SecureEndpoint, ec.InsecureEndpoint))
		if err != nil {
			return fmt.Errorf("failed to create engine %s: %w", ec.ID, err)
		}
		if ec.Default || len(b.Config.Engines) == 1 {
			if err := b.Registry.SetDefault(e); err != nil {
				return err
			}
		}
	}

	b.Logger.Infow("Engine registry initialized",
		"store", b.Config.Store.Type,
		"engines", b.Registry.Engines(),
	)
	return nil
}

// HealthCheckers returns checks for the stores in use.
func (b *Base) HealthCheckers() *health.CheckerRegistry {
	checks := health.NewCheckerRegistry()
	if b.Redis != nil {
		checks.Register(health.NewRedisChecker(b.Redis))
	}
	if p, ok := b.Store.(store.Pinger); ok {
		checks.Register(health.NewPingChecker("queue_store", p))
	}
	return checks
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if b.Registry != nil {
		if err := b.Registry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("registry shutdown error: %w", err))
		}
	}

	errs = append(errs, b.connector.Shutdown(b.Redis)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
