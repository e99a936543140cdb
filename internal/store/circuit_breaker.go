package store

import (
	"context"
	"fmt"
	"iter"
	"time"

	"hitqueue/internal/config"
	"hitqueue/internal/request"
	"hitqueue/pkg/circuitbreaker"
)

// CircuitBreakerStore stops hammering a failing backend. While the
// breaker is open writes fail fast; the dispatcher still sends the
// request once, as it does for any persistence failure.
type CircuitBreakerStore struct {
	store QueueStore
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store QueueStore, name string, cfg config.CircuitBreakerConfig) QueueStore {
	if !cfg.Enabled {
		return store
	}

	return &CircuitBreakerStore{
		store: store,
		cb: circuitbreaker.NewWrapper(circuitbreaker.Settings(
			name, cfg.MaxRequests, cfg.Interval, cfg.Timeout, cfg.FailureRatio, cfg.MinRequests,
		)),
	}
}

func (s *CircuitBreakerStore) Put(ctx context.Context, r *request.Prepared, expiresAt time.Time) error {
	_, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return nil, s.store.Put(ctx, r, expiresAt)
	})
	return s.wrap(err)
}

func (s *CircuitBreakerStore) Remove(ctx context.Context, id string) error {
	_, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return nil, s.store.Remove(ctx, id)
	})
	return s.wrap(err)
}

func (s *CircuitBreakerStore) All(ctx context.Context) iter.Seq[*request.Prepared] {
	return s.store.All(ctx)
}

func (s *CircuitBreakerStore) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *CircuitBreakerStore) Close() error {
	return s.store.Close()
}

func (s *CircuitBreakerStore) wrap(err error) error {
	if err != nil && s.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for %s: %w", s.cb.Name(), err)
	}
	return err
}
