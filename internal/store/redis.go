package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"

	"hitqueue/internal/constants"
	"hitqueue/internal/logger"
	"hitqueue/internal/request"
	"hitqueue/pkg/metrics"
)

const backendRedis = "redis"

// RedisStore keeps each record under its own key with a native expiry,
// so Redis evicts stale entries on its own.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    clock
	logger logger.Logger
}

func NewRedisStore(client *redis.Client, log logger.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: constants.KeyPrefixRequest,
		now:    time.Now,
		logger: log,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Put(ctx context.Context, r *request.Prepared, expiresAt time.Time) error {
	err := s.put(ctx, r, expiresAt)
	metrics.IncStoreOperation(backendRedis, "put", err)
	return err
}

func (s *RedisStore) put(ctx context.Context, r *request.Prepared, expiresAt time.Time) error {
	if !s.now().Before(expiresAt) {
		return s.client.Del(ctx, s.key(r.ID)).Err()
	}

	data, err := request.Encode(r, expiresAt)
	if err != nil {
		return err
	}

	if err := s.client.SetArgs(ctx, s.key(r.ID), data, redis.SetArgs{ExpireAt: expiresAt}).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	err := s.client.Del(ctx, s.key(id)).Err()
	metrics.IncStoreOperation(backendRedis, "remove", err)
	if err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) iter.Seq[*request.Prepared] {
	return func(yield func(*request.Prepared) bool) {
		it := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
		now := s.now()

		for it.Next(ctx) {
			key := it.Val()
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				s.logger.Warnw("Failed to read queue entry", "key", key, "error", err)
				continue
			}

			r, expiresAt, err := request.Decode(data)
			if err != nil {
				metrics.IncStoreCorrupt(backendRedis)
				s.logger.Warnw("Skipping undecodable queue entry", "backend", backendRedis, "key", key, "error", err)
				continue
			}
			if !now.Before(expiresAt) {
				continue
			}

			if !yield(r) {
				return
			}
		}

		err := it.Err()
		metrics.IncStoreOperation(backendRedis, "scan", err)
		if err != nil {
			s.logger.Errorw("Redis scan failed", "error", err)
		}
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close leaves the client open; it is owned by whoever created it.
func (s *RedisStore) Close() error {
	return nil
}
