package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores values as plain Redis strings without expiry.
type Redis struct {
	client *redis.Client
}

var _ KeyValueStore = &Redis{}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (kvs *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := kvs.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSuchKey
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}
	return data, nil
}

func (kvs *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := kvs.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}
