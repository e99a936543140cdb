// Package kvstore is a small key-value store for values that must
// outlive the process, such as generated client IDs.
package kvstore

import (
	"context"
	"errors"
)

// ErrNoSuchKey indicates that there's no value for the given key.
var ErrNoSuchKey = errors.New("no such key")

// KeyValueStore is implemented by Memory, FS and Redis. Get returns an
// error wrapping ErrNoSuchKey when the key is absent.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
