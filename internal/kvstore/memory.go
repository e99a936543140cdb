package kvstore

import (
	"context"
	"sync"
)

// Memory is an in-memory key-value store. The zero value is ready to use.
type Memory struct {
	m  map[string][]byte
	mu sync.Mutex
}

var _ KeyValueStore = &Memory{}

func (kvs *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	kvs.mu.Lock()
	defer kvs.mu.Unlock()
	value, ok := kvs.m[key]
	if !ok {
		return nil, ErrNoSuchKey
	}
	return value, nil
}

func (kvs *Memory) Set(ctx context.Context, key string, value []byte) error {
	kvs.mu.Lock()
	defer kvs.mu.Unlock()
	if kvs.m == nil {
		kvs.m = make(map[string][]byte)
	}
	kvs.m[key] = append([]byte(nil), value...)
	return nil
}
