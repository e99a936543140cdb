package store

import (
	"context"
	"iter"
	"sync"
	"time"

	"hitqueue/internal/logger"
	"hitqueue/internal/request"
	"hitqueue/pkg/metrics"
)

const backendMemory = "memory"

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps encoded records in a map. It does not survive a
// restart and is meant for tests and short lived processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     clock
	logger  logger.Logger
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a store. When janitorInterval is positive a
// goroutine evicts expired entries at that interval until Close.
func NewMemoryStore(janitorInterval time.Duration, log logger.Logger) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		logger:  log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor(janitorInterval)
	} else {
		close(s.done)
	}

	return s
}

func (s *MemoryStore) Put(ctx context.Context, r *request.Prepared, expiresAt time.Time) error {
	data, err := request.Encode(r, expiresAt)
	metrics.IncStoreOperation(backendMemory, "put", err)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[r.ID] = memoryEntry{data: data, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	metrics.IncStoreOperation(backendMemory, "remove", nil)
	return nil
}

func (s *MemoryStore) All(ctx context.Context) iter.Seq[*request.Prepared] {
	return func(yield func(*request.Prepared) bool) {
		s.mu.RLock()
		snapshot := make([]memoryEntry, 0, len(s.entries))
		for _, e := range s.entries {
			snapshot = append(snapshot, e)
		}
		s.mu.RUnlock()

		now := s.now()
		for _, e := range snapshot {
			if ctx.Err() != nil {
				return
			}
			if !now.Before(e.expiresAt) {
				continue
			}
			r, _, err := request.Decode(e.data)
			if err != nil {
				metrics.IncStoreCorrupt(backendMemory)
				s.logger.Warnw("Skipping undecodable queue entry", "backend", backendMemory, "error", err)
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// Len returns the number of entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Evict removes expired entries and returns how many were removed.
func (s *MemoryStore) Evict() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				s.logger.Debugw("Evicted expired queue entries", "backend", backendMemory, "count", n)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
