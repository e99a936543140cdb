// Package store persists prepared requests between process runs.
//
// Every backend maps a request ID to its encoded record together with an
// expiry instant. Expired entries are never returned by All and are
// evicted by the backend in its own way: a janitor for the in-memory
// store, removal on scan for the filesystem store, native key expiry for
// Redis. Entries that fail to decode are logged and skipped so that a
// single bad record does not block recovery of the rest.
package store

import (
	"context"
	"iter"
	"time"

	"hitqueue/internal/request"
)

type QueueStore interface {
	// Put inserts or overwrites the entry for r.ID.
	Put(ctx context.Context, r *request.Prepared, expiresAt time.Time) error
	// Remove deletes the entry for id. Removing a missing id is not an error.
	Remove(ctx context.Context, id string) error
	// All yields every non-expired entry. Each call rereads the backend.
	All(ctx context.Context) iter.Seq[*request.Prepared]
	Close() error
}

// Pinger is implemented by stores that can report their availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type clock func() time.Time
