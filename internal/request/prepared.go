// Package request holds the prepared hit that flows through the queue:
// an immutable value with an ID, its owning engine, the wire payload and
// the names of the finalizers to run right before each transmission.
package request

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Prepared struct {
	ID         string
	EngineID   string
	Payload    Payload
	Finalizers []string
	CreatedAt  time.Time

	// Persisted is set once the durable write succeeded. It is not
	// serialized: everything read back from a store is persisted.
	Persisted bool
}

func New(engineID string, payload Payload, finalizers []string, createdAt time.Time) *Prepared {
	fin := make([]string, len(finalizers))
	copy(fin, finalizers)
	return &Prepared{
		ID:         uuid.NewString(),
		EngineID:   engineID,
		Payload:    payload.Clone(),
		Finalizers: fin,
		CreatedAt:  createdAt,
	}
}

// ExpiresAt is the instant after which the request must not be sent.
func (r *Prepared) ExpiresAt(lifeSpan time.Duration) time.Time {
	return r.CreatedAt.Add(lifeSpan)
}

func (r *Prepared) Expired(lifeSpan time.Duration, now time.Time) bool {
	return !now.Before(r.ExpiresAt(lifeSpan))
}

// Finalize returns the payload to transmit at now. The stored payload is
// left untouched, so every attempt starts from the state captured at
// creation.
func (r *Prepared) Finalize(registry *Finalizers, now time.Time) (Payload, error) {
	out := r.Payload.Clone()
	for _, name := range r.Finalizers {
		fn, err := registry.lookup(name)
		if err != nil {
			return Payload{}, err
		}
		if err := fn(&out, r.CreatedAt, now); err != nil {
			return Payload{}, fmt.Errorf("finalizer %s: %w", name, err)
		}
	}
	return out, nil
}
