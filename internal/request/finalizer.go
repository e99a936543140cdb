package request

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
)

const (
	FinalizerQueueTime   = "queue_time"
	FinalizerCacheBuster = "cache_buster"
)

// FinalizerFunc mutates a payload right before it is transmitted. It must
// derive any time based value from createdAt so that running it again on
// a later attempt yields the value for that attempt, not an accumulation.
type FinalizerFunc func(p *Payload, createdAt, now time.Time) error

// Finalizers maps finalizer names to functions. Requests reference
// finalizers by name so that they survive a round trip through the queue
// store.
type Finalizers struct {
	mu    sync.RWMutex
	funcs map[string]FinalizerFunc
}

func NewFinalizers() *Finalizers {
	return &Finalizers{funcs: make(map[string]FinalizerFunc)}
}

// DefaultFinalizers returns a registry holding queue_time and cache_buster.
func DefaultFinalizers() *Finalizers {
	f := NewFinalizers()
	f.Register(FinalizerQueueTime, QueueTime("qt"))
	f.Register(FinalizerCacheBuster, CacheBuster("z"))
	return f
}

func (f *Finalizers) Register(name string, fn FinalizerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[name] = fn
}

func (f *Finalizers) Has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.funcs[name]
	return ok
}

func (f *Finalizers) lookup(name string) (FinalizerFunc, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.funcs[name]
	if !ok {
		return nil, fmt.Errorf("unknown finalizer %q", name)
	}
	return fn, nil
}

// QueueTime sets param to the milliseconds elapsed since the request was
// created.
func QueueTime(param string) FinalizerFunc {
	return func(p *Payload, createdAt, now time.Time) error {
		elapsed := now.Sub(createdAt)
		if elapsed < 0 {
			elapsed = 0
		}
		p.Set(param, strconv.FormatInt(elapsed.Milliseconds(), 10))
		return nil
	}
}

// CacheBuster sets param to a fresh random number.
func CacheBuster(param string) FinalizerFunc {
	return func(p *Payload, _, _ time.Time) error {
		p.Set(param, strconv.FormatUint(uint64(rand.Uint32()), 10))
		return nil
	}
}
