// Package pipeline is the in-process broadcast channel that carries
// prepared requests from engines to their dispatch workers. It also
// tracks the working set of requests currently owned by this process.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"hitqueue/internal/logger"
	"hitqueue/internal/request"
	"hitqueue/pkg/metrics"
)

var ErrClosed = errors.New("pipeline is closed")

type HandlerFunc func(ctx context.Context, r *request.Prepared)

type Predicate func(r *request.Prepared) bool

// ForEngine matches requests owned by the engine with the given ID.
func ForEngine(engineID string) Predicate {
	return func(r *request.Prepared) bool {
		return r.EngineID == engineID
	}
}

type Options struct {
	// BufferSize bounds every subscription queue. Zero means unbounded.
	// When full, the oldest queued request is dropped.
	BufferSize int
}

type Pipeline struct {
	opts   Options
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	subs   []*Subscription
	closed bool

	liveMu  sync.Mutex
	live    map[string]struct{}
	drained chan struct{}
}

func New(opts Options, log logger.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		opts:   opts,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
		live:   make(map[string]struct{}),
	}
}

// Publish hands r to every subscription whose predicate matches and
// returns how many accepted it. It never blocks on handlers.
func (p *Pipeline) Publish(r *request.Prepared) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0
	}

	delivered := 0
	for _, s := range p.subs {
		if s.predicate(r) && s.enqueue(r) {
			delivered++
		}
	}
	return delivered
}

// Subscribe registers handler for requests matching predicate. The
// handler runs on workers goroutines owned by the subscription.
func (p *Pipeline) Subscribe(name string, predicate Predicate, handler HandlerFunc, workers int) (*Subscription, error) {
	if workers < 1 {
		workers = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	s := newSubscription(p, name, predicate, handler)
	s.start(p.ctx, workers)
	p.subs = append(p.subs, s)

	p.logger.Debugw("Subscription started", "subscription", name, "workers", workers)
	return s, nil
}

func (p *Pipeline) unsubscribe(s *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, sub := range p.subs {
		if sub == s {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			return
		}
	}
}

// Acquire marks id as owned by this process. It reports false when the
// request is already live.
func (p *Pipeline) Acquire(id string) bool {
	p.liveMu.Lock()
	defer p.liveMu.Unlock()

	if _, ok := p.live[id]; ok {
		return false
	}
	p.live[id] = struct{}{}
	metrics.SetLiveRequests(len(p.live))
	return true
}

// Release drops id from the working set. Releasing an absent id is a
// no-op.
func (p *Pipeline) Release(id string) {
	p.liveMu.Lock()
	defer p.liveMu.Unlock()

	if _, ok := p.live[id]; !ok {
		return
	}
	delete(p.live, id)
	metrics.SetLiveRequests(len(p.live))

	if len(p.live) == 0 && p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
}

func (p *Pipeline) IsLive(id string) bool {
	p.liveMu.Lock()
	defer p.liveMu.Unlock()
	_, ok := p.live[id]
	return ok
}

func (p *Pipeline) LiveCount() int {
	p.liveMu.Lock()
	defer p.liveMu.Unlock()
	return len(p.live)
}

// Wait blocks until the working set is empty or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	p.liveMu.Lock()
	if len(p.live) == 0 {
		p.liveMu.Unlock()
		return nil
	}
	if p.drained == nil {
		p.drained = make(chan struct{})
	}
	drained := p.drained
	p.liveMu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting requests and waits for running handlers to
// return. Queued requests are abandoned; persisted ones are picked up
// by the next recovery.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	p.cancel()

	var errs []error
	for _, s := range subs {
		if err := s.wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
