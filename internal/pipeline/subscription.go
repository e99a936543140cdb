package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"hitqueue/internal/request"
	apperrors "hitqueue/pkg/errors"
	"hitqueue/pkg/logging"
	"hitqueue/pkg/metrics"
)

type Subscription struct {
	name      string
	predicate Predicate
	handler   HandlerFunc
	p         *Pipeline

	mu     sync.Mutex
	queue  []*request.Prepared
	notify chan struct{}

	cancel context.CancelFunc
	group  *errgroup.Group
	once   sync.Once
}

func newSubscription(p *Pipeline, name string, predicate Predicate, handler HandlerFunc) *Subscription {
	return &Subscription{
		name:      name,
		predicate: predicate,
		handler:   handler,
		p:         p,
		notify:    make(chan struct{}, 1),
	}
}

func (s *Subscription) Name() string {
	return s.name
}

// Len returns the number of queued requests not yet picked up by a
// worker.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) start(parent context.Context, workers int) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		s.group.Go(func() error {
			s.work(ctx)
			return nil
		})
	}
}

func (s *Subscription) enqueue(r *request.Prepared) bool {
	var dropped *request.Prepared

	s.mu.Lock()
	if limit := s.p.opts.BufferSize; limit > 0 && len(s.queue) >= limit {
		dropped = s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, r)
	s.mu.Unlock()

	s.signal()

	if dropped != nil {
		metrics.IncPipelineDropped(s.name)
		s.p.logger.Warnw("Pipeline buffer full, dropped oldest request",
			"subscription", s.name,
			"request_id", dropped.ID,
			"engine_id", dropped.EngineID,
		)
		s.p.Release(dropped.ID)
	}
	return true
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (*request.Prepared, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, false
	}
	r := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	if len(s.queue) > 0 {
		s.signal()
	}
	return r, true
}

func (s *Subscription) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}

		for {
			if ctx.Err() != nil {
				return
			}
			r, ok := s.next()
			if !ok {
				break
			}
			s.handle(ctx, r)
		}
	}
}

func (s *Subscription) handle(ctx context.Context, r *request.Prepared) {
	ctx = logging.WithEngineID(ctx, r.EngineID)
	ctx = logging.WithRequestID(ctx, r.ID)

	err := apperrors.Guard(func() error {
		s.handler(ctx, r)
		return nil
	})
	if err != nil {
		s.p.logger.ErrorwCtx(ctx, "Dispatch handler panicked",
			"subscription", s.name,
			"error", err,
		)
	}
}

// Close removes the subscription from the pipeline and waits for its
// workers to return.
func (s *Subscription) Close() error {
	s.p.unsubscribe(s)
	return s.wait()
}

func (s *Subscription) wait() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.group.Wait()
	})
	return err
}
