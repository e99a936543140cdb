// Package dispatch runs one transmission attempt per pipeline delivery
// and decides what happens to the request afterwards: removal on
// success, fatal failure or expiry, and a delayed republish otherwise.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"hitqueue/internal/constants"
	"hitqueue/internal/logger"
	"hitqueue/internal/request"
	"hitqueue/internal/store"
	apperrors "hitqueue/pkg/errors"
	"hitqueue/pkg/metrics"
	"hitqueue/pkg/retry"
)

// Sender transmits a finalized payload.
type Sender interface {
	Send(ctx context.Context, payload request.Payload) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, payload request.Payload) error

func (f SenderFunc) Send(ctx context.Context, payload request.Payload) error {
	return f(ctx, payload)
}

// Pipeline is the part of the dispatch pipeline the dispatcher needs.
type Pipeline interface {
	Publish(r *request.Prepared) int
	Release(id string)
}

type Config struct {
	EngineID      string
	QueueLifeSpan time.Duration
	RetryInterval time.Duration
	StoreTimeout  time.Duration
}

type Dispatcher struct {
	cfg        Config
	store      store.QueueStore
	pipeline   Pipeline
	sender     Sender
	finalizers *request.Finalizers
	backoff    backoff.BackOff
	now        func() time.Time
	logger     logger.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func New(cfg Config, st store.QueueStore, p Pipeline, sender Sender, finalizers *request.Finalizers, log logger.Logger) *Dispatcher {
	if cfg.QueueLifeSpan <= 0 {
		cfg.QueueLifeSpan = constants.DefaultQueueLifeSpan
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = constants.DefaultRetryInterval
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = constants.DefaultStoreTimeout
	}
	if finalizers == nil {
		finalizers = request.DefaultFinalizers()
	}

	return &Dispatcher{
		cfg:        cfg,
		store:      st,
		pipeline:   p,
		sender:     sender,
		finalizers: finalizers,
		backoff:    retry.ConstantBackoff(cfg.RetryInterval),
		now:        time.Now,
		logger:     log,
		timers:     make(map[string]*time.Timer),
	}
}

// Handle is the pipeline handler for one delivery of r.
func (d *Dispatcher) Handle(ctx context.Context, r *request.Prepared) {
	if r.Expired(d.cfg.QueueLifeSpan, d.now()) {
		d.expire(ctx, r)
		return
	}

	var payload request.Payload
	err := apperrors.Guard(func() error {
		var ferr error
		payload, ferr = r.Finalize(d.finalizers, d.now())
		return ferr
	})
	if err != nil {
		d.discard(ctx, r, apperrors.ErrInternal.WithMessage("finalize failed").WithCause(err).AsFatal())
		return
	}

	if ctx.Err() != nil {
		// Shutting down; the stored copy is resumed by the next recovery.
		d.pipeline.Release(r.ID)
		return
	}

	start := d.now()
	// A panicking sender counts as a fatal failure.
	err = apperrors.Guard(func() error {
		return d.sender.Send(ctx, payload)
	})
	metrics.ObserveTransmissionDuration(d.cfg.EngineID, d.now().Sub(start))

	switch {
	case err == nil:
		d.complete(ctx, r, start)
	case apperrors.IsFatal(err):
		metrics.IncTransmission(d.cfg.EngineID, "fatal")
		d.discard(ctx, r, err)
	default:
		metrics.IncTransmission(d.cfg.EngineID, "failed")
		d.requeue(ctx, r, err)
	}
}

func (d *Dispatcher) complete(ctx context.Context, r *request.Prepared, sentAt time.Time) {
	metrics.IncTransmission(d.cfg.EngineID, "success")
	metrics.ObserveQueueTime(d.cfg.EngineID, sentAt.Sub(r.CreatedAt))

	d.remove(ctx, r)
	d.pipeline.Release(r.ID)
	d.logger.DebugwCtx(ctx, "Hit transmitted")
}

func (d *Dispatcher) discard(ctx context.Context, r *request.Prepared, err error) {
	d.logger.WarnwCtx(ctx, "Dropping hit after fatal failure", "error", err)
	d.remove(ctx, r)
	d.pipeline.Release(r.ID)
}

func (d *Dispatcher) expire(ctx context.Context, r *request.Prepared) {
	metrics.IncExpired(d.cfg.EngineID)
	d.remove(ctx, r)
	d.pipeline.Release(r.ID)
	d.logger.DebugwCtx(ctx, "Hit expired", "created_at", r.CreatedAt)
}

func (d *Dispatcher) requeue(ctx context.Context, r *request.Prepared, cause error) {
	if !r.Persisted {
		d.logger.WarnwCtx(ctx, "Dropping unpersisted hit after failed transmission", "error", cause)
		d.pipeline.Release(r.ID)
		return
	}

	delay := d.backoff.NextBackOff()
	if r.Expired(d.cfg.QueueLifeSpan, d.now().Add(delay)) {
		d.expire(ctx, r)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		d.pipeline.Release(r.ID)
		return
	}

	metrics.IncRetry(d.cfg.EngineID)
	d.logger.InfowCtx(ctx, "Hit transmission failed, retry scheduled",
		"error", cause,
		"retry_in", delay,
	)

	d.timers[r.ID] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, r.ID)
		stopped := d.stopped
		d.mu.Unlock()

		if stopped || d.pipeline.Publish(r) == 0 {
			d.pipeline.Release(r.ID)
		}
	})
}

func (d *Dispatcher) remove(ctx context.Context, r *request.Prepared) {
	if !r.Persisted {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.StoreTimeout)
	defer cancel()

	if err := d.store.Remove(ctx, r.ID); err != nil {
		d.logger.WarnwCtx(ctx, "Failed to remove hit from queue store", "error", err)
	}
}

// Pending returns the number of scheduled retries.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels scheduled retries. Their stored copies stay in the queue
// store for the next recovery.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for id, t := range d.timers {
		if t.Stop() {
			d.pipeline.Release(id)
		}
		delete(d.timers, id)
	}
}
