package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hitqueue/internal/constants"
	"hitqueue/internal/dispatch"
	"hitqueue/internal/kvstore"
	"hitqueue/internal/logger"
	"hitqueue/internal/pipeline"
	"hitqueue/internal/recovery"
	"hitqueue/internal/request"
	"hitqueue/internal/store"
	apperrors "hitqueue/pkg/errors"
)

type RegistryConfig struct {
	Store      store.QueueStore
	KV         kvstore.KeyValueStore
	Finalizers *request.Finalizers
	// Defaults apply to every engine before its own options. A zero value
	// means DefaultOptions(). Otherwise zero durations, workers and
	// protocol are filled in from DefaultOptions(), but Secure is taken as
	// given: start from DefaultOptions() to change single fields.
	Defaults     Options
	BufferSize   int
	StoreTimeout time.Duration
}

// Registry owns the shared pipeline and queue store and creates at most
// one Engine per engine ID.
type Registry struct {
	store        store.QueueStore
	kv           kvstore.KeyValueStore
	finalizers   *request.Finalizers
	defaults     Options
	storeTimeout time.Duration
	pipeline     *pipeline.Pipeline
	loader       *recovery.Loader
	logger       logger.Logger

	mu        sync.Mutex
	engines   map[string]*Engine
	deferred  map[string]map[string]*request.Prepared
	defaultID string
	closed    bool
}

func NewRegistry(cfg RegistryConfig, log logger.Logger) *Registry {
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore(constants.DefaultJanitorInterval, log)
	}
	if cfg.KV == nil {
		cfg.KV = &kvstore.Memory{}
	}
	if cfg.Finalizers == nil {
		cfg.Finalizers = request.DefaultFinalizers()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = constants.DefaultStoreTimeout
	}
	if cfg.Defaults == (Options{}) {
		cfg.Defaults = DefaultOptions()
	}
	cfg.Defaults.normalize()

	r := &Registry{
		store:        cfg.Store,
		kv:           cfg.KV,
		finalizers:   cfg.Finalizers,
		defaults:     cfg.Defaults,
		storeTimeout: cfg.StoreTimeout,
		pipeline:     pipeline.New(pipeline.Options{BufferSize: cfg.BufferSize}, log),
		logger:       log,
		engines:      make(map[string]*Engine),
		deferred:     make(map[string]map[string]*request.Prepared),
	}
	r.loader = recovery.NewLoader(r.store, r.pipeline, r, log)
	return r
}

// Engine returns the engine for id, creating it on first use. Options
// only take effect on the call that creates the engine.
func (r *Registry) Engine(id string, opts ...Option) (*Engine, error) {
	if id == "" {
		return nil, apperrors.ErrConfiguration.WithMessage("engine id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, apperrors.ErrConfiguration.WithMessage("registry is shut down")
	}
	if e, ok := r.engines[id]; ok {
		return e, nil
	}

	e, err := r.newEngine(id, opts)
	if err != nil {
		return nil, err
	}
	r.engines[id] = e

	if pending := r.deferred[id]; len(pending) > 0 {
		delete(r.deferred, id)
		resumed := 0
		for _, req := range pending {
			if e.resume(req) {
				resumed++
			}
		}
		r.logger.Infow("Resumed deferred hits", "engine_id", id, "count", resumed)
	}

	return e, nil
}

func (r *Registry) newEngine(id string, opts []Option) (*Engine, error) {
	o := r.defaults
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()

	e := &Engine{
		id:       id,
		registry: r,
		opts:     o,
		secure:   o.Secure,
		logger:   r.logger,
	}

	e.dispatcher = dispatch.New(dispatch.Config{
		EngineID:      id,
		QueueLifeSpan: o.QueueLifeSpan,
		RetryInterval: o.RetryInterval,
		StoreTimeout:  r.storeTimeout,
	}, r.store, r.pipeline, dispatch.SenderFunc(e.send), r.finalizers, e.logger)

	sub, err := r.pipeline.Subscribe(id, pipeline.ForEngine(id), e.dispatcher.Handle, o.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe engine %s: %w", id, err)
	}
	e.subscription = sub
	return e, nil
}

// Lookup returns an existing engine without creating one.
func (r *Registry) Lookup(id string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[id]
	return e, ok
}

// Engines returns the IDs of all created engines, sorted.
func (r *Registry) Engines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) SetDefault(e *Engine) error {
	if err := e.registered(); err != nil {
		return err
	}
	if e.registry != r {
		return apperrors.ErrConfiguration.WithMessage("engine belongs to another registry")
	}

	r.mu.Lock()
	r.defaultID = e.id
	r.mu.Unlock()
	return nil
}

func (r *Registry) Default() (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.engines[r.defaultID]
	if !ok {
		return nil, apperrors.ErrConfiguration.WithMessage("no default engine")
	}
	return e, nil
}

// Resume implements recovery.Resumer. Requests for engines that do not
// exist yet are held until the engine is created.
func (r *Registry) Resume(req *request.Prepared) recovery.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[req.EngineID]; ok {
		if e.resume(req) {
			return recovery.Resumed
		}
		return recovery.Skipped
	}

	pending, ok := r.deferred[req.EngineID]
	if !ok {
		pending = make(map[string]*request.Prepared)
		r.deferred[req.EngineID] = pending
	}
	pending[req.ID] = req
	return recovery.Deferred
}

// DeferredCount returns the number of recovered hits waiting for their
// engine.
func (r *Registry) DeferredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, pending := range r.deferred {
		n += len(pending)
	}
	return n
}

// ProcessStoredRequests resumes every stored hit that is not already in
// flight. It is safe to call more than once.
func (r *Registry) ProcessStoredRequests(ctx context.Context) (recovery.Result, error) {
	return r.loader.Load(ctx)
}

// WaitForPending blocks until every live hit reached a terminal state.
// It returns context.DeadlineExceeded when timeout elapses first.
func (r *Registry) WaitForPending(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return r.pipeline.Wait(ctx)
}

// Shutdown stops every engine, the pipeline and the queue store. Hits
// still pending stay in the store for the next run. When ctx ends before
// the engines stopped, the store is closed anyway and ctx.Err() is
// returned with any close error.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.Unlock()

	stopped := make(chan error, 1)
	go func() {
		var errs []error
		for _, e := range engines {
			if err := e.stop(); err != nil {
				errs = append(errs, fmt.Errorf("engine %s: %w", e.id, err))
			}
		}
		if err := r.pipeline.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pipeline: %w", err))
		}
		stopped <- errors.Join(errs...)
	}()

	var errs []error
	select {
	case err := <-stopped:
		errs = append(errs, err)
	case <-ctx.Done():
		r.logger.Warnw("Shutdown deadline reached before engines stopped, closing queue store")
		errs = append(errs, ctx.Err())
	}

	if err := r.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("queue store: %w", err))
	}
	return errors.Join(errs...)
}
