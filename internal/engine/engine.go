// Package engine is the public tracking surface: engines build hits from
// modules, persist them and hand them to the dispatch pipeline. Engines
// are obtained from a Registry, one instance per engine ID.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"hitqueue/internal/constants"
	"hitqueue/internal/dispatch"
	"hitqueue/internal/kvstore"
	"hitqueue/internal/logger"
	"hitqueue/internal/pipeline"
	"hitqueue/internal/request"
	"hitqueue/internal/transport"
	apperrors "hitqueue/pkg/errors"
	"hitqueue/pkg/logging"
	"hitqueue/pkg/metrics"
)

// ErrUnregisteredEngine is returned by every method of an Engine that was
// not obtained from a Registry.
var ErrUnregisteredEngine = apperrors.ErrConfiguration.WithMessage("engine was not created by a registry")

type Engine struct {
	id       string
	registry *Registry
	opts     Options
	logger   logger.Logger

	dispatcher   *dispatch.Dispatcher
	subscription *pipeline.Subscription

	mu        sync.RWMutex
	secure    bool
	transport *transport.Client

	clientIDs singleflight.Group
}

func (e *Engine) ID() string {
	return e.id
}

func (e *Engine) registered() error {
	if e == nil || e.registry == nil {
		return ErrUnregisteredEngine
	}
	return nil
}

// Track builds one hit from app and modules, persists it and queues it
// for transmission. Only configuration errors are returned; delivery
// problems are logged.
func (e *Engine) Track(ctx context.Context, app Application, modules ...Module) error {
	if err := e.registered(); err != nil {
		return err
	}
	if err := validate(app, modules); err != nil {
		return err
	}

	ctx = logging.WithEngineID(ctx, e.id)

	clientID, err := e.ClientID(ctx, app)
	if err != nil {
		clientID = e.opts.Protocol.NewClientID()
		e.logger.WarnwCtx(ctx, "Client ID store unavailable, using a transient client ID", "error", err)
	}

	b := request.NewBuilder(e.endpoint())
	e.opts.Protocol.Base(b, e.id, clientID, app)
	for _, name := range e.opts.Protocol.Finalizers() {
		b.AddFinalizer(name)
	}

	for _, m := range modules {
		if err := e.apply(b, m); err != nil {
			return err
		}
	}

	r := b.Build(e.id, time.Now())
	ctx = logging.WithRequestID(ctx, r.ID)

	// Live before stored, so a concurrent recovery skips it.
	if !e.registry.pipeline.Acquire(r.ID) {
		e.logger.WarnwCtx(ctx, "Hit already live, not queued twice")
		return nil
	}
	e.persist(ctx, r)

	if e.registry.pipeline.Publish(r) == 0 {
		e.registry.pipeline.Release(r.ID)
		e.logger.WarnwCtx(ctx, "Pipeline closed, hit left in queue store")
		return nil
	}

	metrics.IncHitsTracked(e.id)
	return nil
}

func validate(app Application, modules []Module) error {
	if app.Name == "" {
		return apperrors.ErrConfiguration.WithMessage("application name is required")
	}
	for i, m := range modules {
		if m == nil {
			return apperrors.ErrConfiguration.WithMessage(fmt.Sprintf("module %d is nil", i))
		}
		if v, ok := m.(Validator); ok {
			if err := v.Validate(); err != nil {
				return apperrors.ErrConfiguration.WithMessage(err.Error()).WithCause(err)
			}
		}
	}
	return nil
}

func (e *Engine) apply(b *request.Builder, m Module) error {
	err := apperrors.Guard(func() error {
		return m.Apply(b)
	})
	if err != nil {
		return apperrors.ErrConfiguration.WithMessage(fmt.Sprintf("module %T failed", m)).WithCause(err)
	}

	if f, ok := m.(Finalizing); ok {
		for _, name := range f.Finalizers() {
			if !e.registry.finalizers.Has(name) {
				return apperrors.ErrConfiguration.WithMessage(fmt.Sprintf("unknown finalizer %q", name))
			}
			b.AddFinalizer(name)
		}
	}
	return nil
}

// persist writes r to the queue store. Failure is logged and the request
// is still sent once.
func (e *Engine) persist(ctx context.Context, r *request.Prepared) {
	ctx, cancel := context.WithTimeout(ctx, e.registry.storeTimeout)
	defer cancel()

	if err := e.registry.store.Put(ctx, r, r.ExpiresAt(e.opts.QueueLifeSpan)); err != nil {
		e.logger.WarnwCtx(ctx, "Failed to persist hit, sending without retry", "error", err)
		return
	}
	r.Persisted = true
}

// resume hands a recovered request to the pipeline unless it is already
// live.
func (e *Engine) resume(r *request.Prepared) bool {
	if !e.registry.pipeline.Acquire(r.ID) {
		return false
	}
	r.Persisted = true
	if e.registry.pipeline.Publish(r) == 0 {
		e.registry.pipeline.Release(r.ID)
		return false
	}
	return true
}

func (e *Engine) clientIDKey(app Application) string {
	return constants.KeyPrefixClientID + e.opts.Protocol.Kind() + ":" + app.Name + ":" + e.id
}

// ClientID returns the stable client ID for app, generating and storing
// one on first use.
func (e *Engine) ClientID(ctx context.Context, app Application) (string, error) {
	if err := e.registered(); err != nil {
		return "", err
	}
	if app.Name == "" {
		return "", apperrors.ErrConfiguration.WithMessage("application name is required")
	}

	key := e.clientIDKey(app)
	v, err, _ := e.clientIDs.Do(key, func() (interface{}, error) {
		kv := e.registry.kv
		data, err := kv.Get(ctx, key)
		if err == nil && len(data) > 0 {
			return string(data), nil
		}
		if err != nil && !errors.Is(err, kvstore.ErrNoSuchKey) {
			return "", err
		}

		id := e.opts.Protocol.NewClientID()
		if err := kv.Set(ctx, key, []byte(id)); err != nil {
			return "", err
		}
		return id, nil
	})
	if err != nil {
		return "", apperrors.ErrStore.WithMessage("client id lookup failed").WithCause(err)
	}
	return v.(string), nil
}

func (e *Engine) Secure() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.secure
}

// SetSecure switches between the secure and insecure endpoint for hits
// tracked from now on. The HTTP client is rebuilt on next use; sends in
// flight keep the old one.
func (e *Engine) SetSecure(secure bool) error {
	if err := e.registered(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.secure != secure {
		e.secure = secure
		e.transport = nil
	}
	return nil
}

func (e *Engine) endpoint() string {
	e.mu.RLock()
	secure := e.secure
	e.mu.RUnlock()

	if secure && e.opts.SecureEndpoint != "" {
		return e.opts.SecureEndpoint
	}
	if !secure && e.opts.InsecureEndpoint != "" {
		return e.opts.InsecureEndpoint
	}
	return e.opts.Protocol.Endpoint(secure)
}

func (e *Engine) client() *transport.Client {
	e.mu.RLock()
	c := e.transport
	e.mu.RUnlock()
	if c != nil {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport == nil {
		e.transport = transport.New(transport.Options{
			Name:           e.id,
			Timeout:        e.opts.Timeout,
			RateLimit:      e.opts.RateLimit,
			CircuitBreaker: e.opts.CircuitBreaker,
		}, e.logger)
	}
	return e.transport
}

func (e *Engine) send(ctx context.Context, payload request.Payload) error {
	return e.client().Send(ctx, payload)
}

// Pending returns the number of hits of this engine waiting for a retry.
func (e *Engine) Pending() int {
	if e.registered() != nil {
		return 0
	}
	return e.dispatcher.Pending()
}

func (e *Engine) stop() error {
	e.dispatcher.Stop()
	return e.subscription.Close()
}
