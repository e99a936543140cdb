package engine

import (
	"context"
	"time"

	apperrors "hitqueue/pkg/errors"
)

// Hooks decide what to track around a guarded call. Each method returns
// the modules of one hit; returning none tracks nothing.
type Hooks interface {
	OnEntry(ctx context.Context) []Module
	OnExit(ctx context.Context, elapsed time.Duration) []Module
	OnException(ctx context.Context, err error) []Module
}

// Guard runs fn between the entry and exit hooks of hooks, tracking the
// resulting hits on e. When fn returns an error or panics, OnException
// is tracked instead of OnExit; the error is returned and the panic
// continues unwinding. Tracking failures are logged, never returned.
func Guard(ctx context.Context, e *Engine, app Application, hooks Hooks, fn func(ctx context.Context) error) (err error) {
	e.trackHook(ctx, app, hooks.OnEntry(ctx))

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.trackHook(ctx, app, hooks.OnException(ctx, apperrors.RecoverPanic(r)))
			panic(r)
		}
	}()

	if err = fn(ctx); err != nil {
		e.trackHook(ctx, app, hooks.OnException(ctx, err))
		return err
	}

	e.trackHook(ctx, app, hooks.OnExit(ctx, time.Since(start)))
	return nil
}

func (e *Engine) trackHook(ctx context.Context, app Application, modules []Module) {
	if len(modules) == 0 {
		return
	}
	if err := e.Track(ctx, app, modules...); err != nil {
		if e.registered() == nil {
			e.logger.WarnwCtx(ctx, "Failed to track guarded call", "error", err)
		}
	}
}

// TimingHooks tracks how long the guarded call took and any error it
// returned.
type TimingHooks struct {
	Category string
	Variable string
	Label    string
	// FatalExceptions marks tracked exceptions as fatal.
	FatalExceptions bool
}

var _ Hooks = TimingHooks{}

func (h TimingHooks) OnEntry(context.Context) []Module {
	return nil
}

func (h TimingHooks) OnExit(_ context.Context, elapsed time.Duration) []Module {
	return []Module{Timing{
		Category: h.Category,
		Variable: h.Variable,
		Duration: elapsed,
		Label:    h.Label,
	}}
}

func (h TimingHooks) OnException(_ context.Context, err error) []Module {
	return []Module{ExceptionFrom(err, h.FatalExceptions)}
}
