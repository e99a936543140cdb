package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"hitqueue/internal/collector"
	"hitqueue/internal/config"
	"hitqueue/internal/constants"
	"hitqueue/internal/engine"
	"hitqueue/internal/logger"
	"hitqueue/pkg/bootstrap"
	"hitqueue/pkg/logging"
	"hitqueue/pkg/metrics"
	"hitqueue/pkg/tracing"
)

const serviceName = "hitqueue"

type App struct {
	*bootstrap.Base
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	stop           chan struct{}
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
		stop: make(chan struct{}),
	}
}

// Initialize builds the registry and resumes stored hits. The collector
// server is only built when withServer is set and it is enabled.
func (a *App) Initialize(ctx context.Context, withServer bool) error {
	initCtx := logging.WithServiceName(ctx, serviceName)

	tp, err := tracing.Init(a.Config.Tracing, serviceName, tracing.Attributes(a.Config)...)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()

	if err := a.InitRegistry(ctx); err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	result, err := a.Registry.ProcessStoredRequests(ctx)
	if err != nil {
		return fmt.Errorf("failed to process stored requests: %w", err)
	}
	a.Logger.InfowCtx(initCtx, "Stored requests processed",
		"scanned", result.Scanned,
		"resumed", result.Resumed,
		"deferred", result.Deferred,
		"skipped_live", result.SkippedLive,
	)

	if withServer && a.Config.Collector.Enabled {
		a.initHTTPServer()
	}

	return nil
}

func (a *App) initHTTPServer() {
	router := collector.NewRouter(a.Config, a.Registry, a.HealthCheckers(), a.Logger, a.stop)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Run serves the collector until ctx is done. Without a collector it
// only waits, keeping the dispatchers alive.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	} else {
		g.Go(func() error {
			<-gCtx.Done()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Track records one hit from the same request shape the collector
// accepts.
func (a *App) Track(ctx context.Context, req collector.TrackRequest) error {
	e, err := a.resolve(req.EngineID)
	if err != nil {
		return err
	}

	modules, err := req.Modules()
	if err != nil {
		return err
	}

	if err := e.Track(ctx, req.App, modules...); err != nil {
		return fmt.Errorf("failed to track hit: %w", err)
	}

	a.Logger.InfowCtx(logging.WithEngineID(ctx, e.ID()), "Hit queued", "type", req.Type)
	return nil
}

func (a *App) resolve(id string) (*engine.Engine, error) {
	if id == "" {
		return a.Registry.Default()
	}
	if e, ok := a.Registry.Lookup(id); ok {
		return e, nil
	}
	return nil, fmt.Errorf("engine %q is not configured", id)
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, serviceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down hitqueue")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		close(a.stop)

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
