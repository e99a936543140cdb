package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"hitqueue/internal/config"
)

const defaultServiceName = "hitqueue"

type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

func (tp *TracerProvider) Tracer(name string) trace.Tracer {
	return tp.tp.Tracer(name)
}

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

// Attributes describes the running deployment on every exported span.
func Attributes(cfg *config.Config) []attribute.KeyValue {
	ids := make([]string, 0, len(cfg.Engines))
	for _, e := range cfg.Engines {
		ids = append(ids, e.ID)
	}
	return []attribute.KeyValue{
		attribute.String("hitqueue.store.type", cfg.Store.Type),
		attribute.StringSlice("hitqueue.engines", ids),
		attribute.Bool("hitqueue.secure", cfg.Tracking.Secure),
	}
}

// Init installs a global OTLP tracer provider. When tracing is disabled
// the returned provider records nothing and the global one is left alone,
// so hit spans stay no-ops.
func Init(cfg config.TracingConfig, serviceName string, attrs ...attribute.KeyValue) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tp: sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))}, nil
	}

	if serviceName == "" {
		serviceName = cfg.ServiceName
	}
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	sampler, err := createSampler(cfg.Sampler)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint),
	}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{tp: tp}, nil
}

// createSampler maps the configured sampler. Ratio samplers need a
// param in [0, 1].
func createSampler(cfg config.SamplerConfig) (sdktrace.Sampler, error) {
	switch cfg.Type {
	case "", "always_on":
		return sdktrace.AlwaysSample(), nil
	case "always_off":
		return sdktrace.NeverSample(), nil
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case "traceidratio", "parentbased_traceidratio":
		if cfg.Param < 0 || cfg.Param > 1 {
			return nil, fmt.Errorf("sampler %s: ratio must be between 0 and 1, got %v", cfg.Type, cfg.Param)
		}
		ratio := sdktrace.TraceIDRatioBased(cfg.Param)
		if cfg.Type == "traceidratio" {
			return ratio, nil
		}
		return sdktrace.ParentBased(ratio), nil
	default:
		return nil, fmt.Errorf("unknown sampler type: %s", cfg.Type)
	}
}

func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
