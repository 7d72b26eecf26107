package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the application.
var tracer = otel.Tracer("crosspost")

// GetTracer returns the global tracer for creating spans.
// This tracer can be used throughout the application to create new spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "operation-name")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// Setup installs a tracer provider as the global OpenTelemetry provider
// and returns a shutdown function that flushes pending spans.
//
// The provider carries the service identity as resource attributes.
// Exporters are attached by the deployment environment; without one the
// spans still flow through any registered span processors.
//
// Example usage:
//
//	shutdown, err := tracing.Setup(ctx, "crosspost-worker")
//	if err != nil {
//	    return err
//	}
//	defer func() {
//	    if err := shutdown(context.Background()); err != nil {
//	        logger.Error("tracer shutdown failed", slog.Any("error", err))
//	    }
//	}()
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
