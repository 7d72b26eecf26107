// Package tracing provides OpenTelemetry tracing integration.
//
// The package owns the global tracer and the SDK tracer provider setup.
// Dispatch paths create spans around outbound platform calls so a slow
// or failing publish can be traced end to end.
//
// Example usage:
//
//	import "crosspost/internal/observability/tracing"
//
//	func main() {
//	    shutdown, err := tracing.Setup(ctx, "crosspost-worker")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer shutdown(context.Background())
//	}
//
//	func dispatch(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "publish.dispatch")
//	    defer span.End()
//	    // ... call the platform ...
//	}
package tracing
