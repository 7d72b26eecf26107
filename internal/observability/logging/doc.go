// Package logging builds the process-wide slog logger and carries it
// through contexts so background jobs log with the fields the caller
// attached.
//
// Example usage:
//
//	import "crosspost/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started", slog.String("version", "1.0"))
//	}
//
//	func dispatch(ctx context.Context) {
//	    logger := logging.FromContext(ctx)
//	    logger.Info("dispatching post")
//	}
package logging
