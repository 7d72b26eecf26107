// Package resilience provides reliability and fault tolerance patterns for
// outbound platform calls. It includes circuit breakers, retry logic with
// exponential backoff, and operation timeout wrappers.
//
// The three primitives compose explicitly around a platform dispatch:
//
//	err := timeout.Do(ctx, d, func(ctx context.Context) error {
//	    return retry.WithBackoff(ctx, retryCfg, func() error {
//	        _, err := breaker.Execute(func() (interface{}, error) {
//	            return adapter.Post(ctx, payload)
//	        })
//	        return err
//	    })
//	})
//
// The circuit breaker sits innermost so an open circuit fails fast without
// a network attempt; retry governs re-attempts; the timeout bounds the
// whole dispatch.
package resilience
