// Package circuitbreaker provides per-target circuit breakers for external
// platform calls. It uses the github.com/sony/gobreaker library to prevent
// cascading failures when a platform API is known-bad.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen indicates that the circuit for a target is open and the
// call was rejected without a network attempt.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the circuit from closed to open
	FailureThreshold uint32

	// RecoveryTimeout is how long to wait in open state before allowing
	// half-open trial calls
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls is the maximum number of trial calls allowed in
	// half-open state
	HalfOpenMaxCalls uint32
}

// DefaultConfig returns a default configuration for platform circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with consecutive-failure
// trip semantics.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a new circuit breaker with the given configuration.
//
// The circuit trips when FailureThreshold consecutive failures accumulate,
// stays open for RecoveryTimeout, then permits HalfOpenMaxCalls trial calls.
// A trial success closes the circuit and resets the failure counter; a
// trial failure reopens it and restarts the recovery timer.
func New(cfg Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			RecordStateChange(name, to.String())
		},
	}

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Execute runs the given function through the circuit breaker.
// If the circuit is open, it returns ErrCircuitOpen immediately without
// invoking fn.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.breaker.Execute(fn)
	if err != nil && isOpenStateErr(err) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

// isOpenStateErr reports whether the error came from gobreaker rejecting a
// call rather than from the wrapped function itself.
func isOpenStateErr(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsCircuitOpen reports whether the error (possibly wrapped) is a
// circuit-open rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// Registry holds one circuit breaker per target, created lazily.
// Mutations of a circuit's state are serialized per key by gobreaker's
// internal mutex; the registry map itself is guarded here.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults func(name string) Config
}

// NewRegistry creates a registry that builds breakers from the given
// config factory. Pass nil to use DefaultConfig.
func NewRegistry(defaults func(name string) Config) *Registry {
	if defaults == nil {
		defaults = DefaultConfig
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}
}

// ForTarget returns the circuit breaker for the given target name,
// creating it on first use.
func (r *Registry) ForTarget(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[name]
	if !ok {
		cb = New(r.defaults(name))
		r.breakers[name] = cb
	}
	return cb
}

// States returns a snapshot of every known circuit's state, keyed by
// target name. Used by health endpoints.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State().String()
	}
	return states
}
