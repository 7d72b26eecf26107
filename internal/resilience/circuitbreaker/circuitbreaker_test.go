package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func testConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}
}

var errBoom = errors.New("boom")

func failNTimes(n int) func() (interface{}, error) {
	calls := 0
	return func() (interface{}, error) {
		calls++
		if calls <= n {
			return nil, errBoom
		}
		return "ok", nil
	}
}

func TestExecute_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := New(testConfig("trip"))

	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(func() (interface{}, error) { return nil, errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: expected errBoom, got %v", i+1, err)
		}
	}

	if !cb.IsOpen() {
		t.Fatal("expected circuit to be open after threshold failures")
	}

	// Open circuit rejects without invoking the wrapped function.
	invoked := false
	_, err := cb.Execute(func() (interface{}, error) {
		invoked = true
		return "ok", nil
	})
	if !IsCircuitOpen(err) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if invoked {
		t.Error("wrapped function must not be invoked while circuit is open")
	}
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	cb := New(testConfig("recover"))

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errBoom })
	}
	if !cb.IsOpen() {
		t.Fatal("expected open circuit")
	}

	// Wait past the recovery timeout so one trial call is permitted.
	time.Sleep(80 * time.Millisecond)

	result, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	if err != nil {
		t.Fatalf("trial call should pass, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected trial result, got %v", result)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed after trial success, got %s", cb.State())
	}
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig("reopen"))

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errBoom })
	}
	time.Sleep(80 * time.Millisecond)

	// Trial failure reopens the circuit and restarts the timer.
	if _, err := cb.Execute(func() (interface{}, error) { return nil, errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected trial failure to surface, got %v", err)
	}
	if !cb.IsOpen() {
		t.Error("expected circuit to reopen after trial failure")
	}

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	if !IsCircuitOpen(err) {
		t.Errorf("expected immediate rejection after reopen, got %v", err)
	}
}

func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig("reset"))

	fn := failNTimes(2)
	_, _ = cb.Execute(fn)
	_, _ = cb.Execute(fn)
	if _, err := cb.Execute(fn); err != nil {
		t.Fatalf("third call should succeed, got %v", err)
	}

	// Two more failures must not trip: the counter was reset by success.
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errBoom })
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errBoom })
	if cb.IsOpen() {
		t.Error("circuit should still be closed, success resets consecutive failures")
	}
}

func TestRegistry_LazyPerTarget(t *testing.T) {
	reg := NewRegistry(testConfig)

	a := reg.ForTarget("mastodon")
	b := reg.ForTarget("mastodon")
	c := reg.ForTarget("bluesky")

	if a != b {
		t.Error("expected the same breaker instance for the same target")
	}
	if a == c {
		t.Error("expected distinct breakers per target")
	}

	states := reg.States()
	if len(states) != 2 {
		t.Fatalf("expected 2 circuits, got %d", len(states))
	}
	if states["mastodon"] != gobreaker.StateClosed.String() {
		t.Errorf("expected closed state, got %s", states["mastodon"])
	}
}
