package infra

import (
	"errors"
	"testing"
	"time"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
)

func TestCircuitBreaker_AllowInClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	if !cb.Allow() {
		t.Error("Expected Allow() to return true in CLOSED state")
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state CLOSED, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	// Default threshold is 5 consecutive failures
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	if cb.GetState() != StateClosed {
		t.Error("Should still be CLOSED after 4 failures")
	}

	cb.RecordFailure() // 5th failure

	if cb.GetState() != StateOpen {
		t.Errorf("Expected OPEN after 5 failures, got %s", cb.GetState())
	}

	if cb.Allow() {
		t.Error("Expected Allow() to return false in OPEN state")
	}
}

func TestCircuitBreaker_CallFailsFastWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	boom := errors.New("upstream boom")
	for i := 0; i < 2; i++ {
		if err := cb.Call(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected underlying error, got %v", err)
		}
	}

	// Open: the wrapped function must not be invoked
	invoked := false
	err := cb.Call(func() error { invoked = true; return nil })
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if invoked {
		t.Error("wrapped function must not run while the breaker is open")
	}
}

func TestCircuitBreaker_HalfOpenSingleTrial(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	base := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return base }

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatal("Expected OPEN state")
	}

	// Recovery timeout elapses: exactly one trial is admitted
	cb.now = func() time.Time { return base.Add(61 * time.Second) }
	if !cb.Allow() {
		t.Error("expected first call after timeout to be allowed (half-open)")
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("Expected HALF_OPEN, got %s", cb.GetState())
	}
	if cb.Allow() {
		t.Error("expected second concurrent call to be rejected while trial is in flight")
	}

	// Trial succeeds: breaker closes and the failure counter resets
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected CLOSED after successful trial, got %s", cb.GetState())
	}
	if !cb.Allow() {
		t.Error("expected Allow() after recovery")
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  30 * time.Second,
	})

	base := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return base }

	cb.RecordFailure()

	cb.now = func() time.Time { return base.Add(31 * time.Second) }
	if !cb.Allow() {
		t.Fatal("expected half-open trial")
	}

	// Trial fails: back to OPEN with a fresh timer
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Errorf("Expected OPEN after failed trial, got %s", cb.GetState())
	}

	// Timer restarted from the trial failure, not the original failure
	cb.now = func() time.Time { return base.Add(45 * time.Second) }
	if cb.Allow() {
		t.Error("expected rejection before the restarted timeout elapses")
	}
	cb.now = func() time.Time { return base.Add(62 * time.Second) }
	if !cb.Allow() {
		t.Error("expected a new trial after the restarted timeout")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("test"))

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}

	if cb.GetState() != StateOpen {
		t.Fatal("Expected OPEN state")
	}

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected CLOSED after Reset, got %s", cb.GetState())
	}

	if !cb.Allow() {
		t.Error("Expected Allow() to return true after Reset")
	}
}
