package llm

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Cooldown: time.Hour})

	for range 2 {
		b.Failure()
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v after 2 failures, want closed", b.State())
	}

	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v after 3 failures, want open", b.State())
	}
	if !errors.Is(b.Allow(), ErrBreakerOpen) {
		t.Error("Allow() should reject while open")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Nanosecond})

	b.Failure()
	time.Sleep(time.Millisecond)

	// Cooldown passed: probe allowed, state moves to half-open.
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown = %v, want nil", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}

	b.Success()
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v after 1 success, want half-open", b.State())
	}
	b.Success()
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v after 2 successes, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Nanosecond})

	b.Failure()
	time.Sleep(time.Millisecond)
	_ = b.Allow() // half-open

	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open after half-open failure", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Hour})

	b.Failure()
	b.Success()
	b.Failure()
	if b.State() != BreakerClosed {
		t.Fatal("interleaved success should reset the failure count")
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state BreakerState
		want  string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
