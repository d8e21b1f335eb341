package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("apollo", 2, 1, time.Minute)
	cb.now = func() time.Time { return clock }

	var transitions []string
	cb.SetStateChangeCallback(func(name string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	cb.RecordFailure()
	if !cb.AllowRequest() {
		t.Fatal("breaker should stay closed below the threshold")
	}
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}
	if cb.AllowRequest() {
		t.Fatal("open breaker should reject requests before timeout")
	}

	clock = clock.Add(2 * time.Minute)
	if !cb.AllowRequest() {
		t.Fatal("breaker should half-open after timeout")
	}
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.GetState())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := time.Now()
	cb := NewCircuitBreaker("openrouter", 1, 2, time.Second)
	cb.now = func() time.Time { return clock }

	cb.RecordFailure()
	clock = clock.Add(2 * time.Second)
	if !cb.AllowRequest() {
		t.Fatal("expected a half-open trial request to be allowed")
	}
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.GetState())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("apollo", 2, 1, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %s, want closed after non-consecutive failures", cb.GetState())
	}
}
