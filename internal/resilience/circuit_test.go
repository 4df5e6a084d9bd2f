package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
)

var errBlocked = apperr.New(apperr.KindRemoteBlocked, "blocked")

func run(cb *CircuitBreaker, err error) error {
	_, got := Execute(context.Background(), cb, func(_ context.Context) (struct{}, error) {
		return struct{}{}, err
	})
	return got
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	calls := 0
	v, err := Execute(context.Background(), cb, func(_ context.Context) (int, error) {
		calls++
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("unexpected result %d, %v", v, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensOnBlocks(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for range 3 {
		_ = run(cb, errBlocked)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	_, err := Execute(context.Background(), cb, func(_ context.Context) (int, error) {
		t.Error("should not be called while open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if !apperr.Is(err, apperr.KindRemoteBlocked) {
		t.Errorf("expected remote_blocked kind, got %s", apperr.KindOf(err))
	}
}

func TestCircuitBreaker_DataErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	for range 5 {
		_ = run(cb, apperr.New(apperr.KindNoQuoteReturned, "none"))
		_ = run(cb, apperr.New(apperr.KindInvalidParameter, "bad"))
	}
	if failures, state := cb.Counters(); failures != 0 || state != CircuitClosed {
		t.Errorf("expected closed with 0 failures, got %d %s", failures, state)
	}
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	_ = run(cb, apperr.New(apperr.KindTimeout, "slow"))
	_ = run(cb, apperr.New(apperr.KindNetwork, "down"))
	if failures, _ := cb.Counters(); failures != 2 {
		t.Fatalf("expected 2 failures, got %d", failures)
	}

	_ = run(cb, nil)
	if failures, _ := cb.Counters(); failures != 0 {
		t.Errorf("expected 0 failures after success, got %d", failures)
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	var transitions []CircuitState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		OnStateChange:    func(_, to CircuitState) { transitions = append(transitions, to) },
	})
	cb.nowFunc = func() time.Time { return now }

	_ = run(cb, errBlocked)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	cb.nowFunc = func() time.Time { return now.Add(2 * time.Second) }
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	if err := run(cb, nil); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", cb.State())
	}

	want := []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }
	_ = run(cb, errBlocked)

	now = now.Add(2 * time.Second)
	_ = run(cb, errBlocked)

	if _, state := cb.Counters(); state != CircuitOpen {
		t.Errorf("expected open after failed probe, got %s", state)
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }
	_ = run(cb, errBlocked)
	now = now.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Execute(context.Background(), cb, func(_ context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- err
	}()
	<-started

	if err := run(cb, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected second concurrent probe rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("probe failed: %v", err)
	}
}

func TestCircuitState_String(t *testing.T) {
	for state, want := range map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	} {
		if state.String() != want {
			t.Errorf("expected %s, got %s", want, state.String())
		}
	}
}
