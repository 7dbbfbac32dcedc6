package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: got %d want 3", calls)
	}
}

func TestDoReturnsLastError(t *testing.T) {
	p := Policy{MaxAttempts: 2, Delay: time.Millisecond}
	last := errors.New("still broken")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errors.New("first")
		}
		return last
	})
	if !errors.Is(err, last) {
		t.Fatalf("want last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: got %d want 2", calls)
	}
}

func TestDoZeroAttemptsStillRunsOnce(t *testing.T) {
	var p Policy
	calls := 0
	if err := p.Do(context.Background(), func() error { calls++; return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: got %d want 1", calls)
	}
}

func TestDoBackoffEscalatesAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 4, Delay: 10 * time.Millisecond, Factor: 2, MaxDelay: 15 * time.Millisecond}
	start := time.Now()
	_ = p.Do(context.Background(), func() error { return errors.New("always") })
	elapsed := time.Since(start)
	// waits: 10ms, then 20ms capped to 15ms, then 15ms = 40ms total
	if elapsed < 35*time.Millisecond {
		t.Fatalf("backoff too short: %v", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("cap not applied: %v", elapsed)
	}
}

func TestDoContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 10, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func() error { return errors.New("transient") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
