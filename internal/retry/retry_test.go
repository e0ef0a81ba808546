package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	wantErr := errors.New("permanent")
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}, func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped permanent error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Do(ctx, Policy{MaxAttempts: 5, InitialInterval: time.Millisecond}, func() error {
		attempts++
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error on canceled context")
	}
	if attempts > 1 {
		t.Fatalf("expected at most one attempt after cancellation, got %d", attempts)
	}
}

func TestForeverRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := Forever(context.Background(), time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("still down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
