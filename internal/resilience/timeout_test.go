package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeout_ReturnsResult(t *testing.T) {
	val, err := WithTimeout(context.Background(), "vision", time.Second, func(_ context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Errorf("expected ok, got %q", val)
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := WithTimeout(context.Background(), "vision", 20*time.Millisecond, func(_ context.Context) (int, error) {
		<-release
		return 1, nil
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Operation != "vision" || te.After != 20*time.Millisecond {
		t.Errorf("unexpected timeout error: %+v", te)
	}
	if time.Since(start) > time.Second {
		t.Error("WithTimeout waited for the abandoned call")
	}
}

func TestWithTimeout_LateResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})

	_, err := WithTimeout(context.Background(), "vision", 10*time.Millisecond, func(_ context.Context) (string, error) {
		<-release
		defer close(finished)
		return "stale", nil
	})
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}

	// A second attempt must only ever see its own result.
	val, err := WithTimeout(context.Background(), "vision", time.Second, func(_ context.Context) (string, error) {
		close(release)
		<-finished
		return "fresh", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "fresh" {
		t.Errorf("expected fresh result, got %q", val)
	}
}

func TestWithTimeout_CancelsAttemptContext(t *testing.T) {
	cancelled := make(chan struct{})
	_, _ = WithTimeout(context.Background(), "vision", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("expected attempt context to be cancelled after timeout")
	}
}

func TestWithTimeout_ZeroDisables(t *testing.T) {
	val, err := WithTimeout(context.Background(), "vision", 0, func(_ context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || val != 7 {
		t.Errorf("expected 7, nil; got %d, %v", val, err)
	}
}

func TestWithTimeout_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WithTimeout(ctx, "vision", time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
