package brief

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := retryDo(context.Background(), 3, time.Millisecond, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}
}

func TestRetryDo_ExhaustionReturnsLastError(t *testing.T) {
	want := errors.New("still down")
	calls := 0
	_, err := retryDo(context.Background(), 4, time.Millisecond, func(context.Context) (int, error) {
		calls++
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("want last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("want 4 attempts, got %d", calls)
	}
}

func TestRetryDo_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := retryDo(ctx, 5, time.Hour, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("backoff ignored cancellation: %d calls", calls)
	}
}
