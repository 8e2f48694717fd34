package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastBackoff(3), "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errors.New("busy"), 429)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", v, calls)
	}
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastBackoff(5), "test", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad request")
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one call and an error, got %d calls, err=%v", calls, err)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastBackoff(3), "test", func(context.Context) (int, error) {
		calls++
		return 0, Transient(errors.New("down"), 503)
	})
	if err == nil || calls != 3 {
		t.Errorf("expected 3 calls and an error, got %d calls, err=%v", calls, err)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, Backoff{Attempts: 5, Initial: time.Hour}, "test", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, Transient(errors.New("down"), 503)
	})
	if err == nil || calls != 1 {
		t.Errorf("expected stop after cancel, got %d calls, err=%v", calls, err)
	}
}

func TestBackoff_DelayCapped(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 4 * time.Second}
	if d := b.Delay(0); d != time.Second {
		t.Errorf("delay 0 = %s", d)
	}
	if d := b.Delay(10); d != 4*time.Second {
		t.Errorf("delay 10 = %s", d)
	}
}
