package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = Transient(errors.New("503 from upstream"), 503)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(ServicePlaces, BreakerConfig{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_ = b.Run(context.Background(), func(context.Context) error { return errFlaky })
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	err := b.Run(context.Background(), func(context.Context) error {
		t.Error("call went through an open breaker")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestBreaker_IgnoresPermanentErrors(t *testing.T) {
	b := NewBreaker(ServicePlaces, BreakerConfig{Threshold: 2, Cooldown: time.Minute})

	for i := 0; i < 5; i++ {
		_ = b.Run(context.Background(), func(context.Context) error { return errors.New("not found") })
	}
	if b.State() != StateClosed {
		t.Errorf("permanent errors must not open the breaker, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(ServicePlaces, BreakerConfig{Threshold: 2, Cooldown: time.Minute})

	_ = b.Run(context.Background(), func(context.Context) error { return errFlaky })
	_ = b.Run(context.Background(), func(context.Context) error { return nil })
	_ = b.Run(context.Background(), func(context.Context) error { return errFlaky })

	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(ServiceAnthropic, BreakerConfig{Threshold: 1, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return now }

	_ = b.Run(context.Background(), func(context.Context) error { return errFlaky })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	// A failed probe reopens.
	_ = b.Run(context.Background(), func(context.Context) error { return errFlaky })
	if b.State() != StateOpen {
		t.Fatalf("expected reopen after failed probe, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	v, err := Call(context.Background(), b, func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("probe: got %d, %v", v, err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakers_For(t *testing.T) {
	r := NewBreakers(DefaultBreakerConfig())
	a := r.For(ServiceWebsite)
	if r.For(ServiceWebsite) != a {
		t.Error("expected the same breaker for the same service")
	}
	r.For(ServicePlaces)

	states := r.States()
	if len(states) != 2 || states[ServiceWebsite] != "closed" {
		t.Errorf("unexpected states: %v", states)
	}
}
