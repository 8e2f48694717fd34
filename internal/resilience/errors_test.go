package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/place-enrich/internal/model"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatus() int { return int(s) }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", Transient(errors.New("x"), 0), true},
		{"429", statusErr(429), true},
		{"503 wrapped", eris.Wrap(statusErr(503), "google: details abc"), true},
		{"404", statusErr(404), false},
		{"pg connection", &pgconn.PgError{Code: "08006"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"reset message", errors.New("read tcp: connection reset by peer"), true},
		{"plain", errors.New("invalid json"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if c := Classify(nil); c != FailureNone {
		t.Errorf("nil: %s", c)
	}
	if c := Classify(&model.ValidationError{Field: "website", Reason: "empty"}); c != FailurePermanent {
		t.Errorf("validation: %s", c)
	}
	if c := Classify(&model.PersistenceError{Op: "update", Err: errors.New("boom")}); c != FailureTransient {
		t.Errorf("persistence: %s", c)
	}
	if c := Classify(statusErr(502)); c != FailureTransient {
		t.Errorf("502: %s", c)
	}
	if c := Classify(errors.New("schema mismatch")); c != FailurePermanent {
		t.Errorf("unknown: %s", c)
	}
}

func TestShouldDeadLetter(t *testing.T) {
	if !ShouldDeadLetter(FailurePermanent, 1, 5) {
		t.Error("permanent failures dead-letter immediately")
	}
	if ShouldDeadLetter(FailureTransient, 4, 5) {
		t.Error("transient under the cap must be redelivered")
	}
	if !ShouldDeadLetter(FailureTransient, 5, 5) {
		t.Error("transient at the cap must dead-letter")
	}
	if ShouldDeadLetter(FailureNone, 9, 5) {
		t.Error("successes never dead-letter")
	}
}
