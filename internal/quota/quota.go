// Package quota enforces the daily unit budget for the place-search provider.
package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/model"
)

// Decision is the result of a reservation attempt.
type Decision struct {
	Allowed bool
	// Used is the committed total after an allowed reservation, or the current
	// total when denied.
	Used  int64
	Limit int64
}

// Tracker reserves provider units against a durable daily counter.
// Reserve is atomic: a denied reservation leaves the counter unchanged, and
// concurrent callers can never push the total above the limit.
type Tracker interface {
	Reserve(ctx context.Context, units int64) (Decision, error)
	State(ctx context.Context) (model.QuotaState, error)
}

// Thresholds are the usage fractions that produce a log line when first crossed.
var Thresholds = []float64{0.8, 0.9, 1.0}

// Clock resolves the current quota day. Days roll over at local midnight in Loc.
type Clock struct {
	Loc *time.Location
	Now func() time.Time
}

// NewClock builds a Clock for the named IANA zone, falling back to UTC.
func NewClock(zone string) Clock {
	loc, err := time.LoadLocation(zone)
	if err != nil || zone == "" {
		loc = time.UTC
	}
	return Clock{Loc: loc, Now: time.Now}
}

// Day returns the current day key (YYYY-MM-DD).
func (c Clock) Day() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Loc
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc).Format("2006-01-02")
}

// logCrossings logs each threshold passed by moving from before to after units.
func logCrossings(kind, day string, before, after, limit int64) {
	if limit <= 0 {
		return
	}
	for _, th := range Thresholds {
		mark := int64(th * float64(limit))
		if before < mark && after >= mark {
			zap.L().Warn("quota: usage threshold crossed",
				zap.String("kind", kind),
				zap.String("day", day),
				zap.Int("threshold_pct", int(th*100)),
				zap.Int64("used", after),
				zap.Int64("limit", limit),
			)
		}
	}
}

func logDenied(kind, day string, used, units, limit int64) {
	zap.L().Info("quota: reservation denied",
		zap.String("kind", kind),
		zap.String("day", day),
		zap.Int64("used", used),
		zap.Int64("requested", units),
		zap.Int64("limit", limit),
	)
}
