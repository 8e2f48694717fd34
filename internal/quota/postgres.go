package quota

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/place-enrich/internal/db"
	"github.com/sells-group/place-enrich/internal/model"
)

// reserveSQL commits the reservation only when the projected total stays
// within the limit. No returned row means the reservation was denied.
const reserveSQL = `INSERT INTO api_quota (day, kind, units, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (day, kind) DO UPDATE
SET units = api_quota.units + EXCLUDED.units, updated_at = now()
WHERE api_quota.units + EXCLUDED.units <= $4
RETURNING units`

const usedSQL = `SELECT units FROM api_quota WHERE day = $1 AND kind = $2`

// PostgresTracker keeps the daily counter in the api_quota table.
type PostgresTracker struct {
	pool  db.Pool
	kind  string
	limit int64
	clock Clock
}

// NewPostgresTracker creates a PostgresTracker for one provider kind.
func NewPostgresTracker(pool db.Pool, kind string, limit int64, clock Clock) *PostgresTracker {
	return &PostgresTracker{pool: pool, kind: kind, limit: limit, clock: clock}
}

func (t *PostgresTracker) Reserve(ctx context.Context, units int64) (Decision, error) {
	day := t.clock.Day()
	if units > t.limit {
		used, err := t.used(ctx, day)
		if err != nil {
			return Decision{}, err
		}
		logDenied(t.kind, day, used, units, t.limit)
		return Decision{Allowed: false, Used: used, Limit: t.limit}, nil
	}

	var total int64
	err := t.pool.QueryRow(ctx, reserveSQL, day, t.kind, units, t.limit).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		used, uerr := t.used(ctx, day)
		if uerr != nil {
			return Decision{}, uerr
		}
		logDenied(t.kind, day, used, units, t.limit)
		return Decision{Allowed: false, Used: used, Limit: t.limit}, nil
	}
	if err != nil {
		return Decision{}, eris.Wrapf(err, "quota: reserve %d units for %s", units, day)
	}

	logCrossings(t.kind, day, total-units, total, t.limit)
	return Decision{Allowed: true, Used: total, Limit: t.limit}, nil
}

func (t *PostgresTracker) State(ctx context.Context) (model.QuotaState, error) {
	day := t.clock.Day()
	used, err := t.used(ctx, day)
	if err != nil {
		return model.QuotaState{}, err
	}
	return model.QuotaState{Day: day, UnitsConsumed: used, DailyLimit: t.limit}, nil
}

func (t *PostgresTracker) used(ctx context.Context, day string) (int64, error) {
	var used int64
	err := t.pool.QueryRow(ctx, usedSQL, day, t.kind).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "quota: read usage for %s", day)
	}
	return used, nil
}
