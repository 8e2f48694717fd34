package quota

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-enrich/internal/model"
)

const sqliteReserveSQL = `INSERT INTO api_quota (day, kind, units, updated_at)
VALUES (?, ?, ?, datetime('now'))
ON CONFLICT (day, kind) DO UPDATE
SET units = api_quota.units + excluded.units, updated_at = datetime('now')
WHERE api_quota.units + excluded.units <= ?
RETURNING units`

// SQLiteTracker keeps the daily counter in a local SQLite database.
type SQLiteTracker struct {
	db    *sql.DB
	kind  string
	limit int64
	clock Clock
}

// NewSQLiteTracker creates a SQLiteTracker.
func NewSQLiteTracker(db *sql.DB, kind string, limit int64, clock Clock) *SQLiteTracker {
	return &SQLiteTracker{db: db, kind: kind, limit: limit, clock: clock}
}

func (t *SQLiteTracker) Reserve(ctx context.Context, units int64) (Decision, error) {
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
	err := t.db.QueryRowContext(ctx, sqliteReserveSQL, day, t.kind, units, t.limit).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		used, uerr := t.used(ctx, day)
		if uerr != nil {
			return Decision{}, uerr
		}
		logDenied(t.kind, day, used, units, t.limit)
		return Decision{Allowed: false, Used: used, Limit: t.limit}, nil
	}
	if err != nil {
		return Decision{}, eris.Wrapf(err, "quota: sqlite reserve %d units for %s", units, day)
	}

	logCrossings(t.kind, day, total-units, total, t.limit)
	return Decision{Allowed: true, Used: total, Limit: t.limit}, nil
}

func (t *SQLiteTracker) State(ctx context.Context) (model.QuotaState, error) {
	day := t.clock.Day()
	used, err := t.used(ctx, day)
	if err != nil {
		return model.QuotaState{}, err
	}
	return model.QuotaState{Day: day, UnitsConsumed: used, DailyLimit: t.limit}, nil
}

func (t *SQLiteTracker) used(ctx context.Context, day string) (int64, error) {
	var used int64
	err := t.db.QueryRowContext(ctx, `SELECT units FROM api_quota WHERE day = ? AND kind = ?`, day, t.kind).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "quota: sqlite read usage for %s", day)
	}
	return used, nil
}
