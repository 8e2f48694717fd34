package quota

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestSQLiteTracker(t *testing.T, limit int64) *SQLiteTracker {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	_, err = db.Exec(`CREATE TABLE api_quota (
		day        TEXT NOT NULL,
		kind       TEXT NOT NULL,
		units      INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (day, kind)
	)`)
	require.NoError(t, err)

	return NewSQLiteTracker(db, "google_places", limit, fixedClock(time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)))
}

func TestSQLiteTracker_ReserveUntilDenied(t *testing.T) {
	tr := newTestSQLiteTracker(t, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := tr.Reserve(ctx, 32)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "reservation %d", i)
	}

	d, err := tr.Reserve(ctx, 32)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(96), d.Used)

	d, err = tr.Reserve(ctx, 4)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(100), d.Used)

	st, err := tr.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.UnitsConsumed)
	assert.Equal(t, int64(0), st.Remaining())
}

func TestSQLiteTracker_StateEmpty(t *testing.T) {
	tr := newTestSQLiteTracker(t, 100)

	st, err := tr.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.UnitsConsumed)
	assert.Equal(t, "2025-05-10", st.Day)
}
