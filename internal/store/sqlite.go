package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/place-enrich/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// DB returns the underlying handle for the SQLite quota tracker.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	company_id              TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	city                    TEXT NOT NULL,
	state                   TEXT NOT NULL,
	niche                   TEXT NOT NULL,
	website                 TEXT,
	collection_status       TEXT NOT NULL DEFAULT 'pending',
	collection_reason       TEXT,
	website_data            TEXT,
	website_scraping_status TEXT,
	website_scraping_reason TEXT,
	website_scraped_at      DATETIME,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_companies_market ON companies(state, city, niche);

CREATE TABLE IF NOT EXISTS places (
	place_id            TEXT PRIMARY KEY,
	company_id          TEXT NOT NULL REFERENCES companies(company_id),
	name                TEXT NOT NULL,
	formatted_address   TEXT,
	latitude            REAL,
	longitude           REAL,
	location            BLOB,
	rating              REAL,
	rating_count        INTEGER,
	national_phone      TEXT,
	international_phone TEXT,
	website             TEXT,
	maps_url            TEXT,
	business_status     TEXT,
	categories          TEXT,
	hours               TEXT,
	reviews             TEXT,
	photos              TEXT,
	price_level         TEXT,
	enriched            INTEGER NOT NULL DEFAULT 0,
	raw                 TEXT,
	city                TEXT NOT NULL,
	state               TEXT NOT NULL,
	niche               TEXT NOT NULL,
	content_hash        TEXT NOT NULL,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_places_company_id ON places(company_id);

CREATE TABLE IF NOT EXISTS api_quota (
	day        TEXT NOT NULL,
	kind       TEXT NOT NULL,
	units      INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (day, kind)
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SavePlaces(ctx context.Context, places []model.Place) (*model.SaveResult, error) {
	places = dedupePlaces(places)
	if len(places) == 0 {
		return &model.SaveResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: save places: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := s.loadExisting(ctx, tx, placeIDs(places))
	if err != nil {
		return nil, err
	}
	pl, err := planSave(places, existing)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	for _, r := range pl.inserts {
		if _, err := tx.ExecContext(ctx, insertSQL("companies", companyColumns), companyValues(r.place, now)...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert company for %s", r.place.ProviderID)
		}
		if _, err := tx.ExecContext(ctx, insertSQL("places", placeColumns), r.values(now)...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert place %s", r.place.ProviderID)
		}
	}

	var updated int64
	for _, r := range pl.updates {
		res, err := tx.ExecContext(ctx, sqliteUpsertSQL, r.values(now)...)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: update place %s", r.place.ProviderID)
		}
		n, _ := res.RowsAffected()
		updated += n
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: save places: commit tx")
	}
	return pl.result(updated), nil
}

func (s *SQLiteStore) loadExisting(ctx context.Context, tx *sql.Tx, ids []string) (map[string]existingPlace, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT p.place_id, p.company_id, p.content_hash, c.website_scraping_status IS NOT NULL
		FROM places p JOIN companies c ON c.company_id = p.company_id
		WHERE p.place_id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load existing places")
	}
	defer rows.Close() //nolint:errcheck

	existing := make(map[string]existingPlace, len(ids))
	for rows.Next() {
		var id string
		var cur existingPlace
		if err := rows.Scan(&id, &cur.companyID, &cur.hash, &cur.scraped); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan existing place")
		}
		existing[id] = cur
	}
	return existing, eris.Wrap(rows.Err(), "sqlite: iterate existing places")
}

// sqliteUpsertSQL updates a place only when its content hash changed.
var sqliteUpsertSQL = func() string {
	sets := make([]string, len(placeUpdateColumns))
	for i, c := range placeUpdateColumns {
		sets[i] = c + " = excluded." + c
	}
	return insertSQL("places", placeColumns) +
		" ON CONFLICT (place_id) DO UPDATE SET " + strings.Join(sets, ", ") +
		" WHERE places.content_hash IS NOT excluded.content_hash"
}()

func insertSQL(table string, columns []string) string {
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders(len(columns)) + ")"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLiteStore) SetCollectionOutcome(ctx context.Context, companyIDs []string, outcome model.CollectionOutcome) error {
	if len(companyIDs) == 0 {
		return nil
	}
	args := []any{string(outcome.Status), outcome.Reason, s.now().UTC()}
	for _, id := range companyIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE companies SET collection_status = ?, collection_reason = ?, updated_at = ? WHERE company_id IN (`+placeholders(len(companyIDs))+`)`,
		args...)
	return eris.Wrapf(err, "sqlite: set collection outcome for %d companies", len(companyIDs))
}

const sqliteCompanySelect = `SELECT company_id, name, city, state, niche, COALESCE(website, ''),
	collection_status, COALESCE(collection_reason, ''), website_data,
	COALESCE(website_scraping_status, ''), COALESCE(website_scraping_reason, ''),
	website_scraped_at, created_at, updated_at
FROM companies`

func (s *SQLiteStore) GetCompany(ctx context.Context, companyID string) (*model.Company, error) {
	c, err := scanSQLiteCompany(s.db.QueryRowContext(ctx, sqliteCompanySelect+` WHERE company_id = ?`, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: company %s", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", companyID)
	}
	return c, nil
}

func (s *SQLiteStore) ListPendingWebsites(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		sqliteCompanySelect+` WHERE website IS NOT NULL AND website <> '' AND website_scraping_status IS NULL
ORDER BY created_at, company_id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending websites")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		c, err := scanSQLiteCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pending websites iterate")
}

func (s *SQLiteStore) UpdateWebsiteData(ctx context.Context, upd model.WebsiteUpdate) error {
	var data any
	if upd.Data != nil {
		data = string(upd.Data)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET website_data = COALESCE(?, website_data),
	website_scraping_status = ?, website_scraping_reason = ?, website_scraped_at = ?, updated_at = ?
WHERE company_id = ?`,
		data, string(upd.Status), upd.Reason, upd.ScrapedAt.UTC(), upd.ScrapedAt.UTC(), upd.CompanyID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update website data %s", upd.CompanyID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrap(unknownCompany(upd.CompanyID), "sqlite: update website data")
	}
	return nil
}

func scanSQLiteCompany(row scannable) (*model.Company, error) {
	var (
		c         model.Company
		data      sql.NullString
		scrapedAt sql.NullTime
	)
	err := row.Scan(&c.CompanyID, &c.Name, &c.City, &c.State, &c.Niche, &c.Website,
		&c.CollectionStatus, &c.CollectionReason, &data,
		&c.WebsiteStatus, &c.WebsiteReason,
		&scrapedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if data.Valid {
		c.WebsiteData = []byte(data.String)
	}
	if scrapedAt.Valid {
		t := scrapedAt.Time
		c.WebsiteScrapedAt = &t
	}
	return &c, nil
}
