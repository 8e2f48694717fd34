package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/db"
	"github.com/sells-group/place-enrich/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// NewPostgresFromPool wraps an existing pool. Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Pool returns the underlying pool for the queue and quota tracker.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	company_id              TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	city                    TEXT NOT NULL,
	state                   TEXT NOT NULL,
	niche                   TEXT NOT NULL,
	website                 TEXT,
	collection_status       TEXT NOT NULL DEFAULT 'pending',
	collection_reason       TEXT,
	website_data            JSONB,
	website_scraping_status TEXT,
	website_scraping_reason TEXT,
	website_scraped_at      TIMESTAMPTZ,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_market ON companies(state, city, niche);
CREATE INDEX IF NOT EXISTS idx_companies_website_pending ON companies(created_at)
	WHERE website IS NOT NULL AND website <> '' AND website_scraping_status IS NULL;

CREATE TABLE IF NOT EXISTS places (
	place_id            TEXT PRIMARY KEY,
	company_id          TEXT NOT NULL REFERENCES companies(company_id),
	name                TEXT NOT NULL,
	formatted_address   TEXT,
	latitude            DOUBLE PRECISION,
	longitude           DOUBLE PRECISION,
	location            BYTEA,
	rating              DOUBLE PRECISION,
	rating_count        INTEGER,
	national_phone      TEXT,
	international_phone TEXT,
	website             TEXT,
	maps_url            TEXT,
	business_status     TEXT,
	categories          JSONB,
	hours               JSONB,
	reviews             JSONB,
	photos              JSONB,
	price_level         TEXT,
	enriched            BOOLEAN NOT NULL DEFAULT false,
	raw                 JSONB,
	city                TEXT NOT NULL,
	state               TEXT NOT NULL,
	niche               TEXT NOT NULL,
	content_hash        TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_places_company_id ON places(company_id);
CREATE INDEX IF NOT EXISTS idx_places_lat_lng ON places(latitude, longitude);

CREATE TABLE IF NOT EXISTS api_quota (
	day        TEXT NOT NULL,
	kind       TEXT NOT NULL,
	units      BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (day, kind)
);

CREATE TABLE IF NOT EXISTS task_queue (
	id         TEXT PRIMARY KEY,
	topic      TEXT NOT NULL,
	payload    JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'ready',
	attempts   INTEGER NOT NULL DEFAULT 0,
	visible_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_task_queue_ready ON task_queue(topic, visible_at) WHERE status IN ('ready', 'leased');
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const existingPlacesSQL = `SELECT p.place_id, p.company_id, p.content_hash, c.website_scraping_status IS NOT NULL
	FROM places p JOIN companies c ON c.company_id = p.company_id
	WHERE p.place_id = ANY($1)`

func (s *PostgresStore) SavePlaces(ctx context.Context, places []model.Place) (*model.SaveResult, error) {
	places = dedupePlaces(places)
	if len(places) == 0 {
		return &model.SaveResult{}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: save places: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := loadExisting(ctx, tx, placeIDs(places))
	if err != nil {
		return nil, err
	}

	pl, err := planSave(places, existing)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if len(pl.inserts) > 0 {
		companies := make([][]any, len(pl.inserts))
		rows := make([][]any, len(pl.inserts))
		for i, r := range pl.inserts {
			companies[i] = companyValues(r.place, now)
			rows[i] = r.values(now)
		}
		if _, err := db.CopyFrom(ctx, tx, "companies", companyColumns, companies); err != nil {
			return nil, eris.Wrap(err, "postgres: save places")
		}
		if _, err := db.CopyFrom(ctx, tx, "places", placeColumns, rows); err != nil {
			return nil, eris.Wrap(err, "postgres: save places")
		}
	}

	var updated int64
	if len(pl.updates) > 0 {
		rows := make([][]any, len(pl.updates))
		for i, r := range pl.updates {
			rows[i] = r.values(now)
		}
		updated, err = db.UpsertTx(ctx, tx, db.UpsertConfig{
			Table:        "places",
			Columns:      placeColumns,
			ConflictKeys: []string{"place_id"},
			UpdateCols:   placeUpdateColumns,
			UpdateWhere:  "t.content_hash IS DISTINCT FROM EXCLUDED.content_hash",
		}, rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: save places")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: save places: commit tx")
	}

	res := pl.result(updated)
	zap.L().Debug("postgres: places saved",
		zap.Int("inserted", len(res.Inserted)),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func loadExisting(ctx context.Context, q db.Querier, ids []string) (map[string]existingPlace, error) {
	rows, err := q.Query(ctx, existingPlacesSQL, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load existing places")
	}
	defer rows.Close()

	existing := make(map[string]existingPlace, len(ids))
	for rows.Next() {
		var id string
		var cur existingPlace
		if err := rows.Scan(&id, &cur.companyID, &cur.hash, &cur.scraped); err != nil {
			return nil, eris.Wrap(err, "postgres: scan existing place")
		}
		existing[id] = cur
	}
	return existing, eris.Wrap(rows.Err(), "postgres: iterate existing places")
}

func (s *PostgresStore) SetCollectionOutcome(ctx context.Context, companyIDs []string, outcome model.CollectionOutcome) error {
	if len(companyIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE companies SET collection_status = $1, collection_reason = $2, updated_at = $3 WHERE company_id = ANY($4)`,
		string(outcome.Status), outcome.Reason, s.now().UTC(), companyIDs,
	)
	return eris.Wrapf(err, "postgres: set collection outcome for %d companies", len(companyIDs))
}

const companySelect = `SELECT company_id, name, city, state, niche, COALESCE(website, ''),
	collection_status, COALESCE(collection_reason, ''), website_data,
	COALESCE(website_scraping_status, ''), COALESCE(website_scraping_reason, ''),
	website_scraped_at, created_at, updated_at
FROM companies`

func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (*model.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, companySelect+` WHERE company_id = $1`, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: company %s", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", companyID)
	}
	return c, nil
}

func (s *PostgresStore) ListPendingWebsites(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		companySelect+` WHERE website IS NOT NULL AND website <> '' AND website_scraping_status IS NULL
ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending websites")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pending websites iterate")
}

func (s *PostgresStore) UpdateWebsiteData(ctx context.Context, upd model.WebsiteUpdate) error {
	var data any
	if upd.Data != nil {
		data = string(upd.Data)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET website_data = COALESCE($2::jsonb, website_data),
	website_scraping_status = $3, website_scraping_reason = $4, website_scraped_at = $5, updated_at = $5
WHERE company_id = $1`,
		upd.CompanyID, data, string(upd.Status), upd.Reason, upd.ScrapedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update website data %s", upd.CompanyID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(unknownCompany(upd.CompanyID), "postgres: update website data")
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCompany(row scannable) (*model.Company, error) {
	var (
		c         model.Company
		data      []byte
		scrapedAt *time.Time
	)
	err := row.Scan(&c.CompanyID, &c.Name, &c.City, &c.State, &c.Niche, &c.Website,
		&c.CollectionStatus, &c.CollectionReason, &data,
		&c.WebsiteStatus, &c.WebsiteReason,
		&scrapedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		c.WebsiteData = data
	}
	c.WebsiteScrapedAt = scrapedAt
	return &c, nil
}
