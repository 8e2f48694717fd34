package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a staged INSERT ... ON CONFLICT DO UPDATE.
type UpsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns carried by each row, in row order
	ConflictKeys []string // columns of the unique constraint
	UpdateCols   []string // columns overwritten on conflict; nil means every non-key column
	// UpdateWhere guards the DO UPDATE branch. The target table is aliased t,
	// so "t.content_hash IS DISTINCT FROM EXCLUDED.content_hash" skips rows
	// whose content did not change.
	UpdateWhere string
}

// UpsertTx stages rows in a temporary table on tx and merges them into the
// target. It returns the number of target rows inserted or updated, which
// excludes rows filtered by UpdateWhere.
func UpsertTx(ctx context.Context, tx Querier, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	name := stageName(cfg.Table)
	stage := pgx.Identifier{name}.Sanitize()
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage, sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create stage", cfg.Table)
	}

	if _, err := CopyFrom(ctx, tx, name, cfg.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: stage rows", cfg.Table)
	}

	tag, err := tx.Exec(ctx, upsertSQL(cfg, stage, cfg.updateCols()))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge", cfg.Table)
	}

	// The stage outlives this call until commit; empty it for the next batch.
	if _, err := tx.Exec(ctx, "TRUNCATE "+stage); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: truncate stage", cfg.Table)
	}

	return tag.RowsAffected(), nil
}

func (cfg UpsertConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (cfg UpsertConfig) updateCols() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !slices.Contains(cfg.ConflictKeys, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// stageName names the temporary table rows for target are staged in.
func stageName(target string) string {
	return "_stage_" + strings.ReplaceAll(target, ".", "_")
}

func upsertSQL(cfg UpsertConfig, stage string, updateCols []string) string {
	cols := quoteAndJoin(cfg.Columns)

	set := make([]string, len(updateCols))
	for i, col := range updateCols {
		q := pgx.Identifier{col}.Sanitize()
		set[i] = q + " = EXCLUDED." + q
	}

	q := fmt.Sprintf(
		"INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(cfg.Table), cols, cols, stage,
		quoteAndJoin(cfg.ConflictKeys), strings.Join(set, ", "),
	)
	if cfg.UpdateWhere != "" {
		q += " WHERE " + cfg.UpdateWhere
	}
	return q
}

// sanitizeTable quotes a table name, splitting an optional schema prefix.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
