// Package storage is the SQLite repository behind the pipeline.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rivalscope/rivalscope/pkg/pipeline"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var _ pipeline.Repository = (*DB)(nil)

type DB struct {
	sql *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS providers (
  id               TEXT PRIMARY KEY,
  slug             TEXT NOT NULL UNIQUE,
  name             TEXT NOT NULL,
  base_urls        TEXT NOT NULL DEFAULT '[]',
  kind             TEXT NOT NULL DEFAULT '',
  active           INTEGER NOT NULL DEFAULT 1 CHECK (active IN (0,1)),
  scrape_frequency TEXT NOT NULL DEFAULT 'daily',
  last_scraped_at  TEXT
);
CREATE TABLE IF NOT EXISTS competitor_products (
  id                   TEXT PRIMARY KEY,
  provider_id          TEXT NOT NULL REFERENCES providers(id),
  identity_key         TEXT NOT NULL,
  external_id          TEXT,
  name                 TEXT NOT NULL,
  product_type         TEXT NOT NULL,
  technology           TEXT NOT NULL,
  monthly_price        TEXT NOT NULL,
  once_off_price       TEXT,
  data_allowance_gb    INTEGER,
  contract_term_months INTEGER NOT NULL DEFAULT 0,
  device_included      INTEGER NOT NULL DEFAULT 0 CHECK (device_included IN (0,1)),
  device_name          TEXT,
  speed_mbps           INTEGER,
  source_url           TEXT,
  is_current           INTEGER NOT NULL DEFAULT 1 CHECK (is_current IN (0,1)),
  first_seen_at        TEXT NOT NULL,
  last_seen_at         TEXT NOT NULL,
  superseded_at        TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_products_current ON competitor_products(provider_id, identity_key) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_products_provider ON competitor_products(provider_id, is_current);
CREATE TABLE IF NOT EXISTS price_history (
  id                    INTEGER PRIMARY KEY,
  competitor_product_id TEXT NOT NULL REFERENCES competitor_products(id),
  monthly_price         TEXT NOT NULL,
  recorded_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_product ON price_history(competitor_product_id, recorded_at);
CREATE TABLE IF NOT EXISTS price_changes (
  id                    TEXT PRIMARY KEY,
  competitor_product_id TEXT NOT NULL,
  provider_id           TEXT NOT NULL,
  product_name          TEXT NOT NULL,
  previous_price        TEXT NOT NULL,
  new_price             TEXT NOT NULL,
  percent_change        REAL NOT NULL,
  severity              TEXT NOT NULL CHECK (severity IN ('minor','major','critical')),
  detected_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON price_changes(detected_at);
CREATE TABLE IF NOT EXISTS alerts (
  id                    TEXT PRIMARY KEY,
  type                  TEXT NOT NULL,
  severity              TEXT NOT NULL CHECK (severity IN ('info','warning','critical')),
  provider_id           TEXT,
  competitor_product_id TEXT,
  title                 TEXT NOT NULL,
  message               TEXT NOT NULL,
  dedup_key             TEXT NOT NULL UNIQUE,
  created_at            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(created_at);
CREATE TABLE IF NOT EXISTS internal_products (
  id                   TEXT PRIMARY KEY,
  name                 TEXT NOT NULL,
  product_type         TEXT NOT NULL,
  technology           TEXT NOT NULL,
  monthly_price        TEXT NOT NULL,
  data_allowance_gb    INTEGER,
  speed_mbps           INTEGER,
  contract_term_months INTEGER NOT NULL DEFAULT 0,
  subscribers          INTEGER
);
CREATE TABLE IF NOT EXISTS matches (
  id                    TEXT PRIMARY KEY,
  internal_product_id   TEXT NOT NULL,
  competitor_product_id TEXT NOT NULL,
  confidence            REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
  notes                 TEXT,
  reviewed              INTEGER NOT NULL DEFAULT 0 CHECK (reviewed IN (0,1)),
  last_seen_at          TEXT,
  created_at            TEXT NOT NULL,
  UNIQUE(internal_product_id, competitor_product_id)
);
CREATE TABLE IF NOT EXISTS scrape_jobs (
  id                 TEXT PRIMARY KEY,
  provider_id        TEXT,
  provider_slug      TEXT NOT NULL,
  status             TEXT NOT NULL,
  started_at         TEXT NOT NULL,
  completed_at       TEXT,
  products_found     INTEGER NOT NULL DEFAULT 0,
  products_new       INTEGER NOT NULL DEFAULT 0,
  products_updated   INTEGER NOT NULL DEFAULT 0,
  products_unchanged INTEGER NOT NULL DEFAULT 0,
  products_removed   INTEGER NOT NULL DEFAULT 0,
  errors             TEXT NOT NULL DEFAULT '[]',
  credits_consumed   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_jobs_time ON scrape_jobs(started_at);
`

// Open opens (or creates) the database at path and makes sure the schema
// exists.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// TableCount is one row of Stats.
type TableCount struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

var statTables = []string{"providers", "competitor_products", "price_history", "price_changes", "alerts", "internal_products", "matches", "scrape_jobs"}

// Stats counts the rows of every table.
func (d *DB) Stats(ctx context.Context) ([]TableCount, error) {
	out := make([]TableCount, 0, len(statTables))
	for _, t := range statTables {
		var n int
		// table names come from the fixed list above
		if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, TableCount{Table: t, Rows: n})
	}
	return out, nil
}

// withTx runs fn in a transaction, committing when it returns nil.
func (d *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// notFound maps sql.ErrNoRows onto pipeline.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, pipeline.ErrNotFound)
	}
	return err
}
