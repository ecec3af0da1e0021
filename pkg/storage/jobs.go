package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rivalscope/rivalscope/pkg/market"
)

func (d *DB) SaveJobResult(ctx context.Context, r *market.ScrapeJobResult) error {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	completed := r.CompletedAt
	_, err = d.sql.ExecContext(ctx, `INSERT INTO scrape_jobs(id, provider_id, provider_slug, status, started_at, completed_at,
  products_found, products_new, products_updated, products_unchanged, products_removed, errors, credits_consumed)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  completed_at = excluded.completed_at,
  products_found = excluded.products_found,
  products_new = excluded.products_new,
  products_updated = excluded.products_updated,
  products_unchanged = excluded.products_unchanged,
  products_removed = excluded.products_removed,
  errors = excluded.errors,
  credits_consumed = excluded.credits_consumed`,
		r.ID, nullIfEmpty(r.ProviderID), r.ProviderSlug, string(r.Status), formatTime(r.StartedAt), nullTime(&completed),
		r.ProductsFound, r.ProductsNew, r.ProductsUpdated, r.ProductsUnchanged, r.ProductsRemoved, string(encoded), r.CreditsConsumed)
	return err
}

// RecentJobs returns the latest job results, newest first. Price changes and
// alerts are stored in their own tables and are not attached.
func (d *DB) RecentJobs(ctx context.Context, limit int) ([]market.ScrapeJobResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT id, provider_id, provider_slug, status, started_at, completed_at,
  products_found, products_new, products_updated, products_unchanged, products_removed, errors, credits_consumed
FROM scrape_jobs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.ScrapeJobResult
	for rows.Next() {
		var (
			r                    market.ScrapeJobResult
			providerID, finished sql.NullString
			status, started      string
			errs                 string
		)
		if err := rows.Scan(&r.ID, &providerID, &r.ProviderSlug, &status, &started, &finished,
			&r.ProductsFound, &r.ProductsNew, &r.ProductsUpdated, &r.ProductsUnchanged, &r.ProductsRemoved, &errs, &r.CreditsConsumed); err != nil {
			return nil, err
		}
		r.ProviderID = providerID.String
		r.Status = market.JobStatus(status)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		done, err := parseNullTime(finished)
		if err != nil {
			return nil, err
		}
		if done != nil {
			r.CompletedAt = *done
		}
		if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
