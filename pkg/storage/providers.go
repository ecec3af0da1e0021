package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rivalscope/rivalscope/pkg/market"
)

const providerColumns = "id, slug, name, base_urls, kind, active, scrape_frequency, last_scraped_at"

func scanProvider(s scanner) (market.Provider, error) {
	var (
		p        market.Provider
		urls     string
		active   int
		freq     string
		lastScan sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Slug, &p.Name, &urls, &p.Kind, &active, &freq, &lastScan); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(urls), &p.BaseURLs); err != nil {
		return p, fmt.Errorf("provider %s base urls: %w", p.Slug, err)
	}
	p.Active = active == 1
	p.ScrapeFrequency = market.Frequency(freq)
	last, err := parseNullTime(lastScan)
	if err != nil {
		return p, err
	}
	p.LastScrapedAt = last
	return p, nil
}

func (d *DB) ListProviders(ctx context.Context) ([]market.Provider, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT "+providerColumns+" FROM providers ORDER BY slug")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) GetProvider(ctx context.Context, slug string) (*market.Provider, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+providerColumns+" FROM providers WHERE slug = ?", slug)
	p, err := scanProvider(row)
	if err != nil {
		return nil, notFound(err, "provider "+slug)
	}
	return &p, nil
}

// SaveProvider inserts a provider or updates the one with the same slug.
// The stored ID wins over the one passed in.
func (d *DB) SaveProvider(ctx context.Context, p *market.Provider) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.ScrapeFrequency == "" {
		p.ScrapeFrequency = market.Daily
	}
	urls, err := json.Marshal(p.BaseURLs)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `
INSERT INTO providers(`+providerColumns+`) VALUES(?,?,?,?,?,?,?,?)
ON CONFLICT(slug) DO UPDATE SET
  name = excluded.name,
  base_urls = excluded.base_urls,
  kind = excluded.kind,
  active = excluded.active,
  scrape_frequency = excluded.scrape_frequency,
  last_scraped_at = COALESCE(excluded.last_scraped_at, providers.last_scraped_at)`,
		p.ID, p.Slug, p.Name, string(urls), p.Kind, boolToInt(p.Active), string(p.ScrapeFrequency), nullTime(p.LastScrapedAt))
	if err != nil {
		return fmt.Errorf("saving provider %s: %w", p.Slug, err)
	}
	return d.sql.QueryRowContext(ctx, "SELECT id FROM providers WHERE slug = ?", p.Slug).Scan(&p.ID)
}

// SetProviderActive toggles whether a provider takes part in batch runs.
func (d *DB) SetProviderActive(ctx context.Context, slug string, active bool) error {
	res, err := d.sql.ExecContext(ctx, "UPDATE providers SET active = ? WHERE slug = ?", boolToInt(active), slug)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return notFound(sql.ErrNoRows, "provider "+slug)
	}
	return nil
}

func (d *DB) MarkScraped(ctx context.Context, providerID string, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, "UPDATE providers SET last_scraped_at = ? WHERE id = ?", formatTime(at), providerID)
	return err
}
