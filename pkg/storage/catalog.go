package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/shopspring/decimal"
)

// Catalog returns the operator's own products ordered by ID.
func (d *DB) Catalog(ctx context.Context) ([]market.InternalProduct, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, name, product_type, technology, monthly_price, data_allowance_gb, speed_mbps, contract_term_months, subscribers
FROM internal_products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.InternalProduct
	for rows.Next() {
		var (
			p                        market.InternalProduct
			productType, tech, price string
			data, speed, subscribers sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &productType, &tech, &price, &data, &speed, &p.ContractTermMonths, &subscribers); err != nil {
			return nil, err
		}
		p.ProductType = market.ProductType(productType)
		p.Technology = market.Technology(tech)
		p.DataAllowanceGB = intPtr(data)
		p.SpeedMbps = intPtr(speed)
		p.Subscribers = intPtr(subscribers)
		if p.MonthlyPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("internal product %s price: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveInternalProduct inserts or replaces one catalog row.
func (d *DB) SaveInternalProduct(ctx context.Context, p market.InternalProduct) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO internal_products(id, name, product_type, technology, monthly_price, data_allowance_gb, speed_mbps, contract_term_months, subscribers)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  name = excluded.name,
  product_type = excluded.product_type,
  technology = excluded.technology,
  monthly_price = excluded.monthly_price,
  data_allowance_gb = excluded.data_allowance_gb,
  speed_mbps = excluded.speed_mbps,
  contract_term_months = excluded.contract_term_months,
  subscribers = excluded.subscribers`,
		p.ID, p.Name, string(p.ProductType), string(p.Technology), p.MonthlyPrice.String(),
		nullInt(p.DataAllowanceGB), nullInt(p.SpeedMbps), p.ContractTermMonths, nullInt(p.Subscribers))
	if err != nil {
		return fmt.Errorf("saving internal product %s: %w", p.ID, err)
	}
	return nil
}

const matchColumns = "id, internal_product_id, competitor_product_id, confidence, notes, reviewed, last_seen_at, created_at"

func (d *DB) Matches(ctx context.Context) ([]market.Match, error) {
	return d.queryMatches(ctx, "SELECT "+matchColumns+" FROM matches ORDER BY internal_product_id, confidence DESC, competitor_product_id")
}

// MatchesFor returns the matches of one internal product, best first.
func (d *DB) MatchesFor(ctx context.Context, internalID string) ([]market.Match, error) {
	return d.queryMatches(ctx, "SELECT "+matchColumns+" FROM matches WHERE internal_product_id = ? ORDER BY confidence DESC, competitor_product_id", internalID)
}

func (d *DB) queryMatches(ctx context.Context, q string, args ...interface{}) ([]market.Match, error) {
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Match
	for rows.Next() {
		var (
			m           market.Match
			notes, seen sql.NullString
			reviewed    int
			created     string
		)
		if err := rows.Scan(&m.ID, &m.InternalProductID, &m.CompetitorProductID, &m.Confidence, &notes, &reviewed, &seen, &created); err != nil {
			return nil, err
		}
		m.Notes = notes.String
		m.Reviewed = reviewed == 1
		last, err := parseNullTime(seen)
		if err != nil {
			return nil, err
		}
		if last != nil {
			m.LastSeenAt = *last
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (d *DB) ReplaceMatches(ctx context.Context, internalID string, matches []market.Match) error {
	for _, m := range matches {
		if err := market.ValidateConfidence(m.Confidence); err != nil {
			return err
		}
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM matches WHERE internal_product_id = ? AND reviewed = 0", internalID); err != nil {
			return err
		}
		for _, m := range matches {
			lastSeen := m.LastSeenAt
			_, err := tx.ExecContext(ctx, "INSERT INTO matches("+matchColumns+") VALUES(?,?,?,?,?,?,?,?) ON CONFLICT(internal_product_id, competitor_product_id) DO NOTHING",
				m.ID, internalID, m.CompetitorProductID, m.Confidence, nullIfEmpty(m.Notes), boolToInt(m.Reviewed), nullTime(&lastSeen), formatTime(m.CreatedAt))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReviewMatch marks a match as confirmed by a person so regeneration keeps it.
func (d *DB) ReviewMatch(ctx context.Context, id string) error {
	res, err := d.sql.ExecContext(ctx, "UPDATE matches SET reviewed = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "match "+id)
	}
	return nil
}
