package storage

import (
	"context"
	"database/sql"

	"github.com/rivalscope/rivalscope/pkg/market"
)

// SaveAlert inserts an alert unless its dedup key is already stored.
func (d *DB) SaveAlert(ctx context.Context, a market.Alert) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT INTO alerts(id, type, severity, provider_id, competitor_product_id, title, message, dedup_key, created_at)
VALUES(?,?,?,?,?,?,?,?,?) ON CONFLICT(dedup_key) DO NOTHING`,
		a.ID, string(a.Type), string(a.Severity), nullIfEmpty(a.ProviderID), nullIfEmpty(a.CompetitorProductID),
		a.Title, a.Message, a.DedupKey, formatTime(a.CreatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecentAlerts returns the newest alerts first.
func (d *DB) RecentAlerts(ctx context.Context, limit int) ([]market.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT id, type, severity, provider_id, competitor_product_id, title, message, dedup_key, created_at
FROM alerts ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []market.Alert{}
	for rows.Next() {
		var (
			a                 market.Alert
			typ, severity, at string
			provider, product sql.NullString
		)
		if err := rows.Scan(&a.ID, &typ, &severity, &provider, &product, &a.Title, &a.Message, &a.DedupKey, &at); err != nil {
			return nil, err
		}
		a.Type = market.AlertType(typ)
		a.Severity = market.AlertSeverity(severity)
		a.ProviderID = provider.String
		a.CompetitorProductID = product.String
		if a.CreatedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
