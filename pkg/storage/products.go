package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/shopspring/decimal"
)

const productColumns = `id, provider_id, identity_key, external_id, name, product_type, technology,
  monthly_price, once_off_price, data_allowance_gb, contract_term_months, device_included,
  device_name, speed_mbps, source_url, is_current, first_seen_at, last_seen_at`

func scanProduct(s scanner) (market.CompetitorProduct, error) {
	var (
		p                       market.CompetitorProduct
		externalID, deviceName  sql.NullString
		sourceURL, onceOff      sql.NullString
		monthly, first, last    string
		productType, technology string
		data, speed             sql.NullInt64
		deviceIncluded, current int
	)
	err := s.Scan(&p.ID, &p.ProviderID, &p.IdentityKey, &externalID, &p.Name, &productType, &technology,
		&monthly, &onceOff, &data, &p.ContractTermMonths, &deviceIncluded,
		&deviceName, &speed, &sourceURL, &current, &first, &last)
	if err != nil {
		return p, err
	}
	p.ExternalID = externalID.String
	p.DeviceName = deviceName.String
	p.SourceURL = sourceURL.String
	p.ProductType = market.ProductType(productType)
	p.Technology = market.Technology(technology)
	p.DataAllowanceGB = intPtr(data)
	p.SpeedMbps = intPtr(speed)
	p.DeviceIncluded = deviceIncluded == 1
	p.Lifecycle = market.Superseded
	if current == 1 {
		p.Lifecycle = market.Current
	}
	if p.MonthlyPrice, err = decimal.NewFromString(monthly); err != nil {
		return p, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	if p.OnceOffPrice, err = parseNullDecimal(onceOff); err != nil {
		return p, fmt.Errorf("product %s once-off price: %w", p.ID, err)
	}
	if p.FirstSeenAt, err = parseTime(first); err != nil {
		return p, err
	}
	if p.LastSeenAt, err = parseTime(last); err != nil {
		return p, err
	}
	return p, nil
}

func (d *DB) CurrentProducts(ctx context.Context, providerID string) ([]market.CompetitorProduct, error) {
	q := "SELECT " + productColumns + " FROM competitor_products WHERE is_current = 1"
	var args []interface{}
	if providerID != "" {
		q += " AND provider_id = ?"
		args = append(args, providerID)
	}
	q += " ORDER BY provider_id, name, id"
	return d.queryProducts(ctx, q, args...)
}

// ListProducts returns products of one provider slug, or all when slug is
// empty. Superseded rows are included on request.
func (d *DB) ListProducts(ctx context.Context, slug string, includeSuperseded bool) ([]market.CompetitorProduct, error) {
	q := "SELECT " + productColumns + " FROM competitor_products WHERE 1=1"
	var args []interface{}
	if slug != "" {
		q += " AND provider_id IN (SELECT id FROM providers WHERE slug = ?)"
		args = append(args, slug)
	}
	if !includeSuperseded {
		q += " AND is_current = 1"
	}
	q += " ORDER BY provider_id, name, first_seen_at"
	return d.queryProducts(ctx, q, args...)
}

func (d *DB) queryProducts(ctx context.Context, q string, args ...interface{}) ([]market.CompetitorProduct, error) {
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.CompetitorProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) CountSuperseded(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM competitor_products WHERE is_current = 0").Scan(&n)
	return n, err
}

// InsertProduct adds a current product. A second current row for the same
// provider and identity key violates the partial unique index.
func (d *DB) InsertProduct(ctx context.Context, p market.CompetitorProduct) error {
	_, err := d.sql.ExecContext(ctx, "INSERT INTO competitor_products("+productColumns+") VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		p.ID, p.ProviderID, p.IdentityKey, nullIfEmpty(p.ExternalID), p.Name, string(p.ProductType), string(p.Technology),
		p.MonthlyPrice.String(), nullDecimal(p.OnceOffPrice), nullInt(p.DataAllowanceGB), p.ContractTermMonths, boolToInt(p.DeviceIncluded),
		nullIfEmpty(p.DeviceName), nullInt(p.SpeedMbps), nullIfEmpty(p.SourceURL), boolToInt(p.IsCurrent()),
		formatTime(p.FirstSeenAt), formatTime(p.LastSeenAt))
	if err != nil {
		return fmt.Errorf("inserting product %q: %w", p.Name, err)
	}
	return nil
}

func (d *DB) UpdateProduct(ctx context.Context, p market.CompetitorProduct) error {
	res, err := d.sql.ExecContext(ctx, `
UPDATE competitor_products SET
  external_id = ?, name = ?, product_type = ?, technology = ?, monthly_price = ?, once_off_price = ?,
  data_allowance_gb = ?, contract_term_months = ?, device_included = ?, device_name = ?, speed_mbps = ?,
  source_url = ?, last_seen_at = ?
WHERE id = ?`,
		nullIfEmpty(p.ExternalID), p.Name, string(p.ProductType), string(p.Technology), p.MonthlyPrice.String(), nullDecimal(p.OnceOffPrice),
		nullInt(p.DataAllowanceGB), p.ContractTermMonths, boolToInt(p.DeviceIncluded), nullIfEmpty(p.DeviceName), nullInt(p.SpeedMbps),
		nullIfEmpty(p.SourceURL), formatTime(p.LastSeenAt), p.ID)
	if err != nil {
		return fmt.Errorf("updating product %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "product "+p.ID)
	}
	return nil
}

func (d *DB) SupersedeProduct(ctx context.Context, id string, at time.Time) error {
	res, err := d.sql.ExecContext(ctx, "UPDATE competitor_products SET is_current = 0, superseded_at = ? WHERE id = ? AND is_current = 1", formatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "current product "+id)
	}
	return nil
}

func (d *DB) AppendPriceHistory(ctx context.Context, pp market.PricePoint) error {
	_, err := d.sql.ExecContext(ctx, "INSERT INTO price_history(competitor_product_id, monthly_price, recorded_at) VALUES(?,?,?)",
		pp.CompetitorProductID, pp.MonthlyPrice.String(), formatTime(pp.RecordedAt))
	return err
}

// PriceHistory returns a product's price rows, oldest first.
func (d *DB) PriceHistory(ctx context.Context, productID string) ([]market.PricePoint, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT monthly_price, recorded_at FROM price_history WHERE competitor_product_id = ? ORDER BY recorded_at, id", productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.PricePoint
	for rows.Next() {
		var price, at string
		if err := rows.Scan(&price, &at); err != nil {
			return nil, err
		}
		pp := market.PricePoint{CompetitorProductID: productID}
		if pp.MonthlyPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if pp.RecordedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

func (d *DB) SavePriceChange(ctx context.Context, c market.PriceChange) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO price_changes(id, competitor_product_id, provider_id, product_name, previous_price, new_price, percent_change, severity, detected_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CompetitorProductID, c.ProviderID, c.ProductName, c.PreviousPrice.String(), c.NewPrice.String(), c.PercentChange, string(c.Severity), formatTime(c.DetectedAt))
	return err
}

// PriceChangesSince lists changes detected at or after since, newest first.
func (d *DB) PriceChangesSince(ctx context.Context, since time.Time) ([]market.PriceChange, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, competitor_product_id, provider_id, product_name, previous_price, new_price, percent_change, severity, detected_at FROM price_changes WHERE detected_at >= ? ORDER BY detected_at DESC, id`, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.PriceChange
	for rows.Next() {
		var (
			c              market.PriceChange
			prev, next, at string
			severity       string
		)
		if err := rows.Scan(&c.ID, &c.CompetitorProductID, &c.ProviderID, &c.ProductName, &prev, &next, &c.PercentChange, &severity, &at); err != nil {
			return nil, err
		}
		c.Severity = market.Severity(severity)
		if c.PreviousPrice, err = decimal.NewFromString(prev); err != nil {
			return nil, err
		}
		if c.NewPrice, err = decimal.NewFromString(next); err != nil {
			return nil, err
		}
		if c.DetectedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
