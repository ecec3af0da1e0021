// Package pricing compares observed prices against the last known price and
// classifies the differences.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/shopspring/decimal"
)

// Config holds the severity thresholds as fractions (0.05 = 5%).
type Config struct {
	MajorThreshold    float64 `mapstructure:"major_threshold"`
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
}

func DefaultConfig() Config {
	return Config{MajorThreshold: 0.05, CriticalThreshold: 0.15}
}

// State is the outcome of observing one product.
type State string

const (
	Tracked      State = "tracked"
	Unchanged    State = "unchanged"
	Changed      State = "changed"
	Discontinued State = "discontinued"
)

// Observation is what the detector concluded about one product.
// Change and Alert are nil when there is nothing to report.
type Observation struct {
	State  State
	Change *market.PriceChange
	Alert  *market.Alert
}

type Detector struct {
	major    decimal.Decimal
	critical decimal.Decimal
}

func New(cfg Config) (*Detector, error) {
	if cfg.MajorThreshold <= 0 || cfg.CriticalThreshold <= cfg.MajorThreshold {
		return nil, errors.New("detector thresholds must satisfy 0 < major < critical")
	}
	return &Detector{
		major:    decimal.NewFromFloat(cfg.MajorThreshold),
		critical: decimal.NewFromFloat(cfg.CriticalThreshold),
	}, nil
}

// Classify buckets a signed fractional change by its magnitude.
func (d *Detector) Classify(pct decimal.Decimal) market.Severity {
	abs := pct.Abs()
	switch {
	case abs.GreaterThanOrEqual(d.critical):
		return market.Critical
	case abs.GreaterThanOrEqual(d.major):
		return market.Major
	default:
		return market.Minor
	}
}

// Observe compares the newly scraped offering with its stored record.
// previous is nil for an offering seen for the first time.
func (d *Detector) Observe(previous *market.CompetitorProduct, observed market.NormalizedProduct, at time.Time) Observation {
	if previous == nil || !previous.MonthlyPrice.IsPositive() {
		return Observation{State: Tracked}
	}
	if previous.MonthlyPrice.Equal(observed.MonthlyPrice) {
		return Observation{State: Unchanged}
	}

	pct := observed.MonthlyPrice.Sub(previous.MonthlyPrice).Div(previous.MonthlyPrice)
	change := &market.PriceChange{
		ID:                  uuid.NewString(),
		CompetitorProductID: previous.ID,
		ProviderID:          previous.ProviderID,
		ProductName:         observed.Name,
		PreviousPrice:       previous.MonthlyPrice,
		NewPrice:            observed.MonthlyPrice,
		PercentChange:       pct.InexactFloat64(),
		Severity:            d.Classify(pct),
		DetectedAt:          at.UTC(),
	}
	return Observation{State: Changed, Change: change, Alert: d.Alert(*change)}
}

// Alert builds the dashboard alert for a change, nil for minor changes.
func (d *Detector) Alert(change market.PriceChange) *market.Alert {
	var sev market.AlertSeverity
	switch change.Severity {
	case market.Critical:
		sev = market.AlertCritical
	case market.Major:
		sev = market.AlertWarning
	default:
		return nil
	}

	direction := "increase"
	if change.NewPrice.LessThan(change.PreviousPrice) {
		direction = "decrease"
	}
	return &market.Alert{
		ID:                  uuid.NewString(),
		Type:                market.AlertPriceChange,
		Severity:            sev,
		ProviderID:          change.ProviderID,
		CompetitorProductID: change.CompetitorProductID,
		Title:               fmt.Sprintf("Price %s: %s", direction, change.ProductName),
		Message: fmt.Sprintf("%s moved from R%s to R%s (%+.1f%%)",
			change.ProductName, change.PreviousPrice.StringFixed(2), change.NewPrice.StringFixed(2), change.PercentChange*100),
		DedupKey:  market.DedupKey(market.AlertPriceChange, change.CompetitorProductID, change.DetectedAt),
		CreatedAt: change.DetectedAt,
	}
}

// Discontinue reports an offering that disappeared from a complete scrape.
// It is not a price change.
func (d *Detector) Discontinue(product market.CompetitorProduct, at time.Time) Observation {
	at = at.UTC()
	return Observation{
		State: Discontinued,
		Alert: &market.Alert{
			ID:                  uuid.NewString(),
			Type:                market.AlertProductDiscontinued,
			Severity:            market.AlertInfo,
			ProviderID:          product.ProviderID,
			CompetitorProductID: product.ID,
			Title:               "Product no longer listed: " + product.Name,
			Message:             fmt.Sprintf("%s (last price R%s) was not found in the latest scrape", product.Name, product.MonthlyPrice.StringFixed(2)),
			DedupKey:            market.DedupKey(market.AlertProductDiscontinued, product.ID, at),
			CreatedAt:           at,
		},
	}
}
