package market

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidConfidence is returned for a match confidence outside [0,1].
var ErrInvalidConfidence = errors.New("match confidence must be within [0,1]")

// Match is a scored link between an internal product and a competitor product.
type Match struct {
	ID                  string    `json:"id"`
	InternalProductID   string    `json:"internal_product_id"`
	CompetitorProductID string    `json:"competitor_product_id"`
	Confidence          float64   `json:"confidence"`
	Notes               string    `json:"notes,omitempty"`
	Reviewed            bool      `json:"reviewed"`
	LastSeenAt          time.Time `json:"last_seen_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewMatch builds a match, rejecting an out-of-range confidence.
func NewMatch(internalID, competitorID string, confidence float64, notes string) (Match, error) {
	if err := ValidateConfidence(confidence); err != nil {
		return Match{}, err
	}
	return Match{
		ID:                  uuid.NewString(),
		InternalProductID:   internalID,
		CompetitorProductID: competitorID,
		Confidence:          confidence,
		Notes:               notes,
	}, nil
}

func ValidateConfidence(c float64) error {
	// NaN fails both comparisons
	if !(c >= 0 && c <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidConfidence, c)
	}
	return nil
}

// Severity buckets the magnitude of a price change.
type Severity string

const (
	Minor    Severity = "minor"
	Major    Severity = "major"
	Critical Severity = "critical"
)

// PriceChange is a detected difference between two observed prices.
type PriceChange struct {
	ID                  string          `json:"id"`
	CompetitorProductID string          `json:"competitor_product_id"`
	ProviderID          string          `json:"provider_id"`
	ProductName         string          `json:"product_name"`
	PreviousPrice       decimal.Decimal `json:"previous_price"`
	NewPrice            decimal.Decimal `json:"new_price"`
	PercentChange       float64         `json:"percent_change"` // fraction: 0.2 means +20%
	Severity            Severity        `json:"severity"`
	DetectedAt          time.Time       `json:"detected_at"`
}

type AlertType string

const (
	AlertScrapeFailure       AlertType = "scrape_failure"
	AlertStaleProvider       AlertType = "stale_provider"
	AlertPriceChange         AlertType = "price_change"
	AlertProductDiscontinued AlertType = "product_discontinued"
	AlertBudgetExhausted     AlertType = "budget_exhausted"
)

type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is the human-facing summary of a notable event.
type Alert struct {
	ID                  string        `json:"id"`
	Type                AlertType     `json:"type"`
	Severity            AlertSeverity `json:"severity"`
	ProviderID          string        `json:"provider_id,omitempty"`
	CompetitorProductID string        `json:"competitor_product_id,omitempty"`
	Title               string        `json:"title"`
	Message             string        `json:"message"`
	DedupKey            string        `json:"-"`
	CreatedAt           time.Time     `json:"created_at"`
}

// DedupKey builds the per-day deduplication key for an alert subject.
func DedupKey(t AlertType, subject string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%s", t, subject, at.UTC().Format("2006-01-02"))
}

// JobStatus is the state of one provider scrape job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobPartial   JobStatus = "partial"
)

// ScrapeJobResult is the outcome of one provider run.
type ScrapeJobResult struct {
	ID                string        `json:"id"`
	ProviderID        string        `json:"provider_id"`
	ProviderSlug      string        `json:"provider_slug"`
	Status            JobStatus     `json:"status"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       time.Time     `json:"completed_at"`
	ProductsFound     int           `json:"products_found"`
	ProductsNew       int           `json:"products_new"`
	ProductsUpdated   int           `json:"products_updated"`
	ProductsUnchanged int           `json:"products_unchanged"`
	ProductsRemoved   int           `json:"products_removed"`
	Errors            []string      `json:"errors,omitempty"`
	CreditsConsumed   int           `json:"credits_consumed"`
	PriceChanges      []PriceChange `json:"price_changes,omitempty"`
	Alerts            []Alert       `json:"alerts,omitempty"`
}

func (r *ScrapeJobResult) Terminal() bool {
	switch r.Status {
	case JobSucceeded, JobFailed, JobPartial:
		return true
	}
	return false
}

// ErrorMessage joins the recorded errors, or returns "" when there are none.
func (r *ScrapeJobResult) ErrorMessage() string {
	return strings.Join(r.Errors, "; ")
}

func (r *ScrapeJobResult) AddError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}
