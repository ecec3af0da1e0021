package market

import "time"

// Frequency controls how often a provider is due for a scheduled scrape.
type Frequency string

const (
	Hourly  Frequency = "hourly"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Interval returns the minimum time between two scheduled scrapes.
// Unknown values fall back to daily.
func (f Frequency) Interval() time.Duration {
	switch f {
	case Hourly:
		return time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	case Monthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Provider identifies a tracked competitor.
type Provider struct {
	ID              string     `json:"id"`
	Slug            string     `json:"slug"`
	Name            string     `json:"name"`
	BaseURLs        []string   `json:"base_urls"`
	Kind            string     `json:"kind"` // mobile, fibre, wireless
	Active          bool       `json:"active"`
	ScrapeFrequency Frequency  `json:"scrape_frequency"`
	LastScrapedAt   *time.Time `json:"last_scraped_at"`
}

// DueAt reports whether the provider should be scraped at now.
func (p Provider) DueAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.LastScrapedAt == nil {
		return true
	}
	return now.Sub(*p.LastScrapedAt) >= p.ScrapeFrequency.Interval()
}

// StaleAt reports whether the provider has not been scraped within window.
func (p Provider) StaleAt(now time.Time, window time.Duration) bool {
	if p.LastScrapedAt == nil {
		return true
	}
	return p.LastScrapedAt.Before(now.Add(-window))
}
