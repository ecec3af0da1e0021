// Package providers holds the competitor scrapers and the shared run loop
// that turns their variation points into a scrape job result.
package providers

import (
	"context"
	"iter"

	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/normalize"
)

// Extractor is the part of *extraction.Session a scraper talks to.
type Extractor interface {
	ScrapeURL(ctx context.Context, url string, opts extraction.ScrapeOptions) (*extraction.ScrapeResponse, error)
	ExtractData(ctx context.Context, url string, schema map[string]interface{}, prompt string) (*extraction.ExtractResponse, error)
	BatchScrape(ctx context.Context, urls []string, opts extraction.ScrapeOptions) []extraction.BatchResult
	MapSite(ctx context.Context, url string, opts extraction.MapOptions) ([]string, error)
	CreditsUsed() int
	Cost(op extraction.Operation) int
}

// Scraper is implemented by each competitor package.
type Scraper interface {
	// Slug is the registry key, e.g. "mtn".
	Slug() string
	// Profile tunes normalization for this competitor.
	Profile() normalize.Profile
	// FetchCandidateURLs lazily yields the pages that carry offerings.
	// A yielded error is recorded and iteration continues unless the
	// consumer stops.
	FetchCandidateURLs(ctx context.Context, ex Extractor) iter.Seq2[string, error]
	// ExtractProducts pulls raw offerings from one page.
	ExtractProducts(ctx context.Context, ex Extractor, url string) ([]market.RawProduct, error)
}

// Logger is satisfied by *logrus.Logger and *logrus.Entry.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
