// Package providertest provides an in-memory Extractor for scraper tests.
package providertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/tidwall/gjson"
)

// Extractor answers from canned data keyed by URL. With a Budget set it
// enforces the ceiling the same way a real session does.
type Extractor struct {
	Pages    map[string]string // url -> HTML
	Extracts map[string]string // url -> JSON data
	Maps     map[string][]string
	Errors   map[string]error
	Budget   int
	Costs    extraction.Costs
	// Delay holds every extract call, so concurrent runs overlap.
	Delay time.Duration

	mu        sync.Mutex
	used      int
	exhausted bool
	calls     []string
}

// Cost returns the price of op, DefaultCosts unless Costs is set.
func (f *Extractor) Cost(op extraction.Operation) int {
	costs := f.Costs
	if costs == (extraction.Costs{}) {
		costs = extraction.DefaultCosts
	}
	switch op {
	case extraction.OpExtract:
		return costs.Extract
	case extraction.OpMap:
		return costs.Map
	default:
		return costs.Scrape
	}
}

// reserve admits a call under the budget and records it. The call is
// charged only when it succeeds, as with a real session.
func (f *Extractor) reserve(op extraction.Operation, url string) error {
	cost := f.Cost(op)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exhausted || (f.Budget > 0 && f.used+cost > f.Budget) {
		f.exhausted = true
		return &extraction.Error{Kind: extraction.BudgetExceeded, Op: op, URL: url}
	}
	f.calls = append(f.calls, fmt.Sprintf("%s %s", op, url))
	return f.Errors[url]
}

func (f *Extractor) charge(op extraction.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used += f.Cost(op)
}

func (f *Extractor) ScrapeURL(_ context.Context, url string, _ extraction.ScrapeOptions) (*extraction.ScrapeResponse, error) {
	if err := f.reserve(extraction.OpScrape, url); err != nil {
		return nil, err
	}
	html, ok := f.Pages[url]
	if !ok {
		return nil, &extraction.Error{Kind: extraction.InvalidResponse, Op: extraction.OpScrape, URL: url, Status: 404}
	}
	f.charge(extraction.OpScrape)
	return &extraction.ScrapeResponse{URL: url, HTML: html}, nil
}

func (f *Extractor) ExtractData(ctx context.Context, url string, _ map[string]interface{}, _ string) (*extraction.ExtractResponse, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, &extraction.Error{Kind: extraction.Timeout, Op: extraction.OpExtract, URL: url, Err: ctx.Err()}
		}
	}
	if err := f.reserve(extraction.OpExtract, url); err != nil {
		return nil, err
	}
	data, ok := f.Extracts[url]
	if !ok {
		return nil, &extraction.Error{Kind: extraction.InvalidResponse, Op: extraction.OpExtract, URL: url}
	}
	f.charge(extraction.OpExtract)
	return &extraction.ExtractResponse{URL: url, Data: gjson.Parse(data)}, nil
}

func (f *Extractor) BatchScrape(ctx context.Context, urls []string, opts extraction.ScrapeOptions) []extraction.BatchResult {
	out := make([]extraction.BatchResult, len(urls))
	for i, u := range urls {
		out[i].URL = u
		out[i].Response, out[i].Err = f.ScrapeURL(ctx, u, opts)
	}
	return out
}

func (f *Extractor) MapSite(_ context.Context, url string, _ extraction.MapOptions) ([]string, error) {
	if err := f.reserve(extraction.OpMap, url); err != nil {
		return nil, err
	}
	f.charge(extraction.OpMap)
	return f.Maps[url], nil
}

func (f *Extractor) CreditsUsed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used
}

// Calls returns the calls that reached the fake service, in order.
func (f *Extractor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Exhausted reports whether a call has been refused for budget.
func (f *Extractor) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exhausted
}
