package providers

import (
	"context"
	"sync"

	"github.com/rivalscope/rivalscope/pkg/extraction"
)

// meter is one provider's view of a shared Extractor. Calls go through the
// shared budget unchanged; the credits of the calls that succeed are also
// counted here, so CreditsUsed covers this provider alone even while other
// providers draw on the same session.
type meter struct {
	Extractor

	mu   sync.Mutex
	used int
}

func newMeter(ex Extractor) *meter { return &meter{Extractor: ex} }

func (m *meter) add(op extraction.Operation, err error) {
	if err != nil {
		return
	}
	cost := m.Extractor.Cost(op)
	m.mu.Lock()
	m.used += cost
	m.mu.Unlock()
}

func (m *meter) ScrapeURL(ctx context.Context, url string, opts extraction.ScrapeOptions) (*extraction.ScrapeResponse, error) {
	res, err := m.Extractor.ScrapeURL(ctx, url, opts)
	m.add(extraction.OpScrape, err)
	return res, err
}

func (m *meter) ExtractData(ctx context.Context, url string, schema map[string]interface{}, prompt string) (*extraction.ExtractResponse, error) {
	res, err := m.Extractor.ExtractData(ctx, url, schema, prompt)
	m.add(extraction.OpExtract, err)
	return res, err
}

func (m *meter) BatchScrape(ctx context.Context, urls []string, opts extraction.ScrapeOptions) []extraction.BatchResult {
	results := m.Extractor.BatchScrape(ctx, urls, opts)
	for _, r := range results {
		m.add(extraction.OpScrape, r.Err)
	}
	return results
}

func (m *meter) MapSite(ctx context.Context, url string, opts extraction.MapOptions) ([]string, error) {
	links, err := m.Extractor.MapSite(ctx, url, opts)
	m.add(extraction.OpMap, err)
	return links, err
}

// CreditsUsed returns the credits charged through this view.
func (m *meter) CreditsUsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
