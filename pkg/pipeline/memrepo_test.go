package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rivalscope/rivalscope/pkg/market"
)

// memRepo is an in-memory Repository for pipeline tests.
type memRepo struct {
	mu        sync.Mutex
	providers map[string]*market.Provider // by slug
	products  map[string]*market.CompetitorProduct
	history   []market.PricePoint
	changes   []market.PriceChange
	alerts    []market.Alert
	dedup     map[string]struct{}
	catalog   []market.InternalProduct
	matches   []market.Match
	jobs      []market.ScrapeJobResult
}

func newMemRepo() *memRepo {
	return &memRepo{
		providers: make(map[string]*market.Provider),
		products:  make(map[string]*market.CompetitorProduct),
		dedup:     make(map[string]struct{}),
	}
}

var _ Repository = (*memRepo)(nil)

func (m *memRepo) ListProviders(context.Context) ([]market.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []market.Provider
	for _, p := range m.providers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *memRepo) GetProvider(_ context.Context, slug string) (*market.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[slug]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", slug, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) SaveProvider(_ context.Context, p *market.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	m.providers[p.Slug] = &cp
	return nil
}

func (m *memRepo) MarkScraped(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.providers {
		if p.ID == id {
			t := at
			p.LastScrapedAt = &t
		}
	}
	return nil
}

func (m *memRepo) CurrentProducts(_ context.Context, providerID string) ([]market.CompetitorProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []market.CompetitorProduct
	for _, p := range m.products {
		if p.IsCurrent() && (providerID == "" || p.ProviderID == providerID) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) CountSuperseded(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.products {
		if !p.IsCurrent() {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) InsertProduct(_ context.Context, p market.CompetitorProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.products {
		if e.IsCurrent() && e.ProviderID == p.ProviderID && e.IdentityKey == p.IdentityKey {
			return fmt.Errorf("duplicate current product %s", p.IdentityKey)
		}
	}
	m.products[p.ID] = &p
	return nil
}

func (m *memRepo) UpdateProduct(_ context.Context, p market.CompetitorProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return ErrNotFound
	}
	m.products[p.ID] = &p
	return nil
}

func (m *memRepo) SupersedeProduct(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Lifecycle = market.Superseded
	return nil
}

func (m *memRepo) AppendPriceHistory(_ context.Context, pp market.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, pp)
	return nil
}

func (m *memRepo) PriceHistory(_ context.Context, id string) ([]market.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []market.PricePoint
	for _, h := range m.history {
		if h.CompetitorProductID == id {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memRepo) SavePriceChange(_ context.Context, c market.PriceChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, c)
	return nil
}

func (m *memRepo) PriceChangesSince(_ context.Context, since time.Time) ([]market.PriceChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []market.PriceChange
	for _, c := range m.changes {
		if !c.DetectedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) SaveAlert(_ context.Context, a market.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dedup[a.DedupKey]; ok {
		return false, nil
	}
	m.dedup[a.DedupKey] = struct{}{}
	m.alerts = append(m.alerts, a)
	return true, nil
}

func (m *memRepo) RecentAlerts(_ context.Context, limit int) ([]market.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]market.Alert(nil), m.alerts...)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memRepo) Catalog(context.Context) ([]market.InternalProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]market.InternalProduct(nil), m.catalog...), nil
}

func (m *memRepo) SaveInternalProduct(_ context.Context, p market.InternalProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog = append(m.catalog, p)
	return nil
}

func (m *memRepo) Matches(context.Context) ([]market.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]market.Match(nil), m.matches...), nil
}

func (m *memRepo) ReplaceMatches(_ context.Context, internalID string, matches []market.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.matches[:0]
	reviewed := make(map[string]struct{})
	for _, x := range m.matches {
		if x.InternalProductID != internalID || x.Reviewed {
			kept = append(kept, x)
			if x.InternalProductID == internalID {
				reviewed[x.CompetitorProductID] = struct{}{}
			}
		}
	}
	for _, x := range matches {
		if _, ok := reviewed[x.CompetitorProductID]; !ok {
			kept = append(kept, x)
		}
	}
	m.matches = kept
	return nil
}

func (m *memRepo) SaveJobResult(_ context.Context, r *market.ScrapeJobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, *r)
	return nil
}

func (m *memRepo) RecentJobs(_ context.Context, limit int) ([]market.ScrapeJobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]market.ScrapeJobResult(nil), m.jobs...)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
