package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rivalscope/rivalscope/pkg/analysis"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/shopspring/decimal"
)

type ProviderStats struct {
	ProviderID      string          `json:"provider_id"`
	Slug            string          `json:"slug"`
	Name            string          `json:"name"`
	Active          bool            `json:"active"`
	CurrentProducts int             `json:"current_products"`
	AvgPrice        decimal.Decimal `json:"avg_price"`
	MatchedProducts int             `json:"matched_products"`
	LastScrapedAt   *time.Time      `json:"last_scraped_at,omitempty"`
	Stale           bool            `json:"stale"`
}

type ProductStats struct {
	Current      int                        `json:"current"`
	Superseded   int                        `json:"superseded"`
	ByType       map[market.ProductType]int `json:"by_type"`
	ByTechnology map[market.Technology]int  `json:"by_technology"`
}

// DashboardSummary is the read-only aggregate the dashboard renders.
type DashboardSummary struct {
	GeneratedAt   time.Time                     `json:"generated_at"`
	Providers     []ProviderStats               `json:"providers"`
	Products      ProductStats                  `json:"products"`
	Alerts        []market.Alert                `json:"alerts"`
	Opportunities []analysis.PricingOpportunity `json:"opportunities"`
}

// GetDashboardSummary aggregates the current state. It writes nothing:
// stale providers are reported as derived alerts that are not stored.
func (p *Pipeline) GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	now := p.now()
	provs, err := p.repo.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}
	current, err := p.repo.CurrentProducts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	superseded, err := p.repo.CountSuperseded(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting superseded products: %w", err)
	}
	matches, err := p.repo.Matches(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	catalog, err := p.repo.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	alerts, err := p.repo.RecentAlerts(ctx, p.opts.AlertLimit)
	if err != nil {
		return nil, fmt.Errorf("loading alerts: %w", err)
	}

	matched := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		matched[m.CompetitorProductID] = struct{}{}
	}

	s := &DashboardSummary{
		GeneratedAt: now,
		Products: ProductStats{
			Current:      len(current),
			Superseded:   superseded,
			ByType:       make(map[market.ProductType]int),
			ByTechnology: make(map[market.Technology]int),
		},
	}

	type acc struct {
		count, matched int
		total          decimal.Decimal
	}
	perProvider := make(map[string]*acc)
	for _, c := range current {
		s.Products.ByType[c.ProductType]++
		s.Products.ByTechnology[c.Technology]++
		a, ok := perProvider[c.ProviderID]
		if !ok {
			a = &acc{}
			perProvider[c.ProviderID] = a
		}
		a.count++
		a.total = a.total.Add(c.MonthlyPrice)
		if _, ok := matched[c.ID]; ok {
			a.matched++
		}
	}

	var derived []market.Alert
	for _, prov := range provs {
		st := ProviderStats{
			ProviderID:    prov.ID,
			Slug:          prov.Slug,
			Name:          prov.Name,
			Active:        prov.Active,
			LastScrapedAt: prov.LastScrapedAt,
			Stale:         prov.Active && prov.StaleAt(now, p.opts.StaleAfter),
		}
		if a := perProvider[prov.ID]; a != nil {
			st.CurrentProducts = a.count
			st.MatchedProducts = a.matched
			st.AvgPrice = a.total.Div(decimal.NewFromInt(int64(a.count))).Round(2)
		}
		s.Providers = append(s.Providers, st)
		if st.Stale {
			derived = append(derived, p.staleAlert(prov, now))
		}
	}
	sort.Slice(s.Providers, func(i, j int) bool { return s.Providers[i].Slug < s.Providers[j].Slug })

	s.Alerts = append(derived, alerts...)
	s.Opportunities = p.opts.Analysis.FindPricingOpportunities(catalog, current)
	return s, nil
}

func (p *Pipeline) staleAlert(prov market.Provider, now time.Time) market.Alert {
	last := "never"
	if prov.LastScrapedAt != nil {
		last = prov.LastScrapedAt.UTC().Format("2006-01-02")
	}
	return market.Alert{
		ID:         uuid.NewString(),
		Type:       market.AlertStaleProvider,
		Severity:   market.AlertWarning,
		ProviderID: prov.ID,
		Title:      "Stale data: " + prov.Name,
		Message:    fmt.Sprintf("%s has not been scraped successfully in %d days (last: %s).", prov.Name, int(p.opts.StaleAfter.Hours()/24), last),
		DedupKey:   market.DedupKey(market.AlertStaleProvider, prov.ID, now),
		CreatedAt:  now,
	}
}

// GenerateMatches rescores the whole catalog against current competitor
// products and stores the candidates. Reviewed matches are kept.
func (p *Pipeline) GenerateMatches(ctx context.Context) (int, error) {
	catalog, err := p.repo.Catalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading catalog: %w", err)
	}
	current, err := p.repo.CurrentProducts(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("listing products: %w", err)
	}
	now := p.now()
	total := 0
	for _, item := range catalog {
		candidates := p.opts.Matcher.GenerateCandidates(item, current)
		for i := range candidates {
			candidates[i].CreatedAt = now
		}
		if err := p.repo.ReplaceMatches(ctx, item.ID, candidates); err != nil {
			return total, fmt.Errorf("saving matches for %s: %w", item.ID, err)
		}
		total += len(candidates)
		p.log.Debugf("%s: %d candidates", item.ID, len(candidates))
	}
	p.log.Infof("Generated %d matches for %d catalog products", total, len(catalog))
	return total, nil
}

// SeedProviders stores every registered provider that the repository does
// not know yet and returns how many were added.
func (p *Pipeline) SeedProviders(ctx context.Context) (int, error) {
	added := 0
	for _, def := range p.registry.Definitions() {
		_, err := p.repo.GetProvider(ctx, def.Provider.Slug)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return added, fmt.Errorf("loading provider %s: %w", def.Provider.Slug, err)
		}
		prov := def.Provider
		if err := p.repo.SaveProvider(ctx, &prov); err != nil {
			return added, fmt.Errorf("saving provider %s: %w", prov.Slug, err)
		}
		added++
		p.log.Infof("Added provider %s", prov.Slug)
	}
	return added, nil
}
