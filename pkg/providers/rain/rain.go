// Package rain scrapes rain's data-only LTE and 5G plans.
package rain

import (
	"context"
	"iter"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/normalize"
	"github.com/rivalscope/rivalscope/pkg/providers"
)

const (
	Slug     = "rain"
	plansURL = "https://www.rain.co.za/"
)

type Scraper struct {
	URL string
}

func New() providers.Scraper { return &Scraper{URL: plansURL} }

func Definition() providers.Definition {
	return providers.Definition{
		Provider: market.Provider{
			Slug:            Slug,
			Name:            "Rain",
			BaseURLs:        []string{plansURL},
			Kind:            "wireless",
			Active:          true,
			ScrapeFrequency: market.Weekly,
		},
		Factory: New,
	}
}

func (s *Scraper) Slug() string { return Slug }

// Profile defaults to data-only LTE; 5G plans say so in their name.
func (s *Scraper) Profile() normalize.Profile {
	p := normalize.DefaultProfile()
	p.DefaultProductType = market.ProductDataOnly
	p.DefaultTechnology = market.TechLTE
	return p
}

func (s *Scraper) FetchCandidateURLs(_ context.Context, _ providers.Extractor) iter.Seq2[string, error] {
	return providers.FixedURLs(s.URL)
}

func (s *Scraper) ExtractProducts(ctx context.Context, ex providers.Extractor, url string) ([]market.RawProduct, error) {
	return providers.ExtractWith(ctx, ex, url, providers.DataOnlySchema, providers.DataOnlyPrompt, providers.ParseDataDeals)
}
