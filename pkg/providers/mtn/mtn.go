// Package mtn scrapes MTN device contract deals.
package mtn

import (
	"context"
	"iter"
	"strings"

	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/normalize"
	"github.com/rivalscope/rivalscope/pkg/providers"
)

const (
	Slug     = "mtn"
	dealsURL = "https://www.mtn.co.za/shop/deals"
)

// Scraper discovers deal pages through the site map.
type Scraper struct {
	BaseURL string
	// MaxPages bounds how many mapped deal pages are requested.
	MaxPages int
}

func New() providers.Scraper {
	return &Scraper{BaseURL: dealsURL, MaxPages: 25}
}

func Definition() providers.Definition {
	return providers.Definition{
		Provider: market.Provider{
			Slug:            Slug,
			Name:            "MTN",
			BaseURLs:        []string{dealsURL},
			Kind:            "mobile",
			Active:          true,
			ScrapeFrequency: market.Daily,
		},
		Factory: New,
	}
}

func (s *Scraper) Slug() string { return Slug }

func (s *Scraper) Profile() normalize.Profile {
	p := normalize.DefaultProfile().WithSynonyms(map[market.Technology][]string{
		market.TechLTE: {"lte advanced"},
	})
	p.DefaultProductType = market.ProductMobileContract
	return p
}

func (s *Scraper) FetchCandidateURLs(ctx context.Context, ex providers.Extractor) iter.Seq2[string, error] {
	return providers.MappedURLs(ctx, ex, s.BaseURL, extraction.MapOptions{Search: "deals", Limit: s.MaxPages}, isDealPage)
}

// isDealPage keeps device deal pages and drops the shop's help and cart pages.
func isDealPage(u string) bool {
	u = strings.ToLower(u)
	return strings.Contains(u, "/shop/deals/") && !strings.Contains(u, "/cart") && !strings.Contains(u, "/help")
}

func (s *Scraper) ExtractProducts(ctx context.Context, ex providers.Extractor, url string) ([]market.RawProduct, error) {
	return providers.ExtractWith(ctx, ex, url, providers.MobileDealsSchema, providers.MobileDealsPrompt, providers.ParseMobileDeals)
}
