// Package vodacom scrapes Vodacom contract deals from a fixed set of pages.
package vodacom

import (
	"context"
	"iter"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/normalize"
	"github.com/rivalscope/rivalscope/pkg/providers"
)

const Slug = "vodacom"

var dealPages = []string{
	"https://shop.vodacom.co.za/shop/deals/phones",
	"https://shop.vodacom.co.za/shop/deals/smartphones-on-contract",
}

type Scraper struct {
	URLs []string
}

func New() providers.Scraper {
	return &Scraper{URLs: dealPages}
}

func Definition() providers.Definition {
	return providers.Definition{
		Provider: market.Provider{
			Slug:            Slug,
			Name:            "Vodacom",
			BaseURLs:        dealPages,
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
		market.Tech5G: {"5g ready"},
	})
	p.DefaultProductType = market.ProductMobileContract
	return p
}

func (s *Scraper) FetchCandidateURLs(_ context.Context, _ providers.Extractor) iter.Seq2[string, error] {
	return providers.FixedURLs(s.URLs...)
}

func (s *Scraper) ExtractProducts(ctx context.Context, ex providers.Extractor, url string) ([]market.RawProduct, error) {
	return providers.ExtractWith(ctx, ex, url, providers.MobileDealsSchema, providers.MobileDealsPrompt, providers.ParseMobileDeals)
}
