// Package telkom scrapes Telkom mobile deals. Deal pages are discovered
// from the anchors of the contract and SIM-only listing pages.
package telkom

import (
	"context"
	"iter"
	"strings"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/normalize"
	"github.com/rivalscope/rivalscope/pkg/providers"
)

const (
	Slug       = "telkom"
	listingURL = "https://www.telkom.co.za/deals/mobile"
	simOnlyURL = "https://www.telkom.co.za/deals/sim-only"
	cardLinks  = "a.deal-card[href], .product-tile a[href]"
)

type Scraper struct {
	ListingURLs []string
	Selector    string
}

func New() providers.Scraper {
	return &Scraper{ListingURLs: []string{listingURL, simOnlyURL}, Selector: cardLinks}
}

func Definition() providers.Definition {
	return providers.Definition{
		Provider: market.Provider{
			Slug:            Slug,
			Name:            "Telkom",
			BaseURLs:        []string{listingURL, simOnlyURL},
			Kind:            "mobile",
			Active:          true,
			ScrapeFrequency: market.Daily,
		},
		Factory: New,
	}
}

func (s *Scraper) Slug() string { return Slug }

func (s *Scraper) Profile() normalize.Profile {
	p := normalize.DefaultProfile()
	p.DefaultProductType = market.ProductMobileContract
	return p
}

func (s *Scraper) FetchCandidateURLs(ctx context.Context, ex providers.Extractor) iter.Seq2[string, error] {
	return providers.LinksFromPages(ctx, ex, s.ListingURLs, s.Selector, func(u string) bool {
		return strings.Contains(strings.ToLower(u), "/deals/")
	})
}

func (s *Scraper) ExtractProducts(ctx context.Context, ex providers.Extractor, url string) ([]market.RawProduct, error) {
	return providers.ExtractWith(ctx, ex, url, providers.MobileDealsSchema, providers.MobileDealsPrompt, providers.ParseMobileDeals)
}
