// Package openserve scrapes Openserve's fibre packages.
package openserve

import (
	"context"
	"iter"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/normalize"
	"github.com/rivalscope/rivalscope/pkg/providers"
)

const (
	Slug        = "openserve"
	packagesURL = "https://www.openserve.co.za/fibre-packages"
)

type Scraper struct {
	URL string
}

func New() providers.Scraper { return &Scraper{URL: packagesURL} }

func Definition() providers.Definition {
	return providers.Definition{
		Provider: market.Provider{
			Slug:            Slug,
			Name:            "Openserve",
			BaseURLs:        []string{packagesURL},
			Kind:            "fibre",
			Active:          true,
			ScrapeFrequency: market.Weekly,
		},
		Factory: New,
	}
}

func (s *Scraper) Slug() string { return Slug }

func (s *Scraper) Profile() normalize.Profile {
	p := normalize.DefaultProfile()
	p.DefaultProductType = market.ProductFibre
	p.DefaultTechnology = market.TechFibre
	return p
}

func (s *Scraper) FetchCandidateURLs(_ context.Context, _ providers.Extractor) iter.Seq2[string, error] {
	return providers.FixedURLs(s.URL)
}

// ExtractProducts reads the package table. Openserve lists the speed as
// "100/50Mbps", of which only the download figure is kept.
func (s *Scraper) ExtractProducts(ctx context.Context, ex providers.Extractor, url string) ([]market.RawProduct, error) {
	return providers.ExtractWith(ctx, ex, url, providers.FibrePackagesSchema, providers.FibrePackagesPrompt, providers.ParseFibrePackages)
}
