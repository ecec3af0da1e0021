package providers

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/normalize"
	"github.com/rivalscope/rivalscope/pkg/providers/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	urls        []string
	discoverErr error
}

func (f *fakeScraper) Slug() string               { return "fake" }
func (f *fakeScraper) Profile() normalize.Profile { return normalize.DefaultProfile() }

func (f *fakeScraper) FetchCandidateURLs(context.Context, Extractor) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if f.discoverErr != nil && !yield("", f.discoverErr) {
			return
		}
		for _, u := range f.urls {
			if !yield(u, nil) {
				return
			}
		}
	}
}

func (f *fakeScraper) ExtractProducts(ctx context.Context, ex Extractor, url string) ([]market.RawProduct, error) {
	return ExtractWith(ctx, ex, url, MobileDealsSchema, MobileDealsPrompt, ParseMobileDeals)
}

const (
	page1 = "https://deals.example.co.za/1"
	page2 = "https://deals.example.co.za/2"
	page3 = "https://deals.example.co.za/3"
	page4 = "https://deals.example.co.za/4"
)

func deal(name, price string) string {
	return `{"device_name":"` + name + `","monthly_price":"` + price + `","contract_term":"24 months"}`
}

func extracts() map[string]string {
	return map[string]string{
		page1: `{"products":[` + deal("Galaxy A15", "R299") + `,` + deal("iPhone 15", "R899") + `]}`,
		page2: `{"products":[` + deal("Pixel 8", "R749") + `]}`,
		page3: `{"products":[` + deal("Nokia G42", "R199") + `]}`,
		page4: `{"products":[` + deal("Oppo A79", "R249") + `]}`,
	}
}

func TestRunSucceeded(t *testing.T) {
	ex := &providertest.Extractor{Extracts: extracts()}
	s := &fakeScraper{urls: []string{page1, page2, page1, " " + page2 + " "}}

	out := Run(context.Background(), s, market.Provider{ID: "p1"}, ex, Options{})
	res := out.Result

	assert.Equal(t, market.JobSucceeded, res.Status)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, res.ProductsFound)
	assert.Len(t, out.Products, 3)
	assert.Equal(t, "p1", res.ProviderID)
	assert.Equal(t, "fake", res.ProviderSlug)
	assert.Equal(t, 30, res.CreditsConsumed)
	assert.True(t, out.Complete)
	assert.Len(t, ex.Calls(), 2, "duplicate URLs are extracted once")
	assert.False(t, res.CompletedAt.Before(res.StartedAt))
	assert.True(t, res.Terminal())
}

func TestRunPartialAndFailed(t *testing.T) {
	t.Run("one page fails", func(t *testing.T) {
		ex := &providertest.Extractor{Extracts: extracts(), Errors: map[string]error{page2: errors.New("boom")}}
		out := Run(context.Background(), &fakeScraper{urls: []string{page1, page2}}, market.Provider{}, ex, Options{})
		assert.Equal(t, market.JobPartial, out.Result.Status)
		assert.Equal(t, 2, out.Result.ProductsFound)
		require.Len(t, out.Result.Errors, 1)
		assert.Contains(t, out.Result.Errors[0], page2)
		assert.False(t, out.Complete)
		assert.Equal(t, []string{page1}, out.Parsed)
	})

	t.Run("every page fails", func(t *testing.T) {
		ex := &providertest.Extractor{Errors: map[string]error{page1: errors.New("boom")}}
		out := Run(context.Background(), &fakeScraper{urls: []string{page1}}, market.Provider{}, ex, Options{})
		assert.Equal(t, market.JobFailed, out.Result.Status)
		assert.Zero(t, out.Result.ProductsFound)
	})

	t.Run("nothing discovered", func(t *testing.T) {
		out := Run(context.Background(), &fakeScraper{}, market.Provider{}, &providertest.Extractor{}, Options{})
		assert.Equal(t, market.JobFailed, out.Result.Status)
		assert.NotEmpty(t, out.Result.Errors)
	})

	t.Run("discovery warning", func(t *testing.T) {
		ex := &providertest.Extractor{Extracts: extracts()}
		s := &fakeScraper{urls: []string{page1}, discoverErr: errors.New("sitemap timeout")}
		out := Run(context.Background(), s, market.Provider{}, ex, Options{})
		assert.Equal(t, market.JobPartial, out.Result.Status)
		assert.Equal(t, 2, out.Result.ProductsFound)
		assert.False(t, out.Complete, "discovery may have missed pages")
	})
}

func TestRunDropsMalformedRecords(t *testing.T) {
	ex := &providertest.Extractor{Extracts: map[string]string{
		page1: `{"products":[` + deal("Galaxy A15", "R299") + `,` + deal("Broken", "call us") + `]}`,
	}}
	out := Run(context.Background(), &fakeScraper{urls: []string{page1}}, market.Provider{}, ex, Options{})

	assert.Equal(t, market.JobPartial, out.Result.Status)
	assert.Equal(t, 1, out.Result.ProductsFound)
	require.Len(t, out.Result.Errors, 1)
	assert.Contains(t, out.Result.Errors[0], "monthly_price")
	assert.True(t, out.Complete, "a dropped record leaves the page scraped")
	assert.Equal(t, []string{page1}, out.Parsed)
	require.Len(t, out.Dropped, 1)
	assert.Equal(t, "Broken", out.Dropped[0].DeviceName)
}

func TestRunStopsAtBudget(t *testing.T) {
	ex := &providertest.Extractor{Extracts: extracts(), Budget: 30}
	s := &fakeScraper{urls: []string{page1, page2, page3, page4}}

	out := Run(context.Background(), s, market.Provider{}, ex, Options{URLConcurrency: 1})
	res := out.Result

	assert.Equal(t, market.JobPartial, res.Status)
	assert.Equal(t, 3, res.ProductsFound)
	assert.Equal(t, 30, res.CreditsConsumed)
	assert.Len(t, ex.Calls(), 2)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "budget_exceeded")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := &providertest.Extractor{Extracts: extracts()}

	out := Run(ctx, &fakeScraper{urls: []string{page1, page2}}, market.Provider{}, ex, Options{})
	assert.Equal(t, market.JobPartial, out.Result.Status)
	assert.Empty(t, ex.Calls())
}

func TestRunMaxURLs(t *testing.T) {
	ex := &providertest.Extractor{Extracts: extracts()}
	out := Run(context.Background(), &fakeScraper{urls: []string{page1, page2, page3}}, market.Provider{}, ex, Options{MaxURLs: 2})
	assert.Equal(t, market.JobSucceeded, out.Result.Status)
	assert.Len(t, ex.Calls(), 2)
	assert.False(t, out.Complete, "capped discovery skipped a page")
}

type panickyScraper struct{ fakeScraper }

func (p *panickyScraper) ExtractProducts(context.Context, Extractor, string) ([]market.RawProduct, error) {
	panic("selector exploded")
}

func TestRunSurvivesPanics(t *testing.T) {
	s := &panickyScraper{fakeScraper{urls: []string{page1}}}
	out := Run(context.Background(), s, market.Provider{}, &providertest.Extractor{}, Options{})
	assert.Equal(t, market.JobFailed, out.Result.Status)
	assert.NotEmpty(t, out.Result.Errors)
}

func TestRunCountsOnlyItsOwnCredits(t *testing.T) {
	ex := &providertest.Extractor{
		Extracts: extracts(),
		Pages:    map[string]string{page3: "<html></html>"},
	}
	// credits another provider already spent on the shared session
	_, err := ex.ScrapeURL(context.Background(), page3, extraction.ScrapeOptions{})
	require.NoError(t, err)

	s := &fakeScraper{urls: []string{page1, "https://deals.example.co.za/missing"}}
	res := Run(context.Background(), s, market.Provider{ID: "p1"}, ex, Options{}).Result

	assert.Equal(t, market.JobPartial, res.Status)
	assert.Equal(t, 15, res.CreditsConsumed, "failed calls are refunded")
	assert.Equal(t, 16, ex.CreditsUsed())
}
