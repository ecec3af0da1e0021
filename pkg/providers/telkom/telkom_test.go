package telkom

import (
	"context"
	"testing"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/providers"
	"github.com/rivalscope/rivalscope/pkg/providers/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	a15   = "https://www.telkom.co.za/deals/mobile/galaxy-a15"
	flexi = "https://www.telkom.co.za/deals/sim-only/flexion-30gb"
)

func listings() map[string]string {
	return map[string]string{
		listingURL: `<div class="grid">
			<a class="deal-card" href="/deals/mobile/galaxy-a15">Galaxy A15</a>
			<div class="product-tile"><a href="/support/contact">Help</a></div>
		</div>`,
		simOnlyURL: `<div class="grid">
			<a class="deal-card" href="/deals/sim-only/flexion-30gb">FlexiOn 30GB</a>
			<a class="deal-card" href="/deals/mobile/galaxy-a15">Galaxy A15</a>
		</div>`,
	}
}

func extracts() map[string]string {
	return map[string]string{
		a15:   `{"products":[{"device_name":"Samsung Galaxy A15","monthly_price":"R249","contract_term":"24 months","data_bundle":"2GB","technology":"LTE"}]}`,
		flexi: `{"products":[{"device_name":"FlexiOn","monthly_price":"R299","contract_term":"month-to-month","data_bundle":"30GB"}]}`,
	}
}

func TestDiscoversDealsFromListings(t *testing.T) {
	ex := &providertest.Extractor{Pages: listings(), Extracts: extracts()}

	out := providers.Run(context.Background(), New(), Definition().Provider, ex, providers.Options{})
	require.Equal(t, market.JobSucceeded, out.Result.Status, out.Result.ErrorMessage())
	require.Len(t, out.Products, 2)

	byName := make(map[string]market.NormalizedProduct)
	for _, p := range out.Products {
		byName[p.Name] = p
	}
	a := byName["Samsung Galaxy A15 2GB"]
	assert.Equal(t, market.TechLTE, a.Technology)
	assert.Equal(t, market.IntPtr(2), a.DataAllowanceGB)
	assert.Equal(t, market.IntPtr(30), byName["FlexiOn 30GB"].DataAllowanceGB)

	calls := ex.Calls()
	require.Len(t, calls, 4, "a deal linked from both listings is extracted once")
	assert.Equal(t, []string{"scrape " + listingURL, "scrape " + simOnlyURL}, calls[:2])
	assert.ElementsMatch(t, []string{"extract " + a15, "extract " + flexi}, calls[2:])
	assert.Equal(t, 32, out.Result.CreditsConsumed)
}

func TestListingDownStillReadsTheOthers(t *testing.T) {
	pages := listings()
	delete(pages, simOnlyURL)
	ex := &providertest.Extractor{Pages: pages, Extracts: extracts()}

	out := providers.Run(context.Background(), New(), Definition().Provider, ex, providers.Options{})
	assert.Equal(t, market.JobPartial, out.Result.Status)
	require.Len(t, out.Products, 1)
	assert.Equal(t, "Samsung Galaxy A15 2GB", out.Products[0].Name)
	assert.Contains(t, out.Result.ErrorMessage(), simOnlyURL)
	assert.False(t, out.Complete)
}
