package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/providers/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func fakeDef(active bool) Definition {
	return Definition{
		Provider: market.Provider{Name: "Fake", Active: active},
		Factory:  func() Scraper { return &fakeScraper{} },
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("beta", fakeDef(true)))
	require.NoError(t, r.Register(" Alpha ", fakeDef(false)))

	err := r.Register("beta", fakeDef(true))
	require.Error(t, err, "duplicate slug")
	assert.Error(t, r.Register("", fakeDef(true)))
	assert.Error(t, r.Register("gamma", Definition{}))

	assert.Equal(t, []string{"alpha", "beta"}, r.Slugs())

	s, err := r.Get("BETA")
	require.NoError(t, err)
	assert.NotNil(t, s)

	def, err := r.Definition("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", def.Provider.Slug)

	_, err = r.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.Slug)

	assert.Len(t, r.ListActive(), 1)
}

func TestSameSite(t *testing.T) {
	assert.True(t, SameSite("https://www.mtn.co.za/shop", "https://shop.mtn.co.za/deals/x"))
	assert.False(t, SameSite("https://www.mtn.co.za/shop", "https://www.vodacom.co.za/deals"))
	assert.False(t, SameSite("https://www.mtn.co.za/shop", "not a url"))
}

func TestMappedURLs(t *testing.T) {
	base := "https://www.mtn.co.za/shop/deals"
	ex := &providertest.Extractor{Maps: map[string][]string{base: {
		"https://www.mtn.co.za/shop/deals/phones",
		"https://www.mtn.co.za/help",
		"https://ads.tracker.com/shop/deals/phones",
		"https://www.mtn.co.za/shop/deals/tablets",
	}}}

	var got []string
	for u, err := range MappedURLs(context.Background(), ex, base, extraction.MapOptions{}, func(u string) bool {
		return u != "https://www.mtn.co.za/help"
	}) {
		require.NoError(t, err)
		got = append(got, u)
	}
	assert.Equal(t, []string{"https://www.mtn.co.za/shop/deals/phones", "https://www.mtn.co.za/shop/deals/tablets"}, got)
	assert.Equal(t, 1, ex.CreditsUsed())
}

func TestMappedURLsError(t *testing.T) {
	base := "https://www.mtn.co.za/shop/deals"
	ex := &providertest.Extractor{Errors: map[string]error{base: errors.New("map down")}}
	var errs []error
	for _, err := range MappedURLs(context.Background(), ex, base, extraction.MapOptions{}, nil) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "map down")
}

func TestLinksFromPage(t *testing.T) {
	page := "https://www.telkom.co.za/deals/mobile"
	ex := &providertest.Extractor{Pages: map[string]string{page: `<html><body>
		<a class="deal-card" href="/deals/mobile/galaxy-a15">A15</a>
		<a class="deal-card" href="https://www.telkom.co.za/deals/mobile/iphone-15#specs">iPhone</a>
		<a class="deal-card" href="/deals/mobile/galaxy-a15">A15 again</a>
		<a class="deal-card" href="https://elsewhere.com/deals/x">elsewhere</a>
		<a class="deal-card" href="javascript:void(0)">js</a>
		<a href="/deals/mobile/not-a-card">plain</a>
	</body></html>`}}

	var got []string
	for u, err := range LinksFromPage(context.Background(), ex, page, "a.deal-card[href]", nil) {
		require.NoError(t, err)
		got = append(got, u)
	}
	assert.Equal(t, []string{
		"https://www.telkom.co.za/deals/mobile/galaxy-a15",
		"https://www.telkom.co.za/deals/mobile/iphone-15",
	}, got)
}

func TestParseSchemas(t *testing.T) {
	mobile := ParseMobileDeals(gjson.Parse(`{"products":[{"device_name":"Galaxy S24","monthly_price":599,"data_bundle":"10GB","sku":"S24-10","contract_term":"24 months"}]}`))
	require.Len(t, mobile, 1)
	assert.Equal(t, "Galaxy S24 10GB", mobile[0].Name)
	assert.Equal(t, "Galaxy S24", mobile[0].DeviceName)
	assert.Equal(t, "599", mobile[0].MonthlyPrice)
	assert.Equal(t, "S24-10", mobile[0].ExternalID)
	assert.NotEmpty(t, mobile[0].Raw)

	fibre := ParseFibrePackages(gjson.Parse(`[{"package_name":"Fibre 100","download_speed":"100Mbps","monthly_price":"R899"}]`))
	require.Len(t, fibre, 1)
	assert.Equal(t, "100Mbps", fibre[0].Speed)
	assert.Equal(t, "Fibre", fibre[0].Technology)

	data := ParseDataDeals(gjson.Parse(`{"deals":[{"deal_name":"Unlimited 5G","data_amount":"Unlimited","monthly_price":"R479","technology":"5G"}]}`))
	require.Len(t, data, 1)
	assert.Equal(t, "Unlimited", data[0].DataBundle)

	assert.Empty(t, ParseDataDeals(gjson.Parse(`{}`)))
}
