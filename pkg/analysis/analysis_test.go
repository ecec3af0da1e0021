package analysis

import (
	"testing"
	"time"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/matcher"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	m, err := matcher.New(matcher.DefaultConfig())
	require.NoError(t, err)
	e, err := New(DefaultConfig(), m)
	require.NoError(t, err)
	return e
}

func comp(id, provider string, price int64, tech market.Technology, gb *int) market.CompetitorProduct {
	pt := market.ProductDataOnly
	if tech == market.TechFibre {
		pt = market.ProductFibre
	}
	return market.CompetitorProduct{
		ID:         id,
		ProviderID: provider,
		NormalizedProduct: market.NormalizedProduct{
			Name:            id,
			ProductType:     pt,
			Technology:      tech,
			MonthlyPrice:    decimal.NewFromInt(price),
			DataAllowanceGB: gb,
		},
		Lifecycle: market.Current,
	}
}

func own(id string, price int64, tech market.Technology, gb *int) market.InternalProduct {
	pt := market.ProductDataOnly
	if tech == market.TechFibre {
		pt = market.ProductFibre
	}
	return market.InternalProduct{ID: id, Name: id, ProductType: pt, Technology: tech, MonthlyPrice: decimal.NewFromInt(price), DataAllowanceGB: gb}
}

func TestTierOf(t *testing.T) {
	assert.Equal(t, Tier("capped:<=10GB"), TierOf(market.TechLTE, market.IntPtr(10), nil))
	assert.Equal(t, Tier("capped:<=50GB"), TierOf(market.TechLTE, market.IntPtr(11), nil))
	assert.Equal(t, Tier("capped:>200GB"), TierOf(market.TechLTE, market.IntPtr(500), nil))
	assert.Equal(t, Tier("uncapped"), TierOf(market.Tech5G, nil, market.IntPtr(100)))
	assert.Equal(t, Tier("uncapped:<=100Mbps"), TierOf(market.TechFibre, nil, market.IntPtr(100)))
	assert.Equal(t, Tier("uncapped"), TierOf(market.TechFibre, nil, nil))
}

func TestComputeMarketPosition(t *testing.T) {
	e := newEngine(t)
	p := own("own", 200, market.TechLTE, market.IntPtr(30))

	matched := []market.CompetitorProduct{
		comp("a", "x", 100, market.TechLTE, market.IntPtr(20)),
		comp("b", "x", 200, market.TechLTE, market.IntPtr(40)),
		comp("c", "y", 300, market.TechLTE, market.IntPtr(50)),
		comp("d", "y", 400, market.TechLTE, market.IntPtr(45)),
		comp("other-tier", "y", 50, market.TechLTE, market.IntPtr(100)),
		comp("other-tech", "y", 50, market.Tech5G, market.IntPtr(30)),
	}
	pos := e.ComputeMarketPosition(p, matched)

	assert.Equal(t, 4, pos.Comparables)
	// two above, one tie
	assert.InDelta(t, 62.5, pos.Percentile, 1e-9)
	assert.Equal(t, "100", pos.MinPrice.String())
	assert.Equal(t, "400", pos.MaxPrice.String())
	assert.Equal(t, "250", pos.AvgPrice.String())
	assert.Equal(t, BelowMarket, pos.Position)

	lone := e.ComputeMarketPosition(p, nil)
	assert.Equal(t, 50.0, lone.Percentile)
	assert.Equal(t, Competitive, lone.Position)
	assert.Zero(t, lone.Comparables)

	pricey := e.ComputeMarketPosition(own("own", 400, market.TechLTE, market.IntPtr(30)), matched[:3])
	assert.Equal(t, AboveMarket, pricey.Position)
	assert.Equal(t, 0.0, pricey.Percentile)
}

func TestFindPricingOpportunities(t *testing.T) {
	e := newEngine(t)
	competitors := []market.CompetitorProduct{
		comp("c-fibre-a", "x", 800, market.TechFibre, nil),
		comp("c-fibre-b", "y", 850, market.TechFibre, nil),
		comp("c-lte", "x", 200, market.TechLTE, market.IntPtr(50)),
	}

	withSubs := own("fibre-own", 899, market.TechFibre, nil)
	withSubs.Subscribers = market.IntPtr(100)
	noSubsBigGap := own("lte-own", 260, market.TechLTE, market.IntPtr(50))
	fairlyPriced := own("lte-fair", 210, market.TechLTE, market.IntPtr(50))

	opps := e.FindPricingOpportunities([]market.InternalProduct{noSubsBigGap, withSubs, fairlyPriced}, competitors)
	require.Len(t, opps, 2)

	assert.Equal(t, "fibre-own", opps[0].InternalProductID, "known revenue at risk ranks first")
	assert.Equal(t, "c-fibre-a", opps[0].CheapestCompetitorID)
	assert.Equal(t, "99", opps[0].Gap.String())
	require.NotNil(t, opps[0].RevenueAtRisk)
	assert.Equal(t, "9900", opps[0].RevenueAtRisk.String())
	assert.Equal(t, 2, opps[0].MatchCount)

	assert.Equal(t, "lte-own", opps[1].InternalProductID)
	assert.InDelta(t, 0.3, opps[1].GapPct, 1e-9)
	assert.Nil(t, opps[1].RevenueAtRisk)
}

func TestFindHeadroom(t *testing.T) {
	e := newEngine(t)
	competitors := []market.CompetitorProduct{
		comp("a", "x", 300, market.TechLTE, market.IntPtr(50)),
		comp("b", "y", 320, market.TechLTE, market.IntPtr(50)),
	}
	rooms := e.FindHeadroom([]market.InternalProduct{
		own("cheap", 250, market.TechLTE, market.IntPtr(50)),
		own("close", 305, market.TechLTE, market.IntPtr(50)),
	}, competitors)
	require.Len(t, rooms, 1)
	assert.Equal(t, "cheap", rooms[0].InternalProductID)
	assert.Equal(t, "310", rooms[0].MarketAverage.String())
}

func TestAnalyzePriceTrend(t *testing.T) {
	e := newEngine(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	point := func(daysAgo int, price int64) market.PricePoint {
		return market.PricePoint{MonthlyPrice: decimal.NewFromInt(price), RecordedAt: now.AddDate(0, 0, -daysAgo)}
	}

	up := e.AnalyzePriceTrend("p", "P", []market.PricePoint{point(1, 550), point(40, 500), point(35, 480)}, now)
	assert.Equal(t, TrendUp, up.Trend)
	assert.Equal(t, "550", up.CurrentPrice.String())
	require.NotNil(t, up.PastPrice)
	assert.Equal(t, "480", up.PastPrice.String())
	require.NotNil(t, up.ChangePct)
	assert.InDelta(t, 14.6, *up.ChangePct, 1e-9)

	stable := e.AnalyzePriceTrend("p", "P", []market.PricePoint{point(0, 101), point(31, 100)}, now)
	assert.Equal(t, TrendStable, stable.Trend)

	down := e.AnalyzePriceTrend("p", "P", []market.PricePoint{point(0, 90), point(31, 100)}, now)
	assert.Equal(t, TrendDown, down.Trend)

	recent := e.AnalyzePriceTrend("p", "P", []market.PricePoint{point(0, 90), point(3, 100)}, now)
	assert.Equal(t, TrendUnknown, recent.Trend)
	assert.Nil(t, recent.PastPrice)

	assert.Equal(t, TrendUnknown, e.AnalyzePriceTrend("p", "P", nil, now).Trend)
}

func TestLandscape(t *testing.T) {
	products := []market.CompetitorProduct{
		comp("a", "mtn", 100, market.TechLTE, market.IntPtr(10)),
		comp("b", "mtn", 300, market.TechLTE, market.IntPtr(20)),
		comp("c", "rain", 150, market.Tech5G, nil),
		comp("d", "openserve", 900, market.TechFibre, nil),
	}
	l := CompetitiveLandscape(products)

	assert.Equal(t, 4, l.TotalProducts)
	assert.Equal(t, 3, l.TotalProviders)
	assert.Equal(t, "100", l.MinPrice.String())
	assert.Equal(t, "900", l.MaxPrice.String())
	assert.Equal(t, "362.5", l.AvgPrice.String())

	require.NotEmpty(t, l.ByTechnology)
	assert.Equal(t, "LTE", l.ByTechnology[0].Segment)
	assert.Equal(t, 2, l.ByTechnology[0].ProductCount)
	assert.Equal(t, []string{"mtn"}, l.ByTechnology[0].Providers)

	require.Len(t, l.PriceLeaders, 3)
	assert.Equal(t, "rain", l.PriceLeaders[0].ProviderID)
	assert.Equal(t, "mtn", l.PriceLeaders[1].ProviderID)
	assert.Equal(t, "200", l.PriceLeaders[1].AvgPrice.String())

	byProvider := MarketSegments(products, ByProvider)
	assert.Equal(t, "mtn", byProvider[0].Segment)
}
