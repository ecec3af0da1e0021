package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/shopspring/decimal"
)

type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendStable  Trend = "stable"
	TrendUnknown Trend = "unknown"
)

// PriceTrend compares the latest price with the one in force a trend
// window ago.
type PriceTrend struct {
	ProductID    string
	ProductName  string
	CurrentPrice decimal.Decimal
	PastPrice    *decimal.Decimal
	Change       *decimal.Decimal
	ChangePct    *float64 // percent, one decimal
	Trend        Trend
}

// AnalyzePriceTrend reads a product's price history. Without a record older
// than the window the trend is unknown.
func (e *Engine) AnalyzePriceTrend(productID, name string, history []market.PricePoint, now time.Time) PriceTrend {
	t := PriceTrend{ProductID: productID, ProductName: name, Trend: TrendUnknown}
	if len(history) == 0 {
		return t
	}
	sorted := append([]market.PricePoint(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RecordedAt.After(sorted[j].RecordedAt) })
	t.CurrentPrice = sorted[0].MonthlyPrice

	cutoff := now.Add(-e.cfg.TrendWindow)
	for _, h := range sorted {
		if h.RecordedAt.After(cutoff) {
			continue
		}
		past := h.MonthlyPrice
		if past.IsZero() || t.CurrentPrice.IsZero() {
			break
		}
		change := t.CurrentPrice.Sub(past)
		pct := math.Round(change.Div(past).InexactFloat64()*1000) / 10
		t.PastPrice, t.Change, t.ChangePct = &past, &change, &pct

		band := e.cfg.TrendBand * 100
		switch {
		case pct > band:
			t.Trend = TrendUp
		case pct < -band:
			t.Trend = TrendDown
		default:
			t.Trend = TrendStable
		}
		break
	}
	return t
}

// SegmentBy selects the dimension MarketSegments groups on.
type SegmentBy string

const (
	ByProductType SegmentBy = "product_type"
	ByTechnology  SegmentBy = "technology"
	ByProvider    SegmentBy = "provider"
)

type SegmentStats struct {
	Segment      string
	ProductCount int
	AvgPrice     decimal.Decimal
	MinPrice     decimal.Decimal
	MaxPrice     decimal.Decimal
	Providers    []string
}

func segmentKey(p market.CompetitorProduct, by SegmentBy) string {
	var key string
	switch by {
	case ByProductType:
		key = string(p.ProductType)
	case ByTechnology:
		key = string(p.Technology)
	case ByProvider:
		key = p.ProviderID
	}
	if key == "" {
		return "unknown"
	}
	return key
}

// MarketSegments groups products and summarises prices per group, largest
// group first.
func MarketSegments(products []market.CompetitorProduct, by SegmentBy) []SegmentStats {
	type acc struct {
		prices    []decimal.Decimal
		providers map[string]struct{}
	}
	groups := make(map[string]*acc)
	for _, p := range products {
		if !p.MonthlyPrice.IsPositive() {
			continue
		}
		k := segmentKey(p, by)
		g, ok := groups[k]
		if !ok {
			g = &acc{providers: make(map[string]struct{})}
			groups[k] = g
		}
		g.prices = append(g.prices, p.MonthlyPrice)
		g.providers[p.ProviderID] = struct{}{}
	}

	out := make([]SegmentStats, 0, len(groups))
	for k, g := range groups {
		sort.Slice(g.prices, func(i, j int) bool { return g.prices[i].LessThan(g.prices[j]) })
		out = append(out, SegmentStats{
			Segment:      k,
			ProductCount: len(g.prices),
			AvgPrice:     avg(g.prices),
			MinPrice:     g.prices[0],
			MaxPrice:     g.prices[len(g.prices)-1],
			Providers:    sortedKeys(g.providers),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductCount != out[j].ProductCount {
			return out[i].ProductCount > out[j].ProductCount
		}
		return out[i].Segment < out[j].Segment
	})
	return out
}

type ProviderPrice struct {
	ProviderID   string
	AvgPrice     decimal.Decimal
	ProductCount int
}

// Landscape is the whole-market overview.
type Landscape struct {
	TotalProducts  int
	TotalProviders int
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	AvgPrice       decimal.Decimal
	ByTechnology   []SegmentStats
	ByProductType  []SegmentStats
	// PriceLeaders is sorted by average price, cheapest first.
	PriceLeaders []ProviderPrice
}

// CompetitiveLandscape summarises products as given; callers pass the
// current offerings.
func CompetitiveLandscape(products []market.CompetitorProduct) Landscape {
	var l Landscape
	providers := make(map[string]struct{})
	var prices []decimal.Decimal
	var priced []market.CompetitorProduct
	for _, p := range products {
		providers[p.ProviderID] = struct{}{}
		if p.MonthlyPrice.IsPositive() {
			prices = append(prices, p.MonthlyPrice)
			priced = append(priced, p)
		}
	}
	l.TotalProducts = len(priced)
	l.TotalProviders = len(providers)
	if len(prices) > 0 {
		l.MinPrice, l.MaxPrice = decimal.Min(prices[0], prices[1:]...), decimal.Max(prices[0], prices[1:]...)
		l.AvgPrice = avg(prices)
	}
	l.ByTechnology = MarketSegments(priced, ByTechnology)
	l.ByProductType = MarketSegments(priced, ByProductType)

	for _, s := range MarketSegments(priced, ByProvider) {
		l.PriceLeaders = append(l.PriceLeaders, ProviderPrice{ProviderID: s.Segment, AvgPrice: s.AvgPrice, ProductCount: s.ProductCount})
	}
	sort.SliceStable(l.PriceLeaders, func(i, j int) bool {
		a, b := l.PriceLeaders[i], l.PriceLeaders[j]
		if !a.AvgPrice.Equal(b.AvgPrice) {
			return a.AvgPrice.LessThan(b.AvgPrice)
		}
		return a.ProviderID < b.ProviderID
	})
	return l
}
