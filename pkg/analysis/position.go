package analysis

import (
	"sort"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/shopspring/decimal"
)

type Position string

const (
	BelowMarket Position = "below_market"
	Competitive Position = "competitive"
	AboveMarket Position = "above_market"
)

// MarketPosition places one internal product among comparable competitors.
// Percentile is the share of comparables priced above it, so 100 means
// cheapest in the market.
type MarketPosition struct {
	InternalProductID string
	Tier              Tier
	Comparables       int
	Percentile        float64
	Position          Position
	MinPrice          decimal.Decimal
	MaxPrice          decimal.Decimal
	AvgPrice          decimal.Decimal
	GapToAverage      float64
}

// ComputeMarketPosition compares p against the matched competitor products
// sharing its technology and tier. Without comparables the product is
// reported at the 50th percentile.
func (e *Engine) ComputeMarketPosition(p market.InternalProduct, matched []market.CompetitorProduct) MarketPosition {
	tier := TierOf(p.Technology, p.DataAllowanceGB, p.SpeedMbps)
	pos := MarketPosition{InternalProductID: p.ID, Tier: tier, Percentile: 50, Position: Competitive}

	var prices []decimal.Decimal
	for _, c := range matched {
		if !c.IsCurrent() || c.Technology != p.Technology {
			continue
		}
		if TierOf(c.Technology, c.DataAllowanceGB, c.SpeedMbps) != tier {
			continue
		}
		prices = append(prices, c.MonthlyPrice)
	}
	if len(prices) == 0 {
		return pos
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	above := 0.0
	for _, price := range prices {
		switch price.Cmp(p.MonthlyPrice) {
		case 1:
			above++
		case 0:
			above += 0.5
		}
	}

	pos.Comparables = len(prices)
	pos.Percentile = above / float64(len(prices)) * 100
	pos.MinPrice = prices[0]
	pos.MaxPrice = prices[len(prices)-1]
	pos.AvgPrice = avg(prices)
	pos.GapToAverage = fraction(p.MonthlyPrice, pos.AvgPrice)
	switch {
	case pos.GapToAverage < -e.cfg.PositionBand:
		pos.Position = BelowMarket
	case pos.GapToAverage > e.cfg.PositionBand:
		pos.Position = AboveMarket
	}
	return pos
}

// PricingOpportunity is an internal product priced well above the cheapest
// comparable competitor.
type PricingOpportunity struct {
	InternalProductID    string           `json:"internal_product_id"`
	ProductName          string           `json:"product_name"`
	InternalPrice        decimal.Decimal  `json:"internal_price"`
	CheapestPrice        decimal.Decimal  `json:"cheapest_price"`
	CheapestCompetitorID string           `json:"cheapest_competitor_id"`
	Gap                  decimal.Decimal  `json:"gap"`
	GapPct               float64          `json:"gap_pct"`
	MatchCount           int              `json:"match_count"`
	Subscribers          *int             `json:"subscribers,omitempty"`
	RevenueAtRisk        *decimal.Decimal `json:"revenue_at_risk,omitempty"`
}

// FindPricingOpportunities flags catalog products whose price exceeds the
// cheapest matched competitor by more than the gap threshold. Products with
// a known revenue at risk come first, largest first; the rest follow by gap.
func (e *Engine) FindPricingOpportunities(catalog []market.InternalProduct, competitors []market.CompetitorProduct) []PricingOpportunity {
	var out []PricingOpportunity
	for _, p := range catalog {
		matched := e.matchedProducts(p, competitors)
		if len(matched) == 0 {
			continue
		}
		cheapest := matched[0]
		for _, c := range matched[1:] {
			if c.MonthlyPrice.LessThan(cheapest.MonthlyPrice) ||
				(c.MonthlyPrice.Equal(cheapest.MonthlyPrice) && c.ID < cheapest.ID) {
				cheapest = c
			}
		}

		gapPct := fraction(p.MonthlyPrice, cheapest.MonthlyPrice)
		if gapPct <= e.cfg.GapThreshold {
			continue
		}
		opp := PricingOpportunity{
			InternalProductID:    p.ID,
			ProductName:          p.Name,
			InternalPrice:        p.MonthlyPrice,
			CheapestPrice:        cheapest.MonthlyPrice,
			CheapestCompetitorID: cheapest.ID,
			Gap:                  p.MonthlyPrice.Sub(cheapest.MonthlyPrice),
			GapPct:               gapPct,
			MatchCount:           len(matched),
			Subscribers:          p.Subscribers,
		}
		if p.Subscribers != nil {
			risk := opp.Gap.Mul(decimal.NewFromInt(int64(*p.Subscribers)))
			opp.RevenueAtRisk = &risk
		}
		out = append(out, opp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.RevenueAtRisk != nil) != (b.RevenueAtRisk != nil) {
			return a.RevenueAtRisk != nil
		}
		if a.RevenueAtRisk != nil && !a.RevenueAtRisk.Equal(*b.RevenueAtRisk) {
			return a.RevenueAtRisk.GreaterThan(*b.RevenueAtRisk)
		}
		if a.GapPct != b.GapPct {
			return a.GapPct > b.GapPct
		}
		return a.InternalProductID < b.InternalProductID
	})
	return out
}

// Headroom is an internal product priced below the matched market average:
// room to raise the price.
type Headroom struct {
	InternalProductID string
	ProductName       string
	InternalPrice     decimal.Decimal
	MarketAverage     decimal.Decimal
	GapPct            float64
}

// FindHeadroom reports products priced more than the headroom threshold
// below the average of their matched competitors, largest gap first.
func (e *Engine) FindHeadroom(catalog []market.InternalProduct, competitors []market.CompetitorProduct) []Headroom {
	var out []Headroom
	for _, p := range catalog {
		matched := e.matchedProducts(p, competitors)
		if len(matched) == 0 {
			continue
		}
		prices := make([]decimal.Decimal, len(matched))
		for i, c := range matched {
			prices[i] = c.MonthlyPrice
		}
		average := avg(prices)
		gap := -fraction(p.MonthlyPrice, average)
		if gap <= e.cfg.HeadroomThreshold {
			continue
		}
		out = append(out, Headroom{
			InternalProductID: p.ID,
			ProductName:       p.Name,
			InternalPrice:     p.MonthlyPrice,
			MarketAverage:     average,
			GapPct:            gap,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GapPct != out[j].GapPct {
			return out[i].GapPct > out[j].GapPct
		}
		return out[i].InternalProductID < out[j].InternalProductID
	})
	return out
}
