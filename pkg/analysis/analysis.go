// Package analysis derives market positions, pricing opportunities and
// trends from stored competitor data. Nothing here writes.
package analysis

import (
	"errors"
	"sort"
	"time"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/matcher"
	"github.com/shopspring/decimal"
)

// Config holds the analysis thresholds as fractions.
type Config struct {
	GapThreshold      float64       `mapstructure:"gap_threshold"`
	HeadroomThreshold float64       `mapstructure:"headroom_threshold"`
	PositionBand      float64       `mapstructure:"position_band"`
	TrendWindow       time.Duration `mapstructure:"trend_window"`
	TrendBand         float64       `mapstructure:"trend_band"`
}

func DefaultConfig() Config {
	return Config{
		GapThreshold:      0.10,
		HeadroomThreshold: 0.05,
		PositionBand:      0.10,
		TrendWindow:       30 * 24 * time.Hour,
		TrendBand:         0.02,
	}
}

// Engine runs the analyses. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	matcher *matcher.Matcher
}

func New(cfg Config, m *matcher.Matcher) (*Engine, error) {
	if m == nil {
		return nil, errors.New("analysis requires a matcher")
	}
	if cfg.GapThreshold < 0 || cfg.HeadroomThreshold < 0 || cfg.PositionBand < 0 || cfg.TrendBand < 0 {
		return nil, errors.New("analysis thresholds must not be negative")
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = DefaultConfig().TrendWindow
	}
	return &Engine{cfg: cfg, matcher: m}, nil
}

// Tier buckets an offering by capacity so that only like-for-like
// products are compared on price.
type Tier string

// TierOf returns the capacity tier. Uncapped fixed-line products are split
// by speed.
func TierOf(tech market.Technology, dataGB, speedMbps *int) Tier {
	if dataGB != nil {
		switch gb := *dataGB; {
		case gb <= 10:
			return "capped:<=10GB"
		case gb <= 50:
			return "capped:<=50GB"
		case gb <= 200:
			return "capped:<=200GB"
		default:
			return "capped:>200GB"
		}
	}
	fixedLine := tech == market.TechFibre || tech == market.TechADSL
	if !fixedLine || speedMbps == nil {
		return "uncapped"
	}
	switch s := *speedMbps; {
	case s <= 25:
		return "uncapped:<=25Mbps"
	case s <= 100:
		return "uncapped:<=100Mbps"
	case s <= 500:
		return "uncapped:<=500Mbps"
	default:
		return "uncapped:>500Mbps"
	}
}

func avg(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(prices[0], prices[1:]...).Div(decimal.NewFromInt(int64(len(prices)))).Round(2)
}

// fraction returns (a-b)/b, zero when b is zero.
func fraction(a, b decimal.Decimal) float64 {
	if b.IsZero() {
		return 0
	}
	return a.Sub(b).Div(b).InexactFloat64()
}

// matchedProducts returns the competitor products the matcher accepts for p.
func (e *Engine) matchedProducts(p market.InternalProduct, competitors []market.CompetitorProduct) []market.CompetitorProduct {
	byID := make(map[string]market.CompetitorProduct, len(competitors))
	for _, c := range competitors {
		byID[c.ID] = c
	}
	var out []market.CompetitorProduct
	for _, m := range e.matcher.GenerateCandidates(p, competitors) {
		out = append(out, byID[m.CompetitorProductID])
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
