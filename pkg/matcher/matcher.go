// Package matcher scores how comparable competitor offerings are to the
// operator's own products.
package matcher

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rivalscope/rivalscope/pkg/market"
)

// Weights of the four similarity terms. They must add up to 1.
type Weights struct {
	Technology  float64 `mapstructure:"technology"`
	Capacity    float64 `mapstructure:"capacity"`
	Price       float64 `mapstructure:"price"`
	ProductType float64 `mapstructure:"product_type"`
}

func (w Weights) sum() float64 { return w.Technology + w.Capacity + w.Price + w.ProductType }

// Config controls matching.
type Config struct {
	Weights       Weights `mapstructure:"weights"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

const (
	weightTolerance = 1e-6
	// priceSpread is the relative price gap at which price proximity hits zero.
	priceSpread = 0.5
)

// DefaultConfig returns the production weights.
func DefaultConfig() Config {
	return Config{
		Weights:       Weights{Technology: 0.30, Capacity: 0.25, Price: 0.25, ProductType: 0.20},
		MinConfidence: 0.4,
	}
}

// Validate checks the weights and threshold.
func (c Config) Validate() error {
	w := c.Weights
	if w.Technology < 0 || w.Capacity < 0 || w.Price < 0 || w.ProductType < 0 {
		return errors.New("matcher weights must not be negative")
	}
	if s := w.sum(); math.Abs(s-1) > weightTolerance {
		return fmt.Errorf("matcher weights must sum to 1, got %.6f", s)
	}
	if err := market.ValidateConfidence(c.MinConfidence); err != nil {
		return fmt.Errorf("matcher min confidence: %w", err)
	}
	return nil
}

// Matcher is pure and safe for concurrent use.
type Matcher struct {
	cfg Config
}

func New(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{cfg: cfg}, nil
}

// Breakdown holds the unweighted similarity terms, each in [0,1].
type Breakdown struct {
	Technology  float64
	Capacity    float64
	Price       float64
	ProductType float64
}

func (b Breakdown) String() string {
	return fmt.Sprintf("technology=%.2f capacity=%.2f price=%.2f type=%.2f", b.Technology, b.Capacity, b.Price, b.ProductType)
}

// Score returns the weighted confidence that c is comparable to p.
func (m *Matcher) Score(p market.InternalProduct, c market.NormalizedProduct) (float64, Breakdown) {
	b := Breakdown{
		Technology:  boolScore(p.Technology == c.Technology),
		Capacity:    capacityProximity(p, c),
		Price:       priceProximity(p.MonthlyPrice.InexactFloat64(), c.MonthlyPrice.InexactFloat64()),
		ProductType: boolScore(p.ProductType == c.ProductType),
	}
	w := m.cfg.Weights
	score := b.Technology*w.Technology + b.Capacity*w.Capacity + b.Price*w.Price + b.ProductType*w.ProductType
	// six decimals keeps float noise out of ordering and boundary checks
	score = math.Round(score*1e6) / 1e6
	return math.Min(math.Max(score, 0), 1), b
}

// GenerateCandidates scores every current competitor product against p and
// returns those at or above the confidence threshold, best first.
func (m *Matcher) GenerateCandidates(p market.InternalProduct, competitors []market.CompetitorProduct) []market.Match {
	type scored struct {
		match    market.Match
		lastSeen int64
	}
	var out []scored
	for _, c := range competitors {
		if !c.IsCurrent() {
			continue
		}
		conf, b := m.Score(p, c.NormalizedProduct)
		if conf < m.cfg.MinConfidence {
			continue
		}
		match, err := market.NewMatch(p.ID, c.ID, conf, b.String())
		if err != nil {
			continue
		}
		match.LastSeenAt = c.LastSeenAt
		out = append(out, scored{match: match, lastSeen: c.LastSeenAt.UnixNano()})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.match.Confidence != b.match.Confidence {
			return a.match.Confidence > b.match.Confidence
		}
		if a.lastSeen != b.lastSeen {
			return a.lastSeen > b.lastSeen
		}
		return a.match.CompetitorProductID < b.match.CompetitorProductID
	})

	matches := make([]market.Match, len(out))
	for i, s := range out {
		matches[i] = s.match
	}
	return matches
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// proximity is 1 for equal values and falls to 0 as they diverge.
func proximity(a, b int) float64 {
	hi := math.Max(float64(a), float64(b))
	if hi <= 0 {
		return 1
	}
	return 1 - math.Min(math.Abs(float64(a-b))/hi, 1)
}

func capacityProximity(p market.InternalProduct, c market.NormalizedProduct) float64 {
	switch {
	case p.DataAllowanceGB != nil && c.DataAllowanceGB != nil:
		return proximity(*p.DataAllowanceGB, *c.DataAllowanceGB)
	case p.DataAllowanceGB == nil && c.DataAllowanceGB == nil:
		if p.SpeedMbps != nil && c.SpeedMbps != nil {
			return proximity(*p.SpeedMbps, *c.SpeedMbps)
		}
		return 1
	default:
		return 0
	}
}

func priceProximity(internal, competitor float64) float64 {
	if internal <= 0 {
		return 0
	}
	gap := math.Abs(competitor-internal) / internal
	return 1 - math.Min(gap, priceSpread)/priceSpread
}
