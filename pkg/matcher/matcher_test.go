package matcher

import (
	"testing"
	"time"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fibre(id string, price int64, speed int, seen time.Time) market.CompetitorProduct {
	return market.CompetitorProduct{
		ID: id,
		NormalizedProduct: market.NormalizedProduct{
			Name:         id,
			ProductType:  market.ProductFibre,
			Technology:   market.TechFibre,
			MonthlyPrice: decimal.NewFromInt(price),
			SpeedMbps:    market.IntPtr(speed),
		},
		Lifecycle:  market.Current,
		LastSeenAt: seen,
	}
}

func internalFibre() market.InternalProduct {
	return market.InternalProduct{
		ID:           "own-100",
		ProductType:  market.ProductFibre,
		Technology:   market.TechFibre,
		MonthlyPrice: decimal.NewFromInt(899),
		SpeedMbps:    market.IntPtr(100),
	}
}

func TestNewRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Price = 0.3
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Weights = Weights{Technology: 1.2, Capacity: -0.2}
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MinConfidence = 1.5
	_, err = New(cfg)
	assert.Error(t, err)

	_, err = New(DefaultConfig())
	assert.NoError(t, err)
}

func TestCloserPriceAndSpeedRanksHigher(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	now := time.Now()

	matches := m.GenerateCandidates(internalFibre(), []market.CompetitorProduct{
		fibre("pricey-50", 1200, 50, now),
		fibre("cheap-100", 750, 100, now),
	})
	require.Len(t, matches, 2)
	assert.Equal(t, "cheap-100", matches[0].CompetitorProductID)
	assert.Greater(t, matches[0].Confidence, matches[1].Confidence)
	assert.InDelta(t, 0.917, matches[0].Confidence, 0.001)
	assert.InDelta(t, 0.708, matches[1].Confidence, 0.001)
	assert.Contains(t, matches[0].Notes, "technology=1.00")
	assert.Equal(t, "own-100", matches[0].InternalProductID)
}

func TestThresholdAndLifecycle(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	now := time.Now()

	lte := market.CompetitorProduct{
		ID: "lte-capped",
		NormalizedProduct: market.NormalizedProduct{
			ProductType:     market.ProductLTE,
			Technology:      market.TechLTE,
			MonthlyPrice:    decimal.NewFromInt(3000),
			DataAllowanceGB: market.IntPtr(20),
		},
		Lifecycle: market.Current,
	}
	gone := fibre("superseded", 899, 100, now)
	gone.Lifecycle = market.Superseded

	matches := m.GenerateCandidates(internalFibre(), []market.CompetitorProduct{lte, gone})
	assert.Empty(t, matches)
}

func TestTieBreaks(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	matches := m.GenerateCandidates(internalFibre(), []market.CompetitorProduct{
		fibre("b", 899, 100, older),
		fibre("a", 899, 100, older),
		fibre("c", 899, 100, newer),
	})
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{
		matches[0].CompetitorProductID, matches[1].CompetitorProductID, matches[2].CompetitorProductID,
	})
	assert.Equal(t, 1.0, matches[0].Confidence)
}

func TestDeterministic(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	now := time.Now()
	comps := []market.CompetitorProduct{fibre("x", 700, 50, now), fibre("y", 950, 200, now)}

	first := m.GenerateCandidates(internalFibre(), comps)
	second := m.GenerateCandidates(internalFibre(), comps)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].CompetitorProductID, second[i].CompetitorProductID)
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
	}
}

func TestCapacityProximity(t *testing.T) {
	capped := func(gb int) market.NormalizedProduct {
		return market.NormalizedProduct{DataAllowanceGB: market.IntPtr(gb)}
	}
	p := market.InternalProduct{DataAllowanceGB: market.IntPtr(50)}

	assert.Equal(t, 1.0, capacityProximity(p, capped(50)))
	assert.InDelta(t, 0.5, capacityProximity(p, capped(100)), 1e-9)
	assert.Equal(t, 0.0, capacityProximity(p, market.NormalizedProduct{}))
	assert.Equal(t, 1.0, capacityProximity(market.InternalProduct{}, market.NormalizedProduct{}))
	assert.Equal(t, 1.0, capacityProximity(market.InternalProduct{DataAllowanceGB: market.IntPtr(0)}, capped(0)))
}

func TestPriceProximity(t *testing.T) {
	assert.Equal(t, 1.0, priceProximity(100, 100))
	assert.InDelta(t, 0.5, priceProximity(100, 125), 1e-9)
	assert.Equal(t, 0.0, priceProximity(100, 200))
	assert.Equal(t, 0.0, priceProximity(0, 100))
}
