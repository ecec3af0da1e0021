package market

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name string
		p    NormalizedProduct
		want string
	}{
		{"external id wins", NormalizedProduct{ExternalID: " SKU-12 ", Name: "Whatever"}, "ext:sku-12"},
		{"name and term", NormalizedProduct{Name: "Samsung  Galaxy S24", ContractTermMonths: 24}, "name:samsung galaxy s24|24m"},
		{"month to month", NormalizedProduct{Name: "Uncapped 5G"}, "name:uncapped 5g|0m"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.IdentityKey())
		})
	}
}

func TestNewMatchRejectsOutOfRange(t *testing.T) {
	for _, c := range []float64{-0.01, 1.0001, math.NaN()} {
		_, err := NewMatch("a", "b", c, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfidence))
	}
	m, err := NewMatch("a", "b", 1, "exact")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, 1.0, m.Confidence)
}

func TestProviderDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	last := now.Add(-25 * time.Hour)

	assert.True(t, Provider{Active: true}.DueAt(now))
	assert.False(t, Provider{Active: false}.DueAt(now))
	assert.True(t, Provider{Active: true, ScrapeFrequency: Daily, LastScrapedAt: &last}.DueAt(now))
	assert.False(t, Provider{Active: true, ScrapeFrequency: Weekly, LastScrapedAt: &last}.DueAt(now))

	assert.True(t, Provider{}.StaleAt(now, 7*24*time.Hour))
	assert.False(t, Provider{LastScrapedAt: &last}.StaleAt(now, 7*24*time.Hour))
}

func TestDedupKeyIsPerDay(t *testing.T) {
	morning := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	evening := morning.Add(12 * time.Hour)
	assert.Equal(t, DedupKey(AlertPriceChange, "p1", morning), DedupKey(AlertPriceChange, "p1", evening))
	assert.NotEqual(t, DedupKey(AlertPriceChange, "p1", morning), DedupKey(AlertPriceChange, "p1", morning.Add(24*time.Hour)))
}
