package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfleet/supervisor/internal/pricing"
)

func TestCompute_PredictionWithMarkupCappedByMaxPrice(t *testing.T) {
	pred := 0.10
	max := decimal.NewFromFloat(0.11)

	price, err := pricing.Compute(&pred, max, 50) // desired = 0.15, capped to 0.11
	require.NoError(t, err)
	assert.True(t, price.Equal(max), "expected price capped at max_price, got %s", price)
}

func TestCompute_PredictionWithinCap(t *testing.T) {
	pred := 0.10
	max := decimal.NewFromFloat(1.0)

	price, err := pricing.Compute(&pred, max, 10) // desired = 0.11
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(0.11)))
}

func TestCompute_NoPredictionFallsBackToMaxPrice(t *testing.T) {
	max := decimal.NewFromFloat(0.25)
	price, err := pricing.Compute(nil, max, 10)
	require.NoError(t, err)
	assert.True(t, price.Equal(max))
}

func TestCompute_NoPredictionNoMaxPriceFails(t *testing.T) {
	_, err := pricing.Compute(nil, decimal.Zero, 10)
	assert.ErrorIs(t, err, pricing.ErrNoPriceAvailable{})
}

func TestPriceConversion_RoundTripsWithinDisplayPrecision(t *testing.T) {
	// Human-denominated prices already at 4 decimal places round-trip
	// exactly through wei-per-second and back (§8's price conversion law).
	for _, human := range []string{"0", "0.1234", "1.0000", "12.3456"} {
		h := decimal.RequireFromString(human)
		wire := pricing.HumanToWire(h)
		back := pricing.WireToHuman(wire)
		assert.True(t, back.Equal(h), "human %s round-tripped to %s via wire %s", h, back, wire)
	}
}
