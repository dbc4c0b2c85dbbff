package sim

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
)

func seededSim(seed int64) *Simulator {
	return NewSimulatorWithRand(rand.New(rand.NewSource(seed)))
}

func largeCapQuote(price float64, volume int64) domain.Quote {
	return domain.Quote{
		Symbol:    "AAPL",
		Current:   decimal.NewFromFloat(price),
		Volume:    volume,
		MarketCap: decimal.NewFromInt(3_000_000_000_000),
	}
}

func TestClassify(t *testing.T) {
	// Allow-list wins even without a market cap
	assert.Equal(t, LargeCap, Classify("AAPL", decimal.Zero))

	// Thresholds: $10B and $2B
	assert.Equal(t, LargeCap, Classify("ZZZZ", decimal.NewFromInt(15_000_000_000)))
	assert.Equal(t, MidCap, Classify("ZZZZ", decimal.NewFromInt(5_000_000_000)))
	assert.Equal(t, SmallCap, Classify("ZZZZ", decimal.NewFromInt(500_000_000)))
	assert.Equal(t, SmallCap, Classify("ZZZZ", decimal.Zero))
}

func TestEstimatedADV(t *testing.T) {
	assert.Equal(t, int64(50_000_000), EstimatedADV(5_000_000))
	assert.Equal(t, int64(1_000_000), EstimatedADV(0), "fallback when volume unknown")
}

func TestSimulate_FillsConserveQuantity(t *testing.T) {
	s := seededSim(42)

	for _, qty := range []int64{1, 100, 999, 5_000, 75_000, 2_000_000} {
		fills, _, err := s.Simulate("AAPL", domain.SideBuy, qty, largeCapQuote(150, 5_000_000), domain.TypeMarket)
		require.NoError(t, err)

		var sum int64
		for _, f := range fills {
			assert.Positive(t, f.Quantity)
			sum += f.Quantity
		}
		assert.Equal(t, qty, sum, "fills must sum to the requested quantity")
		assert.GreaterOrEqual(t, len(fills), 1)
		assert.LessOrEqual(t, len(fills), 5)
	}
}

func TestSimulate_SmallLargeCapOrderScenario(t *testing.T) {
	// 100 shares of a large cap at $150.00: 1-3 fills, each priced within
	// +/- (half spread + impact + 2bps noise) of the quote.
	s := seededSim(7)
	quote := largeCapQuote(150.00, 5_000_000)

	fills, res, err := s.Simulate("AAPL", domain.SideBuy, 100, quote, domain.TypeMarket)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(fills), 1)
	require.LessOrEqual(t, len(fills), 3)

	var sum int64
	for _, f := range fills {
		sum += f.Quantity
	}
	assert.Equal(t, int64(100), sum)

	assert.Equal(t, LargeCap, res.Class)
	assert.Equal(t, 2.0, res.SpreadBps)

	// Price bound: half spread + impact + per-fill noise, plus half a tick
	// of rounding slack
	boundBps := res.SpreadBps/2 + res.ImpactBps + fillNoiseBps
	bound := decimal.NewFromFloat(150.00 * boundBps / 10_000).
		Add(decimal.NewFromFloat(0.005))
	for _, f := range fills {
		diff := f.Price.Sub(decimal.NewFromFloat(150.00)).Abs()
		assert.Truef(t, diff.LessThanOrEqual(bound),
			"fill price %s outside +/-%s of 150.00", f.Price, bound)
	}
}

func TestSimulate_BuysPayUpSellsGiveUp(t *testing.T) {
	// Big enough to make the adjustment dominate the +/-2bps noise
	quote := largeCapQuote(100, 1_000) // ADV 10k, qty 5k => 50bps cap
	ref := decimal.NewFromInt(100)

	buyFills, _, err := seededSim(1).Simulate("AAPL", domain.SideBuy, 5_000, quote, domain.TypeMarket)
	require.NoError(t, err)
	for _, f := range buyFills {
		assert.True(t, f.Price.GreaterThan(ref), "buy fill %s should be above mid", f.Price)
	}

	sellFills, _, err := seededSim(1).Simulate("AAPL", domain.SideSell, 5_000, quote, domain.TypeMarket)
	require.NoError(t, err)
	for _, f := range sellFills {
		assert.True(t, f.Price.LessThan(ref), "sell fill %s should be below mid", f.Price)
	}
}

func TestSimulate_CommissionMatchesVenueRate(t *testing.T) {
	s := seededSim(3)
	fills, _, err := s.Simulate("AAPL", domain.SideBuy, 100, largeCapQuote(150, 5_000_000), domain.TypeMarket)
	require.NoError(t, err)

	rates := map[string]float64{}
	for _, v := range defaultVenues {
		rates[v.Name] = v.CommissionBps
	}

	for _, f := range fills {
		rate, ok := rates[f.Venue]
		require.True(t, ok, "unknown venue %s", f.Venue)
		want := f.Price.Mul(decimal.NewFromInt(f.Quantity)).
			Mul(decimal.NewFromFloat(rate)).
			Div(decimal.NewFromInt(10_000)).Round(4)
		assert.True(t, f.Commission.Equal(want),
			"commission %s, want %s", f.Commission, want)
	}
}

func TestSimulate_VenuesNotReused(t *testing.T) {
	s := seededSim(11)
	fills, _, err := s.Simulate("AAPL", domain.SideBuy, 2_000_000, largeCapQuote(150, 5_000_000), domain.TypeMarket)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, f := range fills {
		assert.False(t, seen[f.Venue], "venue %s used twice", f.Venue)
		seen[f.Venue] = true
	}
}

func TestSimulate_DeterministicWithSeededSource(t *testing.T) {
	a, _, err := seededSim(99).Simulate("AAPL", domain.SideBuy, 10_000, largeCapQuote(150, 5_000_000), domain.TypeMarket)
	require.NoError(t, err)
	b, _, err := seededSim(99).Simulate("AAPL", domain.SideBuy, 10_000, largeCapQuote(150, 5_000_000), domain.TypeMarket)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Venue, b[i].Venue)
		assert.Equal(t, a[i].Quantity, b[i].Quantity)
		assert.True(t, a[i].Price.Equal(b[i].Price))
	}
}

func TestSimulate_RejectsBadInput(t *testing.T) {
	s := seededSim(5)

	_, _, err := s.Simulate("AAPL", domain.SideBuy, 0, largeCapQuote(150, 0), domain.TypeMarket)
	assert.Error(t, err)

	_, _, err = s.Simulate("AAPL", domain.SideBuy, 100, domain.Quote{Symbol: "AAPL"}, domain.TypeMarket)
	assert.Error(t, err, "zero-price quote must be rejected")
}

func TestImpactBps_CappedAtFifty(t *testing.T) {
	assert.Equal(t, 50.0, ImpactBps(1.0))
	assert.Equal(t, 50.0, ImpactBps(100))
	assert.Equal(t, 0.0, ImpactBps(0))
	assert.Less(t, ImpactBps(0.0001), 50.0)
}

// Impact is monotonically non-decreasing in participation and never
// exceeds the 50bps cap.
func TestImpactBps_MonotoneProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p1 := rapid.Float64Range(0, 10).Draw(t, "p1")
		p2 := rapid.Float64Range(0, 10).Draw(t, "p2")
		if p1 > p2 {
			p1, p2 = p2, p1
		}

		i1, i2 := ImpactBps(p1), ImpactBps(p2)
		if i1 > i2 {
			t.Fatalf("impact decreased: f(%v)=%v > f(%v)=%v", p1, i1, p2, i2)
		}
		if i2 > 50.0 {
			t.Fatalf("impact %v exceeds 50bps cap", i2)
		}
	})
}
