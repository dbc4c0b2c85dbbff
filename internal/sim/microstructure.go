package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
)

// CapClass buckets a symbol by market capitalization.
type CapClass string

const (
	LargeCap CapClass = "LARGE_CAP"
	MidCap   CapClass = "MID_CAP"
	SmallCap CapClass = "SMALL_CAP"
)

// Market-cap thresholds in dollars.
var (
	largeCapThreshold = decimal.NewFromInt(10_000_000_000)
	midCapThreshold   = decimal.NewFromInt(2_000_000_000)
)

// largeCapSymbols short-circuits classification for well-known names whose
// profile data may be missing.
var largeCapSymbols = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOGL": true, "GOOG": true, "AMZN": true,
	"META": true, "NVDA": true, "TSLA": true, "BRK.A": true, "BRK.B": true,
	"JPM": true, "V": true, "JNJ": true, "WMT": true, "XOM": true, "UNH": true,
}

// Bid/ask spreads by class, in basis points.
var spreadBpsByClass = map[CapClass]float64{
	LargeCap: 2,
	MidCap:   5,
	SmallCap: 10,
}

// Impact model coefficients (basis points) and cap.
const (
	linearImpactCoef = 10.0
	sqrtImpactCoef   = 30.0
	maxImpactBps     = 50.0

	fallbackADV = 1_000_000

	// Per-fill price noise, basis points either way.
	fillNoiseBps = 2.0
)

// Venue is an execution venue with its commission rate.
type Venue struct {
	Name          string
	CommissionBps float64
}

var defaultVenues = []Venue{
	{Name: "NYSE", CommissionBps: 1.0},
	{Name: "NASDAQ", CommissionBps: 1.2},
	{Name: "ARCA", CommissionBps: 0.8},
	{Name: "EDGX", CommissionBps: 0.7},
	{Name: "IEX", CommissionBps: 0.9},
}

// Result carries the microstructure metrics alongside the fills.
type Result struct {
	Class         CapClass
	SpreadBps     float64
	ImpactBps     float64
	Participation float64
	SlippageBps   float64 // signed vs the quote mid
	EstimatedADV  int64
}

// Simulator computes spread, market impact and partial fills from a quote.
//
// Fill slicing, venue choice and per-fill price noise are randomized for
// realism: two runs with identical inputs will not produce identical fills
// unless a seeded random source is injected.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand

	venues []Venue
}

// NewSimulator creates a simulator with a time-seeded random source.
func NewSimulator() *Simulator {
	return NewSimulatorWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSimulatorWithRand creates a simulator with an injected random source,
// letting tests assert exact fills deterministically.
func NewSimulatorWithRand(rng *rand.Rand) *Simulator {
	return &Simulator{rng: rng, venues: defaultVenues}
}

// Simulate produces the fills for an order against a quote.
// quantity must be positive and the quote price must be positive.
func (s *Simulator) Simulate(symbol, side string, quantity int64, quote domain.Quote, orderType string) ([]domain.Fill, Result, error) {
	if quantity <= 0 {
		return nil, Result{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if !quote.Current.IsPositive() {
		return nil, Result{}, fmt.Errorf("no usable price for %s", symbol)
	}

	class := Classify(symbol, quote.MarketCap)
	spread := spreadBpsByClass[class]

	adv := EstimatedADV(quote.Volume)
	participation := float64(quantity) / float64(adv)
	impact := ImpactBps(participation)

	// Total adjustment in bps: half the spread plus impact, against the
	// taker. Buys pay up, sells give up.
	adjBps := spread/2 + impact
	execPrice := applyBps(quote.Current, adjBps, side)

	fills := s.slice(symbol, quantity, execPrice)

	res := Result{
		Class:         class,
		SpreadBps:     spread,
		ImpactBps:     impact,
		Participation: participation,
		SlippageBps:   slippageBps(quote.Current, fills, side),
		EstimatedADV:  adv,
	}
	return fills, res, nil
}

// Classify buckets a symbol: the allow-list wins, then market cap, then
// small cap by default.
func Classify(symbol string, marketCap decimal.Decimal) CapClass {
	if largeCapSymbols[symbol] {
		return LargeCap
	}
	if marketCap.GreaterThanOrEqual(largeCapThreshold) {
		return LargeCap
	}
	if marketCap.GreaterThanOrEqual(midCapThreshold) {
		return MidCap
	}
	return SmallCap
}

// EstimatedADV approximates average daily volume as 10x the last-known
// volume, with a fixed fallback when no volume is known.
func EstimatedADV(volume int64) int64 {
	if volume <= 0 {
		return fallbackADV
	}
	return 10 * volume
}

// ImpactBps computes market impact in basis points for a participation
// rate: linear plus square-root terms, capped at 50 bps. Monotonically
// non-decreasing in participation.
func ImpactBps(participation float64) float64 {
	if participation <= 0 {
		return 0
	}
	impact := linearImpactCoef*participation + sqrtImpactCoef*math.Sqrt(participation)
	if impact > maxImpactBps {
		return maxImpactBps
	}
	return impact
}

// slice carves the quantity into 1-5 venue fills with randomized sizes and
// per-fill price noise.
func (s *Simulator) slice(symbol string, quantity int64, execPrice decimal.Decimal) []domain.Fill {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.fillCount(quantity)
	order := s.rng.Perm(len(s.venues)) // venues without replacement

	fills := make([]domain.Fill, 0, n)
	remaining := quantity
	now := time.Now().UTC()

	for i := 0; i < n && remaining > 0; i++ {
		var qty int64
		if i == n-1 {
			qty = remaining
		} else {
			// 20-60% of what is left
			frac := 0.20 + s.rng.Float64()*0.40
			qty = int64(float64(remaining) * frac)
			if qty < 1 {
				qty = 1
			}
			if qty > remaining {
				qty = remaining
			}
		}
		remaining -= qty

		venue := s.venues[order[i%len(s.venues)]]

		noise := (s.rng.Float64()*2 - 1) * fillNoiseBps
		price := roundToTick(applySignedBps(execPrice, noise))

		notional := price.Mul(decimal.NewFromInt(qty))
		commission := notional.Mul(decimal.NewFromFloat(venue.CommissionBps)).
			Div(decimal.NewFromInt(10_000)).Round(4)

		fills = append(fills, domain.Fill{
			Venue:      venue.Name,
			Quantity:   qty,
			Price:      price,
			Commission: commission,
			Timestamp:  now,
		})
	}

	return fills
}

// fillCount picks 1-5 fills depending on order size.
func (s *Simulator) fillCount(quantity int64) int {
	switch {
	case quantity <= 100:
		return 1
	case quantity <= 1_000:
		return 1 + s.rng.Intn(2) // 1-2
	case quantity <= 10_000:
		return 2 + s.rng.Intn(2) // 2-3
	case quantity <= 100_000:
		return 3 + s.rng.Intn(2) // 3-4
	default:
		return 3 + s.rng.Intn(3) // 3-5
	}
}

// applyBps moves the price against the taker: up for buys, down for sells.
func applyBps(price decimal.Decimal, bps float64, side string) decimal.Decimal {
	if side == domain.SideSell {
		bps = -bps
	}
	return applySignedBps(price, bps)
}

func applySignedBps(price decimal.Decimal, bps float64) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(
		decimal.NewFromFloat(bps).Div(decimal.NewFromInt(10_000)))
	return price.Mul(factor)
}

// roundToTick rounds to the venue tick: one cent at or above $1, a tenth of
// a cent below.
func roundToTick(price decimal.Decimal) decimal.Decimal {
	if price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return price.Round(2)
	}
	return price.Round(3)
}

// slippageBps measures the volume-weighted fill price against the quote,
// signed so that paying up on a buy and giving up on a sell are positive.
func slippageBps(ref decimal.Decimal, fills []domain.Fill, side string) float64 {
	if len(fills) == 0 || ref.IsZero() {
		return 0
	}
	notional := decimal.Zero
	var qty int64
	for _, f := range fills {
		notional = notional.Add(f.Price.Mul(decimal.NewFromInt(f.Quantity)))
		qty += f.Quantity
	}
	avg := notional.Div(decimal.NewFromInt(qty))
	diff := avg.Sub(ref).Div(ref).Mul(decimal.NewFromInt(10_000))
	bps, _ := diff.Float64()
	if side == domain.SideSell {
		bps = -bps
	}
	return bps
}
