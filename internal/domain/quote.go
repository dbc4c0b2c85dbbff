package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus describes the trading session the quote was taken in.
type MarketStatus string

const (
	MarketOpen       MarketStatus = "OPEN"
	MarketClosed     MarketStatus = "CLOSED"
	MarketPreMarket  MarketStatus = "PRE_MARKET"
	MarketAfterHours MarketStatus = "AFTER_HOURS"
	MarketHoliday    MarketStatus = "HOLIDAY"
	MarketUnknown    MarketStatus = "UNKNOWN"
)

// DataQuality describes how trustworthy a quote is.
type DataQuality string

const (
	QualityRealTime DataQuality = "REAL_TIME"
	QualityDelayed  DataQuality = "DELAYED"
	QualityStale    DataQuality = "STALE"    // past freshness window, fallback only
	QualityCached   DataQuality = "CACHED"   // served from cache within TTL
	QualityFallback DataQuality = "FALLBACK" // synthetic zero-price placeholder
)

// Quote is a snapshot of price/volume/session data for one symbol.
// Quotes are immutable once constructed; a newer fetch supersedes, never
// mutates, an older one.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Current       decimal.Decimal `json:"current"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Volume        int64           `json:"volume"`
	MarketCap     decimal.Decimal `json:"market_cap"`
	Timestamp     time.Time       `json:"timestamp"`
	MarketStatus  MarketStatus    `json:"market_status"`
	Quality       DataQuality     `json:"quality"`
	Exchange      string          `json:"exchange"`
	SourceLatency time.Duration   `json:"source_latency"`
}

// Valid reports whether the quote satisfies its invariants:
// a positive current price and a non-negative volume.
func (q Quote) Valid() bool {
	return q.Current.IsPositive() && q.Volume >= 0
}

// WithQuality returns a copy of the quote with the quality downgraded.
// The receiver is left untouched.
func (q Quote) WithQuality(quality DataQuality) Quote {
	q.Quality = quality
	return q
}

// FallbackQuote builds the zero-price placeholder used when a symbol in a
// batch request cannot be served at all.
func FallbackQuote(symbol string) Quote {
	return Quote{
		Symbol:       symbol,
		Current:      decimal.Zero,
		Timestamp:    time.Now().UTC(),
		MarketStatus: MarketUnknown,
		Quality:      QualityFallback,
	}
}
