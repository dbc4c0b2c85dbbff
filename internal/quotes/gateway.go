package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/infra"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/infra/finnhub"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/obs"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.-]{1,10}$`)

const (
	marketStatusTTL  = 60 * time.Second
	batchConcurrency = 5
)

// SymbolMatch is one symbol lookup result.
type SymbolMatch struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// GatewayConfig tunes the retry policy.
type GatewayConfig struct {
	RetryAttempts int
}

// Gateway orchestrates limiter, breaker, cache and the upstream client into
// one consistent quote source. This is the component the execution engine
// depends on.
//
// Note: concurrent GetQuote calls for the same symbol may each hit upstream;
// there is deliberately no single-flight coalescing.
type Gateway struct {
	client  *finnhub.Client
	cache   *Cache
	limiter *infra.RateLimiter
	breaker *infra.CircuitBreaker
	metrics *obs.Metrics

	retryAttempts int
	backoff       func(int) time.Duration // test hook, defaults to infra.CalculateBackoff

	profileMu sync.RWMutex
	profiles  map[string]finnhub.ProfileResponse

	statusMu sync.Mutex
	status   domain.MarketStatus
	statusAt time.Time

	now func() time.Time
}

// NewGateway wires the gateway. metrics may be nil.
func NewGateway(client *finnhub.Client, cache *Cache, limiter *infra.RateLimiter,
	breaker *infra.CircuitBreaker, metrics *obs.Metrics, cfg GatewayConfig) *Gateway {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 3
	}
	return &Gateway{
		client:        client,
		cache:         cache,
		limiter:       limiter,
		breaker:       breaker,
		metrics:       metrics,
		retryAttempts: cfg.RetryAttempts,
		backoff:       infra.CalculateBackoff,
		profiles:      make(map[string]finnhub.ProfileResponse),
		status:        domain.MarketUnknown,
		now:           time.Now,
	}
}

// NormalizeSymbol upper-cases and validates a symbol.
func NormalizeSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSymbol, symbol)
	}
	return sym, nil
}

// GetQuote returns a quote for the symbol. With useCache a fresh cache hit
// is returned immediately; otherwise the upstream is fetched through the
// limiter and breaker with bounded retries, falling back to a stale cache
// entry (quality downgraded) when the upstream is unavailable.
func (g *Gateway) GetQuote(ctx context.Context, symbol string, useCache bool) (domain.Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	if useCache {
		if q, fresh, tier, ok := g.cache.Get(ctx, sym); ok && fresh {
			g.metrics.IncCacheHit(tier)
			return q.WithQuality(domain.QualityCached), nil
		}
		g.metrics.IncCacheMiss()
	}

	start := g.now()
	resp, fetchErr := g.fetchWithRetry(ctx, sym)
	if fetchErr != nil {
		// Degrade gracefully: any cache entry, however old, beats nothing.
		if q, _, _, ok := g.cache.Get(ctx, sym); ok {
			slog.Warn("serving stale quote after upstream failure",
				slog.String("symbol", sym), slog.Any("error", fetchErr))
			return q.WithQuality(domain.QualityStale), nil
		}
		if errors.Is(fetchErr, domain.ErrCircuitOpen) {
			return domain.Quote{}, fetchErr
		}
		g.metrics.IncAPIError("upstream")
		return domain.Quote{}, fmt.Errorf("%w: %s: %v", domain.ErrUpstream, sym, fetchErr)
	}
	g.metrics.ObserveFetchLatency(g.now().Sub(start))

	quote := g.buildQuote(ctx, sym, resp, g.now().Sub(start))
	g.cache.Put(ctx, sym, quote)
	return quote, nil
}

// GetMultipleQuotes fans out concurrently and isolates per-symbol failures:
// a failed symbol yields a zero-price fallback quote instead of aborting
// the batch.
func (g *Gateway) GetMultipleQuotes(ctx context.Context, symbols []string) map[string]domain.Quote {
	results := make(map[string]domain.Quote, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, batchConcurrency)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			q, err := g.GetQuote(ctx, symbol, true)
			if err != nil {
				slog.Warn("batch quote failed, using fallback",
					slog.String("symbol", symbol), slog.Any("error", err))
				q = domain.FallbackQuote(strings.ToUpper(strings.TrimSpace(symbol)))
			}
			mu.Lock()
			results[q.Symbol] = q
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()
	return results
}

// SearchSymbols looks up symbols matching a free-text query.
func (g *Gateway) SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidSymbol)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp finnhub.SearchResponse
	err := g.breaker.Call(func() error {
		r, err := g.client.Search(ctx, query)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCircuitOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: search %q: %v", domain.ErrUpstream, query, err)
	}

	matches := make([]SymbolMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, SymbolMatch{
			Symbol:      r.Symbol,
			Description: r.Description,
			Type:        r.Type,
		})
	}
	return matches, nil
}

// MarketStatus returns the cached session state of the US market,
// refreshing at most once per minute. Failures degrade to UNKNOWN.
func (g *Gateway) MarketStatus(ctx context.Context) domain.MarketStatus {
	g.statusMu.Lock()
	defer g.statusMu.Unlock()

	if g.now().Sub(g.statusAt) < marketStatusTTL && g.status != domain.MarketUnknown {
		return g.status
	}

	resp, err := g.client.MarketStatus(ctx, "US")
	g.statusAt = g.now()
	if err != nil {
		slog.Warn("market status fetch failed", slog.Any("error", err))
		g.status = domain.MarketUnknown
		return g.status
	}

	switch {
	case resp.Holiday != "":
		g.status = domain.MarketHoliday
	case resp.IsOpen:
		g.status = domain.MarketOpen
	case resp.Session == "pre-market":
		g.status = domain.MarketPreMarket
	case resp.Session == "post-market":
		g.status = domain.MarketAfterHours
	default:
		g.status = domain.MarketClosed
	}
	return g.status
}

// ApplyTradePrint folds a streamed trade into the cache, superseding the
// previous quote for that symbol.
func (g *Gateway) ApplyTradePrint(print finnhub.TradePrint) {
	sym, err := NormalizeSymbol(print.Symbol)
	if err != nil {
		return
	}

	ctx := context.Background()
	prev, _, _, ok := g.cache.Get(ctx, sym)
	quote := prev
	if !ok {
		quote = domain.Quote{Symbol: sym, MarketStatus: domain.MarketUnknown}
	}
	quote.Current = decimal.NewFromFloat(print.Price)
	quote.Volume += int64(print.Volume)
	quote.Timestamp = print.Timestamp
	quote.Quality = domain.QualityRealTime
	g.cache.Put(ctx, sym, quote)
}

// fetchWithRetry performs up to retryAttempts upstream calls, backing off
// exponentially, retrying only transient errors. A circuit-open rejection
// returns immediately without consuming the retry budget.
func (g *Gateway) fetchWithRetry(ctx context.Context, sym string) (finnhub.QuoteResponse, error) {
	var lastErr error
	for attempt := 0; attempt < g.retryAttempts; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt - 1)
			slog.Info("retrying quote fetch",
				slog.String("symbol", sym),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return finnhub.QuoteResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return finnhub.QuoteResponse{}, err
		}

		var resp finnhub.QuoteResponse
		err := g.breaker.Call(func() error {
			r, err := g.client.Quote(ctx, sym)
			if err != nil {
				return err
			}
			if r.Current <= 0 {
				// The upstream answers 200 with zeros for unknown symbols.
				return fmt.Errorf("empty quote for %s", sym)
			}
			resp = r
			return nil
		})
		if err == nil {
			g.metrics.IncRequest("quote", "ok")
			return resp, nil
		}
		if errors.Is(err, domain.ErrCircuitOpen) {
			g.metrics.IncRequest("quote", "circuit_open")
			return finnhub.QuoteResponse{}, err
		}

		g.metrics.IncRequest("quote", "error")
		lastErr = err
		if !finnhub.IsTransient(err) {
			break
		}
	}
	return finnhub.QuoteResponse{}, lastErr
}

// buildQuote assembles the domain quote, enriching it with cached company
// profile data and the current market session.
func (g *Gateway) buildQuote(ctx context.Context, sym string, resp finnhub.QuoteResponse, latency time.Duration) domain.Quote {
	profile := g.profileFor(ctx, sym)

	// Float conversion happens only here, at the provider boundary.
	quote := domain.Quote{
		Symbol:        sym,
		Current:       decimal.NewFromFloat(resp.Current),
		Open:          decimal.NewFromFloat(resp.Open),
		High:          decimal.NewFromFloat(resp.High),
		Low:           decimal.NewFromFloat(resp.Low),
		PreviousClose: decimal.NewFromFloat(resp.PreviousClose),
		MarketCap:     decimal.NewFromFloat(profile.MarketCapitalization).Mul(decimal.NewFromInt(1_000_000)),
		Timestamp:     g.now().UTC(),
		MarketStatus:  g.MarketStatus(ctx),
		Quality:       domain.QualityRealTime,
		Exchange:      profile.Exchange,
		SourceLatency: latency,
	}
	if quote.MarketStatus != domain.MarketOpen {
		quote.Quality = domain.QualityDelayed
	}
	return quote
}

// profileFor returns the company profile, fetched at most once per symbol.
// Enrichment is best-effort: it is skipped when no limiter token is
// immediately available, and failures leave the quote unenriched.
func (g *Gateway) profileFor(ctx context.Context, sym string) finnhub.ProfileResponse {
	g.profileMu.RLock()
	p, ok := g.profiles[sym]
	g.profileMu.RUnlock()
	if ok {
		return p
	}

	if !g.limiter.TryAcquire() {
		return finnhub.ProfileResponse{}
	}

	var resp finnhub.ProfileResponse
	err := g.breaker.Call(func() error {
		r, err := g.client.Profile(ctx, sym)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		slog.Debug("profile enrichment failed",
			slog.String("symbol", sym), slog.Any("error", err))
		return finnhub.ProfileResponse{}
	}

	g.profileMu.Lock()
	g.profiles[sym] = resp
	g.profileMu.Unlock()
	return resp
}
