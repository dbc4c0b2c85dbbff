package quotes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
)

func testQuote(symbol string, price float64) domain.Quote {
	return domain.Quote{
		Symbol:    symbol,
		Current:   decimal.NewFromFloat(price),
		Timestamp: time.Now().UTC(),
		Quality:   domain.QualityRealTime,
	}
}

func TestCache_MissIsNormalOutcome(t *testing.T) {
	c := NewCache(10, time.Minute, nil)

	_, _, _, ok := c.Get(context.Background(), "AAPL")
	if ok {
		t.Error("expected miss on empty cache")
	}

	_, misses, _ := c.Stats()
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
}

func TestCache_FreshThenStale(t *testing.T) {
	c := NewCache(10, 300*time.Second, nil)

	base := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return base }

	ctx := context.Background()
	c.Put(ctx, "AAPL", testQuote("AAPL", 150))

	q, fresh, tier, ok := c.Get(ctx, "AAPL")
	if !ok || !fresh {
		t.Fatalf("expected fresh hit, got ok=%v fresh=%v", ok, fresh)
	}
	if tier != TierMemory {
		t.Errorf("tier = %q, want memory", tier)
	}
	if !q.Current.Equal(decimal.NewFromInt(150)) {
		t.Errorf("price = %s, want 150", q.Current)
	}

	// 4 minutes old: still fresh
	c.now = func() time.Time { return base.Add(4 * time.Minute) }
	if _, fresh, _, _ := c.Get(ctx, "AAPL"); !fresh {
		t.Error("4-minute-old entry should be fresh")
	}

	// Past the 300s TTL: stale but still served for fallback
	c.now = func() time.Time { return base.Add(301 * time.Second) }
	q, fresh, _, ok = c.Get(ctx, "AAPL")
	if !ok {
		t.Fatal("stale entry must remain available as fallback")
	}
	if fresh {
		t.Error("entry past TTL must not be fresh")
	}
	if q.Symbol != "AAPL" {
		t.Errorf("symbol = %s", q.Symbol)
	}
}

func TestCache_EvictsOldestTenPercent(t *testing.T) {
	c := NewCache(100, time.Minute, nil)

	base := time.Unix(1_700_000_000, 0)
	ctx := context.Background()

	// Insert 101 entries with strictly increasing timestamps
	for i := 0; i <= 100; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		c.now = func() time.Time { return tick }
		c.Put(ctx, fmt.Sprintf("SYM%03d", i), testQuote("X", 1))
	}

	// Overflow removes the oldest 10% (10 entries)
	if got := c.Len(); got != 91 {
		t.Errorf("len = %d, want 91", got)
	}

	// The very oldest entries are gone, the newest survive
	if _, _, _, ok := c.Get(ctx, "SYM000"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, _, _, ok := c.Get(ctx, "SYM100"); !ok {
		t.Error("newest entry should survive eviction")
	}

	_, _, evictions := c.Stats()
	if evictions != 10 {
		t.Errorf("evictions = %d, want 10", evictions)
	}
}

// failingDistributed always errors, standing in for a Redis outage.
type failingDistributed struct{}

func (failingDistributed) Get(context.Context, string) (domain.Quote, bool, error) {
	return domain.Quote{}, false, errors.New("connection refused")
}

func (failingDistributed) Set(context.Context, string, domain.Quote, time.Duration) error {
	return errors.New("connection refused")
}

func TestCache_DistributedFailureNeverBlocksCaller(t *testing.T) {
	c := NewCache(10, time.Minute, failingDistributed{})
	ctx := context.Background()

	// Put must succeed into the local tier despite the distributed error
	c.Put(ctx, "AAPL", testQuote("AAPL", 150))

	q, fresh, _, ok := c.Get(ctx, "AAPL")
	if !ok || !fresh {
		t.Fatal("local tier must serve despite distributed outage")
	}
	if q.Symbol != "AAPL" {
		t.Errorf("symbol = %s", q.Symbol)
	}

	// A local miss with a failing distributed tier is a plain miss
	if _, _, _, ok := c.Get(ctx, "MSFT"); ok {
		t.Error("expected miss")
	}
}

// memoryDistributed is a fake second tier.
type memoryDistributed struct {
	data map[string]domain.Quote
}

func (m *memoryDistributed) Get(_ context.Context, symbol string) (domain.Quote, bool, error) {
	q, ok := m.data[symbol]
	return q, ok, nil
}

func (m *memoryDistributed) Set(_ context.Context, symbol string, q domain.Quote, _ time.Duration) error {
	m.data[symbol] = q
	return nil
}

func TestCache_DistributedHitPopulatesLocalTier(t *testing.T) {
	dist := &memoryDistributed{data: map[string]domain.Quote{"NVDA": testQuote("NVDA", 480)}}
	c := NewCache(10, time.Minute, dist)
	ctx := context.Background()

	q, fresh, tier, ok := c.Get(ctx, "NVDA")
	if !ok || !fresh {
		t.Fatal("expected distributed hit")
	}
	if tier != TierRedis {
		t.Errorf("tier = %q, want redis", tier)
	}
	if q.Symbol != "NVDA" {
		t.Errorf("symbol = %s", q.Symbol)
	}

	// Second read comes from the local tier
	delete(dist.data, "NVDA")
	if _, _, tier, ok := c.Get(ctx, "NVDA"); !ok || tier != TierMemory {
		t.Errorf("expected memory-tier hit, got ok=%v tier=%q", ok, tier)
	}
}
