package quotes

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
)

// Tier names reported to metrics.
const (
	TierMemory = "memory"
	TierRedis  = "redis"
)

// evictFraction is the share of oldest entries removed when the in-process
// tier overflows.
const evictFraction = 0.10

// Distributed is the optional shared cache tier. Implementations own their
// TTL enforcement; a hit is fresh by construction.
type Distributed interface {
	Get(ctx context.Context, symbol string) (domain.Quote, bool, error)
	Set(ctx context.Context, symbol string, q domain.Quote, ttl time.Duration) error
}

type cacheEntry struct {
	quote    domain.Quote
	storedAt time.Time
}

// Cache is the two-tier quote cache: a bounded in-process map backed by an
// optional distributed tier. Entries past the TTL are kept (until evicted by
// capacity) and served only as stale fallback.
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]cacheEntry
	maxEntries  int
	ttl         time.Duration
	distributed Distributed

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	now func() time.Time // test hook
}

// NewCache creates a cache bounded at maxEntries with the given freshness
// TTL. distributed may be nil.
func NewCache(maxEntries int, ttl time.Duration, distributed Distributed) *Cache {
	if maxEntries < 1 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Cache{
		entries:     make(map[string]cacheEntry),
		maxEntries:  maxEntries,
		ttl:         ttl,
		distributed: distributed,
		now:         time.Now,
	}
}

// Get returns the cached quote for symbol, whether it is still fresh, and
// the tier that served it. A miss is a normal outcome, not an error.
func (c *Cache) Get(ctx context.Context, symbol string) (q domain.Quote, fresh bool, tier string, ok bool) {
	c.mu.RLock()
	entry, found := c.entries[symbol]
	c.mu.RUnlock()

	if found {
		c.hits.Add(1)
		age := c.now().Sub(entry.storedAt)
		return entry.quote, age < c.ttl, TierMemory, true
	}

	if c.distributed != nil {
		dq, dok, err := c.distributed.Get(ctx, symbol)
		if err != nil {
			// Distributed tier trouble never fails a read.
			slog.Warn("distributed cache get failed",
				slog.String("symbol", symbol), slog.Any("error", err))
		} else if dok {
			c.hits.Add(1)
			c.storeLocal(symbol, dq)
			return dq, true, TierRedis, true
		}
	}

	c.misses.Add(1)
	return domain.Quote{}, false, "", false
}

// Put writes the quote through both tiers. A distributed-tier failure is
// logged and never blocks the caller.
func (c *Cache) Put(ctx context.Context, symbol string, q domain.Quote) {
	c.storeLocal(symbol, q)

	if c.distributed != nil {
		if err := c.distributed.Set(ctx, symbol, q, c.ttl); err != nil {
			slog.Warn("distributed cache put failed",
				slog.String("symbol", symbol), slog.Any("error", err))
		}
	}
}

// Len returns the in-process entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit/miss/eviction counters.
func (c *Cache) Stats() (hits, misses, evictions int64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

func (c *Cache) storeLocal(symbol string, q domain.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[symbol] = cacheEntry{quote: q, storedAt: c.now()}

	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// evictOldestLocked drops the oldest 10% of entries. Must be called with the
// write lock held.
func (c *Cache) evictOldestLocked() {
	type aged struct {
		symbol   string
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for sym, e := range c.entries {
		all = append(all, aged{sym, e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })

	n := int(float64(c.maxEntries) * evictFraction)
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].symbol)
		c.evictions.Add(1)
	}
}
