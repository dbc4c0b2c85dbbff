package obs

import (
	"sync"
	"time"
)

// Metrics collects lightweight counters and latency stats for the quote and
// execution paths. All methods are nil-safe so wiring stays optional.
type Metrics struct {
	mu sync.RWMutex

	requests  map[string]uint64 // "endpoint|status"
	cacheHits map[string]uint64 // by tier: "memory", "redis"
	cacheMiss uint64
	apiErrors map[string]uint64 // by error kind

	fetchLatency LatencyStats
	execLatency  LatencyStats

	slippageBps map[string]float64 // per-symbol gauge
}

// LatencyStats aggregates duration samples.
type LatencyStats struct {
	count uint64
	sum   time.Duration
	min   time.Duration
	max   time.Duration
}

// Observe folds one sample into the stats. Caller holds the metrics lock.
func (l *LatencyStats) observe(d time.Duration) {
	if l.count == 0 || d < l.min {
		l.min = d
	}
	if d > l.max {
		l.max = d
	}
	l.count++
	l.sum += d
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

func (l LatencyStats) snapshot() LatencySnapshot {
	s := LatencySnapshot{Count: l.count, Min: l.min, Max: l.max}
	if l.count > 0 {
		s.Avg = l.sum / time.Duration(l.count)
	}
	return s
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Requests     map[string]uint64  `json:"requests"`
	CacheHits    map[string]uint64  `json:"cache_hits"`
	CacheMisses  uint64             `json:"cache_misses"`
	APIErrors    map[string]uint64  `json:"api_errors"`
	FetchLatency LatencySnapshot    `json:"fetch_latency"`
	ExecLatency  LatencySnapshot    `json:"exec_latency"`
	SlippageBps  map[string]float64 `json:"slippage_bps"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{
		requests:    make(map[string]uint64),
		cacheHits:   make(map[string]uint64),
		apiErrors:   make(map[string]uint64),
		slippageBps: make(map[string]float64),
	}
}

// IncRequest counts one upstream request by endpoint and outcome.
func (m *Metrics) IncRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.requests[endpoint+"|"+status]++
	m.mu.Unlock()
}

// IncCacheHit counts a cache hit on the given tier.
func (m *Metrics) IncCacheHit(tier string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cacheHits[tier]++
	m.mu.Unlock()
}

// IncCacheMiss counts a full cache miss.
func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cacheMiss++
	m.mu.Unlock()
}

// IncAPIError counts an upstream error by kind.
func (m *Metrics) IncAPIError(kind string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.apiErrors[kind]++
	m.mu.Unlock()
}

// ObserveFetchLatency records one upstream fetch duration.
func (m *Metrics) ObserveFetchLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.fetchLatency.observe(d)
	m.mu.Unlock()
}

// ObserveExecLatency records one order execution duration.
func (m *Metrics) ObserveExecLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.execLatency.observe(d)
	m.mu.Unlock()
}

// SetSlippage updates the per-symbol slippage gauge (basis points).
func (m *Metrics) SetSlippage(symbol string, bps float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.slippageBps[symbol] = bps
	m.mu.Unlock()
}

// TakeSnapshot copies out the current values.
func (m *Metrics) TakeSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Requests:    make(map[string]uint64, len(m.requests)),
		CacheHits:   make(map[string]uint64, len(m.cacheHits)),
		CacheMisses: m.cacheMiss,
		APIErrors:   make(map[string]uint64, len(m.apiErrors)),
		SlippageBps: make(map[string]float64, len(m.slippageBps)),
	}
	for k, v := range m.requests {
		snap.Requests[k] = v
	}
	for k, v := range m.cacheHits {
		snap.CacheHits[k] = v
	}
	for k, v := range m.apiErrors {
		snap.APIErrors[k] = v
	}
	for k, v := range m.slippageBps {
		snap.SlippageBps[k] = v
	}
	snap.FetchLatency = m.fetchLatency.snapshot()
	snap.ExecLatency = m.execLatency.snapshot()
	return snap
}
