package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/execution"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/infra"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/infra/finnhub"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/obs"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/quotes"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/storage"
)

// Bootstrap orchestrates the application startup sequence and holds the
// assembled service graph.
type Bootstrap struct {
	Config     *infra.Config
	Metrics    *obs.Metrics
	TradeStore *storage.TradeStore
	Gateway    *quotes.Gateway
	Engine     *execution.Engine
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize builds the service graph: config, logger, trade log, quote
// path (limiter, breaker, cache, gateway) and the execution engine.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	infra.PrintBanner(cfg)

	// 3. Trade log (WAL-mode SQLite)
	store, err := storage.NewTradeStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.TradeStore = store
	slog.Info("✅ Trade log initialized (WAL-mode)", "path", cfg.Storage.Path)

	b.Metrics = obs.NewMetrics()

	// 4. Quote path: limiter -> breaker -> cache -> gateway
	limiter := infra.NewRateLimiter(cfg.Quotes.Limiter.Capacity,
		time.Duration(cfg.Quotes.Limiter.WindowSec)*time.Second)
	breaker := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		FailureThreshold: cfg.Quotes.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Quotes.Breaker.RecoveryTimeoutSec) * time.Second,
	})

	// The Redis tier is optional; a miss just falls through to upstream.
	var distributed quotes.Distributed
	if cfg.Quotes.Redis.Addr != "" {
		rc, err := quotes.NewRedisCache(ctx, cfg.Quotes.Redis.Addr,
			cfg.Quotes.Redis.Password, cfg.Quotes.Redis.DB)
		if err != nil {
			slog.Warn("redis tier unavailable, continuing with memory cache only",
				slog.Any("error", err))
		} else {
			distributed = rc
			slog.Info("✅ Redis quote tier connected", "addr", cfg.Quotes.Redis.Addr)
		}
	}
	cache := quotes.NewCache(cfg.Quotes.CacheMaxEntries,
		time.Duration(cfg.Quotes.CacheTTLSec)*time.Second, distributed)

	client := finnhub.NewClient(cfg.API.Finnhub.BaseURL, cfg.API.Finnhub.APIKey, cfg.FinnhubTimeout())
	b.Gateway = quotes.NewGateway(client, cache, limiter, breaker, b.Metrics,
		quotes.GatewayConfig{RetryAttempts: cfg.Quotes.RetryAttempts})

	// 5. Execution engine with the configured executor
	executor, err := execution.NewExecutor(cfg)
	if err != nil {
		return err
	}
	engCfg, err := execution.EngineConfigFrom(cfg)
	if err != nil {
		return err
	}
	b.Engine = execution.NewEngine(b.Gateway, executor, b.TradeStore, b.Metrics, engCfg)
	slog.Info("✅ Execution engine ready", "mode", executor.Name())

	return nil
}

// StartStream connects the websocket trade stream when enabled, feeding
// prints into the quote cache. Returns the worker for shutdown, or nil.
func (b *Bootstrap) StartStream(ctx context.Context) *finnhub.StreamWorker {
	if !b.Config.Quotes.Stream.Enabled {
		return nil
	}
	worker := finnhub.NewStreamWorker(
		b.Config.API.Finnhub.WSURL,
		b.Config.API.Finnhub.APIKey,
		b.Config.Quotes.Stream.Symbols,
		b.Gateway.ApplyTradePrint,
	)
	if err := worker.Connect(ctx); err != nil {
		slog.Error("Failed to connect trade stream", slog.Any("error", err))
		return nil
	}
	slog.Info("✅ Trade stream started", slog.Int("symbols", len(b.Config.Quotes.Stream.Symbols)))
	return worker
}

// Close releases held resources.
func (b *Bootstrap) Close() {
	if b.TradeStore != nil {
		if err := b.TradeStore.Close(); err != nil {
			slog.Error("trade log close failed", slog.Any("error", err))
		}
	}
}
