package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/app"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/obs"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 4. Debug/metrics listener
	if addr := bootstrap.Config.Metrics.Addr; addr != "" {
		srv := obs.NewDebugServer(addr, bootstrap.Metrics)
		go func() {
			slog.Info("✅ Debug server started", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Debug server failed", slog.Any("error", err))
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	// 5. Optional websocket trade stream
	if worker := bootstrap.StartStream(ctx); worker != nil {
		defer worker.Disconnect()
	}

	slog.InfoContext(ctx, "✨ Trading system fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
