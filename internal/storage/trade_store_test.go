package storage

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
)

func newTestStore(t *testing.T, dbPath string) *TradeStore {
	t.Helper()
	t.Cleanup(func() {
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	})

	store, err := NewTradeStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func filledReport(id, symbol string) *domain.ExecutionReport {
	r := domain.NewExecutionReport(domain.Order{
		ID: id, Symbol: symbol, Side: domain.SideBuy, Type: domain.TypeMarket, Quantity: 100,
	})
	r.ApplyFill(domain.Fill{
		Venue:    "NYSE",
		Quantity: 100,
		Price:    decimal.RequireFromString("150.25"),
	})
	r.Finalize()
	return r
}

func TestTradeStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t, "test_trades.db")
	ctx := context.Background()

	saved := filledReport("ord-1", "AAPL")
	if err := store.SaveReport(ctx, saved); err != nil {
		t.Fatalf("Failed to save report: %v", err)
	}

	loaded, err := store.GetReport(ctx, "ord-1")
	if err != nil {
		t.Fatalf("Failed to load report: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected report, got nil")
	}
	if loaded.Order.Symbol != "AAPL" {
		t.Errorf("Symbol mismatch: got %s", loaded.Order.Symbol)
	}
	if loaded.Status != domain.StatusFilled {
		t.Errorf("Status mismatch: got %s", loaded.Status)
	}
	if !loaded.AvgFillPrice.Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("Avg fill price mismatch: got %s", loaded.AvgFillPrice)
	}
	if len(loaded.Fills) != 1 {
		t.Errorf("Expected 1 fill, got %d", len(loaded.Fills))
	}
}

func TestTradeStore_GetMissingReturnsNil(t *testing.T) {
	store := newTestStore(t, "test_trades_missing.db")

	loaded, err := store.GetReport(context.Background(), "no-such-order")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if loaded != nil {
		t.Fatal("Expected nil for unknown order ID")
	}
}

func TestTradeStore_SaveIsUpsert(t *testing.T) {
	store := newTestStore(t, "test_trades_upsert.db")
	ctx := context.Background()

	r := domain.NewExecutionReport(domain.Order{
		ID: "ord-2", Symbol: "MSFT", Side: domain.SideSell, Type: domain.TypeMarket, Quantity: 10,
	})
	r.Reject("first write")
	if err := store.SaveReport(ctx, r); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	r.Reason = "second write"
	if err := store.SaveReport(ctx, r); err != nil {
		t.Fatalf("Re-save must not fail: %v", err)
	}

	loaded, err := store.GetReport(ctx, "ord-2")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if loaded.Reason != "second write" {
		t.Errorf("Expected upserted reason, got %q", loaded.Reason)
	}
}

func TestTradeStore_RecentAndCount(t *testing.T) {
	store := newTestStore(t, "test_trades_recent.db")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveReport(ctx, filledReport(id, "AAPL")); err != nil {
			t.Fatalf("Failed to save %s: %v", id, err)
		}
	}
	if err := store.SaveReport(ctx, filledReport("d", "MSFT")); err != nil {
		t.Fatalf("Failed to save d: %v", err)
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(recent))
	}

	n, err := store.CountBySymbol(ctx, "AAPL")
	if err != nil {
		t.Fatalf("CountBySymbol failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 AAPL trades, got %d", n)
	}
}
