package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
)

// TradeStore persists terminal execution reports in SQLite.
type TradeStore struct {
	db *sql.DB
}

// NewTradeStore opens (or creates) the trade log with WAL mode enabled.
func NewTradeStore(dbPath string) (*TradeStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			report BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create trades table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, created_at);`)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &TradeStore{db: db}, nil
}

// SaveReport upserts a terminal report keyed by order ID. Re-saving (e.g. a
// report that was rejected after a racing cancel) replaces the row.
func (s *TradeStore) SaveReport(ctx context.Context, report *domain.ExecutionReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, side, status, created_at, report)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, report=excluded.report`,
		report.Order.ID, report.Order.Symbol, report.Order.Side,
		report.Status, report.CreatedAt.UnixMilli(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// GetReport loads one report by order ID.
func (s *TradeStore) GetReport(ctx context.Context, orderID string) (*domain.ExecutionReport, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT report FROM trades WHERE id = ?", orderID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade %s: %w", orderID, err)
	}

	var report domain.ExecutionReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trade %s: %w", orderID, err)
	}
	return &report, nil
}

// Recent returns the newest reports, most recent first.
func (s *TradeStore) Recent(ctx context.Context, limit int) ([]*domain.ExecutionReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT report FROM trades ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var reports []*domain.ExecutionReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		var report domain.ExecutionReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		reports = append(reports, &report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return reports, nil
}

// CountBySymbol returns how many trades have been logged for a symbol.
func (s *TradeStore) CountBySymbol(ctx context.Context, symbol string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trades WHERE symbol = ?", symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *TradeStore) Close() error {
	return s.db.Close()
}
