package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/obs"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/quotes"
)

// QuoteSource is the slice of the quote gateway the engine needs.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string, useCache bool) (domain.Quote, error)
	MarketStatus(ctx context.Context) domain.MarketStatus
}

// TradeLog persists terminal execution reports.
type TradeLog interface {
	SaveReport(ctx context.Context, report *domain.ExecutionReport) error
}

// Limits are the static order limits the engine enforces.
type Limits struct {
	MaxPositionSize int64
	MaxOrderValue   decimal.Decimal
	DailyTradeLimit int
	LargeOrderQty   int64
}

// EngineConfig wires the engine's policy knobs.
type EngineConfig struct {
	Limits            Limits
	RestrictedSymbols []string
	ExecutionDelay    time.Duration
}

// Engine runs orders through validation, compliance, pricing and execution,
// producing one ExecutionReport per order. Reports stay addressable by order
// ID until the process exits so in-flight orders can be cancelled.
type Engine struct {
	source   QuoteSource
	executor Executor
	log      TradeLog
	metrics  *obs.Metrics

	limits     Limits
	restricted map[string]bool
	execDelay  time.Duration

	mu      sync.Mutex
	daily   map[string]int // trades per UTC day, key "2006-01-02"
	reports map[string]*domain.ExecutionReport

	now func() time.Time
}

// NewEngine assembles an engine. log and metrics may be nil.
func NewEngine(source QuoteSource, executor Executor, log TradeLog, metrics *obs.Metrics, cfg EngineConfig) *Engine {
	restricted := make(map[string]bool, len(cfg.RestrictedSymbols))
	for _, s := range cfg.RestrictedSymbols {
		restricted[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &Engine{
		source:     source,
		executor:   executor,
		log:        log,
		metrics:    metrics,
		limits:     cfg.Limits,
		restricted: restricted,
		execDelay:  cfg.ExecutionDelay,
		daily:      make(map[string]int),
		reports:    make(map[string]*domain.ExecutionReport),
	}
}

// Execute runs one order through the full pipeline. The returned report is
// terminal unless the caller raced a cancellation in. Validation and
// compliance failures return the report in REJECTED state together with the
// typed error.
func (e *Engine) Execute(ctx context.Context, ord domain.Order) (*domain.ExecutionReport, error) {
	start := e.clock()

	ord.Symbol = strings.ToUpper(strings.TrimSpace(ord.Symbol))
	report := domain.NewExecutionReport(ord)
	e.register(report)

	// The daily counter is bumped before validation so rejected attempts
	// still count against the limit.
	count, limited := e.bumpDaily()
	if limited {
		err := &domain.ValidationError{
			Rule:   "daily-limit",
			Detail: fmt.Sprintf("daily trade limit of %d reached", e.limits.DailyTradeLimit),
		}
		return e.reject(ctx, report, err.Error()), err
	}
	report.AddAudit(fmt.Sprintf("accepted as trade %d of today's %d", count, e.limits.DailyTradeLimit))

	if err := e.validate(report.Order); err != nil {
		return e.reject(ctx, report, err.Error()), err
	}
	if err := e.checkCompliance(report); err != nil {
		return e.reject(ctx, report, err.Error()), err
	}

	quote, err := e.source.GetQuote(ctx, report.Order.Symbol, true)
	if err != nil || !quote.Valid() {
		rej := &domain.RejectionError{Reason: "quote unavailable for " + report.Order.Symbol}
		if err != nil {
			slog.Warn("order pricing failed",
				slog.String("id", report.Order.ID), slog.Any("error", err))
		}
		return e.reject(ctx, report, rej.Reason), rej
	}
	report.AddAudit(fmt.Sprintf("priced at %s (%s)", quote.Current, quote.Quality))

	if st := e.source.MarketStatus(ctx); st != domain.MarketOpen {
		report.AddAudit("market not open (" + string(st) + "), order flagged")
	}

	if e.execDelay > 0 {
		select {
		case <-ctx.Done():
			rej := &domain.RejectionError{Reason: "cancelled before execution: " + ctx.Err().Error()}
			return e.reject(ctx, report, rej.Reason), rej
		case <-time.After(e.execDelay):
		}
	}

	fills, simRes, execErr := e.executor.Execute(ctx, report.Order, quote)
	if execErr != nil {
		return e.reject(ctx, report, execErr.Error()), execErr
	}

	e.mu.Lock()
	// A cancellation may have landed while the executor was running. The
	// fills it produced are then discarded and the cancel stands.
	if report.IsOpen() {
		for _, f := range fills {
			report.ApplyFill(f)
		}
		report.Finalize()
	}
	e.mu.Unlock()

	if simRes != nil {
		e.metrics.SetSlippage(report.Order.Symbol, simRes.SlippageBps)
		report.AddAudit(fmt.Sprintf("executed via %s: %d fills, %.1fbps slippage",
			e.executor.Name(), len(report.Fills), simRes.SlippageBps))
	} else {
		report.AddAudit(fmt.Sprintf("executed via %s: %d fills", e.executor.Name(), len(report.Fills)))
	}
	e.metrics.ObserveExecLatency(e.clock().Sub(start))

	slog.Info("order executed",
		slog.String("id", report.Order.ID),
		slog.String("symbol", report.Order.Symbol),
		slog.String("status", report.Status),
		slog.Int64("filled", report.FilledQty))

	e.persist(ctx, report)
	return report, nil
}

// Cancel cancels an open order by ID. Returns false when the order is
// unknown or already terminal.
func (e *Engine) Cancel(ctx context.Context, orderID, reason string) bool {
	e.mu.Lock()
	report, ok := e.reports[orderID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	cancelled := report.Cancel(reason)
	e.mu.Unlock()

	if cancelled {
		slog.Info("order cancelled",
			slog.String("id", orderID), slog.String("reason", reason))
		e.persist(ctx, report)
	}
	return cancelled
}

// Report returns the report for an order ID, if known.
func (e *Engine) Report(orderID string) (*domain.ExecutionReport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reports[orderID]
	return r, ok
}

// validate enforces the static order limits. Each rule carries a stable
// name so callers can surface which limit was hit.
func (e *Engine) validate(ord domain.Order) error {
	if _, err := quotes.NormalizeSymbol(ord.Symbol); err != nil {
		return &domain.ValidationError{Rule: "symbol", Detail: err.Error()}
	}
	if ord.Quantity <= 0 {
		return &domain.ValidationError{
			Rule:   "quantity",
			Detail: fmt.Sprintf("quantity must be positive, got %d", ord.Quantity),
		}
	}
	if ord.Type == domain.TypeLimit && !ord.Price.IsPositive() {
		return &domain.ValidationError{
			Rule:   "price",
			Detail: "limit orders require a positive limit price",
		}
	}
	if ord.Quantity > e.limits.MaxPositionSize {
		return &domain.ValidationError{
			Rule:   "position-size",
			Detail: fmt.Sprintf("quantity %d exceeds max position size %d", ord.Quantity, e.limits.MaxPositionSize),
		}
	}
	if ord.Price.IsPositive() {
		notional := ord.Price.Mul(decimal.NewFromInt(ord.Quantity))
		if notional.GreaterThan(e.limits.MaxOrderValue) {
			return &domain.ValidationError{
				Rule:   "trade-value",
				Detail: fmt.Sprintf("notional %s exceeds max order value %s", notional, e.limits.MaxOrderValue),
			}
		}
	}
	return nil
}

// checkCompliance rejects restricted symbols and flags unusually large
// orders on the audit trail.
func (e *Engine) checkCompliance(report *domain.ExecutionReport) error {
	if e.restricted[report.Order.Symbol] {
		return &domain.ComplianceError{
			Rule:   "restricted-symbol",
			Reason: report.Order.Symbol + " is on the restricted list",
		}
	}
	if e.limits.LargeOrderQty > 0 && report.Order.Quantity >= e.limits.LargeOrderQty {
		report.AddAudit(fmt.Sprintf("large order flagged: %d shares", report.Order.Quantity))
	}
	return nil
}

// bumpDaily increments today's trade counter and reports whether the limit
// was already exhausted. Check and increment happen under one lock so two
// concurrent orders cannot both squeeze into the last slot.
func (e *Engine) bumpDaily() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := e.clock().UTC().Format("2006-01-02")
	if e.limits.DailyTradeLimit > 0 && e.daily[key] >= e.limits.DailyTradeLimit {
		return e.daily[key], true
	}
	e.daily[key]++
	return e.daily[key], false
}

func (e *Engine) register(report *domain.ExecutionReport) {
	e.mu.Lock()
	e.reports[report.Order.ID] = report
	e.mu.Unlock()
}

func (e *Engine) reject(ctx context.Context, report *domain.ExecutionReport, reason string) *domain.ExecutionReport {
	e.mu.Lock()
	report.Reject(reason)
	e.mu.Unlock()
	e.persist(ctx, report)
	return report
}

// persist hands a terminal report to the trade log. Persistence failures
// are logged, never retried: the report already reflects the truth.
func (e *Engine) persist(ctx context.Context, report *domain.ExecutionReport) {
	if e.log == nil || report.IsOpen() {
		return
	}
	if err := e.log.SaveReport(ctx, report); err != nil {
		slog.Error("trade log write failed",
			slog.String("id", report.Order.ID), slog.Any("error", err))
	}
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}
