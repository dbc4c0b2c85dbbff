package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order sides and types.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TypeMarket = "MARKET"
	TypeLimit  = "LIMIT"
)

// Order statuses.
const (
	StatusPending         = "PENDING"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCancelled       = "CANCELLED"
	StatusRejected        = "REJECTED"
)

// Order is a trade request as submitted by the command layer.
// Price is the limit price for LIMIT orders and the reference price for
// MARKET orders (used for notional validation).
type Order struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Type     string          `json:"type"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Fill is a partial or complete execution at one venue.
type Fill struct {
	Venue      string          `json:"venue"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Timestamp  time.Time       `json:"timestamp"`
}

// AuditEntry is one ordered line of the execution audit trail.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// ExecutionReport tracks an order through its fill lifecycle.
// Invariant: FilledQty + RemainingQty == Order.Quantity at all times.
// Once terminal (FILLED/CANCELLED/REJECTED) the report is immutable and is
// handed to the trade-logging collaborator.
type ExecutionReport struct {
	Order        Order           `json:"order"`
	FilledQty    int64           `json:"filled_qty"`
	RemainingQty int64           `json:"remaining_qty"`
	Status       string          `json:"status"`
	Fills        []Fill          `json:"fills"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
	Reason       string          `json:"reason,omitempty"`
	Audit        []AuditEntry    `json:"audit"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`

	cancelled bool
}

// NewExecutionReport starts the lifecycle for an order. A missing order ID
// gets a generated one.
func NewExecutionReport(ord Order) *ExecutionReport {
	if ord.ID == "" {
		ord.ID = uuid.NewString()
	}
	return &ExecutionReport{
		Order:        ord,
		RemainingQty: abs64(ord.Quantity),
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// ApplyFill records a fill and recomputes filled/remaining quantities,
// the volume-weighted average price, and the derived status.
func (r *ExecutionReport) ApplyFill(f Fill) {
	r.Fills = append(r.Fills, f)
	r.FilledQty += f.Quantity
	r.RemainingQty -= f.Quantity
	if r.RemainingQty < 0 {
		r.RemainingQty = 0
	}

	// avg = sum(qty*price) / sum(qty), recomputed from scratch so the
	// derived value can never drift from the fill list.
	notional := decimal.Zero
	var qty int64
	for _, fl := range r.Fills {
		notional = notional.Add(fl.Price.Mul(decimal.NewFromInt(fl.Quantity)))
		qty += fl.Quantity
	}
	if qty > 0 {
		r.AvgFillPrice = notional.Div(decimal.NewFromInt(qty))
	}

	r.refreshStatus()
}

// Cancel marks the order cancelled. Only legal while the order is still
// open (pending or partially filled).
func (r *ExecutionReport) Cancel(reason string) bool {
	if !r.IsOpen() {
		return false
	}
	r.cancelled = true
	r.Reason = reason
	r.refreshStatus()
	r.complete()
	return true
}

// Reject marks the order rejected with a user-visible reason.
func (r *ExecutionReport) Reject(reason string) {
	r.Status = StatusRejected
	r.Reason = reason
	r.complete()
}

// Finalize settles the terminal status once fill application is done.
func (r *ExecutionReport) Finalize() {
	r.refreshStatus()
	if !r.IsOpen() {
		r.complete()
	}
}

// IsOpen reports whether the order can still receive fills or be cancelled.
func (r *ExecutionReport) IsOpen() bool {
	return r.Status == StatusPending || r.Status == StatusPartiallyFilled
}

// AddAudit appends an ordered entry to the audit trail.
func (r *ExecutionReport) AddAudit(msg string) {
	r.Audit = append(r.Audit, AuditEntry{At: time.Now().UTC(), Message: msg})
}

// refreshStatus derives the status purely from filled/remaining and the
// cancellation flag. Rejection is terminal and never recomputed.
func (r *ExecutionReport) refreshStatus() {
	if r.Status == StatusRejected {
		return
	}
	switch {
	case r.cancelled:
		r.Status = StatusCancelled
	case r.RemainingQty == 0 && r.FilledQty > 0:
		r.Status = StatusFilled
	case r.FilledQty > 0:
		r.Status = StatusPartiallyFilled
	default:
		r.Status = StatusPending
	}
}

func (r *ExecutionReport) complete() {
	if r.CompletedAt == nil {
		now := time.Now().UTC()
		r.CompletedAt = &now
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
