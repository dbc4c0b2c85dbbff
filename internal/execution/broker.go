package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/sim"
)

const paperVenue = "PAPER"

// paperCommissionBps is the flat commission the paper broker charges.
var paperCommissionBps = decimal.NewFromInt(1)

// PaperBroker fills orders against a virtual cash and position book at the
// quoted price, in one shot. Used for pre-production validation where the
// microstructure model would add noise.
type PaperBroker struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]int64
}

// NewPaperBroker creates a broker with an initial cash balance.
func NewPaperBroker(initialCash decimal.Decimal) *PaperBroker {
	return &PaperBroker{
		cash:      initialCash,
		positions: make(map[string]int64),
	}
}

func (b *PaperBroker) Name() string { return "BROKERED" }

// Execute fills the whole order at the quote price, debiting or crediting
// the virtual book. Insufficient cash or position rejects the order.
func (b *PaperBroker) Execute(_ context.Context, ord domain.Order, quote domain.Quote) ([]domain.Fill, *sim.Result, error) {
	if !quote.Current.IsPositive() {
		return nil, nil, &domain.RejectionError{Reason: "no usable price for " + ord.Symbol}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	price := quote.Current
	qty := decimal.NewFromInt(ord.Quantity)
	notional := price.Mul(qty)
	commission := notional.Mul(paperCommissionBps).Div(decimal.NewFromInt(10_000)).Round(4)

	switch ord.Side {
	case domain.SideBuy:
		cost := notional.Add(commission)
		if b.cash.LessThan(cost) {
			return nil, nil, &domain.RejectionError{
				Reason: fmt.Sprintf("insufficient cash: need %s, have %s", cost, b.cash),
			}
		}
		b.cash = b.cash.Sub(cost)
		b.positions[ord.Symbol] += ord.Quantity

	case domain.SideSell:
		if held := b.positions[ord.Symbol]; held < ord.Quantity {
			return nil, nil, &domain.RejectionError{
				Reason: fmt.Sprintf("insufficient position in %s: need %d, have %d", ord.Symbol, ord.Quantity, held),
			}
		}
		b.positions[ord.Symbol] -= ord.Quantity
		b.cash = b.cash.Add(notional.Sub(commission))

	default:
		return nil, nil, &domain.RejectionError{Reason: "unknown side " + ord.Side}
	}

	slog.Info("PAPER BROKER: order filled",
		slog.String("id", ord.ID),
		slog.String("symbol", ord.Symbol),
		slog.String("side", ord.Side),
		slog.Int64("qty", ord.Quantity),
		slog.String("price", price.String()))

	fill := domain.Fill{
		Venue:      paperVenue,
		Quantity:   ord.Quantity,
		Price:      price,
		Commission: commission,
		Timestamp:  time.Now().UTC(),
	}
	return []domain.Fill{fill}, nil, nil
}

// Cash returns the current virtual cash balance.
func (b *PaperBroker) Cash() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

// Position returns the held quantity for a symbol.
func (b *PaperBroker) Position(symbol string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[symbol]
}
