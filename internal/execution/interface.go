package execution

import (
	"context"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/domain"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/sim"
)

// Executor produces the fills for a validated order. The two
// implementations are mutually exclusive: the simulated path runs the
// microstructure model, the brokered path delegates to the paper broker and
// bypasses the simulator entirely.
type Executor interface {
	// Name identifies the execution path for logs and audit entries.
	Name() string

	// Execute fills the order against the quote. The sim.Result is nil on
	// paths that do not run the microstructure model.
	Execute(ctx context.Context, ord domain.Order, quote domain.Quote) ([]domain.Fill, *sim.Result, error)
}

// SimulatedExecutor runs orders through the market microstructure model.
type SimulatedExecutor struct {
	sim *sim.Simulator
}

// NewSimulatedExecutor wraps a simulator as an Executor.
func NewSimulatedExecutor(s *sim.Simulator) *SimulatedExecutor {
	return &SimulatedExecutor{sim: s}
}

func (e *SimulatedExecutor) Name() string { return "SIMULATED" }

func (e *SimulatedExecutor) Execute(_ context.Context, ord domain.Order, quote domain.Quote) ([]domain.Fill, *sim.Result, error) {
	fills, res, err := e.sim.Simulate(ord.Symbol, ord.Side, ord.Quantity, quote, ord.Type)
	if err != nil {
		return nil, nil, &domain.RejectionError{Reason: err.Error()}
	}
	return fills, &res, nil
}
