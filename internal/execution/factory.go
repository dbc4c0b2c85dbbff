package execution

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/infra"
	"github.com/emimoncerrate/TradeSimulationBot-sub001/internal/sim"
)

// NewExecutor builds the executor for the configured trading mode.
func NewExecutor(cfg *infra.Config) (Executor, error) {
	switch cfg.Trading.Mode {
	case "SIMULATED":
		return NewSimulatedExecutor(sim.NewSimulator()), nil
	case "BROKERED":
		cash, err := decimal.NewFromString(cfg.Trading.InitialCash)
		if err != nil {
			return nil, fmt.Errorf("invalid initial_cash %q: %w", cfg.Trading.InitialCash, err)
		}
		return NewPaperBroker(cash), nil
	default:
		return nil, fmt.Errorf("unknown trading mode: %s", cfg.Trading.Mode)
	}
}

// EngineConfigFrom maps the trading section of the config onto engine policy.
func EngineConfigFrom(cfg *infra.Config) (EngineConfig, error) {
	maxValue, err := decimal.NewFromString(cfg.Trading.MaxOrderValue)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("invalid max_order_value %q: %w", cfg.Trading.MaxOrderValue, err)
	}
	return EngineConfig{
		Limits: Limits{
			MaxPositionSize: cfg.Trading.MaxPositionSize,
			MaxOrderValue:   maxValue,
			DailyTradeLimit: cfg.Trading.DailyTradeLimit,
			LargeOrderQty:   cfg.Trading.LargeOrderQty,
		},
		RestrictedSymbols: cfg.Trading.RestrictedSymbols,
		ExecutionDelay:    time.Duration(cfg.Trading.ExecutionDelayMS) * time.Millisecond,
	}, nil
}
