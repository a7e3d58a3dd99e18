// Package risk implements RiskMonitor (C5) and RiskOrderPlacer (C8):
// per-tick fallback-TP/averaging evaluation and TP/SL order placement
// (spec §4.5, §4.8), grounded on the original bot's
// BUSINESS/risk_orders_control.py and the commented-out RiskSet in
// z_dev.py.
package risk

import (
	"context"

	"github.com/rs/zerolog"

	"gridward/internal/config"
	"gridward/internal/intent"
	"gridward/internal/position"
)

// PriceSource is the minimal collaborator RiskMonitor needs (satisfied
// by pricefeed.Feed).
type PriceSource interface {
	Get(ctx context.Context, symbol string) (float64, bool)
}

// Monitor evaluates fallback take-profit then grid-averaging for every
// tracked position on each main-loop tick.
type Monitor struct {
	store *position.Store
	cfg   *config.Config
	price PriceSource
	log   zerolog.Logger
}

func NewMonitor(store *position.Store, cfg *config.Config, price PriceSource, log zerolog.Logger) *Monitor {
	return &Monitor{store: store, cfg: cfg, price: price, log: log}
}

// Evaluate implements spec §4.5 for one (user, strategy, symbol, side).
// Returns an intent if one should be dispatched this tick.
func (m *Monitor) Evaluate(ctx context.Context, user config.ResolvedUser, path position.Path) *intent.Intent {
	full, ok := m.store.Full(path)
	if !ok || !full.InPosition || full.IsTP {
		return nil
	}

	sign := path.Side.Sign()
	price, ok := m.price.Get(ctx, path.Symbol)
	if !ok {
		return nil
	}
	if full.AvgPrice == nil {
		return nil
	}

	nPnLAvg := sign * (price - *full.AvgPrice) / *full.AvgPrice * 100

	risk, ok := user.RiskFor(path.Symbol)
	if ok && risk.FallbackTP != nil && nPnLAvg >= *risk.FallbackTP {
		m.store.Update(path, func(st *position.State) { st.IsTP = true })
		return &intent.Intent{User: user.Name, Strategy: path.Strategy, Symbol: path.Symbol, Side: path.Side, Status: intent.Closing}
	}

	if full.EntryPrice == nil {
		return nil
	}
	nPnLEntry := sign * (price - *full.EntryPrice) / *full.EntryPrice * 100

	strategy, ok := user.Strategies[path.Strategy]
	if !ok {
		return nil
	}
	side := strategy.Long
	if path.Side == position.Short {
		side = strategy.Short
	}
	grid := side.GridOrders
	p := full.AvgProgressCounter
	if p < 1 || p >= len(grid) {
		return nil
	}
	step := grid[p]
	indent := -absf(step.Indent)
	if nPnLEntry > indent {
		return nil
	}

	m.store.Update(path, func(st *position.State) {
		st.AvgProgressCounter = p + 1
		st.ProcessVolume = step.Volume
	})
	return &intent.Intent{User: user.Name, Strategy: path.Strategy, Symbol: path.Symbol, Side: path.Side, Status: intent.Avg}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
