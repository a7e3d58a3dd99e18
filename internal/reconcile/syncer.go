// Package reconcile implements PositionSyncer (C4): the periodic reconciliation
// loop between exchange-reported positions and the in-memory PositionStore
// (spec §4.4), grounded on the original bot's BUSINESS/position_control.py
// Sync class.
package reconcile

import (
	"context"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"gridward/internal/config"
	"gridward/internal/exchange"
	"gridward/internal/notify"
	"gridward/internal/position"
)

const period = 1 * time.Second

// NowFunc is overridable in tests.
type NowFunc func() int64

// Syncer runs the reconciliation loop for every configured user
// concurrently, one goroutine per user per cycle (spec §4.4 "All per-user
// reconciliations across strategies run concurrently").
type Syncer struct {
	store    *position.Store
	cfg      *config.Config
	gateways map[string]exchange.ExchangeGateway
	notifier notify.Notifier
	log      zerolog.Logger
	now      NowFunc

	mu              stdsync.Mutex
	firstUpdateDone map[string]bool
}

func New(store *position.Store, cfg *config.Config, gateways map[string]exchange.ExchangeGateway, notifier notify.Notifier, log zerolog.Logger) *Syncer {
	return &Syncer{
		store:           store,
		cfg:             cfg,
		gateways:        gateways,
		notifier:        notifier,
		log:             log,
		now:             func() int64 { return time.Now().UnixMilli() },
		firstUpdateDone: make(map[string]bool),
	}
}

// Run drives the 1s reconciliation loop until ctx is cancelled (T2, spec §5).
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				s.log.Warn().Err(err).Msg("sync: cycle failed")
			}
		}
	}
}

// FirstUpdateDone reports whether at least one reconciliation cycle has
// completed for the given user (syncUser uses it to detect the user's
// first cycle).
func (s *Syncer) FirstUpdateDone(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstUpdateDone[user]
}

func (s *Syncer) syncOnce(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, user := range s.cfg.Users {
		user := user
		_ = name
		g.Go(func() error {
			s.syncUser(ctx, user)
			return nil
		})
	}
	return g.Wait()
}

func (s *Syncer) syncUser(ctx context.Context, user config.ResolvedUser) {
	gw, ok := s.gateways[user.Name]
	if !ok {
		return
	}
	positions, err := gw.FetchPositions(ctx)
	if err != nil {
		s.log.Warn().Str("user", user.Name).Err(err).Msg("sync: fetch positions failed")
		return
	}

	index := make(map[string]exchange.Position, len(positions))
	for _, p := range positions {
		index[p.Symbol+"|"+string(p.PositionSide)] = p
	}

	firstCycle := !s.FirstUpdateDone(user.Name)
	for _, path := range s.store.PathsForUser(user.Name) {
		s.reconcileOne(ctx, gw, user, path, index, firstCycle)
	}

	s.mu.Lock()
	s.firstUpdateDone[user.Name] = true
	s.mu.Unlock()
}

func (s *Syncer) reconcileOne(ctx context.Context, gw exchange.ExchangeGateway, user config.ResolvedUser, path position.Path, index map[string]exchange.Position, firstCycle bool) {
	full, ok := s.store.Full(path)
	if !ok {
		return
	}

	exPos, found := index[path.Symbol+"|"+string(path.Side)]
	var amount, entryEx, notional float64
	if found {
		amount = exPos.PositionAmt
		entryEx = exPos.EntryPrice
		notional = exPos.Notional
	}

	wasInPosition := full.InPosition
	oldQty := full.ComulQty

	isNew := amount > 0 && !wasInPosition
	isPartial := amount > 0 && wasInPosition && amount < oldQty/2
	isUpdate := amount > 0 && wasInPosition && !isPartial
	isFullClose := amount == 0 && wasInPosition

	grid := buildGrid(user, path.Strategy, path.Symbol, path.Side)
	real := grid.EstimateProgress(notional)

	reconstructed, recEntry := false, 0.0
	if real > 1 {
		if v, ok := position.ReconstructEntryPrice(entryEx, grid.Steps, real, path.Side); ok {
			reconstructed, recEntry = true, v
		}
	}

	s.store.Update(path, func(st *position.State) {
		if real > st.AvgProgressReal {
			st.AvgProgressReal = real
		}
		if st.AvgProgressReal > st.AvgProgressCounter {
			st.AvgProgressCounter = st.AvgProgressReal
		}

		switch {
		case firstCycle && real > 1:
			entry := entryEx
			if reconstructed {
				entry = recEntry
			}
			st.EntryPrice = &entry
		case isNew:
			entry := entryEx
			if reconstructed {
				entry = recEntry
			}
			st.EntryPrice = &entry
			now := s.now()
			st.CTime = &now
		}

		if isNew || isUpdate || isPartial {
			avg := entryEx
			st.AvgPrice = &avg
			st.ComulQty = amount
			st.Notional = notional
			st.InPosition = true
		}
	})

	if isPartial {
		s.handlePartialClose(ctx, gw, user, path, amount)
	}
	if isFullClose {
		s.handleFullClose(ctx, gw, user, path, full)
	}
}

// handlePartialClose issues a compensating MARKET order for the
// exchange-reported remaining quantity, treating the detected partial
// exit as aborted (spec §4.4 "partial close"). On failure it raises
// problem_closed so the next cycle retries rather than trusting a
// half-repaired position.
func (s *Syncer) handlePartialClose(ctx context.Context, gw exchange.ExchangeGateway, user config.ResolvedUser, path position.Path, remainingQty float64) {
	side := exchange.Sell
	if path.Side == position.Short {
		side = exchange.Buy
	}

	_, err := gw.MakeOrder(ctx, path.Symbol, side, exchange.PositionSide(path.Side), remainingQty)
	if err != nil {
		s.log.Error().Str("user", user.Name).Str("symbol", path.Symbol).Err(err).Msg("sync: compensating close order failed")
		s.store.Update(path, func(st *position.State) { st.ProblemClosed = true })
		return
	}
	s.store.Update(path, func(st *position.State) { st.ProblemClosed = false })
}

// handleFullClose reports realized PnL since position open, cancels any
// remaining risk orders, and resets the state to the startup template
// (spec §4.4.6, I1).
func (s *Syncer) handleFullClose(ctx context.Context, gw exchange.ExchangeGateway, user config.ResolvedUser, path position.Path, prior position.State) {
	if prior.CTime != nil {
		endMs := s.now()
		pnl, _, err := gw.GetRealizedPnL(ctx, path.Symbol, exchange.PositionSide(path.Side), *prior.CTime, endMs)
		if err != nil {
			s.log.Warn().Str("symbol", path.Symbol).Err(err).Msg("sync: realized pnl query failed")
		} else {
			pct := 0.0
			if prior.Notional > 0 {
				pct = pnl / prior.Notional * 100
			}
			s.notifier.Report(notify.PnLReport{
				User: user.Name, Strategy: path.Strategy, Symbol: path.Symbol, Side: string(path.Side),
				PnLUSDT: pnl, PnLPct: pct,
			})
		}
	}

	if _, err := gw.CancelOrdersBySymbolSide(ctx, path.Symbol, exchange.PositionSide(path.Side)); err != nil {
		s.log.Warn().Str("symbol", path.Symbol).Err(err).Msg("sync: cancel risk orders on full close failed")
	}

	s.notifier.Closed(user.Name, path.Strategy, path.Symbol, string(path.Side))
	s.store.Reset(path)
}

// buildGrid resolves the averaging-grid configuration for one
// (user, strategy, side) into a position.Grid — margin/leverage come
// from the user's symbols_risk table (or ANY_COINS), the steps from the
// strategy's per-side declaration.
func buildGrid(user config.ResolvedUser, strategyName, symbol string, side position.Side) position.Grid {
	strategy, ok := user.Strategies[strategyName]
	if !ok {
		return position.NewGrid(0, 0, nil)
	}
	cfgSide := strategy.Long
	if side == position.Short {
		cfgSide = strategy.Short
	}

	steps := make([]position.GridStep, 0, len(cfgSide.GridOrders))
	for _, g := range cfgSide.GridOrders {
		steps = append(steps, position.GridStep{Indent: g.Indent, Volume: g.Volume})
	}

	margin, leverage := 0.0, 0.0
	if risk, ok := user.RiskFor(symbol); ok {
		margin, leverage = risk.MarginSize, risk.Leverage
	}
	return position.NewGrid(margin, leverage, steps)
}
