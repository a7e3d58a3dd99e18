// Package pipeline implements OrderPipeline (C7): the execution engine that
// turns intents into exchange orders under strict per-(user,symbol) FIFO
// serialization (spec §4.7, §5, I3).
//
// This is the one component where the spec is a deliberate redesign
// relative to the original bot: z_dev.py's commented-out
// compose_trade_instruction fires every intent through asyncio.gather with
// no per-symbol ordering guarantee at all. Here every (user, symbol) pair
// gets its own lazily-created worker goroutine reading off a buffered
// channel, so intents for one pair always execute strictly in arrival
// order while different pairs run fully concurrently.
package pipeline

import (
	"context"
	"math"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"gridward/internal/config"
	"gridward/internal/exchange"
	"gridward/internal/intent"
	"gridward/internal/notify"
	"gridward/internal/position"
	"gridward/internal/risk"
)

const (
	confirmAttempts = 80
	confirmInterval = 150 * time.Millisecond
)

// PriceSource is the minimal collaborator the pipeline needs to price a
// MARKET order (satisfied by pricefeed.Feed).
type PriceSource interface {
	Get(ctx context.Context, symbol string) (float64, bool)
}

// Pipeline owns one worker goroutine per (user, symbol) key, created
// lazily on the key's first intent and kept for the process lifetime —
// the set of keys is bounded by configured (user, symbol) pairs, so
// idle-teardown would only add a reap-vs-submit race for no real memory
// saving.
type Pipeline struct {
	store    *position.Store
	cfg      *config.Config
	gateways map[string]exchange.ExchangeGateway
	price    PriceSource
	placer   *risk.OrderPlacer
	notifier notify.Notifier
	log      zerolog.Logger

	mu      stdsync.Mutex
	workers map[string]chan intent.Intent
}

func New(store *position.Store, cfg *config.Config, gateways map[string]exchange.ExchangeGateway, price PriceSource, placer *risk.OrderPlacer, notifier notify.Notifier, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		cfg:      cfg,
		gateways: gateways,
		price:    price,
		placer:   placer,
		notifier: notifier,
		log:      log,
		workers:  make(map[string]chan intent.Intent),
	}
}

// Dispatch enqueues one main-loop iteration's intents onto their
// respective (user, symbol) workers, preserving the order they arrive in.
// Callers must order risk intents before signal intents for the same key
// within a batch to satisfy I4 (risk-first).
func (p *Pipeline) Dispatch(ctx context.Context, intents []intent.Intent) {
	for _, it := range intents {
		p.submit(ctx, it)
	}
}

func (p *Pipeline) submit(ctx context.Context, it intent.Intent) {
	ch := p.workerFor(ctx, it.Key())
	select {
	case ch <- it:
	case <-ctx.Done():
	}
}

func (p *Pipeline) workerFor(ctx context.Context, key string) chan intent.Intent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.workers[key]; ok {
		return ch
	}
	ch := make(chan intent.Intent, 32)
	p.workers[key] = ch
	go p.runWorker(ctx, ch)
	return ch
}

func (p *Pipeline) runWorker(ctx context.Context, ch chan intent.Intent) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-ch:
			p.execute(ctx, it)
		}
	}
}

func (p *Pipeline) execute(ctx context.Context, it intent.Intent) {
	user, ok := p.cfg.Users[it.User]
	if !ok {
		return
	}
	gw, ok := p.gateways[it.User]
	if !ok {
		return
	}
	path := position.Path{User: it.User, Strategy: it.Strategy, Symbol: it.Symbol, Side: it.Side}

	riskCfg, _ := user.RiskFor(it.Symbol)

	qty, volumePct, ok := p.computeQty(ctx, user, riskCfg, path, it)
	if !ok {
		return
	}

	var prevAvgPrice *float64
	proceed := false
	p.store.Update(path, func(st *position.State) {
		switch it.Status {
		case intent.Closing:
			proceed = st.InPosition
		case intent.Opening:
			proceed = !st.InPosition
			if proceed {
				st.ProcessVolume = volumePct
			}
		case intent.Avg:
			proceed = st.InPosition
		}
		prevAvgPrice = st.AvgPrice
	})
	if !proceed {
		return
	}

	if it.Status == intent.Opening || it.Status == intent.Avg {
		if err := gw.SetMarginType(ctx, it.Symbol, exchange.MarginType(user.Core.MarginType)); err != nil {
			p.log.Warn().Str("user", it.User).Str("symbol", it.Symbol).Err(err).Msg("pipeline: set margin type failed")
		}
		if err := gw.SetLeverage(ctx, it.Symbol, int(riskCfg.Leverage)); err != nil {
			p.log.Warn().Str("user", it.User).Str("symbol", it.Symbol).Err(err).Msg("pipeline: set leverage failed")
		}
	}

	exSide := orderSide(it.Status, it.Side)
	exPosSide := exchange.PositionSide(it.Side)
	if _, err := gw.MakeOrder(ctx, it.Symbol, exSide, exPosSide, qty); err != nil {
		p.log.Error().Str("user", it.User).Str("symbol", it.Symbol).Err(err).Msg("pipeline: market order failed")
		return
	}

	switch it.Status {
	case intent.Closing:
		if err := p.placer.Cancel(ctx, gw, it.Symbol, it.Side); err != nil {
			p.log.Warn().Str("symbol", it.Symbol).Err(err).Msg("pipeline: cancel risk orders on close failed")
		}
		return
	case intent.Avg:
		if err := p.placer.Cancel(ctx, gw, it.Symbol, it.Side); err != nil {
			p.log.Warn().Str("symbol", it.Symbol).Err(err).Msg("pipeline: cancel risk orders on avg failed")
		}
	}

	avgPrice, confirmed := p.awaitConfirmation(ctx, path, prevAvgPrice)
	if !confirmed {
		p.log.Warn().Str("user", it.User).Str("symbol", it.Symbol).Msg("pipeline: position confirmation timed out")
		return
	}

	sl, tp := p.placer.TargetPrices(riskCfg, it.Side, avgPrice)
	if err := p.placer.Place(ctx, gw, user, it.Symbol, it.Side, sl, tp, riskCfg); err != nil {
		p.log.Error().Str("user", it.User).Str("symbol", it.Symbol).Err(err).Msg("pipeline: risk order placement failed")
		return
	}
	p.notifier.Opened(it.User, it.Strategy, it.Symbol, string(it.Side))
}

// computeQty implements spec §4.7 step 1.
func (p *Pipeline) computeQty(ctx context.Context, user config.ResolvedUser, riskCfg config.SymbolRisk, path position.Path, it intent.Intent) (qty, volumePct float64, ok bool) {
	if it.Status == intent.Closing {
		full, found := p.store.Full(path)
		if !found {
			return 0, 0, false
		}
		return full.ComulQty, 0, full.ComulQty > 0
	}

	price, found := p.price.Get(ctx, it.Symbol)
	if !found || price <= 0 {
		return 0, 0, false
	}

	if it.Status == intent.Opening {
		strategy, found := user.Strategies[it.Strategy]
		if !found {
			return 0, 0, false
		}
		side := strategy.Long
		if it.Side == position.Short {
			side = strategy.Short
		}
		if len(side.GridOrders) == 0 {
			return 0, 0, false
		}
		volumePct = side.GridOrders[0].Volume
	} else {
		full, found := p.store.Full(path)
		if !found {
			return 0, 0, false
		}
		volumePct = full.ProcessVolume
	}

	qtyPrecision := 0
	if full, found := p.store.Full(path); found {
		qtyPrecision = full.QtyPrecision
	}
	qty = roundDown(riskCfg.MarginSize*riskCfg.Leverage*volumePct/100/price, qtyPrecision)
	return qty, volumePct, qty > 0
}

// awaitConfirmation polls PositionState at 150ms intervals, up to 80
// attempts (spec §4.7 "position-update wait").
func (p *Pipeline) awaitConfirmation(ctx context.Context, path position.Path, prevAvgPrice *float64) (float64, bool) {
	ticker := time.NewTicker(confirmInterval)
	defer ticker.Stop()
	for i := 0; i < confirmAttempts; i++ {
		select {
		case <-ctx.Done():
			return 0, false
		case <-ticker.C:
		}
		snap, ok := p.store.Get(path)
		if !ok || !snap.InPosition || snap.AvgPrice == nil || snap.ComulQty <= 0 {
			continue
		}
		if prevAvgPrice != nil && *snap.AvgPrice == *prevAvgPrice {
			continue
		}
		return *snap.AvgPrice, true
	}
	return 0, false
}

// orderSide implements spec §4.7 step 4: buy for LONG-open/avg and
// SHORT-close, sell otherwise.
func orderSide(status intent.Status, side position.Side) exchange.Side {
	if status == intent.Closing {
		if side == position.Short {
			return exchange.Buy
		}
		return exchange.Sell
	}
	if side == position.Long {
		return exchange.Buy
	}
	return exchange.Sell
}

func roundDown(v float64, precision int) float64 {
	if v <= 0 {
		return 0
	}
	mult := math.Pow(10, float64(precision))
	return math.Floor(v*mult) / mult
}
