// Package engine wires every component into the running control plane and
// drives the three cooperative tasks spec §5 describes (T1 main loop, T2
// PositionSyncer, T3 PriceFeed streaming), plus the auxiliary log-flush and
// exchange-metadata-refresh tasks. It replaces the original bot's BotContext
// single-struct-of-everything with an explicit constructor and Run method,
// generalized from one exchange client to one gateway per user.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gridward/internal/config"
	"gridward/internal/exchange"
	"gridward/internal/intent"
	"gridward/internal/logging"
	"gridward/internal/notify"
	"gridward/internal/pipeline"
	"gridward/internal/position"
	"gridward/internal/pricefeed"
	"gridward/internal/reconcile"
	"gridward/internal/risk"
	"gridward/internal/signal"
	"gridward/internal/ui"
)

const (
	mainLoopPeriod   = 1 * time.Second
	metadataRefresh  = 1800 * time.Second
	logFlushInterval = 5 * time.Second
)

// Engine holds every wired collaborator for one process run.
type Engine struct {
	cfg      *config.Config
	store    *position.Store
	gateways map[string]exchange.ExchangeGateway
	feed     *pricefeed.Feed
	syncer   *reconcile.Syncer
	monitor  *risk.Monitor
	signals  *signal.Engine
	pipe     *pipeline.Pipeline
	notifier notify.Notifier
	console  *ui.Console
	ring     *logging.Ring
	log      zerolog.Logger
}

// New constructs an Engine from validated configuration. One
// ExchangeGateway is built per user (each holds its own API credentials),
// matching the original bot's per-user client pool.
func New(cfg *config.Config, log zerolog.Logger, ring *logging.Ring, notifier notify.Notifier) *Engine {
	store := position.NewStore()
	gateways := make(map[string]exchange.ExchangeGateway, len(cfg.Users))
	for name, user := range cfg.Users {
		gateways[name] = exchange.NewBinanceFutures(user.Keys.APIKey, user.Keys.APISecret, cfg.Secrets.UseTestnet)
	}

	// Pick an arbitrary gateway as the REST fallback for the shared price
	// feed — market data does not depend on which user's keys fetch it.
	var restFallback pricefeed.RESTPriceFetcher
	for _, gw := range gateways {
		restFallback = gw
		break
	}
	feed := pricefeed.New("wss://fstream.binance.com/stream?streams=", restFallback, log)

	syncer := reconcile.New(store, cfg, gateways, notifier, log)
	monitor := risk.NewMonitor(store, cfg, feed, log)
	signals := signal.New(store, cfg)
	placer := risk.NewOrderPlacer(log)
	pipe := pipeline.New(store, cfg, gateways, feed, placer, notifier, log)
	console := ui.NewConsole(cfg.Secrets.UseTestnet)

	return &Engine{
		cfg: cfg, store: store, gateways: gateways, feed: feed,
		syncer: syncer, monitor: monitor, signals: signals, pipe: pipe,
		notifier: notifier, console: console, ring: ring, log: log,
	}
}

// Bootstrap runs startup-only setup: hedge mode, leverage/margin-mode
// idempotent set is deferred to the pipeline (per-order), and position
// state initialisation for every configured (user, strategy, symbol, side)
// plus a first exchange-metadata fetch for qty/price precision (spec §7
// "startup validation").
func (e *Engine) Bootstrap(ctx context.Context) error {
	for name, user := range e.cfg.Users {
		gw := e.gateways[name]
		if err := gw.SetHedgeMode(ctx, true); err != nil {
			e.log.Warn().Str("user", name).Err(err).Msg("engine: set hedge mode failed (already enabled?)")
		}

		info, err := gw.FetchExchangeInfo(ctx)
		if err != nil {
			return err
		}

		for strategyName, strategy := range user.Strategies {
			for _, symbol := range strategy.Symbols {
				si := info[symbol]
				if user.Core.Direction.AllowsLong() {
					e.store.Init(position.Path{User: name, Strategy: strategyName, Symbol: symbol, Side: position.Long}, si.QtyPrecision, si.PricePrecision)
				}
				if user.Core.Direction.AllowsShort() {
					e.store.Init(position.Path{User: name, Strategy: strategyName, Symbol: symbol, Side: position.Short}, si.QtyPrecision, si.PricePrecision)
				}
			}
		}
	}
	return nil
}

// Run starts T2 (PositionSyncer), T3 (PriceFeed streaming), the log-flush
// and exchange-metadata-refresh auxiliary tasks, and drives T1 (the main
// decision loop) until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.console.PrintBanner(len(e.cfg.Users))

	go e.syncer.Run(ctx)
	go e.feed.Run(ctx, e.fetchSymbols())

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()
	go e.ring.FlushLoop(done, logFlushInterval, func(err error) {
		e.log.Warn().Err(err).Msg("engine: log flush failed")
	})
	go e.refreshMetadataLoop(ctx)

	ticker := time.NewTicker(mainLoopPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick implements spec §5's risk-first dispatch policy (I4): RiskMonitor
// intents for every tracked leaf are evaluated and dispatched before
// SignalEngine's opening intents, within the same iteration.
func (e *Engine) tick(ctx context.Context) {
	var riskIntents []intent.Intent
	for _, path := range e.store.Paths() {
		user, ok := e.cfg.Users[path.User]
		if !ok {
			continue
		}
		if it := e.monitor.Evaluate(ctx, user, path); it != nil {
			riskIntents = append(riskIntents, *it)
		}
	}
	e.pipe.Dispatch(ctx, riskIntents)

	openIntents := e.signals.Tick()
	for _, it := range openIntents {
		price, _ := e.feed.Get(ctx, it.Symbol)
		e.console.LogSignal(it.User, it.Symbol, it.Side, price)
	}
	e.pipe.Dispatch(ctx, openIntents)

	e.console.DisplayStore(e.store)
}

func (e *Engine) fetchSymbols() []string {
	out := make([]string, 0, len(e.cfg.FetchSymbols))
	for s := range e.cfg.FetchSymbols {
		out = append(out, s)
	}
	return out
}

func (e *Engine) refreshMetadataLoop(ctx context.Context) {
	ticker := time.NewTicker(metadataRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, gw := range e.gateways {
				info, err := gw.FetchExchangeInfo(ctx)
				if err != nil {
					e.log.Warn().Str("user", name).Err(err).Msg("engine: exchange metadata refresh failed")
					continue
				}
				e.applyPrecisions(name, info)
			}
		}
	}
}

// applyPrecisions writes freshly-fetched qty/price precisions back into
// every tracked leaf for the given user, so a mid-session exchange filter
// change is picked up without restarting the process.
func (e *Engine) applyPrecisions(user string, info map[string]exchange.SymbolInfo) {
	for _, path := range e.store.PathsForUser(user) {
		si, ok := info[path.Symbol]
		if !ok {
			continue
		}
		e.store.Update(path, func(st *position.State) {
			st.QtyPrecision = si.QtyPrecision
			st.PricePrecision = si.PricePrecision
		})
	}
}
