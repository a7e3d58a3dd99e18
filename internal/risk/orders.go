package risk

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"gridward/internal/config"
	"gridward/internal/exchange"
	"gridward/internal/position"
)

// OrderPlacer computes TP/SL target prices from the live average price and
// drives their placement/cancellation through an ExchangeGateway (spec
// §4.8), grounded on d_bapi.py's place_risk_order/cancel_orders_by_symbol_side
// and the commented-out RiskSet in z_dev.py.
type OrderPlacer struct {
	log zerolog.Logger
}

func NewOrderPlacer(log zerolog.Logger) *OrderPlacer {
	return &OrderPlacer{log: log}
}

// TargetPrices computes the SL and TP trigger prices for a position at
// avgPrice, given the user's risk configuration for symbol. A nil return
// for either field means that leg is not configured.
func (p *OrderPlacer) TargetPrices(risk config.SymbolRisk, side position.Side, avgPrice float64) (sl, tp *float64) {
	sign := side.Sign()
	if risk.SL != nil {
		v := avgPrice * (1 - sign*(*risk.SL)/100)
		sl = &v
	}
	if risk.TP != nil {
		v := avgPrice * (1 + sign*(*risk.TP)/100)
		tp = &v
	}
	return sl, tp
}

// Place cancels any existing risk orders on (symbol, positionSide) and
// places fresh SL/TP orders at the given target prices, skipping legs
// whose target is nil. An order-already-gone response (-2011) from the
// cancel step is treated as success, never as an error to surface (L2).
func (p *OrderPlacer) Place(ctx context.Context, gw exchange.ExchangeGateway, user config.ResolvedUser, symbol string, side position.Side, sl, tp *float64, tpOrderType config.SymbolRisk) error {
	exSide := exchange.Sell
	if side == position.Short {
		exSide = exchange.Buy
	}
	exPosSide := exchange.PositionSide(side)

	if _, err := gw.CancelOrdersBySymbolSide(ctx, symbol, exPosSide); err != nil {
		if !isAlreadyGone(err) {
			return err
		}
	}

	if sl != nil {
		if err := gw.PlaceRiskOrder(ctx, symbol, exSide, exPosSide, *sl, exchange.SuffixSL, exchange.OrderTypeStopMarket); err != nil {
			return err
		}
	}
	if tp != nil {
		orderType := exchange.OrderTypeTakeProfitMkt
		if tpOrderType.TPOrderType == "LIMIT" {
			orderType = exchange.OrderTypeLimit
		}
		if err := gw.PlaceRiskOrder(ctx, symbol, exSide, exPosSide, *tp, exchange.SuffixTP, orderType); err != nil {
			return err
		}
	}
	return nil
}

// Cancel removes any resting risk orders on (symbol, positionSide),
// tolerating an already-gone response (idempotent cancel, L2).
func (p *OrderPlacer) Cancel(ctx context.Context, gw exchange.ExchangeGateway, symbol string, side position.Side) error {
	_, err := gw.CancelOrdersBySymbolSide(ctx, symbol, exchange.PositionSide(side))
	if err != nil && !isAlreadyGone(err) {
		return err
	}
	return nil
}

func isAlreadyGone(err error) bool {
	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == exchange.OrderAlreadyGone
	}
	return false
}
