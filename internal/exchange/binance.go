package exchange

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BinanceFutures implements ExchangeGateway on top of Binance USDT-M
// futures, adapted from the teacher's BinanceClient (which wrapped the
// same SDK for a single-symbol martingale bot).
type BinanceFutures struct {
	client *futures.Client
}

// NewBinanceFutures constructs a gateway bound to one user's API keys.
func NewBinanceFutures(apiKey, apiSecret string, useTestnet bool) *BinanceFutures {
	futures.UseTestnet = useTestnet
	return &BinanceFutures{client: binance.NewFuturesClient(apiKey, apiSecret)}
}

func (b *BinanceFutures) FetchPositions(ctx context.Context) ([]Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, err
	}

	var out []Position
	for _, p := range risks {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		notional, _ := strconv.ParseFloat(p.Notional, 64)
		leverage, _ := strconv.Atoi(p.Leverage)
		isolated, _ := strconv.ParseFloat(p.IsolatedMargin, 64)

		out = append(out, Position{
			Symbol:         p.Symbol,
			PositionSide:   PositionSide(p.PositionSide),
			PositionAmt:    math.Abs(amt),
			EntryPrice:     entry,
			Notional:       math.Abs(notional),
			Leverage:       leverage,
			IsolatedMargin: isolated,
		})
	}
	return out, nil
}

func (b *BinanceFutures) FetchExchangeInfo(ctx context.Context) (map[string]SymbolInfo, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]SymbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		si := SymbolInfo{Symbol: s.Symbol, QtyPrecision: s.QuantityPrecision, PricePrecision: s.PricePrecision}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				if v, ok := f["stepSize"].(string); ok {
					si.StepSize, _ = strconv.ParseFloat(v, 64)
				}
			case "PRICE_FILTER":
				if v, ok := f["tickSize"].(string); ok {
					si.TickSize, _ = strconv.ParseFloat(v, 64)
				}
			}
		}
		out[s.Symbol] = si
	}
	return out, nil
}

func (b *BinanceFutures) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for %s", symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

// formatPrice rounds a trigger/limit price to the given number of decimal
// places, expressed with shopspring/decimal instead of float string
// formatting to avoid float64-printf rounding surprises at the
// exchange-call boundary. PlaceRiskOrder always passes 8 places; the
// symbol's own price precision is not applied to risk-order prices.
// Quantities need no equivalent here: callers (OrderPipeline) already
// round qty down to the symbol's step precision before it reaches
// MakeOrder.
func formatPrice(price float64, precision int) string {
	return decimal.NewFromFloat(price).Round(int32(precision)).String()
}

func (b *BinanceFutures) MakeOrder(ctx context.Context, symbol string, side Side, positionSide PositionSide, qty float64) (OrderReceipt, error) {
	order, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		PositionSide(futures.PositionSideType(positionSide)).
		Type(futures.OrderTypeMarket).
		Quantity(decimal.NewFromFloat(qty).String()).
		NewClientOrderID(uuid.NewString()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return OrderReceipt{}, mapAPIError(err)
	}

	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	return OrderReceipt{
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		AvgPrice: avgPrice,
		Status:   string(order.Status),
	}, nil
}

func (b *BinanceFutures) PlaceRiskOrder(ctx context.Context, symbol string, side Side, positionSide PositionSide, targetPrice float64, suffix RiskSuffix, orderType OrderType) error {
	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		PositionSide(futures.PositionSideType(positionSide)).
		NewClientOrderID(uuid.NewString())

	switch {
	case suffix == SuffixSL:
		svc = svc.Type(futures.OrderTypeStopMarket).
			StopPrice(formatPrice(targetPrice, 8)).
			ClosePosition(true)
	case suffix == SuffixTP && orderType == OrderTypeMarket:
		svc = svc.Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(formatPrice(targetPrice, 8)).
			ClosePosition(true)
	case suffix == SuffixTP && orderType == OrderTypeLimit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatPrice(targetPrice, 8)).
			ReduceOnly(true)
	default:
		return fmt.Errorf("unsupported risk order combination: suffix=%s type=%s", suffix, orderType)
	}

	_, err := svc.Do(ctx)
	return mapAPIError(err)
}

var riskOrderTypes = map[OrderType]bool{
	OrderTypeLimit:         true,
	OrderTypeTakeProfitMkt: true,
	OrderTypeStopMarket:    true,
	OrderTypeTakeProfit:    true,
	OrderTypeStop:          true,
}

func (b *BinanceFutures) ListOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	orders, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]OpenOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, OpenOrder{
			OrderID:      o.OrderID,
			Symbol:       o.Symbol,
			PositionSide: PositionSide(o.PositionSide),
			Type:         OrderType(o.Type),
		})
	}
	return out, nil
}

// CancelOrdersBySymbolSide enumerates open orders for symbol, cancels
// every risk order (LIMIT, TAKE_PROFIT_MARKET, STOP_MARKET, TAKE_PROFIT,
// STOP) on positionSide, and returns true iff every
// targeted order was removed — status CANCELED or code -2011 both count
// as success (spec §4.8, L2).
func (b *BinanceFutures) CancelOrdersBySymbolSide(ctx context.Context, symbol string, positionSide PositionSide) (bool, error) {
	open, err := b.ListOpenOrders(ctx, symbol)
	if err != nil {
		return false, err
	}

	allOK := true
	for _, o := range open {
		if o.PositionSide != positionSide || !riskOrderTypes[o.Type] {
			continue
		}
		res, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(o.OrderID).Do(ctx)
		if err == nil && string(res.Status) == "CANCELED" {
			continue
		}
		if apiErr, ok := asAPIError(err); ok && apiErr.Code == OrderAlreadyGone {
			continue
		}
		allOK = false
	}
	return allOK, nil
}

func (b *BinanceFutures) SetMarginType(ctx context.Context, symbol string, marginType MarginType) error {
	err := b.client.NewChangeMarginTypeService().
		Symbol(symbol).
		MarginType(futures.MarginType(marginType)).
		Do(ctx)
	return mapAPIError(err)
}

func (b *BinanceFutures) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	return mapAPIError(err)
}

func (b *BinanceFutures) SetHedgeMode(ctx context.Context, dualSide bool) error {
	return b.client.NewChangePositionModeService().DualSide(dualSide).Do(ctx)
}

// GetRealizedPnL sums realized PnL and commission from user trades in
// [startMs, endMs] on the given positionSide, the Go analog of the
// original bot's get_realized_pnl (d_bapi.py).
func (b *BinanceFutures) GetRealizedPnL(ctx context.Context, symbol string, direction PositionSide, startMs, endMs int64) (float64, float64, error) {
	trades, err := b.client.NewListAccountTradeService().
		Symbol(symbol).
		StartTime(startMs).
		EndTime(endMs).
		Do(ctx)
	if err != nil {
		return 0, 0, err
	}

	var pnl, commission float64
	for _, t := range trades {
		if PositionSide(t.PositionSide) != direction {
			continue
		}
		if t.Time < startMs {
			continue
		}
		p, _ := strconv.ParseFloat(t.RealizedPnl, 64)
		c, _ := strconv.ParseFloat(t.Commission, 64)
		pnl += p
		commission += c
	}
	return round4(pnl), round4(commission), nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func mapAPIError(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*common.APIError); ok {
		return &APIError{Code: int(apiErr.Code), Message: apiErr.Message}
	}
	return err
}

func asAPIError(err error) (*APIError, bool) {
	if err == nil {
		return nil, false
	}
	if apiErr, ok := err.(*APIError); ok {
		return apiErr, true
	}
	if apiErr, ok := err.(*common.APIError); ok {
		return &APIError{Code: int(apiErr.Code), Message: apiErr.Message}, true
	}
	return nil, false
}
