// Package exchange wraps the Binance USDT-M futures REST API behind the
// ExchangeGateway interface the control plane consumes (spec §6). The
// teacher's own exchange client (adshao/go-binance/v2/futures) is kept as
// the concrete implementation's transport.
package exchange

import "context"

// Side is an order side, distinct from a position side.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// PositionSide mirrors position.Side but is kept distinct so this package
// has no dependency on internal/position.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// MarginType is a futures margin mode.
type MarginType string

const (
	Crossed  MarginType = "CROSSED"
	Isolated MarginType = "ISOLATED"
)

// OrderType is the subset of order types the control plane issues.
type OrderType string

const (
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopMarket      OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMkt   OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeTakeProfit      OrderType = "TAKE_PROFIT"
	OrderTypeStop            OrderType = "STOP"
)

// RiskSuffix names which conditional order RiskOrderPlacer is managing.
type RiskSuffix string

const (
	SuffixTP RiskSuffix = "tp"
	SuffixSL RiskSuffix = "sl"
)

// Position is one exchange-reported open position (spec §6 fetch_positions).
type Position struct {
	Symbol         string
	PositionSide   PositionSide
	PositionAmt    float64
	EntryPrice     float64
	Notional       float64
	Leverage       int
	IsolatedMargin float64
}

// SymbolInfo carries the precisions the control plane needs for a symbol.
type SymbolInfo struct {
	Symbol         string
	QtyPrecision   int
	PricePrecision int
	StepSize       float64
	TickSize       float64
}

// OrderReceipt is the result of a MARKET order placement.
type OrderReceipt struct {
	OrderID  int64
	Symbol   string
	AvgPrice float64
	Status   string
}

// OpenOrder is one resting order, as returned by open-order listing.
type OpenOrder struct {
	OrderID      int64
	Symbol       string
	PositionSide PositionSide
	Type         OrderType
}

// APIError is returned by gateway calls that fail with an exchange error
// code, so callers can apply the -2011 ("order already gone") idempotence
// rule from spec §4.8 without parsing error strings.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// OrderAlreadyGone is the exchange code meaning a cancel target no longer
// exists — treated as cancellation success (spec §4.8, L2).
const OrderAlreadyGone = -2011

// ExchangeGateway is the collaborator interface the control plane depends
// on (spec §6). All methods are safe for concurrent use.
type ExchangeGateway interface {
	FetchPositions(ctx context.Context) ([]Position, error)
	FetchExchangeInfo(ctx context.Context) (map[string]SymbolInfo, error)

	GetPrice(ctx context.Context, symbol string) (float64, error)

	MakeOrder(ctx context.Context, symbol string, side Side, positionSide PositionSide, qty float64) (OrderReceipt, error)
	PlaceRiskOrder(ctx context.Context, symbol string, side Side, positionSide PositionSide, targetPrice float64, suffix RiskSuffix, orderType OrderType) error
	CancelOrdersBySymbolSide(ctx context.Context, symbol string, positionSide PositionSide) (bool, error)
	ListOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	SetMarginType(ctx context.Context, symbol string, marginType MarginType) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetHedgeMode(ctx context.Context, dualSide bool) error

	GetRealizedPnL(ctx context.Context, symbol string, direction PositionSide, startMs, endMs int64) (pnlUSDT, commission float64, err error)
}
