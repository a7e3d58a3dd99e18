package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"gridward/internal/config"
	"gridward/internal/exchange"
	"gridward/internal/intent"
	"gridward/internal/notify"
	"gridward/internal/position"
	"gridward/internal/risk"
)

type fakeGateway struct {
	orders []float64
}

func (f *fakeGateway) FetchPositions(ctx context.Context) ([]exchange.Position, error) { return nil, nil }
func (f *fakeGateway) FetchExchangeInfo(ctx context.Context) (map[string]exchange.SymbolInfo, error) {
	return nil, nil
}
func (f *fakeGateway) GetPrice(ctx context.Context, symbol string) (float64, error) { return 1, nil }
func (f *fakeGateway) MakeOrder(ctx context.Context, symbol string, side exchange.Side, posSide exchange.PositionSide, qty float64) (exchange.OrderReceipt, error) {
	f.orders = append(f.orders, qty)
	return exchange.OrderReceipt{OrderID: 1, Symbol: symbol, AvgPrice: 1, Status: "FILLED"}, nil
}
func (f *fakeGateway) PlaceRiskOrder(ctx context.Context, symbol string, side exchange.Side, posSide exchange.PositionSide, target float64, suffix exchange.RiskSuffix, orderType exchange.OrderType) error {
	return nil
}
func (f *fakeGateway) CancelOrdersBySymbolSide(ctx context.Context, symbol string, posSide exchange.PositionSide) (bool, error) {
	return true, nil
}
func (f *fakeGateway) ListOpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	return nil, nil
}
func (f *fakeGateway) SetMarginType(ctx context.Context, symbol string, marginType exchange.MarginType) error {
	return nil
}
func (f *fakeGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }
func (f *fakeGateway) SetHedgeMode(ctx context.Context, dualSide bool) error              { return nil }
func (f *fakeGateway) GetRealizedPnL(ctx context.Context, symbol string, direction exchange.PositionSide, startMs, endMs int64) (float64, float64, error) {
	return 0, 0, nil
}

type fakePrice struct{ price float64 }

func (f fakePrice) Get(ctx context.Context, symbol string) (float64, bool) { return f.price, true }

func TestExecute_OpeningFillsAndConfirms(t *testing.T) {
	store := position.NewStore()
	path := position.Path{User: "alice", Strategy: "grid1", Symbol: "BTCUSDT", Side: position.Long}
	store.Init(path, 3, 2)

	cfg := &config.Config{Users: map[string]config.ResolvedUser{
		"alice": {
			Name: "alice",
			Core: config.UserCore{MarginType: "CROSSED"},
			SymbolsRisk: map[string]config.SymbolRisk{
				"BTCUSDT": {MarginSize: 26, Leverage: 10},
			},
			Strategies: map[string]config.ResolvedStrategy{
				"grid1": {
					Name: "grid1",
					Long: config.StrategySide{GridOrders: []config.GridStepCfg{{Indent: 0, Volume: 10.52}}},
				},
			},
		},
	}}

	gw := &fakeGateway{}
	placer := risk.NewOrderPlacer(zerolog.Nop())
	p := New(store, cfg, map[string]exchange.ExchangeGateway{"alice": gw}, fakePrice{price: 1}, placer, notify.Noop{}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		p.execute(context.Background(), intent.Intent{User: "alice", Strategy: "grid1", Symbol: "BTCUSDT", Side: position.Long, Status: intent.Opening})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	store.Update(path, func(st *position.State) {
		avg := 1.0
		st.InPosition = true
		st.AvgPrice = &avg
		st.ComulQty = 27
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not return in time")
	}

	assert.Len(t, gw.orders, 1)
	// 26 * 10 * 10.52% / 1.0 = 27.352, rounded down to the 3-decimal qty
	// precision (27.351 in float64 arithmetic).
	assert.InDelta(t, 27.35, gw.orders[0], 0.01)
}

func TestOrderSide_MapsStatusAndPositionSide(t *testing.T) {
	assert.Equal(t, exchange.Buy, orderSide(intent.Opening, position.Long))
	assert.Equal(t, exchange.Sell, orderSide(intent.Opening, position.Short))
	assert.Equal(t, exchange.Sell, orderSide(intent.Closing, position.Long))
	assert.Equal(t, exchange.Buy, orderSide(intent.Closing, position.Short))
}

func TestRoundDown_TruncatesToPrecision(t *testing.T) {
	assert.InDelta(t, 27.041, roundDown(27.0416, 3), 1e-9)
	assert.Equal(t, 0.0, roundDown(-1, 2))
}
