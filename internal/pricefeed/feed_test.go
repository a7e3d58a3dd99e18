package pricefeed

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubRESTFetcher struct {
	price float64
	err   error
	calls int
}

func (s *stubRESTFetcher) GetPrice(ctx context.Context, symbol string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func TestGet_PrefersCachedStreamPrice(t *testing.T) {
	rest := &stubRESTFetcher{price: 99}
	f := New("wss://example/stream?streams=", rest, zerolog.Nop())
	f.set("BTCUSDT", 101.5)

	price, ok := f.Get(context.Background(), "BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 101.5, price)
	assert.Equal(t, 0, rest.calls, "should not fall back to REST when a cached price exists")
}

func TestGet_FallsBackToRESTWhenUncached(t *testing.T) {
	rest := &stubRESTFetcher{price: 42}
	f := New("wss://example/stream?streams=", rest, zerolog.Nop())

	price, ok := f.Get(context.Background(), "ETHUSDT")
	assert.True(t, ok)
	assert.Equal(t, 42.0, price)
}

func TestStreamNameFor_Lowercases(t *testing.T) {
	assert.Equal(t, "btcusdt@aggTrade", streamNameFor("BTCUSDT"))
}
