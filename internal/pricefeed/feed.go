// Package pricefeed maintains the last-trade price per symbol from a
// streaming source, with a synchronous REST fallback (spec §4.3).
package pricefeed

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// RESTPriceFetcher is the minimal collaborator PriceFeed needs for its
// fallback path — satisfied by exchange.ExchangeGateway.GetPrice.
type RESTPriceFetcher interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

const (
	fallbackRetries = 5
	fallbackDelay   = 250 * time.Millisecond
)

// Feed caches last-trade prices and streams updates over a websocket
// subscription per symbol, grounded on the original bot's
// WS_HotPrice_Stream; each symbol's aggregate-trade stream is
// `{symbol}@aggTrade`.
type Feed struct {
	mu     sync.RWMutex
	prices map[string]float64

	streamURL string
	rest      RESTPriceFetcher
	log       zerolog.Logger

	dialer *websocket.Dialer
}

// New constructs a Feed. streamURL is the Binance combined-stream base,
// e.g. "wss://fstream.binance.com/stream?streams=".
func New(streamURL string, rest RESTPriceFetcher, log zerolog.Logger) *Feed {
	return &Feed{
		prices:    make(map[string]float64),
		streamURL: streamURL,
		rest:      rest,
		log:       log,
		dialer:    websocket.DefaultDialer,
	}
}

// Get returns the cached last price, falling back to a retried REST
// lookup if no streamed price has arrived yet. Returns false after all
// retries are exhausted (spec §4.3).
func (f *Feed) Get(ctx context.Context, symbol string) (float64, bool) {
	f.mu.RLock()
	price, ok := f.prices[symbol]
	f.mu.RUnlock()
	if ok && price > 0 {
		return price, true
	}

	for attempt := 0; attempt < fallbackRetries; attempt++ {
		price, err := f.rest.GetPrice(ctx, symbol)
		if err == nil && price > 0 {
			f.set(symbol, price)
			return price, true
		}
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(fallbackDelay):
		}
	}
	return 0, false
}

func (f *Feed) set(symbol string, price float64) {
	if price <= 0 {
		return
	}
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

// Run subscribes to the aggregate-trade stream for every symbol and
// updates the cache until ctx is cancelled. One combined-stream
// connection serves all symbols; on disconnect it reconnects with a
// short backoff — proxy rotation itself stays out of scope (spec §1).
func (f *Feed) Run(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	url := f.streamURL
	for i, s := range symbols {
		if i > 0 {
			url += "/"
		}
		url += streamNameFor(s)
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := f.dialer.DialContext(ctx, url, nil)
		if err != nil {
			f.log.Warn().Err(err).Msg("pricefeed: dial failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 15*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		f.readLoop(ctx, conn)
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		var msg tradeEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-done:
			default:
				f.log.Warn().Err(err).Msg("pricefeed: read failed, reconnecting")
			}
			return
		}
		if msg.Data.Symbol == "" || msg.Data.Price == "" {
			continue
		}
		if p, ok := parsePrice(msg.Data.Price); ok {
			f.set(msg.Data.Symbol, p)
		}
	}
}

type tradeEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Price  string `json:"p"`
	} `json:"data"`
}

func streamNameFor(symbol string) string {
	return lower(symbol) + "@aggTrade"
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func parsePrice(s string) (float64, bool) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p <= 0 {
		return 0, false
	}
	return p, true
}
