package exchange

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfold/signal-engine/internal/observ"
)

// PriceFeed maintains a websocket subscription to the exchange ticker stream
// and caches last prices, so the monitor loop can read prices without a REST
// round trip per position. It wraps an inner Client and falls back to it
// when the cached price is missing or stale.
type PriceFeed struct {
	inner Client
	url   string

	mu     sync.RWMutex
	prices map[string]feedTick

	staleAfter time.Duration
	cancel     context.CancelFunc
}

type feedTick struct {
	price float64
	at    time.Time
}

// tickerMessage is the wire shape of one stream update.
type tickerMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func NewPriceFeed(inner Client, url string) *PriceFeed {
	return &PriceFeed{
		inner:      inner,
		url:        url,
		prices:     map[string]feedTick{},
		staleAfter: 10 * time.Second,
	}
}

// Start launches the read loop. Reconnects with a fixed pause on any error;
// the feed is an optimization, so connection trouble degrades to REST reads.
func (f *PriceFeed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	go f.runLoop(ctx)
}

func (f *PriceFeed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *PriceFeed) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.readOnce(ctx); err != nil {
			observ.Log("price_feed_error", map[string]any{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (f *PriceFeed) readOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg tickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Symbol == "" || msg.Price <= 0 {
			continue
		}
		f.mu.Lock()
		f.prices[msg.Symbol] = feedTick{price: msg.Price, at: time.Now()}
		f.mu.Unlock()
	}
}

func (f *PriceFeed) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	tick, ok := f.prices[symbol]
	f.mu.RUnlock()
	if ok && time.Since(tick.at) < f.staleAfter {
		return tick.price, nil
	}
	return f.inner.GetLastPrice(ctx, symbol)
}

func (f *PriceFeed) GetOpenPositions(ctx context.Context) ([]RemotePosition, error) {
	return f.inner.GetOpenPositions(ctx)
}

func (f *PriceFeed) PlaceEntry(ctx context.Context, symbol string, side Side, amountUSD float64, leverage int) (Result, error) {
	return f.inner.PlaceEntry(ctx, symbol, side, amountUSD, leverage)
}

func (f *PriceFeed) PlaceReduce(ctx context.Context, symbol string, side Side, size float64) (Result, error) {
	return f.inner.PlaceReduce(ctx, symbol, side, size)
}
