package exchange

import (
	"context"
	"fmt"
	"sync"
)

// Paper is an in-memory exchange used by tests and the replay binary. Prices
// are set explicitly; entries and reduces mutate a local book immediately.
type Paper struct {
	mu        sync.Mutex
	prices    map[string]float64
	positions map[string]*RemotePosition // key: symbol|side

	// Fault injection for tests.
	FailEntry  bool
	FailReduce bool
	PriceErr   error
}

func NewPaper() *Paper {
	return &Paper{
		prices:    map[string]float64{},
		positions: map[string]*RemotePosition{},
	}
}

func paperKey(symbol string, side Side) string {
	return symbol + "|" + string(side)
}

// SetPrice sets the last price for a symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *Paper) GetLastPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PriceErr != nil {
		return 0, p.PriceErr
	}
	price, ok := p.prices[symbol]
	if !ok {
		return 0, ErrNoPrice
	}
	return price, nil
}

func (p *Paper) GetOpenPositions(_ context.Context) ([]RemotePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RemotePosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *Paper) PlaceEntry(_ context.Context, symbol string, side Side, amountUSD float64, leverage int) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailEntry {
		return Result{Success: false, Detail: "rejected"}, nil
	}
	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return Result{Success: false, Detail: "no price"}, nil
	}
	size := amountUSD * float64(leverage) / price
	key := paperKey(symbol, side)
	if existing, ok := p.positions[key]; ok {
		existing.Size += size
	} else {
		p.positions[key] = &RemotePosition{Symbol: symbol, Side: side, Size: size, EntryPrice: price}
	}
	return Result{Success: true, Detail: fmt.Sprintf("filled %.6f @ %.4f", size, price)}, nil
}

func (p *Paper) PlaceReduce(_ context.Context, symbol string, side Side, size float64) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailReduce {
		return Result{Success: false, Detail: "rejected"}, nil
	}
	key := paperKey(symbol, side)
	pos, ok := p.positions[key]
	if !ok {
		return Result{Success: false, Detail: "no position"}, nil
	}
	if size >= pos.Size {
		delete(p.positions, key)
		return Result{Success: true, Detail: "closed"}, nil
	}
	pos.Size -= size
	return Result{Success: true, Detail: fmt.Sprintf("reduced to %.6f", pos.Size)}, nil
}
