// Package exchange wraps the outbound order/market-data transport. All calls
// are fallible and retryable by the caller; local position state is only
// committed after a success response.
package exchange

import (
	"context"
	"errors"
)

// Side of a position or order.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// RemotePosition is the exchange's view of an open position.
type RemotePosition struct {
	Symbol     string
	Side       Side
	Size       float64
	EntryPrice float64
}

// Result reports the outcome of an order placement.
type Result struct {
	Success bool
	Detail  string
}

// ErrNoPrice is returned when no last price is available for a symbol.
var ErrNoPrice = errors.New("no price available")

// Client is the outbound exchange transport surface the engine depends on.
type Client interface {
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	GetOpenPositions(ctx context.Context) ([]RemotePosition, error)
	PlaceEntry(ctx context.Context, symbol string, side Side, amountUSD float64, leverage int) (Result, error)
	PlaceReduce(ctx context.Context, symbol string, side Side, size float64) (Result, error)
}
