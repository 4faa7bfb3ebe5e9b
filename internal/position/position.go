// Package position is the authoritative in-memory record of open positions,
// keyed by (symbol, side). All field changes go through Mutate under a
// per-key lock; cross-key bookkeeping uses a separate short-lived global lock.
package position

import (
	"fmt"
	"time"

	"github.com/quantfold/signal-engine/internal/exchange"
)

// Key identifies a position: one open position per (symbol, side) at a time.
type Key struct {
	Symbol string
	Side   exchange.Side
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s", k.Symbol, k.Side)
}

// Position is one open trade. EntryPrice and Size are positive for any
// position considered open. MFEBp is the running maximum signed return since
// entry in basis points; it never decreases while the position is open and
// resets only on creation.
type Position struct {
	Symbol        string
	Side          exchange.Side
	EntryPrice    float64
	Size          float64
	AmountUSD     float64
	EntryAt       time.Time
	TimeframeHint string // optional: 1h|2h|3h|4h|day

	MFEBp float64
	MFEAt time.Time

	// Hysteresis state maintained by the policy monitor.
	HitCount   int
	HitHoldSec float64
	HitReason  string
}

// Age returns time since entry.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryAt)
}

// SignedReturnPct returns the fractional return at price, signed by side
// (positive means favorable).
func (p *Position) SignedReturnPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	r := (price - p.EntryPrice) / p.EntryPrice
	if p.Side == exchange.Short {
		r = -r
	}
	return r
}

// ObservePrice folds a price tick into the MFE fields. MFE only ratchets up.
func (p *Position) ObservePrice(price float64, now time.Time) {
	bp := p.SignedReturnPct(price) * 10000
	if bp > p.MFEBp {
		p.MFEBp = bp
		p.MFEAt = now
	}
}
