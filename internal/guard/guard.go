// Package guard is admission control over the number of concurrently held
// instruments. The blocked state is recomputed on a fixed polling interval,
// not on every entry attempt; entries observe the last computed state.
package guard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/quantfold/signal-engine/internal/observ"
)

// Counter reports the current open position count.
type Counter interface {
	Count() int
}

// Ceiling supplies the live ceiling; reconsulted every poll so parameter
// overrides take effect within one interval.
type Ceiling func() int

type Guard struct {
	counter  Counter
	ceiling  Ceiling
	interval time.Duration
	blocked  atomic.Bool
}

func New(counter Counter, ceiling Ceiling, pollInterval time.Duration) *Guard {
	return &Guard{counter: counter, ceiling: ceiling, interval: pollInterval}
}

// Start launches the polling loop. An immediate first poll seeds the state
// before any entry can consult it.
func (g *Guard) Start(ctx context.Context) {
	g.poll()
	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.poll()
			}
		}
	}()
}

func (g *Guard) poll() {
	count := g.counter.Count()
	max := g.ceiling()
	blocked := max > 0 && count >= max
	was := g.blocked.Swap(blocked)
	if was != blocked {
		observ.Log("capacity_guard", map[string]any{
			"blocked": blocked,
			"count":   count,
			"ceiling": max,
		})
	}
}

// IsBlocked returns the last polled state.
func (g *Guard) IsBlocked() bool {
	return g.blocked.Load()
}
