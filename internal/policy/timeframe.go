package policy

import (
	"sync"
	"time"
)

// TimeframeResolver picks the timeframe governing a position's thresholds.
// Priority: explicit symbol override, then the most recent hint ingested
// with an alert, then a coarse estimate from holding duration. The duration
// estimate is a known approximation: a long-held position opened on a short
// timeframe will be classified by how long it has been held, not how it was
// opened.
type TimeframeResolver struct {
	mu        sync.RWMutex
	overrides map[string]string // symbol -> timeframe
}

func NewTimeframeResolver(overrides map[string]string) *TimeframeResolver {
	out := make(map[string]string, len(overrides))
	for k, v := range overrides {
		out[k] = v
	}
	return &TimeframeResolver{overrides: out}
}

// SetOverrides replaces the override map; called on config refresh.
func (r *TimeframeResolver) SetOverrides(overrides map[string]string) {
	out := make(map[string]string, len(overrides))
	for k, v := range overrides {
		out[k] = v
	}
	r.mu.Lock()
	r.overrides = out
	r.mu.Unlock()
}

// Resolve returns the timeframe for a symbol given the last ingested hint
// and the current holding duration.
func (r *TimeframeResolver) Resolve(symbol, hint string, held time.Duration) string {
	r.mu.RLock()
	tf, ok := r.overrides[symbol]
	r.mu.RUnlock()
	if ok {
		return tf
	}
	if validTimeframe(hint) {
		return hint
	}
	return estimateFromHold(held)
}

func validTimeframe(tf string) bool {
	switch tf {
	case "1h", "2h", "3h", "4h", "day":
		return true
	}
	return false
}

// estimateFromHold maps holding duration to an assumed timeframe: shorter
// hold, shorter assumed timeframe.
func estimateFromHold(held time.Duration) string {
	switch h := held.Hours(); {
	case h < 2:
		return "1h"
	case h < 4:
		return "2h"
	case h < 8:
		return "3h"
	case h < 16:
		return "4h"
	default:
		return "day"
	}
}
