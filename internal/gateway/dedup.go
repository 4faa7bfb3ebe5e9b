package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// dedupStore remembers keys for a TTL under a short global lock; insert and
// prune are O(1) per key and never held across network calls.
type dedupStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
}

func newDedupStore(ttl time.Duration) *dedupStore {
	return &dedupStore{
		entries: map[string]time.Time{},
		ttl:     ttl,
	}
}

// SeenWithin reports whether key was recorded within the TTL and records it
// either way.
func (d *dedupStore) SeenWithin(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.entries[key]
	d.entries[key] = now
	return ok && now.Sub(last) < d.ttl
}

// SetTTL updates the window; takes effect on the next check.
func (d *dedupStore) SetTTL(ttl time.Duration) {
	d.mu.Lock()
	d.ttl = ttl
	d.mu.Unlock()
}

// Prune drops entries older than the TTL.
func (d *dedupStore) Prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, at := range d.entries {
		if now.Sub(at) >= d.ttl {
			delete(d.entries, k)
		}
	}
}

// contentHash fingerprints the normalized alert for the raw-content dedup
// layer: literal duplicate deliveries hash identically even when the sender
// reframes the payload.
func contentHash(a Alert) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%g|%s", a.Type, a.Symbol, a.Side, a.Amount, a.Timeframe)))
	return hex.EncodeToString(h[:])
}

// businessKey identifies the logical action regardless of payload framing.
func businessKey(a Alert) string {
	return a.Type + "|" + a.Symbol + "|" + a.Side
}
