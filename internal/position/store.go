package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quantfold/signal-engine/internal/exchange"
	"github.com/quantfold/signal-engine/internal/observ"
)

var (
	// ErrExists is returned by Create when a position already holds the key.
	ErrExists = errors.New("position already exists")
	// ErrNotFound is returned by Mutate when no position holds the key.
	ErrNotFound = errors.New("position not found")
	// ErrRemoteGone means the exchange reported no position after bounded
	// retries; the local record has been cleared.
	ErrRemoteGone = errors.New("no remote position")
)

// Store holds open positions with per-key mutual exclusion. Key locks are
// created lazily and never reclaimed, which avoids lookup/destroy races; the
// arena is bounded by the number of distinct symbol-side pairs.
type Store struct {
	client  exchange.Client
	retries int
	backoff time.Duration

	mu        sync.Mutex // guards positions and locks maps only
	positions map[Key]*Position
	locks     map[Key]*sync.Mutex
}

func NewStore(client exchange.Client, remoteRetries int, retryBackoff time.Duration) *Store {
	if remoteRetries <= 0 {
		remoteRetries = 3
	}
	return &Store{
		client:    client,
		retries:   remoteRetries,
		backoff:   retryBackoff,
		positions: make(map[Key]*Position),
		locks:     make(map[Key]*sync.Mutex),
	}
}

func (s *Store) keyLock(key Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Create inserts a new position under the key lock. If the key is already
// held the call is a logged no-op returning ErrExists, which makes duplicate
// entry signals idempotent.
func (s *Store) Create(key Key, pos Position) error {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	if _, ok := s.positions[key]; ok {
		s.mu.Unlock()
		observ.Log("position_create_skipped", map[string]any{"key": key.String()})
		return ErrExists
	}
	pos.MFEBp = 0
	pos.MFEAt = pos.EntryAt
	s.positions[key] = &pos
	n := len(s.positions)
	s.mu.Unlock()

	observ.SetOpenPositions(n)
	observ.Log("position_created", map[string]any{
		"key":   key.String(),
		"entry": pos.EntryPrice,
		"size":  pos.Size,
	})
	return nil
}

// Mutate runs fn on a working copy under the key lock and writes it back on
// success. Readers under mu see either the old or the new record, never a
// half-applied one. Returns ErrNotFound if the key is vacant.
func (s *Store) Mutate(key Key, fn func(p *Position) error) error {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	pos, ok := s.positions[key]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	cp := *pos
	s.mu.Unlock()

	if err := fn(&cp); err != nil {
		return err
	}
	s.writeBack(key, cp)
	return nil
}

// MutateWithRemote runs fn under the key lock with the exchange's current
// size for the key. The remote lookup is retried up to the configured bound
// with a short backoff; if the exchange still reports no position, the local
// record is cleared and ErrRemoteGone returned. The remote call happens
// before any local change, never while holding the global lock.
func (s *Store) MutateWithRemote(ctx context.Context, key Key, fn func(p *Position, remoteSize float64) error) error {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	pos, ok := s.positions[key]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	cp := *pos
	s.mu.Unlock()

	remoteSize, found, err := s.remoteSize(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		s.removeLocked(key, "remote_gone")
		return ErrRemoteGone
	}
	if err := fn(&cp, remoteSize); err != nil {
		return err
	}
	s.writeBack(key, cp)
	return nil
}

// writeBack stores the mutated copy if the key is still present. Caller
// holds the key lock, so no other mutation can interleave.
func (s *Store) writeBack(key Key, cp Position) {
	s.mu.Lock()
	if cur, ok := s.positions[key]; ok {
		*cur = cp
	}
	s.mu.Unlock()
}

// remoteSize fetches the exchange's size for key with bounded retries.
func (s *Store) remoteSize(ctx context.Context, key Key) (float64, bool, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			observ.IncRemoteRetry()
			select {
			case <-ctx.Done():
				return 0, false, ctx.Err()
			case <-time.After(s.backoff):
			}
		}
		remote, err := s.client.GetOpenPositions(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		for _, r := range remote {
			if r.Symbol == key.Symbol && r.Side == key.Side && r.Size > 0 {
				return r.Size, true, nil
			}
		}
		// Clean response without the key: retry in case the exchange view
		// lags the fill, then conclude gone.
		lastErr = nil
	}
	if lastErr != nil {
		return 0, false, lastErr
	}
	return 0, false, nil
}

// Delete removes the record; safe to call when absent.
func (s *Store) Delete(key Key, reason string) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()
	s.removeLocked(key, reason)
}

// removeLocked deletes the record. Caller holds the key lock.
func (s *Store) removeLocked(key Key, reason string) {
	s.mu.Lock()
	_, existed := s.positions[key]
	delete(s.positions, key)
	n := len(s.positions)
	s.mu.Unlock()

	if existed {
		observ.SetOpenPositions(n)
		observ.Log("position_removed", map[string]any{"key": key.String(), "reason": reason})
	}
}

// Get returns a copy of the position, if present.
func (s *Store) Get(key Key) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[key]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Snapshot returns copies of all open positions.
func (s *Store) Snapshot() map[Key]Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Key]Position, len(s.positions))
	for k, p := range s.positions {
		out[k] = *p
	}
	return out
}

// Count returns the number of open positions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}
