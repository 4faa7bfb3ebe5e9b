// Package params holds live-tunable runtime parameters: process defaults
// overlaid with durable overrides. Overrides survive restarts; dependents
// re-read values every evaluation cycle rather than caching them.
package params

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/quantfold/signal-engine/internal/observ"
)

// AllowedKeys is the full set of keys Set will accept. Unknown keys in a
// patch are ignored, not rejected.
var AllowedKeys = map[string]bool{
	"entry_amount_usdt":    true,
	"entry_leverage":       true,
	"max_open_positions":   true,
	"dedup_ttl_sec":        true,
	"bizdedup_ttl_sec":     true,
	"policy_confirm_n":     true,
	"policy_min_hold_sec":  true,
	"monitor_interval_sec": true,
	"adaptive_enabled":     true,
	"tp_reduce_pct":        true,
	"roi_floor_scale":      true,
}

// Store merges defaults with persisted overrides under a single lock.
type Store struct {
	mu        sync.RWMutex
	defaults  map[string]string
	overrides map[string]string
	path      string
	subs      []func(map[string]string)
}

// New creates a Store backed by the given persistence path. Previously
// persisted overrides are loaded immediately; a missing file is not an error.
func New(path string, defaults map[string]string) (*Store, error) {
	s := &Store{
		defaults:  map[string]string{},
		overrides: map[string]string{},
		path:      path,
	}
	for k, v := range defaults {
		if AllowedKeys[k] {
			s.defaults[k] = v
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read params: %w", err)
		}
		return s, nil
	}
	var persisted map[string]string
	if err := json.Unmarshal(b, &persisted); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	for k, v := range persisted {
		if AllowedKeys[k] {
			s.overrides[k] = v
		}
	}
	return s, nil
}

// GetAll returns defaults overlaid with overrides.
func (s *Store) GetAll() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.defaults)+len(s.overrides))
	for k, v := range s.defaults {
		out[k] = v
	}
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

// Get returns the effective value for a single key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.overrides[key]; ok {
		return v, true
	}
	v, ok := s.defaults[key]
	return v, ok
}

// Set applies an override patch. Only allow-listed keys are accepted; the
// accepted subset is returned. The merged override set is persisted before
// subscribers are notified, so a crash never loses an acknowledged patch.
func (s *Store) Set(patch map[string]string) (map[string]string, error) {
	accepted := map[string]string{}

	s.mu.Lock()
	for k, v := range patch {
		if !AllowedKeys[k] {
			continue
		}
		s.overrides[k] = v
		accepted[k] = v
	}
	if len(accepted) == 0 {
		s.mu.Unlock()
		return accepted, nil
	}
	if err := s.persistUnsafe(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	effective := map[string]string{}
	for k, v := range s.defaults {
		effective[k] = v
	}
	for k, v := range s.overrides {
		effective[k] = v
	}
	subs := make([]func(map[string]string), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	observ.Log("params_set", map[string]any{"accepted": accepted})
	for _, fn := range subs {
		fn(effective)
	}
	return accepted, nil
}

// Subscribe registers a callback invoked after every successful Set with the
// full effective parameter map. Callbacks run outside the store lock.
func (s *Store) Subscribe(fn func(map[string]string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// persistUnsafe writes the override set via temp file + rename so a partial
// write never corrupts the durable copy. Caller holds s.mu.
func (s *Store) persistUnsafe() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("mkdir params dir: %w", err)
	}
	b, err := json.MarshalIndent(s.overrides, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("write temp params: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename params: %w", err)
	}
	return nil
}

// Float reads a key and parses it as float64, returning fallback on any miss
// or parse failure.
func (s *Store) Float(key string, fallback float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// Int reads a key and parses it as int, returning fallback on any miss or
// parse failure.
func (s *Store) Int(key string, fallback int) int {
	v, ok := s.Get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Bool reads a key as a boolean ("true"/"1" are true), returning fallback on
// a miss.
func (s *Store) Bool(key string, fallback bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return fallback
	}
	return v == "true" || v == "1"
}

// Duration reads a key holding whole seconds.
func (s *Store) Duration(key string, fallback time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Second
}
