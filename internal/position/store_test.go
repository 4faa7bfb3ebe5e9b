package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quantfold/signal-engine/internal/exchange"
)

// flakyClient fails GetOpenPositions a configurable number of times before
// returning a canned book.
type flakyClient struct {
	mu        sync.Mutex
	failures  int
	calls     int
	positions []exchange.RemotePosition
}

func (f *flakyClient) GetOpenPositions(context.Context) ([]exchange.RemotePosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient")
	}
	return f.positions, nil
}

func (f *flakyClient) GetLastPrice(context.Context, string) (float64, error) {
	return 0, exchange.ErrNoPrice
}

func (f *flakyClient) PlaceEntry(context.Context, string, exchange.Side, float64, int) (exchange.Result, error) {
	return exchange.Result{Success: true}, nil
}

func (f *flakyClient) PlaceReduce(context.Context, string, exchange.Side, float64) (exchange.Result, error) {
	return exchange.Result{Success: true}, nil
}

func newPos(symbol string, side exchange.Side) Position {
	return Position{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: 100,
		Size:       1,
		EntryAt:    time.Now(),
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	s := NewStore(&flakyClient{}, 3, time.Millisecond)
	key := Key{Symbol: "BTCUSDT", Side: exchange.Long}

	if err := s.Create(key, newPos("BTCUSDT", exchange.Long)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.Create(key, newPos("BTCUSDT", exchange.Long)); err != ErrExists {
		t.Fatalf("second create: got %v, want ErrExists", err)
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1", s.Count())
	}

	// Opposite side is an independent key.
	short := Key{Symbol: "BTCUSDT", Side: exchange.Short}
	if err := s.Create(short, newPos("BTCUSDT", exchange.Short)); err != nil {
		t.Fatalf("short create: %v", err)
	}
	if s.Count() != 2 {
		t.Fatalf("count = %d, want 2", s.Count())
	}
}

func TestMutateSerializesPerKey(t *testing.T) {
	s := NewStore(&flakyClient{}, 3, time.Millisecond)
	key := Key{Symbol: "ETHUSDT", Side: exchange.Long}
	if err := s.Create(key, newPos("ETHUSDT", exchange.Long)); err != nil {
		t.Fatal(err)
	}

	// Concurrent read-modify-write increments must never be lost.
	const goroutines = 16
	const perGoroutine = 50
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_ = s.Mutate(key, func(p *Position) error {
					v := p.HitCount
					p.HitCount = v + 1
					return nil
				})
			}
		}()
	}
	wg.Wait()

	p, ok := s.Get(key)
	if !ok {
		t.Fatal("position gone")
	}
	if p.HitCount != goroutines*perGoroutine {
		t.Fatalf("hit count = %d, want %d (lost updates)", p.HitCount, goroutines*perGoroutine)
	}
}

func TestMutateMissingKey(t *testing.T) {
	s := NewStore(&flakyClient{}, 3, time.Millisecond)
	err := s.Mutate(Key{Symbol: "NONE", Side: exchange.Long}, func(*Position) error { return nil })
	if err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	// Delete of a vacant key is safe.
	s.Delete(Key{Symbol: "NONE", Side: exchange.Long}, "test")
}

func TestMutateWithRemoteRetriesThenClears(t *testing.T) {
	// Remote reports no position: after bounded retries the local record is
	// cleared and ErrRemoteGone returned.
	client := &flakyClient{positions: nil}
	s := NewStore(client, 3, time.Millisecond)
	key := Key{Symbol: "SOLUSDT", Side: exchange.Long}
	if err := s.Create(key, newPos("SOLUSDT", exchange.Long)); err != nil {
		t.Fatal(err)
	}

	err := s.MutateWithRemote(context.Background(), key, func(*Position, float64) error {
		t.Fatal("fn must not run when remote is gone")
		return nil
	})
	if err != ErrRemoteGone {
		t.Fatalf("got %v, want ErrRemoteGone", err)
	}
	if _, ok := s.Get(key); ok {
		t.Fatal("local record should be cleared")
	}
}

func TestMutateWithRemoteRecoversFromTransientErrors(t *testing.T) {
	client := &flakyClient{
		failures: 2,
		positions: []exchange.RemotePosition{
			{Symbol: "SOLUSDT", Side: exchange.Long, Size: 2.5, EntryPrice: 100},
		},
	}
	s := NewStore(client, 3, time.Millisecond)
	key := Key{Symbol: "SOLUSDT", Side: exchange.Long}
	if err := s.Create(key, newPos("SOLUSDT", exchange.Long)); err != nil {
		t.Fatal(err)
	}

	var seen float64
	err := s.MutateWithRemote(context.Background(), key, func(p *Position, remoteSize float64) error {
		seen = remoteSize
		p.Size = remoteSize
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if seen != 2.5 {
		t.Fatalf("remote size = %g, want 2.5", seen)
	}
}

func TestMutateWithRemoteExhaustedErrors(t *testing.T) {
	client := &flakyClient{failures: 100}
	s := NewStore(client, 3, time.Millisecond)
	key := Key{Symbol: "SOLUSDT", Side: exchange.Long}
	if err := s.Create(key, newPos("SOLUSDT", exchange.Long)); err != nil {
		t.Fatal(err)
	}

	err := s.MutateWithRemote(context.Background(), key, func(*Position, float64) error { return nil })
	if err == nil || err == ErrRemoteGone {
		t.Fatalf("got %v, want transient error surfaced", err)
	}
	if _, ok := s.Get(key); !ok {
		t.Fatal("local record must survive a lookup failure")
	}
}

func TestMFEMonotonic(t *testing.T) {
	p := newPos("BTCUSDT", exchange.Long)
	now := time.Now()

	ticks := []float64{101, 105, 103, 110, 90, 108}
	var prev float64
	for i, price := range ticks {
		p.ObservePrice(price, now.Add(time.Duration(i)*time.Second))
		if p.MFEBp < prev {
			t.Fatalf("MFE decreased: %g -> %g at tick %d", prev, p.MFEBp, i)
		}
		prev = p.MFEBp
	}
	// 110 is the peak: +10% = 1000bp.
	if p.MFEBp != 1000 {
		t.Fatalf("MFE = %gbp, want 1000", p.MFEBp)
	}

	// Short side: favorable is price down.
	sp := newPos("BTCUSDT", exchange.Short)
	sp.ObservePrice(90, now)
	if sp.MFEBp != 1000 {
		t.Fatalf("short MFE = %gbp, want 1000", sp.MFEBp)
	}
}
