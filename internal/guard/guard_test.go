package guard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCounter struct {
	n atomic.Int64
}

func (f *fakeCounter) Count() int { return int(f.n.Load()) }

func TestGuardBlocksAtCeiling(t *testing.T) {
	counter := &fakeCounter{}
	ceiling := atomic.Int64{}
	ceiling.Store(2)

	g := New(counter, func() int { return int(ceiling.Load()) }, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)

	if g.IsBlocked() {
		t.Fatal("blocked with an empty book")
	}

	counter.n.Store(2)
	waitFor(t, func() bool { return g.IsBlocked() }, "guard did not block at the ceiling")

	counter.n.Store(1)
	waitFor(t, func() bool { return !g.IsBlocked() }, "guard did not unblock below the ceiling")

	// A live ceiling change is observed on the next poll.
	ceiling.Store(1)
	waitFor(t, func() bool { return g.IsBlocked() }, "guard ignored a lowered ceiling")
}

func TestZeroCeilingNeverBlocks(t *testing.T) {
	counter := &fakeCounter{}
	counter.n.Store(500)
	g := New(counter, func() int { return 0 }, 10*time.Millisecond)
	g.poll()
	if g.IsBlocked() {
		t.Fatal("zero ceiling must disable the guard")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
