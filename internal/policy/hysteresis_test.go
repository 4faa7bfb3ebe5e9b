package policy

import "testing"

func TestConfirmationRequiresConsecutiveCycles(t *testing.T) {
	h := Hysteresis{ConfirmN: 3, MinHoldSec: 30}
	st := &ConfirmState{}

	// N-1 confirming cycles followed by a miss never confirms.
	for i := 0; i < 2; i++ {
		if h.Update(st, true, "roi_h_low_1h", 15) {
			t.Fatalf("confirmed after %d cycles", i+1)
		}
	}
	if h.Update(st, false, "", 15) {
		t.Fatal("confirmed on a non-confirming cycle")
	}
	if st.Count != 0 {
		t.Fatalf("streak = %d after miss, want 0", st.Count)
	}

	// The streak restarts; hit time decayed but not reset, so the third
	// consecutive cycle clears both gates (22.5 + 45 > 30).
	for i := 0; i < 2; i++ {
		if h.Update(st, true, "roi_h_low_1h", 15) {
			t.Fatalf("confirmed after restart cycle %d", i+1)
		}
	}
	if !h.Update(st, true, "roi_h_low_1h", 15) {
		t.Fatalf("not confirmed after 3 consecutive cycles (hold=%.1fs)", st.HoldSec)
	}
}

func TestConfirmationNeedsHoldTime(t *testing.T) {
	// With a short interval the streak gate clears before the hold gate.
	h := Hysteresis{ConfirmN: 2, MinHoldSec: 60}
	st := &ConfirmState{}

	if h.Update(st, true, "plateau_reduce", 15) {
		t.Fatal("confirmed at 15s hold")
	}
	if h.Update(st, true, "plateau_reduce", 15) {
		t.Fatal("confirmed at 30s hold with 60s minimum")
	}
	if h.Update(st, true, "plateau_reduce", 15) {
		t.Fatal("confirmed at 45s hold")
	}
	if !h.Update(st, true, "plateau_reduce", 15) {
		t.Fatal("not confirmed at 60s hold")
	}
}

func TestHoldTimeDecaysOnMiss(t *testing.T) {
	h := Hysteresis{ConfirmN: 2, MinHoldSec: 1000}
	st := &ConfirmState{}

	h.Update(st, true, "x", 15)
	h.Update(st, true, "x", 15)
	if st.HoldSec != 30 {
		t.Fatalf("hold = %g, want 30", st.HoldSec)
	}

	h.Update(st, false, "", 15)
	if st.HoldSec != 22.5 {
		t.Fatalf("hold after decay = %g, want 22.5", st.HoldSec)
	}
	if st.Count != 0 {
		t.Fatalf("streak after miss = %d, want 0", st.Count)
	}

	// Decay floors at zero.
	for i := 0; i < 10; i++ {
		h.Update(st, false, "", 15)
	}
	if st.HoldSec != 0 {
		t.Fatalf("hold = %g, want 0", st.HoldSec)
	}
}

func TestReasonChangeRestartsStreak(t *testing.T) {
	h := Hysteresis{ConfirmN: 2, MinHoldSec: 0}
	st := &ConfirmState{}

	h.Update(st, true, "roi_h_low_1h", 15)
	if h.Update(st, true, "plateau_reduce", 15) {
		t.Fatal("different reason must not inherit the streak")
	}
	if !h.Update(st, true, "plateau_reduce", 15) {
		t.Fatal("second consecutive cycle of the new reason should confirm")
	}
}

func TestReset(t *testing.T) {
	h := Hysteresis{ConfirmN: 2, MinHoldSec: 10}
	st := &ConfirmState{Count: 5, HoldSec: 100, Reason: "x"}
	h.Reset(st)
	if st.Count != 0 || st.HoldSec != 0 || st.Reason != "" {
		t.Fatalf("reset left state %+v", st)
	}
}
