package policy

// ConfirmState is the per-position hysteresis record the monitor carries
// between cycles: a consecutive-hit counter and a decayed cumulative
// hit-time in seconds.
type ConfirmState struct {
	Count   int
	HoldSec float64
	Reason  string
}

// Hysteresis is the confirmation discipline for the continuous monitor. A
// cut must be seen on ConfirmN consecutive cycles and its cumulative hit
// time must reach MinHoldSec before it is acted on. A miss resets the streak
// but only decays the hit time, so intermittently-true conditions still
// trigger eventually.
type Hysteresis struct {
	ConfirmN   int
	MinHoldSec float64
	// DecayFrac is the fraction of the cycle interval subtracted from the
	// hit time on a non-confirming cycle.
	DecayFrac float64
}

// Update folds one cycle's observation into st and reports whether the cut
// is confirmed this cycle. intervalSec is the monitor's cycle length.
func (h Hysteresis) Update(st *ConfirmState, cut bool, reason string, intervalSec float64) bool {
	decay := h.DecayFrac
	if decay <= 0 {
		decay = 0.5
	}

	if !cut {
		st.Count = 0
		st.HoldSec -= decay * intervalSec
		if st.HoldSec < 0 {
			st.HoldSec = 0
		}
		return false
	}

	if st.Reason != reason {
		// A different cut condition starts its own streak; accumulated hold
		// time carries over since the position has been marginal either way.
		st.Count = 0
		st.Reason = reason
	}
	st.Count++
	st.HoldSec += intervalSec

	return st.Count >= h.ConfirmN && st.HoldSec >= h.MinHoldSec
}

// Reset clears all hysteresis state, used when the entry grace window makes
// any prior observation void.
func (h Hysteresis) Reset(st *ConfirmState) {
	st.Count = 0
	st.HoldSec = 0
	st.Reason = ""
}
