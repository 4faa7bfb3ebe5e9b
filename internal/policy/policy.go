// Package policy decides, for one open position per evaluation cycle,
// whether to hold, partially reduce, or fully close. Evaluate is pure: same
// inputs, same decision. Confirmation hysteresis for the continuous monitor
// lives in hysteresis.go.
package policy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantfold/signal-engine/internal/config"
	"github.com/quantfold/signal-engine/internal/exchange"
)

type Action string

const (
	Hold   Action = "hold"
	Reduce Action = "reduce"
	Close  Action = "close"
)

// Inputs is everything one evaluation cycle sees for a position.
type Inputs struct {
	Side       exchange.Side
	EntryPrice float64
	LastPrice  float64
	EntryAt    time.Time
	MFEBp      float64 // max favorable excursion, basis points
	MFEAt      time.Time
	Timeframe  string
	Now        time.Time
}

// Thresholds is the bundle a single evaluation runs against, either the
// static per-timeframe defaults or an adaptive bundle.
type Thresholds struct {
	ROIPerHourFloor   float64
	PlateauBars       float64
	BarMinutes        int
	MFEPullbackBp     float64
	MinHoldHours      float64
	EntryGraceSec     int
	FirstBarIgnoreSec int
	TrailScale        float64
	Tiers             []config.TrailingTier
}

// Static builds the threshold bundle from the per-timeframe config defaults.
func Static(cfg config.Policy, timeframe string) Thresholds {
	tt := cfg.Timeframes[timeframe]
	return Thresholds{
		ROIPerHourFloor:   tt.ROIPerHourFloor,
		PlateauBars:       tt.PlateauBars,
		BarMinutes:        tt.BarMinutes,
		MFEPullbackBp:     tt.MFEPullbackBp,
		MinHoldHours:      tt.MinHoldHours,
		EntryGraceSec:     tt.EntryGraceSec,
		FirstBarIgnoreSec: tt.FirstBarIgnoreSec,
		TrailScale:        1.0,
		Tiers:             cfg.TrailingTiers,
	}
}

// Detail explains a decision; marshaled to JSON for logs and notifications.
type Detail struct {
	Timeframe     string  `json:"timeframe"`
	AgeHours      float64 `json:"age_hours"`
	ReturnPct     float64 `json:"return_pct"`
	ROIPerHour    float64 `json:"roi_per_hour"`
	MFEBp         float64 `json:"mfe_bp"`
	RetraceBp     float64 `json:"retrace_bp"`
	GivebackFrac  float64 `json:"giveback_frac,omitempty"`
	TierProfit    float64 `json:"tier_profit,omitempty"`
	PlateauMin    float64 `json:"plateau_minutes,omitempty"`
	ChecksPassed  []string `json:"checks_passed"`
	ChecksTripped []string `json:"checks_tripped"`
}

type Decision struct {
	Action Action
	Reason string
	Detail Detail
}

// ReasonJSON renders the explainability detail.
func (d Decision) ReasonJSON() string {
	b, _ := json.Marshal(d.Detail)
	return string(b)
}

// Evaluate runs the exit checks in fixed order, first match wins:
// entry-grace floor, trailing stop, ROI-per-hour floor, plateau/pullback.
func Evaluate(in Inputs, th Thresholds) Decision {
	ageHours := in.Now.Sub(in.EntryAt).Hours()

	ret := signedReturn(in)
	roiPerHour := 0.0
	if ageHours > 0 {
		roiPerHour = ret / ageHours
	}
	retraceBp := in.MFEBp - ret*10000

	detail := Detail{
		Timeframe:  in.Timeframe,
		AgeHours:   ageHours,
		ReturnPct:  ret,
		ROIPerHour: roiPerHour,
		MFEBp:      in.MFEBp,
		RetraceBp:  retraceBp,
	}

	// Entry protection: hard floor, no cut during the opening grace window.
	grace := th.EntryGraceSec
	if th.FirstBarIgnoreSec > grace {
		grace = th.FirstBarIgnoreSec
	}
	if in.Now.Sub(in.EntryAt) < time.Duration(grace)*time.Second {
		detail.ChecksPassed = append(detail.ChecksPassed, "entry_grace")
		return Decision{Action: Hold, Reason: "entry_grace", Detail: detail}
	}

	// 1. Trailing stop, largest profit tier first.
	mfe := in.MFEBp / 10000
	trailScale := th.TrailScale
	if trailScale <= 0 {
		trailScale = 1.0
	}
	for _, tier := range th.Tiers {
		if mfe < tier.Profit {
			continue
		}
		giveback := 0.0
		if mfe > 0 {
			giveback = (mfe - ret) / mfe
		}
		if giveback >= tier.Giveback*trailScale {
			detail.ChecksTripped = append(detail.ChecksTripped, "trailing_stop")
			detail.GivebackFrac = giveback
			detail.TierProfit = tier.Profit
			return Decision{Action: Close, Reason: "trailing_stop", Detail: detail}
		}
		// Highest reached tier decides; lower tiers use looser givebacks.
		break
	}
	detail.ChecksPassed = append(detail.ChecksPassed, "trailing_stop")

	// 2. ROI-per-hour floor, only past the minimum hold.
	if ageHours >= th.MinHoldHours {
		if roiPerHour < th.ROIPerHourFloor {
			detail.ChecksTripped = append(detail.ChecksTripped, "roi_floor")
			return Decision{
				Action: Close,
				Reason: fmt.Sprintf("roi_h_low_%s", in.Timeframe),
				Detail: detail,
			}
		}
		detail.ChecksPassed = append(detail.ChecksPassed, "roi_floor")
	}

	// 3. Plateau and pullback.
	plateauAfter := time.Duration(th.PlateauBars*float64(th.BarMinutes)) * time.Minute
	sinceMFE := in.Now.Sub(in.MFEAt)
	plateau := sinceMFE > plateauAfter
	pullback := retraceBp > th.MFEPullbackBp
	if plateau {
		detail.PlateauMin = sinceMFE.Minutes()
	}
	switch {
	case plateau && pullback:
		detail.ChecksTripped = append(detail.ChecksTripped, "plateau", "pullback")
		return Decision{Action: Close, Reason: "plateau_pullback", Detail: detail}
	case plateau:
		detail.ChecksTripped = append(detail.ChecksTripped, "plateau")
		return Decision{Action: Reduce, Reason: "plateau_reduce", Detail: detail}
	case pullback && ageHours >= th.MinHoldHours:
		detail.ChecksTripped = append(detail.ChecksTripped, "pullback")
		return Decision{Action: Reduce, Reason: "mfe_pullback_reduce", Detail: detail}
	}

	detail.ChecksPassed = append(detail.ChecksPassed, "plateau", "pullback")
	return Decision{Action: Hold, Reason: "hold", Detail: detail}
}

func signedReturn(in Inputs) float64 {
	if in.EntryPrice <= 0 {
		return 0
	}
	r := (in.LastPrice - in.EntryPrice) / in.EntryPrice
	if in.Side == exchange.Short {
		r = -r
	}
	return r
}
