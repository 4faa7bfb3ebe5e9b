// Package adaptive computes per-position exit thresholds relative to the
// current population of open positions, so the policy tightens under book
// congestion and loosens for positions trending better than the book.
package adaptive

import (
	"math"
	"time"

	"github.com/quantfold/signal-engine/internal/config"
	"github.com/quantfold/signal-engine/internal/policy"
	"github.com/quantfold/signal-engine/internal/position"
)

// Calculator derives a Threshold bundle per open position each cycle. When
// disabled it hands back the static per-timeframe defaults unchanged.
type Calculator struct {
	cfg config.Policy

	// congestionRef is the open-position count at which the congestion
	// factor reaches 1.
	congestionRef float64
}

func New(cfg config.Policy) *Calculator {
	return &Calculator{cfg: cfg, congestionRef: 20}
}

// Observation is one open position's performance snapshot for this cycle.
type Observation struct {
	Key       position.Key
	Timeframe string
	LastPrice float64
	Pos       position.Position
}

// Compute returns a threshold bundle per key. enabled=false collapses to
// static defaults for every key.
func (c *Calculator) Compute(obs []Observation, enabled bool, now time.Time) map[position.Key]policy.Thresholds {
	out := make(map[position.Key]policy.Thresholds, len(obs))
	if !enabled {
		for _, o := range obs {
			out[o.Key] = policy.Static(c.cfg, o.Timeframe)
		}
		return out
	}

	rois := make([]float64, len(obs))
	trends := make([]float64, len(obs))
	for i, o := range obs {
		rois[i], trends[i] = scores(o, now)
	}
	roiMean, roiStd := meanStd(rois)
	trendMean, trendStd := meanStd(trends)

	congestion := math.Min(1.5, float64(len(obs))/c.congestionRef)

	for i, o := range obs {
		static := policy.Static(c.cfg, o.Timeframe)
		th := static

		// Above-average trend, in population stddevs, non-negative.
		trendAbove := 0.0
		if trendStd > 0 {
			trendAbove = math.Max(0, (trends[i]-trendMean)/trendStd)
		}
		trendAbove = math.Min(trendAbove, 2.0)

		// Congestion shrinks alpha (tighter floor); a strong own trend
		// grows it (looser floor for positions still working).
		alpha := (1.0 + 0.5*trendAbove) / (1.0 + congestion)

		floor := math.Max(0, roiMean-alpha*roiStd)
		if min := 0.6 * static.ROIPerHourFloor; floor < min {
			floor = min
		}
		th.ROIPerHourFloor = floor

		th.PlateauBars = scaled(static.PlateauBars, trendAbove, congestion, 0.5*static.PlateauBars, 1)
		th.MFEPullbackBp = scaled(static.MFEPullbackBp, trendAbove, congestion, 0.4*static.MFEPullbackBp, 20)

		trail := 1.0 + 0.4*trendAbove - 0.3*congestion
		th.TrailScale = math.Min(1.8, math.Max(0.5, trail))

		out[o.Key] = th
	}
	return out
}

// scores computes (roiPerHour, trendScore) for one observation. The trend
// score blends ROI/hour with the fraction of the MFE gain still retained,
// damped by holding age so stale positions stop looking trendy.
func scores(o Observation, now time.Time) (float64, float64) {
	ageHours := now.Sub(o.Pos.EntryAt).Hours()
	ret := o.Pos.SignedReturnPct(o.LastPrice)

	roiPerHour := 0.0
	if ageHours > 0 {
		roiPerHour = ret / ageHours
	}

	retained := 0.0
	if mfe := o.Pos.MFEBp / 10000; mfe > 0 {
		retained = ret / mfe
	}

	damp := 1.0 / (1.0 + math.Log(1.0+math.Max(0, ageHours)))
	trend := damp * (10*roiPerHour + retained)
	trend = math.Min(3.0, math.Max(-3.0, trend))
	return roiPerHour, trend
}

// scaled grows a static default with trend, shrinks it with congestion, and
// applies both a relative and an absolute floor.
func scaled(static, trendAbove, congestion, relFloor, absFloor float64) float64 {
	v := static * (1.0 + 0.5*trendAbove) / (1.0 + 0.5*congestion)
	if v < relFloor {
		v = relFloor
	}
	if v < absFloor {
		v = absFloor
	}
	return v
}

// meanStd returns population mean and standard deviation; with fewer than
// two samples the deviation is zero and thresholds collapse to the mean.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	varSum := 0.0
	for _, x := range xs {
		d := x - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / float64(len(xs)))
}
