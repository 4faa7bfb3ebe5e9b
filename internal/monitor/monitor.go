// Package monitor runs the continuous exit-policy loop: every interval it
// reads all open positions, folds in fresh prices, computes this cycle's
// threshold bundles, evaluates the exit policy under confirmation
// hysteresis, and issues reduce/close mutations through the same per-key
// locks the ingestion path uses.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfold/signal-engine/internal/adaptive"
	"github.com/quantfold/signal-engine/internal/config"
	"github.com/quantfold/signal-engine/internal/exchange"
	"github.com/quantfold/signal-engine/internal/notify"
	"github.com/quantfold/signal-engine/internal/observ"
	"github.com/quantfold/signal-engine/internal/params"
	"github.com/quantfold/signal-engine/internal/policy"
	"github.com/quantfold/signal-engine/internal/position"
)

type Monitor struct {
	cfg             config.Policy
	prm             *params.Store
	store           *position.Store
	exch            exchange.Client
	calc            *adaptive.Calculator
	resolver        *policy.TimeframeResolver
	notifier        notify.Notifier
	adaptiveDefault bool
}

func New(cfg config.Policy, adaptiveEnabled bool, prm *params.Store, store *position.Store, exch exchange.Client, calc *adaptive.Calculator, resolver *policy.TimeframeResolver, notifier notify.Notifier) *Monitor {
	return &Monitor{
		cfg:             cfg,
		prm:             prm,
		store:           store,
		exch:            exch,
		calc:            calc,
		resolver:        resolver,
		notifier:        notifier,
		adaptiveDefault: adaptiveEnabled,
	}
}

// Run loops until the context is cancelled. The interval is re-read from the
// parameter store each cycle so overrides take effect on the next sleep.
func (m *Monitor) Run(ctx context.Context) {
	for {
		interval := m.prm.Duration("monitor_interval_sec", time.Duration(m.cfg.MonitorIntervalSec)*time.Second)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			m.Cycle(ctx, time.Now(), interval.Seconds())
		}
	}
}

// Cycle runs one full evaluation pass. Positions are iterated sequentially;
// each remote lookup is synchronous within the iteration, which is bounded
// by the capacity ceiling rather than a scalability concern.
func (m *Monitor) Cycle(ctx context.Context, now time.Time, intervalSec float64) {
	snapshot := m.store.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	// First pass: fetch prices, ratchet MFE under the key lock, and gather
	// the population the adaptive calculator needs.
	prices := make(map[position.Key]float64, len(snapshot))
	obs := make([]adaptive.Observation, 0, len(snapshot))
	for key := range snapshot {
		price, err := m.exch.GetLastPrice(ctx, key.Symbol)
		if err != nil {
			observ.Log("monitor_no_price", map[string]any{"key": key.String(), "error": err.Error()})
			continue
		}
		prices[key] = price

		var updated position.Position
		err = m.store.Mutate(key, func(p *position.Position) error {
			p.ObservePrice(price, now)
			updated = *p
			return nil
		})
		if err != nil {
			continue
		}

		tf := m.resolver.Resolve(key.Symbol, updated.TimeframeHint, updated.Age(now))
		obs = append(obs, adaptive.Observation{
			Key:       key,
			Timeframe: tf,
			LastPrice: price,
			Pos:       updated,
		})
	}

	enabled := m.prm.Bool("adaptive_enabled", m.adaptiveDefault)
	bundles := m.calc.Compute(obs, enabled, now)

	hys := policy.Hysteresis{
		ConfirmN:   m.prm.Int("policy_confirm_n", m.cfg.ConfirmN),
		MinHoldSec: m.prm.Float("policy_min_hold_sec", m.cfg.MinHoldSec),
	}
	roiScale := m.prm.Float("roi_floor_scale", 1.0)

	// Second pass: evaluate and, when confirmed, act.
	for _, o := range obs {
		th, ok := bundles[o.Key]
		if !ok {
			continue
		}
		if roiScale > 0 && roiScale != 1.0 {
			th.ROIPerHourFloor *= roiScale
		}

		dec := policy.Evaluate(policy.Inputs{
			Side:       o.Pos.Side,
			EntryPrice: o.Pos.EntryPrice,
			LastPrice:  prices[o.Key],
			EntryAt:    o.Pos.EntryAt,
			MFEBp:      o.Pos.MFEBp,
			MFEAt:      o.Pos.MFEAt,
			Timeframe:  o.Timeframe,
			Now:        now,
		}, th)
		observ.IncPolicyDecision(string(dec.Action), dec.Reason)

		if dec.Reason == "entry_grace" {
			// The grace window voids any prior streak.
			m.resetHysteresis(o.Key)
			continue
		}

		// Trailing stops fire immediately; everything else goes through
		// confirmation so one noisy tick cannot cut a position.
		if dec.Action == policy.Close && dec.Reason == "trailing_stop" {
			m.close(ctx, o.Key, dec)
			continue
		}

		confirmed := false
		cut := dec.Action != policy.Hold
		merr := m.store.Mutate(o.Key, func(p *position.Position) error {
			st := policy.ConfirmState{Count: p.HitCount, HoldSec: p.HitHoldSec, Reason: p.HitReason}
			confirmed = hys.Update(&st, cut, dec.Reason, intervalSec)
			p.HitCount, p.HitHoldSec, p.HitReason = st.Count, st.HoldSec, st.Reason
			return nil
		})
		if merr != nil || !confirmed {
			continue
		}

		switch dec.Action {
		case policy.Close:
			m.close(ctx, o.Key, dec)
		case policy.Reduce:
			m.reduce(ctx, o.Key, dec)
		}
	}
}

func (m *Monitor) resetHysteresis(key position.Key) {
	_ = m.store.Mutate(key, func(p *position.Position) error {
		p.HitCount, p.HitHoldSec, p.HitReason = 0, 0, ""
		return nil
	})
}

func (m *Monitor) close(ctx context.Context, key position.Key, dec policy.Decision) {
	err := m.store.MutateWithRemote(ctx, key, func(p *position.Position, remoteSize float64) error {
		res, err := m.exch.PlaceReduce(ctx, key.Symbol, key.Side, remoteSize)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("close rejected: %s", res.Detail)
		}
		return nil
	})
	switch err {
	case nil:
		m.store.Delete(key, dec.Reason)
		observ.IncExit(dec.Reason, string(key.Side))
		observ.Log("policy_close", map[string]any{"key": key.String(), "reason": dec.Reason, "detail": dec.ReasonJSON()})
		m.notifier.Notify("policy close", fmt.Sprintf("%s %s closed: %s", key.Symbol, key.Side, dec.Reason))
	case position.ErrNotFound, position.ErrRemoteGone:
	default:
		observ.Log("policy_close_failed", map[string]any{"key": key.String(), "reason": dec.Reason, "error": err.Error()})
		m.notifier.Notify("policy close failed", fmt.Sprintf("%s %s: %v", key.Symbol, key.Side, err))
	}
}

func (m *Monitor) reduce(ctx context.Context, key position.Key, dec policy.Decision) {
	pct := m.cfg.ReducePct
	err := m.store.MutateWithRemote(ctx, key, func(p *position.Position, remoteSize float64) error {
		reduceBy := remoteSize * pct
		res, err := m.exch.PlaceReduce(ctx, key.Symbol, key.Side, reduceBy)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("reduce rejected: %s", res.Detail)
		}
		p.Size = remoteSize - reduceBy
		// Acting on the streak consumes it.
		p.HitCount, p.HitHoldSec, p.HitReason = 0, 0, ""
		return nil
	})
	switch err {
	case nil:
		observ.Log("policy_reduce", map[string]any{"key": key.String(), "reason": dec.Reason, "pct": pct, "detail": dec.ReasonJSON()})
		m.notifier.Notify("policy reduce", fmt.Sprintf("%s %s reduced %.0f%%: %s", key.Symbol, key.Side, pct*100, dec.Reason))
	case position.ErrNotFound, position.ErrRemoteGone:
	default:
		observ.Log("policy_reduce_failed", map[string]any{"key": key.String(), "reason": dec.Reason, "error": err.Error()})
	}
}
