// Package gateway turns the noisy inbound alert stream into deduplicated,
// ordered work: parse with fallbacks, normalize, dedup, enqueue onto a
// bounded queue, and route from a fixed worker pool. Per-key exclusivity is
// not the workers' job; the position store enforces it downstream.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/signal-engine/internal/config"
	"github.com/quantfold/signal-engine/internal/exchange"
	"github.com/quantfold/signal-engine/internal/guard"
	"github.com/quantfold/signal-engine/internal/notify"
	"github.com/quantfold/signal-engine/internal/observ"
	"github.com/quantfold/signal-engine/internal/params"
	"github.com/quantfold/signal-engine/internal/position"
)

// Admission outcome statuses returned to the sender at enqueue time.
const (
	StatusQueued    = "queued"
	StatusDeduped   = "deduped"
	StatusDropped   = "dropped"
	StatusParseFail = "parse_fail"
)

// closeTypes map inbound signal types to full closes; the type is recorded
// verbatim as the close reason.
var closeTypes = map[string]bool{
	"sl1": true, "sl2": true, "failCut": true, "emaExit": true,
	"liquidation": true, "close": true, "exit": true,
}

var partialTypes = map[string]bool{"tp1": true, "tp2": true, "tp3": true}

// Outcome is the synchronous admission response; it completes at enqueue
// time, never at mutation time.
type Outcome struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	ID     string `json:"id,omitempty"`
}

type work struct {
	id    string
	alert Alert
}

type Gateway struct {
	cfg      config.Gateway
	prm      *params.Store
	store    *position.Store
	exch     exchange.Client
	guard    *guard.Guard
	notifier notify.Notifier
	audit    *Audit

	queue    chan work
	content  *dedupStore
	biz      *dedupStore
	wg       sync.WaitGroup
}

func New(cfg config.Gateway, prm *params.Store, store *position.Store, exch exchange.Client, g *guard.Guard, notifier notify.Notifier, audit *Audit) *Gateway {
	gw := &Gateway{
		cfg:      cfg,
		prm:      prm,
		store:    store,
		exch:     exch,
		guard:    g,
		notifier: notifier,
		audit:    audit,
		queue:    make(chan work, cfg.QueueCapacity),
		content:  newDedupStore(time.Duration(cfg.DedupTTLSec) * time.Second),
		biz:      newDedupStore(time.Duration(cfg.BizDedupTTLSec) * time.Second),
	}
	prm.Subscribe(func(map[string]string) {
		gw.content.SetTTL(prm.Duration("dedup_ttl_sec", time.Duration(cfg.DedupTTLSec)*time.Second))
		gw.biz.SetTTL(prm.Duration("bizdedup_ttl_sec", time.Duration(cfg.BizDedupTTLSec)*time.Second))
	})
	return gw
}

// Start launches the worker pool and the dedup prune loop.
func (g *Gateway) Start(ctx context.Context) {
	for i := 0; i < g.cfg.Workers; i++ {
		g.wg.Add(1)
		go g.worker(ctx)
	}
	go g.pruneLoop(ctx)
}

// Wait blocks until all workers have drained after context cancellation.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// Admit runs the admission path for one raw payload: parse, normalize,
// content-dedup, enqueue. The caller acknowledges with the returned outcome
// regardless; nothing on this path is ever retried by the sender.
func (g *Gateway) Admit(raw []byte) Outcome {
	alert, err := ParsePayload(raw)
	if err != nil {
		observ.IncAlert(StatusParseFail)
		observ.Log("alert_parse_fail", map[string]any{"error": err.Error(), "bytes": len(raw)})
		return Outcome{OK: false, Status: StatusParseFail, Reason: err.Error()}
	}

	alert.Symbol = NormalizeSymbol(alert.Symbol)
	alert.Side = string(NormalizeSide(alert.Side))
	if alert.Symbol == "" {
		observ.IncAlert(StatusParseFail)
		return Outcome{OK: false, Status: StatusParseFail, Reason: "empty symbol after normalization"}
	}

	now := time.Now()
	if g.content.SeenWithin(contentHash(alert), now) {
		observ.IncAlert(StatusDeduped)
		observ.Log("alert_deduped", map[string]any{"layer": "content", "symbol": alert.Symbol, "type": alert.Type})
		return Outcome{OK: true, Status: StatusDeduped, Reason: "content"}
	}

	id := uuid.NewString()
	select {
	case g.queue <- work{id: id, alert: alert}:
		observ.IncAlert(StatusQueued)
		observ.SetQueueDepth(len(g.queue))
		if g.audit != nil {
			if err := g.audit.Append(id, alert, StatusQueued); err != nil {
				observ.Log("audit_write_fail", map[string]any{"error": err.Error()})
			}
		}
		return Outcome{OK: true, Status: StatusQueued, ID: id}
	default:
		observ.IncAlert(StatusDropped)
		observ.Log("alert_dropped", map[string]any{"reason": "queue_full", "symbol": alert.Symbol, "type": alert.Type})
		g.notifier.Notify("queue full", fmt.Sprintf("dropped %s %s %s", alert.Type, alert.Symbol, alert.Side))
		return Outcome{OK: false, Status: StatusDropped, Reason: "queue_full"}
	}
}

func (g *Gateway) worker(ctx context.Context) {
	defer g.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-g.queue:
			observ.SetQueueDepth(len(g.queue))
			g.handle(ctx, w)
		}
	}
}

// handle routes one dequeued alert. Business dedup happens here, at handling
// time: a business duplicate may occupy a worker briefly but performs no
// side effect.
func (g *Gateway) handle(ctx context.Context, w work) {
	a := w.alert
	if g.biz.SeenWithin(businessKey(a), time.Now()) {
		observ.IncAlert(StatusDeduped)
		observ.Log("alert_deduped", map[string]any{"layer": "business", "symbol": a.Symbol, "type": a.Type, "id": w.id})
		return
	}

	observ.IncSignal(a.Type)
	key := position.Key{Symbol: a.Symbol, Side: exchange.Side(a.Side)}

	switch {
	case a.Type == "entry":
		g.handleEntry(ctx, w.id, key, a)
	case partialTypes[a.Type]:
		g.handlePartial(ctx, w.id, key, a.Type)
	case closeTypes[a.Type]:
		g.handleClose(ctx, w.id, key, a.Type)
	default:
		observ.Log("alert_unknown_type", map[string]any{"type": a.Type, "symbol": a.Symbol, "id": w.id})
		g.notifier.Notify("unknown signal type", fmt.Sprintf("%s for %s %s", a.Type, a.Symbol, a.Side))
	}
}

func (g *Gateway) handleEntry(ctx context.Context, id string, key position.Key, a Alert) {
	if g.guard != nil && g.guard.IsBlocked() {
		observ.Log("entry_capacity_blocked", map[string]any{"key": key.String(), "id": id})
		g.notifier.Notify("entry skipped", fmt.Sprintf("capacity ceiling reached, skipped %s %s", a.Symbol, a.Side))
		return
	}
	if _, exists := g.store.Get(key); exists {
		observ.Log("entry_exists", map[string]any{"key": key.String(), "id": id})
		return
	}

	amount := g.resolveAmount(a)
	leverage := g.prm.Int("entry_leverage", g.cfg.Leverage)

	price, err := g.exch.GetLastPrice(ctx, key.Symbol)
	if err != nil {
		observ.Log("entry_no_price", map[string]any{"key": key.String(), "error": err.Error(), "id": id})
		g.notifier.Notify("entry aborted", fmt.Sprintf("no price for %s: %v", key.Symbol, err))
		return
	}

	res, err := g.exch.PlaceEntry(ctx, key.Symbol, key.Side, amount, leverage)
	if err != nil {
		observ.Log("entry_error", map[string]any{"key": key.String(), "error": err.Error(), "id": id})
		g.notifier.Notify("entry failed", fmt.Sprintf("%s %s: %v", a.Symbol, a.Side, err))
		return
	}
	if !res.Success {
		observ.Log("entry_rejected", map[string]any{"key": key.String(), "detail": res.Detail, "id": id})
		g.notifier.Notify("entry rejected", fmt.Sprintf("%s %s: %s", a.Symbol, a.Side, res.Detail))
		return
	}

	now := time.Now()
	err = g.store.Create(key, position.Position{
		Symbol:        key.Symbol,
		Side:          key.Side,
		EntryPrice:    price,
		Size:          amount * float64(leverage) / price,
		AmountUSD:     amount,
		EntryAt:       now,
		TimeframeHint: a.Timeframe,
	})
	if err == position.ErrExists {
		return
	}
	observ.Log("entry_filled", map[string]any{"key": key.String(), "amount": amount, "price": price, "id": id})
}

func (g *Gateway) handlePartial(ctx context.Context, id string, key position.Key, tier string) {
	pct := g.cfg.TPReducePct[tier]
	if scale := g.prm.Float("tp_reduce_pct", 0); scale > 0 {
		pct = scale
	}
	if pct <= 0 || pct > 1 {
		observ.Log("partial_bad_pct", map[string]any{"tier": tier, "pct": pct, "id": id})
		return
	}

	err := g.store.MutateWithRemote(ctx, key, func(p *position.Position, remoteSize float64) error {
		reduceBy := remoteSize * pct
		res, err := g.exch.PlaceReduce(ctx, key.Symbol, key.Side, reduceBy)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("reduce rejected: %s", res.Detail)
		}
		p.Size = remoteSize - reduceBy
		observ.Log("partial_reduced", map[string]any{"key": key.String(), "tier": tier, "by": reduceBy, "left": p.Size, "id": id})
		return nil
	})
	g.reportMutation(id, key, tier, err)
}

func (g *Gateway) handleClose(ctx context.Context, id string, key position.Key, reason string) {
	err := g.store.MutateWithRemote(ctx, key, func(p *position.Position, remoteSize float64) error {
		res, err := g.exch.PlaceReduce(ctx, key.Symbol, key.Side, remoteSize)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("close rejected: %s", res.Detail)
		}
		observ.IncExit(reason, string(key.Side))
		observ.Log("position_closed", map[string]any{"key": key.String(), "reason": reason, "size": remoteSize, "id": id})
		g.notifier.Notify("position closed", fmt.Sprintf("%s %s closed (%s)", key.Symbol, key.Side, reason))
		return nil
	})
	if err == nil {
		g.store.Delete(key, reason)
		return
	}
	g.reportMutation(id, key, reason, err)
}

// reportMutation classifies mutation failures per the error taxonomy: a
// vacant or remotely-gone key is routine; anything else is notified.
func (g *Gateway) reportMutation(id string, key position.Key, signalType string, err error) {
	switch err {
	case nil, position.ErrNotFound:
		return
	case position.ErrRemoteGone:
		observ.Log("mutation_remote_gone", map[string]any{"key": key.String(), "type": signalType, "id": id})
		return
	default:
		observ.Log("mutation_failed", map[string]any{"key": key.String(), "type": signalType, "error": err.Error(), "id": id})
		if strings.Contains(err.Error(), "rejected") {
			g.notifier.Notify("execution rejected", fmt.Sprintf("%s on %s: %v", signalType, key.String(), err))
		} else {
			g.notifier.Notify("remote state unavailable", fmt.Sprintf("%s on %s: %v", signalType, key.String(), err))
		}
	}
}

// resolveAmount derives the entry amount: per-symbol override table, then
// the force-default flag, then the request value, then the configured
// default (itself live-tunable).
func (g *Gateway) resolveAmount(a Alert) float64 {
	if amt, ok := g.cfg.AmountOverrides[a.Symbol]; ok && amt > 0 {
		return amt
	}
	def := g.prm.Float("entry_amount_usdt", g.cfg.DefaultAmountUSD)
	if g.cfg.ForceDefault {
		return def
	}
	if a.Amount > 0 {
		return a.Amount
	}
	return def
}

func (g *Gateway) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			g.content.Prune(now)
			g.biz.Prune(now)
		}
	}
}
