// Package observ provides structured logging plus Prometheus metrics.
//
// Primary series updated by the engine:
//   - engine_alerts_total{outcome}        -- admission outcomes (queued|deduped|dropped|parse_fail)
//   - engine_signals_total{type}          -- routed signal types
//   - engine_positions_open               -- current open position count (gauge)
//   - engine_policy_decisions_total{decision,reason} -- monitor decisions
//   - engine_exits_total{reason,side}     -- full closes split by reason and side
//   - engine_queue_depth                  -- ingestion queue depth (gauge)
//   - engine_remote_retries_total         -- remote-state re-fetch attempts
//   - engine_notify_dropped_total         -- notifications lost to a full queue
//
// Registered in init() and served at /metrics in Prometheus text format.
package observ

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_alerts_total",
			Help: "Inbound alerts by admission outcome",
		},
		[]string{"outcome"},
	)

	mtxSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Routed signals by type",
		},
		[]string{"type"},
	)

	mtxOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_positions_open",
			Help: "Currently open positions",
		},
	)

	mtxPolicyDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_policy_decisions_total",
			Help: "Exit-policy decisions by decision and reason",
		},
		[]string{"decision", "reason"},
	)

	// Counts full closes; reasons are signal types or policy reasons like
	// trailing_stop, roi_h_low, plateau_pullback.
	mtxExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exits_total",
			Help: "Position closes split by reason and side",
		},
		[]string{"reason", "side"},
	)

	mtxQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_queue_depth",
			Help: "Ingestion queue depth",
		},
	)

	mtxRemoteRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_remote_retries_total",
			Help: "Remote-state re-fetch attempts during mutations",
		},
	)

	mtxNotifyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_notify_dropped_total",
			Help: "Notifications dropped because the outbound queue was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxAlerts,
		mtxSignals,
		mtxOpenPositions,
		mtxPolicyDecisions,
		mtxExits,
		mtxQueueDepth,
		mtxRemoteRetries,
		mtxNotifyDropped,
	)
}

func IncAlert(outcome string)          { mtxAlerts.WithLabelValues(outcome).Inc() }
func IncSignal(signalType string)      { mtxSignals.WithLabelValues(signalType).Inc() }
func SetOpenPositions(n int)           { mtxOpenPositions.Set(float64(n)) }
func SetQueueDepth(n int)              { mtxQueueDepth.Set(float64(n)) }
func IncRemoteRetry()                  { mtxRemoteRetries.Inc() }
func IncNotifyDropped()                { mtxNotifyDropped.Inc() }
func IncExit(reason, side string)      { mtxExits.WithLabelValues(reason, side).Inc() }
func IncPolicyDecision(d, reason string) {
	mtxPolicyDecisions.WithLabelValues(d, reason).Inc()
}

// MetricsHandler serves the Prometheus exposition endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HealthHandler is a minimal liveness endpoint.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
