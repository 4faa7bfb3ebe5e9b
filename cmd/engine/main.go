package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantfold/signal-engine/internal/adaptive"
	"github.com/quantfold/signal-engine/internal/config"
	"github.com/quantfold/signal-engine/internal/exchange"
	"github.com/quantfold/signal-engine/internal/gateway"
	"github.com/quantfold/signal-engine/internal/guard"
	"github.com/quantfold/signal-engine/internal/monitor"
	"github.com/quantfold/signal-engine/internal/notify"
	"github.com/quantfold/signal-engine/internal/observ"
	"github.com/quantfold/signal-engine/internal/params"
	"github.com/quantfold/signal-engine/internal/policy"
	"github.com/quantfold/signal-engine/internal/position"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			observ.Log("config_default", map[string]any{"path": *configPath})
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	prm, err := params.New(cfg.Params.PersistPath, map[string]string{
		"entry_amount_usdt":    fmt.Sprintf("%g", cfg.Gateway.DefaultAmountUSD),
		"entry_leverage":       fmt.Sprintf("%d", cfg.Gateway.Leverage),
		"max_open_positions":   fmt.Sprintf("%d", cfg.Guard.MaxOpenPositions),
		"dedup_ttl_sec":        fmt.Sprintf("%d", cfg.Gateway.DedupTTLSec),
		"bizdedup_ttl_sec":     fmt.Sprintf("%d", cfg.Gateway.BizDedupTTLSec),
		"policy_confirm_n":     fmt.Sprintf("%d", cfg.Policy.ConfirmN),
		"policy_min_hold_sec":  fmt.Sprintf("%g", cfg.Policy.MinHoldSec),
		"monitor_interval_sec": fmt.Sprintf("%d", cfg.Policy.MonitorIntervalSec),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "params: %v\n", err)
		os.Exit(1)
	}

	var exch exchange.Client = exchange.NewRESTClient(cfg.Exchange)
	var feed *exchange.PriceFeed
	if cfg.Exchange.FeedURL != "" {
		feed = exchange.NewPriceFeed(exch, cfg.Exchange.FeedURL)
		exch = feed
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Enabled && cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}

	store := position.NewStore(exch, cfg.Position.RemoteRetries,
		time.Duration(cfg.Position.RetryBackoffMs)*time.Millisecond)

	capGuard := guard.New(store, func() int {
		return prm.Int("max_open_positions", cfg.Guard.MaxOpenPositions)
	}, time.Duration(cfg.Guard.PollIntervalSec)*time.Second)

	audit, err := gateway.NewAudit(cfg.Gateway.AuditPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		os.Exit(1)
	}

	gw := gateway.New(cfg.Gateway, prm, store, exch, capGuard, notifier, audit)
	resolver := policy.NewTimeframeResolver(cfg.Policy.SymbolTimeframes)
	calc := adaptive.New(cfg.Policy)
	mon := monitor.New(cfg.Policy, cfg.Adaptive.Enabled, prm, store, exch, calc, resolver, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if feed != nil {
		feed.Start(ctx)
	}
	capGuard.Start(ctx)
	gw.Start(ctx)
	go mon.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/alert", gw.Handler())
	mux.Handle("/params", prm.Handler())
	mux.Handle("/metrics", observ.MetricsHandler())
	mux.Handle("/healthz", observ.HealthHandler())

	server := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	go func() {
		observ.Log("engine_listening", map[string]any{"addr": cfg.Server.ListenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observ.Log("server_error", map[string]any{"error": err.Error()})
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	observ.Log("engine_stopping", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
	gw.Wait()
	if feed != nil {
		feed.Close()
	}
	observ.Log("engine_stopped", nil)
}
