package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Timeframe labels accepted throughout the engine.
var Timeframes = []string{"1h", "2h", "3h", "4h", "day"}

type Server struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Gateway struct {
	QueueCapacity    int                `yaml:"queue_capacity"`
	Workers          int                `yaml:"workers"`
	DedupTTLSec      int                `yaml:"dedup_ttl_seconds"`
	BizDedupTTLSec   int                `yaml:"bizdedup_ttl_seconds"`
	DefaultAmountUSD float64            `yaml:"default_amount_usd"`
	ForceDefault     bool               `yaml:"force_default_amount"`
	AmountOverrides  map[string]float64 `yaml:"amount_overrides"` // symbol -> amount
	TPReducePct      map[string]float64 `yaml:"tp_reduce_pct"`    // tp1|tp2|tp3 -> fraction of remote size
	Leverage         int                `yaml:"leverage"`
	AuditPath        string             `yaml:"audit_path"`
}

type Position struct {
	RemoteRetries  int `yaml:"remote_retries"`
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// TimeframeThresholds are the static per-timeframe policy defaults.
type TimeframeThresholds struct {
	MinHoldHours      float64 `yaml:"min_hold_hours"`
	ROIPerHourFloor   float64 `yaml:"roi_per_hour_floor"` // fraction/hour, e.g. 0.02
	PlateauBars       float64 `yaml:"plateau_bars"`
	BarMinutes        int     `yaml:"bar_minutes"`
	MFEPullbackBp     float64 `yaml:"mfe_pullback_bp"`
	EntryGraceSec     int     `yaml:"entry_grace_seconds"`
	FirstBarIgnoreSec int     `yaml:"first_bar_ignore_seconds"`
}

// TrailingTier pairs a profit threshold with the giveback fraction that
// closes the position once reached. Tiers are ordered largest profit first.
type TrailingTier struct {
	Profit   float64 `yaml:"profit"`
	Giveback float64 `yaml:"giveback"`
}

type Policy struct {
	Timeframes         map[string]TimeframeThresholds `yaml:"timeframes"`
	TrailingTiers      []TrailingTier                 `yaml:"trailing_tiers"`
	ConfirmN           int                            `yaml:"confirm_n"`
	MinHoldSec         float64                        `yaml:"min_hold_seconds"`
	MonitorIntervalSec int                            `yaml:"monitor_interval_seconds"`
	ReducePct          float64                        `yaml:"reduce_pct"`
	SymbolTimeframes   map[string]string              `yaml:"symbol_timeframes"` // explicit overrides
}

type Adaptive struct {
	Enabled bool `yaml:"enabled"`
}

type Guard struct {
	MaxOpenPositions int `yaml:"max_open_positions"`
	PollIntervalSec  int `yaml:"poll_interval_seconds"`
}

type Params struct {
	PersistPath string `yaml:"persist_path"`
}

type Exchange struct {
	BaseURL    string  `yaml:"base_url"`
	TimeoutMs  int     `yaml:"timeout_ms"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	RateBurst  int     `yaml:"rate_burst"`
	FeedURL    string  `yaml:"feed_url"` // websocket price feed, optional
	APIKey     string  `yaml:"api_key"`
	APISecret  string  `yaml:"api_secret"`
}

type Notify struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type Root struct {
	Server   Server   `yaml:"server"`
	Gateway  Gateway  `yaml:"gateway"`
	Position Position `yaml:"position"`
	Policy   Policy   `yaml:"policy"`
	Adaptive Adaptive `yaml:"adaptive"`
	Guard    Guard    `yaml:"guard"`
	Params   Params   `yaml:"params"`
	Exchange Exchange `yaml:"exchange"`
	Notify   Notify   `yaml:"notify"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Default returns a fully-defaulted configuration without reading a file.
func Default() Root {
	var c Root
	c.ApplyDefaults()
	return c
}

func (c *Root) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8090"
	}

	if c.Gateway.QueueCapacity == 0 {
		c.Gateway.QueueCapacity = 1000
	}
	if c.Gateway.Workers == 0 {
		c.Gateway.Workers = 4
	}
	if c.Gateway.DedupTTLSec == 0 {
		c.Gateway.DedupTTLSec = 90
	}
	if c.Gateway.BizDedupTTLSec == 0 {
		c.Gateway.BizDedupTTLSec = 10
	}
	if c.Gateway.DefaultAmountUSD == 0 {
		c.Gateway.DefaultAmountUSD = 100
	}
	if c.Gateway.TPReducePct == nil {
		c.Gateway.TPReducePct = map[string]float64{"tp1": 0.30, "tp2": 0.30, "tp3": 0.50}
	}
	if c.Gateway.Leverage == 0 {
		c.Gateway.Leverage = 5
	}

	if c.Position.RemoteRetries == 0 {
		c.Position.RemoteRetries = 3
	}
	if c.Position.RetryBackoffMs == 0 {
		c.Position.RetryBackoffMs = 300
	}

	if c.Policy.Timeframes == nil {
		c.Policy.Timeframes = map[string]TimeframeThresholds{
			"1h":  {MinHoldHours: 0.5, ROIPerHourFloor: 0.020, PlateauBars: 3, BarMinutes: 60, MFEPullbackBp: 80, EntryGraceSec: 300, FirstBarIgnoreSec: 600},
			"2h":  {MinHoldHours: 1.0, ROIPerHourFloor: 0.012, PlateauBars: 3, BarMinutes: 120, MFEPullbackBp: 100, EntryGraceSec: 420, FirstBarIgnoreSec: 900},
			"3h":  {MinHoldHours: 1.5, ROIPerHourFloor: 0.009, PlateauBars: 3, BarMinutes: 180, MFEPullbackBp: 120, EntryGraceSec: 600, FirstBarIgnoreSec: 1200},
			"4h":  {MinHoldHours: 2.0, ROIPerHourFloor: 0.007, PlateauBars: 3, BarMinutes: 240, MFEPullbackBp: 140, EntryGraceSec: 600, FirstBarIgnoreSec: 1800},
			"day": {MinHoldHours: 6.0, ROIPerHourFloor: 0.003, PlateauBars: 2, BarMinutes: 1440, MFEPullbackBp: 200, EntryGraceSec: 900, FirstBarIgnoreSec: 3600},
		}
	}
	if c.Policy.TrailingTiers == nil {
		c.Policy.TrailingTiers = []TrailingTier{
			{Profit: 0.20, Giveback: 0.08},
			{Profit: 0.12, Giveback: 0.12},
			{Profit: 0.06, Giveback: 0.18},
			{Profit: 0.03, Giveback: 0.25},
		}
	}
	if c.Policy.ConfirmN == 0 {
		c.Policy.ConfirmN = 3
	}
	if c.Policy.MinHoldSec == 0 {
		c.Policy.MinHoldSec = 45
	}
	if c.Policy.MonitorIntervalSec == 0 {
		c.Policy.MonitorIntervalSec = 15
	}
	if c.Policy.ReducePct == 0 {
		c.Policy.ReducePct = 0.30
	}

	if c.Guard.MaxOpenPositions == 0 {
		c.Guard.MaxOpenPositions = 120
	}
	if c.Guard.PollIntervalSec == 0 {
		c.Guard.PollIntervalSec = 10
	}

	if c.Params.PersistPath == "" {
		c.Params.PersistPath = "data/params.json"
	}

	if c.Exchange.TimeoutMs == 0 {
		c.Exchange.TimeoutMs = 5000
	}
	if c.Exchange.RatePerSec == 0 {
		c.Exchange.RatePerSec = 8
	}
	if c.Exchange.RateBurst == 0 {
		c.Exchange.RateBurst = 16
	}

	if c.Gateway.AuditPath == "" {
		c.Gateway.AuditPath = "data/alerts.jsonl"
	}
}

func (c *Root) Validate() error {
	for _, tf := range Timeframes {
		tt, ok := c.Policy.Timeframes[tf]
		if !ok {
			return fmt.Errorf("policy.timeframes missing %q", tf)
		}
		if tt.BarMinutes <= 0 {
			return fmt.Errorf("policy.timeframes[%s].bar_minutes must be positive", tf)
		}
	}
	for i := 1; i < len(c.Policy.TrailingTiers); i++ {
		if c.Policy.TrailingTiers[i].Profit >= c.Policy.TrailingTiers[i-1].Profit {
			return fmt.Errorf("policy.trailing_tiers must be ordered largest profit first")
		}
	}
	for sym, tf := range c.Policy.SymbolTimeframes {
		if _, ok := c.Policy.Timeframes[tf]; !ok {
			return fmt.Errorf("policy.symbol_timeframes[%s]: unknown timeframe %q", sym, tf)
		}
	}
	if c.Gateway.QueueCapacity < 1 {
		return fmt.Errorf("gateway.queue_capacity must be at least 1")
	}
	return nil
}
