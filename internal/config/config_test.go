package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if len(c.Policy.TrailingTiers) == 0 {
		t.Fatal("no trailing tiers")
	}
	for _, tf := range Timeframes {
		if _, ok := c.Policy.Timeframes[tf]; !ok {
			t.Fatalf("missing timeframe %s", tf)
		}
	}
}

func TestLoadAppliesDefaultsOverPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("gateway:\n  queue_capacity: 42\npolicy:\n  confirm_n: 7\n")
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Gateway.QueueCapacity != 42 {
		t.Errorf("queue_capacity = %d, want 42", c.Gateway.QueueCapacity)
	}
	if c.Policy.ConfirmN != 7 {
		t.Errorf("confirm_n = %d, want 7", c.Policy.ConfirmN)
	}
	if c.Gateway.Workers != 4 {
		t.Errorf("workers default = %d, want 4", c.Gateway.Workers)
	}
	if c.Policy.MonitorIntervalSec != 15 {
		t.Errorf("monitor interval default = %d, want 15", c.Policy.MonitorIntervalSec)
	}
}

func TestValidateRejectsBadTierOrder(t *testing.T) {
	c := Default()
	c.Policy.TrailingTiers = []TrailingTier{
		{Profit: 0.05, Giveback: 0.2},
		{Profit: 0.10, Giveback: 0.1},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for tiers not ordered largest first")
	}
}

func TestValidateRejectsUnknownSymbolTimeframe(t *testing.T) {
	c := Default()
	c.Policy.SymbolTimeframes = map[string]string{"BTCUSDT": "5m"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown timeframe override")
	}
}
