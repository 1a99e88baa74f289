package config

import "testing"

func TestApplyRolloutPhasePaper(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "live"
	cfg.DryRun = true

	if err := ApplyRolloutPhase(&cfg, "paper"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "paper" {
		t.Fatalf("expected paper mode, got %q", cfg.TradingMode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for paper phase")
	}
}

func TestApplyRolloutPhaseShadow(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "paper"
	cfg.DryRun = false

	if err := ApplyRolloutPhase(&cfg, "shadow"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if !cfg.DryRun {
		t.Fatal("expected dry_run=true for shadow phase")
	}
}

func TestApplyRolloutPhaseLiveSmallClamps(t *testing.T) {
	cfg := Default()
	cfg.Risk.MaxShares = 500
	cfg.Risk.MaxBalancePctPerTrade = 0.2

	if err := ApplyRolloutPhase(&cfg, "live-small"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for live-small phase")
	}
	if cfg.Risk.MaxShares != 20 {
		t.Fatalf("expected max_shares clamped to 20, got %f", cfg.Risk.MaxShares)
	}
	if cfg.Risk.MaxBalancePctPerTrade != 0.02 {
		t.Fatalf("expected max_balance_pct_per_trade clamped to 0.02, got %f", cfg.Risk.MaxBalancePctPerTrade)
	}
}

func TestApplyRolloutPhaseLive(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "paper"
	cfg.DryRun = true

	if err := ApplyRolloutPhase(&cfg, "live"); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != "live" {
		t.Fatalf("expected live mode, got %q", cfg.TradingMode)
	}
	if cfg.DryRun {
		t.Fatal("expected dry_run=false for live phase")
	}
}

func TestApplyRolloutPhaseUnknown(t *testing.T) {
	cfg := Default()
	if err := ApplyRolloutPhase(&cfg, "unknown-phase"); err == nil {
		t.Fatal("expected error for unknown rollout phase")
	}
}

func TestApplyRolloutPhaseEmptyIsNoop(t *testing.T) {
	cfg := Default()
	want := cfg.TradingMode
	if err := ApplyRolloutPhase(&cfg, ""); err != nil {
		t.Fatalf("ApplyRolloutPhase: %v", err)
	}
	if cfg.TradingMode != want {
		t.Fatal("expected empty phase to leave config untouched")
	}
}
