package config

import "testing"

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidateInvalidTradingMode(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "invalid-mode"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid trading_mode to fail validation")
	}
}

func TestValidateLiveRequiresWalletKey(t *testing.T) {
	cfg := Default()
	cfg.TradingMode = "live"
	cfg.WalletKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected live mode without wallet key to fail validation")
	}

	cfg.WalletKey = "0xabc"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected live mode with wallet key to pass, got %v", err)
	}
}

func TestValidateInvalidPaperConfig(t *testing.T) {
	cfg := Default()
	cfg.Paper.StartingBalance = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected non-positive paper.starting_balance to fail validation")
	}

	cfg = Default()
	cfg.Paper.SlippagePct = -0.01
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative paper.slippage_pct to fail validation")
	}
}

func TestValidateInvalidSumTarget(t *testing.T) {
	cfg := Default()
	cfg.Trading.DefaultSumTarget = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default_sum_target > 1 to fail validation")
	}

	cfg = Default()
	cfg.Trading.DefaultSumTarget = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected default_sum_target == 0 to fail validation")
	}
}

func TestValidateSharesOrdering(t *testing.T) {
	cfg := Default()
	cfg.Risk.MinShares = 100
	cfg.Risk.MaxShares = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected min_shares > max_shares to fail validation")
	}
}

func TestValidateInvalidRiskPct(t *testing.T) {
	cfg := Default()
	cfg.Risk.MaxBalancePctPerTrade = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected risk.max_balance_pct_per_trade > 1 to fail validation")
	}

	cfg = Default()
	cfg.Risk.CooldownMinutes = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative risk.cooldown_minutes to fail validation")
	}
}
