package config

import (
	"fmt"
	"strings"
)

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.TradingMode))
	if mode != "" && mode != "paper" && mode != "live" {
		return fmt.Errorf("trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}
	if mode == "live" && c.WalletKey == "" {
		return fmt.Errorf("live trading requires TRADER_WALLET_KEY in the environment")
	}

	if c.Paper.StartingBalance <= 0 {
		return fmt.Errorf("paper.starting_balance must be > 0, got %f", c.Paper.StartingBalance)
	}
	if c.Paper.SlippagePct < 0 {
		return fmt.Errorf("paper.slippage_pct must be >= 0, got %f", c.Paper.SlippagePct)
	}

	if c.Trading.DefaultSumTarget <= 0 || c.Trading.DefaultSumTarget > 1 {
		return fmt.Errorf("trading.default_sum_target must be within (0,1], got %f", c.Trading.DefaultSumTarget)
	}
	if c.Trading.TakerFeeRate < 0 {
		return fmt.Errorf("trading.taker_fee_rate must be >= 0, got %f", c.Trading.TakerFeeRate)
	}
	if c.Trading.GTCFillTimeoutMs <= 0 {
		return fmt.Errorf("trading.gtc_fill_timeout_ms must be > 0, got %d", c.Trading.GTCFillTimeoutMs)
	}
	if c.Trading.GTCPollIntervalMs <= 0 {
		return fmt.Errorf("trading.gtc_poll_interval_ms must be > 0, got %d", c.Trading.GTCPollIntervalMs)
	}

	if c.Risk.MinShares <= 0 || c.Risk.MaxShares <= 0 || c.Risk.MinShares > c.Risk.MaxShares {
		return fmt.Errorf("risk.min_shares/max_shares must satisfy 0 < min <= max, got min=%f max=%f", c.Risk.MinShares, c.Risk.MaxShares)
	}
	if c.Risk.MaxBalancePctPerTrade <= 0 || c.Risk.MaxBalancePctPerTrade > 1 {
		return fmt.Errorf("risk.max_balance_pct_per_trade must be within (0,1], got %f", c.Risk.MaxBalancePctPerTrade)
	}
	if c.Risk.ConsecutiveLossLimit < 0 {
		return fmt.Errorf("risk.consecutive_loss_limit must be >= 0, got %d", c.Risk.ConsecutiveLossLimit)
	}
	if c.Risk.CooldownMinutes < 0 {
		return fmt.Errorf("risk.cooldown_minutes must be >= 0, got %d", c.Risk.CooldownMinutes)
	}
	if c.Risk.ExitBeforeExpiryMinutes <= 0 {
		return fmt.Errorf("risk.exit_before_expiry_minutes must be > 0, got %d", c.Risk.ExitBeforeExpiryMinutes)
	}

	return nil
}
