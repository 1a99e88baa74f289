// Package config loads and validates the trader's YAML configuration
// (SPEC_FULL.md §6), following the teacher's internal/config shape:
// Default() seeds every option, LoadFile() merges YAML over the
// defaults, and ApplyEnv() is the ONLY path the wallet key can reach
// the running config through.
//
// Numeric fields stay float64 here, matching the teacher's config
// idiom; callers convert to decimal.Decimal when constructing the
// component configs that do money math (fees, risk, paper).
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// WalletKey is never populated from YAML (the yaml:"-" tag skips
	// it); ApplyEnv is its only source.
	WalletKey string `yaml:"-"`

	TradingMode string `yaml:"trading_mode"`
	DryRun      bool   `yaml:"dry_run"`
	LogLevel    string `yaml:"log_level"`

	API      APIConfig      `yaml:"api"`
	Trading  TradingConfig  `yaml:"trading"`
	Risk     RiskConfig     `yaml:"risk"`
	Paper    PaperConfig    `yaml:"paper"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type APIConfig struct {
	ClobEndpoint   string `yaml:"clob_endpoint"`
	GammaEndpoint  string `yaml:"gamma_endpoint"`
	ChainID        int    `yaml:"chain_id"`
	UseBinance     bool   `yaml:"use_binance"`
	MaxPriceAgeSecs int   `yaml:"max_price_age_secs"`
}

type TradingConfig struct {
	Assets               []string `yaml:"assets"`
	Duration             string   `yaml:"duration"`
	DefaultShares        float64  `yaml:"default_shares"`
	DefaultSumTarget     float64  `yaml:"default_sum_target"`
	DefaultDipThreshold  float64  `yaml:"default_dip_threshold"`
	WindowMinutes        int      `yaml:"window_minutes"`
	MaxCycles            int      `yaml:"max_cycles"`
	DumpWindowMs         int      `yaml:"dump_window_ms"`
	UseMakerOrders       bool     `yaml:"use_maker_orders"`
	MakerFallbackToTaker bool     `yaml:"maker_fallback_to_taker"`
	TakerFeeRate         float64  `yaml:"taker_fee_rate"`
	MaxSpreadPct         float64  `yaml:"max_spread_pct"`
	GTCFillTimeoutMs     int      `yaml:"gtc_fill_timeout_ms"`
	GTCPollIntervalMs    int      `yaml:"gtc_poll_interval_ms"`
}

type RiskConfig struct {
	MaxBalancePctPerTrade   float64       `yaml:"max_balance_pct_per_trade"`
	MinShares               float64       `yaml:"min_shares"`
	MaxShares               float64       `yaml:"max_shares"`
	ConsecutiveLossLimit    int           `yaml:"consecutive_loss_limit"`
	CooldownMinutes         int           `yaml:"cooldown_minutes"`
	EmergencyEnabled        bool          `yaml:"emergency_enabled"`
	ExitBeforeExpiryMinutes int `yaml:"exit_before_expiry_minutes"`
}

type PaperConfig struct {
	Enabled          bool    `yaml:"enabled"`
	StartingBalance  float64 `yaml:"starting_balance"`
	SimulateFees     bool    `yaml:"simulate_fees"`
	SimulateSlippage bool    `yaml:"simulate_slippage"`
	SlippagePct      float64 `yaml:"slippage_pct"`
	LogFile          string  `yaml:"log_file"`
	RecordData       bool    `yaml:"record_data"`
	DataDir          string  `yaml:"data_dir"`
	RecordIntervalMs int     `yaml:"record_interval_ms"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

func Default() Config {
	return Config{
		TradingMode: "paper",
		DryRun:      true,
		LogLevel:    "info",
		API: APIConfig{
			ChainID:         137,
			UseBinance:      true,
			MaxPriceAgeSecs: 10,
		},
		Trading: TradingConfig{
			Assets:               []string{"BTC"},
			Duration:             "15m",
			DefaultShares:        20,
			DefaultSumTarget:     0.95,
			DefaultDipThreshold:  0.20,
			WindowMinutes:        5,
			MaxCycles:            1,
			DumpWindowMs:         3000,
			UseMakerOrders:       true,
			MakerFallbackToTaker: true,
			TakerFeeRate:         0.0625,
			MaxSpreadPct:         0.10,
			GTCFillTimeoutMs:     30000,
			GTCPollIntervalMs:    1000,
		},
		Risk: RiskConfig{
			MaxBalancePctPerTrade:   0.05,
			MinShares:               5,
			MaxShares:               100,
			ConsecutiveLossLimit:    3,
			CooldownMinutes:         360,
			EmergencyEnabled:        true,
			ExitBeforeExpiryMinutes: 3,
		},
		Paper: PaperConfig{
			Enabled:          true,
			StartingBalance:  1000,
			SimulateFees:     true,
			SimulateSlippage: true,
			SlippagePct:      0.02,
			RecordData:       true,
			RecordIntervalMs: 1000,
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv is the only path the wallet private key can enter the
// config. It is never read from YAML (SPEC_FULL.md §6).
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TRADER_WALLET_KEY"); v != "" {
		c.WalletKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("TRADER_TRADING_MODE")); v != "" {
		c.TradingMode = strings.ToLower(v)
	}
	if v := os.Getenv("TRADER_DRY_RUN"); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
}

func (c Config) IsLive() bool {
	return strings.ToLower(strings.TrimSpace(c.TradingMode)) == "live"
}
