package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/api"
	"github.com/arbbot/dipsum-trader/internal/config"
	"github.com/arbbot/dipsum-trader/internal/events"
	"github.com/arbbot/dipsum-trader/internal/exchange"
	"github.com/arbbot/dipsum-trader/internal/feed"
	"github.com/arbbot/dipsum-trader/internal/market"
	"github.com/arbbot/dipsum-trader/internal/notify"
	"github.com/arbbot/dipsum-trader/internal/paper"
	"github.com/arbbot/dipsum-trader/internal/risk"
	sigsrc "github.com/arbbot/dipsum-trader/internal/signal"
	"github.com/arbbot/dipsum-trader/internal/strategy"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	rolloutPhase := flag.String("rollout", "", "rollout phase override: paper|shadow|live-small|live")
	apiAddr := flag.String("api-addr", "127.0.0.1:8090", "status API listen address")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log := slog.Default()
		log.Warn("config file unreadable, using defaults", "path", *cfgPath, "err", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	if *rolloutPhase != "" {
		if err := config.ApplyRolloutPhase(&cfg, *rolloutPhase); err != nil {
			slog.Default().Error("rollout phase", "err", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		slog.Default().Error("config invalid", "err", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	log.Info("dipsum-trader starting", "trading_mode", cfg.TradingMode, "dry_run", cfg.DryRun)

	bus := events.New()
	bus.Subscribe(events.KindError, func(ev events.Event) {
		if ev.Err != nil {
			log.Error("controller error", "market_id", ev.MarketID, "err", ev.Err)
		}
	})

	var adapter exchange.Adapter
	if cfg.IsLive() {
		adapter = exchange.NewLiveAdapter(exchange.LiveConfig{
			ClobEndpoint: cfg.API.ClobEndpoint,
			DryRun:       cfg.DryRun,
		}, log)
	} else {
		adapter = exchange.NewFake()
	}

	// The signal detector (orderbook watching, dip/surge/mispricing
	// classification) is supplied externally; NoopSource is the
	// integration point until one is wired in.
	src := sigsrc.NewNoopSource()

	sizer := risk.New(risk.Config{
		MaxBalancePctPerTrade: decimal.NewFromFloat(cfg.Risk.MaxBalancePctPerTrade),
		MinShares:             decimal.NewFromFloat(cfg.Risk.MinShares),
		MaxShares:             decimal.NewFromFloat(cfg.Risk.MaxShares),
		ConsecutiveLossLimit:  cfg.Risk.ConsecutiveLossLimit,
		CooldownMinutes:       time.Duration(cfg.Risk.CooldownMinutes) * time.Minute,
	})

	paperSim := paper.NewSimulator(paper.Config{
		StartingBalance:  decimal.NewFromFloat(cfg.Paper.StartingBalance),
		SimulateFees:     cfg.Paper.SimulateFees,
		SimulateSlippage: cfg.Paper.SimulateSlippage,
		SlippagePct:      decimal.NewFromFloat(cfg.Paper.SlippagePct),
		FeeRate:          decimal.NewFromFloat(cfg.Trading.TakerFeeRate),
		LogFile:          cfg.Paper.LogFile,
	}, bus)

	agg := feed.New(src, adapter, bus)

	notifier := notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if notifier.Enabled() {
		notifier.Subscribe(bus)
		log.Info("telegram notifications enabled")
	}

	ctrl := strategy.New(strategy.Config{
		SumTarget:            decimal.NewFromFloat(cfg.Trading.DefaultSumTarget),
		DipThreshold:         decimal.NewFromFloat(cfg.Trading.DefaultDipThreshold),
		UseMakerOrders:       cfg.Trading.UseMakerOrders,
		MakerFallbackToTaker: cfg.Trading.MakerFallbackToTaker,
		TakerFeeRate:         decimal.NewFromFloat(cfg.Trading.TakerFeeRate),
		MaxSpreadPct:         decimal.NewFromFloat(cfg.Trading.MaxSpreadPct),
		FillTimeout:          time.Duration(cfg.Trading.GTCFillTimeoutMs) * time.Millisecond,
		PollInterval:         time.Duration(cfg.Trading.GTCPollIntervalMs) * time.Millisecond,
		ExitBeforeExpiryMins: cfg.Risk.ExitBeforeExpiryMinutes,
		PaperMode:            !cfg.IsLive(),
	}, adapter, src, sizer, paperSim, bus, agg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiServer := api.NewServer(*apiAddr, ctrl, sizer, paperSim)
	if err := apiServer.Start(ctx); err != nil {
		log.Error("api server", "err", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The aggregator tracks one market at a time; onMarketStarted resets
	// its rolling history as the controller rotates markets. A zero
	// Market is a harmless starting point until the first market_started
	// event arrives from the signal source.
	go agg.Run(ctx, market.Market{})
	go ctrl.Run(ctx)

	<-sigCh
	log.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("api server shutdown", "err", err)
	}

	stats := ctrl.Stats()
	log.Info("session complete",
		"cycles_completed", stats.CyclesCompleted,
		"cycles_won", stats.CyclesWon,
		"cycles_abandoned", stats.CyclesAbandoned,
		"total_profit", stats.TotalProfit.String(),
		"emergency_exits", stats.EmergencyExits)
}
