// Package strategy implements the arbitrage controller (C6): the
// per-market state machine that owns admission gates, leg execution,
// fill polling, cycle finalization, emergency exit, and market
// rotation cleanup.
//
// The event-loop shape — one goroutine processing a signal channel and
// timer ticks via select, with all state mutation confined to the loop
// body — is grounded on the teacher's internal/app.App.Run and on
// 0xtitan6-polymarket-mm's engine.Engine.manageMarkets. The leg-2
// admission/fill logic is grounded on the teacher's
// strategy.Taker.DetectConvergence (YES+NO sum-vs-$1 gate).
package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/events"
	"github.com/arbbot/dipsum-trader/internal/exchange"
	"github.com/arbbot/dipsum-trader/internal/fees"
	"github.com/arbbot/dipsum-trader/internal/feed"
	"github.com/arbbot/dipsum-trader/internal/market"
	"github.com/arbbot/dipsum-trader/internal/paper"
	"github.com/arbbot/dipsum-trader/internal/risk"
	"github.com/arbbot/dipsum-trader/internal/signal"
)

// Config holds the trading.* tunables the controller consumes directly
// (SPEC_FULL.md §6).
type Config struct {
	SumTarget              decimal.Decimal
	DipThreshold           decimal.Decimal
	UseMakerOrders         bool
	MakerFallbackToTaker   bool
	TakerFeeRate           decimal.Decimal
	MaxSpreadPct           decimal.Decimal
	FillTimeout            time.Duration
	PollInterval           time.Duration
	ExitBeforeExpiryMins   int
	PaperMode              bool
}

// Stats is the spec's Strategy stats (§3). Mutated only by the controller.
type Stats struct {
	CyclesCompleted int
	CyclesAbandoned int
	CyclesWon       int
	TotalProfit     decimal.Decimal
	EmergencyExits  int
}

func (s Stats) WinRate() decimal.Decimal {
	denom := s.CyclesCompleted + s.CyclesAbandoned
	if denom == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.CyclesWon)).Div(decimal.NewFromInt(int64(denom)))
}

type pendingOrder struct {
	orderID   string
	intent    intent
	side      market.Side
	tokenID   string
	price     decimal.Decimal
	qty       decimal.Decimal
	startedAt time.Time
	polling   bool
}

type intent int

const (
	intentLeg1Buy intent = iota
	intentLeg2Buy
	intentLeg1ExitSell
	intentLeg2ExitSell
)

// Controller is the arbitrage controller (C6).
type Controller struct {
	cfg     Config
	adapter exchange.Adapter
	src     signal.Source
	sizer   *risk.Manager
	paperSim *paper.Simulator
	bus     *events.Bus
	agg     *feed.Aggregator
	log     *slog.Logger

	cycle             market.Cycle
	expectedOrderIDs  map[string]bool
	pendingLeg1       *pendingOrder
	pendingLeg2       *pendingOrder
	leg1ExitOrderID   string
	leg2ExitOrderID   string
	emergencyDeadline time.Time
	stats             Stats
	currentRoundID    string

	balance decimal.Decimal // live-mode collateral cache; paper uses paperSim's own balance
}

func New(cfg Config, adapter exchange.Adapter, src signal.Source, sizer *risk.Manager, paperSim *paper.Simulator, bus *events.Bus, agg *feed.Aggregator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg: cfg, adapter: adapter, src: src, sizer: sizer, paperSim: paperSim, bus: bus, agg: agg,
		log:              logger.With("component", "controller"),
		expectedOrderIDs: make(map[string]bool),
		cycle:            market.Cycle{State: market.StateWatching},
	}
}

// Run drives the event loop until ctx is cancelled. Signals are
// processed in delivery order (§5 ordering guarantee 1); a signal
// received mid fill-poll-tick handling is queued behind it by Go's
// channel semantics.
func (c *Controller) Run(ctx context.Context) {
	emergencyTicker := time.NewTicker(1 * time.Second)
	pollTicker := time.NewTicker(c.pollIntervalOrDefault())
	defer emergencyTicker.Stop()
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.src.Events():
			if !ok {
				return
			}
			c.handleEvent(ctx, ev)
		case <-emergencyTicker.C:
			c.checkEmergency(ctx)
		case <-pollTicker.C:
			c.pollPending(ctx)
		}
	}
}

func (c *Controller) pollIntervalOrDefault() time.Duration {
	if c.cfg.PollInterval <= 0 {
		return time.Second
	}
	return c.cfg.PollInterval
}

func (c *Controller) handleEvent(ctx context.Context, ev signal.Event) {
	switch ev.Kind {
	case signal.EventMarketStarted:
		c.onMarketStarted(ctx, ev)
	case signal.EventNewRound:
		c.onNewRound(ev)
	case signal.EventSignal:
		c.onSignal(ctx, ev)
	case signal.EventExecution:
		c.onExecution(ctx, ev)
	case signal.EventRoundComplete:
		c.onRoundComplete(ctx, ev)
	case signal.EventError:
		c.bus.Publish(events.Event{Kind: events.KindError, Err: ev.Err})
	}
}

// onSignal runs the leg1/leg2 admission gates in the fixed order
// required by §4.6 and §8 (stale-market rejection precedes entry).
func (c *Controller) onSignal(ctx context.Context, ev signal.Event) {
	if ev.SignalKind == signal.Leg1 {
		c.tryLeg1(ctx, ev)
		return
	}
	c.tryLeg2(ctx, ev)
}

func (c *Controller) tryLeg1(ctx context.Context, ev signal.Event) {
	if c.cycle.State != market.StateWatching {
		return
	}
	if c.cycle.AttemptedThisMarket {
		return
	}
	secondsRemaining := c.cycle.Market.SecondsRemaining(time.Now())
	if secondsRemaining <= float64(c.cfg.ExitBeforeExpiryMins*60) {
		return
	}
	if ev.SourceKind != signal.Dip {
		return
	}
	if c.sizer.IsTradingPaused() {
		return
	}
	balance := c.currentBalance(ctx)
	qty := c.sizer.CalculateShares(balance, ev.CurrentPrice)
	if qty.IsZero() {
		return
	}
	if !priceValid(ev.CurrentPrice) || ev.TokenID != c.cycle.Market.TokenID(ev.DipSide) {
		return
	}

	kind := fees.DecideLeg1OrderKind(ev.CurrentPrice, ev.OppositeAsk, c.cfg.SumTarget, c.cfg.TakerFeeRate, c.cfg.UseMakerOrders, c.cfg.MakerFallbackToTaker)
	c.cycle.AttemptedThisMarket = true
	c.executeLeg1(ctx, ev, market.OrderPlacementKind(kind), qty)
}

func priceValid(p decimal.Decimal) bool {
	return p.GreaterThan(decimal.Zero) && p.LessThan(decimal.NewFromInt(1))
}

func (c *Controller) currentBalance(ctx context.Context) decimal.Decimal {
	if c.cfg.PaperMode {
		return c.paperSim.Snapshot().Balance
	}
	bal, err := c.adapter.CollateralBalance(ctx)
	if err != nil {
		return c.balance
	}
	c.balance = bal
	return bal
}

func (c *Controller) executeLeg1(ctx context.Context, ev signal.Event, kind market.OrderPlacementKind, qty decimal.Decimal) {
	leg := market.Leg{
		Side: ev.DipSide, FillPrice: ev.CurrentPrice, Shares: qty,
		TokenID: ev.TokenID, Kind: kind, BestBid: ev.BestBid, BestAsk: ev.BestAsk,
		FilledAt: time.Now(),
	}

	if c.cfg.PaperMode {
		c.cycle.Leg1 = &leg
		c.cycle.State = market.StateWaitingForHedge
		c.startEmergencyTimer()
		c.src.SetPhase(signal.PhaseLeg1Filled)
		c.paperSim.Buy(leg, c.cycle.Market.ID, ev.BestBid, ev.BestAsk)
		c.bus.Publish(events.Event{Kind: events.KindLeg1Executed, MarketID: c.cycle.Market.ID})
		c.placeExitSellPaper(leg, 1)
		return
	}

	if kind == market.KindTakerMarket {
		notional := qty.Mul(ev.CurrentPrice)
		res, err := c.adapter.CreateMarketOrder(ctx, ev.TokenID, exchange.Buy, notional)
		if err != nil || !res.Success {
			// Order failure resets the cycle but keeps AttemptedThisMarket
			// set (§7), so no retry happens within this market.
			c.cycle.State = market.StateWatching
			return
		}
		leg.FillPrice = ev.BestAsk // observed best ask, not the signal's price
		leg.OrderID = res.OrderID
		c.cycle.Leg1 = &leg
		c.cycle.State = market.StateWaitingForHedge
		c.startEmergencyTimer()
		c.src.SetPhase(signal.PhaseLeg1Filled)
		c.bus.Publish(events.Event{Kind: events.KindLeg1Executed, MarketID: c.cycle.Market.ID})
		c.placeExitSellLive(ctx, leg, 1)
		return
	}

	res, err := c.adapter.CreateLimitOrder(ctx, ev.TokenID, exchange.Buy, ev.BestAsk, qty)
	if err != nil || res.OrderID == "" {
		c.cycle.State = market.StateWatching
		return
	}
	c.expectedOrderIDs[res.OrderID] = true
	c.pendingLeg1 = &pendingOrder{orderID: res.OrderID, intent: intentLeg1Buy, side: ev.DipSide, tokenID: ev.TokenID, price: ev.BestAsk, qty: qty, startedAt: time.Now()}
	c.cycle.State = market.StateLeg1Pending
}

func (c *Controller) tryLeg2(ctx context.Context, ev signal.Event) {
	if c.cycle.State != market.StateWaitingForHedge || c.cycle.Leg1 == nil {
		return
	}
	if c.cycle.Leg1.FillPrice.Add(ev.CurrentPrice).GreaterThan(c.cfg.SumTarget) {
		return
	}
	if !priceValid(ev.CurrentPrice) {
		return
	}

	qty := c.cycle.Leg1.Shares
	leg := market.Leg{
		Side: ev.DipSide, FillPrice: ev.CurrentPrice, Shares: qty,
		TokenID: ev.TokenID, Kind: market.KindMakerLimit, BestBid: ev.BestBid, BestAsk: ev.BestAsk,
		FilledAt: time.Now(),
	}

	if c.cfg.PaperMode {
		c.cycle.Leg2 = &leg
		c.clearEmergencyTimer()
		c.cycle.State = market.StateCompleted
		c.paperSim.Buy(leg, c.cycle.Market.ID, ev.BestBid, ev.BestAsk)
		c.bus.Publish(events.Event{Kind: events.KindLeg2Executed, MarketID: c.cycle.Market.ID})
		c.finalizeCycle(ctx)
		return
	}

	res, err := c.adapter.CreateLimitOrder(ctx, ev.TokenID, exchange.Buy, ev.BestAsk, qty)
	if err != nil || res.OrderID == "" {
		c.cycle.State = market.StateWatching
		return
	}
	c.expectedOrderIDs[res.OrderID] = true
	c.pendingLeg2 = &pendingOrder{orderID: res.OrderID, intent: intentLeg2Buy, side: ev.DipSide, tokenID: ev.TokenID, price: ev.BestAsk, qty: qty, startedAt: time.Now()}
	c.cycle.State = market.StateLeg2Pending
	// The emergency timer keeps running through Leg2Pending (§4.6).
}

func (c *Controller) placeExitSellPaper(leg market.Leg, legNum int) {
	// Recorded but not a real order: a resting sell at 0.99 to harvest
	// the winning side before resolution (glossary: "exit sell at 0.99").
	c.bus.Publish(events.Event{Kind: events.KindLog, MarketID: c.cycle.Market.ID, Message: "paper exit sell recorded"})
}

func (c *Controller) placeExitSellLive(ctx context.Context, leg market.Leg, legNum int) {
	res, err := c.adapter.CreateLimitOrder(ctx, leg.TokenID, exchange.Sell, decimal.NewFromFloat(0.99), leg.Shares)
	if err != nil || res.OrderID == "" {
		return
	}
	if legNum == 1 {
		c.leg1ExitOrderID = res.OrderID
	} else {
		c.leg2ExitOrderID = res.OrderID
	}
}

func (c *Controller) startEmergencyTimer() {
	exitSecs := float64(c.cfg.ExitBeforeExpiryMins * 60)
	c.emergencyDeadline = c.cycle.Market.EndTime.Add(-time.Duration(exitSecs) * time.Second)
}

func (c *Controller) clearEmergencyTimer() {
	c.emergencyDeadline = time.Time{}
}

// checkEmergency implements §4.6's emergency exit trigger, evaluated
// every tick of the 1s emergencyTicker.
func (c *Controller) checkEmergency(ctx context.Context) {
	if c.cycle.Leg1 == nil || c.cycle.Leg2 != nil {
		return
	}
	if c.cycle.State != market.StateWaitingForHedge && c.cycle.State != market.StateLeg2Pending {
		return
	}
	if c.emergencyDeadline.IsZero() || time.Now().Before(c.emergencyDeadline) {
		return
	}
	c.runEmergencyExit(ctx)
}

func (c *Controller) runEmergencyExit(ctx context.Context) {
	c.cycle.State = market.StateEmergencyExit
	c.stats.EmergencyExits++

	if !c.cfg.PaperMode {
		if c.pendingLeg2 != nil {
			_ = c.adapter.CancelOrder(ctx, c.pendingLeg2.orderID)
			delete(c.expectedOrderIDs, c.pendingLeg2.orderID)
			c.pendingLeg2 = nil
		}
		if c.leg1ExitOrderID != "" {
			_ = c.adapter.CancelOrder(ctx, c.leg1ExitOrderID)
			c.leg1ExitOrderID = ""
		}
		notional := c.cycle.Leg1.Shares.Mul(c.lastObservedPrice(c.cycle.Leg1.Side))
		_, _ = c.adapter.CreateMarketOrder(ctx, c.cycle.Leg1.TokenID, exchange.Sell, notional)
	}

	lastPrice := c.lastObservedPrice(c.cycle.Leg1.Side)
	entryValue := c.cycle.Leg1.FillPrice.Mul(c.cycle.Leg1.Shares)
	exitValue := lastPrice.Mul(c.cycle.Leg1.Shares)
	profit := exitValue.Sub(entryValue)

	if c.cfg.PaperMode {
		if lastPrice.IsZero() {
			c.paperSim.AbandonRound(c.cycle.Market.ID)
		} else {
			c.paperSim.Sell(c.cycle.Leg1.Side, c.cycle.Leg1.Shares, lastPrice, c.cycle.Market.ID)
		}
	}

	c.stats.CyclesAbandoned++
	c.stats.TotalProfit = c.stats.TotalProfit.Add(profit)
	c.sizer.RecordResult(profit)
	if c.paperSim != nil {
		c.paperSim.RecordCycle(paper.CycleRecord{Time: time.Now(), MarketID: c.cycle.Market.ID, Status: "emergency_exit", Profit: profit})
	}
	c.bus.Publish(events.Event{Kind: events.KindEmergencyExit, MarketID: c.cycle.Market.ID, Profit: profit})
	c.resetCycle()
}

func (c *Controller) lastObservedPrice(side market.Side) decimal.Decimal {
	if c.agg == nil {
		return decimal.Zero
	}
	p, ok := c.agg.LastPrice(side)
	if !ok {
		return decimal.Zero
	}
	return p
}

// pollPending drives fill polling for whichever legs are pending. Only
// one poll per pending order may be in flight; overlapping ticks are
// skipped via the `polling` flag (§4.6 Fill polling).
func (c *Controller) pollPending(ctx context.Context) {
	if c.pendingLeg1 != nil {
		c.pollOne(ctx, c.pendingLeg1, 1)
	}
	if c.pendingLeg2 != nil {
		c.pollOne(ctx, c.pendingLeg2, 2)
	}
}

func (c *Controller) pollOne(ctx context.Context, po *pendingOrder, legNum int) {
	if po.polling {
		return
	}
	po.polling = true
	defer func() { po.polling = false }()

	state, err := c.adapter.GetOrder(ctx, po.orderID)
	if err != nil {
		return
	}

	switch {
	case state.Status == exchange.StatusFilled:
		c.onFilled(ctx, po, legNum, po.qty)
	case state.Status.IsTerminalNonFilled():
		if state.FilledSize.GreaterThan(decimal.Zero) {
			c.onFilled(ctx, po, legNum, state.FilledSize)
			return
		}
		c.onZeroFillTerminal(po, legNum)
	case state.Status == exchange.StatusPending || state.Status == exchange.StatusOpen || state.Status == exchange.StatusPartiallyFilled:
		if time.Since(po.startedAt) > c.cfg.FillTimeout {
			_ = c.adapter.CancelOrder(ctx, po.orderID)
			c.onZeroFillTerminal(po, legNum)
		}
	}
}

func (c *Controller) onFilled(ctx context.Context, po *pendingOrder, legNum int, filledSize decimal.Decimal) {
	delete(c.expectedOrderIDs, po.orderID)
	leg := market.Leg{
		Side: po.side, TokenID: po.tokenID, FillPrice: po.price, Shares: filledSize,
		OrderID: po.orderID, FilledAt: time.Now(),
	}
	if legNum == 1 {
		c.pendingLeg1 = nil
		c.cycle.Leg1 = &leg
		c.cycle.State = market.StateWaitingForHedge
		c.startEmergencyTimer()
		c.src.SetPhase(signal.PhaseLeg1Filled)
		c.bus.Publish(events.Event{Kind: events.KindLeg1Executed, MarketID: c.cycle.Market.ID})
		c.placeExitSellLive(ctx, leg, 1)
		return
	}
	c.pendingLeg2 = nil
	c.cycle.Leg2 = &leg
	c.clearEmergencyTimer()
	c.cycle.State = market.StateCompleted
	c.bus.Publish(events.Event{Kind: events.KindLeg2Executed, MarketID: c.cycle.Market.ID})
	c.finalizeCycle(ctx)
}

// onZeroFillTerminal implements the §4.6 fallback branch: leg1 resets
// the cycle to Watching; leg2 triggers an emergency exit of leg1.
func (c *Controller) onZeroFillTerminal(po *pendingOrder, legNum int) {
	delete(c.expectedOrderIDs, po.orderID)
	if legNum == 1 {
		c.pendingLeg1 = nil
		c.cycle.State = market.StateWatching
		return
	}
	c.pendingLeg2 = nil
	c.runEmergencyExit(context.Background())
}

// finalizeCycle is the idempotent cycle-finalization path (§4.6 Cycle
// finalization). Guarded by cycle.Finalized so a polling success and a
// later execution event can never double-count P&L.
func (c *Controller) finalizeCycle(ctx context.Context) {
	if c.cycle.Finalized {
		return
	}
	c.cycle.Finalized = true

	leg1, leg2 := c.cycle.Leg1, c.cycle.Leg2
	payout := decimal.Min(leg1.Shares, leg2.Shares)
	totalCost := leg1.FillPrice.Mul(leg1.Shares).Add(leg2.FillPrice.Mul(leg2.Shares))
	profit := payout.Sub(totalCost)
	profitPct := decimal.Zero
	if totalCost.GreaterThan(decimal.Zero) {
		profitPct = profit.Div(totalCost)
	}

	c.stats.CyclesCompleted++
	if profit.GreaterThan(decimal.Zero) {
		c.stats.CyclesWon++
	}
	c.stats.TotalProfit = c.stats.TotalProfit.Add(profit)
	c.sizer.RecordResult(profit)

	if c.paperSim != nil {
		c.paperSim.RecordCycle(paper.CycleRecord{
			Time: time.Now(), MarketID: c.cycle.Market.ID, Status: "completed",
			Profit: profit, ProfitPct: profitPct,
		})
	}
	c.bus.Publish(events.Event{Kind: events.KindCycleComplete, MarketID: c.cycle.Market.ID, Status: "completed", Profit: profit, ProfitPct: profitPct})

	if !c.cfg.PaperMode {
		c.placeExitSellLive(ctx, *leg2, 2)
	}
	c.resetCycle()
}

func (c *Controller) resetCycle() {
	attempted := c.cycle.AttemptedThisMarket
	finalized := c.cycle.Finalized
	m := c.cycle.Market
	c.cycle = market.Cycle{Market: m, State: market.StateWatching, AttemptedThisMarket: attempted, Finalized: finalized}
	c.pendingLeg1 = nil
	c.pendingLeg2 = nil
	c.clearEmergencyTimer()
}

func (c *Controller) onExecution(ctx context.Context, ev signal.Event) {
	if ev.LegNum == 1 && c.pendingLeg1 != nil && ev.OrderID == c.pendingLeg1.orderID {
		if ev.Success {
			c.onFilled(ctx, c.pendingLeg1, 1, c.pendingLeg1.qty)
		}
		return
	}
	if ev.LegNum == 2 && c.pendingLeg2 != nil && ev.OrderID == c.pendingLeg2.orderID {
		if ev.Success {
			c.onFilled(ctx, c.pendingLeg2, 2, c.pendingLeg2.qty)
		}
	}
}

// onMarketStarted implements §4.6 Market rotation.
func (c *Controller) onMarketStarted(ctx context.Context, ev signal.Event) {
	prevMarket := c.cycle.Market

	if c.pendingLeg1 != nil {
		_ = c.adapter.CancelOrder(ctx, c.pendingLeg1.orderID)
	}
	if c.pendingLeg2 != nil {
		_ = c.adapter.CancelOrder(ctx, c.pendingLeg2.orderID)
	}
	if !c.cfg.PaperMode {
		if c.leg1ExitOrderID != "" {
			_ = c.adapter.CancelOrder(ctx, c.leg1ExitOrderID)
		}
		if c.leg2ExitOrderID != "" {
			_ = c.adapter.CancelOrder(ctx, c.leg2ExitOrderID)
		}
		if prevMarket.ID != "" {
			// Failures are logged, non-fatal (§7).
			if res, err := c.adapter.SettleMarket(ctx, prevMarket.ID); err != nil || !res.Success {
				c.log.Warn("settle previous market failed", "market", prevMarket.ID, "err", err)
			}
		}
	}

	c.expectedOrderIDs = make(map[string]bool)
	c.pendingLeg1 = nil
	c.pendingLeg2 = nil
	c.clearEmergencyTimer()
	if c.agg != nil {
		c.agg.Reset()
	}
	c.leg1ExitOrderID = ""
	c.leg2ExitOrderID = ""
	c.cycle = market.Cycle{Market: ev.Market, State: market.StateWatching}
	c.src.SetPhase(signal.PhaseWatching)
	c.bus.Publish(events.Event{Kind: events.KindStateChange, MarketID: ev.Market.ID, Status: "watching"})
}

// onNewRound implements §4.6's guard: a mid-cycle new_round only
// updates the round identifier, never clears state.
//
// Design Note (§9, open question): this follows the observed behavior
// of updating the end time from the market's own end time rather than
// the new_round event's end_time — preserved verbatim, see DESIGN.md.
func (c *Controller) onNewRound(ev signal.Event) {
	c.currentRoundID = ev.RoundID
	if c.cycle.State != market.StateWatching {
		return
	}
	// Per the observed (and preserved) behavior, the market's own
	// end time governs emergency-timer math — new_round's end_time is
	// informational only for mid-cycle rounds.
}

func (c *Controller) onRoundComplete(ctx context.Context, ev signal.Event) {
	if c.cycle.Finalized {
		return
	}
	status := "completed"
	if ev.Status == signal.RoundAbandoned {
		status = "abandoned"
		c.stats.CyclesAbandoned++
	} else {
		c.stats.CyclesCompleted++
	}
	c.stats.TotalProfit = c.stats.TotalProfit.Add(ev.Profit)
	c.bus.Publish(events.Event{Kind: events.KindCycleComplete, MarketID: c.cycle.Market.ID, Status: status, Profit: ev.Profit})
	if !c.cfg.PaperMode {
		_, _ = c.adapter.SettleMarket(ctx, c.cycle.Market.ID)
	}
}

// Stats returns a copy of the controller's stats for the status endpoint.
func (c *Controller) Stats() Stats { return c.stats }

// State returns the current cycle state, for the status endpoint.
func (c *Controller) State() market.CycleState { return c.cycle.State }
