package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/events"
	"github.com/arbbot/dipsum-trader/internal/exchange"
	"github.com/arbbot/dipsum-trader/internal/market"
	"github.com/arbbot/dipsum-trader/internal/paper"
	"github.com/arbbot/dipsum-trader/internal/risk"
	"github.com/arbbot/dipsum-trader/internal/signal"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

type noopSource struct{}

func (noopSource) Events() <-chan signal.Event                        { return nil }
func (noopSource) SetPhase(signal.Phase)                              {}
func (noopSource) InjectOrderbook(string, market.Orderbook)           {}
func (noopSource) CurrentAsks(market.Side) []signal.PricePoint        { return nil }

func testController(t *testing.T, endIn time.Duration) (*Controller, *paper.Simulator) {
	t.Helper()
	cfg := Config{
		SumTarget: d(0.95), DipThreshold: d(0.20), UseMakerOrders: false,
		TakerFeeRate: d(0.0625), FillTimeout: time.Second, PollInterval: time.Second,
		ExitBeforeExpiryMins: 3, PaperMode: true,
	}
	sizer := risk.New(risk.Config{MaxBalancePctPerTrade: d(0.10), MinShares: d(5), MaxShares: d(200), ConsecutiveLossLimit: 3, CooldownMinutes: 360 * time.Minute})
	sim := paper.NewSimulator(paper.Config{StartingBalance: d(1000), FeeRate: d(0.0625)}, events.New())
	ctrl := New(cfg, exchange.NewFake(), noopSource{}, sizer, sim, events.New(), nil, nil)
	ctrl.cycle.Market = market.Market{ID: "m1", UpTokenID: "up1", DownTokenID: "down1", EndTime: time.Now().Add(endIn)}
	return ctrl, sim
}

func dipSignal(price, oppositeAsk decimal.Decimal, side market.Side, tokenID string) signal.Event {
	return signal.Event{
		Kind: signal.EventSignal, SignalKind: signal.Leg1, SourceKind: signal.Dip,
		DipSide: side, CurrentPrice: price, OppositeAsk: oppositeAsk, TokenID: tokenID,
		BestBid: price.Sub(d(0.01)), BestAsk: price,
	}
}

func TestLeg1AdmissionAcceptsValidDip(t *testing.T) {
	ctrl, _ := testController(t, 10*time.Minute)
	ctrl.tryLeg1(context.Background(), dipSignal(d(0.40), d(0.55), market.SideUp, "up1"))
	if ctrl.cycle.State != market.StateWaitingForHedge {
		t.Fatalf("expected WaitingForHedge, got %v", ctrl.cycle.State)
	}
	if ctrl.cycle.Leg1 == nil {
		t.Fatal("expected leg1 to be recorded")
	}
}

func TestOneEntryPerMarket(t *testing.T) {
	ctrl, _ := testController(t, 10*time.Minute)
	sig := dipSignal(d(0.40), d(0.55), market.SideUp, "up1")
	ctrl.tryLeg1(context.Background(), sig)
	if ctrl.cycle.State != market.StateWaitingForHedge {
		t.Fatal("first signal should be admitted")
	}
	firstLeg1 := ctrl.cycle.Leg1
	// Force back to Watching to prove the attempted flag — not the
	// state — is what blocks a second signal in the same market.
	ctrl.cycle.State = market.StateWatching
	ctrl.tryLeg1(context.Background(), sig)
	if ctrl.cycle.Leg1 != firstLeg1 || ctrl.cycle.State != market.StateWatching {
		// A second admitted entry would have replaced leg1 via
		// executeLeg1 and moved the state to WaitingForHedge.
		t.Fatal("expected the second signal in the same market to be dropped")
	}
	if !ctrl.cycle.AttemptedThisMarket {
		t.Fatal("expected attempted_this_market to remain set")
	}
}

func TestEmergencyExitNearExpiry(t *testing.T) {
	ctrl, _ := testController(t, 10*time.Minute)
	ctrl.tryLeg1(context.Background(), dipSignal(d(0.40), d(0.55), market.SideUp, "up1"))
	// Move expiry to just inside the emergency window.
	ctrl.cycle.Market.EndTime = time.Now().Add(179 * time.Second)
	ctrl.emergencyDeadline = time.Now().Add(-1 * time.Second)
	ctrl.checkEmergency(context.Background())
	if ctrl.stats.EmergencyExits != 1 {
		t.Fatalf("expected 1 emergency exit, got %d", ctrl.stats.EmergencyExits)
	}
	if ctrl.cycle.State != market.StateWatching {
		t.Fatalf("expected reset to Watching after emergency exit, got %v", ctrl.cycle.State)
	}
}

func TestCycleFinalizationIsIdempotent(t *testing.T) {
	ctrl, _ := testController(t, 10*time.Minute)
	ctrl.cycle.Leg1 = &market.Leg{Side: market.SideUp, FillPrice: d(0.40), Shares: d(100)}
	ctrl.cycle.Leg2 = &market.Leg{Side: market.SideDown, FillPrice: d(0.50), Shares: d(100)}
	ctrl.finalizeCycle(context.Background())
	ctrl.finalizeCycle(context.Background())
	if ctrl.stats.CyclesCompleted != 1 {
		t.Fatalf("expected exactly 1 completed cycle even with 2 finalize calls, got %d", ctrl.stats.CyclesCompleted)
	}
}

func TestCircuitBreakerPausesSizing(t *testing.T) {
	ctrl, _ := testController(t, 10*time.Minute)
	ctrl.sizer.RecordResult(d(-5))
	ctrl.sizer.RecordResult(d(-5))
	ctrl.sizer.RecordResult(d(-5))
	ctrl.tryLeg1(context.Background(), dipSignal(d(0.40), d(0.55), market.SideUp, "up1"))
	if ctrl.cycle.State == market.StateWaitingForHedge {
		t.Fatal("expected admission to reject while sizer is paused")
	}
}

func TestLeg1RejectsStaleToken(t *testing.T) {
	ctrl, _ := testController(t, 10*time.Minute)
	ctrl.tryLeg1(context.Background(), dipSignal(d(0.40), d(0.55), market.SideUp, "not-the-current-token"))
	if ctrl.cycle.State != market.StateWatching {
		t.Fatal("expected stale-token rejection to keep state Watching")
	}
}

func TestLeg2RejectsAboveSumTarget(t *testing.T) {
	ctrl, _ := testController(t, 10*time.Minute)
	ctrl.tryLeg1(context.Background(), dipSignal(d(0.40), d(0.55), market.SideUp, "up1"))
	sig := signal.Event{Kind: signal.EventSignal, SignalKind: signal.Leg2, DipSide: market.SideDown, CurrentPrice: d(0.60), TokenID: "down1", BestBid: d(0.59), BestAsk: d(0.60)}
	ctrl.tryLeg2(context.Background(), sig)
	if ctrl.cycle.State != market.StateWaitingForHedge {
		t.Fatal("expected leg2 rejection to leave state at WaitingForHedge")
	}
}
