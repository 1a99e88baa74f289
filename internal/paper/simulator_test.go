package paper

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/events"
	"github.com/arbbot/dipsum-trader/internal/market"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func testConfig() Config {
	return Config{
		StartingBalance:  d(1000),
		SimulateFees:     true,
		SimulateSlippage: true,
		SlippagePct:      d(0.02),
		FeeRate:          d(0.0625),
	}
}

func TestBuyMakerLimitZeroFee(t *testing.T) {
	sim := NewSimulator(testConfig(), events.New())
	leg := market.Leg{Side: market.SideUp, FillPrice: d(0.40), Shares: d(100), Kind: market.KindMakerLimit}
	ok, err := sim.Buy(leg, "m1", d(0.39), d(0.40))
	if err != nil || !ok {
		t.Fatalf("expected buy accepted, got ok=%v err=%v", ok, err)
	}
	snap := sim.Snapshot()
	expectedBalance := d(1000).Sub(d(40))
	if !snap.Balance.Equal(expectedBalance) {
		t.Fatalf("expected balance %s, got %s", expectedBalance, snap.Balance)
	}
}

func TestBuyInsufficientBalanceRefused(t *testing.T) {
	cfg := testConfig()
	cfg.StartingBalance = d(10)
	sim := NewSimulator(cfg, events.New())
	leg := market.Leg{Side: market.SideUp, FillPrice: d(0.40), Shares: d(100), Kind: market.KindMakerLimit}
	ok, err := sim.Buy(leg, "m1", d(0.39), d(0.40))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected buy to be refused for insufficient balance")
	}
}

func TestSettleRoundPaysWinningSideOnly(t *testing.T) {
	sim := NewSimulator(testConfig(), events.New())
	sim.Buy(market.Leg{Side: market.SideUp, FillPrice: d(0.40), Shares: d(100), Kind: market.KindMakerLimit}, "m1", d(0.39), d(0.40))
	sim.Buy(market.Leg{Side: market.SideDown, FillPrice: d(0.50), Shares: d(100), Kind: market.KindMakerLimit}, "m1", d(0.49), d(0.50))

	balanceBeforeSettle := sim.Snapshot().Balance
	payout := sim.SettleRound("m1", market.SideUp)
	if !payout.Equal(d(100)) {
		t.Fatalf("expected payout 100, got %s", payout)
	}
	after := sim.Snapshot()
	if !after.Balance.Equal(balanceBeforeSettle.Add(d(100))) {
		t.Fatalf("expected balance increase of 100, got before=%s after=%s", balanceBeforeSettle, after.Balance)
	}
	if after.OpenPositions != 0 {
		t.Fatalf("expected no open positions after settlement, got %d", after.OpenPositions)
	}
}

func TestBuyTakerMarketFeeScalesWithQty(t *testing.T) {
	cfg := testConfig()
	cfg.SimulateSlippage = false
	sim := NewSimulator(cfg, events.New())
	leg := market.Leg{Side: market.SideUp, FillPrice: d(0.40), Shares: d(100), Kind: market.KindTakerMarket}
	ok, err := sim.Buy(leg, "m1", d(0.39), d(0.40))
	if err != nil || !ok {
		t.Fatalf("expected buy accepted, got ok=%v err=%v", ok, err)
	}
	// fee = qty * price * (1-price) * FEE_RATE = 100 * 0.40 * 0.60 * 0.0625 = 1.5
	wantFee := d(100).Mul(d(0.40)).Mul(d(0.60)).Mul(d(0.0625))
	wantCost := d(0.40).Mul(d(100)).Add(wantFee)
	expectedBalance := d(1000).Sub(wantCost)
	snap := sim.Snapshot()
	if !snap.Balance.Equal(expectedBalance) {
		t.Fatalf("expected balance %s, got %s", expectedBalance, snap.Balance)
	}
}

func TestScenarioPaperWin(t *testing.T) {
	// Concrete scenario 1: balance 1000, leg1 UP 100@0.40, leg2 DOWN 100@0.50.
	sim := NewSimulator(Config{StartingBalance: d(1000), SimulateFees: false, SimulateSlippage: false, FeeRate: d(0.0625)}, events.New())
	ok1, _ := sim.Buy(market.Leg{Side: market.SideUp, FillPrice: d(0.40), Shares: d(100), Kind: market.KindMakerLimit}, "m1", d(0.39), d(0.40))
	ok2, _ := sim.Buy(market.Leg{Side: market.SideDown, FillPrice: d(0.50), Shares: d(100), Kind: market.KindMakerLimit}, "m1", d(0.49), d(0.50))
	if !ok1 || !ok2 {
		t.Fatal("expected both legs to be accepted")
	}
	payout := sim.SettleRound("m1", market.SideUp)
	totalCost := d(0.40).Mul(d(100)).Add(d(0.50).Mul(d(100)))
	profit := payout.Sub(totalCost)
	if !profit.Equal(d(10)) {
		t.Fatalf("expected profit 10, got %s", profit)
	}
}
