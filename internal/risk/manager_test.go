package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func testConfig() Config {
	return Config{
		MaxBalancePctPerTrade: d(0.05),
		MinShares:             d(5),
		MaxShares:             d(100),
		ConsecutiveLossLimit:  3,
		CooldownMinutes:       360 * time.Minute,
	}
}

func TestCalculateSharesWithinBounds(t *testing.T) {
	m := New(testConfig())
	qty := m.CalculateShares(d(1000), d(0.4))
	// max_risk = 50, floor(50/0.4) = 125, clamped to max_shares 100.
	if !qty.Equal(d(100)) {
		t.Fatalf("expected 100, got %s", qty)
	}
}

func TestCalculateSharesBelowMinIsZero(t *testing.T) {
	m := New(testConfig())
	qty := m.CalculateShares(d(10), d(0.9))
	if !qty.IsZero() {
		t.Fatalf("expected go/no-go zero below min_shares, got %s", qty)
	}
}

func TestCalculateSharesSafetyRail(t *testing.T) {
	cfg := testConfig()
	cfg.MaxShares = d(1000)
	m := New(cfg)
	// balance 100, price 0.5: max_risk=5, floor(5/0.5)=10; 10*0.5=5 <= 95 ok.
	qty := m.CalculateShares(d(100), d(0.5))
	if qty.Mul(d(0.5)).GreaterThan(d(100).Mul(d(0.95))) {
		t.Fatalf("safety rail violated: %s", qty)
	}
}

func TestRecordResultResetsOnWin(t *testing.T) {
	m := New(testConfig())
	m.RecordResult(d(-1))
	m.RecordResult(d(-1))
	m.RecordResult(d(5))
	if m.Snapshot().ConsecutiveLosses != 0 {
		t.Fatal("non-negative profit must reset consecutive losses")
	}
}

func TestRecordResultTriggersCooldown(t *testing.T) {
	m := New(testConfig())
	m.RecordResult(d(-1))
	m.RecordResult(d(-1))
	m.RecordResult(d(-1))
	if !m.IsTradingPaused() {
		t.Fatal("expected cooldown after reaching consecutive loss limit")
	}
	qty := m.CalculateShares(d(1000), d(0.4))
	if !qty.IsZero() {
		t.Fatal("expected zero shares while paused")
	}
}
