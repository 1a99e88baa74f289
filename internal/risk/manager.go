// Package risk implements the position sizer and consecutive-loss
// circuit breaker (C2). It keeps the teacher's mutex-guarded Manager
// shape (internal/risk.Manager in the teacher repo) but replaces the
// USD-exposure gatekeeping with the spec's balance/price share sizing.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the sizer's tunables. Field names mirror the
// risk.* configuration group documented in SPEC_FULL.md §6.
type Config struct {
	MaxBalancePctPerTrade   decimal.Decimal
	MinShares               decimal.Decimal
	MaxShares               decimal.Decimal
	ConsecutiveLossLimit    int
	CooldownMinutes         time.Duration
}

// Snapshot is a read-only view of sizer state, consumed by the status
// endpoint and logging.
type Snapshot struct {
	ConsecutiveLosses int
	InCooldown        bool
	CooldownRemaining time.Duration
}

// Manager is the position sizer (C2). It exclusively owns the
// consecutive-loss counter and cooldown deadline, per SPEC_FULL.md §3.
type Manager struct {
	mu                sync.Mutex
	cfg               Config
	consecutiveLosses int
	cooldownUntil     time.Time
}

func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

var safetyRail = decimal.NewFromFloat(0.95)

// CalculateShares implements calculate_shares(balance, leg1_price) from
// SPEC_FULL.md §4.2. Returns zero when trading is paused or the computed
// quantity falls below MinShares (go/no-go, never clamped up).
func (m *Manager) CalculateShares(balance, leg1Price decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inCooldownLocked() {
		return decimal.Zero
	}
	if leg1Price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	maxRisk := balance.Mul(m.cfg.MaxBalancePctPerTrade)
	qty := maxRisk.Div(leg1Price).Floor()

	if m.cfg.MaxShares.GreaterThan(decimal.Zero) && qty.GreaterThan(m.cfg.MaxShares) {
		qty = m.cfg.MaxShares
	}

	cap := balance.Mul(safetyRail)
	if qty.Mul(leg1Price).GreaterThan(cap) {
		qty = cap.Div(leg1Price).Floor()
	}

	if qty.LessThan(m.cfg.MinShares) {
		return decimal.Zero
	}
	return qty
}

// RecordResult updates the consecutive-loss streak from a cycle's
// realized profit. Any non-negative profit resets the streak to zero;
// reaching the configured limit starts a cooldown.
func (m *Manager) RecordResult(profit decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if profit.LessThan(decimal.Zero) {
		m.consecutiveLosses++
	} else {
		m.consecutiveLosses = 0
		return
	}

	if m.cfg.ConsecutiveLossLimit > 0 && m.consecutiveLosses >= m.cfg.ConsecutiveLossLimit {
		cooldown := m.cfg.CooldownMinutes
		if cooldown <= 0 {
			cooldown = 360 * time.Minute
		}
		m.cooldownUntil = time.Now().Add(cooldown)
	}
}

// IsTradingPaused reports whether the cooldown is still active. Once it
// has elapsed, the pause clears and the consecutive-loss streak resets.
func (m *Manager) IsTradingPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inCooldownLocked()
}

func (m *Manager) inCooldownLocked() bool {
	if m.cooldownUntil.IsZero() {
		return false
	}
	if time.Now().Before(m.cooldownUntil) {
		return true
	}
	m.cooldownUntil = time.Time{}
	m.consecutiveLosses = 0
	return false
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining := time.Duration(0)
	paused := m.inCooldownLocked()
	if paused {
		remaining = time.Until(m.cooldownUntil)
	}
	return Snapshot{
		ConsecutiveLosses: m.consecutiveLosses,
		InCooldown:        paused,
		CooldownRemaining: remaining,
	}
}
