// Package paper implements the deterministic paper-trading simulator
// (C3): balance/position/P&L accounting with the fee and slippage
// models of SPEC_FULL.md §4.3, and an append-only JSON-lines trade log.
//
// Grounded on the teacher's internal/paper.Simulator (mutex-guarded
// balance + inventory map, sequence-numbered order/trade ids, fill()
// as the single balance-mutating chokepoint) — generalized from a
// single USDC/inventory ledger to the spec's per-(market,side) VWAP
// position model and decimal arithmetic.
package paper

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/events"
	"github.com/arbbot/dipsum-trader/internal/fees"
	"github.com/arbbot/dipsum-trader/internal/market"
)

// Config mirrors the paper.* configuration group of SPEC_FULL.md §6.
type Config struct {
	StartingBalance   decimal.Decimal
	SimulateFees      bool
	SimulateSlippage  bool
	SlippagePct       decimal.Decimal
	FeeRate           decimal.Decimal
	LogFile           string
}

// PositionKey identifies a per-(market,side) aggregate.
type PositionKey struct {
	MarketID string
	Side     market.Side
}

// Position is the spec's Paper position (§3): quantity, VWAP, opening time.
type Position struct {
	Quantity decimal.Decimal
	VWAP     decimal.Decimal
	OpenedAt time.Time
}

// CycleRecord is a retained history entry (SPEC_FULL.md §3 supplement),
// mirroring the teacher's recorded-cycle snapshot shape.
type CycleRecord struct {
	Time      time.Time
	MarketID  string
	Status    string
	Profit    decimal.Decimal
	ProfitPct decimal.Decimal
}

// TradeLogEntry is one line of the append-only trade journal (§6).
type TradeLogEntry struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Side          string          `json:"side"`
	Shares        decimal.Decimal `json:"shares"`
	Price         decimal.Decimal `json:"price"`
	Fee           decimal.Decimal `json:"fee"`
	OrderType     string          `json:"order_type"`
	MarketSlug    string          `json:"market_slug"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// Snapshot is a read-only view for the status endpoint.
type Snapshot struct {
	StartingBalance decimal.Decimal
	Balance         decimal.Decimal
	OpenPositions   int
	History         []CycleRecord
}

// Simulator is the paper simulator (C3). It exclusively owns balance,
// positions, and the trade log (§3 ownership rule).
type Simulator struct {
	mu sync.Mutex

	cfg       Config
	bus       *events.Bus
	balance   decimal.Decimal
	positions map[PositionKey]Position
	history   []CycleRecord

	logFile *os.File
}

func NewSimulator(cfg Config, bus *events.Bus) *Simulator {
	if cfg.StartingBalance.IsZero() {
		cfg.StartingBalance = decimal.NewFromInt(1000)
	}
	s := &Simulator{
		cfg:       cfg,
		bus:       bus,
		balance:   cfg.StartingBalance,
		positions: make(map[PositionKey]Position),
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			s.logFile = f
		}
		// Write failures are swallowed and non-fatal per §5; a failed
		// open just means the log append below becomes a no-op.
	}
	return s
}

func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := make([]CycleRecord, len(s.history))
	copy(hist, s.history)
	return Snapshot{
		StartingBalance: s.cfg.StartingBalance,
		Balance:         s.balance,
		OpenPositions:   len(s.positions),
		History:         hist,
	}
}

// Buy implements buy(leg, market_id) → accepted? from §4.3.
func (s *Simulator) Buy(leg market.Leg, marketID string, bestBid, bestAsk decimal.Decimal) (bool, error) {
	effective := s.effectivePrice(leg.Kind, leg.FillPrice, bestBid, bestAsk, leg.Shares)
	fee := s.buyFee(leg.Kind, effective, leg.Shares)

	s.mu.Lock()
	defer s.mu.Unlock()

	cost := effective.Mul(leg.Shares).Add(fee)
	if s.balance.LessThan(cost) {
		return false, nil
	}
	s.balance = s.balance.Sub(cost)

	key := PositionKey{MarketID: marketID, Side: leg.Side}
	pos, ok := s.positions[key]
	if !ok {
		pos = Position{OpenedAt: time.Now()}
	}
	newQty := pos.Quantity.Add(leg.Shares)
	if newQty.GreaterThan(decimal.Zero) {
		pos.VWAP = pos.VWAP.Mul(pos.Quantity).Add(effective.Mul(leg.Shares)).Div(newQty)
	}
	pos.Quantity = newQty
	s.positions[key] = pos

	s.appendLog(TradeLogEntry{
		ID: uuid.NewString(), Timestamp: time.Now(), Side: leg.Side.String(),
		Shares: leg.Shares, Price: effective, Fee: fee,
		OrderType: leg.Kind.String(), MarketSlug: marketID, BalanceAfter: s.balance,
	})
	s.publish(marketID, "trade")
	return true, nil
}

// Sell implements sell(side, qty, price, market_id) → net_proceeds.
// Sells are immediate and always pay the taker fee.
func (s *Simulator) Sell(side market.Side, qty, price decimal.Decimal, marketID string) decimal.Decimal {
	fee := qty.Mul(price).Mul(decimal.NewFromInt(1).Sub(price)).Mul(s.cfg.FeeRate)
	if !s.cfg.SimulateFees {
		fee = decimal.Zero
	}
	proceeds := price.Mul(qty).Sub(fee)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.balance.Add(proceeds)
	delete(s.positions, PositionKey{MarketID: marketID, Side: side})

	s.appendLog(TradeLogEntry{
		ID: uuid.NewString(), Timestamp: time.Now(), Side: "SELL",
		Shares: qty, Price: price, Fee: fee,
		OrderType: "taker-market", MarketSlug: marketID, BalanceAfter: s.balance,
	})
	s.publish(marketID, "trade")
	return proceeds
}

// SettleRound implements settle_round(market_id, winning_side) → payout.
func (s *Simulator) SettleRound(marketID string, winningSide market.Side) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	payout := decimal.Zero
	for _, side := range []market.Side{market.SideUp, market.SideDown} {
		key := PositionKey{MarketID: marketID, Side: side}
		pos, ok := s.positions[key]
		if !ok {
			continue
		}
		if side == winningSide {
			payout = payout.Add(pos.Quantity)
			s.balance = s.balance.Add(pos.Quantity)
		}
		delete(s.positions, key)
	}
	s.publish(marketID, "settled")
	return payout
}

// AbandonRound implements abandon_round(market_id): positions vanish
// with no payout or refund (a partial-fill timeout with nothing to exit).
func (s *Simulator) AbandonRound(marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, PositionKey{MarketID: marketID, Side: market.SideUp})
	delete(s.positions, PositionKey{MarketID: marketID, Side: market.SideDown})
}

// RecordCycle implements record_cycle(result): push to history.
func (s *Simulator) RecordCycle(rec CycleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
}

// effectivePrice implements the §4.3.1 slippage model.
func (s *Simulator) effectivePrice(kind market.OrderPlacementKind, price, bestBid, bestAsk, qty decimal.Decimal) decimal.Decimal {
	if !s.cfg.SimulateSlippage {
		return price
	}
	switch kind {
	case market.KindTakerMarket:
		if bestBid.GreaterThan(decimal.Zero) && bestAsk.GreaterThan(decimal.Zero) {
			extra := price.Mul(s.cfg.SlippagePct).Mul(qty).Div(decimal.NewFromInt(50))
			eff := price.Add(bestAsk.Sub(price)).Add(extra)
			cap := bestAsk.Mul(decimal.NewFromFloat(1.02))
			if eff.GreaterThan(cap) {
				eff = cap
			}
			return eff
		}
		return price.Mul(decimal.NewFromInt(1).Add(s.cfg.SlippagePct))
	default: // maker-limit: zero slippage
		return price
	}
}

// buyFee implements the §4.3.2 fee model for buys: qty * price * (1-price) * FEE_RATE.
func (s *Simulator) buyFee(kind market.OrderPlacementKind, effectivePrice, qty decimal.Decimal) decimal.Decimal {
	if !s.cfg.SimulateFees || kind == market.KindMakerLimit {
		return decimal.Zero
	}
	return fees.EstimateTakerFee(effectivePrice, s.cfg.FeeRate).Mul(effectivePrice).Mul(qty)
}

func (s *Simulator) appendLog(entry TradeLogEntry) {
	if s.logFile == nil {
		return
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = s.logFile.Write(b) // append-only; write failures are non-fatal (§5)
}

func (s *Simulator) publish(marketID, kind string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Kind: events.KindLog, MarketID: marketID, Message: kind})
}
