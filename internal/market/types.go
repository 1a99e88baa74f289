// Package market holds the shared data-model types of SPEC_FULL.md §3:
// Market, Leg, Cycle, and the orderbook snapshot shape every other
// package (exchange, signal, feed, strategy) builds on.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is an outcome-token side.
type Side int

const (
	SideUp Side = iota
	SideDown
)

func (s Side) String() string {
	if s == SideDown {
		return "DOWN"
	}
	return "UP"
}

func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// Market is one round of the binary option. Immutable once current;
// replaced wholesale on rotation.
type Market struct {
	ID            string
	DurationMins  int
	UpTokenID     string
	DownTokenID   string
	EndTime       time.Time
}

// TokenID returns the token id for the given side.
func (m Market) TokenID(side Side) string {
	if side == SideDown {
		return m.DownTokenID
	}
	return m.UpTokenID
}

// SecondsRemaining returns time to EndTime from now, never negative.
func (m Market) SecondsRemaining(now time.Time) float64 {
	d := m.EndTime.Sub(now).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// OrderPlacementKind mirrors fees.OrderKind without importing the fees
// package, to keep market a leaf dependency.
type OrderPlacementKind int

const (
	KindMakerLimit OrderPlacementKind = iota
	KindTakerMarket
)

func (k OrderPlacementKind) String() string {
	if k == KindTakerMarket {
		return "taker-market"
	}
	return "maker-limit"
}

// Leg is a filled purchase on one side of a cycle.
type Leg struct {
	Side         Side
	FillPrice    decimal.Decimal
	Shares       decimal.Decimal
	TokenID      string
	Kind         OrderPlacementKind
	BestBid      decimal.Decimal
	BestAsk      decimal.Decimal
	OrderID      string
	FilledAt     time.Time
}

// CycleState is the controller's per-market state machine position.
type CycleState int

const (
	StateWatching CycleState = iota
	StateLeg1Pending
	StateWaitingForHedge
	StateLeg2Pending
	StateCompleted
	StateEmergencyExit
)

func (s CycleState) String() string {
	switch s {
	case StateLeg1Pending:
		return "leg1_pending"
	case StateWaitingForHedge:
		return "waiting_for_hedge"
	case StateLeg2Pending:
		return "leg2_pending"
	case StateCompleted:
		return "completed"
	case StateEmergencyExit:
		return "emergency_exit"
	default:
		return "watching"
	}
}

// Cycle is the per-market unit of arbitrage work.
type Cycle struct {
	Market                   Market
	Leg1                     *Leg
	Leg2                     *Leg
	State                    CycleState
	AttemptedThisMarket      bool
	Finalized                bool
}

// PriceLevel is a single (price, size) book entry.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Orderbook is a one-shot snapshot of bids and asks, best-first.
type Orderbook struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

func (b Orderbook) BestBid() (decimal.Decimal, bool) {
	if len(b.Bids) == 0 {
		return decimal.Zero, false
	}
	return b.Bids[0].Price, true
}

func (b Orderbook) BestAsk() (decimal.Decimal, bool) {
	if len(b.Asks) == 0 {
		return decimal.Zero, false
	}
	return b.Asks[0].Price, true
}
