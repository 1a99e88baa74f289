// Package signal defines the signal source contract (C5). The detector
// itself (orderbook watching, dip/surge/mispricing classification) is
// out of scope per SPEC_FULL.md §1 — the core only consumes Source and
// the Event stream it emits.
package signal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/market"
)

// SignalKind distinguishes candidate entry (leg1) from hedge (leg2).
type SignalKind int

const (
	Leg1 SignalKind = iota
	Leg2
)

// SourceKind classifies why a signal fired. Only Dip is acted upon by
// the controller (§4.6 gate 4).
type SourceKind int

const (
	Dip SourceKind = iota
	Surge
	Mispricing
)

// EventKind is the discriminant of Event.
type EventKind int

const (
	EventMarketStarted EventKind = iota
	EventNewRound
	EventSignal
	EventExecution
	EventRoundComplete
	EventError
)

// RoundStatus is the payload of an EventRoundComplete.
type RoundStatus int

const (
	RoundCompleted RoundStatus = iota
	RoundAbandoned
)

// Event is the single typed message the signal source emits. Only the
// fields relevant to Kind are populated; this mirrors the narrow,
// flattened shape preferred over one struct per event in SPEC_FULL.md's
// Design Notes (typed enum + plain fields, no `any`).
type Event struct {
	Kind EventKind
	Time time.Time

	// market_started
	Market market.Market

	// new_round
	RoundID  string
	EndTime  time.Time
	UpOpen   *bool
	DownOpen *bool

	// signal
	SignalKind      SignalKind
	SourceKind      SourceKind
	DipSide         market.Side
	CurrentPrice    decimal.Decimal
	OppositeAsk     decimal.Decimal
	DropPercent     decimal.Decimal
	TokenID         string
	TargetPrice     decimal.Decimal
	BestBid         decimal.Decimal
	BestAsk         decimal.Decimal
	SecondsRemaining decimal.Decimal

	// execution
	Leg        market.Leg
	LegNum     int // 1 or 2
	Success    bool
	OrderID    string

	// round_complete
	Status RoundStatus
	Profit decimal.Decimal

	// error
	Err error
}

// Phase is the narrow state the controller pushes back into the
// source, replacing direct mutation of currentRound.phase (Design
// Note §9: a narrow interface instead of reaching into internals).
type Phase int

const (
	PhaseWatching Phase = iota
	PhaseLeg1Filled
)

// Source is the signal source contract (C5).
type Source interface {
	// Events returns the channel of signal events. The controller
	// processes them strictly in delivery order (§5 ordering
	// guarantee 1).
	Events() <-chan Event

	// SetPhase tells the source the controller's coarse phase, so it
	// stops/resumes emitting leg1 signals without the controller
	// reaching into the source's internals.
	SetPhase(p Phase)

	// InjectOrderbook feeds a REST-fallback snapshot into the source's
	// cache so dip detection continues when the websocket has stalled
	// (§4.7).
	InjectOrderbook(tokenID string, book market.Orderbook)

	// CurrentAsks returns the source's cached rolling ask history for
	// side, used by the price aggregator.
	CurrentAsks(side market.Side) []PricePoint
}

// PricePoint is one (price, timestamp) sample in a rolling history.
type PricePoint struct {
	Price decimal.Decimal
	Time  time.Time
}
