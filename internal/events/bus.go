// Package events implements the typed outgoing event bus (C8).
//
// Grounded on 0xtitan6-polymarket-mm's engine.Engine, which sends
// dashboard events on a channel guarded by select/default so a slow
// subscriber can never block the engine. Here the bus additionally
// supports direct handler registration (teacher's Notifier-interface
// idiom in internal/app/app.go), since more than one in-process
// subscriber listens (cmd/trader's error logger, the Telegram notifier).
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the typed event enum replacing the string-keyed emitter
// pattern flagged in SPEC_FULL.md §9 (Design Note: typed channels or
// callbacks instead of string-keyed event emission).
type Kind int

const (
	KindLog Kind = iota
	KindStateChange
	KindLeg1Executed
	KindLeg2Executed
	KindCycleComplete
	KindEmergencyExit
	KindNewRound
	KindPriceUpdate
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindStateChange:
		return "state_change"
	case KindLeg1Executed:
		return "leg1_executed"
	case KindLeg2Executed:
		return "leg2_executed"
	case KindCycleComplete:
		return "cycle_complete"
	case KindEmergencyExit:
		return "emergency_exit"
	case KindNewRound:
		return "new_round"
	case KindPriceUpdate:
		return "price_update"
	case KindError:
		return "error"
	default:
		return "log"
	}
}

// Event is one bus message. Payload fields are left nil/zero unless the
// Kind defines them; callers type-assert only what they expect.
type Event struct {
	Kind      Kind
	Time      time.Time
	MarketID  string
	Message   string
	Status    string
	Profit    decimal.Decimal
	ProfitPct decimal.Decimal
	Err       error

	PriceUpdate *PriceUpdate
}

// PriceUpdate is the payload for KindPriceUpdate.
type PriceUpdate struct {
	UpBid, UpBidSize   decimal.Decimal
	UpAsk, UpAskSize   decimal.Decimal
	DownBid, DownBidSize decimal.Decimal
	DownAsk, DownAskSize decimal.Decimal
	Sum                decimal.Decimal
}

// Handler receives one event. Handlers must not block or suspend: the
// bus calls them synchronously from the publisher's goroutine.
type Handler func(Event)

// Bus is a typed, multi-subscriber, non-blocking-by-convention event
// bus. Zero value is unusable; use New.
type Bus struct {
	handlers map[Kind][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers handler for kind. Order of invocation across
// subscribers for the same kind matches registration order.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish delivers ev to every handler registered for ev.Kind. A
// handler panic is recovered and discarded (no event is emitted for
// it) so a broken subscriber never takes down the publisher.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, h := range b.handlers[ev.Kind] {
		b.safeDeliver(h, ev)
	}
}

func (b *Bus) safeDeliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking subscriber must not propagate into the
			// controller's event loop.
		}
	}()
	h(ev)
}
