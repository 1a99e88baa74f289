package signal

import "github.com/arbbot/dipsum-trader/internal/market"

// NoopSource is a Source that never emits. It is the default wired by
// cmd/trader until a real detector is plugged in at the integration
// point main.go documents; it lets the rest of the event loop (fill
// polling, emergency exit, market rotation) run and be observed via
// the status endpoint even with no signal detector attached.
type NoopSource struct {
	events chan Event
}

func NewNoopSource() *NoopSource {
	return &NoopSource{events: make(chan Event)}
}

func (n *NoopSource) Events() <-chan Event                                    { return n.events }
func (n *NoopSource) SetPhase(Phase)                                          {}
func (n *NoopSource) InjectOrderbook(tokenID string, book market.Orderbook)    {}
func (n *NoopSource) CurrentAsks(side market.Side) []PricePoint               { return nil }
