// Package feed implements the price aggregator (C7): it polls the
// signal source's cached orderbook state, maintains a rolling
// (UP, DOWN) ask history trimmed to a 5-minute window, and falls back
// to a serialized REST snapshot when the cache stalls.
//
// The rolling-window-with-eviction shape is grounded on the teacher's
// internal/strategy.FlowTracker (Record/evict by cutoff time); the
// REST-fallback poll loop is grounded on 0xtitan6-polymarket-mm's
// engine orchestration of periodic ticks feeding state back in.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/events"
	"github.com/arbbot/dipsum-trader/internal/exchange"
	"github.com/arbbot/dipsum-trader/internal/market"
	"github.com/arbbot/dipsum-trader/internal/signal"
)

// Point is one rolling-history sample.
type Point struct {
	Price decimal.Decimal
	Time  time.Time
}

const historyWindow = 5 * time.Minute

// Snapshot is the aggregator's current view of one market. poll fills
// in only UpAsk and DownAsk (the signal source exposes asks only); the
// bid and size fields stay zero, and price_update events carry only
// the two asks and their sum.
type Snapshot struct {
	UpBid, UpAsk     decimal.Decimal
	UpBidSize        decimal.Decimal
	UpAskSize        decimal.Decimal
	DownBid, DownAsk decimal.Decimal
	DownBidSize      decimal.Decimal
	DownAskSize      decimal.Decimal
}

func (s Snapshot) Sum() decimal.Decimal {
	return s.UpAsk.Add(s.DownAsk)
}

// Aggregator is the price aggregator (C7).
type Aggregator struct {
	src     signal.Source
	adapter exchange.Adapter
	bus     *events.Bus

	pollInterval   time.Duration
	restFallback   time.Duration

	mu        sync.Mutex
	upHist    []Point
	downHist  []Point
	last      Snapshot
	lastAdvanceAt time.Time
	restInFlight  bool
}

func New(src signal.Source, adapter exchange.Adapter, bus *events.Bus) *Aggregator {
	return &Aggregator{
		src:          src,
		adapter:      adapter,
		bus:          bus,
		pollInterval: 500 * time.Millisecond,
		restFallback: 5 * time.Second,
	}
}

// Run polls until ctx is cancelled. It is meant to be started in its
// own goroutine; all state mutation happens under the aggregator's own
// lock, never shared with the controller's loop directly — the
// controller only reads via Current/LastPrice.
func (a *Aggregator) Run(ctx context.Context, m market.Market) {
	pollTicker := time.NewTicker(a.pollInterval)
	restTicker := time.NewTicker(a.restFallback)
	defer pollTicker.Stop()
	defer restTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			a.poll(m)
		case <-restTicker.C:
			a.maybeRestFallback(ctx, m)
		}
	}
}

func (a *Aggregator) poll(m market.Market) {
	upPts := a.src.CurrentAsks(market.SideUp)
	downPts := a.src.CurrentAsks(market.SideDown)

	var upAsk, downAsk decimal.Decimal
	if len(upPts) > 0 {
		upAsk = upPts[len(upPts)-1].Price
	}
	if len(downPts) > 0 {
		downAsk = downPts[len(downPts)-1].Price
	}

	a.mu.Lock()
	changed := !upAsk.Equal(a.last.UpAsk) || !downAsk.Equal(a.last.DownAsk)
	if changed {
		a.lastAdvanceAt = time.Now()
		now := time.Now()
		if upAsk.GreaterThan(decimal.Zero) {
			a.upHist = append(a.upHist, Point{Price: upAsk, Time: now})
		}
		if downAsk.GreaterThan(decimal.Zero) {
			a.downHist = append(a.downHist, Point{Price: downAsk, Time: now})
		}
		a.trimLocked(now)
		a.last.UpAsk = upAsk
		a.last.DownAsk = downAsk
	}
	snap := a.last
	a.mu.Unlock()

	if changed {
		a.bus.Publish(events.Event{
			Kind:     events.KindPriceUpdate,
			MarketID: m.ID,
			PriceUpdate: &events.PriceUpdate{
				UpAsk: snap.UpAsk, DownAsk: snap.DownAsk, Sum: snap.Sum(),
			},
		})
	}
}

// maybeRestFallback fetches a one-shot REST snapshot and injects it
// into the signal source if the cache has not advanced since the last
// fallback window. REST fetches are serialized: at most one in flight.
func (a *Aggregator) maybeRestFallback(ctx context.Context, m market.Market) {
	a.mu.Lock()
	stale := time.Since(a.lastAdvanceAt) >= a.restFallback
	inFlight := a.restInFlight
	if stale && !inFlight {
		a.restInFlight = true
	}
	a.mu.Unlock()
	if !stale || inFlight {
		return
	}
	defer func() {
		a.mu.Lock()
		a.restInFlight = false
		a.mu.Unlock()
	}()

	for _, side := range []market.Side{market.SideUp, market.SideDown} {
		book, err := a.adapter.GetOrderbook(ctx, m.TokenID(side))
		if err != nil {
			continue
		}
		a.src.InjectOrderbook(m.TokenID(side), book)
	}
}

func (a *Aggregator) trimLocked(now time.Time) {
	cutoff := now.Add(-historyWindow)
	a.upHist = trim(a.upHist, cutoff)
	a.downHist = trim(a.downHist, cutoff)
}

func trim(pts []Point, cutoff time.Time) []Point {
	i := 0
	for i < len(pts) && pts[i].Time.Before(cutoff) {
		i++
	}
	if i == 0 {
		return pts
	}
	return pts[i:]
}

// Current returns the latest known bid/ask snapshot.
func (a *Aggregator) Current() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// LastPrice returns the most recent ask for side, used by emergency
// exit P&L estimation (§4.6).
func (a *Aggregator) LastPrice(side market.Side) (decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	hist := a.upHist
	if side == market.SideDown {
		hist = a.downHist
	}
	if len(hist) == 0 {
		return decimal.Zero, false
	}
	return hist[len(hist)-1].Price, true
}

// Reset clears rolling history on market rotation (§4.6 step 2).
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.upHist = nil
	a.downHist = nil
	a.last = Snapshot{}
	a.lastAdvanceAt = time.Time{}
}
