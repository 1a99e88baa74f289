// Package fees implements the pure-function fee and order-kind model (C1).
//
// Every function here is stateless: no config struct is held, all
// parameters are passed in explicitly, matching the teacher's
// internal/strategy pure-function style (taker.DetectConvergence).
package fees

import "github.com/shopspring/decimal"

// Side is a resting-order side relative to the spread.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// OrderKind selects between a zero-fee resting limit and a fee-charged
// immediate market order.
type OrderKind int

const (
	KindMakerLimit OrderKind = iota
	KindTakerMarket
)

func (k OrderKind) String() string {
	if k == KindTakerMarket {
		return "taker-market"
	}
	return "maker-limit"
}

var (
	one     = decimal.NewFromInt(1)
	zero    = decimal.Zero
	tick    = decimal.NewFromFloat(0.01)
	oneHalf = decimal.NewFromFloat(1.5)
)

// EstimateTakerFee returns the per-share fee rate for price in (0,1):
// (1 - price) * feeRate. Outside that range the exchange charges nothing
// (there is no quadratic fee at the boundary), so it returns zero.
func EstimateTakerFee(price, feeRate decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(zero) || price.GreaterThanOrEqual(one) {
		return zero
	}
	return one.Sub(price).Mul(feeRate)
}

// DecideLeg1OrderKind picks maker-limit or taker-market for the entry leg.
func DecideLeg1OrderKind(leg1Price, oppositeAsk, sumTarget, feeRate decimal.Decimal, useMaker, fallbackToTaker bool) OrderKind {
	if !useMaker {
		return KindTakerMarket
	}
	if sumTarget.IsZero() {
		return KindMakerLimit
	}
	margin := sumTarget.Sub(leg1Price.Add(oppositeAsk)).Div(sumTarget)
	if fallbackToTaker {
		threshold := oneHalf.Mul(EstimateTakerFee(leg1Price, feeRate))
		if margin.GreaterThan(threshold) {
			return KindTakerMarket
		}
	}
	return KindMakerLimit
}

// DecideLeg2OrderKind is always maker-limit: the hedge leg never chases.
func DecideLeg2OrderKind() OrderKind {
	return KindMakerLimit
}

// LimitPriceInsideSpread returns a price one tick inside the spread,
// clamped so a buy never crosses the ask and a sell never crosses the bid.
func LimitPriceInsideSpread(bestBid, bestAsk decimal.Decimal, side Side) decimal.Decimal {
	switch side {
	case SideBuy:
		p := bestBid.Add(tick)
		if p.GreaterThan(bestAsk) {
			p = bestAsk
		}
		if p.LessThan(bestBid) {
			p = bestBid
		}
		return p
	default:
		p := bestAsk.Sub(tick)
		if p.LessThan(bestBid) {
			p = bestBid
		}
		if p.GreaterThan(bestAsk) {
			p = bestAsk
		}
		return p
	}
}
