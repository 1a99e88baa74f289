// Package exchange defines the exchange adapter contract (C4) the
// controller consumes. The contract itself is the deliverable; the
// concrete exchange client (order signing, auth, websocket transport)
// is out of scope per SPEC_FULL.md §1 — LiveAdapter here is a thin
// resty/websocket-based reference implementation of the contract,
// grounded on 0xtitan6-polymarket-mm's internal/exchange.Client.
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/market"
)

// OrderSide is BUY or SELL, distinct from market.Side (outcome token
// side) because a SELL of a UP token and a BUY of a DOWN token are
// different adapter calls on the same side.
type OrderSide int

const (
	Buy OrderSide = iota
	Sell
)

// OrderStatus mirrors the contract's closed status set (SPEC_FULL.md
// §4.4 get_order).
type OrderStatus int

const (
	StatusPending OrderStatus = iota
	StatusOpen
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusExpired
	StatusRejected
	StatusNotFound
)

// IsTerminalNonFilled reports the statuses that end a pending order's
// life without a full fill, per the fill-polling fallback in §4.6.
func (s OrderStatus) IsTerminalNonFilled() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusRejected, StatusNotFound:
		return true
	default:
		return false
	}
}

// ErrNoOrderID signals create_limit_order/create_market_order returning
// no usable order id — treated as an order failure by the controller.
var ErrNoOrderID = errors.New("exchange: no order id returned")

// OrderResult is returned by order-placement calls.
type OrderResult struct {
	OrderID string
	Success bool
}

// OrderState is returned by GetOrder.
type OrderState struct {
	Status     OrderStatus
	FilledSize decimal.Decimal
}

// SettleResult is returned by SettleMarket.
type SettleResult struct {
	Success       bool
	AmountReceived decimal.Decimal
}

// Adapter is the full exchange contract (C4).
type Adapter interface {
	// CreateLimitOrder places a GTC maker-limit order. A missing order
	// id must be treated by the caller as failure (ErrNoOrderID).
	CreateLimitOrder(ctx context.Context, tokenID string, side OrderSide, price, size decimal.Decimal) (OrderResult, error)

	// CreateMarketOrder places a FOK taker-market order. notional is
	// the USD notional; for SELL it is qty*estimated price, not a raw
	// share count.
	CreateMarketOrder(ctx context.Context, tokenID string, side OrderSide, notional decimal.Decimal) (OrderResult, error)

	GetOrder(ctx context.Context, orderID string) (OrderState, error)

	// CancelOrder is idempotent: cancelling an already-terminal order
	// is not an error.
	CancelOrder(ctx context.Context, orderID string) error

	GetOrderbook(ctx context.Context, tokenID string) (market.Orderbook, error)

	// SettleMarket redeems resolved positions. Idempotent.
	SettleMarket(ctx context.Context, marketID string) (SettleResult, error)

	// CollateralBalance returns current account balance; live mode only.
	CollateralBalance(ctx context.Context) (decimal.Decimal, error)
}
