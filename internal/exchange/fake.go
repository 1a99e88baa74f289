package exchange

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/market"
)

// Fake is a scriptable in-memory Adapter used by controller tests,
// mirroring the teacher's hand-rolled fakes in internal/execution's
// test files rather than a mocking framework.
type Fake struct {
	mu sync.Mutex

	NextOrderID   string
	LimitResult   OrderResult
	LimitErr      error
	MarketResult  OrderResult
	MarketErr     error
	OrderStates   map[string]OrderState
	CancelErr     error
	Books         map[string]market.Orderbook
	SettleResult  SettleResult
	SettleErr     error
	Balance       decimal.Decimal

	LimitCalls  []string
	MarketCalls []string
	CancelCalls []string
}

func NewFake() *Fake {
	return &Fake{
		OrderStates: make(map[string]OrderState),
		Books:       make(map[string]market.Orderbook),
	}
}

func (f *Fake) CreateLimitOrder(_ context.Context, tokenID string, side OrderSide, price, size decimal.Decimal) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LimitCalls = append(f.LimitCalls, tokenID)
	if f.LimitErr != nil {
		return OrderResult{}, f.LimitErr
	}
	return f.LimitResult, nil
}

func (f *Fake) CreateMarketOrder(_ context.Context, tokenID string, side OrderSide, notional decimal.Decimal) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MarketCalls = append(f.MarketCalls, tokenID)
	if f.MarketErr != nil {
		return OrderResult{}, f.MarketErr
	}
	return f.MarketResult, nil
}

func (f *Fake) GetOrder(_ context.Context, orderID string) (OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.OrderStates[orderID]
	if !ok {
		return OrderState{Status: StatusNotFound}, nil
	}
	return st, nil
}

func (f *Fake) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CancelCalls = append(f.CancelCalls, orderID)
	return f.CancelErr
}

func (f *Fake) GetOrderbook(_ context.Context, tokenID string) (market.Orderbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Books[tokenID], nil
}

func (f *Fake) SettleMarket(_ context.Context, marketID string) (SettleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SettleResult, f.SettleErr
}

func (f *Fake) CollateralBalance(_ context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balance, nil
}
