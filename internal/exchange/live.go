package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/arbbot/dipsum-trader/internal/market"
)

// LiveConfig configures the REST leg of LiveAdapter. Grounded on
// 0xtitan6-polymarket-mm's exchange.Client constructor options.
type LiveConfig struct {
	ClobEndpoint string
	APIKey       string
	APISecret    string
	Timeout      time.Duration
	RetryCount   int
	DryRun       bool
}

// LiveAdapter is a resty-backed reference implementation of Adapter.
// The websocket dialer is kept for a reference streaming orderbook
// reader (DialOrderbookFeed); REST calls are the adapter's primary
// path since the contract is fundamentally request/response (§4.4).
type LiveAdapter struct {
	cfg    LiveConfig
	rest   *resty.Client
	log    *slog.Logger
	dialMu sync.Mutex
}

func NewLiveAdapter(cfg LiveConfig, logger *slog.Logger) *LiveAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	rest := resty.New().
		SetBaseURL(cfg.ClobEndpoint).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveAdapter{cfg: cfg, rest: rest, log: logger.With("component", "exchange")}
}

type orderRequest struct {
	TokenID string `json:"token_id"`
	Side    string `json:"side"`
	Price   string `json:"price,omitempty"`
	Size    string `json:"size,omitempty"`
	Notional string `json:"notional,omitempty"`
	Kind    string `json:"kind"`
}

type orderResponse struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
}

func sideString(s OrderSide) string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

func (a *LiveAdapter) CreateLimitOrder(ctx context.Context, tokenID string, side OrderSide, price, size decimal.Decimal) (OrderResult, error) {
	if a.cfg.DryRun {
		a.log.Info("dry-run limit order", "token", tokenID, "side", sideString(side), "price", price, "size", size)
		return OrderResult{OrderID: "dryrun-" + tokenID, Success: true}, nil
	}
	var out orderResponse
	resp, err := a.rest.R().SetContext(ctx).
		SetBody(orderRequest{TokenID: tokenID, Side: sideString(side), Price: price.String(), Size: size.String(), Kind: "maker-limit"}).
		SetResult(&out).
		Post("/orders")
	if err != nil {
		return OrderResult{}, fmt.Errorf("create limit order: %w", err)
	}
	if resp.IsError() {
		return OrderResult{}, fmt.Errorf("create limit order: http %d", resp.StatusCode())
	}
	if out.OrderID == "" {
		return OrderResult{}, ErrNoOrderID
	}
	return OrderResult{OrderID: out.OrderID, Success: out.Success}, nil
}

func (a *LiveAdapter) CreateMarketOrder(ctx context.Context, tokenID string, side OrderSide, notional decimal.Decimal) (OrderResult, error) {
	if a.cfg.DryRun {
		a.log.Info("dry-run market order", "token", tokenID, "side", sideString(side), "notional", notional)
		return OrderResult{OrderID: "dryrun-" + tokenID, Success: true}, nil
	}
	var out orderResponse
	resp, err := a.rest.R().SetContext(ctx).
		SetBody(orderRequest{TokenID: tokenID, Side: sideString(side), Notional: notional.String(), Kind: "taker-market"}).
		SetResult(&out).
		Post("/orders")
	if err != nil {
		return OrderResult{}, fmt.Errorf("create market order: %w", err)
	}
	if resp.IsError() {
		return OrderResult{Success: false}, nil
	}
	return OrderResult{OrderID: out.OrderID, Success: out.Success}, nil
}

type orderStateResponse struct {
	Status     string `json:"status"`
	FilledSize string `json:"filled_size"`
}

func parseStatus(s string) OrderStatus {
	switch s {
	case "open":
		return StatusOpen
	case "partially_filled":
		return StatusPartiallyFilled
	case "filled":
		return StatusFilled
	case "cancelled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	case "rejected":
		return StatusRejected
	case "not_found":
		return StatusNotFound
	default:
		return StatusPending
	}
}

func (a *LiveAdapter) GetOrder(ctx context.Context, orderID string) (OrderState, error) {
	var out orderStateResponse
	resp, err := a.rest.R().SetContext(ctx).SetResult(&out).Get("/orders/" + orderID)
	if err != nil {
		return OrderState{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if resp.StatusCode() == 404 {
		return OrderState{Status: StatusNotFound}, nil
	}
	filled, _ := decimal.NewFromString(out.FilledSize)
	return OrderState{Status: parseStatus(out.Status), FilledSize: filled}, nil
}

func (a *LiveAdapter) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := a.rest.R().SetContext(ctx).Delete("/orders/" + orderID)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	// Idempotent: a 404 or 409 (already terminal) is not an error.
	if resp.IsError() && resp.StatusCode() != 404 && resp.StatusCode() != 409 {
		return fmt.Errorf("cancel order %s: http %d", orderID, resp.StatusCode())
	}
	return nil
}

type bookResponse struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func (a *LiveAdapter) GetOrderbook(ctx context.Context, tokenID string) (market.Orderbook, error) {
	var out bookResponse
	_, err := a.rest.R().SetContext(ctx).SetResult(&out).
		SetQueryParam("token_id", tokenID).
		Get("/book")
	if err != nil {
		return market.Orderbook{}, fmt.Errorf("get orderbook %s: %w", tokenID, err)
	}
	return market.Orderbook{Bids: toLevels(out.Bids), Asks: toLevels(out.Asks)}, nil
}

func toLevels(raw [][2]string) []market.PriceLevel {
	levels := make([]market.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, _ := decimal.NewFromString(pair[0])
		size, _ := decimal.NewFromString(pair[1])
		levels = append(levels, market.PriceLevel{Price: price, Size: size})
	}
	return levels
}

func (a *LiveAdapter) SettleMarket(ctx context.Context, marketID string) (SettleResult, error) {
	var out struct {
		Success        bool   `json:"success"`
		AmountReceived string `json:"amount_received"`
	}
	resp, err := a.rest.R().SetContext(ctx).SetResult(&out).Post("/markets/" + marketID + "/redeem")
	if err != nil {
		return SettleResult{}, fmt.Errorf("settle market %s: %w", marketID, err)
	}
	if resp.IsError() {
		// Settlement failures are warned, never fatal (§7) — the
		// exchange's own auto-settle is the safety net.
		a.log.Warn("settle market failed", "market", marketID, "status", resp.StatusCode())
		return SettleResult{Success: false}, nil
	}
	amt, _ := decimal.NewFromString(out.AmountReceived)
	return SettleResult{Success: out.Success, AmountReceived: amt}, nil
}

func (a *LiveAdapter) CollateralBalance(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	_, err := a.rest.R().SetContext(ctx).SetResult(&out).Get("/balance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("collateral balance: %w", err)
	}
	bal, _ := decimal.NewFromString(out.Balance)
	return bal, nil
}

// DialOrderbookFeed opens a reference websocket connection to the
// streaming orderbook feed. The price aggregator (C7) polls the signal
// source's cached book and uses REST snapshots only as a fallback; it
// does not call this helper, and nothing else in this module does.
func (a *LiveAdapter) DialOrderbookFeed(ctx context.Context, wsEndpoint string) (*websocket.Conn, error) {
	a.dialMu.Lock()
	defer a.dialMu.Unlock()
	dialer := websocket.Dialer{HandshakeTimeout: a.cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial orderbook feed: %w", err)
	}
	return conn, nil
}
