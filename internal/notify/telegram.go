// Package notify sends Telegram alerts for controller events. It
// subscribes to the event bus (C8) rather than being called directly
// by the controller, keeping the ambient-stack concern of "notify a
// human" decoupled from the trading control plane.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arbbot/dipsum-trader/internal/events"
)

// Notifier sends alerts to a Telegram chat via the Bot API. Grounded on
// the teacher's internal/notify.Notifier (same HTTP POST shape); fill
// and risk alert payloads are adapted to the arbitrage cycle domain.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

func (n *Notifier) Enabled() bool { return n.enabled }

func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// Subscribe registers the notifier on bus so cycle completions and
// emergency exits become Telegram alerts without the controller
// knowing notify exists (§4.8: multiple subscribers per event).
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.KindCycleComplete, func(ev events.Event) {
		_ = n.Send(context.Background(), fmt.Sprintf(
			"<b>Cycle %s</b>\nMarket: <code>%s</code>\nProfit: %s", ev.Status, ev.MarketID, ev.Profit))
	})
	bus.Subscribe(events.KindEmergencyExit, func(ev events.Event) {
		_ = n.Send(context.Background(), fmt.Sprintf(
			"<b>Emergency Exit</b>\nMarket: <code>%s</code>\nProfit: %s", ev.MarketID, ev.Profit))
	})
	bus.Subscribe(events.KindError, func(ev events.Event) {
		if ev.Err == nil {
			return
		}
		_ = n.Send(context.Background(), fmt.Sprintf("<b>Error</b>\n%s", ev.Err.Error()))
	})
}
