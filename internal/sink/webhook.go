package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/koindex/koindex/internal/domain"
)

// TradeExecutedEvent is the event type sent with every webhook delivery.
const TradeExecutedEvent = "trade.executed"

type webhookPayload struct {
	Event     string       `json:"event"`
	Timestamp string       `json:"timestamp"`
	Data      TradeMessage `json:"data"`
}

// Webhook POSTs every trade to a fixed URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook sink. Requests are bounded by timeout in
// addition to the delivery context.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver implements engine.TradeSink. Any non-2xx response is an error.
func (w *Webhook) Deliver(ctx context.Context, t domain.Trade) error {
	body, err := json.Marshal(webhookPayload{
		Event:     TradeExecutedEvent,
		Timestamp: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		Data:      NewTradeMessage(t),
	})
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", t.TradeID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Event-Type", TradeExecutedEvent)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook post: unexpected status %d", resp.StatusCode)
	}
	return nil
}
