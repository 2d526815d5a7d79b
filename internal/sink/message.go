// Package sink holds the TradeSink adapters that carry matched trades out of
// the engine: Kafka, Redis, Postgres, HTTP webhooks and a fan-out over them.
package sink

import (
	"encoding/json"
	"time"

	"github.com/koindex/koindex/internal/domain"
)

// TradeMessage is the wire form of a trade shared by every sink.
type TradeMessage struct {
	TradeID     string `json:"trade_id"`
	Pair        string `json:"pair"`
	Price       string `json:"price"`
	Volume      string `json:"volume"`
	TotalAmount string `json:"total_amount"`
	BidUserID   string `json:"bid_user_id"`
	AskUserID   string `json:"ask_user_id"`
	BidOrderID  string `json:"bid_order_id"`
	AskOrderID  string `json:"ask_order_id"`
	Color       string `json:"color"`
	CreatedAt   string `json:"created_at"`
}

// NewTradeMessage converts a trade to its wire form. Decimals are rendered
// as strings so no precision is lost.
func NewTradeMessage(t domain.Trade) TradeMessage {
	return TradeMessage{
		TradeID:     t.TradeID,
		Pair:        t.Pair,
		Price:       t.Price.String(),
		Volume:      t.Volume.String(),
		TotalAmount: t.TotalAmount.String(),
		BidUserID:   t.BidUserID,
		AskUserID:   t.AskUserID,
		BidOrderID:  t.BidOrderID,
		AskOrderID:  t.AskOrderID,
		Color:       string(t.Color),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Encode returns the JSON encoding of t's wire form.
func Encode(t domain.Trade) ([]byte, error) {
	return json.Marshal(NewTradeMessage(t))
}
